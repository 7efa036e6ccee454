package snapshot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

func Test_BuildDefinition_Defaults(t *testing.T) {
	// act
	def := snapshot.BuildDefinition().Finalize()

	// assert
	assert.True(t, def.CapturesAll())
	assert.Empty(t, def.Captured())
	assert.Empty(t, def.Excluded())
	assert.False(t, def.CapturesHidden())
	assert.False(t, def.CapturesTypeTags())
	assert.False(t, def.ExcludesTimestamps())
	assert.Empty(t, def.PrimaryKeyAlias())
	assert.Empty(t, def.Children())
	assert.Equal(t, snapshot.DefaultDefinition(), def)
}

func Test_Definition_Allows(t *testing.T) {
	testCases := []struct {
		name      string
		def       snapshot.Definition
		attribute string
		expected  bool
	}{
		{
			name:      "capture all allows anything",
			def:       snapshot.BuildDefinition().Finalize(),
			attribute: "title",
			expected:  true,
		},
		{
			name:      "capture restricts to the listed names",
			def:       snapshot.BuildDefinition().Capture("title").Finalize(),
			attribute: "body",
			expected:  false,
		},
		{
			name:      "repeated capture accumulates",
			def:       snapshot.BuildDefinition().Capture("title").Capture("body").Finalize(),
			attribute: "body",
			expected:  true,
		},
		{
			name:      "exclude wins over capture",
			def:       snapshot.BuildDefinition().Capture("title").Exclude("title").Finalize(),
			attribute: "title",
			expected:  false,
		},
		{
			name:      "capture all lifts the restriction",
			def:       snapshot.BuildDefinition().Capture("title").CaptureAll().Finalize(),
			attribute: "body",
			expected:  true,
		},
		{
			name:      "capture all keeps exclusions",
			def:       snapshot.BuildDefinition().Exclude("body").CaptureAll().Finalize(),
			attribute: "body",
			expected:  false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.def.Allows(tc.attribute))
		})
	}
}

func Test_Definition_Allows_ExtraExclusions(t *testing.T) {
	def := snapshot.BuildDefinition().Finalize()

	assert.False(t, def.Allows("created_at", "created_at", "updated_at"))
	assert.True(t, def.Allows("title", "created_at", "updated_at"))
}

func Test_DefinitionBuilder_IsImmutable(t *testing.T) {
	// arrange
	base := snapshot.BuildDefinition().Capture("title")

	// act
	withBody := base.Capture("body").Finalize()
	withoutTitle := base.Exclude("title").Finalize()
	plain := base.Finalize()

	// assert
	assert.Equal(t, []string{"title", "body"}, withBody.Captured())
	assert.Empty(t, withBody.Excluded())
	assert.Equal(t, []string{"title"}, withoutTitle.Captured())
	assert.Equal(t, []string{"title"}, withoutTitle.Excluded())
	assert.Equal(t, []string{"title"}, plain.Captured())
	assert.Empty(t, plain.Excluded())
}

func Test_DefinitionBuilder_Flags(t *testing.T) {
	// act
	def := snapshot.BuildDefinition().
		CaptureHidden().
		CaptureTypeTags().
		ExcludeTimestamps().
		AliasPrimaryKey("origin").
		Finalize()

	// assert
	assert.True(t, def.CapturesHidden())
	assert.True(t, def.CapturesTypeTags())
	assert.True(t, def.ExcludesTimestamps())
	assert.Equal(t, "origin", def.PrimaryKeyAlias())
}

func Test_DefinitionBuilder_WithRelation_ReplacesInPlace(t *testing.T) {
	// arrange
	first := snapshot.BuildDefinition().Capture("name").Finalize()
	second := snapshot.BuildDefinition().Capture("label").Finalize()

	// act
	def := snapshot.BuildDefinition().
		WithRelation("parent", first).
		WithRelation("detail", snapshot.DefaultDefinition()).
		WithRelation("parent", second).
		Finalize()

	// assert
	children := def.Children()
	if assert.Len(t, children, 2) {
		assert.Equal(t, "parent", children[0].Relation())
		assert.Equal(t, []string{"label"}, children[0].Definition().Captured())
		assert.Equal(t, "detail", children[1].Relation())
	}
}

func Test_DefinitionBuilder_IgnoresEmptyNames(t *testing.T) {
	def := snapshot.BuildDefinition().Capture("", "title", "title").Finalize()

	assert.Equal(t, []string{"title"}, def.Captured())
}
