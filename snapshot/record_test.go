package snapshot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

func Test_BuildAttributeRecord(t *testing.T) {
	// act
	record := snapshot.BuildAttributeRecord("title", "hello", snapshot.CastString)

	// assert
	assert.Equal(t, "title", record.Name())
	assert.Equal(t, "hello", record.Value())
	assert.Equal(t, snapshot.CastString, record.TypeTag())
	assert.Equal(t, "title", record.QualifiedName())
	assert.Nil(t, record.RelationPath())
}

func Test_BuildRelatedAttributeRecord(t *testing.T) {
	// arrange
	path := []string{"parent", "parent"}

	// act
	record, err := snapshot.BuildRelatedAttributeRecord("name", "grandparent name", "", path)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "name", record.Name())
	assert.Equal(t, "parent_parent_name", record.QualifiedName())
	assert.Equal(t, []string{"parent", "parent"}, record.RelationPath())

	path[0] = "mutated"
	assert.Equal(t, []string{"parent", "parent"}, record.RelationPath(), "the record must own its path")
}

func Test_BuildRelatedAttributeRecord_WithEmptyPath_Fails(t *testing.T) {
	// act
	_, err := snapshot.BuildRelatedAttributeRecord("name", "value", "", nil)

	// assert
	assert.ErrorIs(t, err, snapshot.ErrEmptyRelationPath)
}

func Test_QualifiedRelationName(t *testing.T) {
	testCases := []struct {
		name     string
		path     []string
		expected string
	}{
		{name: "no path", path: nil, expected: "title"},
		{name: "one hop", path: []string{"author"}, expected: "author_title"},
		{name: "two hops", path: []string{"author", "company"}, expected: "author_company_title"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, snapshot.QualifiedRelationName(tc.path, "title"))
		})
	}
}

func Test_RecordFormatDetection(t *testing.T) {
	testCases := []struct {
		name        string
		raw         string
		isAttribute bool
		isRelated   bool
	}{
		{
			name:        "attribute record",
			raw:         `{"attribute":"title","value":"hello","cast":null}`,
			isAttribute: true,
		},
		{
			name:        "attribute record with cast",
			raw:         `{"attribute":"count","value":3,"cast":"int"}`,
			isAttribute: true,
		},
		{
			name:      "related attribute record",
			raw:       `{"attribute":"name","value":"x","cast":null,"relation_path":["parent"]}`,
			isRelated: true,
		},
		{
			name: "missing cast key",
			raw:  `{"attribute":"title","value":"hello"}`,
		},
		{
			name: "missing value key",
			raw:  `{"attribute":"title","cast":null}`,
		},
		{
			name: "not an object",
			raw:  `["title"]`,
		},
		{
			name: "not json",
			raw:  `title`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.isAttribute, snapshot.IsAttributeRecordFormat([]byte(tc.raw)))
			assert.Equal(t, tc.isRelated, snapshot.IsRelatedAttributeRecordFormat([]byte(tc.raw)))
		})
	}
}
