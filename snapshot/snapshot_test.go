package snapshot_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
	"github.com/AntonStoeckl/entity-snapshots-go/testutil/helper"
)

func Test_NewSnapshot(t *testing.T) {
	// arrange
	origin := snapshot.OriginRef{Type: "root", ID: "3"}
	attributes := snapshot.Attributes{"title": snapshot.BuildAttributeRecord("title", "hello", "")}

	// act
	snap, err := snapshot.NewSnapshot(origin, attributes, nil)

	// assert
	require.NoError(t, err)
	_, parseErr := uuid.Parse(snap.ID)
	assert.NoError(t, parseErr)
	assert.Equal(t, origin, snap.Origin())
	assert.Zero(t, snap.Version, "versions are assigned when the snapshot is stored")
	assert.False(t, snap.CreatedAt.IsZero())
	assert.Equal(t, "hello", snap.Value("title"))
	assert.Nil(t, snap.Value("ghost"))
}

func Test_Snapshot_Origin(t *testing.T) {
	// arrange
	types := helper.NewFixtureTypes()
	root := snapshot.NewRow(types.Root, map[string]any{"id": int64(3)})
	otherRoot := snapshot.NewRow(types.Root, map[string]any{"id": int64(4)})
	note := snapshot.NewRow(types.Note, map[string]any{"id": int64(3)})

	snap, err := snapshot.NewSnapshot(snapshot.OriginOf(root), nil, nil)
	require.NoError(t, err)

	// act & assert
	assert.Equal(t, "root#3", snapshot.OriginOf(root).String())
	assert.True(t, snap.IsOf(root))
	assert.NoError(t, snap.AssertOriginOf(root))

	for _, other := range []snapshot.Entity{otherRoot, note} {
		assert.False(t, snap.IsOf(other))

		err = snap.AssertOriginOf(other)
		assert.ErrorIs(t, err, snapshot.ErrSnapshotOriginMismatch)
		assert.ErrorIs(t, err, snapshot.ErrSnapshotIntegrity)
		assert.ErrorContains(t, err, "root#3")
		assert.ErrorContains(t, err, snapshot.OriginOf(other).String())
	}
}

func Test_Snapshot_SetAndAttributes(t *testing.T) {
	// arrange
	snap, err := snapshot.NewSnapshot(snapshot.OriginRef{Type: "root", ID: "3"}, nil, nil)
	require.NoError(t, err)

	// act
	require.NoError(t, snap.Set("note", "reviewed"))
	attributes, err := snap.Attributes()

	// assert
	require.NoError(t, err)
	assert.Equal(t, "reviewed", attributes["note"].Value())

	record, err := snap.Get("note")
	require.NoError(t, err)
	assert.Equal(t, "note", record.QualifiedName())

	records, err := snap.Records()
	require.NoError(t, err)
	assert.Contains(t, records, "note")
}

func Test_LoadSnapshot_InvalidStorage(t *testing.T) {
	// act
	_, err := snapshot.LoadSnapshot(snapshot.StoredSnapshot{ID: "broken", Storage: []byte(`{"a":1}`)}, nil)

	// assert
	assert.ErrorIs(t, err, snapshot.ErrInvalidRecordStructure)
	assert.ErrorContains(t, err, "broken")
}
