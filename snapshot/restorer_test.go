package snapshot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
	"github.com/AntonStoeckl/entity-snapshots-go/testutil/helper"
)

func givenCapturedSnapshot(t *testing.T, graph memoryGraph, def snapshot.Definition) *snapshot.Snapshot {
	t.Helper()

	attributes, err := snapshot.NewCollector(snapshot.DefaultTimestampPrefix).Collect(context.Background(), graph.root, def, nil)
	require.NoError(t, err, "error in arranging test data")

	snap, err := snapshot.NewSnapshot(snapshot.OriginOf(graph.root), attributes, nil)
	require.NoError(t, err, "error in arranging test data")

	payload, err := snap.Storage().Payload()
	require.NoError(t, err, "error in arranging test data")

	// what the store would hand back
	loaded, err := snapshot.LoadSnapshot(snapshot.StoredSnapshot{
		ID:         snap.ID,
		OriginType: snap.OriginType,
		OriginID:   snap.OriginID,
		Storage:    payload,
		Version:    1,
	}, nil)
	require.NoError(t, err, "error in arranging test data")

	return loaded
}

func givenChangedRoot(t *testing.T, graph memoryGraph, changes map[string]any) {
	t.Helper()

	require.NoError(t, graph.entities.UpdateEntity(context.Background(), graph.types.Root, int64(3), changes))
	graph.root.SetAttributes(changes)
}

func Test_Restorer_RestoresOwnAttributes(t *testing.T) {
	// arrange
	ctx := context.Background()
	graph := givenMemoryGraph(t)
	snap := givenCapturedSnapshot(t, graph, snapshot.DefaultDefinition())
	givenChangedRoot(t, graph, map[string]any{"attribute1": "changed", "hidden1": "changed"})

	// act
	restored, err := snapshot.NewRestorer(snapshot.DefaultTimestampPrefix, nil).Restore(ctx, graph.entities, graph.root, snap, false)

	// assert
	require.NoError(t, err)
	assert.Same(t, graph.root, restored)

	stored := graph.entities.Stored(graph.types.Root, int64(3))
	assert.Equal(t, "value1", stored["attribute1"])
	assert.Equal(t, "changed", stored["hidden1"], "hidden attributes are only restored when captured")
	assert.Equal(t, "value1", graph.root.Get("attribute1"), "the live entity is hydrated")

	updates := graph.entities.Updates()
	require.Len(t, updates, 2)
	assert.Equal(t, helper.TableRoots, updates[1].Table)
	assert.NotContains(t, updates[1].Attributes, "id")
	assert.NotContains(t, updates[1].Attributes, "created_at", "timestamps are not writable columns")
	assert.NotContains(t, updates[1].Attributes, "origin_created_at")
	assert.NotContains(t, updates[1].Attributes, helper.RootVersionColumn)
}

func Test_Restorer_CastsByTargetType(t *testing.T) {
	// arrange
	graph := givenMemoryGraph(t)
	snap := givenCapturedSnapshot(t, graph, snapshot.DefaultDefinition())

	// act
	plan, err := snapshot.NewRestorer(snapshot.DefaultTimestampPrefix, nil).Plan(context.Background(), graph.root, snap, false)

	// assert
	require.NoError(t, err)
	attributes := plan.OriginAttributes()
	assert.Equal(t, int64(42), attributes["castable1"], "untagged values get the target's declared cast")
	assert.Equal(t, []any{"red", "green"}, attributes["tags"])
	assert.Equal(t, int64(2), attributes["parent_id"])
}

func Test_Restorer_TimestampsWhenListedAsColumns(t *testing.T) {
	// arrange
	graph := givenMemoryGraph(t)
	graph.types.Root.Columns = append(graph.types.Root.Columns, "updated_at")
	snap := givenCapturedSnapshot(t, graph, snapshot.DefaultDefinition())

	// act
	plan, err := snapshot.NewRestorer(snapshot.DefaultTimestampPrefix, nil).Plan(context.Background(), graph.root, snap, false)

	// assert
	require.NoError(t, err)
	attributes := plan.OriginAttributes()
	require.Contains(t, attributes, "updated_at", "the prefix is stripped before the writable check")
	updatedAt, ok := attributes["updated_at"].(time.Time)
	require.True(t, ok)
	assert.True(t, helper.GivenFixedClock().Equal(updatedAt))
	assert.NotContains(t, attributes, "created_at")
}

func Test_Restorer_RestoresRelatedEntities(t *testing.T) {
	// arrange
	ctx := context.Background()
	graph := givenMemoryGraph(t)
	def := snapshot.BuildDefinition().
		WithRelation("parent", snapshot.BuildDefinition().
			Capture("name", "castable1").
			WithRelation("parent", snapshot.BuildDefinition().Capture("name").Finalize()).
			Finalize()).
		WithRelation("detail", snapshot.BuildDefinition().Capture("body").Finalize()).
		Finalize()
	snap := givenCapturedSnapshot(t, graph, def)

	require.NoError(t, graph.entities.UpdateEntity(ctx, graph.types.Parent, int64(2), map[string]any{"name": "changed", "castable1": int64(0)}))
	require.NoError(t, graph.entities.UpdateEntity(ctx, graph.types.Grandparent, int64(1), map[string]any{"name": "changed"}))
	require.NoError(t, graph.entities.UpdateEntity(ctx, graph.types.Detail, int64(4), map[string]any{"body": "changed"}))

	// act
	plan, err := snapshot.NewRestorer(snapshot.DefaultTimestampPrefix, nil).Plan(ctx, graph.root, snap, true)
	require.NoError(t, err)
	applyErr := plan.Apply(ctx, graph.entities)

	// assert
	require.NoError(t, applyErr)
	assert.Equal(t, []string{"detail", "parent", "parent.parent"}, plan.RelatedPaths())
	assert.Equal(t, "parent name", graph.entities.Stored(graph.types.Parent, int64(2))["name"])
	assert.Equal(t, int64(7), graph.entities.Stored(graph.types.Parent, int64(2))["castable1"])
	assert.Equal(t, "grandparent name", graph.entities.Stored(graph.types.Grandparent, int64(1))["name"])
	assert.Equal(t, "detail body", graph.entities.Stored(graph.types.Detail, int64(4))["body"])
}

func Test_Restorer_SkipsRelatedRowsThatWereReassigned(t *testing.T) {
	// arrange
	ctx := context.Background()
	graph := givenMemoryGraph(t)
	def := snapshot.BuildDefinition().
		WithRelation("parent", snapshot.BuildDefinition().Capture("name").Finalize()).
		WithRelation("detail", snapshot.BuildDefinition().Capture("body").Finalize()).
		Finalize()
	snap := givenCapturedSnapshot(t, graph, def)

	graph.entities.Put(graph.types.Parent, map[string]any{"id": int64(9), "name": "other parent"})
	givenChangedRoot(t, graph, map[string]any{"parent_id": int64(9)})
	require.NoError(t, graph.entities.UpdateEntity(ctx, graph.types.Detail, int64(4), map[string]any{"body": "changed"}))

	// act
	_, err := snapshot.NewRestorer(snapshot.DefaultTimestampPrefix, nil).Restore(ctx, graph.entities, graph.root, snap, true)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "other parent", graph.entities.Stored(graph.types.Parent, int64(9))["name"],
		"a row that was not captured must not receive the captured data")
	assert.Equal(t, "parent name", graph.entities.Stored(graph.types.Parent, int64(2))["name"])
	assert.Equal(t, "detail body", graph.entities.Stored(graph.types.Detail, int64(4))["body"],
		"related rows that still match their captured key are restored")

	plan, err := snapshot.NewRestorer(snapshot.DefaultTimestampPrefix, nil).Plan(ctx, graph.root, snap, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"detail"}, plan.RelatedPaths())
}

func Test_Restorer_WithoutRelated_LeavesRelatedEntities(t *testing.T) {
	// arrange
	ctx := context.Background()
	graph := givenMemoryGraph(t)
	def := snapshot.BuildDefinition().WithRelation("parent", snapshot.DefaultDefinition()).Finalize()
	snap := givenCapturedSnapshot(t, graph, def)
	require.NoError(t, graph.entities.UpdateEntity(ctx, graph.types.Parent, int64(2), map[string]any{"name": "changed"}))

	// act
	_, err := snapshot.NewRestorer(snapshot.DefaultTimestampPrefix, nil).Restore(ctx, graph.entities, graph.root, snap, false)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "changed", graph.entities.Stored(graph.types.Parent, int64(2))["name"])
}

func Test_Restorer_SkipsRelationsThatNoLongerResolve(t *testing.T) {
	// arrange
	ctx := context.Background()
	graph := givenMemoryGraph(t)
	def := snapshot.BuildDefinition().WithRelation("detail", snapshot.DefaultDefinition()).Finalize()
	snap := givenCapturedSnapshot(t, graph, def)
	graph.entities.Remove(graph.types.Detail, int64(4))

	// act
	plan, err := snapshot.NewRestorer(snapshot.DefaultTimestampPrefix, nil).Plan(ctx, graph.root, snap, true)

	// assert
	require.NoError(t, err)
	assert.Empty(t, plan.RelatedPaths())
}

func Test_Restorer_SkipsRelationsThatAreNoLongerRegistered(t *testing.T) {
	// arrange
	ctx := context.Background()
	graph := givenMemoryGraph(t)
	def := snapshot.BuildDefinition().WithRelation("detail", snapshot.DefaultDefinition()).Finalize()
	snap := givenCapturedSnapshot(t, graph, def)

	withoutRelations := &snapshot.EntityType{
		Name:       graph.types.Root.Name,
		Table:      graph.types.Root.Table,
		PrimaryKey: graph.types.Root.PrimaryKey,
		Columns:    graph.types.Root.Columns,
		Casts:      graph.types.Root.Casts,
		Loader:     graph.entities,
	}
	target := snapshot.NewRow(withoutRelations, graph.root.Attributes())

	// act
	plan, err := snapshot.NewRestorer(snapshot.DefaultTimestampPrefix, nil).Plan(ctx, target, snap, true)

	// assert
	require.NoError(t, err)
	assert.Empty(t, plan.RelatedPaths())
}

func Test_Restorer_ApplyFailure(t *testing.T) {
	// arrange
	ctx := context.Background()
	graph := givenMemoryGraph(t)
	snap := givenCapturedSnapshot(t, graph, snapshot.DefaultDefinition())
	graph.entities.FailUpdatesOf(helper.TableRoots, errors.New("disk full"))

	// act
	_, err := snapshot.NewRestorer(snapshot.DefaultTimestampPrefix, nil).Restore(ctx, graph.entities, graph.root, snap, false)

	// assert
	assert.ErrorIs(t, err, snapshot.ErrUpdatingEntityFailed)
	assert.ErrorContains(t, err, "disk full")
}

func Test_RestorePlan_SetOriginAttribute(t *testing.T) {
	// arrange
	graph := givenMemoryGraph(t)
	snap := givenCapturedSnapshot(t, graph, snapshot.DefaultDefinition())
	plan, err := snapshot.NewRestorer(snapshot.DefaultTimestampPrefix, nil).Plan(context.Background(), graph.root, snap, false)
	require.NoError(t, err)

	// act
	plan.SetOriginAttribute(helper.RootVersionColumn, int64(3))
	plan.Hydrate()

	// assert
	assert.Equal(t, int64(3), plan.OriginAttributes()[helper.RootVersionColumn])
	assert.Equal(t, int64(3), graph.root.Get(helper.RootVersionColumn))
}
