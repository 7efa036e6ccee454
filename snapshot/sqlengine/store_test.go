package sqlengine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
	"github.com/AntonStoeckl/entity-snapshots-go/snapshot/sqlengine"
	"github.com/AntonStoeckl/entity-snapshots-go/testutil/helper"
)

var testOrigin = snapshot.OriginRef{Type: "root", ID: "1"}

func givenSnapshot(t *testing.T, origin snapshot.OriginRef, version int64, title string) *snapshot.Snapshot {
	t.Helper()

	snap, err := snapshot.NewSnapshot(origin, snapshot.Attributes{
		"title":     snapshot.BuildAttributeRecord("title", title, ""),
		"castable1": snapshot.BuildAttributeRecord("castable1", int64(42), snapshot.CastInt),
	}, nil)
	require.NoError(t, err, "error in arranging test data")

	snap.Version = version

	return snap
}

func givenInsertedSnapshots(t *testing.T, store *sqlengine.Store, origin snapshot.OriginRef, versions ...int64) []*snapshot.Snapshot {
	t.Helper()

	snaps := make([]*snapshot.Snapshot, 0, len(versions))
	for _, version := range versions {
		snap := givenSnapshot(t, origin, version, "title "+string(rune('a'+version)))

		err := store.WithinTx(context.Background(), func(ctx context.Context, tx snapshot.Tx) error {
			return tx.InsertSnapshot(ctx, snap)
		})
		require.NoError(t, err, "error in arranging test data")

		snaps = append(snaps, snap)
	}

	return snaps
}

func Test_Store_InsertAndFindSnapshot(t *testing.T) {
	// arrange
	ctx := context.Background()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db)
	inserted := givenInsertedSnapshots(t, store, testOrigin, 1)[0]

	// act
	found, err := store.FindSnapshot(ctx, inserted.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, found.ID)
	assert.Equal(t, testOrigin, found.Origin())
	assert.Equal(t, int64(1), found.Version)
	assert.Equal(t, "title b", found.Value("title"))
	assert.Equal(t, int64(42), found.Value("castable1"))
	assert.WithinDuration(t, inserted.CreatedAt, found.CreatedAt, time.Millisecond)
	assert.Equal(t, 1, helper.CountSnapshots(t, db))
}

func Test_Store_FindSnapshot_NotFound(t *testing.T) {
	// arrange
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t))

	// act
	found, err := store.FindSnapshot(context.Background(), "missing")

	// assert
	assert.Nil(t, found)
	assert.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
}

func Test_Store_LatestOldestAndList(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t))
	other := snapshot.OriginRef{Type: "root", ID: "2"}
	givenInsertedSnapshots(t, store, testOrigin, 2, 1, 3)
	givenInsertedSnapshots(t, store, other, 7)

	// act
	latest, latestErr := store.LatestSnapshot(ctx, testOrigin)
	oldest, oldestErr := store.OldestSnapshot(ctx, testOrigin)
	all, listErr := store.ListSnapshots(ctx, testOrigin)

	// assert
	require.NoError(t, latestErr)
	require.NoError(t, oldestErr)
	require.NoError(t, listErr)

	assert.Equal(t, int64(3), latest.Version)
	assert.Equal(t, int64(1), oldest.Version)

	versions := make([]int64, 0, len(all))
	for _, snap := range all {
		assert.Equal(t, testOrigin, snap.Origin())
		versions = append(versions, snap.Version)
	}
	assert.Equal(t, []int64{1, 2, 3}, versions)
}

func Test_Store_ListSnapshots_Empty(t *testing.T) {
	// arrange
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t))

	// act
	all, err := store.ListSnapshots(context.Background(), testOrigin)

	// assert
	require.NoError(t, err)
	assert.Empty(t, all)
}

func Test_Store_FindVersion(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t))
	givenInsertedSnapshots(t, store, testOrigin, 1, 2)

	// act
	found, foundErr := store.FindVersion(ctx, testOrigin, 2)
	missing, missingErr := store.FindVersion(ctx, testOrigin, 5)

	// assert
	require.NoError(t, foundErr)
	assert.Equal(t, int64(2), found.Version)
	assert.Nil(t, missing)
	assert.ErrorIs(t, missingErr, snapshot.ErrSnapshotNotFound)
}

func Test_Store_FindNearestVersion(t *testing.T) {
	ctx := context.Background()
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t))
	givenInsertedSnapshots(t, store, testOrigin, 1, 3, 5)

	testCases := []struct {
		name      string
		target    int64
		direction snapshot.StepDirection
		expected  int64
		notFound  bool
	}{
		{name: "rewinding_exact", target: 3, direction: snapshot.Rewinding, expected: 3},
		{name: "rewinding_gap", target: 4, direction: snapshot.Rewinding, expected: 3},
		{name: "rewinding_below_oldest", target: 0, direction: snapshot.Rewinding, notFound: true},
		{name: "forwarding_exact", target: 3, direction: snapshot.Forwarding, expected: 3},
		{name: "forwarding_gap", target: 2, direction: snapshot.Forwarding, expected: 3},
		{name: "forwarding_above_latest", target: 6, direction: snapshot.Forwarding, notFound: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			found, err := store.FindNearestVersion(ctx, testOrigin, tc.target, tc.direction)

			// assert
			if tc.notFound {
				assert.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, found.Version)
		})
	}
}

func Test_Store_InsertSnapshot_DuplicateVersion(t *testing.T) {
	// arrange
	ctx := context.Background()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db)
	givenInsertedSnapshots(t, store, testOrigin, 1)
	duplicate := givenSnapshot(t, testOrigin, 1, "duplicate")

	// act
	err := store.WithinTx(ctx, func(ctx context.Context, tx snapshot.Tx) error {
		return tx.InsertSnapshot(ctx, duplicate)
	})

	// assert
	assert.ErrorIs(t, err, snapshot.ErrSavingSnapshotFailed)
	assert.Equal(t, 1, helper.CountSnapshots(t, db))
}

func Test_Store_WithinTx_RollsBackOnError(t *testing.T) {
	// arrange
	ctx := context.Background()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db)
	failure := errors.New("hook failed")

	snap := givenSnapshot(t, testOrigin, 1, "rolled back")

	// act
	err := store.WithinTx(ctx, func(ctx context.Context, tx snapshot.Tx) error {
		if insertErr := tx.InsertSnapshot(ctx, snap); insertErr != nil {
			return insertErr
		}

		return failure
	})

	// assert
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 0, helper.CountSnapshots(t, db))

	dirty, dirtyErr := snap.Storage().Dirty()
	require.NoError(t, dirtyErr)
	assert.True(t, dirty, "a rolled back write must not become the storage baseline")
}

func Test_Store_WithinTx_CommitMovesStorageBaseline(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t))
	snap := givenSnapshot(t, testOrigin, 1, "committed")

	var dirtyInsideTx bool

	// act
	err := store.WithinTx(ctx, func(ctx context.Context, tx snapshot.Tx) error {
		if insertErr := tx.InsertSnapshot(ctx, snap); insertErr != nil {
			return insertErr
		}

		var dirtyErr error
		dirtyInsideTx, dirtyErr = snap.Storage().Dirty()

		return dirtyErr
	})

	// assert
	require.NoError(t, err)
	assert.True(t, dirtyInsideTx, "the baseline waits for the commit")

	dirty, dirtyErr := snap.Storage().Dirty()
	require.NoError(t, dirtyErr)
	assert.False(t, dirty)
}

func Test_Store_WithinTx_RollsBackOnPanic(t *testing.T) {
	// arrange
	ctx := context.Background()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db)

	// act
	assert.Panics(t, func() {
		_ = store.WithinTx(ctx, func(ctx context.Context, tx snapshot.Tx) error {
			_ = tx.InsertSnapshot(ctx, givenSnapshot(t, testOrigin, 1, "rolled back"))
			panic("boom")
		})
	})

	// assert
	assert.Equal(t, 0, helper.CountSnapshots(t, db))
}

func Test_Tx_MaxVersion(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t))
	givenInsertedSnapshots(t, store, testOrigin, 1, 4, 2)

	var withSnapshots, withoutSnapshots int64

	// act
	err := store.WithinTx(ctx, func(ctx context.Context, tx snapshot.Tx) error {
		var txErr error

		if withSnapshots, txErr = tx.MaxVersion(ctx, testOrigin); txErr != nil {
			return txErr
		}

		withoutSnapshots, txErr = tx.MaxVersion(ctx, snapshot.OriginRef{Type: "root", ID: "99"})

		return txErr
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(4), withSnapshots)
	assert.Equal(t, int64(0), withoutSnapshots)
}

func Test_Store_UpdateSnapshot_PersistsChanges(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t))
	inserted := givenInsertedSnapshots(t, store, testOrigin, 1)[0]

	loaded, err := store.FindSnapshot(ctx, inserted.ID)
	require.NoError(t, err, "error in arranging test data")
	require.NoError(t, loaded.Set("title", "changed"))
	require.NoError(t, loaded.Set("reason", "manual fix"))

	// act
	err = store.UpdateSnapshot(ctx, loaded)

	// assert
	require.NoError(t, err)

	reloaded, err := store.FindSnapshot(ctx, inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", reloaded.Value("title"))
	assert.Equal(t, "manual fix", reloaded.Value("reason"))
	assert.Equal(t, int64(42), reloaded.Value("castable1"))
	assert.Equal(t, int64(1), reloaded.Version)
	assert.False(t, reloaded.UpdatedAt.Before(inserted.UpdatedAt))
}

func Test_Store_UpdateSnapshot_SkipsCleanSnapshot(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t))
	inserted := givenInsertedSnapshots(t, store, testOrigin, 1)[0]

	loaded, err := store.FindSnapshot(ctx, inserted.ID)
	require.NoError(t, err, "error in arranging test data")
	require.NoError(t, store.DeleteSnapshot(ctx, inserted.ID), "error in arranging test data")

	// act
	cleanErr := store.UpdateSnapshot(ctx, loaded)
	require.NoError(t, loaded.Set("title", "changed"))
	dirtyErr := store.UpdateSnapshot(ctx, loaded)

	// assert
	assert.NoError(t, cleanErr, "a clean snapshot must not reach the database")
	assert.ErrorIs(t, dirtyErr, snapshot.ErrSnapshotNotFound)
}

func Test_Store_DeleteSnapshot(t *testing.T) {
	// arrange
	ctx := context.Background()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db)
	inserted := givenInsertedSnapshots(t, store, testOrigin, 1, 2)

	// act
	err := store.DeleteSnapshot(ctx, inserted[0].ID)
	againErr := store.DeleteSnapshot(ctx, inserted[0].ID)

	// assert
	require.NoError(t, err)
	assert.ErrorIs(t, againErr, snapshot.ErrSnapshotNotFound)
	assert.Equal(t, 1, helper.CountSnapshots(t, db))
}

func Test_Store_CustomTableAndOriginColumns(t *testing.T) {
	// arrange
	ctx := context.Background()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db,
		sqlengine.WithTableName("entity_versions"),
		sqlengine.WithOriginColumns("subject_type", "subject_id"),
	)
	require.NoError(t, store.EnsureSchema(ctx), "error in arranging test data")
	require.NoError(t, store.EnsureSchema(ctx), "creating the schema twice must be harmless")

	// act
	givenInsertedSnapshots(t, store, testOrigin, 1, 2)
	latest, err := store.LatestSnapshot(ctx, testOrigin)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Version)
	assert.Equal(t, "entity_versions", store.TableName())
	assert.Equal(t, 0, helper.CountSnapshots(t, db), "the default table stays untouched")

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entity_versions WHERE subject_type = 'root'`).Scan(&count))
	assert.Equal(t, 2, count)
}

/***** Entities *****/

func Test_Store_LoadEntityBy(t *testing.T) {
	// arrange
	ctx := context.Background()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db)
	types := helper.NewFixtureTypes()
	graph := helper.GivenSeededGraph(t, db, helper.GivenFixedClock())

	// act
	entity, err := store.LoadEntityBy(ctx, types.Root, "id", graph.RootID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, types.Root, entity.Type())
	assert.Equal(t, graph.RootID, entity.PrimaryKey())

	attributes := entity.Attributes()
	assert.Equal(t, "value1", attributes["attribute1"])
	assert.Equal(t, int64(42), attributes["castable1"])
	assert.Equal(t, []any{"red", "green"}, attributes["tags"])
	assert.Equal(t, "secret", attributes["hidden1"])
	assert.Nil(t, attributes[helper.RootVersionColumn])
	createdAt, isTime := attributes["created_at"].(time.Time)
	require.True(t, isTime, "created_at must be cast to time.Time")
	assert.True(t, helper.GivenFixedClock().Equal(createdAt))
}

func Test_Store_LoadEntityBy_ForeignKey(t *testing.T) {
	// arrange
	ctx := context.Background()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db)
	types := helper.NewFixtureTypes()
	graph := helper.GivenSeededGraph(t, db, helper.GivenFixedClock())

	// act
	entity, err := store.LoadEntityBy(ctx, types.Detail, "root_id", graph.RootID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, graph.DetailID, entity.PrimaryKey())
	assert.Equal(t, "detail body", entity.Attributes()["body"])
}

func Test_Store_LoadEntityBy_Failures(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t))
	types := helper.NewFixtureTypes()

	// act
	_, missingErr := store.LoadEntityBy(ctx, types.Root, "id", 999)
	_, nilTypeErr := store.LoadEntityBy(ctx, nil, "id", 1)

	// assert
	assert.ErrorIs(t, missingErr, snapshot.ErrEntityNotFound)
	assert.ErrorIs(t, nilTypeErr, sqlengine.ErrNilEntityType)
	assert.ErrorIs(t, nilTypeErr, snapshot.ErrConfiguration)
}

func Test_Store_UpdateEntity(t *testing.T) {
	// arrange
	ctx := context.Background()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db)
	types := helper.NewFixtureTypes()
	graph := helper.GivenSeededGraph(t, db, helper.GivenFixedClock())

	// act
	err := store.UpdateEntity(ctx, types.Root, graph.RootID, map[string]any{
		"attribute1": "updated",
		"castable1":  int64(7),
		"tags":       []any{"blue"},
	})

	// assert
	require.NoError(t, err)

	row := helper.FetchRow(t, db, helper.TableRoots, graph.RootID)
	assert.Equal(t, "updated", row["attribute1"])
	assert.Equal(t, "7", row["castable1"])
	assert.JSONEq(t, `["blue"]`, row["tags"].(string))
	assert.Equal(t, "value2", row["attribute2"], "untouched columns keep their value")
}

func Test_Store_UpdateEntity_Failures(t *testing.T) {
	// arrange
	ctx := context.Background()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db)
	types := helper.NewFixtureTypes()

	// act
	missingErr := store.UpdateEntity(ctx, types.Root, 999, map[string]any{"attribute1": "x"})
	nilTypeErr := store.UpdateEntity(ctx, nil, 1, map[string]any{"attribute1": "x"})
	emptyErr := store.UpdateEntity(ctx, types.Root, 999, nil)
	unknownColumnErr := store.UpdateEntity(ctx, types.Note, 1, map[string]any{"no_such_column": "x"})

	// assert
	assert.ErrorIs(t, missingErr, snapshot.ErrEntityNotFound)
	assert.ErrorIs(t, nilTypeErr, sqlengine.ErrNilEntityType)
	assert.NoError(t, emptyErr, "nothing to write")
	assert.ErrorIs(t, unknownColumnErr, snapshot.ErrUpdatingEntityFailed)
}

func Test_Tx_UpdateEntity_IsPartOfTheTransaction(t *testing.T) {
	// arrange
	ctx := context.Background()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db)
	types := helper.NewFixtureTypes()
	graph := helper.GivenSeededGraph(t, db, helper.GivenFixedClock())
	failure := errors.New("abort")

	// act
	err := store.WithinTx(ctx, func(ctx context.Context, tx snapshot.Tx) error {
		if updateErr := tx.UpdateEntity(ctx, types.Root, graph.RootID, map[string]any{"attribute1": "in tx"}); updateErr != nil {
			return updateErr
		}

		return failure
	})

	// assert
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, "value1", helper.FetchRow(t, db, helper.TableRoots, graph.RootID)["attribute1"])
}

/***** Observability *****/

func Test_Store_Observability(t *testing.T) {
	// arrange
	ctx := context.Background()
	logger, logSpy := helper.NewSpyLogger(false)
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	tracingSpy := helper.NewTracingCollectorSpy(true)
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t),
		sqlengine.WithLogger(logger),
		sqlengine.WithMetrics(metricsSpy),
		sqlengine.WithTracing(tracingSpy),
	)

	// act
	inserted := givenInsertedSnapshots(t, store, testOrigin, 1)[0]
	_, findErr := store.FindSnapshot(ctx, inserted.ID)

	// assert
	require.NoError(t, findErr)

	assert.True(t, logSpy.HasDebugLogWithMessage("executed sql for: insert_snapshot").WithDurationMS().WithAttribute("query").Assert())
	assert.True(t, logSpy.HasInfoLogWithMessage("snapshot store operation: snapshot inserted").
		WithAttributeValue("snapshot_id", inserted.ID).
		WithAttributeValue("origin", "root#1").
		Assert())

	assert.True(t, metricsSpy.HasDurationRecordForMetric("snapshot_store_query_duration_seconds").
		WithOperation("insert_snapshot").WithStatus(snapshot.StatusSuccess).Assert())
	assert.True(t, metricsSpy.HasValueRecordForMetric("snapshot_store_rows").
		WithOperation("find_snapshot").WithStatus(snapshot.StatusSuccess).Assert())
	assert.Equal(t, 0, metricsSpy.CountCounterRecordsForMetric("snapshot_store_errors_total"))

	span, found := tracingSpy.FindSpan("snapshot_store.find_snapshot")
	require.True(t, found)
	assert.Equal(t, "find_snapshot", span.StartAttributes["operation"])
	assert.Equal(t, helper.SnapshotTable, span.StartAttributes["table"])
	assert.Equal(t, snapshot.StatusSuccess, span.Status)
	assert.Equal(t, "1", span.EndAttributes["snapshot_store_rows"])
}

func Test_Store_Observability_DatabaseError(t *testing.T) {
	// arrange
	ctx := context.Background()
	logger, logSpy := helper.NewSpyLogger(false)
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	tracingSpy := helper.NewTracingCollectorSpy(true)
	store := helper.NewSQLiteStore(t, helper.OpenSQLiteMemory(t),
		sqlengine.WithContextualLogger(logger),
		sqlengine.WithMetrics(metricsSpy),
		sqlengine.WithTracing(tracingSpy),
	)

	missingTable := &snapshot.EntityType{Name: "ghost", Table: "ghosts", PrimaryKey: "id", Columns: []string{"name"}}

	// act
	_, err := store.LoadEntityBy(ctx, missingTable, "id", 1)

	// assert
	assert.ErrorIs(t, err, snapshot.ErrLoadingEntityFailed)

	assert.True(t, logSpy.HasErrorLogWithMessage("database query execution failed").WithAttribute("error").Assert())
	assert.True(t, metricsSpy.HasCounterRecordForMetric("snapshot_store_errors_total").
		WithOperation("load_entity").WithErrorType("database").Assert())

	span, found := tracingSpy.FindSpan("snapshot_store.load_entity")
	require.True(t, found)
	assert.Equal(t, snapshot.StatusError, span.Status)
	assert.Equal(t, "database", span.EndAttributes["error_type"])
}

func Test_Store_ReadsUnderLockUseStrongConsistency(t *testing.T) {
	// arrange
	loggerSpy := helper.NewContextualLoggerSpy()
	db := helper.OpenSQLiteMemory(t)
	store := helper.NewSQLiteStore(t, db, sqlengine.WithContextualLogger(loggerSpy))
	types := helper.NewFixtureTypes()
	types.Registry(store)
	graph := helper.GivenSeededGraph(t, db, helper.GivenFixedClock())

	snapshotter, err := snapshot.NewSnapshotter(store)
	require.NoError(t, err, "error in arranging test data")

	ctx := snapshot.WithEventualConsistency(context.Background())
	root := helper.GivenLoadedEntity(t, ctx, types.Root, graph.RootID)

	// act
	_, _, err = snapshotter.TakeSnapshot(ctx, root, snapshot.DefaultDefinition(), nil)

	// assert
	require.NoError(t, err)

	loads := loggerSpy.RecordsWithMessage("debug", "executed sql for: load_entity")
	require.NotEmpty(t, loads)
	assert.Equal(t, snapshot.EventualConsistency, snapshot.GetConsistencyLevel(loads[0].Context),
		"reads outside the snapshotter keep the caller's consistency level")

	maxVersions := loggerSpy.RecordsWithMessage("debug", "executed sql for: max_version")
	require.Len(t, maxVersions, 1)
	assert.Equal(t, snapshot.StrongConsistency, snapshot.GetConsistencyLevel(maxVersions[0].Context))
}
