package helper

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect registration
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // database/sql driver "sqlite"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot/sqlengine"
)

// SnapshotTable is the snapshot table created in every SQLite test database.
const SnapshotTable = "model_snapshots"

// OpenSQLiteMemory opens a private in-memory SQLite database holding the fixture tables and the snapshot table.
// The database is closed when the test ends.
func OpenSQLiteMemory(t testing.TB) *sql.DB {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_time_format=sqlite"

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err, "error in opening the sqlite test database")

	// one connection keeps the in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close() // ignore error
	})

	snapshotDDL, err := sqlengine.CreateSnapshotTableSQL(sqlengine.DialectSQLite, SnapshotTable)
	require.NoError(t, err, "error in building the snapshot table ddl")

	for _, statement := range append(strings.Split(fixtureSchema, ";"), snapshotDDL) {
		if strings.TrimSpace(statement) == "" {
			continue
		}

		_, err = db.Exec(statement)
		require.NoError(t, err, "error in creating the sqlite test schema")
	}

	return db
}

// NewSQLiteStore creates a Store on a database opened with OpenSQLiteMemory.
func NewSQLiteStore(t testing.TB, db *sql.DB, options ...sqlengine.Option) *sqlengine.Store {
	options = append([]sqlengine.Option{sqlengine.WithDialect(sqlengine.DialectSQLite)}, options...)

	store, err := sqlengine.NewStoreFromSQLDB(db, options...)
	require.NoError(t, err, "error in creating the sqlite store")

	return store
}

// InsertRow inserts one row and returns its generated id.
func InsertRow(t testing.TB, db *sql.DB, table string, row map[string]any) int64 {
	query, args, err := goqu.Dialect(sqlengine.DialectSQLite).
		Insert(table).
		Prepared(true).
		Rows(goqu.Record(row)).
		ToSQL()
	require.NoError(t, err, "error in building the insert query")

	result, err := db.Exec(query, args...)
	require.NoError(t, err, "error in inserting test data")

	id, err := result.LastInsertId()
	require.NoError(t, err, "error in reading the inserted id")

	return id
}

// FetchRow reads one row by id with plain driver values, text as string.
func FetchRow(t testing.TB, db *sql.DB, table string, id any) map[string]any {
	query, args, err := goqu.Dialect(sqlengine.DialectSQLite).
		From(table).
		Prepared(true).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	require.NoError(t, err, "error in building the select query")

	rows, err := db.Query(query, args...)
	require.NoError(t, err, "error in querying test data")
	defer func() {
		_ = rows.Close() // ignore error
	}()

	columns, err := rows.Columns()
	require.NoError(t, err)
	require.True(t, rows.Next(), "no %s row with id %v", table, id)

	values := make([]any, len(columns))
	targets := make([]any, len(columns))
	for i := range values {
		targets[i] = &values[i]
	}

	require.NoError(t, rows.Scan(targets...))

	row := make(map[string]any, len(columns))
	for i, column := range columns {
		if raw, ok := values[i].([]byte); ok {
			row[column] = string(raw)
			continue
		}

		row[column] = values[i]
	}

	return row
}

// CountSnapshots returns the number of rows in the snapshot table.
func CountSnapshots(t testing.TB, db *sql.DB) int {
	var count int

	err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+SnapshotTable).Scan(&count)
	require.NoError(t, err, "error in counting snapshots")

	return count
}

// SeededGraph holds the ids of the rows inserted by GivenSeededGraph.
type SeededGraph struct {
	GrandparentID   int64
	ParentID        int64
	AnotherParentID int64
	RootID          int64
	DetailID        int64
	ChildIDs        []int64
}

// GivenSeededGraph inserts one complete fixture graph around a root with a null version column.
func GivenSeededGraph(t testing.TB, db *sql.DB, clock time.Time) SeededGraph {
	var graph SeededGraph

	graph.GrandparentID = InsertRow(t, db, TableGrandparents, map[string]any{
		"name":       "grandparent name",
		"created_at": clock,
		"updated_at": clock,
	})

	graph.ParentID = InsertRow(t, db, TableParents, map[string]any{
		"name":           "parent name",
		"castable1":      "7",
		"grandparent_id": graph.GrandparentID,
		"created_at":     clock,
		"updated_at":     clock,
	})

	graph.AnotherParentID = InsertRow(t, db, TableAnotherParents, map[string]any{
		"label":      "another parent label",
		"created_at": clock,
		"updated_at": clock,
	})

	graph.RootID = InsertRow(t, db, TableRoots, map[string]any{
		"attribute1":        "value1",
		"attribute2":        "value2",
		"attribute3":        "value3",
		"castable1":         "42",
		"hidden1":           "secret",
		"tags":              `["red","green"]`,
		"parent_id":         graph.ParentID,
		"another_parent_id": graph.AnotherParentID,
		"created_at":        clock,
		"updated_at":        clock,
	})

	graph.DetailID = InsertRow(t, db, TableDetails, map[string]any{
		"root_id":    graph.RootID,
		"body":       "detail body",
		"created_at": clock,
		"updated_at": clock,
	})

	for _, name := range []string{"first child", "second child"} {
		graph.ChildIDs = append(graph.ChildIDs, InsertRow(t, db, TableChildren, map[string]any{
			"root_id": graph.RootID,
			"name":    name,
		}))
	}

	return graph
}
