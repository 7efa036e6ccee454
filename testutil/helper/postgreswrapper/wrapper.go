// Package postgreswrapper runs the integration tests against PostgreSQL with the adapter type chosen by ADAPTER_TYPE.
package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot/sqlengine"
	"github.com/AntonStoeckl/entity-snapshots-go/testutil/postgres/config"
)

// Engine type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

// SnapshotTable is the snapshot table the wrapper creates.
const SnapshotTable = "model_snapshots"

// Wrapper abstracts over the different adapter types.
type Wrapper interface {
	GetStore() *sqlengine.Store
	Exec(ctx context.Context, query string, args ...any) error
	QueryInt64(ctx context.Context, query string, args ...any) (int64, error)
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	pool  *pgxpool.Pool
	store *sqlengine.Store
}

func (w *PGXPoolWrapper) GetStore() *sqlengine.Store {
	return w.store
}

// Pool exposes the pool, e.g. for an AdvisoryLocker.
func (w *PGXPoolWrapper) Pool() *pgxpool.Pool {
	return w.pool
}

func (w *PGXPoolWrapper) Exec(ctx context.Context, query string, args ...any) error {
	_, err := w.pool.Exec(ctx, query, args...)
	return err
}

func (w *PGXPoolWrapper) QueryInt64(ctx context.Context, query string, args ...any) (int64, error) {
	var value int64
	err := w.pool.QueryRow(ctx, query, args...).Scan(&value)

	return value, err
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	db    *sql.DB
	store *sqlengine.Store
}

func (w *SQLDBWrapper) GetStore() *sqlengine.Store {
	return w.store
}

func (w *SQLDBWrapper) Exec(ctx context.Context, query string, args ...any) error {
	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

func (w *SQLDBWrapper) QueryInt64(ctx context.Context, query string, args ...any) (int64, error) {
	var value int64
	err := w.db.QueryRowContext(ctx, query, args...).Scan(&value)

	return value, err
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	db    *sqlx.DB
	store *sqlengine.Store
}

func (w *SQLXWrapper) GetStore() *sqlengine.Store {
	return w.store
}

func (w *SQLXWrapper) Exec(ctx context.Context, query string, args ...any) error {
	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

func (w *SQLXWrapper) QueryInt64(ctx context.Context, query string, args ...any) (int64, error) {
	var value int64
	err := w.db.QueryRowxContext(ctx, query, args...).Scan(&value)

	return value, err
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SkipUnlessEnabled skips the test when no Postgres DSN is configured.
func SkipUnlessEnabled(t testing.TB) {
	if !config.PostgresEnabled() {
		t.Skipf("set %s to run the postgres integration tests", config.EnvPostgresDSN)
	}
}

// CreateWrapperWithTestConfig creates the appropriate wrapper based on the environment variable
// and (re)creates the fixture tables and the snapshot table.
func CreateWrapperWithTestConfig(t testing.TB, options ...sqlengine.Option) Wrapper {
	SkipUnlessEnabled(t)

	engineTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	var wrapper Wrapper

	switch engineTypeFromEnv {
	case typePGXPool, "":
		connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolTestConfig())
		require.NoError(t, err, "error connecting to DB pool in test setup")

		store, err := sqlengine.NewStoreFromPGXPool(connPool, options...)
		require.NoError(t, err, "error creating snapshot store")

		wrapper = &PGXPoolWrapper{pool: connPool, store: store}

	case typeSQLDB:
		db := config.PostgresSQLDBTestConfig()

		store, err := sqlengine.NewStoreFromSQLDB(db, options...)
		require.NoError(t, err, "error creating snapshot store")

		wrapper = &SQLDBWrapper{db: db, store: store}

	case typeSQLXDB:
		db := config.PostgresSQLXTestConfig()

		store, err := sqlengine.NewStoreFromSQLX(db, options...)
		require.NoError(t, err, "error creating snapshot store")

		wrapper = &SQLXWrapper{db: db, store: store}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", engineTypeFromEnv))
	}

	t.Cleanup(wrapper.Close)

	resetSchema(t, wrapper)

	return wrapper
}

func resetSchema(t testing.TB, wrapper Wrapper) {
	ctx := context.Background()

	for _, statement := range strings.Split(postgresFixtureSchema, ";") {
		if strings.TrimSpace(statement) == "" {
			continue
		}

		require.NoError(t, wrapper.Exec(ctx, statement), "error in creating the fixture schema")
	}

	require.NoError(t, wrapper.Exec(ctx, "DROP TABLE IF EXISTS "+SnapshotTable))
	require.NoError(t, wrapper.GetStore().EnsureSchema(ctx), "error in creating the snapshot table")
}

// InsertRow inserts one row and returns its generated id.
func InsertRow(t testing.TB, wrapper Wrapper, table string, row map[string]any) int64 {
	query, args, err := goqu.Dialect(sqlengine.DialectPostgres).
		Insert(table).
		Prepared(true).
		Rows(goqu.Record(row)).
		Returning("id").
		ToSQL()
	require.NoError(t, err, "error in building the insert query")

	id, err := wrapper.QueryInt64(context.Background(), query, args...)
	require.NoError(t, err, "error in inserting test data")

	return id
}

// CountSnapshots returns the number of rows in the snapshot table.
func CountSnapshots(t testing.TB, wrapper Wrapper) int64 {
	count, err := wrapper.QueryInt64(context.Background(), "SELECT COUNT(*) FROM "+SnapshotTable)
	require.NoError(t, err, "error in counting snapshots")

	return count
}

const postgresFixtureSchema = `
DROP TABLE IF EXISTS grandparents, parents, another_parents, roots, details, children, notes;
CREATE TABLE grandparents (
	id BIGSERIAL PRIMARY KEY,
	name TEXT,
	created_at TIMESTAMP WITH TIME ZONE,
	updated_at TIMESTAMP WITH TIME ZONE
);
CREATE TABLE parents (
	id BIGSERIAL PRIMARY KEY,
	name TEXT,
	castable1 TEXT,
	grandparent_id BIGINT,
	created_at TIMESTAMP WITH TIME ZONE,
	updated_at TIMESTAMP WITH TIME ZONE
);
CREATE TABLE another_parents (
	id BIGSERIAL PRIMARY KEY,
	label TEXT,
	created_at TIMESTAMP WITH TIME ZONE,
	updated_at TIMESTAMP WITH TIME ZONE
);
CREATE TABLE roots (
	id BIGSERIAL PRIMARY KEY,
	attribute1 TEXT,
	attribute2 TEXT,
	attribute3 TEXT,
	castable1 TEXT,
	hidden1 TEXT,
	tags TEXT,
	parent_id BIGINT,
	another_parent_id BIGINT,
	current_version BIGINT NULL,
	created_at TIMESTAMP WITH TIME ZONE,
	updated_at TIMESTAMP WITH TIME ZONE
);
CREATE TABLE details (
	id BIGSERIAL PRIMARY KEY,
	root_id BIGINT,
	body TEXT,
	created_at TIMESTAMP WITH TIME ZONE,
	updated_at TIMESTAMP WITH TIME ZONE
);
CREATE TABLE children (
	id BIGSERIAL PRIMARY KEY,
	root_id BIGINT,
	name TEXT
);
CREATE TABLE notes (
	id BIGSERIAL PRIMARY KEY,
	body TEXT
);
`
