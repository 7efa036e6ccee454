package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
	"github.com/AntonStoeckl/entity-snapshots-go/snapshot/sqlengine/internal/adapters"
)

const (
	defaultTableName = "model_snapshots"

	colID         = "id"
	colOriginType = "origin_type"
	colOriginID   = "origin_id"
	colStorage    = "storage"
	colVersion    = "version"
	colCreatedAt  = "created_at"
	colUpdatedAt  = "updated_at"
)

// executor is satisfied by both the connection adapter and a running transaction.
type executor interface {
	Query(ctx context.Context, query string, args ...any) (adapters.DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (adapters.DBResult, error)
}

// Store persists snapshots in one SQL table and reads and writes origin entity rows.
// It implements snapshot.Store, snapshot.EntityLoader and, inside WithinTx, snapshot.Tx.
type Store struct {
	db               adapters.DBAdapter
	dialect          string
	tableName        string
	colOriginType    string
	colOriginID      string
	casts            *snapshot.CastRegistry
	logger           snapshot.Logger
	contextualLogger snapshot.ContextualLogger
	metricsCollector snapshot.MetricsCollector
	tracingCollector snapshot.TracingCollector
}

// NewStoreFromPGXPool creates a new Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, snapshot.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromPGXPoolWithReplica creates a new Store using a primary pgx Pool and a replica Pool.
// Reads made with snapshot.WithEventualConsistency go to the replica, everything else to the primary.
func NewStoreFromPGXPoolWithReplica(primary *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Store, error) {
	if primary == nil {
		return nil, snapshot.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapterWithReplica(primary, replica), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, snapshot.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, snapshot.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	s := &Store{
		db:            db,
		dialect:       DialectPostgres,
		tableName:     defaultTableName,
		colOriginType: colOriginType,
		colOriginID:   colOriginID,
		casts:         snapshot.DefaultCastRegistry(),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// TableName returns the configured snapshot table.
func (s *Store) TableName() string {
	return s.tableName
}

// Dialect returns the configured goqu dialect name.
func (s *Store) Dialect() string {
	return s.dialect
}

/***** Transactions *****/

// WithinTx runs fn in one database transaction. It commits when fn returns nil and rolls back otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx snapshot.Tx) error) error {
	dbTx, beginErr := s.db.Begin(ctx)
	if beginErr != nil {
		s.logError(ctx, logMsgBeginTxFailed, beginErr)
		return errors.Join(snapshot.ErrTransactionFailed, beginErr)
	}

	defer func() {
		if p := recover(); p != nil {
			s.rollback(ctx, dbTx)
			panic(p)
		}
	}()

	tx := &Tx{store: s, exec: dbTx}

	if fnErr := fn(ctx, tx); fnErr != nil {
		s.rollback(ctx, dbTx)
		return fnErr
	}

	if commitErr := dbTx.Commit(ctx); commitErr != nil {
		s.logError(ctx, logMsgCommitTxFailed, commitErr)
		return errors.Join(snapshot.ErrTransactionFailed, commitErr)
	}

	tx.committed()

	return nil
}

func (s *Store) rollback(ctx context.Context, dbTx adapters.DBTx) {
	if rollbackErr := dbTx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
		s.logWarn(ctx, logMsgRollbackFailed, logAttrError, rollbackErr.Error())
	}
}

/***** Snapshot reads *****/

// FindSnapshot returns the snapshot with the given id.
func (s *Store) FindSnapshot(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	return s.findOne(ctx, operationFind, goqu.C(colID).Eq(id), nil)
}

// LatestSnapshot returns the snapshot of origin with the highest version.
func (s *Store) LatestSnapshot(ctx context.Context, origin snapshot.OriginRef) (*snapshot.Snapshot, error) {
	return s.findOne(ctx, operationLatest, s.originExpression(origin), goqu.C(colVersion).Desc())
}

// OldestSnapshot returns the snapshot of origin with the lowest version.
func (s *Store) OldestSnapshot(ctx context.Context, origin snapshot.OriginRef) (*snapshot.Snapshot, error) {
	return s.findOne(ctx, operationOldest, s.originExpression(origin), goqu.C(colVersion).Asc())
}

// ListSnapshots returns all snapshots of origin ordered by version ascending.
func (s *Store) ListSnapshots(ctx context.Context, origin snapshot.OriginRef) ([]*snapshot.Snapshot, error) {
	query, args, err := s.selectSnapshots(ctx, s.originExpression(origin), goqu.C(colVersion).Asc(), 0)
	if err != nil {
		return nil, err
	}

	return s.querySnapshots(ctx, s.db, operationList, query, args)
}

// FindVersion returns the snapshot of origin with exactly the given version.
func (s *Store) FindVersion(ctx context.Context, origin snapshot.OriginRef, version int64) (*snapshot.Snapshot, error) {
	where := goqu.And(s.originExpression(origin), goqu.C(colVersion).Eq(version))

	return s.findOne(ctx, operationFindVersion, where, nil)
}

// FindNearestVersion returns the snapshot closest to target on the side given by direction,
// the target itself included.
func (s *Store) FindNearestVersion(
	ctx context.Context,
	origin snapshot.OriginRef,
	target int64,
	direction snapshot.StepDirection,
) (*snapshot.Snapshot, error) {

	if direction == snapshot.Forwarding {
		where := goqu.And(s.originExpression(origin), goqu.C(colVersion).Gte(target))
		return s.findOne(ctx, operationFindNearest, where, goqu.C(colVersion).Asc())
	}

	where := goqu.And(s.originExpression(origin), goqu.C(colVersion).Lte(target))

	return s.findOne(ctx, operationFindNearest, where, goqu.C(colVersion).Desc())
}

func (s *Store) findOne(
	ctx context.Context,
	operation string,
	where exp.Expression,
	order exp.OrderedExpression,
) (*snapshot.Snapshot, error) {

	query, args, err := s.selectSnapshots(ctx, where, order, 1)
	if err != nil {
		return nil, err
	}

	snaps, err := s.querySnapshots(ctx, s.db, operation, query, args)
	if err != nil {
		return nil, err
	}

	if len(snaps) == 0 {
		return nil, errors.Join(snapshot.ErrSnapshotNotFound, fmt.Errorf("table %s: %s", s.tableName, operation))
	}

	return snaps[0], nil
}

func (s *Store) originExpression(origin snapshot.OriginRef) exp.Expression {
	return goqu.Ex{
		s.colOriginType: origin.Type,
		s.colOriginID:   origin.ID,
	}
}

func (s *Store) selectSnapshots(
	ctx context.Context,
	where exp.Expression,
	order exp.OrderedExpression,
	limit uint,
) (string, []any, error) {

	selectStmt := goqu.Dialect(s.dialect).
		From(s.tableName).
		Prepared(true).
		Select(colID, s.colOriginType, s.colOriginID, colStorage, colVersion, colCreatedAt, colUpdatedAt).
		Where(where)

	if order != nil {
		selectStmt = selectStmt.Order(order)
	}

	if limit > 0 {
		selectStmt = selectStmt.Limit(limit)
	}

	query, args, err := selectStmt.ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildSelectQueryFailed, err)
		return "", nil, errors.Join(snapshot.ErrBuildingQueryFailed, err)
	}

	return query, args, nil
}

func (s *Store) querySnapshots(
	ctx context.Context,
	exec executor,
	operation string,
	query string,
	args []any,
) ([]*snapshot.Snapshot, error) {

	observer, ctx := s.startObserving(ctx, operation)

	rows, err := exec.Query(ctx, query, args...)
	s.logQueryWithDuration(ctx, query, operation, observer.elapsed())

	if err != nil {
		s.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, query)
		err = errors.Join(snapshot.ErrQueryingSnapshotsFailed, err)
		observer.failed(err)

		return nil, err
	}
	defer s.closeRows(ctx, rows)

	snaps := make([]*snapshot.Snapshot, 0)

	for rows.Next() {
		var row snapshot.StoredSnapshot
		var createdAt, updatedAt timeValue

		if scanErr := rows.Scan(
			&row.ID, &row.OriginType, &row.OriginID, &row.Storage, &row.Version, &createdAt, &updatedAt,
		); scanErr != nil {
			s.logError(ctx, logMsgScanRowFailed, scanErr)
			scanErr = errors.Join(snapshot.ErrScanningDBRowFailed, scanErr)
			observer.failed(scanErr)

			return nil, scanErr
		}

		row.CreatedAt = createdAt.time
		row.UpdatedAt = updatedAt.time

		snap, loadErr := snapshot.LoadSnapshot(row, s.casts)
		if loadErr != nil {
			s.logError(ctx, logMsgLoadSnapshotFailed, loadErr, logAttrSnapshotID, row.ID)
			observer.failed(loadErr)

			return nil, loadErr
		}

		snaps = append(snaps, snap)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		rowsErr = errors.Join(snapshot.ErrQueryingSnapshotsFailed, rowsErr)
		observer.failed(rowsErr)

		return nil, rowsErr
	}

	observer.succeeded(len(snaps))

	return snaps, nil
}

// closeRows safely closes database rows and logs any errors.
func (s *Store) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

/***** Snapshot writes *****/

// UpdateSnapshot persists direct attribute changes of an existing snapshot. A clean snapshot is not written.
func (s *Store) UpdateSnapshot(ctx context.Context, snap *snapshot.Snapshot) error {
	dirty, err := snap.Storage().Dirty()
	if err != nil {
		return errors.Join(snapshot.ErrSavingSnapshotFailed, err)
	}

	if !dirty {
		return nil
	}

	payload, err := snap.Storage().Payload()
	if err != nil {
		return errors.Join(snapshot.ErrSavingSnapshotFailed, err)
	}

	now := time.Now().UTC()

	updateStmt := goqu.Dialect(s.dialect).
		Update(s.tableName).
		Prepared(true).
		Set(goqu.Record{colStorage: string(payload), colUpdatedAt: now}).
		Where(goqu.C(colID).Eq(snap.ID))

	if err = s.execAffectingOne(ctx, s.db, operationUpdate, updateStmt, snap.ID); err != nil {
		return err
	}

	snap.Storage().AfterWrite()
	snap.UpdatedAt = now

	return nil
}

// DeleteSnapshot removes the snapshot with the given id.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	deleteStmt := goqu.Dialect(s.dialect).
		Delete(s.tableName).
		Prepared(true).
		Where(goqu.C(colID).Eq(id))

	return s.execAffectingOne(ctx, s.db, operationDelete, deleteStmt, id)
}

type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func (s *Store) execAffectingOne(ctx context.Context, exec executor, operation string, stmt sqlBuilder, id string) error {
	query, args, err := stmt.ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildWriteQueryFailed, err)
		return errors.Join(snapshot.ErrBuildingQueryFailed, err)
	}

	rowsAffected, err := s.exec(ctx, exec, operation, query, args, snapshot.ErrSavingSnapshotFailed)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return errors.Join(snapshot.ErrSnapshotNotFound, fmt.Errorf("table %s: id %s", s.tableName, id))
	}

	return nil
}

func (s *Store) exec(
	ctx context.Context,
	exec executor,
	operation string,
	query string,
	args []any,
	failure error,
) (int64, error) {

	observer, ctx := s.startObserving(ctx, operation)

	result, err := exec.Exec(ctx, query, args...)
	s.logQueryWithDuration(ctx, query, operation, observer.elapsed())

	if err != nil {
		s.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, query)
		err = errors.Join(failure, err)
		observer.failed(err)

		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logError(ctx, logMsgRowsAffectedFailed, err)
		err = errors.Join(failure, err)
		observer.failed(err)

		return 0, err
	}

	observer.succeeded(int(rowsAffected))

	return rowsAffected, nil
}

/***** Scanning *****/

// timeValue scans timestamps delivered as time.Time (pgx, lib/pq) or as text (SQLite).
type timeValue struct {
	time time.Time
}

func (t *timeValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.time = time.Time{}
	case time.Time:
		t.time = v.UTC()
	case string:
		parsed, err := snapshot.ParseTime(v)
		if err != nil {
			return err
		}

		t.time = parsed
	case []byte:
		parsed, err := snapshot.ParseTime(string(v))
		if err != nil {
			return err
		}

		t.time = parsed
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", src)
	}

	return nil
}
