package sqlengine

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

// Tx is the snapshot.Tx handed to the function run by Store.WithinTx.
// It must not be used after that function returned.
type Tx struct {
	store   *Store
	exec    executor
	written []*snapshot.Snapshot
}

// committed makes the written payloads the storage baseline, only call it once the commit succeeded.
func (tx *Tx) committed() {
	for _, snap := range tx.written {
		snap.Storage().AfterWrite()
	}
}

// MaxVersion returns the highest snapshot version of origin, 0 when it has none.
func (tx *Tx) MaxVersion(ctx context.Context, origin snapshot.OriginRef) (int64, error) {
	s := tx.store

	query, args, err := goqu.Dialect(s.dialect).
		From(s.tableName).
		Prepared(true).
		Select(goqu.COALESCE(goqu.MAX(colVersion), 0).As(aliasMaxVersion)).
		Where(s.originExpression(origin)).
		ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildSelectQueryFailed, err)
		return 0, errors.Join(snapshot.ErrBuildingQueryFailed, err)
	}

	observer, ctx := s.startObserving(ctx, operationMaxVersion)

	rows, err := tx.exec.Query(ctx, query, args...)
	s.logQueryWithDuration(ctx, query, operationMaxVersion, observer.elapsed())

	if err != nil {
		s.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, query)
		err = errors.Join(snapshot.ErrQueryingSnapshotsFailed, err)
		observer.failed(err)

		return 0, err
	}
	defer s.closeRows(ctx, rows)

	var maxVersion int64

	if rows.Next() {
		if scanErr := rows.Scan(&maxVersion); scanErr != nil {
			s.logError(ctx, logMsgScanRowFailed, scanErr)
			scanErr = errors.Join(snapshot.ErrScanningDBRowFailed, scanErr)
			observer.failed(scanErr)

			return 0, scanErr
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		rowsErr = errors.Join(snapshot.ErrQueryingSnapshotsFailed, rowsErr)
		observer.failed(rowsErr)

		return 0, rowsErr
	}

	observer.succeeded(1)

	return maxVersion, nil
}

// InsertSnapshot encodes the storage column and inserts the snapshot row.
func (tx *Tx) InsertSnapshot(ctx context.Context, snap *snapshot.Snapshot) error {
	s := tx.store

	payload, err := snap.Storage().Payload()
	if err != nil {
		return errors.Join(snapshot.ErrSavingSnapshotFailed, err)
	}

	query, args, err := goqu.Dialect(s.dialect).
		Insert(s.tableName).
		Prepared(true).
		Rows(goqu.Record{
			colID:           snap.ID,
			s.colOriginType: snap.OriginType,
			s.colOriginID:   snap.OriginID,
			colStorage:      string(payload),
			colVersion:      snap.Version,
			colCreatedAt:    snap.CreatedAt,
			colUpdatedAt:    snap.UpdatedAt,
		}).
		ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildWriteQueryFailed, err)
		return errors.Join(snapshot.ErrBuildingQueryFailed, err)
	}

	if _, err = s.exec(ctx, tx.exec, operationInsert, query, args, snapshot.ErrSavingSnapshotFailed); err != nil {
		return err
	}

	tx.written = append(tx.written, snap)

	s.logOperation(ctx, logMsgSnapshotInserted,
		logAttrSnapshotID, snap.ID,
		logAttrOrigin, snap.Origin().String(),
		logAttrVersion, snap.Version,
	)

	return nil
}

// UpdateEntity writes the attributes onto the entity row inside the transaction.
func (tx *Tx) UpdateEntity(ctx context.Context, entityType *snapshot.EntityType, id any, attributes map[string]any) error {
	return tx.store.updateEntity(ctx, tx.exec, entityType, id, attributes)
}
