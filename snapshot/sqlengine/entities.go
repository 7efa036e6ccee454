package sqlengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

var columnJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadEntityBy reads the first row of the entity type's table where column equals value.
// Column values are normalized and cast by the type's declared casts.
// Bind the Store to entity types with snapshot.Registry.BindLoader so relations can be resolved.
func (s *Store) LoadEntityBy(
	ctx context.Context,
	entityType *snapshot.EntityType,
	column string,
	value any,
) (snapshot.Entity, error) {

	if entityType == nil {
		return nil, ErrNilEntityType
	}

	columns := entityType.AllColumns()
	selectCols := make([]any, len(columns))
	for i, name := range columns {
		selectCols[i] = name
	}

	query, args, err := goqu.Dialect(s.dialect).
		From(entityType.Table).
		Prepared(true).
		Select(selectCols...).
		Where(goqu.C(column).Eq(value)).
		Limit(1).
		ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildSelectQueryFailed, err, logAttrTable, entityType.Table)
		return nil, errors.Join(snapshot.ErrBuildingQueryFailed, err)
	}

	observer, ctx := s.startObserving(ctx, operationLoadEntity)

	rows, err := s.db.Query(ctx, query, args...)
	s.logQueryWithDuration(ctx, query, operationLoadEntity, observer.elapsed())

	if err != nil {
		s.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, query)
		err = errors.Join(snapshot.ErrLoadingEntityFailed, err)
		observer.failed(err)

		return nil, err
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			rowsErr = errors.Join(snapshot.ErrLoadingEntityFailed, rowsErr)
			observer.failed(rowsErr)

			return nil, rowsErr
		}

		observer.succeeded(0)

		return nil, errors.Join(
			snapshot.ErrEntityNotFound,
			fmt.Errorf("%s: no row where %s = %v", entityType.Name, column, value),
		)
	}

	values := make([]any, len(columns))
	targets := make([]any, len(columns))
	for i := range values {
		targets[i] = &values[i]
	}

	if scanErr := rows.Scan(targets...); scanErr != nil {
		s.logError(ctx, logMsgScanRowFailed, scanErr, logAttrTable, entityType.Table)
		scanErr = errors.Join(snapshot.ErrScanningDBRowFailed, scanErr)
		observer.failed(scanErr)

		return nil, scanErr
	}

	attributes := make(map[string]any, len(columns))
	for i, name := range columns {
		attributes[name] = normalizeColumnValue(values[i])
	}

	if castErr := s.casts.CastAll(entityType.Casts, attributes); castErr != nil {
		castErr = errors.Join(snapshot.ErrLoadingEntityFailed, castErr, fmt.Errorf("entity type %s", entityType.Name))
		observer.failed(castErr)

		return nil, castErr
	}

	observer.succeeded(1)

	return snapshot.NewRow(entityType, attributes), nil
}

// UpdateEntity writes the attributes onto the entity row outside of any transaction.
func (s *Store) UpdateEntity(ctx context.Context, entityType *snapshot.EntityType, id any, attributes map[string]any) error {
	return s.updateEntity(ctx, s.db, entityType, id, attributes)
}

func (s *Store) updateEntity(
	ctx context.Context,
	exec executor,
	entityType *snapshot.EntityType,
	id any,
	attributes map[string]any,
) error {

	if entityType == nil {
		return ErrNilEntityType
	}

	if len(attributes) == 0 {
		return nil
	}

	record := make(goqu.Record, len(attributes))
	for name, value := range attributes {
		columnValue, err := toColumnValue(value)
		if err != nil {
			return errors.Join(snapshot.ErrUpdatingEntityFailed, fmt.Errorf("%s.%s: %w", entityType.Table, name, err))
		}

		record[name] = columnValue
	}

	query, args, err := goqu.Dialect(s.dialect).
		Update(entityType.Table).
		Prepared(true).
		Set(record).
		Where(goqu.C(entityType.PrimaryKey).Eq(id)).
		ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildWriteQueryFailed, err, logAttrTable, entityType.Table)
		return errors.Join(snapshot.ErrBuildingQueryFailed, err)
	}

	rowsAffected, err := s.exec(ctx, exec, operationUpdateEntity, query, args, snapshot.ErrUpdatingEntityFailed)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return errors.Join(snapshot.ErrEntityNotFound, fmt.Errorf("%s: no row where %s = %v", entityType.Name, entityType.PrimaryKey, id))
	}

	s.logOperation(ctx, logMsgEntityUpdated,
		logAttrTable, entityType.Table,
		logAttrAttributeCount, len(attributes),
	)

	return nil
}

// normalizeColumnValue turns driver specific representations into plain values.
func normalizeColumnValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC()
	default:
		return v
	}
}

// toColumnValue encodes structured values as JSON text, the representation used for JSON typed columns.
func toColumnValue(value any) (any, error) {
	switch value.(type) {
	case map[string]any, []any:
		encoded, err := columnJSON.MarshalToString(value)
		if err != nil {
			return nil, err
		}

		return encoded, nil
	default:
		return value, nil
	}
}
