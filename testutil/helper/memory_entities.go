package helper

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

// MemoryEntities is an in-memory snapshot.EntityLoader and snapshot.EntityWriter for tests without a database.
// Rows are matched by their textual column value, so int and int64 keys find the same row.
type MemoryEntities struct {
	mu      sync.Mutex
	rows    map[string][]map[string]any
	updates []EntityUpdate
	failOn  map[string]error
}

// EntityUpdate records one UpdateEntity call.
type EntityUpdate struct {
	Table      string
	ID         any
	Attributes map[string]any
}

// NewMemoryEntities creates an empty MemoryEntities.
func NewMemoryEntities() *MemoryEntities {
	return &MemoryEntities{
		rows:   make(map[string][]map[string]any),
		failOn: make(map[string]error),
	}
}

// Put stores a row and returns it as a live entity.
func (m *MemoryEntities) Put(entityType *snapshot.EntityType, attributes map[string]any) *snapshot.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows[entityType.Table] = append(m.rows[entityType.Table], maps.Clone(attributes))

	return snapshot.NewRow(entityType, attributes)
}

// Remove deletes the row with the given primary key.
func (m *MemoryEntities) Remove(entityType *snapshot.EntityType, id any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rows[entityType.Table]
	for i, row := range rows {
		if sameValue(row[entityType.PrimaryKey], id) {
			m.rows[entityType.Table] = append(rows[:i], rows[i+1:]...)
			return
		}
	}
}

// FailUpdatesOf makes every UpdateEntity on the table fail with err.
func (m *MemoryEntities) FailUpdatesOf(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failOn[table] = err
}

// Stored returns a copy of the stored row with the given primary key, nil when absent.
func (m *MemoryEntities) Stored(entityType *snapshot.EntityType, id any) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.find(entityType.Table, entityType.PrimaryKey, id)
	if row == nil {
		return nil
	}

	return maps.Clone(row)
}

// Updates returns all recorded UpdateEntity calls in call order.
func (m *MemoryEntities) Updates() []EntityUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	updates := make([]EntityUpdate, len(m.updates))
	copy(updates, m.updates)

	return updates
}

// LoadEntityBy implements snapshot.EntityLoader.
func (m *MemoryEntities) LoadEntityBy(
	_ context.Context,
	entityType *snapshot.EntityType,
	column string,
	value any,
) (snapshot.Entity, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.find(entityType.Table, column, value)
	if row == nil {
		return nil, errors.Join(snapshot.ErrEntityNotFound, fmt.Errorf("%s: no row where %s = %v", entityType.Name, column, value))
	}

	return snapshot.NewRow(entityType, row), nil
}

// UpdateEntity implements snapshot.EntityWriter.
func (m *MemoryEntities) UpdateEntity(
	_ context.Context,
	entityType *snapshot.EntityType,
	id any,
	attributes map[string]any,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failOn[entityType.Table]; err != nil {
		return err
	}

	row := m.find(entityType.Table, entityType.PrimaryKey, id)
	if row == nil {
		return errors.Join(snapshot.ErrEntityNotFound, fmt.Errorf("%s#%v", entityType.Name, id))
	}

	maps.Copy(row, attributes)

	m.updates = append(m.updates, EntityUpdate{
		Table:      entityType.Table,
		ID:         id,
		Attributes: maps.Clone(attributes),
	})

	return nil
}

func (m *MemoryEntities) find(table, column string, value any) map[string]any {
	for _, row := range m.rows[table] {
		if sameValue(row[column], value) {
			return row
		}
	}

	return nil
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}
