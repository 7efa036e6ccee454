package snapshot

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Entity is the capability the engine needs from anything it snapshots or restores.
type Entity interface {
	// Type returns the registered entity type, never nil.
	Type() *EntityType

	// PrimaryKey returns the current primary key value.
	PrimaryKey() any

	// Attributes returns all attributes, hidden ones included.
	Attributes() map[string]any

	// SetAttributes merges the given attributes into the in-memory state.
	SetAttributes(attributes map[string]any)
}

// EntityLoader reads entity rows from the backing store.
// It returns ErrEntityNotFound (possibly joined) when no row matches.
type EntityLoader interface {
	LoadEntityBy(ctx context.Context, entityType *EntityType, column string, value any) (Entity, error)
}

// Timestamps names the lifecycle timestamp columns of an entity type; empty names are unused.
type Timestamps struct {
	CreatedAt string
	UpdatedAt string
	DeletedAt string
}

// DefaultTimestamps are the conventional created_at / updated_at / deleted_at columns.
func DefaultTimestamps() Timestamps {
	return Timestamps{CreatedAt: "created_at", UpdatedAt: "updated_at", DeletedAt: "deleted_at"}
}

func (t Timestamps) columns() []string {
	columns := make([]string, 0, 3)

	for _, column := range []string{t.CreatedAt, t.UpdatedAt, t.DeletedAt} {
		if column != "" {
			columns = append(columns, column)
		}
	}

	return columns
}

/***** EntityType *****/

// EntityType describes one kind of entity: its table, primary key, writable columns, hidden attributes,
// declared casts, lifecycle timestamps, optional version column and its registered relations.
// Configure it once at startup, it must not be changed while snapshots are taken.
type EntityType struct {
	Name          string
	Table         string
	PrimaryKey    string
	Columns       []string
	Hidden        []string
	Casts         map[string]string
	Timestamps    Timestamps
	VersionColumn string
	Loader        EntityLoader

	relations     map[string]Relation
	relationOrder []string
}

// Validate checks that the type can be used for snapshots.
func (t *EntityType) Validate() error {
	switch {
	case t == nil:
		return errors.Join(ErrInvalidEntityType, errors.New("nil entity type"))
	case t.Name == "":
		return errors.Join(ErrInvalidEntityType, errors.New("entity type name must not be empty"))
	case t.Table == "":
		return errors.Join(ErrInvalidEntityType, fmt.Errorf("entity type %s: table must not be empty", t.Name))
	case t.PrimaryKey == "":
		return errors.Join(ErrInvalidEntityType, fmt.Errorf("entity type %s: primary key must not be empty", t.Name))
	}

	return nil
}

// AddRelation registers a relation. Relations built with BelongsTo or HasOne get a resolver
// backed by the related type's Loader unless one is supplied.
func (t *EntityType) AddRelation(relation Relation) *EntityType {
	if t.relations == nil {
		t.relations = make(map[string]Relation)
	}

	if relation.Resolve == nil {
		relation.Resolve = defaultResolver(relation)
	}

	if _, exists := t.relations[relation.Name]; !exists {
		t.relationOrder = append(t.relationOrder, relation.Name)
	}

	t.relations[relation.Name] = relation

	return t
}

// Relation looks up a registered relation by name.
func (t *EntityType) Relation(name string) (Relation, bool) {
	relation, ok := t.relations[name]
	return relation, ok
}

// Relations returns all registered relations in registration order.
func (t *EntityType) Relations() []Relation {
	relations := make([]Relation, 0, len(t.relationOrder))
	for _, name := range t.relationOrder {
		relations = append(relations, t.relations[name])
	}

	return relations
}

// IsHidden reports whether the attribute is hidden from default capture.
func (t *EntityType) IsHidden(name string) bool {
	return slices.Contains(t.Hidden, name)
}

// IsWritable reports whether a restore may write the attribute. The primary key never is.
func (t *EntityType) IsWritable(name string) bool {
	if name == t.PrimaryKey {
		return false
	}

	return slices.Contains(t.Columns, name) || slices.Contains(t.Hidden, name)
}

// TimestampColumns returns the configured lifecycle timestamp columns.
func (t *EntityType) TimestampColumns() []string {
	return t.Timestamps.columns()
}

// HasVersionColumn reports whether step based operations are available.
func (t *EntityType) HasVersionColumn() bool {
	return t.VersionColumn != ""
}

// AllColumns returns every physical column the engine may read, primary key first.
func (t *EntityType) AllColumns() []string {
	columns := []string{t.PrimaryKey}
	columns = appendUnique(columns, t.Columns...)
	columns = appendUnique(columns, t.Hidden...)
	columns = appendUnique(columns, t.TimestampColumns()...)

	if t.VersionColumn != "" {
		columns = appendUnique(columns, t.VersionColumn)
	}

	return columns
}

// Load reads one entity of this type by primary key through the configured Loader.
func (t *EntityType) Load(ctx context.Context, id any) (Entity, error) {
	return t.LoadBy(ctx, t.PrimaryKey, id)
}

// LoadBy reads one entity of this type by an arbitrary column through the configured Loader.
func (t *EntityType) LoadBy(ctx context.Context, column string, value any) (Entity, error) {
	if t.Loader == nil {
		return nil, errors.Join(ErrMissingEntityLoader, fmt.Errorf("entity type %s", t.Name))
	}

	return t.Loader.LoadEntityBy(ctx, t, column, value)
}

/***** Row *****/

// Row is a generic, map backed Entity.
type Row struct {
	entityType *EntityType
	attributes map[string]any
}

// NewRow creates a Row holding a copy of the attributes.
func NewRow(entityType *EntityType, attributes map[string]any) *Row {
	row := &Row{
		entityType: entityType,
		attributes: make(map[string]any, len(attributes)),
	}

	row.SetAttributes(attributes)

	return row
}

func (r *Row) Type() *EntityType {
	return r.entityType
}

func (r *Row) PrimaryKey() any {
	return r.attributes[r.entityType.PrimaryKey]
}

// Attributes returns a copy of all attributes.
func (r *Row) Attributes() map[string]any {
	attributes := make(map[string]any, len(r.attributes))
	for name, value := range r.attributes {
		attributes[name] = value
	}

	return attributes
}

func (r *Row) SetAttributes(attributes map[string]any) {
	for name, value := range attributes {
		r.attributes[name] = value
	}
}

// Get returns one attribute value, nil when unset.
func (r *Row) Get(name string) any {
	return r.attributes[name]
}

/***** OriginRef *****/

// OriginRef is the polymorphic (type, id) reference from a snapshot to its origin entity.
type OriginRef struct {
	Type string
	ID   string
}

// OriginOf builds the polymorphic reference of an entity.
func OriginOf(entity Entity) OriginRef {
	return OriginRef{
		Type: entity.Type().Name,
		ID:   fmt.Sprint(entity.PrimaryKey()),
	}
}

func (o OriginRef) String() string {
	return o.Type + "#" + o.ID
}
