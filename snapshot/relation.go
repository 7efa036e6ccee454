package snapshot

import (
	"context"
	"errors"
	"reflect"
)

// RelationKind is the cardinality of a relation.
type RelationKind int

const (
	// BelongsToKind is a to-one relation via a foreign key on the owning entity.
	BelongsToKind RelationKind = iota + 1

	// HasOneKind is a to-one relation via a foreign key on the related entity.
	HasOneKind

	// HasManyKind is a to-many relation via a foreign key on the related entities.
	HasManyKind

	// BelongsToManyKind is a to-many relation via a pivot table.
	BelongsToManyKind
)

// IsToOne reports whether the relation yields at most one entity, only those are traversable.
func (k RelationKind) IsToOne() bool {
	return k == BelongsToKind || k == HasOneKind
}

func (k RelationKind) String() string {
	switch k {
	case BelongsToKind:
		return "belongs_to"
	case HasOneKind:
		return "has_one"
	case HasManyKind:
		return "has_many"
	case BelongsToManyKind:
		return "belongs_to_many"
	default:
		return "unknown"
	}
}

// ResolveFunc returns the related entity of owner, or nil when no row is linked.
type ResolveFunc func(ctx context.Context, owner Entity) (Entity, error)

// Relation is one entry of an entity type's relation registry.
type Relation struct {
	Name       string
	Kind       RelationKind
	Related    *EntityType
	ForeignKey string
	Resolve    ResolveFunc
}

// BelongsTo declares a to-one relation where the owner holds the foreign key.
func BelongsTo(name string, related *EntityType, foreignKey string) Relation {
	return Relation{Name: name, Kind: BelongsToKind, Related: related, ForeignKey: foreignKey}
}

// HasOne declares a to-one relation where the related entity holds the foreign key.
func HasOne(name string, related *EntityType, foreignKey string) Relation {
	return Relation{Name: name, Kind: HasOneKind, Related: related, ForeignKey: foreignKey}
}

// HasMany declares a to-many relation. It can be registered but is never traversed.
func HasMany(name string, related *EntityType, foreignKey string) Relation {
	return Relation{Name: name, Kind: HasManyKind, Related: related, ForeignKey: foreignKey}
}

func defaultResolver(relation Relation) ResolveFunc {
	switch relation.Kind {
	case BelongsToKind:
		return func(ctx context.Context, owner Entity) (Entity, error) {
			foreignKey := owner.Attributes()[relation.ForeignKey]
			if foreignKey == nil || relation.Related == nil {
				return nil, nil
			}

			return ignoreNotFound(relation.Related.Load(ctx, foreignKey))
		}

	case HasOneKind:
		return func(ctx context.Context, owner Entity) (Entity, error) {
			ownerKey := owner.PrimaryKey()
			if ownerKey == nil || relation.Related == nil {
				return nil, nil
			}

			return ignoreNotFound(relation.Related.LoadBy(ctx, relation.ForeignKey, ownerKey))
		}

	default:
		return nil
	}
}

func ignoreNotFound(entity Entity, err error) (Entity, error) {
	if errors.Is(err, ErrEntityNotFound) {
		return nil, nil
	}

	return entity, err
}

// isNilEntity catches typed nils hidden in the interface, e.g. (*Row)(nil) or a nil pointer
// of any other Entity implementation a custom ResolveFunc returns.
func isNilEntity(entity Entity) bool {
	if entity == nil {
		return true
	}

	value := reflect.ValueOf(entity)

	switch value.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return value.IsNil()
	default:
		return false
	}
}
