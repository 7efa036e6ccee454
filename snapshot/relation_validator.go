package snapshot

import (
	"context"
	"errors"
	"fmt"
)

// AssertTraversable fails when the entity's type has no relation of that name,
// or when the relation is not to-one. It has no side effects.
func AssertTraversable(entity Entity, name string) (Relation, error) {
	entityType := entity.Type()

	relation, ok := entityType.Relation(name)
	if !ok {
		return Relation{}, errors.Join(
			ErrRelationNotFound,
			fmt.Errorf("relation %q is not registered on entity type %s", name, entityType.Name),
		)
	}

	if !relation.Kind.IsToOne() || relation.Resolve == nil {
		return Relation{}, errors.Join(
			ErrUnsupportedRelationKind,
			fmt.Errorf(
				"relation %q on entity type %s is %s, only %s and %s can be traversed",
				name, entityType.Name, relation.Kind, BelongsToKind, HasOneKind,
			),
		)
	}

	return relation, nil
}

// resolveRelation validates and dereferences one hop.
func resolveRelation(ctx context.Context, entity Entity, name string) (Entity, error) {
	relation, err := AssertTraversable(entity, name)
	if err != nil {
		return nil, err
	}

	related, err := relation.Resolve(ctx, entity)
	if err != nil {
		return nil, errors.Join(
			ErrLoadingEntityFailed,
			fmt.Errorf("resolving relation %q on %s: %w", name, entity.Type().Name, err),
		)
	}

	if isNilEntity(related) {
		return nil, nil
	}

	return related, nil
}
