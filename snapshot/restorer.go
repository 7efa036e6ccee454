package snapshot

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// EntityWriter persists attribute changes of one entity row.
type EntityWriter interface {
	UpdateEntity(ctx context.Context, entityType *EntityType, id any, attributes map[string]any) error
}

// Restorer writes a snapshot's records back onto its origin entity and, optionally, its related entities.
type Restorer struct {
	timestampPrefix string
	casts           *CastRegistry
}

// NewRestorer creates a Restorer; the prefix must match the one used when collecting.
func NewRestorer(timestampPrefix string, casts *CastRegistry) Restorer {
	if casts == nil {
		casts = DefaultCastRegistry()
	}

	return Restorer{timestampPrefix: timestampPrefix, casts: casts}
}

// restoreGroup is one entity to be written, with the attributes it receives.
type restoreGroup struct {
	path       string
	entity     Entity
	attributes map[string]any
}

// RestorePlan holds everything a restore writes, grouped per entity, origin first.
// Building the plan only reads, applying it only writes.
type RestorePlan struct {
	groups []*restoreGroup
}

// Plan reads the raw records of snap and resolves the live entities they are written to.
// Records that do not name a writable attribute of their target are skipped.
// A related group whose relation path no longer resolves is dropped without error, and so is a group
// whose path now leads to a different row than the one captured, identified by its captured primary key.
func (r Restorer) Plan(ctx context.Context, target Entity, snap *Snapshot, includeRelated bool) (*RestorePlan, error) {
	rawRecords, err := snap.RawRecords()
	if err != nil {
		return nil, err
	}

	own := make([]RawRecord, 0, len(rawRecords))
	related := make(map[string][]RawRecord)

	for _, record := range rawRecords {
		if record.IsRelated() {
			key := joinedRelationPath(record.RelationPath)
			related[key] = append(related[key], record)

			continue
		}

		own = append(own, record)
	}

	originAttributes, err := r.writableAttributes(target.Type(), own, true)
	if err != nil {
		return nil, err
	}

	plan := &RestorePlan{
		groups: []*restoreGroup{{entity: target, attributes: originAttributes}},
	}

	if !includeRelated {
		return plan, nil
	}

	for _, key := range slices.Sorted(maps.Keys(related)) {
		records := related[key]

		entity, walkErr := walkRelationPath(ctx, target, records[0].RelationPath)
		if walkErr != nil {
			return nil, walkErr
		}

		if entity == nil || !isCapturedRow(entity, records) {
			continue
		}

		attributes, attrErr := r.writableAttributes(entity.Type(), records, false)
		if attrErr != nil {
			return nil, attrErr
		}

		plan.groups = append(plan.groups, &restoreGroup{path: key, entity: entity, attributes: attributes})
	}

	return plan, nil
}

// Restore plans and applies in one go and returns the hydrated target.
func (r Restorer) Restore(
	ctx context.Context,
	writer EntityWriter,
	target Entity,
	snap *Snapshot,
	includeRelated bool,
) (Entity, error) {

	plan, err := r.Plan(ctx, target, snap, includeRelated)
	if err != nil {
		return nil, err
	}

	if err = plan.Apply(ctx, writer); err != nil {
		return nil, err
	}

	plan.Hydrate()

	return target, nil
}

func (r Restorer) writableAttributes(entityType *EntityType, records []RawRecord, isOrigin bool) (map[string]any, error) {
	attributes := make(map[string]any, len(records))

	for _, record := range records {
		name := record.Attribute

		if isOrigin && r.timestampPrefix != "" && strings.HasPrefix(name, r.timestampPrefix) {
			unprefixed := strings.TrimPrefix(name, r.timestampPrefix)
			if slices.Contains(entityType.TimestampColumns(), unprefixed) {
				name = unprefixed
			}
		}

		if !entityType.IsWritable(name) {
			continue
		}

		value, err := r.casts.Cast(entityType.Casts[name], record.Value)
		if err != nil {
			return nil, errors.Join(err, fmt.Errorf("restoring %s.%s", entityType.Name, name))
		}

		attributes[name] = value
	}

	return attributes, nil
}

// walkRelationPath follows the hops from the origin. It returns nil when a hop resolves to nothing
// or when the relation is no longer registered.
func walkRelationPath(ctx context.Context, origin Entity, path []string) (Entity, error) {
	current := origin

	for _, hop := range path {
		next, err := resolveRelation(ctx, current, hop)
		if errors.Is(err, ErrRelation) {
			return nil, nil
		}

		if err != nil {
			return nil, err
		}

		if next == nil {
			return nil, nil
		}

		current = next
	}

	return current, nil
}

// isCapturedRow reports whether entity is the row the records were captured from.
// Records without a captured primary key cannot be matched and are written to whatever the path resolves to.
func isCapturedRow(entity Entity, records []RawRecord) bool {
	primaryKey := entity.Type().PrimaryKey

	for _, record := range records {
		if record.Attribute != primaryKey {
			continue
		}

		return record.Value != nil && fmt.Sprint(record.Value) == fmt.Sprint(entity.PrimaryKey())
	}

	return true
}

// SetOriginAttribute adds an attribute to the origin's write, e.g. its version column.
func (p *RestorePlan) SetOriginAttribute(name string, value any) {
	p.groups[0].attributes[name] = value
}

// OriginAttributes returns a copy of what is written to the origin entity.
func (p *RestorePlan) OriginAttributes() map[string]any {
	return maps.Clone(p.groups[0].attributes)
}

// RelatedPaths returns the joined relation paths of the related entities that will be written.
func (p *RestorePlan) RelatedPaths() []string {
	paths := make([]string, 0, len(p.groups)-1)
	for _, group := range p.groups[1:] {
		paths = append(paths, group.path)
	}

	return paths
}

// Apply writes every group with one bulk update per entity.
func (p *RestorePlan) Apply(ctx context.Context, writer EntityWriter) error {
	for _, group := range p.groups {
		if len(group.attributes) == 0 {
			continue
		}

		entityType := group.entity.Type()
		if err := writer.UpdateEntity(ctx, entityType, group.entity.PrimaryKey(), group.attributes); err != nil {
			return errors.Join(
				ErrUpdatingEntityFailed,
				fmt.Errorf("restoring %s#%v: %w", entityType.Name, group.entity.PrimaryKey(), err),
			)
		}
	}

	return nil
}

// Hydrate sets the written attributes on the in-memory entities, call it after the writes committed.
func (p *RestorePlan) Hydrate() {
	for _, group := range p.groups {
		group.entity.SetAttributes(group.attributes)
	}
}
