package snapshot

import (
	"context"
	"slices"
)

// DefaultTimestampPrefix is prepended to the origin's own timestamp attributes so they never collide
// with the snapshot row's own created_at / updated_at.
const DefaultTimestampPrefix = "origin_"

// Attributes maps qualified names to captured records.
type Attributes map[string]Record

// Collector walks an entity and its to-one relations according to a Definition.
type Collector struct {
	timestampPrefix string
}

// NewCollector creates a Collector; an empty prefix keeps timestamp names unchanged.
func NewCollector(timestampPrefix string) Collector {
	return Collector{timestampPrefix: timestampPrefix}
}

// Collect captures the entity's own attributes, the extra attributes and the attributes of every
// related entity named by the definition tree. Later groups win on name collisions: own, extra, related.
func (c Collector) Collect(
	ctx context.Context,
	entity Entity,
	def Definition,
	extra map[string]any,
) (Attributes, error) {

	collected := make(Attributes)

	for name, record := range c.ownRecords(entity, def, true) {
		collected[name] = record
	}

	for name, value := range extra {
		if record, ok := value.(Record); ok {
			collected[name] = record
			continue
		}

		collected[name] = BuildAttributeRecord(name, value, "")
	}

	related, err := c.relatedRecords(ctx, entity, def, nil)
	if err != nil {
		return nil, err
	}

	for name, record := range related {
		collected[name] = record
	}

	return collected, nil
}

// ownRecords reads the entity's own attributes. The origin's primary key is stripped (or aliased),
// a related entity's primary key is always kept.
func (c Collector) ownRecords(entity Entity, def Definition, isOrigin bool) map[string]AttributeRecord {
	entityType := entity.Type()
	timestamps := entityType.TimestampColumns()

	var alsoExcluded []string
	if def.ExcludesTimestamps() {
		alsoExcluded = timestamps
	}

	records := make(map[string]AttributeRecord)

	for name, value := range entity.Attributes() {
		tag := ""
		if def.CapturesTypeTags() {
			tag = entityType.Casts[name]
		}

		if name == entityType.PrimaryKey {
			switch {
			case !isOrigin:
				records[name] = BuildAttributeRecord(name, value, tag)
			case def.PrimaryKeyAlias() != "" && def.Allows(name, alsoExcluded...):
				aliased := def.PrimaryKeyAlias() + "_" + name
				records[aliased] = BuildAttributeRecord(aliased, value, tag)
			}

			continue
		}

		if !def.CapturesHidden() && entityType.IsHidden(name) {
			continue
		}

		if !def.Allows(name, alsoExcluded...) {
			continue
		}

		if isOrigin && c.timestampPrefix != "" && slices.Contains(timestamps, name) {
			name = c.timestampPrefix + name
		}

		records[name] = BuildAttributeRecord(name, value, tag)
	}

	return records
}

// relatedRecords follows each child definition one hop and recurses, accumulating the relation path.
func (c Collector) relatedRecords(
	ctx context.Context,
	entity Entity,
	def Definition,
	parentPath []string,
) (Attributes, error) {

	collected := make(Attributes)

	for _, child := range def.Children() {
		related, err := resolveRelation(ctx, entity, child.Relation())
		if err != nil {
			return nil, err
		}

		if related == nil {
			continue
		}

		path := append(slices.Clone(parentPath), child.Relation())

		for _, own := range c.ownRecords(related, child.Definition(), false) {
			record, buildErr := BuildRelatedAttributeRecord(own.Name(), own.Value(), own.TypeTag(), path)
			if buildErr != nil {
				return nil, buildErr
			}

			collected[record.QualifiedName()] = record
		}

		nested, err := c.relatedRecords(ctx, related, child.Definition(), path)
		if err != nil {
			return nil, err
		}

		for name, record := range nested {
			collected[name] = record
		}
	}

	return collected, nil
}
