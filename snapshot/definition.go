package snapshot

import (
	"slices"
)

/***** Definition *****/

// Definition describes which attributes of an entity, and of entities reachable via to-one relations,
// are captured into a snapshot. It is immutable, build it with BuildDefinition.
type Definition struct {
	captureAll        bool
	captured          []string
	excluded          []string
	captureHidden     bool
	captureTypeTags   bool
	excludeTimestamps bool
	primaryKeyAlias   string
	children          []ChildDefinition
}

// ChildDefinition binds a Definition to the relation it is applied through.
type ChildDefinition struct {
	relation   string
	definition Definition
}

func (c ChildDefinition) Relation() string {
	return c.relation
}

func (c ChildDefinition) Definition() Definition {
	return c.definition
}

// DefaultDefinition captures all visible attributes without type tags and without relations.
func DefaultDefinition() Definition {
	return Definition{captureAll: true}
}

func (d Definition) CapturesAll() bool {
	return d.captureAll
}

func (d Definition) Captured() []string {
	return slices.Clone(d.captured)
}

func (d Definition) Excluded() []string {
	return slices.Clone(d.excluded)
}

func (d Definition) CapturesHidden() bool {
	return d.captureHidden
}

func (d Definition) CapturesTypeTags() bool {
	return d.captureTypeTags
}

func (d Definition) ExcludesTimestamps() bool {
	return d.excludeTimestamps
}

func (d Definition) PrimaryKeyAlias() string {
	return d.primaryKeyAlias
}

func (d Definition) Children() []ChildDefinition {
	return slices.Clone(d.children)
}

// Allows applies capture-then-exclude: the name must be captured (or all are) and must not be excluded.
// Exclusion always wins.
func (d Definition) Allows(name string, alsoExcluded ...string) bool {
	if slices.Contains(d.excluded, name) || slices.Contains(alsoExcluded, name) {
		return false
	}

	if d.captureAll {
		return true
	}

	return slices.Contains(d.captured, name)
}

/***** DefinitionBuilder *****/

// DefinitionBuilder assembles a Definition. Every method returns a new builder, so partially built
// definitions can be shared and extended safely.
type DefinitionBuilder struct {
	def Definition
}

// BuildDefinition starts from the default: all attributes, nothing excluded, no hidden attributes,
// no type tags, timestamps kept, no relations.
func BuildDefinition() DefinitionBuilder {
	return DefinitionBuilder{def: DefaultDefinition()}
}

// Capture restricts capturing to the given names. Calling it again adds more names.
// Empty names are ignored.
func (b DefinitionBuilder) Capture(name string, names ...string) DefinitionBuilder {
	def := b.clone()
	def.captureAll = false
	def.captured = appendUnique(def.captured, append([]string{name}, names...)...)

	return DefinitionBuilder{def: def}
}

// CaptureAll lifts any earlier Capture restriction.
func (b DefinitionBuilder) CaptureAll() DefinitionBuilder {
	def := b.clone()
	def.captureAll = true
	def.captured = nil

	return DefinitionBuilder{def: def}
}

// Exclude removes the given names, whatever was captured.
func (b DefinitionBuilder) Exclude(name string, names ...string) DefinitionBuilder {
	def := b.clone()
	def.excluded = appendUnique(def.excluded, append([]string{name}, names...)...)

	return DefinitionBuilder{def: def}
}

// CaptureHidden also reads attributes the entity type declares as hidden.
func (b DefinitionBuilder) CaptureHidden() DefinitionBuilder {
	def := b.clone()
	def.captureHidden = true

	return DefinitionBuilder{def: def}
}

// CaptureTypeTags attaches the entity type's declared casts to every captured record.
func (b DefinitionBuilder) CaptureTypeTags() DefinitionBuilder {
	def := b.clone()
	def.captureTypeTags = true

	return DefinitionBuilder{def: def}
}

// ExcludeTimestamps drops the created/updated/deleted timestamp columns of this level only.
// Child definitions decide for themselves.
func (b DefinitionBuilder) ExcludeTimestamps() DefinitionBuilder {
	def := b.clone()
	def.excludeTimestamps = true

	return DefinitionBuilder{def: def}
}

// AliasPrimaryKey keeps the origin's primary key under "<alias>_<primary key>" instead of stripping it.
func (b DefinitionBuilder) AliasPrimaryKey(alias string) DefinitionBuilder {
	def := b.clone()
	def.primaryKeyAlias = alias

	return DefinitionBuilder{def: def}
}

// WithRelation captures the entity reached via the named to-one relation using the child definition.
// Adding the same relation twice replaces the earlier child definition in place.
func (b DefinitionBuilder) WithRelation(relation string, child Definition) DefinitionBuilder {
	def := b.clone()

	for i, existing := range def.children {
		if existing.relation == relation {
			def.children[i] = ChildDefinition{relation: relation, definition: child}
			return DefinitionBuilder{def: def}
		}
	}

	def.children = append(def.children, ChildDefinition{relation: relation, definition: child})

	return DefinitionBuilder{def: def}
}

// Finalize returns the immutable Definition.
func (b DefinitionBuilder) Finalize() Definition {
	return b.clone()
}

func (b DefinitionBuilder) clone() Definition {
	def := b.def
	def.captured = slices.Clone(b.def.captured)
	def.excluded = slices.Clone(b.def.excluded)
	def.children = slices.Clone(b.def.children)

	return def
}

func appendUnique(list []string, names ...string) []string {
	for _, name := range names {
		if name == "" || slices.Contains(list, name) {
			continue
		}

		list = append(list, name)
	}

	return list
}
