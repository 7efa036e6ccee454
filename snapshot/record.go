package snapshot

import (
	"strings"
)

// Record is the immutable capture of one attribute value plus the metadata needed to rebuild it on restore.
type Record interface {
	// Name is the attribute name on the entity that owns the value.
	Name() string

	// Value is the captured value.
	Value() any

	// TypeTag is the declared cast of the attribute, or "" when none was captured.
	TypeTag() string

	// QualifiedName is the key under which the record is stored in a snapshot.
	QualifiedName() string

	// RelationPath is the hop sequence from the origin entity, nil for the origin's own attributes.
	RelationPath() []string
}

/***** AttributeRecord *****/

// AttributeRecord is an attribute captured from the origin entity itself.
type AttributeRecord struct {
	name    string
	value   any
	typeTag string
}

// BuildAttributeRecord creates an AttributeRecord; typeTag may be empty.
func BuildAttributeRecord(name string, value any, typeTag string) AttributeRecord {
	return AttributeRecord{
		name:    name,
		value:   value,
		typeTag: typeTag,
	}
}

func (r AttributeRecord) Name() string {
	return r.name
}

func (r AttributeRecord) Value() any {
	return r.value
}

func (r AttributeRecord) TypeTag() string {
	return r.typeTag
}

func (r AttributeRecord) QualifiedName() string {
	return r.name
}

func (r AttributeRecord) RelationPath() []string {
	return nil
}

// WithValue returns a copy carrying another value.
func (r AttributeRecord) WithValue(value any) AttributeRecord {
	r.value = value
	return r
}

/***** RelatedAttributeRecord *****/

// RelatedAttributeRecord is an attribute captured from an entity reached via one or more to-one relation hops.
type RelatedAttributeRecord struct {
	name         string
	value        any
	typeTag      string
	relationPath []string
}

// BuildRelatedAttributeRecord creates a RelatedAttributeRecord. The relation path must not be empty.
func BuildRelatedAttributeRecord(
	name string,
	value any,
	typeTag string,
	relationPath []string,
) (RelatedAttributeRecord, error) {

	if len(relationPath) == 0 {
		return RelatedAttributeRecord{}, ErrEmptyRelationPath
	}

	path := make([]string, len(relationPath))
	copy(path, relationPath)

	return RelatedAttributeRecord{
		name:         name,
		value:        value,
		typeTag:      typeTag,
		relationPath: path,
	}, nil
}

func (r RelatedAttributeRecord) Name() string {
	return r.name
}

func (r RelatedAttributeRecord) Value() any {
	return r.value
}

func (r RelatedAttributeRecord) TypeTag() string {
	return r.typeTag
}

func (r RelatedAttributeRecord) QualifiedName() string {
	return QualifiedRelationName(r.relationPath, r.name)
}

func (r RelatedAttributeRecord) RelationPath() []string {
	path := make([]string, len(r.relationPath))
	copy(path, r.relationPath)

	return path
}

// WithValue returns a copy carrying another value.
func (r RelatedAttributeRecord) WithValue(value any) RelatedAttributeRecord {
	r.value = value
	return r
}

// QualifiedRelationName joins the relation path and the attribute name with underscores,
// e.g. ["parent", "parent"] + "name" -> "parent_parent_name".
func QualifiedRelationName(relationPath []string, name string) string {
	if len(relationPath) == 0 {
		return name
	}

	return strings.Join(relationPath, "_") + "_" + name
}

// joinedRelationPath is the grouping key used for related records that belong to the same entity.
func joinedRelationPath(relationPath []string) string {
	return strings.Join(relationPath, ".")
}

// withRecordValue replaces the value of a record while keeping its name, tag and path.
func withRecordValue(record Record, value any) Record {
	switch r := record.(type) {
	case AttributeRecord:
		return r.WithValue(value)
	case RelatedAttributeRecord:
		return r.WithValue(value)
	default:
		if path := record.RelationPath(); len(path) > 0 {
			related, _ := BuildRelatedAttributeRecord(record.Name(), value, record.TypeTag(), path)
			return related
		}

		return BuildAttributeRecord(record.Name(), value, record.TypeTag())
	}
}
