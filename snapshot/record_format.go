package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

const (
	recordKeyAttribute    = "attribute"
	recordKeyValue        = "value"
	recordKeyCast         = "cast"
	recordKeyRelationPath = "relation_path"
)

var jsonNull = []byte("null")

// recordJSON encodes deterministically and keeps numbers as json.Number on decode,
// so integers survive a round trip without turning into float64.
var recordJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// recordWireFormat is the persisted shape of one record inside the storage column.
type recordWireFormat struct {
	Attribute    string              `json:"attribute"`
	Value        jsoniter.RawMessage `json:"value"`
	Cast         *string             `json:"cast"`
	RelationPath []string            `json:"relation_path,omitempty"`
}

// RawRecord is a stored record as read from the storage column, without going through the decoded view.
type RawRecord struct {
	QualifiedName string
	Attribute     string
	Value         any
	TypeTag       string
	RelationPath  []string
}

// IsRelated reports whether the record was captured via a relation hop.
func (r RawRecord) IsRelated() bool {
	return len(r.RelationPath) > 0
}

// IsAttributeRecordFormat reports whether raw JSON has the shape of an AttributeRecord.
func IsAttributeRecordFormat(raw []byte) bool {
	keys, ok := recordKeys(raw)
	if !ok {
		return false
	}

	_, hasPath := keys[recordKeyRelationPath]

	return !hasPath
}

// IsRelatedAttributeRecordFormat reports whether raw JSON has the shape of a RelatedAttributeRecord.
func IsRelatedAttributeRecordFormat(raw []byte) bool {
	keys, ok := recordKeys(raw)
	if !ok {
		return false
	}

	_, hasPath := keys[recordKeyRelationPath]

	return hasPath
}

func recordKeys(raw []byte) (map[string]jsoniter.RawMessage, bool) {
	keys := make(map[string]jsoniter.RawMessage)
	if err := recordJSON.Unmarshal(raw, &keys); err != nil {
		return nil, false
	}

	for _, required := range []string{recordKeyAttribute, recordKeyValue, recordKeyCast} {
		if _, ok := keys[required]; !ok {
			return nil, false
		}
	}

	return keys, true
}

// encodeRecord serializes a record into its wire format.
func encodeRecord(record Record) ([]byte, error) {
	value, err := recordJSON.Marshal(record.Value())
	if err != nil {
		return nil, errors.Join(ErrEncodingStorageFailed, fmt.Errorf("attribute %q: %w", record.Name(), err))
	}

	wire := recordWireFormat{
		Attribute:    record.Name(),
		Value:        value,
		RelationPath: record.RelationPath(),
	}

	if tag := record.TypeTag(); tag != "" {
		wire.Cast = &tag
	}

	return recordJSON.Marshal(wire)
}

// decodeRawRecord rebuilds the raw record, picking the subtype by shape.
// A shape that matches neither record format is an integrity error.
func decodeRawRecord(qualifiedName string, raw []byte, casts *CastRegistry) (RawRecord, error) {
	isOwn := IsAttributeRecordFormat(raw)
	isRelated := IsRelatedAttributeRecordFormat(raw)

	if !isOwn && !isRelated {
		return RawRecord{}, errors.Join(
			ErrInvalidRecordStructure,
			fmt.Errorf("entry %q matches no known record format: %s", qualifiedName, string(raw)),
		)
	}

	var wire recordWireFormat
	if err := recordJSON.Unmarshal(raw, &wire); err != nil {
		return RawRecord{}, errors.Join(ErrInvalidRecordStructure, fmt.Errorf("entry %q: %w", qualifiedName, err))
	}

	if isRelated && len(wire.RelationPath) == 0 {
		return RawRecord{}, errors.Join(
			ErrInvalidRecordStructure,
			fmt.Errorf("entry %q: %w", qualifiedName, ErrEmptyRelationPath),
		)
	}

	generic, err := decodeRecordValue(wire.Value)
	if err != nil {
		return RawRecord{}, errors.Join(ErrInvalidRecordStructure, fmt.Errorf("entry %q: %w", qualifiedName, err))
	}

	tag := ""
	if wire.Cast != nil {
		tag = *wire.Cast
	}

	value, castErr := casts.Cast(tag, normalizeJSONValue(generic))
	if castErr != nil {
		return RawRecord{}, castErr
	}

	return RawRecord{
		QualifiedName: qualifiedName,
		Attribute:     wire.Attribute,
		Value:         value,
		TypeTag:       tag,
		RelationPath:  wire.RelationPath,
	}, nil
}

// decodeRecordValue decodes the value slot. A null value comes back from jsoniter as an empty RawMessage.
func decodeRecordValue(raw jsoniter.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		return nil, nil
	}

	var generic any
	if err := recordJSON.Unmarshal(trimmed, &generic); err != nil {
		return nil, err
	}

	return generic, nil
}

// toRecord turns a raw record into its Record subtype.
func (r RawRecord) toRecord() Record {
	if r.IsRelated() {
		related, _ := BuildRelatedAttributeRecord(r.Attribute, r.Value, r.TypeTag, r.RelationPath)
		return related
	}

	return BuildAttributeRecord(r.Attribute, r.Value, r.TypeTag)
}

// normalizeJSONValue turns json.Number into int64 or float64, recursively.
func normalizeJSONValue(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}

		f, _ := v.Float64()

		return f

	case map[string]any:
		for key, item := range v {
			v[key] = normalizeJSONValue(item)
		}

		return v

	case []any:
		for i, item := range v {
			v[i] = normalizeJSONValue(item)
		}

		return v

	default:
		return v
	}
}
