package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"

	jsoniter "github.com/json-iterator/go"
)

// codecState tells which side of the StorageColumn is authoritative.
type codecState int

const (
	// stateDecoded: values hold the attributes, the storage map is empty.
	stateDecoded codecState = iota

	// stateEncoded: the storage map holds the serialized records, values are cleared.
	stateEncoded
)

func (s codecState) String() string {
	if s == stateEncoded {
		return "encoded"
	}

	return "decoded"
}

// StorageColumn folds an open-ended attribute set into one serialized column.
//
// Exactly one of values and storage is authoritative at any time, the state decides which.
// The reference cache lives for one write operation only and is cleared by AfterWrite.
// A StorageColumn belongs to one snapshot and is not safe for concurrent use.
type StorageColumn struct {
	casts     *CastRegistry
	state     codecState
	values    map[string]any
	storage   map[string]jsoniter.RawMessage
	persisted map[string]jsoniter.RawMessage
	original  map[string]jsoniter.RawMessage
	refCache  map[string]Record
	castRules map[string]string
}

// NewStorageColumn creates an empty, decoded column. A nil registry uses DefaultCastRegistry.
func NewStorageColumn(casts *CastRegistry) *StorageColumn {
	if casts == nil {
		casts = DefaultCastRegistry()
	}

	return &StorageColumn{
		casts:     casts,
		state:     stateDecoded,
		values:    make(map[string]any),
		persisted: make(map[string]jsoniter.RawMessage),
		original:  make(map[string]jsoniter.RawMessage),
		refCache:  make(map[string]Record),
		castRules: make(map[string]string),
	}
}

// Load force-decodes the column as read from the backing store and makes it the dirty-check baseline.
func (c *StorageColumn) Load(raw []byte) error {
	entries := make(map[string]jsoniter.RawMessage)

	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, jsonNull) {
		if err := recordJSON.Unmarshal(raw, &entries); err != nil {
			return errors.Join(ErrInvalidRecordStructure, fmt.Errorf("storage column is not a json object: %w", err))
		}
	}

	values := make(map[string]any, len(entries))
	castRules := make(map[string]string)

	for name, entry := range entries {
		rawRecord, err := decodeRawRecord(name, entry, c.casts)
		if err != nil {
			return err
		}

		if rawRecord.TypeTag != "" {
			castRules[name] = rawRecord.TypeTag
		}

		values[name] = rawRecord.toRecord()
	}

	c.values = values
	c.castRules = castRules
	c.storage = nil
	c.persisted = entries
	c.original = maps.Clone(entries)
	c.state = stateDecoded

	return nil
}

// Set writes one attribute. Values that are not Records get wrapped on the next encode.
func (c *StorageColumn) Set(name string, value any) error {
	if name == "" {
		return ErrEmptyAttributeName
	}

	if err := c.ensureDecoded(); err != nil {
		return err
	}

	c.values[name] = value

	return nil
}

// SetAll writes all collected records.
func (c *StorageColumn) SetAll(attributes Attributes) error {
	for name, record := range attributes {
		if err := c.Set(name, record); err != nil {
			return err
		}
	}

	return nil
}

// Unset removes one attribute.
func (c *StorageColumn) Unset(name string) error {
	if err := c.ensureDecoded(); err != nil {
		return err
	}

	delete(c.values, name)

	return nil
}

// Get returns the decoded record of one attribute, decoding on demand.
func (c *StorageColumn) Get(name string) (Record, error) {
	if err := c.ensureDecoded(); err != nil {
		return nil, err
	}

	value, ok := c.values[name]
	if !ok {
		return nil, errors.Join(ErrAttributeNotFound, fmt.Errorf("attribute %q", name))
	}

	return c.recordFor(name, value, false)
}

// Attributes returns a read-only copy of all decoded records, decoding on demand.
func (c *StorageColumn) Attributes() (Attributes, error) {
	if err := c.ensureDecoded(); err != nil {
		return nil, err
	}

	attributes := make(Attributes, len(c.values))

	for name, value := range c.values {
		record, err := c.recordFor(name, value, false)
		if err != nil {
			return nil, err
		}

		attributes[name] = record
	}

	return attributes, nil
}

// Names returns the sorted attribute names.
func (c *StorageColumn) Names() []string {
	var names []string
	if c.state == stateEncoded {
		names = slices.Collect(maps.Keys(c.storage))
	} else {
		names = slices.Collect(maps.Keys(c.values))
	}

	slices.Sort(names)

	return names
}

// BeforeWrite encodes the column. It is a no-op when already encoded, so records are never wrapped twice.
func (c *StorageColumn) BeforeWrite() error {
	if c.state == stateEncoded {
		return nil
	}

	storage := make(map[string]jsoniter.RawMessage, len(c.values))

	for name, value := range c.values {
		record, err := c.recordFor(name, value, true)
		if err != nil {
			return err
		}

		if tag := record.TypeTag(); tag != "" {
			c.castRules[name] = tag
		}

		raw, err := encodeRecord(record)
		if err != nil {
			return err
		}

		storage[name] = raw
	}

	c.storage = storage
	c.values = nil
	c.state = stateEncoded

	return nil
}

// AfterWrite clears the per-operation reference cache and makes the written form the new baseline.
func (c *StorageColumn) AfterWrite() {
	c.refCache = make(map[string]Record)

	if c.state == stateEncoded {
		c.persisted = maps.Clone(c.storage)
		c.original = maps.Clone(c.storage)
	}
}

// Payload returns the serialized column. It encodes first when needed.
func (c *StorageColumn) Payload() ([]byte, error) {
	if err := c.BeforeWrite(); err != nil {
		return nil, err
	}

	payload, err := recordJSON.Marshal(c.storage)
	if err != nil {
		return nil, errors.Join(ErrEncodingStorageFailed, err)
	}

	return payload, nil
}

// IsEncoded reports the codec state.
func (c *StorageColumn) IsEncoded() bool {
	return c.state == stateEncoded
}

// Dirty reports whether the column differs from the last loaded or written form.
func (c *StorageColumn) Dirty() (bool, error) {
	current, err := c.currentEncoded()
	if err != nil {
		return false, err
	}

	if len(current) != len(c.original) {
		return true, nil
	}

	for name, raw := range current {
		baseline, ok := c.original[name]
		if !ok || !bytes.Equal(raw, baseline) {
			return true, nil
		}
	}

	return false, nil
}

// RawRecords returns the stored records as persisted, sorted by qualified name.
// Unlike Attributes, it exposes the relation path of every record.
func (c *StorageColumn) RawRecords() ([]RawRecord, error) {
	current, err := c.currentEncoded()
	if err != nil {
		return nil, err
	}

	names := slices.Sorted(maps.Keys(current))
	records := make([]RawRecord, 0, len(names))

	for _, name := range names {
		record, decodeErr := decodeRawRecord(name, current[name], c.casts)
		if decodeErr != nil {
			return nil, decodeErr
		}

		records = append(records, record)
	}

	return records, nil
}

// Records returns the encoded record of every attribute keyed by qualified name.
func (c *StorageColumn) Records() (map[string][]byte, error) {
	current, err := c.currentEncoded()
	if err != nil {
		return nil, err
	}

	records := make(map[string][]byte, len(current))
	for name, raw := range current {
		records[name] = slices.Clone([]byte(raw))
	}

	return records, nil
}

// currentEncoded returns the encoded form without changing the state.
func (c *StorageColumn) currentEncoded() (map[string]jsoniter.RawMessage, error) {
	if c.state == stateEncoded {
		return c.storage, nil
	}

	current := make(map[string]jsoniter.RawMessage, len(c.values))

	for name, value := range c.values {
		record, err := c.recordFor(name, value, false)
		if err != nil {
			return nil, err
		}

		raw, err := encodeRecord(record)
		if err != nil {
			return nil, err
		}

		current[name] = raw
	}

	return current, nil
}

// ensureDecoded decodes on demand, e.g. right after a write, without a store round trip.
func (c *StorageColumn) ensureDecoded() error {
	if c.state == stateDecoded {
		return nil
	}

	values := make(map[string]any, len(c.storage))

	for name, raw := range c.storage {
		rawRecord, err := decodeRawRecord(name, raw, c.casts)
		if err != nil {
			return err
		}

		values[name] = rawRecord.toRecord()
	}

	c.values = values
	c.storage = nil
	c.state = stateDecoded

	return nil
}

// recordFor picks the record for a value: the value itself, the cached record of this operation,
// the record rebuilt from its persisted form, or a fresh AttributeRecord.
func (c *StorageColumn) recordFor(name string, value any, cache bool) (Record, error) {
	record, err := c.selectRecord(name, value)
	if err != nil {
		return nil, err
	}

	if cache {
		c.refCache[name] = record
	}

	return record, nil
}

func (c *StorageColumn) selectRecord(name string, value any) (Record, error) {
	if record, ok := value.(Record); ok {
		return record, nil
	}

	if cached, ok := c.refCache[name]; ok {
		if reflect.DeepEqual(cached.Value(), value) {
			return cached, nil
		}

		return withRecordValue(cached, value), nil
	}

	if raw, ok := c.persisted[name]; ok {
		rebuilt, err := decodeRawRecord(name, raw, c.casts)
		if err != nil {
			return nil, err
		}

		return withRecordValue(rebuilt.toRecord(), value), nil
	}

	return BuildAttributeRecord(name, value, c.castRules[name]), nil
}
