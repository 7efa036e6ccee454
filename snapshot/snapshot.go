package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the persisted capture of one origin entity.
type Snapshot struct {
	ID         string
	OriginType string
	OriginID   string
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time

	storage *StorageColumn
}

// StoredSnapshot is the physical row shape as read from the store.
type StoredSnapshot struct {
	ID         string
	OriginType string
	OriginID   string
	Storage    []byte
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSnapshot creates an unsaved snapshot of origin holding the collected attributes.
func NewSnapshot(origin OriginRef, attributes Attributes, casts *CastRegistry) (*Snapshot, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snap := &Snapshot{
		ID:         id.String(),
		OriginType: origin.Type,
		OriginID:   origin.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
		storage:    NewStorageColumn(casts),
	}

	if setErr := snap.storage.SetAll(attributes); setErr != nil {
		return nil, setErr
	}

	return snap, nil
}

// LoadSnapshot hydrates a snapshot from its stored row, force-decoding the storage column.
func LoadSnapshot(row StoredSnapshot, casts *CastRegistry) (*Snapshot, error) {
	storage := NewStorageColumn(casts)

	if err := storage.Load(row.Storage); err != nil {
		return nil, errors.Join(err, fmt.Errorf("snapshot %s", row.ID))
	}

	return &Snapshot{
		ID:         row.ID,
		OriginType: row.OriginType,
		OriginID:   row.OriginID,
		Version:    row.Version,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		storage:    storage,
	}, nil
}

// Origin returns the polymorphic reference to the origin entity.
func (s *Snapshot) Origin() OriginRef {
	return OriginRef{Type: s.OriginType, ID: s.OriginID}
}

// IsOf reports whether the snapshot belongs to the entity.
func (s *Snapshot) IsOf(entity Entity) bool {
	return s.Origin() == OriginOf(entity)
}

// AssertOriginOf fails with an integrity error naming both identities when the snapshot belongs to another entity.
func (s *Snapshot) AssertOriginOf(entity Entity) error {
	if s.IsOf(entity) {
		return nil
	}

	return errors.Join(
		ErrSnapshotOriginMismatch,
		fmt.Errorf("snapshot %s: expected origin %s, actual origin %s", s.ID, OriginOf(entity), s.Origin()),
	)
}

// Get returns one captured attribute.
func (s *Snapshot) Get(name string) (Record, error) {
	return s.storage.Get(name)
}

// Value returns the value of one captured attribute, nil when absent.
func (s *Snapshot) Value(name string) any {
	record, err := s.storage.Get(name)
	if err != nil {
		return nil
	}

	return record.Value()
}

// Set writes one attribute; persist it with Store.UpdateSnapshot.
func (s *Snapshot) Set(name string, value any) error {
	return s.storage.Set(name, value)
}

// Attributes returns a read-only copy of all captured records.
func (s *Snapshot) Attributes() (Attributes, error) {
	return s.storage.Attributes()
}

// RawRecords returns the stored records with their relation paths.
func (s *Snapshot) RawRecords() ([]RawRecord, error) {
	return s.storage.RawRecords()
}

// Records returns the encoded wire form of every record.
func (s *Snapshot) Records() (map[string][]byte, error) {
	return s.storage.Records()
}

// Storage exposes the codec to persistence implementations.
func (s *Snapshot) Storage() *StorageColumn {
	return s.storage
}
