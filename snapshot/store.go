package snapshot

import (
	"context"
)

// StepDirection tells FindNearestVersion on which side of the target to look.
type StepDirection int

const (
	// Rewinding picks the closest version <= target, highest first.
	Rewinding StepDirection = iota

	// Forwarding picks the closest version >= target, lowest first.
	Forwarding
)

func (d StepDirection) String() string {
	if d == Forwarding {
		return "forward"
	}

	return "rewind"
}

// Tx is the unit of work all writes of one snapshot or restore operation run in.
type Tx interface {
	EntityWriter

	// MaxVersion returns the highest snapshot version of the origin, 0 when it has none.
	MaxVersion(ctx context.Context, origin OriginRef) (int64, error)

	// InsertSnapshot persists a new snapshot row. The storage column takes the written form as its
	// baseline only after the transaction committed.
	InsertSnapshot(ctx context.Context, snap *Snapshot) error
}

// Store is the persistence collaborator of the Snapshotter.
// Lookups of single snapshots return ErrSnapshotNotFound (possibly joined) when nothing matches.
type Store interface {
	// WithinTx runs fn in one transaction, committing when fn returns nil and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	FindSnapshot(ctx context.Context, id string) (*Snapshot, error)
	LatestSnapshot(ctx context.Context, origin OriginRef) (*Snapshot, error)
	OldestSnapshot(ctx context.Context, origin OriginRef) (*Snapshot, error)

	// ListSnapshots returns all snapshots of the origin ordered by version ascending.
	ListSnapshots(ctx context.Context, origin OriginRef) ([]*Snapshot, error)

	FindVersion(ctx context.Context, origin OriginRef, version int64) (*Snapshot, error)
	FindNearestVersion(ctx context.Context, origin OriginRef, target int64, direction StepDirection) (*Snapshot, error)

	// UpdateSnapshot persists direct attribute changes of an existing snapshot.
	UpdateSnapshot(ctx context.Context, snap *Snapshot) error

	DeleteSnapshot(ctx context.Context, id string) error
}
