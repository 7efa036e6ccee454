package snapshot

import (
	"context"
)

// Hooks surround snapshot and restore operations. Before hooks may veto by returning false,
// the operation then ends with OutcomeCanceled. After hooks only run when the operation committed.
// All fields are optional.
type Hooks struct {
	BeforeSnapshot func(ctx context.Context, origin Entity) bool
	AfterSnapshot  func(ctx context.Context, origin Entity, snap *Snapshot)
	BeforeRestore  func(ctx context.Context, origin Entity, snap *Snapshot) bool
	AfterRestore   func(ctx context.Context, origin Entity, snap *Snapshot)
}

func (h Hooks) beforeSnapshot(ctx context.Context, origin Entity) bool {
	if h.BeforeSnapshot == nil {
		return true
	}

	return h.BeforeSnapshot(ctx, origin)
}

func (h Hooks) afterSnapshot(ctx context.Context, origin Entity, snap *Snapshot) {
	if h.AfterSnapshot != nil {
		h.AfterSnapshot(ctx, origin, snap)
	}
}

func (h Hooks) beforeRestore(ctx context.Context, origin Entity, snap *Snapshot) bool {
	if h.BeforeRestore == nil {
		return true
	}

	return h.BeforeRestore(ctx, origin, snap)
}

func (h Hooks) afterRestore(ctx context.Context, origin Entity, snap *Snapshot) {
	if h.AfterRestore != nil {
		h.AfterRestore(ctx, origin, snap)
	}
}
