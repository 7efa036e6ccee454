package snapshot

import (
	"context"
	"errors"
	"fmt"
)

// Outcome tells how an operation ended when it did not fail.
type Outcome int

const (
	// OutcomeFailed is returned together with an error.
	OutcomeFailed Outcome = iota

	// OutcomeCompleted means the operation committed.
	OutcomeCompleted

	// OutcomeCanceled means a before hook vetoed the operation, nothing was written.
	OutcomeCanceled

	// OutcomeBusy means the lock could not be acquired within its timeout, nothing was written.
	OutcomeBusy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCanceled:
		return StatusCanceled
	case OutcomeBusy:
		return StatusBusy
	default:
		return "failed"
	}
}

// Snapshotter takes versioned snapshots of entities and restores entities from them.
// Operations on the same entity instance are serialized by a bounded-wait lock,
// all writes of one operation run in one transaction.
type Snapshotter struct {
	store            Store
	locker           Locker
	snapshotLock     LockConfig
	restoreLock      LockConfig
	timestampPrefix  string
	casts            *CastRegistry
	registry         *Registry
	hooks            Hooks
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// NewSnapshotter creates a Snapshotter on top of a Store with optional configuration.
func NewSnapshotter(store Store, options ...Option) (*Snapshotter, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	s := &Snapshotter{
		store:           store,
		locker:          NewLocalLocker(),
		snapshotLock:    LockConfig{Name: DefaultSnapshotLockName, Timeout: DefaultLockTimeout},
		restoreLock:     LockConfig{Name: DefaultRestoreLockName, Timeout: DefaultLockTimeout},
		timestampPrefix: DefaultTimestampPrefix,
		casts:           DefaultCastRegistry(),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// TakeSnapshot captures origin according to def, merges extra attributes in and stores the result
// under the next version of origin. Extra values that are not Records are stored without a type tag.
func (s *Snapshotter) TakeSnapshot(
	ctx context.Context,
	origin Entity,
	def Definition,
	extra map[string]any,
) (*Snapshot, Outcome, error) {

	observer, ctx := s.startOperation(ctx, operationTakeSnapshot, origin)

	entityType := origin.Type()
	if err := entityType.Validate(); err != nil {
		observer.failed(err)
		return nil, OutcomeFailed, err
	}

	ctx = WithStrongConsistency(ctx)

	unlock, outcome, err := s.acquire(ctx, observer, s.snapshotLock, origin)
	if unlock == nil {
		return nil, outcome, err
	}
	defer s.release(ctx, unlock)

	if !s.hooks.beforeSnapshot(ctx, origin) {
		observer.canceled()
		return nil, OutcomeCanceled, nil
	}

	attributes, err := NewCollector(s.timestampPrefix).Collect(ctx, origin, def, extra)
	if err != nil {
		observer.failed(err)
		return nil, OutcomeFailed, err
	}

	snap, err := NewSnapshot(OriginOf(origin), attributes, s.casts)
	if err != nil {
		observer.failed(err)
		return nil, OutcomeFailed, err
	}

	txErr := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		maxVersion, err := tx.MaxVersion(ctx, snap.Origin())
		if err != nil {
			return err
		}

		snap.Version = maxVersion + 1

		if err = tx.InsertSnapshot(ctx, snap); err != nil {
			return err
		}

		if entityType.HasVersionColumn() {
			return tx.UpdateEntity(ctx, entityType, origin.PrimaryKey(), map[string]any{entityType.VersionColumn: snap.Version})
		}

		return nil
	})
	if txErr != nil {
		observer.failed(txErr)
		return nil, OutcomeFailed, txErr
	}

	if entityType.HasVersionColumn() {
		origin.SetAttributes(map[string]any{entityType.VersionColumn: snap.Version})
	}

	s.hooks.afterSnapshot(ctx, origin, snap)
	observer.completed(snap, len(attributes))

	return snap, OutcomeCompleted, nil
}

// RestoreTo writes the snapshot back onto origin and, with includeRelated, onto the related entities
// it captured. A snapshot of another entity is rejected with ErrSnapshotOriginMismatch.
func (s *Snapshotter) RestoreTo(
	ctx context.Context,
	origin Entity,
	snap *Snapshot,
	includeRelated bool,
) (Entity, Outcome, error) {

	observer, ctx := s.startOperation(ctx, operationRestore, origin)

	if err := snap.AssertOriginOf(origin); err != nil {
		observer.failed(err)
		return nil, OutcomeFailed, err
	}

	return s.restore(ctx, observer, origin, includeRelated, func(context.Context) (*Snapshot, error) {
		return snap, nil
	})
}

// Rewind restores origin to the snapshot steps versions before its current version.
// With allowNearest a missing version falls back to the closest older one.
func (s *Snapshotter) Rewind(
	ctx context.Context,
	origin Entity,
	steps int,
	allowNearest bool,
	includeRelated bool,
) (Entity, Outcome, error) {

	return s.step(ctx, operationRewind, origin, -steps, allowNearest, includeRelated)
}

// Forward restores origin to the snapshot steps versions after its current version.
// With allowNearest a missing version falls back to the closest newer one.
func (s *Snapshotter) Forward(
	ctx context.Context,
	origin Entity,
	steps int,
	allowNearest bool,
	includeRelated bool,
) (Entity, Outcome, error) {

	return s.step(ctx, operationForward, origin, steps, allowNearest, includeRelated)
}

func (s *Snapshotter) step(
	ctx context.Context,
	operation string,
	origin Entity,
	steps int,
	allowNearest bool,
	includeRelated bool,
) (Entity, Outcome, error) {

	observer, ctx := s.startOperation(ctx, operation, origin)

	if err := s.assertSteppable(origin, steps); err != nil {
		observer.failed(err)
		return nil, OutcomeFailed, err
	}

	return s.restore(ctx, observer, origin, includeRelated, func(ctx context.Context) (*Snapshot, error) {
		return s.FindByStep(ctx, origin, steps, allowNearest)
	})
}

// restore runs under the restore lock and the snapshot lock of origin, so restores are serialized
// against both other restores and snapshots of the same instance. Locks are always taken in this order.
func (s *Snapshotter) restore(
	ctx context.Context,
	observer *operationObserver,
	origin Entity,
	includeRelated bool,
	resolve func(ctx context.Context) (*Snapshot, error),
) (Entity, Outcome, error) {

	entityType := origin.Type()
	if err := entityType.Validate(); err != nil {
		observer.failed(err)
		return nil, OutcomeFailed, err
	}

	ctx = WithStrongConsistency(ctx)

	unlockRestore, outcome, err := s.acquire(ctx, observer, s.restoreLock, origin)
	if unlockRestore == nil {
		return nil, outcome, err
	}
	defer s.release(ctx, unlockRestore)

	unlockSnapshot, outcome, err := s.acquire(ctx, observer, s.snapshotLock, origin)
	if unlockSnapshot == nil {
		return nil, outcome, err
	}
	defer s.release(ctx, unlockSnapshot)

	snap, err := resolve(ctx)
	if err != nil {
		observer.failed(err)
		return nil, OutcomeFailed, err
	}

	if err = snap.AssertOriginOf(origin); err != nil {
		observer.failed(err)
		return nil, OutcomeFailed, err
	}

	if !s.hooks.beforeRestore(ctx, origin, snap) {
		observer.canceled()
		return nil, OutcomeCanceled, nil
	}

	plan, err := NewRestorer(s.timestampPrefix, s.casts).Plan(ctx, origin, snap, includeRelated)
	if err != nil {
		observer.failed(err)
		return nil, OutcomeFailed, err
	}

	if entityType.HasVersionColumn() {
		plan.SetOriginAttribute(entityType.VersionColumn, snap.Version)
	}

	txErr := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return plan.Apply(ctx, tx)
	})
	if txErr != nil {
		observer.failed(txErr)
		return nil, OutcomeFailed, txErr
	}

	plan.Hydrate()

	s.hooks.afterRestore(ctx, origin, snap)
	observer.completed(snap, len(plan.OriginAttributes()))

	return origin, OutcomeCompleted, nil
}

// FindByStep resolves the snapshot at current version + steps. Negative steps look back, positive
// steps look ahead. Without allowNearest the version must exist; with it the closest version on the
// side of the move is taken.
func (s *Snapshotter) FindByStep(ctx context.Context, origin Entity, steps int, allowNearest bool) (*Snapshot, error) {
	if err := s.assertSteppable(origin, steps); err != nil {
		return nil, err
	}

	current, err := s.CurrentVersion(ctx, origin)
	if err != nil {
		return nil, err
	}

	target := current + int64(steps)
	ref := OriginOf(origin)

	var snap *Snapshot

	if allowNearest {
		direction := Rewinding
		if steps > 0 {
			direction = Forwarding
		}

		snap, err = s.store.FindNearestVersion(ctx, ref, target, direction)
	} else {
		snap, err = s.store.FindVersion(ctx, ref, target)
	}

	if errors.Is(err, ErrSnapshotNotFound) {
		return nil, errors.Join(
			ErrNoSnapshotForStep,
			fmt.Errorf(
				"%s: no snapshot for %d steps from version %d (target %d, nearest allowed: %t)",
				ref, steps, current, target, allowNearest,
			),
		)
	}

	if err != nil {
		return nil, err
	}

	s.logDebug(ctx, logMsgStepResolved,
		logAttrOrigin, ref.String(),
		logAttrCurrentVersion, current,
		logAttrTargetVersion, target,
		logAttrVersion, snap.Version,
	)

	return snap, nil
}

// CurrentVersion returns the value of origin's version column, or the latest snapshot version
// when the column is still null, or 0 when origin has no snapshots.
func (s *Snapshotter) CurrentVersion(ctx context.Context, origin Entity) (int64, error) {
	entityType := origin.Type()
	if !entityType.HasVersionColumn() {
		return 0, errors.Join(ErrMissingVersionColumn, fmt.Errorf("entity type %s", entityType.Name))
	}

	value := origin.Attributes()[entityType.VersionColumn]
	if value == nil {
		latest, err := s.store.LatestSnapshot(ctx, OriginOf(origin))
		if errors.Is(err, ErrSnapshotNotFound) {
			return 0, nil
		}

		if err != nil {
			return 0, err
		}

		return latest.Version, nil
	}

	version, err := s.casts.Cast(CastInt, value)
	if err != nil {
		return 0, errors.Join(
			ErrConfiguration,
			fmt.Errorf("entity type %s: version column %q: %w", entityType.Name, entityType.VersionColumn, err),
		)
	}

	return version.(int64), nil
}

func (s *Snapshotter) assertSteppable(origin Entity, steps int) error {
	entityType := origin.Type()

	if !entityType.HasVersionColumn() {
		return errors.Join(
			ErrMissingVersionColumn,
			fmt.Errorf("entity type %s needs a version column to rewind or forward", entityType.Name),
		)
	}

	if steps == 0 {
		return errors.Join(ErrZeroSteps, fmt.Errorf("entity %s", OriginOf(origin)))
	}

	return nil
}

// LatestSnapshot returns the snapshot of origin with the highest version.
func (s *Snapshotter) LatestSnapshot(ctx context.Context, origin Entity) (*Snapshot, error) {
	return s.store.LatestSnapshot(ctx, OriginOf(origin))
}

// OldestSnapshot returns the snapshot of origin with the lowest version.
func (s *Snapshotter) OldestSnapshot(ctx context.Context, origin Entity) (*Snapshot, error) {
	return s.store.OldestSnapshot(ctx, OriginOf(origin))
}

// Snapshots returns all snapshots of origin ordered by version.
func (s *Snapshotter) Snapshots(ctx context.Context, origin Entity) ([]*Snapshot, error) {
	return s.store.ListSnapshots(ctx, OriginOf(origin))
}

// Sync loads the origin of snap through the entity registry and restores it to snap.
func (s *Snapshotter) Sync(ctx context.Context, snap *Snapshot, includeRelated bool) (Entity, Outcome, error) {
	if s.registry == nil {
		return nil, OutcomeFailed, errors.Join(ErrUnknownOriginType, errors.New("no entity registry configured"))
	}

	entityType, err := s.registry.Lookup(snap.OriginType)
	if err != nil {
		return nil, OutcomeFailed, err
	}

	id, err := s.casts.Cast(entityType.Casts[entityType.PrimaryKey], snap.OriginID)
	if err != nil {
		return nil, OutcomeFailed, err
	}

	origin, err := entityType.Load(ctx, id)
	if err != nil {
		return nil, OutcomeFailed, err
	}

	return s.RestoreTo(ctx, origin, snap, includeRelated)
}

// acquire takes the lock of origin. A nil unlock means the caller must return the given outcome and error.
func (s *Snapshotter) acquire(
	ctx context.Context,
	observer *operationObserver,
	lock LockConfig,
	origin Entity,
) (Unlock, Outcome, error) {

	key := LockKey(lock.Name, origin.Type(), origin.PrimaryKey())

	unlock, acquired, err := s.locker.Acquire(ctx, key, lock.Timeout)
	if err != nil {
		err = errors.Join(ErrLockFailed, fmt.Errorf("lock %s: %w", key, err))
		observer.failed(err)

		return nil, OutcomeFailed, err
	}

	if !acquired {
		observer.busy(key)
		return nil, OutcomeBusy, nil
	}

	s.logDebug(ctx, logMsgLockAcquired, logAttrLockKey, key)

	return unlock, OutcomeCompleted, nil
}

// release unlocks with a context that survives cancellation of the operation's context.
func (s *Snapshotter) release(ctx context.Context, unlock Unlock) {
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		s.logWarn(ctx, logMsgUnlockFailed, logAttrError, err.Error())
	}
}
