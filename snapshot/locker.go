package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Default lock settings.
const (
	DefaultSnapshotLockName = "snapshotting_atomic_lock"
	DefaultRestoreLockName  = "restoring_atomic_lock"
	DefaultLockTimeout      = 10 * time.Second
)

// Unlock releases an acquired lock.
type Unlock func(ctx context.Context) error

// Locker is a mutual-exclusion primitive keyed by name with a bounded wait.
type Locker interface {
	// Acquire waits at most timeout for the lock. When the wait elapses it returns acquired=false
	// and no error. Errors are reserved for failures of the lock service itself.
	Acquire(ctx context.Context, key string, timeout time.Duration) (unlock Unlock, acquired bool, err error)
}

// LockConfig names a lock and bounds the wait for it.
type LockConfig struct {
	Name    string
	Timeout time.Duration
}

// LockKey scopes a lock to one entity instance: "<name>_<table>_<id>".
// The table is part of the key so equal ids of different entity types do not contend.
func LockKey(name string, entityType *EntityType, id any) string {
	return name + "_" + entityType.Table + "_" + fmt.Sprint(id)
}

/***** LocalLocker *****/

// LocalLocker serializes operations within one process.
// Use a shared lock service, e.g. sqlengine.AdvisoryLocker, when several processes write.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	slot chan struct{}
	refs int
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (Unlock, bool, error) {
	lock := l.ref(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case lock.slot <- struct{}{}:
		var once sync.Once

		unlock := func(context.Context) error {
			once.Do(func() {
				<-lock.slot
				l.unref(key)
			})

			return nil
		}

		return unlock, true, nil

	case <-timer.C:
		l.unref(key)
		return nil, false, nil

	case <-ctx.Done():
		l.unref(key)
		return nil, false, ctx.Err()
	}
}

// IsHeld reports whether anyone currently holds the key.
func (l *LocalLocker) IsHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[key]

	return ok && len(lock.slot) > 0
}

func (l *LocalLocker) ref(key string) *localLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[key]
	if !ok {
		lock = &localLock{slot: make(chan struct{}, 1)}
		l.locks[key] = lock
	}

	lock.refs++

	return lock
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[key]
	if !ok {
		return
	}

	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}
