package sqlengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

const (
	defaultPollInterval = 50 * time.Millisecond

	sqlTryAdvisoryLock = "SELECT pg_try_advisory_lock(hashtextextended($1, 0))"
	sqlAdvisoryUnlock  = "SELECT pg_advisory_unlock(hashtextextended($1, 0))"
)

// AdvisoryLocker implements snapshot.Locker with Postgres session level advisory locks,
// so operations on the same entity instance are serialized across processes.
// The lock key is hashed to the 64-bit advisory lock id. A held lock pins one pool connection.
type AdvisoryLocker struct {
	pool         *pgxpool.Pool
	pollInterval time.Duration
}

// AdvisoryLockerOption configures an AdvisoryLocker.
type AdvisoryLockerOption func(*AdvisoryLocker) error

// WithPollInterval sets how often pg_try_advisory_lock is retried while waiting.
func WithPollInterval(interval time.Duration) AdvisoryLockerOption {
	return func(l *AdvisoryLocker) error {
		if interval <= 0 {
			return snapshot.ErrInvalidLockTimeout
		}

		l.pollInterval = interval

		return nil
	}
}

// NewAdvisoryLocker creates an AdvisoryLocker on top of a pgx Pool.
func NewAdvisoryLocker(pool *pgxpool.Pool, options ...AdvisoryLockerOption) (*AdvisoryLocker, error) {
	if pool == nil {
		return nil, snapshot.ErrNilDatabaseConnection
	}

	l := &AdvisoryLocker{pool: pool, pollInterval: defaultPollInterval}

	for _, option := range options {
		if err := option(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// Acquire polls pg_try_advisory_lock on a dedicated connection until it succeeds or timeout elapses.
// Waiting for a free pool connection counts against the same timeout.
func (l *AdvisoryLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (snapshot.Unlock, bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := l.pool.Acquire(waitCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, false, nil
		}

		return nil, false, err
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		var locked bool
		if err = conn.QueryRow(waitCtx, sqlTryAdvisoryLock, key).Scan(&locked); err != nil {
			// the lock may have been granted before the query failed, only closing the session frees it for sure
			discardConn(conn)

			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return nil, false, nil
			}

			return nil, false, err
		}

		if locked {
			return advisoryUnlock(conn, key), true, nil
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			conn.Release()

			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}

			return nil, false, nil
		}
	}
}

func advisoryUnlock(conn *pgxpool.Conn, key string) snapshot.Unlock {
	var once sync.Once
	var unlockErr error

	return func(ctx context.Context) error {
		once.Do(func() {
			var released bool
			if err := conn.QueryRow(ctx, sqlAdvisoryUnlock, key).Scan(&released); err != nil {
				// a pooled connection would keep holding the session lock
				discardConn(conn)
				unlockErr = errors.Join(snapshot.ErrLockFailed, err)

				return
			}

			conn.Release()

			if !released {
				unlockErr = errors.Join(ErrAdvisoryUnlocked, fmt.Errorf("key %s", key))
			}
		})

		return unlockErr
	}
}

// discardConn takes the connection out of the pool and closes it, which ends its session locks.
func discardConn(conn *pgxpool.Conn) {
	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = conn.Hijack().Close(closeCtx) // ignore error
}
