package snapshot

import (
	"time"
)

// Option defines a functional option for configuring the Snapshotter.
type Option func(*Snapshotter) error

// WithSnapshotLock sets the name and the bounded wait of the lock taken while snapshotting.
func WithSnapshotLock(name string, timeout time.Duration) Option {
	return func(s *Snapshotter) error {
		config, err := validLockConfig(name, timeout)
		if err != nil {
			return err
		}

		s.snapshotLock = config

		return nil
	}
}

// WithRestoreLock sets the name and the bounded wait of the lock taken while restoring.
func WithRestoreLock(name string, timeout time.Duration) Option {
	return func(s *Snapshotter) error {
		config, err := validLockConfig(name, timeout)
		if err != nil {
			return err
		}

		s.restoreLock = config

		return nil
	}
}

func validLockConfig(name string, timeout time.Duration) (LockConfig, error) {
	if name == "" {
		return LockConfig{}, ErrEmptyLockName
	}

	if timeout <= 0 {
		return LockConfig{}, ErrInvalidLockTimeout
	}

	return LockConfig{Name: name, Timeout: timeout}, nil
}

// WithLocker replaces the in-process LocalLocker, e.g. with a database backed lock.
func WithLocker(locker Locker) Option {
	return func(s *Snapshotter) error {
		if locker != nil {
			s.locker = locker
		}

		return nil
	}
}

// WithTimestampPrefix sets the prefix of the origin's own timestamp attributes, "" disables renaming.
func WithTimestampPrefix(prefix string) Option {
	return func(s *Snapshotter) error {
		s.timestampPrefix = prefix
		return nil
	}
}

// WithCastRegistry sets the registry used to decode type tagged values.
func WithCastRegistry(casts *CastRegistry) Option {
	return func(s *Snapshotter) error {
		if casts != nil {
			s.casts = casts
		}

		return nil
	}
}

// WithRegistry sets the entity type registry Sync resolves origins with.
func WithRegistry(registry *Registry) Option {
	return func(s *Snapshotter) error {
		s.registry = registry
		return nil
	}
}

// WithHooks sets the before/after hooks.
func WithHooks(hooks Hooks) Option {
	return func(s *Snapshotter) error {
		s.hooks = hooks
		return nil
	}
}

// WithLogger sets the logger for the Snapshotter.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: lock keys and resolved versions (development use)
// Info level: completed, canceled and busy operations with durations (production-safe)
// Warn level: non-critical issues like unlock failures
// Error level: critical failures that cause operation failures.
func WithLogger(logger Logger) Option {
	return func(s *Snapshotter) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger, which receives the context for trace correlation.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *Snapshotter) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector, which receives operation durations, outcomes and errors.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *Snapshotter) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector, which receives one span per operation.
func WithTracing(collector TracingCollector) Option {
	return func(s *Snapshotter) error {
		s.tracingCollector = collector
		return nil
	}
}
