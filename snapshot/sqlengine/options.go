package sqlengine

import (
	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

// Supported goqu dialects.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// Option defines a functional option for configuring the Store.
type Option func(*Store) error

// WithTableName sets the table name of the snapshot table.
func WithTableName(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return snapshot.ErrEmptyTableName
		}

		s.tableName = tableName

		return nil
	}
}

// WithDialect selects the SQL dialect, DialectPostgres or DialectSQLite.
func WithDialect(dialect string) Option {
	return func(s *Store) error {
		if dialect != DialectPostgres && dialect != DialectSQLite {
			return ErrUnknownDialect
		}

		s.dialect = dialect

		return nil
	}
}

// WithOriginColumns renames the two columns holding the polymorphic reference to the origin entity.
func WithOriginColumns(typeColumn, idColumn string) Option {
	return func(s *Store) error {
		if typeColumn == "" || idColumn == "" {
			return ErrEmptyColumnName
		}

		s.colOriginType = typeColumn
		s.colOriginID = idColumn

		return nil
	}
}

// WithCastRegistry sets the registry used to decode snapshot records and entity columns.
func WithCastRegistry(casts *snapshot.CastRegistry) Option {
	return func(s *Store) error {
		if casts != nil {
			s.casts = casts
		}

		return nil
	}
}

// WithLogger sets the logger for the Store.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: snapshot writes and entity updates with durations (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger snapshot.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Store.
// The contextual logger will receive log messages with context information including
// automatic trace/span correlation when tracing is enabled.
func WithContextualLogger(logger snapshot.ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Store.
// It receives query durations per store operation and database error counts.
func WithMetrics(collector snapshot.MetricsCollector) Option {
	return func(s *Store) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Store, which receives one span per store operation.
func WithTracing(collector snapshot.TracingCollector) Option {
	return func(s *Store) error {
		s.tracingCollector = collector
		return nil
	}
}
