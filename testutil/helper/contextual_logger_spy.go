package helper

import (
	"context"
	"slices"
	"sync"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

// ContextualLoggerSpy is a snapshot.ContextualLogger that keeps the context of every call,
// so tests can inspect what travelled along with a log line (consistency level, span, ...).
type ContextualLoggerSpy struct {
	records []SpyContextualLogRecord
	mu      sync.Mutex
}

// SpyContextualLogRecord represents a recorded contextual log call.
type SpyContextualLogRecord struct {
	Level   string
	Message string
	Args    []any
	Context context.Context
}

// NewContextualLoggerSpy creates an empty ContextualLoggerSpy.
func NewContextualLoggerSpy() *ContextualLoggerSpy {
	return &ContextualLoggerSpy{}
}

// DebugContext implements snapshot.ContextualLogger.
func (s *ContextualLoggerSpy) DebugContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "debug", msg, args)
}

// InfoContext implements snapshot.ContextualLogger.
func (s *ContextualLoggerSpy) InfoContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "info", msg, args)
}

// WarnContext implements snapshot.ContextualLogger.
func (s *ContextualLoggerSpy) WarnContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "warn", msg, args)
}

// ErrorContext implements snapshot.ContextualLogger.
func (s *ContextualLoggerSpy) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "error", msg, args)
}

func (s *ContextualLoggerSpy) record(ctx context.Context, level, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, SpyContextualLogRecord{
		Level:   level,
		Message: msg,
		Args:    slices.Clone(args),
		Context: ctx,
	})
}

// RecordsWithMessage returns every record with the given level and message, in call order.
func (s *ContextualLoggerSpy) RecordsWithMessage(level, message string) []SpyContextualLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []SpyContextualLogRecord
	for _, record := range s.records {
		if record.Level == level && record.Message == message {
			found = append(found, record)
		}
	}

	return found
}

// Count returns the number of recorded calls across all levels.
func (s *ContextualLoggerSpy) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

var _ snapshot.ContextualLogger = (*ContextualLoggerSpy)(nil)
