package sqlengine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

const (
	operationFind         = "find_snapshot"
	operationLatest       = "latest_snapshot"
	operationOldest       = "oldest_snapshot"
	operationList         = "list_snapshots"
	operationFindVersion  = "find_version"
	operationFindNearest  = "find_nearest_version"
	operationMaxVersion   = "max_version"
	operationInsert       = "insert_snapshot"
	operationUpdate       = "update_snapshot"
	operationDelete       = "delete_snapshot"
	operationLoadEntity   = "load_entity"
	operationUpdateEntity = "update_entity"

	spanNamePrefix = "snapshot_store."

	metricQueryDuration = "snapshot_store_query_duration_seconds"
	metricRows          = "snapshot_store_rows"
	metricErrors        = "snapshot_store_errors_total"

	aliasMaxVersion = "max_version"

	logMsgBuildSelectQueryFailed = "failed to build select query"
	logMsgBuildWriteQueryFailed  = "failed to build write query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgDBExecFailed           = "database execution failed"
	logMsgCloseRowsFailed        = "failed to close database rows"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgLoadSnapshotFailed     = "failed to load snapshot from database row"
	logMsgRowsAffectedFailed     = "failed to get rows affected count"
	logMsgBeginTxFailed          = "failed to begin transaction"
	logMsgCommitTxFailed         = "failed to commit transaction"
	logMsgRollbackFailed         = "failed to roll back transaction"
	logMsgSQLExecuted            = "executed sql for: "
	logMsgOperation              = "snapshot store operation: "
	logMsgSnapshotInserted       = "snapshot inserted"
	logMsgEntityUpdated          = "entity updated"

	logAttrError          = "error"
	logAttrQuery          = "query"
	logAttrTable          = "table"
	logAttrSnapshotID     = "snapshot_id"
	logAttrOrigin         = "origin"
	logAttrVersion        = "version"
	logAttrAttributeCount = "attribute_count"
	logAttrDurationMS     = "duration_ms"

	labelOperation = "operation"
	labelStatus    = "status"
	labelErrorType = "error_type"

	errorTypeNotFound = "not_found"
	errorTypeBuild    = "build_query"
	errorTypeScan     = "scan"
	errorTypeContext  = "context"
	errorTypeDatabase = "database"
)

// storeObserver bundles tracing and metrics of one store call.
type storeObserver struct {
	s         *Store
	ctx       context.Context
	operation string
	span      snapshot.SpanContext
	start     time.Time
}

func (s *Store) startObserving(ctx context.Context, operation string) (*storeObserver, context.Context) {
	var span snapshot.SpanContext
	if s.tracingCollector != nil {
		ctx, span = s.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, map[string]string{
			labelOperation: operation,
			logAttrTable:   s.tableName,
		})
	}

	return &storeObserver{
		s:         s,
		ctx:       ctx,
		operation: operation,
		span:      span,
		start:     time.Now(),
	}, ctx
}

func (o *storeObserver) elapsed() time.Duration {
	return time.Since(o.start)
}

func (o *storeObserver) succeeded(rows int) {
	labels := map[string]string{labelOperation: o.operation, labelStatus: snapshot.StatusSuccess}

	o.s.recordDuration(o.ctx, metricQueryDuration, o.elapsed(), labels)
	o.s.recordValue(o.ctx, metricRows, float64(rows), labels)

	o.finishSpan(snapshot.StatusSuccess, map[string]string{metricRows: fmt.Sprintf("%d", rows)})
}

func (o *storeObserver) failed(err error) {
	errorType := classifyStoreError(err)
	labels := map[string]string{labelOperation: o.operation, labelStatus: snapshot.StatusError}

	o.s.recordDuration(o.ctx, metricQueryDuration, o.elapsed(), labels)

	labels[labelErrorType] = errorType
	o.s.incrementCounter(o.ctx, metricErrors, labels)

	o.finishSpan(snapshot.StatusError, map[string]string{labelErrorType: errorType})
}

func (o *storeObserver) finishSpan(status string, attrs map[string]string) {
	if o.span == nil || o.s.tracingCollector == nil {
		return
	}

	o.span.SetStatus(status)
	o.span.AddAttribute(logAttrDurationMS, fmt.Sprintf("%.2f", toMilliseconds(o.elapsed())))
	o.s.tracingCollector.FinishSpan(o.span, status, attrs)
}

func classifyStoreError(err error) string {
	switch {
	case errors.Is(err, snapshot.ErrSnapshotNotFound), errors.Is(err, snapshot.ErrEntityNotFound):
		return errorTypeNotFound
	case errors.Is(err, snapshot.ErrBuildingQueryFailed):
		return errorTypeBuild
	case errors.Is(err, snapshot.ErrScanningDBRowFailed):
		return errorTypeScan
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errorTypeContext
	default:
		return errorTypeDatabase
	}
}

/***** Logging *****/

// logQueryWithDuration logs SQL queries with execution time at debug level if a logger is configured.
func (s *Store) logQueryWithDuration(ctx context.Context, query string, action string, duration time.Duration) {
	args := []any{logAttrDurationMS, toMilliseconds(duration), logAttrQuery, query}

	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (s *Store) logOperation(ctx context.Context, action string, args ...any) {
	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}
}

func (s *Store) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (s *Store) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if s.logger != nil {
		s.logger.Error(msg, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	}
}

/***** Metrics *****/

func (s *Store) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(snapshot.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	s.metricsCollector.RecordDuration(metric, duration, labels)
}

func (s *Store) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(snapshot.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	s.metricsCollector.RecordValue(metric, value, labels)
}

func (s *Store) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(snapshot.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metric, labels)
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
