package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	operationTakeSnapshot = "take_snapshot"
	operationRestore      = "restore"
	operationRewind       = "rewind"
	operationForward      = "forward"

	spanNamePrefix = "snapshot."

	metricOperationDuration = "snapshot_operation_duration_seconds"
	metricOperations        = "snapshot_operations_total"
	metricErrors            = "snapshot_errors_total"
	metricLockBusy          = "snapshot_lock_busy_total"
	metricAttributes        = "snapshot_attributes"

	logMsgOperation    = "snapshot operation: "
	logMsgCompleted    = "completed"
	logMsgCanceled     = "canceled by hook"
	logMsgBusy         = "lock busy"
	logMsgFailed       = "snapshot operation failed: "
	logMsgLockAcquired = "lock acquired"
	logMsgUnlockFailed = "failed to release lock"
	logMsgStepResolved = "step resolved"

	logAttrError          = "error"
	logAttrErrorType      = "error_type"
	logAttrOperation      = "operation"
	logAttrOrigin         = "origin"
	logAttrVersion        = "version"
	logAttrCurrentVersion = "current_version"
	logAttrTargetVersion  = "target_version"
	logAttrAttributeCount = "attribute_count"
	logAttrSnapshotID     = "snapshot_id"
	logAttrLockKey        = "lock_key"
	logAttrDurationMS     = "duration_ms"

	labelOperation  = "operation"
	labelStatus     = "status"
	labelErrorType  = "error_type"
	labelOriginType = "origin_type"

	errorTypeConfiguration = "configuration"
	errorTypeRelation      = "relation"
	errorTypeIntegrity     = "integrity"
	errorTypeStepRange     = "step_range"
	errorTypeLock          = "lock"
	errorTypeContext       = "context"
	errorTypeStore         = "store"
)

// operationObserver bundles logging, metrics and tracing of one Snapshotter operation.
type operationObserver struct {
	s         *Snapshotter
	ctx       context.Context
	operation string
	origin    OriginRef
	span      SpanContext
	start     time.Time
}

func (s *Snapshotter) startOperation(ctx context.Context, operation string, origin Entity) (*operationObserver, context.Context) {
	ref := OriginOf(origin)

	var span SpanContext
	if s.tracingCollector != nil {
		ctx, span = s.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, map[string]string{
			labelOperation:  operation,
			labelOriginType: ref.Type,
			logAttrOrigin:   ref.String(),
		})
	}

	return &operationObserver{
		s:         s,
		ctx:       ctx,
		operation: operation,
		origin:    ref,
		span:      span,
		start:     time.Now(),
	}, ctx
}

func (o *operationObserver) completed(snap *Snapshot, attributeCount int) {
	duration := time.Since(o.start)

	o.s.logInfo(o.ctx, logMsgOperation+o.operation+" "+logMsgCompleted,
		logAttrOrigin, o.origin.String(),
		logAttrSnapshotID, snap.ID,
		logAttrVersion, snap.Version,
		logAttrAttributeCount, attributeCount,
		logAttrDurationMS, toMilliseconds(duration),
	)

	o.recordOutcome(StatusSuccess, duration)
	o.s.recordValue(o.ctx, metricAttributes, float64(attributeCount), o.labels(StatusSuccess))

	o.finishSpan(StatusSuccess, map[string]string{
		logAttrSnapshotID:     snap.ID,
		logAttrVersion:        fmt.Sprintf("%d", snap.Version),
		logAttrAttributeCount: fmt.Sprintf("%d", attributeCount),
	})
}

func (o *operationObserver) canceled() {
	o.s.logInfo(o.ctx, logMsgOperation+o.operation+" "+logMsgCanceled, logAttrOrigin, o.origin.String())
	o.recordOutcome(StatusCanceled, time.Since(o.start))
	o.finishSpan(StatusCanceled, nil)
}

func (o *operationObserver) busy(lockKey string) {
	o.s.logInfo(o.ctx, logMsgOperation+o.operation+" "+logMsgBusy,
		logAttrOrigin, o.origin.String(),
		logAttrLockKey, lockKey,
	)

	o.recordOutcome(StatusBusy, time.Since(o.start))
	o.s.incrementCounter(o.ctx, metricLockBusy, o.labels(StatusBusy))
	o.finishSpan(StatusBusy, map[string]string{logAttrLockKey: lockKey})
}

func (o *operationObserver) failed(err error) {
	errorType := classifyError(err)

	o.s.logError(o.ctx, logMsgFailed+o.operation, err,
		logAttrOrigin, o.origin.String(),
		logAttrErrorType, errorType,
	)

	o.recordOutcome(StatusError, time.Since(o.start))

	labels := o.labels(StatusError)
	labels[labelErrorType] = errorType
	o.s.incrementCounter(o.ctx, metricErrors, labels)

	o.finishSpan(StatusError, map[string]string{labelErrorType: errorType})
}

func (o *operationObserver) recordOutcome(status string, duration time.Duration) {
	labels := o.labels(status)
	o.s.recordDuration(o.ctx, metricOperationDuration, duration, labels)
	o.s.incrementCounter(o.ctx, metricOperations, labels)
}

func (o *operationObserver) labels(status string) map[string]string {
	return map[string]string{
		labelOperation:  o.operation,
		labelStatus:     status,
		labelOriginType: o.origin.Type,
	}
}

func (o *operationObserver) finishSpan(status string, attrs map[string]string) {
	if o.span == nil || o.s.tracingCollector == nil {
		return
	}

	o.span.SetStatus(status)
	o.span.AddAttribute(logAttrDurationMS, fmt.Sprintf("%.2f", toMilliseconds(time.Since(o.start))))
	o.s.tracingCollector.FinishSpan(o.span, status, attrs)
}

// classifyError maps an error onto the taxonomy for metric labels.
func classifyError(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return errorTypeConfiguration
	case errors.Is(err, ErrRelation):
		return errorTypeRelation
	case errors.Is(err, ErrSnapshotIntegrity):
		return errorTypeIntegrity
	case errors.Is(err, ErrStepRange):
		return errorTypeStepRange
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errorTypeContext
	case errors.Is(err, ErrLockFailed):
		return errorTypeLock
	default:
		return errorTypeStore
	}
}

/***** Logging *****/

func (s *Snapshotter) logDebug(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
	}
}

func (s *Snapshotter) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
	}
}

func (s *Snapshotter) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
	}
}

func (s *Snapshotter) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if s.logger != nil {
		s.logger.Error(msg, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	}
}

/***** Metrics *****/

func (s *Snapshotter) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	s.metricsCollector.RecordDuration(metric, duration, labels)
}

func (s *Snapshotter) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metric, labels)
}

func (s *Snapshotter) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	s.metricsCollector.RecordValue(metric, value, labels)
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
