// Package oteladapters provides OpenTelemetry adapters for the snapshot observability interfaces.
//
// It lives in its own module so the core snapshot module does not depend on OpenTelemetry.
//
// Example usage:
//
//	snapshotter, err := snapshot.NewSnapshotter(store,
//		snapshot.WithContextualLogger(oteladapters.NewSlogBridgeLogger("snapshots")),
//		snapshot.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("snapshots"))),
//		snapshot.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("snapshots"))),
//	)
package oteladapters
