// Package promadapters provides a Prometheus implementation of snapshot.MetricsCollector.
//
// Durations become histograms in seconds, counters become counter vectors and recorded values become
// gauges. Every metric gets its own vector, created on first use with the label names of that call.
//
// Example usage:
//
//	collector := promadapters.NewMetricsCollector(promadapters.WithNamespace("app"))
//	snapshotter, err := snapshot.NewSnapshotter(store, snapshot.WithMetrics(collector))
//
//	http.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
package promadapters
