package promadapters

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector implements snapshot.MetricsCollector on a dedicated Prometheus registry.
// A metric keeps the label names of its first observation; later observations fill missing
// labels with "" and drop unknown ones, as Prometheus requires a fixed label set per metric.
type MetricsCollector struct {
	registry   *prometheus.Registry
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	histograms map[string]*labeledVec[*prometheus.HistogramVec]
	counters   map[string]*labeledVec[*prometheus.CounterVec]
	gauges     map[string]*labeledVec[*prometheus.GaugeVec]
}

type labeledVec[V any] struct {
	vec        V
	labelNames []string
}

// Option configures the MetricsCollector.
type Option func(*MetricsCollector)

// WithNamespace prefixes every metric name with "<namespace>_".
func WithNamespace(namespace string) Option {
	return func(c *MetricsCollector) {
		c.namespace = namespace
	}
}

// WithBuckets replaces the histogram buckets, prometheus.DefBuckets by default.
func WithBuckets(buckets []float64) Option {
	return func(c *MetricsCollector) {
		if len(buckets) > 0 {
			c.buckets = buckets
		}
	}
}

// WithRegisterer registers the metrics with an existing registerer, e.g. prometheus.DefaultRegisterer,
// instead of the collector's own registry.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(c *MetricsCollector) {
		if registerer != nil {
			c.registerer = registerer
		}
	}
}

// NewMetricsCollector creates a MetricsCollector with its own registry.
func NewMetricsCollector(options ...Option) *MetricsCollector {
	registry := prometheus.NewRegistry()

	c := &MetricsCollector{
		registry:   registry,
		registerer: registry,
		buckets:    prometheus.DefBuckets,
		histograms: make(map[string]*labeledVec[*prometheus.HistogramVec]),
		counters:   make(map[string]*labeledVec[*prometheus.CounterVec]),
		gauges:     make(map[string]*labeledVec[*prometheus.GaugeVec]),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Registry returns the collector's own registry, to be exposed via promhttp.HandlerFor.
func (c *MetricsCollector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordDuration observes the duration in seconds on the metric's histogram.
func (c *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	c.mu.Lock()
	entry, ok := c.histograms[metric]
	if !ok {
		names := labelNames(labels)
		entry = &labeledVec[*prometheus.HistogramVec]{
			vec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: c.namespace,
				Name:      metric,
				Help:      "Duration of " + metric + " in seconds",
				Buckets:   c.buckets,
			}, names),
			labelNames: names,
		}
		entry.vec = register(c.registerer, entry.vec)
		c.histograms[metric] = entry
	}
	c.mu.Unlock()

	entry.vec.WithLabelValues(labelValues(entry.labelNames, labels)...).Observe(duration.Seconds())
}

// IncrementCounter adds one to the metric's counter.
func (c *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	c.mu.Lock()
	entry, ok := c.counters[metric]
	if !ok {
		names := labelNames(labels)
		entry = &labeledVec[*prometheus.CounterVec]{
			vec: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: c.namespace,
				Name:      metric,
				Help:      "Total of " + metric,
			}, names),
			labelNames: names,
		}
		entry.vec = register(c.registerer, entry.vec)
		c.counters[metric] = entry
	}
	c.mu.Unlock()

	entry.vec.WithLabelValues(labelValues(entry.labelNames, labels)...).Inc()
}

// RecordValue sets the metric's gauge to the value.
func (c *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	entry, ok := c.gauges[metric]
	if !ok {
		names := labelNames(labels)
		entry = &labeledVec[*prometheus.GaugeVec]{
			vec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: c.namespace,
				Name:      metric,
				Help:      "Last recorded " + metric,
			}, names),
			labelNames: names,
		}
		entry.vec = register(c.registerer, entry.vec)
		c.gauges[metric] = entry
	}
	c.mu.Unlock()

	entry.vec.WithLabelValues(labelValues(entry.labelNames, labels)...).Set(value)
}

// register returns the already registered vector when two collectors share a registerer.
// Like prometheus.MustRegister it panics on any other registration error.
func register[V prometheus.Collector](registerer prometheus.Registerer, vec V) V {
	err := registerer.Register(vec)
	if err == nil {
		return vec
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(V); ok {
			return existing
		}
	}

	panic(err)
}

func labelNames(labels map[string]string) []string {
	return slices.Sorted(maps.Keys(labels))
}

func labelValues(names []string, labels map[string]string) []string {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = labels[name]
	}

	return values
}
