package observability

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// prometheusMetrics implements Metrics on a dedicated Prometheus registry.
// Collectors are registered lazily the first time a metric name is used; the
// label set of that first use fixes the label names for the lifetime of the
// collector, so callers must keep tag keys consistent per metric name.
type prometheusMetrics struct {
	registry *prometheus.Registry
	tags     map[string]string

	mu         *sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

func newPrometheusMetrics(registry *prometheus.Registry, tags map[string]string) *prometheusMetrics {
	return &prometheusMetrics{
		registry:   registry,
		tags:       tags,
		mu:         &sync.Mutex{},
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

func (m *prometheusMetrics) IncrementCounter(name string, tags map[string]string) {
	labels := m.mergeTags(tags)
	keys, values := labelPairs(labels)

	m.mu.Lock()
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: sanitizeMetricName(name),
			Help: name,
		}, keys)
		m.registry.MustRegister(vec)
		m.counters[name] = vec
	}
	m.mu.Unlock()

	counter, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return
	}
	counter.Inc()
}

func (m *prometheusMetrics) RecordHistogram(name string, value float64, tags map[string]string) {
	labels := m.mergeTags(tags)
	keys, values := labelPairs(labels)

	m.mu.Lock()
	vec, ok := m.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    sanitizeMetricName(name),
			Help:    name,
			Buckets: prometheus.DefBuckets,
		}, keys)
		m.registry.MustRegister(vec)
		m.histograms[name] = vec
	}
	m.mu.Unlock()

	histogram, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return
	}
	histogram.Observe(value)
}

func (m *prometheusMetrics) RecordGauge(name string, value float64, tags map[string]string) {
	labels := m.mergeTags(tags)
	keys, values := labelPairs(labels)

	m.mu.Lock()
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: sanitizeMetricName(name),
			Help: name,
		}, keys)
		m.registry.MustRegister(vec)
		m.gauges[name] = vec
	}
	m.mu.Unlock()

	gauge, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return
	}
	gauge.Set(value)
}

// WithTags returns a Metrics instance that adds the given tags to every
// recording. Collector maps are shared with the parent so the same metric
// name always resolves to the same collector.
func (m *prometheusMetrics) WithTags(tags map[string]string) Metrics {
	merged := make(map[string]string, len(m.tags)+len(tags))
	for k, v := range m.tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}

	return &prometheusMetrics{
		registry:   m.registry,
		tags:       merged,
		mu:         m.mu,
		counters:   m.counters,
		histograms: m.histograms,
		gauges:     m.gauges,
	}
}

func (m *prometheusMetrics) mergeTags(tags map[string]string) map[string]string {
	merged := make(map[string]string, len(m.tags)+len(tags))
	for k, v := range m.tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	return merged
}

// labelPairs returns label keys in deterministic order with their values.
func labelPairs(labels map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return keys, values
}

// sanitizeMetricName converts dotted metric names into Prometheus-legal
// underscore form: "store.update.errors" -> "store_update_errors".
func sanitizeMetricName(name string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return replacer.Replace(name)
}

// noopMetrics discards all recordings. Used in tests and when metrics are
// disabled.
type noopMetrics struct{}

// NewNoopMetrics returns a Metrics implementation that does nothing.
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) IncrementCounter(string, map[string]string)         {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string) {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)     {}
func (noopMetrics) WithTags(map[string]string) Metrics                 { return noopMetrics{} }
