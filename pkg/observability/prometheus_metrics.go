package observability

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsClient implements MetricsClient using Prometheus
// collectors. Collectors are created lazily on first use and registered with
// the supplied registerer. The label set observed on first use of a metric
// name is fixed for its lifetime; later calls are projected onto it.
type PrometheusMetricsClient struct {
	namespace  string
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*labeledVec[*prometheus.CounterVec]
	gauges     map[string]*labeledVec[*prometheus.GaugeVec]
	histograms map[string]*labeledVec[*prometheus.HistogramVec]
}

type labeledVec[T any] struct {
	vec        T
	labelNames []string
}

// NewPrometheusMetricsClient creates a Prometheus-backed metrics client.
// A nil registerer defaults to the process-global registry.
func NewPrometheusMetricsClient(namespace string, registerer prometheus.Registerer) *PrometheusMetricsClient {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PrometheusMetricsClient{
		namespace:  namespace,
		registerer: registerer,
		counters:   make(map[string]*labeledVec[*prometheus.CounterVec]),
		gauges:     make(map[string]*labeledVec[*prometheus.GaugeVec]),
		histograms: make(map[string]*labeledVec[*prometheus.HistogramVec]),
	}
}

// IncrementCounterWithLabels increments a counter metric.
func (c *PrometheusMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	lv, ok := c.counters[name]
	if !ok {
		lv = &labeledVec[*prometheus.CounterVec]{
			vec: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: c.namespace,
				Name:      sanitizeMetricName(name),
				Help:      "Counter for " + name,
			}, labelNames(labels)),
			labelNames: labelNames(labels),
		}
		c.registerer.MustRegister(lv.vec)
		c.counters[name] = lv
	}
	c.mu.Unlock()

	lv.vec.With(projectLabels(lv.labelNames, labels)).Add(value)
}

// RecordGauge sets a gauge metric.
func (c *PrometheusMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	lv, ok := c.gauges[name]
	if !ok {
		lv = &labeledVec[*prometheus.GaugeVec]{
			vec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: c.namespace,
				Name:      sanitizeMetricName(name),
				Help:      "Gauge for " + name,
			}, labelNames(labels)),
			labelNames: labelNames(labels),
		}
		c.registerer.MustRegister(lv.vec)
		c.gauges[name] = lv
	}
	c.mu.Unlock()

	lv.vec.With(projectLabels(lv.labelNames, labels)).Set(value)
}

// RecordHistogram records an observation in a histogram metric.
func (c *PrometheusMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	lv, ok := c.histograms[name]
	if !ok {
		lv = &labeledVec[*prometheus.HistogramVec]{
			vec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: c.namespace,
				Name:      sanitizeMetricName(name),
				Help:      "Histogram for " + name,
				Buckets:   prometheus.DefBuckets,
			}, labelNames(labels)),
			labelNames: labelNames(labels),
		}
		c.registerer.MustRegister(lv.vec)
		c.histograms[name] = lv
	}
	c.mu.Unlock()

	lv.vec.With(projectLabels(lv.labelNames, labels)).Observe(value)
}

// RecordDuration records a duration as a histogram observation in seconds.
func (c *PrometheusMetricsClient) RecordDuration(name string, duration time.Duration) {
	c.RecordHistogram(name, duration.Seconds(), nil)
}

// Close implements MetricsClient. Prometheus collectors need no teardown.
func (c *PrometheusMetricsClient) Close() error { return nil }

func sanitizeMetricName(name string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(name)
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func projectLabels(names []string, labels map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(names))
	for _, n := range names {
		out[n] = labels[n]
	}
	return out
}
