package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter bridges the Registry's Counter/Gauge/Histogram values
// into github.com/prometheus/client_golang and serves them over HTTP in
// Prometheus exposition format.
type PrometheusExporter struct {
	config   PrometheusConfig
	registry *Registry
	promReg  *prometheus.Registry
}

// PrometheusConfig configures the Prometheus exporter.
type PrometheusConfig struct {
	// Namespace is an optional prefix prepended to all metric names
	// (e.g. "gateway" turns the counter "gateway.received_commitments" into
	// "gateway_gateway_received_commitments"; no "_total" suffix is added).
	Namespace string
	// Path is the HTTP path to serve metrics on (default "/metrics").
	Path string
}

// DefaultPrometheusConfig returns a config with sensible defaults.
func DefaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		Namespace: "gateway",
		Path:      "/metrics",
	}
}

// NewPrometheusExporter creates a new exporter that reads from the given
// registry and registers itself (as a prometheus.Collector) plus the
// standard process/Go runtime collectors against a fresh prometheus
// registry.
func NewPrometheusExporter(registry *Registry, config PrometheusConfig) *PrometheusExporter {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	pe := &PrometheusExporter{
		config:   config,
		registry: registry,
		promReg:  prometheus.NewRegistry(),
	}
	pe.promReg.MustRegister(pe)
	pe.promReg.MustRegister(prometheus.NewGoCollector())
	pe.promReg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return pe
}

// Handler returns an http.Handler that serves the configured metrics path.
func (pe *PrometheusExporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(pe.config.Path, promhttp.HandlerFor(pe.promReg, promhttp.HandlerOpts{}))
	return mux
}

// Describe implements prometheus.Collector. The set of names is dynamic
// (metrics are created on first use), so no descriptors are sent up front;
// client_golang tolerates unchecked collectors registered this way.
func (pe *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector, translating the current
// Registry snapshot into Prometheus samples.
func (pe *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	pe.registry.mu.RLock()
	defer pe.registry.mu.RUnlock()

	for name, c := range pe.registry.counters {
		desc := prometheus.NewDesc(pe.promName(name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(c.Value()))
	}
	for name, g := range pe.registry.gauges {
		desc := prometheus.NewDesc(pe.promName(name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(g.Value()))
	}
	for name, h := range pe.registry.histograms {
		desc := prometheus.NewDesc(pe.promName(name)+"_summary", name, nil, nil)
		ch <- prometheus.MustNewConstSummary(desc, uint64(h.Count()), h.Sum(), nil)
	}
}

// promName converts a dot-separated metric name to Prometheus format.
func (pe *PrometheusExporter) promName(name string) string {
	sanitized := strings.ReplaceAll(name, ".", "_")
	sanitized = strings.ReplaceAll(sanitized, "-", "_")
	if pe.config.Namespace != "" {
		return pe.config.Namespace + "_" + sanitized
	}
	return sanitized
}
