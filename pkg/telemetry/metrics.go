package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for resolution, caching and loading.
// A nil or disabled *Metrics accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	cacheRequests   *prometheus.CounterVec
	cacheEntries    *prometheus.GaugeVec
	loaderAttempts  *prometheus.CounterVec
	loaderDuration  *prometheus.HistogramVec
	resolutions     *prometheus.CounterVec
	compileDuration prometheus.Histogram
	errorsByCode    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Cache lookups by tier and result (hit, miss, bypass)",
			},
			[]string{"tier", "result"},
		),
		cacheEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Current number of entries per cache tier",
			},
			[]string{"tier"},
		),
		loaderAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loader_attempts_total",
				Help:      "Remote fetch attempts by loader and outcome",
			},
			[]string{"loader", "outcome"},
		),
		loaderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "loader_duration_seconds",
				Help:      "Duration of loader invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"loader"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Model resolutions by context kind and status",
			},
			[]string{"kind", "status"},
		),
		compileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "Duration of model compilation in seconds",
				Buckets:   buckets,
			},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Resolution failures by error class and code",
			},
			[]string{"class", "code"},
		),
	}

	registry.MustRegister(
		m.cacheRequests,
		m.cacheEntries,
		m.loaderAttempts,
		m.loaderDuration,
		m.resolutions,
		m.compileDuration,
		m.errorsByCode,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// RecordCacheRequest counts a cache lookup; result is hit, miss, shared or
// bypass.
func (m *Metrics) RecordCacheRequest(tier, result string) {
	if !m.enabled() {
		return
	}
	m.cacheRequests.WithLabelValues(tier, result).Inc()
}

// SetCacheEntries sets the current size of a cache tier.
func (m *Metrics) SetCacheEntries(tier string, n int) {
	if !m.enabled() {
		return
	}
	m.cacheEntries.WithLabelValues(tier).Set(float64(n))
}

// RecordLoaderAttempt counts one remote attempt; outcome is ok, retry or fail.
func (m *Metrics) RecordLoaderAttempt(loader, outcome string) {
	if !m.enabled() {
		return
	}
	m.loaderAttempts.WithLabelValues(loader, outcome).Inc()
}

// RecordLoad observes the duration of one loader invocation.
func (m *Metrics) RecordLoad(loader string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.loaderDuration.WithLabelValues(loader).Observe(duration.Seconds())
}

// RecordResolution counts a finished resolution.
func (m *Metrics) RecordResolution(kind, status string) {
	if !m.enabled() {
		return
	}
	m.resolutions.WithLabelValues(kind, status).Inc()
}

// RecordCompile observes the duration of one compilation.
func (m *Metrics) RecordCompile(duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.compileDuration.Observe(duration.Seconds())
}

// RecordError counts a failure by class and code.
func (m *Metrics) RecordError(class, code string) {
	if !m.enabled() {
		return
	}
	m.errorsByCode.WithLabelValues(class, code).Inc()
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer measures elapsed time for an operation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// NewMetricsServer returns an HTTP server exposing the metrics endpoint.
func (m *Metrics) NewMetricsServer() (*http.Server, error) {
	if !m.enabled() {
		return nil, fmt.Errorf("metrics are disabled")
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	return &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}
