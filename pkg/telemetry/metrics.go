package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for configuration resolution.
type Metrics struct {
	config MetricsConfig

	// Parse metrics
	parses        *prometheus.CounterVec
	parseDuration prometheus.Histogram

	// Cache metrics
	cacheRequests *prometheus.CounterVec

	// Resolution metrics
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	injectedTypes      prometheus.Counter
	unresolvedLinks    prometheus.Counter

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
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

		parses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_parses_total",
				Help:      "Total number of configuration file parses",
			},
			[]string{"status"},
		),
		parseDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "config_parse_duration_seconds",
				Help:      "Duration of configuration parsing in seconds",
				Buckets:   buckets,
			},
		),

		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Total number of cache lookups by result",
			},
			[]string{"cache", "result"},
		),

		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of program resolutions",
			},
			[]string{"status"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Duration of resolution phases in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),
		injectedTypes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "injected_types_total",
				Help:      "Total number of type definitions injected with foreign interfaces",
			},
		),
		unresolvedLinks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unresolved_type_links_total",
				Help:      "Total number of type links left unresolved",
			},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.parses,
		m.parseDuration,
		m.cacheRequests,
		m.resolutions,
		m.resolutionDuration,
		m.injectedTypes,
		m.unresolvedLinks,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// RecordParse records a configuration parse with its outcome and duration.
func (m *Metrics) RecordParse(status string, duration time.Duration) {
	if m == nil || m.parses == nil {
		return
	}
	m.parses.WithLabelValues(status).Inc()
	m.parseDuration.Observe(duration.Seconds())
}

// RecordCacheRequest records a cache hit or miss.
func (m *Metrics) RecordCacheRequest(cache string, hit bool) {
	if m == nil || m.cacheRequests == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(cache, result).Inc()
}

// RecordResolution records the outcome of a full resolution.
func (m *Metrics) RecordResolution(status string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(status).Inc()
}

// RecordPhase records the duration of one resolution phase.
func (m *Metrics) RecordPhase(phase string, duration time.Duration) {
	if m == nil || m.resolutionDuration == nil {
		return
	}
	m.resolutionDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// AddInjectedTypes counts type definitions copied into a program.
func (m *Metrics) AddInjectedTypes(n int) {
	if m == nil || m.injectedTypes == nil {
		return
	}
	m.injectedTypes.Add(float64(n))
}

// AddUnresolvedLinks counts type links left unresolved.
func (m *Metrics) AddUnresolvedLinks(n int) {
	if m == nil || m.unresolvedLinks == nil {
		return
	}
	m.unresolvedLinks.Add(float64(n))
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
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
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if m == nil || !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
