package service

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the clearance
// engine and the HTTP layer.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	decisionsTotal      *prometheus.CounterVec
	reapplicationsTotal prometheus.Counter
	completionsTotal    prometheus.Counter
	certificateFailures prometheus.Counter
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	decisionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clearance_decisions_total",
		Help: "Department decisions applied, by department and action",
	}, []string{"department", "action"})

	reapplicationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clearance_reapplications_total",
		Help: "Successful reapplications",
	})

	completionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clearance_completions_total",
		Help: "Forms completed with a published certificate",
	})

	certificateFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certificate_generation_failures_total",
		Help: "Certificate generation attempts that failed",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "status_cache_hits_total",
		Help: "Status lookups served from cache",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "status_cache_misses_total",
		Help: "Status lookups that missed the cache",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, decisionsTotal, reapplicationsTotal,
		completionsTotal, certificateFailures, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		decisionsTotal:      decisionsTotal,
		reapplicationsTotal: reapplicationsTotal,
		completionsTotal:    completionsTotal,
		certificateFailures: certificateFailures,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveRequest records one HTTP request sample.
func (m *MetricsService) ObserveRequest(method, path, status string, seconds float64) {
	m.requestDuration.WithLabelValues(method, path, status).Observe(seconds)
	m.requestTotal.WithLabelValues(method, path, status).Inc()
}

// RecordDecision counts one committed department decision.
func (m *MetricsService) RecordDecision(department, action string) {
	m.decisionsTotal.WithLabelValues(department, action).Inc()
}

// RecordReapplication counts one committed reapplication.
func (m *MetricsService) RecordReapplication() {
	m.reapplicationsTotal.Inc()
}

// RecordCompletion counts one published certificate.
func (m *MetricsService) RecordCompletion() {
	m.completionsTotal.Inc()
}

// RecordCertificateFailure counts one failed generation attempt.
func (m *MetricsService) RecordCertificateFailure() {
	m.certificateFailures.Inc()
}

// RecordCacheHit counts one status cache hit.
func (m *MetricsService) RecordCacheHit() {
	m.cacheHits.Inc()
}

// RecordCacheMiss counts one status cache miss.
func (m *MetricsService) RecordCacheMiss() {
	m.cacheMisses.Inc()
}
