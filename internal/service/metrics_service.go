package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface, the
// enrollment saga and the seat inventory.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheLookups      *prometheus.CounterVec
	sagaOutcomes      *prometheus.CounterVec
	sagaDuration      prometheus.Observer
	compensations     *prometheus.CounterVec
	admissionFailures *prometheus.CounterVec
	seatOperations    *prometheus.HistogramVec
	reconciliations   *prometheus.CounterVec
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Catalog cache lookups by result",
	}, []string{"result"})

	sagaOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_saga_outcomes_total",
		Help: "Enrollment attempts by terminal outcome",
	}, []string{"outcome"})

	sagaDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrollment_saga_duration_seconds",
		Help:    "End to end duration of enrollment attempts",
		Buckets: prometheus.DefBuckets,
	})

	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_compensations_total",
		Help: "Compensating seat releases by result",
	}, []string{"result"})

	admissionFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_check_failures_total",
		Help: "Failed admission checks by check and reason code",
	}, []string{"check", "reason"})

	seatOperations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seat_operation_duration_seconds",
		Help:    "Duration of seat inventory operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "result"})

	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_reconciliations_total",
		Help: "Seat reconciliation runs by outcome",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups, sagaOutcomes, sagaDuration,
		compensations, admissionFailures, seatOperations, reconciliations, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheLookups:      cacheLookups,
		sagaOutcomes:      sagaOutcomes,
		sagaDuration:      sagaDuration,
		compensations:     compensations,
		admissionFailures: admissionFailures,
		seatOperations:    seatOperations,
		reconciliations:   reconciliations,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveSaga records the terminal outcome of an enrollment attempt.
func (m *MetricsService) ObserveSaga(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sagaOutcomes.WithLabelValues(outcome).Inc()
	m.sagaDuration.Observe(duration.Seconds())
}

// RecordCompensation counts a compensating release.
func (m *MetricsService) RecordCompensation(succeeded bool) {
	if m == nil {
		return
	}
	result := "released"
	if !succeeded {
		result = "failed"
	}
	m.compensations.WithLabelValues(result).Inc()
}

// RecordAdmissionFailure counts a failing admission check.
func (m *MetricsService) RecordAdmissionFailure(check, reason string) {
	if m == nil {
		return
	}
	m.admissionFailures.WithLabelValues(check, reason).Inc()
}

// ObserveSeatOperation records a reserve, release or get against the seat store.
func (m *MetricsService) ObserveSeatOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.seatOperations.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// RecordReconciliation counts a reconciliation run.
func (m *MetricsService) RecordReconciliation(status string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(status).Inc()
}
