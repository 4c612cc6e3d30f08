package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the
// registration platform.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	preregCreated     prometheus.Counter
	importRows        *prometheus.CounterVec
	codesSent         prometheus.Counter
	registrationsDone prometheus.Counter
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
}

// NewMetricsService registers the platform's Prometheus collectors.
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

	preregCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preregistrations_created_total",
		Help: "Pre-registrations created by admins (single or bulk)",
	})

	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_rows_total",
		Help: "Bulk import rows by outcome",
	}, []string{"result"})

	codesSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verification_codes_sent_total",
		Help: "Verification codes emailed to students",
	})

	registrationsDone := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registrations_completed_total",
		Help: "Pre-registrations activated by students",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	registry.MustRegister(requestDuration, requestTotal, preregCreated, importRows,
		codesSent, registrationsDone, cacheHits, cacheMisses)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		preregCreated:     preregCreated,
		importRows:        importRows,
		codesSent:         codesSent,
		registrationsDone: registrationsDone,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records duration and count for a completed request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if s == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordPreRegistrationCreated counts a newly created record.
func (s *MetricsService) RecordPreRegistrationCreated() {
	if s == nil {
		return
	}
	s.preregCreated.Inc()
}

// RecordImportRow counts a processed bulk-import row by outcome.
func (s *MetricsService) RecordImportRow(result string) {
	if s == nil {
		return
	}
	s.importRows.WithLabelValues(result).Inc()
}

// RecordCodeSent counts an emailed verification code.
func (s *MetricsService) RecordCodeSent() {
	if s == nil {
		return
	}
	s.codesSent.Inc()
}

// RecordRegistrationCompleted counts a successful activation.
func (s *MetricsService) RecordRegistrationCompleted() {
	if s == nil {
		return
	}
	s.registrationsDone.Inc()
}

// RecordCacheLookup counts cache hits and misses.
func (s *MetricsService) RecordCacheLookup(hit bool) {
	if s == nil {
		return
	}
	if hit {
		s.cacheHits.Inc()
	} else {
		s.cacheMisses.Inc()
	}
}
