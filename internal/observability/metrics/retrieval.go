package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RetrievalMetrics aggregates the API-side counters on a private registry so
// tests can build isolated instances.
type RetrievalMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queriesTotal       *prometheus.CounterVec
	retrievedDocs      *prometheus.HistogramVec
	degradedTotal      *prometheus.CounterVec
	thresholdMethod    *prometheus.CounterVec
	workflowDuration   *prometheus.HistogramVec
	reflectionRounds   *prometheus.HistogramVec
	correctionRounds   *prometheus.HistogramVec
	reindexBuildsTotal *prometheus.CounterVec
}

func NewRetrievalMetrics(service string) *RetrievalMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheme_rag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scheme_rag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scheme_rag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheme_rag",
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Total routed retrieval queries by intent and mode.",
		},
		[]string{"service", "intent", "mode"},
	)
	retrievedDocs := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scheme_rag",
			Subsystem: "retrieval",
			Name:      "returned_docs",
			Help:      "Distribution of documents returned per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheme_rag",
			Subsystem: "retrieval",
			Name:      "degraded_total",
			Help:      "Total queries answered on a reduced-capability path.",
		},
		[]string{"service", "reason"},
	)
	thresholdMethod := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheme_rag",
			Subsystem: "retrieval",
			Name:      "threshold_method_total",
			Help:      "Total adaptive-threshold decisions by winning method.",
		},
		[]string{"service", "method"},
	)
	workflowDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scheme_rag",
			Subsystem: "workflow",
			Name:      "duration_seconds",
			Help:      "End-to-end refinement workflow duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	reflectionRounds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scheme_rag",
			Subsystem: "workflow",
			Name:      "reflection_rounds",
			Help:      "Distribution of query rewrites per workflow run.",
			Buckets:   []float64{0, 1, 2, 3},
		},
		[]string{"service"},
	)
	correctionRounds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scheme_rag",
			Subsystem: "workflow",
			Name:      "correction_rounds",
			Help:      "Distribution of answer corrections per workflow run.",
			Buckets:   []float64{0, 1, 2, 3},
		},
		[]string{"service"},
	)
	reindexBuildsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheme_rag",
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Total lexical and entity index rebuilds by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		retrievedDocs,
		degradedTotal,
		thresholdMethod,
		workflowDuration,
		reflectionRounds,
		correctionRounds,
		reindexBuildsTotal,
	)

	return &RetrievalMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		queriesTotal:       queriesTotal,
		retrievedDocs:      retrievedDocs,
		degradedTotal:      degradedTotal,
		thresholdMethod:    thresholdMethod,
		workflowDuration:   workflowDuration,
		reflectionRounds:   reflectionRounds,
		correctionRounds:   correctionRounds,
		reindexBuildsTotal: reindexBuildsTotal,
	}
}

func (m *RetrievalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *RetrievalMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *RetrievalMetrics) RecordQuery(service, intent, mode string, docCount int) {
	if intent == "" {
		intent = "unknown"
	}
	if mode == "" {
		mode = "unknown"
	}
	m.queriesTotal.WithLabelValues(service, intent, mode).Inc()
	m.retrievedDocs.WithLabelValues(service).Observe(float64(docCount))
}

func (m *RetrievalMetrics) RecordDegradation(service, reason string) {
	if reason == "" {
		return
	}
	m.degradedTotal.WithLabelValues(service, reason).Inc()
}

func (m *RetrievalMetrics) RecordThresholdMethod(service, method string) {
	if method == "" {
		method = "unknown"
	}
	m.thresholdMethod.WithLabelValues(service, method).Inc()
}

func (m *RetrievalMetrics) RecordWorkflow(service string, duration time.Duration, reflections, corrections int) {
	m.workflowDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.reflectionRounds.WithLabelValues(service).Observe(float64(reflections))
	m.correctionRounds.WithLabelValues(service).Observe(float64(corrections))
}

func (m *RetrievalMetrics) RecordIndexRebuild(service string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.reindexBuildsTotal.WithLabelValues(service, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
