// Package metrics provides Prometheus metrics for the retrieval service
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service. Each instance owns a
// private registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Retrieval metrics
	SearchQueriesTotal *prometheus.CounterVec
	SearchResultsTotal prometheus.Counter
	SearchDuration     *prometheus.HistogramVec

	// Answer metrics
	AnswersTotal       *prometheus.CounterVec
	StrategyFailures   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec

	// Index metrics
	IndexBuildsTotal   *prometheus.CounterVec
	IndexBuildDuration prometheus.Histogram
	EmbeddingBatches   *prometheus.CounterVec
	IndexedChunks      prometheus.Gauge
}

// NewMetrics creates and registers all metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nyayasetu_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nyayasetu_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.SearchQueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nyayasetu_search_queries_total",
			Help: "Total number of search queries by mode",
		},
		[]string{"mode"},
	)

	m.SearchResultsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "nyayasetu_search_results_total",
			Help: "Total number of search results returned",
		},
	)

	m.SearchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nyayasetu_search_duration_seconds",
			Help:    "Duration of search queries in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"mode"},
	)

	m.AnswersTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nyayasetu_answers_total",
			Help: "Total number of answers by the strategy that produced them",
		},
		[]string{"strategy"},
	)

	m.StrategyFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nyayasetu_answer_strategy_failures_total",
			Help: "Total number of failed answer strategy attempts",
		},
		[]string{"strategy", "reason"},
	)

	m.GenerationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nyayasetu_generation_duration_seconds",
			Help:    "Duration of generator calls in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	m.IndexBuildsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nyayasetu_index_builds_total",
			Help: "Total number of index builds by outcome",
		},
		[]string{"status"},
	)

	m.IndexBuildDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nyayasetu_index_build_duration_seconds",
			Help:    "Duration of index builds in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	m.EmbeddingBatches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nyayasetu_embedding_batches_total",
			Help: "Total number of embedding batches by outcome",
		},
		[]string{"status"},
	)

	m.IndexedChunks = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "nyayasetu_indexed_chunks",
			Help: "Number of chunks in the active index snapshot",
		},
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency per route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordSearch records a completed search
func (m *Metrics) RecordSearch(mode string, results int, duration time.Duration) {
	m.SearchQueriesTotal.WithLabelValues(mode).Inc()
	m.SearchResultsTotal.Add(float64(results))
	m.SearchDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordAnswer records which strategy produced an answer
func (m *Metrics) RecordAnswer(strategy string) {
	m.AnswersTotal.WithLabelValues(strategy).Inc()
}

// RecordStrategyFailure records a strategy attempt that did not produce an answer
func (m *Metrics) RecordStrategyFailure(strategy, reason string) {
	m.StrategyFailures.WithLabelValues(strategy, reason).Inc()
}

// RecordGeneration records the latency of a generator call
func (m *Metrics) RecordGeneration(provider string, duration time.Duration) {
	m.GenerationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordBuild records a finished index build
func (m *Metrics) RecordBuild(status string, chunks int, duration time.Duration) {
	m.IndexBuildsTotal.WithLabelValues(status).Inc()
	m.IndexBuildDuration.Observe(duration.Seconds())
	if status == "completed" {
		m.IndexedChunks.Set(float64(chunks))
	}
}

// RecordEmbeddingBatch records one embedding batch outcome
func (m *Metrics) RecordEmbeddingBatch(ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	m.EmbeddingBatches.WithLabelValues(status).Inc()
}
