// Package observability exposes Prometheus metrics and OTLP tracing
// for the ingestion and query pipelines.
//
// Prometheus scrapes /metrics and sees data like:
//
//	# HELP rag_documents_total Documents that reached a terminal ingestion state
//	# TYPE rag_documents_total counter
//	rag_documents_total{status="ready"} 42
//
//	# HELP rag_query_duration_seconds Query pipeline latency
//	# TYPE rag_query_duration_seconds histogram
//	rag_query_duration_seconds_bucket{le="0.5"} 1200
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
)

// Metrics holds the pipeline's Prometheus instruments. It implements
// rag.ProgressSink so ingestion metrics fall out of the progress
// stream without coupling the pipeline to Prometheus.
type Metrics struct {
	registry *prometheus.Registry

	documentsTotal   *prometheus.CounterVec
	ingestStage      *prometheus.GaugeVec
	chunksStored     prometheus.Counter
	placeholdersUsed prometheus.Counter
	cacheHits        prometheus.Counter
	queriesTotal     *prometheus.CounterVec
	queryDuration    prometheus.Histogram
	queryConfidence  prometheus.Histogram
	storeFailovers   prometheus.Counter
}

// MetricsOption configures the metrics provider.
type MetricsOption func(*Metrics)

// WithRegistry uses a custom Prometheus registry.
func WithRegistry(registry *prometheus.Registry) MetricsOption {
	return func(m *Metrics) { m.registry = registry }
}

// NewMetrics creates and registers the pipeline instruments. By
// default it creates a new registry and includes the Go runtime
// collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(m)
	}

	m.documentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_documents_total",
		Help: "Documents that reached a terminal ingestion state",
	}, []string{"status"})
	m.ingestStage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rag_ingest_in_stage",
		Help: "Documents currently in each ingestion stage",
	}, []string{"stage"})
	m.chunksStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rag_chunks_stored_total",
		Help: "Chunk vectors written to the store",
	})
	m.placeholdersUsed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rag_placeholder_vectors_total",
		Help: "Chunks stored with placeholder vectors during embedding outages",
	})
	m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rag_embedding_cache_hits_total",
		Help: "Embedding requests served from cache",
	})
	m.queriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_queries_total",
		Help: "Query pipeline runs by outcome",
	}, []string{"outcome"})
	m.queryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_query_duration_seconds",
		Help:    "Query pipeline latency",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	m.queryConfidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_query_confidence",
		Help:    "Confidence score distribution of answered queries",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
	m.storeFailovers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rag_store_failovers_total",
		Help: "Operations served by the fallback vector store",
	})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.documentsTotal,
		m.ingestStage,
		m.chunksStored,
		m.placeholdersUsed,
		m.cacheHits,
		m.queriesTotal,
		m.queryDuration,
		m.queryConfidence,
		m.storeFailovers,
	)
	return m
}

// Publish consumes one ingestion progress event. Terminal states count
// toward rag_documents_total; non-terminal states move the stage gauge.
func (m *Metrics) Publish(event rag.ProgressEvent) {
	if event.Status.Terminal() {
		m.documentsTotal.WithLabelValues(string(event.Status)).Inc()
		return
	}
	m.ingestStage.WithLabelValues(string(event.Status)).Set(float64(event.Progress))
}

// ObserveChunksStored records vectors written to the store, with how
// many of them carry placeholder embeddings.
func (m *Metrics) ObserveChunksStored(total, placeholders int) {
	m.chunksStored.Add(float64(total))
	if placeholders > 0 {
		m.placeholdersUsed.Add(float64(placeholders))
	}
}

// ObserveCacheHits records embedding cache hits.
func (m *Metrics) ObserveCacheHits(hits int) {
	if hits > 0 {
		m.cacheHits.Add(float64(hits))
	}
}

// ObserveQuery records one query pipeline run.
func (m *Metrics) ObserveQuery(duration time.Duration, pkg *rag.ContextPackage, err error) {
	m.queryDuration.Observe(duration.Seconds())
	switch {
	case err != nil:
		m.queriesTotal.WithLabelValues("error").Inc()
	case pkg.Empty():
		m.queriesTotal.WithLabelValues("empty").Inc()
	case pkg.LowConfidence:
		m.queriesTotal.WithLabelValues("low_confidence").Inc()
	default:
		m.queriesTotal.WithLabelValues("answered").Inc()
	}
	if err == nil {
		m.queryConfidence.Observe(pkg.Confidence)
	}
}

// ObserveFailover records an operation served by the fallback store.
func (m *Metrics) ObserveFailover() {
	m.storeFailovers.Inc()
}

// Handler returns an HTTP handler for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
