package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bog_rag_query_duration_seconds",
			Help:    "End-to-end query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"variant"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bog_rag_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	RetrievalResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bog_rag_retrieval_results_count",
			Help:    "Number of chunks returned per similarity search",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 150},
		},
	)

	RelaxedRetryTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bog_rag_relaxed_retry_total",
			Help: "Retrievals retried with relaxed parameters after an empty result",
		},
	)

	FallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bog_rag_fallback_total",
			Help: "Answers served from a static fallback instead of the LLM",
		},
		[]string{"reason"},
	)

	ContextChunksSelected = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bog_rag_context_chunks_selected",
			Help:    "Chunks fitted into the token budget per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bog_rag_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bog_rag_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bog_rag_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(RetrievalResults)
	prometheus.MustRegister(RelaxedRetryTotal)
	prometheus.MustRegister(FallbackTotal)
	prometheus.MustRegister(ContextChunksSelected)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
