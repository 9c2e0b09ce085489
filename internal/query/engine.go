// Package query implements the retrieval-augmented answering pipeline.
// One Engine serves every front end; the HTTP and chat handlers are thin
// adapters over ProcessQuery.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bog-assistant/backend/internal/assembler"
	"github.com/bog-assistant/backend/internal/kg/neo4j"
	"github.com/bog-assistant/backend/internal/metadata"
	"github.com/bog-assistant/backend/internal/metrics"
	"github.com/bog-assistant/backend/internal/storage/models"
	"github.com/bog-assistant/backend/pkg/config"
	"github.com/bog-assistant/backend/pkg/logger"
	"github.com/bog-assistant/backend/pkg/utils"
)

var ErrEmptyQuery = errors.New("query must not be empty")

const (
	// Shown when even the relaxed retrieval finds nothing.
	fallbackNoResults = "I'm sorry, I couldn't retrieve any relevant information. Please try rephrasing your query."
	// Shown when chunks were retrieved but none fit the token budget.
	fallbackNoContext = "I'm sorry, the information is not available right now."
)

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type Retriever interface {
	SearchChunks(ctx context.Context, embedding []float32, topK int, minScore float64, filters metadata.Filters) ([]neo4j.Chunk, error)
}

type Generator interface {
	GenerateAnswer(ctx context.Context, query, contextText string) (string, error)
}

type HistoryStore interface {
	InsertQueryRecord(record *models.QueryRecord) error
}

type Cache interface {
	GetAnswer(ctx context.Context, queryHash string, response interface{}) (bool, error)
	SetAnswer(ctx context.Context, queryHash string, response interface{}, ttl time.Duration) error
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

type Engine struct {
	embedder  Embedder
	retriever Retriever
	generator Generator
	assembler *assembler.Assembler

	// Optional collaborators; nil disables the concern.
	history HistoryStore
	cache   Cache

	retrieval    config.RetrievalConfig
	responseTTL  time.Duration
	embeddingTTL time.Duration
}

type Request struct {
	Query string
	// TopK overrides the configured default when > 0.
	TopK int
	// Variant labels the calling front end in metrics ("http", "chat").
	Variant string
}

type Source struct {
	BogNumber   string  `json:"bog_number,omitempty"`
	ItemNo      string  `json:"item_no,omitempty"`
	MeetingDate string  `json:"meeting_date,omitempty"`
	SourceFile  string  `json:"source_file,omitempty"`
	Score       float64 `json:"score"`
}

type Response struct {
	ID           string   `json:"id"`
	Query        string   `json:"query"`
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
	Fallback     bool     `json:"fallback"`
	RelaxedRetry bool     `json:"relaxed_retry"`
	LatencyMS    int      `json:"latency_ms"`
}

type Option func(*Engine)

func WithHistory(store HistoryStore) Option {
	return func(e *Engine) { e.history = store }
}

func WithCache(cache Cache, responseTTL, embeddingTTL time.Duration) Option {
	return func(e *Engine) {
		e.cache = cache
		e.responseTTL = responseTTL
		e.embeddingTTL = embeddingTTL
	}
}

func NewEngine(embedder Embedder, retriever Retriever, generator Generator, asm *assembler.Assembler, retrieval config.RetrievalConfig, opts ...Option) *Engine {
	engine := &Engine{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		assembler: asm,
		retrieval: retrieval,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// ProcessQuery runs the full pipeline: extract metadata filters, embed the
// query, retrieve similar chunks (retrying once with relaxed parameters on
// an empty result), assemble the token-budgeted context and generate the
// answer. Retrieval and generation failures propagate to the caller; only
// the empty-context condition yields a static fallback answer.
func (e *Engine) ProcessQuery(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	queryText := strings.TrimSpace(req.Query)
	if queryText == "" {
		return nil, ErrEmptyQuery
	}

	queryID := uuid.New().String()
	logger.Info("Processing query",
		zap.String("query_id", queryID),
		zap.String("query", queryText),
	)

	topK := req.TopK
	if topK <= 0 {
		topK = e.retrieval.TopK
	}

	// The key carries the resolved topK so an override never hits an entry
	// cached under different retrieval parameters.
	queryHash := utils.HashQuery(fmt.Sprintf("%s|top_k=%d", queryText, topK))
	if cached := e.cachedResponse(ctx, queryHash); cached != nil {
		metrics.QueryTotal.WithLabelValues("cached").Inc()
		return cached, nil
	}

	filters := metadata.Extract(queryText)
	if !filters.Empty() {
		logger.Debug("Metadata filters extracted",
			zap.String("bog_number", filters.BogNumber),
			zap.String("item_no", filters.ItemNo),
			zap.String("meeting_date", filters.MeetingDate),
		)
	}

	embedding, err := e.embedQuery(ctx, queryText)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := e.retriever.SearchChunks(ctx, embedding, topK, e.retrieval.MinScore, filters)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	metrics.RetrievalResults.Observe(float64(len(chunks)))

	relaxedRetry := false
	if len(chunks) == 0 {
		relaxedRetry = true
		metrics.RelaxedRetryTotal.Inc()
		logger.Info("No chunks at default parameters, retrying relaxed",
			zap.String("query_id", queryID),
			zap.Int("relaxed_top_k", e.retrieval.RelaxedTopK),
			zap.Float64("relaxed_min_score", e.retrieval.RelaxedMinScore),
		)

		chunks, err = e.retriever.SearchChunks(ctx, embedding, e.retrieval.RelaxedTopK, e.retrieval.RelaxedMinScore, filters)
		if err != nil {
			metrics.QueryTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("relaxed retrieval failed: %w", err)
		}
		metrics.RetrievalResults.Observe(float64(len(chunks)))
	}

	if len(chunks) == 0 {
		metrics.FallbackTotal.WithLabelValues("no_results").Inc()
		response := e.finishResponse(queryID, queryText, fallbackNoResults, nil, true, relaxedRetry, filters, startTime, req.Variant)
		return response, nil
	}

	selected := e.assembler.Select(queryText, chunks)
	metrics.ContextChunksSelected.Observe(float64(len(selected)))

	if len(selected) == 0 {
		metrics.FallbackTotal.WithLabelValues("no_context").Inc()
		response := e.finishResponse(queryID, queryText, fallbackNoContext, nil, true, relaxedRetry, filters, startTime, req.Variant)
		return response, nil
	}

	answer, err := e.generator.GenerateAnswer(ctx, queryText, formatContext(selected))
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	response := e.finishResponse(queryID, queryText, answer, selected, false, relaxedRetry, filters, startTime, req.Variant)

	if e.cache != nil {
		if err := e.cache.SetAnswer(ctx, queryHash, response, e.responseTTL); err != nil {
			logger.Warn("Failed to cache answer", zap.Error(err))
		}
	}

	return response, nil
}

func (e *Engine) cachedResponse(ctx context.Context, queryHash string) *Response {
	if e.cache == nil {
		return nil
	}

	var cached Response
	found, err := e.cache.GetAnswer(ctx, queryHash, &cached)
	if err != nil {
		logger.Warn("Answer cache lookup failed", zap.Error(err))
		return nil
	}
	if !found {
		metrics.CacheMisses.WithLabelValues("answer").Inc()
		return nil
	}

	metrics.CacheHits.WithLabelValues("answer").Inc()
	return &cached
}

func (e *Engine) embedQuery(ctx context.Context, queryText string) ([]float32, error) {
	if e.cache == nil {
		return e.embedder.GenerateEmbedding(ctx, queryText)
	}

	textHash := utils.HashString(queryText)
	embedding, found, err := e.cache.GetEmbedding(ctx, textHash)
	if err != nil {
		logger.Warn("Embedding cache lookup failed", zap.Error(err))
	}
	if found {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return embedding, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	embedding, err = e.embedder.GenerateEmbedding(ctx, queryText)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetEmbedding(ctx, textHash, embedding, e.embeddingTTL); err != nil {
		logger.Warn("Failed to cache embedding", zap.Error(err))
	}

	return embedding, nil
}

func (e *Engine) finishResponse(queryID, queryText, answer string, selected []neo4j.Chunk, fallback, relaxedRetry bool, filters metadata.Filters, startTime time.Time, variant string) *Response {
	latency := int(time.Since(startTime).Milliseconds())

	sources := make([]Source, 0, len(selected))
	for _, chunk := range selected {
		sources = append(sources, Source{
			BogNumber:   chunk.BogNumber,
			ItemNo:      chunk.ItemNo,
			MeetingDate: chunk.MeetingDate,
			SourceFile:  chunk.SourceFile,
			Score:       chunk.Score,
		})
	}

	if variant == "" {
		variant = "http"
	}
	metrics.QueryDuration.WithLabelValues(variant).Observe(time.Since(startTime).Seconds())

	status := "success"
	if fallback {
		status = "fallback"
	}
	metrics.QueryTotal.WithLabelValues(status).Inc()

	if e.history != nil {
		record := &models.QueryRecord{
			ID:           queryID,
			QueryText:    queryText,
			Answer:       answer,
			BogNumber:    filters.BogNumber,
			ItemNo:       filters.ItemNo,
			MeetingDate:  filters.MeetingDate,
			ChunksUsed:   len(selected),
			RelaxedRetry: relaxedRetry,
			Fallback:     fallback,
			LatencyMS:    latency,
			CreatedAt:    time.Now(),
		}
		if err := e.history.InsertQueryRecord(record); err != nil {
			logger.Warn("Failed to persist query record", zap.Error(err))
		}
	}

	logger.Info("Query processed",
		zap.String("query_id", queryID),
		zap.Bool("fallback", fallback),
		zap.Bool("relaxed_retry", relaxedRetry),
		zap.Int("chunks_used", len(selected)),
		zap.Int("latency_ms", latency),
	)

	return &Response{
		ID:           queryID,
		Query:        queryText,
		Answer:       answer,
		Sources:      sources,
		Fallback:     fallback,
		RelaxedRetry: relaxedRetry,
		LatencyMS:    latency,
	}
}

// formatContext renders selected chunks for the system prompt, each
// prefixed with its provenance so the model can attribute statements.
func formatContext(chunks []neo4j.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("[BoG: %s | Item: %s | Date: %s | Score: %.2f]\n%s",
			orNA(chunk.BogNumber),
			orNA(chunk.ItemNo),
			orNA(chunk.MeetingDate),
			chunk.Score,
			chunk.Text,
		))
	}
	return strings.Join(parts, "\n\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
