package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bog-assistant/backend/internal/assembler"
	"github.com/bog-assistant/backend/internal/kg/neo4j"
	"github.com/bog-assistant/backend/internal/metadata"
	"github.com/bog-assistant/backend/pkg/config"
)

type mockEmbedder struct {
	embedding []float32
	err       error
	calls     int
}

func (m *mockEmbedder) GenerateEmbedding(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.embedding, nil
}

type searchCall struct {
	topK     int
	minScore float64
	filters  metadata.Filters
}

type mockRetriever struct {
	results [][]neo4j.Chunk
	err     error
	calls   []searchCall
}

func (m *mockRetriever) SearchChunks(_ context.Context, _ []float32, topK int, minScore float64, filters metadata.Filters) ([]neo4j.Chunk, error) {
	m.calls = append(m.calls, searchCall{topK: topK, minScore: minScore, filters: filters})
	if m.err != nil {
		return nil, m.err
	}
	idx := len(m.calls) - 1
	if idx >= len(m.results) {
		return nil, nil
	}
	return m.results[idx], nil
}

type mockGenerator struct {
	answer      string
	err         error
	calls       int
	lastQuery   string
	lastContext string
}

func (m *mockGenerator) GenerateAnswer(_ context.Context, query, contextText string) (string, error) {
	m.calls++
	m.lastQuery = query
	m.lastContext = contextText
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

type mockCache struct {
	embeddings map[string][]float32
	answers    map[string]*Response
}

func (m *mockCache) GetAnswer(_ context.Context, queryHash string, response interface{}) (bool, error) {
	stored, ok := m.answers[queryHash]
	if !ok {
		return false, nil
	}
	*(response.(*Response)) = *stored
	return true, nil
}

func (m *mockCache) SetAnswer(_ context.Context, queryHash string, response interface{}, _ time.Duration) error {
	if m.answers == nil {
		m.answers = map[string]*Response{}
	}
	m.answers[queryHash] = response.(*Response)
	return nil
}

func (m *mockCache) GetEmbedding(_ context.Context, textHash string) ([]float32, bool, error) {
	emb, ok := m.embeddings[textHash]
	return emb, ok, nil
}

func (m *mockCache) SetEmbedding(_ context.Context, textHash string, embedding []float32, _ time.Duration) error {
	if m.embeddings == nil {
		m.embeddings = map[string][]float32{}
	}
	m.embeddings[textHash] = embedding
	return nil
}

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		IndexName:       "chunkVectorIndex",
		TopK:            100,
		MinScore:        0.5,
		RelaxedTopK:     150,
		RelaxedMinScore: 0.3,
	}
}

func newTestEngine(embedder Embedder, retriever Retriever, generator Generator, opts ...Option) *Engine {
	return NewEngine(embedder, retriever, generator, assembler.New(5500, 200, 1200), testRetrievalConfig(), opts...)
}

func TestProcessQueryHappyPath(t *testing.T) {
	retriever := &mockRetriever{
		results: [][]neo4j.Chunk{{
			{Text: "The board approved faculty recruitment.", Score: 0.91, BogNumber: "75th", ItemNo: "4.2"},
			{Text: "Budget allocation was revised.", Score: 0.82, MeetingDate: "2023-01-31"},
		}},
	}
	generator := &mockGenerator{answer: "The 75th meeting approved recruitment."}
	engine := newTestEngine(&mockEmbedder{embedding: []float32{0.1, 0.2}}, retriever, generator)

	resp, err := engine.ProcessQuery(context.Background(), Request{Query: "What happened in the 75th BoG meeting item 4.2?"})
	require.NoError(t, err)

	require.Equal(t, "The 75th meeting approved recruitment.", resp.Answer)
	require.False(t, resp.Fallback)
	require.False(t, resp.RelaxedRetry)
	require.Len(t, resp.Sources, 2)
	require.Equal(t, 0.91, resp.Sources[0].Score)
	require.NotEmpty(t, resp.ID)

	// Context carries chunk text and provenance headers.
	require.Contains(t, generator.lastContext, "The board approved faculty recruitment.")
	require.Contains(t, generator.lastContext, "[BoG: 75th | Item: 4.2 | Date: N/A | Score: 0.91]")
	require.Contains(t, generator.lastContext, "[BoG: N/A | Item: N/A | Date: 2023-01-31 | Score: 0.82]")
}

func TestProcessQueryPassesExtractedFilters(t *testing.T) {
	retriever := &mockRetriever{
		results: [][]neo4j.Chunk{{{Text: "chunk", Score: 0.9}}},
	}
	engine := newTestEngine(&mockEmbedder{embedding: []float32{0.1}}, retriever, &mockGenerator{answer: "ok"})

	_, err := engine.ProcessQuery(context.Background(), Request{Query: "What happened in the 75th BoG meeting item 4.2?"})
	require.NoError(t, err)

	require.Len(t, retriever.calls, 1)
	call := retriever.calls[0]
	require.Equal(t, 100, call.topK)
	require.Equal(t, 0.5, call.minScore)
	require.Equal(t, "75th", call.filters.BogNumber)
	require.Equal(t, "4.2", call.filters.ItemNo)
	require.Empty(t, call.filters.MeetingDate)
}

func TestProcessQueryTopKOverride(t *testing.T) {
	retriever := &mockRetriever{
		results: [][]neo4j.Chunk{{{Text: "chunk", Score: 0.9}}},
	}
	engine := newTestEngine(&mockEmbedder{embedding: []float32{0.1}}, retriever, &mockGenerator{answer: "ok"})

	_, err := engine.ProcessQuery(context.Background(), Request{Query: "anything", TopK: 7})
	require.NoError(t, err)
	require.Equal(t, 7, retriever.calls[0].topK)
}

func TestProcessQueryEmptyQuery(t *testing.T) {
	engine := newTestEngine(&mockEmbedder{}, &mockRetriever{}, &mockGenerator{})

	_, err := engine.ProcessQuery(context.Background(), Request{Query: "   "})
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestProcessQueryRelaxedRetry(t *testing.T) {
	retriever := &mockRetriever{
		results: [][]neo4j.Chunk{
			{},
			{{Text: "found on retry", Score: 0.35, BogNumber: "75th"}},
		},
	}
	generator := &mockGenerator{answer: "retried answer"}
	engine := newTestEngine(&mockEmbedder{embedding: []float32{0.1}}, retriever, generator)

	resp, err := engine.ProcessQuery(context.Background(), Request{Query: "the 75th BoG meeting item 4.2"})
	require.NoError(t, err)

	require.Len(t, retriever.calls, 2)
	require.Equal(t, 150, retriever.calls[1].topK)
	require.Equal(t, 0.3, retriever.calls[1].minScore)
	// Filters are kept on the relaxed retry.
	require.Equal(t, "75th", retriever.calls[1].filters.BogNumber)
	require.Equal(t, "4.2", retriever.calls[1].filters.ItemNo)

	require.True(t, resp.RelaxedRetry)
	require.False(t, resp.Fallback)
	require.Equal(t, "retried answer", resp.Answer)
}

func TestProcessQueryFallbackWhenNothingRetrieved(t *testing.T) {
	retriever := &mockRetriever{results: [][]neo4j.Chunk{{}, {}}}
	generator := &mockGenerator{answer: "should not be called"}
	engine := newTestEngine(&mockEmbedder{embedding: []float32{0.1}}, retriever, generator)

	resp, err := engine.ProcessQuery(context.Background(), Request{Query: "obscure question"})
	require.NoError(t, err)

	require.Len(t, retriever.calls, 2)
	require.Zero(t, generator.calls)
	require.True(t, resp.Fallback)
	require.True(t, resp.RelaxedRetry)
	require.Contains(t, resp.Answer, "rephrasing")
	require.Empty(t, resp.Sources)
}

func TestProcessQueryFallbackWhenNothingFitsBudget(t *testing.T) {
	huge := strings.TrimSpace(strings.Repeat("word ", 5000))
	retriever := &mockRetriever{
		results: [][]neo4j.Chunk{{{Text: huge, Score: 0.9}}},
	}
	generator := &mockGenerator{answer: "should not be called"}

	// Budget small enough that even the truncated chunk overflows.
	engine := NewEngine(
		&mockEmbedder{embedding: []float32{0.1}},
		retriever,
		generator,
		assembler.New(250, 200, 1200),
		testRetrievalConfig(),
	)

	resp, err := engine.ProcessQuery(context.Background(), Request{Query: "anything"})
	require.NoError(t, err)

	require.Zero(t, generator.calls)
	require.True(t, resp.Fallback)
	require.Contains(t, resp.Answer, "not available")
}

func TestProcessQueryRetrievalErrorPropagates(t *testing.T) {
	retriever := &mockRetriever{err: errors.New("bolt connection refused")}
	generator := &mockGenerator{}
	engine := newTestEngine(&mockEmbedder{embedding: []float32{0.1}}, retriever, generator)

	_, err := engine.ProcessQuery(context.Background(), Request{Query: "anything"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "retrieval failed")
	require.Zero(t, generator.calls)
}

func TestProcessQueryEmbeddingErrorPropagates(t *testing.T) {
	engine := newTestEngine(&mockEmbedder{err: errors.New("embedding service down")}, &mockRetriever{}, &mockGenerator{})

	_, err := engine.ProcessQuery(context.Background(), Request{Query: "anything"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to embed query")
}

func TestProcessQueryGenerationErrorPropagates(t *testing.T) {
	retriever := &mockRetriever{
		results: [][]neo4j.Chunk{{{Text: "chunk", Score: 0.9}}},
	}
	engine := newTestEngine(&mockEmbedder{embedding: []float32{0.1}}, retriever, &mockGenerator{err: errors.New("llm unavailable")})

	_, err := engine.ProcessQuery(context.Background(), Request{Query: "anything"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "generation failed")
}

func TestProcessQueryAnswerCache(t *testing.T) {
	retriever := &mockRetriever{
		results: [][]neo4j.Chunk{{{Text: "chunk", Score: 0.9}}},
	}
	embedder := &mockEmbedder{embedding: []float32{0.1}}
	cache := &mockCache{}
	engine := newTestEngine(embedder, retriever, &mockGenerator{answer: "cached me"},
		WithCache(cache, time.Hour, time.Hour))

	first, err := engine.ProcessQuery(context.Background(), Request{Query: "repeat question"})
	require.NoError(t, err)
	require.Equal(t, 1, embedder.calls)

	second, err := engine.ProcessQuery(context.Background(), Request{Query: "repeat question"})
	require.NoError(t, err)
	require.Equal(t, first.Answer, second.Answer)
	// Second round never touched embedder or retriever.
	require.Equal(t, 1, embedder.calls)
	require.Len(t, retriever.calls, 1)
}

func TestProcessQueryTopKOverrideGetsOwnCacheEntry(t *testing.T) {
	retriever := &mockRetriever{
		results: [][]neo4j.Chunk{
			{{Text: "chunk", Score: 0.9}},
			{{Text: "chunk", Score: 0.9}},
		},
	}
	cache := &mockCache{}
	engine := newTestEngine(&mockEmbedder{embedding: []float32{0.1}}, retriever, &mockGenerator{answer: "ok"},
		WithCache(cache, time.Hour, time.Hour))

	_, err := engine.ProcessQuery(context.Background(), Request{Query: "same question"})
	require.NoError(t, err)

	// Same query with an explicit top_k must not be served the answer
	// cached under the default parameters.
	_, err = engine.ProcessQuery(context.Background(), Request{Query: "same question", TopK: 7})
	require.NoError(t, err)

	require.Len(t, retriever.calls, 2)
	require.Equal(t, 100, retriever.calls[0].topK)
	require.Equal(t, 7, retriever.calls[1].topK)
	require.Len(t, cache.answers, 2)
}

func TestProcessQueryEmbeddingCache(t *testing.T) {
	retriever := &mockRetriever{results: [][]neo4j.Chunk{{}, {}, {}, {}}}
	embedder := &mockEmbedder{embedding: []float32{0.5}}
	cache := &mockCache{}
	engine := newTestEngine(embedder, retriever, &mockGenerator{},
		WithCache(cache, time.Hour, time.Hour))

	// Fallback responses are not cached as answers, so the second call
	// re-runs retrieval but should reuse the cached embedding.
	_, err := engine.ProcessQuery(context.Background(), Request{Query: "no matches"})
	require.NoError(t, err)
	_, err = engine.ProcessQuery(context.Background(), Request{Query: "no matches"})
	require.NoError(t, err)

	require.Equal(t, 1, embedder.calls)
}
