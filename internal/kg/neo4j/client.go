package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/bog-assistant/backend/internal/metadata"
	"github.com/bog-assistant/backend/pkg/circuitbreaker"
	"github.com/bog-assistant/backend/pkg/logger"
	"github.com/bog-assistant/backend/pkg/retry"
)

// Client wraps the Neo4j driver for similarity search against the chunk
// vector index. The index and the (:Chunk)-[:HAS_EMBEDDING]->(:Embedding)
// schema are populated by a separate ingestion process.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	indexName   string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

// Chunk is one retrieved unit of minutes text with its similarity score
// and provenance fields. Immutable once returned.
type Chunk struct {
	Text        string
	Score       float64
	BogNumber   string
	ItemNo      string
	MeetingDate string
	SourceFile  string
}

func NewClient(uri, username, password, database, indexName string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.New("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized",
		zap.String("uri", uri),
		zap.String("index", indexName),
	)

	return &Client{
		driver:      driver,
		database:    database,
		indexName:   indexName,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

// SearchChunks runs a single nearest-neighbor query against the vector
// index and keeps results with score >= minScore that match every present
// filter field exactly. Results are ordered by descending score. An empty
// result set is not an error.
func (c *Client) SearchChunks(ctx context.Context, embedding []float32, topK int, minScore float64, filters metadata.Filters) ([]Chunk, error) {
	cypherFilter := "WHERE score >= $minScore"
	if filters.BogNumber != "" {
		cypherFilter += " AND c.bog_number = $bog_number"
	}
	if filters.ItemNo != "" {
		cypherFilter += " AND c.item_no = $item_no"
	}
	if filters.MeetingDate != "" {
		cypherFilter += " AND c.meeting_date = $meeting_date"
	}

	query := fmt.Sprintf(`
		CALL db.index.vector.queryNodes($indexName, %d, $queryEmbedding)
		YIELD node, score
		MATCH (c:Chunk)-[:HAS_EMBEDDING]->(node)
		%s
		RETURN c.text AS text, c.bog_number AS bog, c.item_no AS item,
		       c.meeting_date AS date, c.source_file AS file, score AS score
		ORDER BY score DESC
	`, topK, cypherFilter)

	// The bolt protocol has no float32 list type; widen before sending.
	queryEmbedding := make([]float64, len(embedding))
	for i, v := range embedding {
		queryEmbedding[i] = float64(v)
	}

	params := map[string]interface{}{
		"indexName":      c.indexName,
		"queryEmbedding": queryEmbedding,
		"minScore":       minScore,
		"bog_number":     filters.BogNumber,
		"item_no":        filters.ItemNo,
		"meeting_date":   filters.MeetingDate,
	}

	var chunks []Chunk

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		chunks = chunks[:0]

		result, err := session.Run(ctx, query, params)
		if err != nil {
			return fmt.Errorf("failed to run vector search: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()

			text, _ := record.Get("text")
			bog, _ := record.Get("bog")
			item, _ := record.Get("item")
			date, _ := record.Get("date")
			file, _ := record.Get("file")
			score, _ := record.Get("score")

			chunks = append(chunks, Chunk{
				Text:        asString(text),
				Score:       asFloat(score),
				BogNumber:   asString(bog),
				ItemNo:      asString(item),
				MeetingDate: asString(date),
				SourceFile:  asString(file),
			})
		}

		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	logger.Info("Vector search completed",
		zap.Int("top_k", topK),
		zap.Float64("min_score", minScore),
		zap.Int("results", len(chunks)),
		zap.Bool("filtered", !filters.Empty()),
	)

	return chunks, nil
}

// CountChunks reports how many chunks the index currently serves, for the
// health endpoint.
func (c *Client) CountChunks(ctx context.Context) (int64, error) {
	var count int64

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, "MATCH (c:Chunk) RETURN count(c) AS count", nil)
		if err != nil {
			return fmt.Errorf("failed to count chunks: %w", err)
		}

		if result.Next(ctx) {
			value, _ := result.Record().Get("count")
			count = value.(int64)
		}

		return result.Err()
	})

	if err != nil {
		return 0, err
	}

	return count, nil
}

// Chunk properties come back as nil for documents ingested before a field
// was introduced; treat those as empty rather than failing the record.
func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
