package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/bog-assistant/backend/internal/storage/models"
	"github.com/bog-assistant/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		answer TEXT,
		bog_number TEXT,
		item_no TEXT,
		meeting_date TEXT,
		chunks_used INTEGER,
		relaxed_retry INTEGER DEFAULT 0,
		fallback INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_query ON feedback(query_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertQueryRecord(record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, query_text, answer, bog_number, item_no, meeting_date,
			chunks_used, relaxed_retry, fallback, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.QueryText,
		record.Answer,
		record.BogNumber,
		record.ItemNo,
		record.MeetingDate,
		record.ChunksUsed,
		boolToInt(record.RelaxedRetry),
		boolToInt(record.Fallback),
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Debug("Query record inserted", zap.String("query_id", record.ID))
	return nil
}

func (c *Client) GetRecentQueries(limit int) ([]models.QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, query_text, answer, bog_number, item_no, meeting_date,
			chunks_used, relaxed_retry, fallback, latency_ms, created_at
		FROM query_history
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var record models.QueryRecord
		var relaxedRetry, fallback int
		var createdAt int64

		err := rows.Scan(
			&record.ID,
			&record.QueryText,
			&record.Answer,
			&record.BogNumber,
			&record.ItemNo,
			&record.MeetingDate,
			&record.ChunksUsed,
			&relaxedRetry,
			&fallback,
			&record.LatencyMS,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query record: %w", err)
		}

		record.RelaxedRetry = relaxedRetry != 0
		record.Fallback = fallback != 0
		record.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query history: %w", err)
	}

	return records, nil
}

func (c *Client) InsertFeedback(feedback *models.Feedback) error {
	query := `INSERT INTO feedback (query_id, helpful, comment, created_at) VALUES (?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		feedback.QueryID,
		boolToInt(feedback.Helpful),
		feedback.Comment,
		feedback.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	logger.Debug("Feedback inserted", zap.String("query_id", feedback.QueryID))
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
