package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bog-assistant/backend/internal/query"
	"github.com/bog-assistant/backend/internal/storage/models"
	"github.com/bog-assistant/backend/pkg/logger"
)

type QueryService interface {
	ProcessQuery(ctx context.Context, req query.Request) (*query.Response, error)
}

type HistoryReader interface {
	GetRecentQueries(limit int) ([]models.QueryRecord, error)
}

type FeedbackWriter interface {
	InsertFeedback(feedback *models.Feedback) error
}

type QueryHandler struct {
	engine   QueryService
	history  HistoryReader
	feedback FeedbackWriter
}

func NewQueryHandler(engine QueryService, history HistoryReader, feedback FeedbackWriter) *QueryHandler {
	return &QueryHandler{
		engine:   engine,
		history:  history,
		feedback: feedback,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	response, err := h.engine.ProcessQuery(c.Context(), query.Request{
		Query:   req.Query,
		TopK:    req.TopK,
		Variant: "http",
	})
	if err != nil {
		if errors.Is(err, query.ErrEmptyQuery) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Query is required",
			})
		}

		logger.Error("Failed to process query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	return c.JSON(fiber.Map{
		"id":            response.ID,
		"response":      response.Answer,
		"sources":       response.Sources,
		"fallback":      response.Fallback,
		"relaxed_retry": response.RelaxedRetry,
		"latency_ms":    response.LatencyMS,
	})
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)

	records, err := h.history.GetRecentQueries(limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	history := make([]fiber.Map, 0, len(records))
	for _, record := range records {
		history = append(history, fiber.Map{
			"id":         record.ID,
			"query":      record.QueryText,
			"answer":     record.Answer,
			"fallback":   record.Fallback,
			"latency_ms": record.LatencyMS,
			"created_at": record.CreatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"history": history,
	})
}

func (h *QueryHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		QueryID string `json:"query_id"`
		Helpful bool   `json:"helpful"`
		Comment string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.QueryID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query_id is required",
		})
	}

	err := h.feedback.InsertFeedback(&models.Feedback{
		QueryID:   req.QueryID,
		Helpful:   req.Helpful,
		Comment:   req.Comment,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Feedback recorded",
	})
}
