package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bog-assistant/backend/pkg/logger"
)

type ChunkCounter interface {
	CountChunks(ctx context.Context) (int64, error)
}

type HealthHandler struct {
	index ChunkCounter
}

func NewHealthHandler(index ChunkCounter) *HealthHandler {
	return &HealthHandler{index: index}
}

// HandleHealth reports service status and how many chunks the vector
// index currently serves. An unreachable index degrades the service.
func (h *HealthHandler) HandleHealth(c *fiber.Ctx) error {
	count, err := h.index.CountChunks(c.Context())
	if err != nil {
		logger.Warn("Health check failed to reach index", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"error":  "vector index unreachable",
			"time":   time.Now().Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"status":         "healthy",
		"chunks_indexed": count,
		"time":           time.Now().Unix(),
	})
}
