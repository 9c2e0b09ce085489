package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/bog-assistant/backend/internal/presentation"
	"github.com/bog-assistant/backend/internal/query"
	"github.com/bog-assistant/backend/pkg/logger"
)

// chatConn is the slice of the websocket connection the handler uses.
// *websocket.Conn satisfies it.
type chatConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// ChatHandler is the interactive chat variant over a websocket. It runs the
// same pipeline as the HTTP endpoint, streams the answer word by word and
// finishes with the HTML-formatted rendering for display.
type ChatHandler struct {
	engine QueryService
}

func NewChatHandler(engine QueryService) *ChatHandler {
	return &ChatHandler{engine: engine}
}

func (h *ChatHandler) HandleConnection(c *websocket.Conn) {
	h.serve(c)
}

func (h *ChatHandler) serve(c chatConn) {
	logger.Info("Chat connection established")

	defer func() {
		c.Close()
		logger.Info("Chat connection closed")
	}()

	for {
		var msg struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("Chat read failed", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}

		logger.Info("Processing chat query", zap.String("query", msg.Content))

		err = h.answer(c, msg.Content)
		if err != nil {
			logger.Error("Failed to answer chat query", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *ChatHandler) answer(c chatConn, queryText string) error {
	if err := h.send(c, "status", "Searching BoG meeting records..."); err != nil {
		return err
	}

	response, err := h.engine.ProcessQuery(context.Background(), query.Request{
		Query:   queryText,
		Variant: "chat",
	})
	if err != nil {
		return err
	}

	words := strings.Fields(response.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		if err := h.send(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"message_id": response.ID,
		"html":       presentation.FormatHTML(response.Answer),
		"sources":    response.Sources,
		"fallback":   response.Fallback,
		"latency_ms": response.LatencyMS,
	})
}

func (h *ChatHandler) send(c chatConn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *ChatHandler) sendError(c chatConn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
