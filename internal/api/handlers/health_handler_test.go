package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

type stubCounter struct {
	count int64
	err   error
}

func (s *stubCounter) CountChunks(_ context.Context) (int64, error) {
	return s.count, s.err
}

func TestHandleHealthHealthy(t *testing.T) {
	app := fiber.New()
	app.Get("/api/v1/health", NewHealthHandler(&stubCounter{count: 1234}).HandleHealth)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, float64(1234), body["chunks_indexed"])
}

func TestHandleHealthDegraded(t *testing.T) {
	app := fiber.New()
	app.Get("/api/v1/health", NewHealthHandler(&stubCounter{err: errors.New("no route to host")}).HandleHealth)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	require.Equal(t, "degraded", body["status"])
}
