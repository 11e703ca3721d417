package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"tutorgate/internal/core"
	"tutorgate/internal/service"
)

// Handler holds the HTTP handlers
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new handler over the orchestration service.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// userID extracts the caller identity from the X-User-ID header.
func userID(c echo.Context) (string, error) {
	id := c.Request().Header.Get("X-User-ID")
	if id == "" {
		return "", fmt.Errorf("X-User-ID header is required")
	}
	return id, nil
}

// Complete handles POST /v1/complete
func (h *Handler) Complete(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	var req core.CompletionRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
	}

	resp, err := h.svc.Complete(c.Request().Context(), uid, &req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// StreamComplete handles POST /v1/complete/stream, delivering chunks as
// server-sent events terminated by a [DONE] frame.
func (h *Handler) StreamComplete(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	var req core.CompletionRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
	}

	stream, err := h.svc.StreamComplete(c.Request().Context(), uid, &req)
	if err != nil {
		return handleError(c, err)
	}
	defer func() {
		_ = stream.Close() //nolint:errcheck
	}()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Headers are already sent; terminate the stream instead
			return nil
		}
		payload, err := json.Marshal(chunk)
		if err != nil {
			return nil
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", payload); err != nil {
			return nil
		}
		c.Response().Flush()
		if chunk.Done {
			break
		}
	}

	_, _ = io.WriteString(c.Response().Writer, "data: [DONE]\n\n")
	c.Response().Flush()
	return nil
}

// FunctionCall handles POST /v1/function-call
func (h *Handler) FunctionCall(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	var req core.CompletionRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
	}

	result, err := h.svc.FunctionCall(c.Request().Context(), uid, &req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// UsageStats handles GET /v1/usage/stats?days=N
func (h *Handler) UsageStats(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	days := 0
	if raw := c.QueryParam("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 0 {
			return errorJSON(c, http.StatusBadRequest, "invalid_request", "days must be a non-negative integer")
		}
	}

	stats, err := h.svc.UsageStats(c.Request().Context(), uid, days)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// InvalidateCache handles DELETE /v1/cache/:feature
func (h *Handler) InvalidateCache(c echo.Context) error {
	feature := core.FeatureType(c.Param("feature"))

	removed, err := h.svc.InvalidateCache(c.Request().Context(), feature)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"feature": feature,
		"removed": removed,
	})
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleError converts orchestration errors to HTTP responses.
func handleError(c echo.Context, err error) error {
	var quotaErr *core.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
			"error": map[string]interface{}{
				"type":     "quota_exceeded",
				"message":  quotaErr.Error(),
				"reset_at": quotaErr.ResetAt,
			},
		})
	}

	var provErr *core.ProviderError
	if errors.As(err, &provErr) {
		status := http.StatusBadGateway
		switch provErr.Code {
		case core.ErrCodeMissingAPIKey:
			status = http.StatusInternalServerError
		case core.ErrCodeMaxTokensExceeded:
			status = http.StatusUnprocessableEntity
		}
		return c.JSON(status, map[string]interface{}{
			"error": map[string]interface{}{
				"type":     "provider_error",
				"code":     provErr.Code,
				"provider": provErr.Provider,
				"message":  provErr.Message,
			},
		})
	}

	var acctErr *core.AccountingError
	if errors.As(err, &acctErr) {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", acctErr.Error())
	}

	if errors.Is(err, service.ErrStatsUnavailable) {
		return errorJSON(c, http.StatusServiceUnavailable, "stats_unavailable", err.Error())
	}

	// Resolution failures (unknown feature, empty prompt, missing function
	// definitions) surface as plain unwrapped errors from the service.
	if errors.Unwrap(err) == nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	return errorJSON(c, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
}

func errorJSON(c echo.Context, status int, errType, message string) error {
	return c.JSON(status, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    errType,
			"message": message,
		},
	})
}
