// Package api exposes the runtime to the UI process over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lianxi-ai/tutorcore/domain"
	"github.com/lianxi-ai/tutorcore/llmclient"
	"github.com/lianxi-ai/tutorcore/pipeline"
)

// Handler handles HTTP requests.
type Handler struct {
	runtime *pipeline.Runtime
	logger  *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(runtime *pipeline.Runtime, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runtime: runtime, logger: logger}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/chat", h.Submit)
	e.POST("/v1/chat/stop", h.Stop)

	e.GET("/v1/sessions", h.ListSessions)
	e.POST("/v1/sessions/refresh", h.Refresh)
	e.POST("/v1/sessions/new", h.NewChat)
	e.POST("/v1/sessions/:session_id/select", h.SelectSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)
	e.PATCH("/v1/sessions/:session_id/title", h.RenameSession)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// Submit runs one user turn. With ?stream=true the response is an SSE relay
// of the model frames, ending in [DONE]; otherwise the updated session is
// returned after the turn completes.
func (h *Handler) Submit(c echo.Context) error {
	var input pipeline.SubmitInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	ctx := c.Request().Context()

	if c.QueryParam("stream") != "true" {
		if err := h.runtime.Submit(ctx, input); err != nil {
			return h.submitError(c, err)
		}
		return h.currentSession(c)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody("streaming not supported"))
	}

	input.OnChunk = func(frame llmclient.StreamFrame) {
		data, err := json.Marshal(frame)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data)
		flusher.Flush()
	}

	if err := h.runtime.Submit(ctx, input); err != nil {
		h.logger.Error("turn failed", "error", err)
		fmt.Fprintf(c.Response().Writer, "data: {\"type\":\"error\",\"content\":%q}\n\n", err.Error())
	}
	fmt.Fprint(c.Response().Writer, "data: [DONE]\n\n")
	flusher.Flush()
	return nil
}

// Stop cancels the active generation of the current session.
func (h *Handler) Stop(c echo.Context) error {
	h.runtime.StopGeneration()
	return c.NoContent(http.StatusNoContent)
}

// ListSessions returns the cached session list.
func (h *Handler) ListSessions(c echo.Context) error {
	sessions := h.runtime.Sessions()
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return c.JSON(http.StatusOK, sessions)
}

// Refresh fetches the remote list, merges it into the cache and returns the
// merged view.
func (h *Handler) Refresh(c echo.Context) error {
	if err := h.runtime.Refresh(c.Request().Context()); err != nil {
		h.logger.Error("refresh failed", "error", err)
		return c.JSON(http.StatusBadGateway, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, h.runtime.Sessions())
}

// NewChat clears the current-session pointer.
func (h *Handler) NewChat(c echo.Context) error {
	h.runtime.NewChat()
	return c.NoContent(http.StatusNoContent)
}

// SelectSession switches the current session.
func (h *Handler) SelectSession(c echo.Context) error {
	id := c.Param("session_id")
	if _, ok := findSession(h.runtime, id); !ok {
		return c.JSON(http.StatusNotFound, errorBody("session not found"))
	}
	h.runtime.SelectSession(id)
	return c.NoContent(http.StatusNoContent)
}

// DeleteSession removes a session locally and remotely.
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.runtime.DeleteSession(c.Request().Context(), c.Param("session_id")); err != nil {
		h.logger.Error("delete failed", "error", err)
		return c.JSON(http.StatusBadGateway, errorBody(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

type renameRequest struct {
	Title string `json:"title"`
}

// RenameSession applies a user-chosen title.
func (h *Handler) RenameSession(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil || req.Title == "" {
		return c.JSON(http.StatusBadRequest, errorBody("title is required"))
	}
	if err := h.runtime.RenameSession(c.Request().Context(), c.Param("session_id"), req.Title); err != nil {
		h.logger.Error("rename failed", "error", err)
		return c.JSON(http.StatusBadGateway, errorBody(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) submitError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, llmclient.ErrAuthExpired):
		return c.JSON(http.StatusUnauthorized, errorBody("please re-authenticate"))
	case errors.Is(err, llmclient.ErrServiceUnavailable):
		return c.JSON(http.StatusServiceUnavailable, errorBody(err.Error()))
	default:
		return c.JSON(http.StatusBadGateway, errorBody(err.Error()))
	}
}

func (h *Handler) currentSession(c echo.Context) error {
	id := h.runtime.CurrentSession()
	if sess, ok := findSession(h.runtime, id); ok {
		return c.JSON(http.StatusOK, sess)
	}
	// Silently dropped turn: nothing changed.
	return c.NoContent(http.StatusAccepted)
}

func findSession(rt *pipeline.Runtime, id string) (domain.Session, bool) {
	for _, sess := range rt.Sessions() {
		if sess.ID == id {
			return sess, true
		}
	}
	return domain.Session{}, false
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
