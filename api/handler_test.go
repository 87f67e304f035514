package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/lianxi-ai/tutorcore/api"
	"github.com/lianxi-ai/tutorcore/cache"
	"github.com/lianxi-ai/tutorcore/domain"
	"github.com/lianxi-ai/tutorcore/llmclient"
	"github.com/lianxi-ai/tutorcore/pipeline"
)

type stubLLM struct{}

func (stubLLM) Stream(ctx context.Context, req *llmclient.CompletionRequest, onChunk llmclient.ChunkHandler) (*llmclient.StreamResult, error) {
	if onChunk != nil {
		onChunk(llmclient.StreamFrame{Type: "content", Content: "你"})
		onChunk(llmclient.StreamFrame{Type: "content", Content: "好"})
	}
	return &llmclient.StreamResult{Text: "你好"}, nil
}

func (stubLLM) Complete(ctx context.Context, req *llmclient.CompletionRequest) (*llmclient.Reply, error) {
	return &llmclient.Reply{Reply: "问候"}, nil
}

type stubChats struct {
	remote []domain.Session
}

func (s *stubChats) SaveChat(ctx context.Context, id string, messages []domain.Message, title string) (*domain.Session, error) {
	return &domain.Session{ID: id, Title: title, Messages: messages}, nil
}
func (s *stubChats) DeleteChat(ctx context.Context, id string) error        { return nil }
func (s *stubChats) RenameChat(ctx context.Context, id, title string) error { return nil }
func (s *stubChats) ListChats(ctx context.Context) ([]domain.Session, error) {
	return s.remote, nil
}

type stubOCR struct{}

func (stubOCR) Recognize(ctx context.Context, urls []string) ([]domain.OCRResult, error) {
	return nil, nil
}

func newTestHandler() (*api.Handler, *pipeline.Runtime) {
	rt := pipeline.New(cache.NewStore(), stubLLM{}, &stubChats{}, stubOCR{}, nil)
	return api.NewHandler(rt, nil), rt
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	err := h.Health(e.NewContext(req, rec))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitReturnsSession(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	body := `{"text":"2+2=?","mode":"study","model":"qwen-max"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := h.Submit(e.NewContext(req, rec))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var sess domain.Session
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Len(t, sess.Messages, 2)
	assert.Equal(t, "你好", sess.Messages[1].Text)
}

func TestSubmitStreamRelaysFrames(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	body := `{"text":"2+2=?","mode":"study","model":"qwen-max"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat?stream=true", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := h.Submit(e.NewContext(req, rec))
	assert.NoError(t, err)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, `data: {"type":"content","content":"你"}`)
	assert.Contains(t, out, `data: {"type":"content","content":"好"}`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "data: [DONE]"))
}

func TestSubmitEmptyIsDroppedSilently(t *testing.T) {
	h, rt := newTestHandler()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"text":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := h.Submit(e.NewContext(req, rec))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rt.Sessions())
}

func TestListSessionsAndRefresh(t *testing.T) {
	chats := &stubChats{remote: []domain.Session{{ID: "c_remote", Title: "远端"}}}
	rt := pipeline.New(cache.NewStore(), stubLLM{}, chats, stubOCR{}, nil)
	h := api.NewHandler(rt, nil)
	e := echo.New()

	rec := httptest.NewRecorder()
	err := h.ListSessions(e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/sessions", nil), rec))
	assert.NoError(t, err)
	assert.JSONEq(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = httptest.NewRecorder()
	err = h.Refresh(e.NewContext(httptest.NewRequest(http.MethodPost, "/v1/sessions/refresh", nil), rec))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var sessions []domain.Session
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 1)
	assert.Equal(t, "c_remote", sessions[0].ID)
}

func TestRenameSessionValidation(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPatch, "/v1/sessions/c1/title", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/sessions/:session_id/title")
	c.SetParamNames("session_id")
	c.SetParamValues("c1")

	err := h.RenameSession(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectSessionNotFound(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/missing/select", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/sessions/:session_id/select")
	c.SetParamNames("session_id")
	c.SetParamValues("missing")

	err := h.SelectSession(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
