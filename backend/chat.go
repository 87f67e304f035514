package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lianxi-ai/tutorcore/domain"
	"github.com/lianxi-ai/tutorcore/pipeline"
)

// ChatClient talks to the chat persistence service. It implements
// pipeline.ChatStore. SaveChat upserts idempotently by id on the server side.
type ChatClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewChatClient creates a persistence service client.
func NewChatClient(baseURL string, timeout time.Duration) *ChatClient {
	return &ChatClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ pipeline.ChatStore = (*ChatClient)(nil)

type saveChatRequest struct {
	ID       string           `json:"id,omitempty"`
	Messages []domain.Message `json:"messages"`
	Title    string           `json:"title"`
}

type renameChatRequest struct {
	Title string `json:"title"`
}

// SaveChat upserts the full session under its client-generated id.
func (c *ChatClient) SaveChat(ctx context.Context, id string, messages []domain.Message, title string) (*domain.Session, error) {
	body, err := json.Marshal(saveChatRequest{ID: id, Messages: messages, Title: title})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/v1/chats", body)
	if err != nil {
		return nil, err
	}

	var session domain.Session
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("failed to decode saved chat: %w", err)
	}
	return &session, nil
}

// DeleteChat removes a session from the remote store.
func (c *ChatClient) DeleteChat(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/chats/"+id, nil)
	return err
}

// RenameChat applies a new title without resending the messages.
func (c *ChatClient) RenameChat(ctx context.Context, id, title string) error {
	body, err := json.Marshal(renameChatRequest{Title: title})
	if err != nil {
		return fmt.Errorf("failed to marshal title: %w", err)
	}
	_, err = c.do(ctx, http.MethodPatch, "/v1/chats/"+id+"/title", body)
	return err
}

// ListChats fetches the remote session list for cache reconciliation.
func (c *ChatClient) ListChats(ctx context.Context) ([]domain.Session, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/v1/chats", nil)
	if err != nil {
		return nil, err
	}

	var sessions []domain.Session
	if err := json.Unmarshal(respBody, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode chat list: %w", err)
	}
	return sessions, nil
}

func (c *ChatClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach chat service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("chat service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}
