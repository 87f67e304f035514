// Package llmclient talks to the completion backend, optionally streaming the
// reply frame by frame.
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for the transport failure modes.
var (
	// ErrAuthExpired means the credential was rejected even after one refresh.
	ErrAuthExpired = errors.New("authentication expired, please re-authenticate")
	// ErrServiceUnavailable means the backend answered with a non-success status.
	ErrServiceUnavailable = errors.New("completion service unavailable")
	// ErrProtocolError means the response body was missing or unreadable.
	ErrProtocolError = errors.New("completion protocol error")
)

// refreshLeeway is how close to expiry a credential may get before it is
// refreshed proactively instead of risking a 401 mid-request.
const refreshLeeway = 60 * time.Second

// TokenProvider issues bearer credentials for the completion backend.
type TokenProvider interface {
	GetSession(ctx context.Context) (*Credentials, error)
	RefreshSession(ctx context.Context) (*Credentials, error)
}

// Credentials is a bearer token with its expiry.
type Credentials struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CompletionRequest is the payload sent to the completion backend.
type CompletionRequest struct {
	Messages         []WireMessage `json:"messages"`
	Model            string        `json:"model"`
	EnableThinking   bool          `json:"enableThinking"`
	IncludeReasoning bool          `json:"includeReasoning"`
	Stream           bool          `json:"stream,omitempty"`
}

// StreamFrame is one decoded `data: <json>` frame of a streaming response.
type StreamFrame struct {
	Type    string `json:"type"` // content or reasoning
	Content string `json:"content"`
}

// StreamResult is the accumulated outcome of one streaming call.
type StreamResult struct {
	Text      string
	Reasoning string
}

// Reply is a non-streaming completion response.
type Reply struct {
	Reply     string `json:"reply"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ChunkHandler is called for each stream frame in arrival order.
type ChunkHandler func(frame StreamFrame)

// Client is the completion backend client.
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
}

// NewClient creates a completion client. A zero timeout disables the HTTP
// client timeout; streaming turns are bounded by cancellation, not a deadline.
func NewClient(baseURL string, tokens TokenProvider, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Stream executes a streaming completion call. onChunk fires once per decoded
// frame in arrival order; malformed frames are skipped without aborting.
// Cancelling ctx mid-stream is not an error: the partial accumulation is
// returned as a successful result.
func (c *Client) Stream(ctx context.Context, req *CompletionRequest, onChunk ChunkHandler) (*StreamResult, error) {
	req.Stream = true

	resp, err := c.send(ctx, req)
	if err != nil {
		// Stopped before the connection produced anything: an empty partial
		// result, same as cancelling mid-stream.
		if ctx.Err() != nil {
			return &StreamResult{}, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	result := &StreamResult{}
	reader := bufio.NewReader(resp.Body)

	for {
		// ReadString holds back an incomplete trailing fragment until the
		// next read delivers its newline.
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctx.Err() != nil {
				// Stopped by the user: the partial text is the answer.
				return result, nil
			}
			return nil, fmt.Errorf("%w: read stream: %v", ErrProtocolError, err)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "" || data == "[DONE]" {
			if data == "[DONE]" {
				break
			}
			continue
		}

		var frame StreamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			// Skip malformed frames
			continue
		}

		switch frame.Type {
		case "reasoning":
			result.Reasoning += frame.Content
		default:
			result.Text += frame.Content
		}
		if onChunk != nil {
			onChunk(frame)
		}
	}

	return result, nil
}

// Complete executes a non-streaming completion call, used for title priming.
func (c *Client) Complete(ctx context.Context, req *CompletionRequest) (*Reply, error) {
	req.Stream = false

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProtocolError, err)
	}

	var reply Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProtocolError, err)
	}
	return &reply, nil
}

// send posts the request with a bearer credential. An unauthorized answer is
// retried exactly once after a forced refresh; a second unauthorized is fatal.
func (c *Client) send(ctx context.Context, req *CompletionRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, body, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		creds, err := c.tokens.RefreshSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: refresh failed: %v", ErrAuthExpired, err)
		}
		resp, err = c.post(ctx, body, creds.AccessToken)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			return nil, ErrAuthExpired
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrServiceUnavailable, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if resp.Body == nil {
		return nil, fmt.Errorf("%w: empty response body", ErrProtocolError)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, body []byte, token string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// bearer returns a credential that will outlive the request, refreshing
// proactively when expiry is near.
func (c *Client) bearer(ctx context.Context) (string, error) {
	creds, err := c.tokens.GetSession(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: get credentials: %v", ErrAuthExpired, err)
	}
	if time.Until(creds.ExpiresAt) < refreshLeeway {
		creds, err = c.tokens.RefreshSession(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: refresh credentials: %v", ErrAuthExpired, err)
		}
	}
	return creds.AccessToken, nil
}
