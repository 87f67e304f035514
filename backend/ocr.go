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

// OCRClient talks to the OCR service. It implements pipeline.Recognizer.
type OCRClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOCRClient creates an OCR service client.
func NewOCRClient(baseURL string, timeout time.Duration) *OCRClient {
	return &OCRClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ pipeline.Recognizer = (*OCRClient)(nil)

type ocrRequest struct {
	ImageURLs []string `json:"image_urls"`
}

// ocrResultPayload accepts both naming conventions for the image reference.
type ocrResultPayload struct {
	ImageURL      string `json:"image_url"`
	ImageURLCamel string `json:"imageUrl"`
	Text          string `json:"text"`
}

// Recognize submits image URLs and returns the recognized text per image.
func (c *OCRClient) Recognize(ctx context.Context, imageURLs []string) ([]domain.OCRResult, error) {
	body, err := json.Marshal(ocrRequest{ImageURLs: imageURLs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ocr", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ocr service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var payload []ocrResultPayload
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode ocr response: %w", err)
	}

	results := make([]domain.OCRResult, 0, len(payload))
	for _, p := range payload {
		url := p.ImageURL
		if url == "" {
			url = p.ImageURLCamel
		}
		results = append(results, domain.OCRResult{ImageURL: url, Text: p.Text})
	}
	return results, nil
}
