package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/medcoder-ai/platform/pkg/common/httpclient"
	"github.com/medcoder-ai/platform/pkg/common/models"
)

// Client talks to the clinical entity-extraction service. ExtractEntities
// and ExtractCodedTerms are independently callable and independently
// failable; callers decide what a failure means for their stage.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpclient.New(timeout),
	}
}

type extractRequest struct {
	Text       string `json:"text"`
	CodeSystem string `json:"code_system,omitempty"`
}

type extractResponse struct {
	Entities []models.ExtractedEntity `json:"entities"`
}

// ExtractEntities returns clinical entities detected in the de-identified
// note text.
func (c *Client) ExtractEntities(ctx context.Context, text string) ([]models.ExtractedEntity, error) {
	return c.post(ctx, "/api/v1/entities", extractRequest{Text: text})
}

// ExtractCodedTerms returns entities resolved against a terminology system
// (e.g. SNOMED procedure codes) with the terminology service's own mapping
// confidence.
func (c *Client) ExtractCodedTerms(ctx context.Context, text, codeSystem string) ([]models.ExtractedEntity, error) {
	return c.post(ctx, "/api/v1/coded-terms", extractRequest{Text: text, CodeSystem: codeSystem})
}

func (c *Client) post(ctx context.Context, path string, reqBody extractRequest) ([]models.ExtractedEntity, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service returned %d", resp.StatusCode)
	}

	var decoded extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding extraction response: %w", err)
	}
	return decoded.Entities, nil
}
