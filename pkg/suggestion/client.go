package suggestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medcoder-ai/platform/pkg/common/httpclient"
	"github.com/medcoder-ai/platform/pkg/common/models"
)

// Client calls the generative code-suggestion model. SuggestCodes is the one
// fatal-on-failure dependency of the pipeline; RefineText backs the optional
// relevance-filtering stage and its failures are absorbed by the caller.
type Client struct {
	apiKey    string
	baseURL   string
	modelName string
	http      *http.Client
	refineTO  time.Duration
}

func NewClient(baseURL, apiKey, modelName string, suggestTimeout, refineTimeout time.Duration) *Client {
	return &Client{
		apiKey:    apiKey,
		baseURL:   baseURL,
		modelName: modelName,
		http:      httpclient.New(suggestTimeout),
		refineTO:  refineTimeout,
	}
}

// SuggestCodes asks the model for billing-code suggestions given the
// filtered entities, crosswalk candidates, and already-billed codes.
func (c *Client) SuggestCodes(ctx context.Context, text string, billed []models.BilledCode, procedures, diagnoses []models.ExtractedEntity, candidates map[string][]models.CrosswalkMapping) (*models.SuggestionSet, error) {
	input := map[string]interface{}{
		"note":                 text,
		"billed_codes":         billed,
		"procedure_entities":   procedures,
		"diagnosis_entities":   diagnoses,
		"crosswalk_candidates": candidates,
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`You are a medical coding assistant. Given the clinical context below, propose billing codes not already on the claim.

%s

Return a JSON object: {"suggestions": [{"code", "description", "confidence", "rationale", "estimated_fee"}]}.`, inputJSON)

	content, err := c.chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("suggestion call failed: %w", err)
	}

	var set models.SuggestionSet
	if err := json.Unmarshal([]byte(content), &set); err != nil {
		return nil, fmt.Errorf("malformed suggestion response: %w", err)
	}
	set.ModelVersion = c.modelName
	set.GeneratedAt = time.Now().UTC()
	return &set, nil
}

// RefineText asks the model to strip clinically irrelevant passages from the
// note. Callers treat errors as a degraded stage and continue with the
// original text.
func (c *Client) RefineText(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.refineTO)
	defer cancel()

	prompt := fmt.Sprintf(`Remove administrative boilerplate and clinically irrelevant passages from this note, keeping every clinical statement verbatim:

%s

Return only the refined note text.`, text)

	refined, err := c.chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("refinement call failed: %w", err)
	}
	if refined == "" {
		return "", fmt.Errorf("refinement returned empty text")
	}
	return refined, nil
}

func (c *Client) chat(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model": c.modelName,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model API returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
