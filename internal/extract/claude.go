package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgallion1/esgcompare/internal/metric"
)

const anthropicURL = "https://api.anthropic.com/v1/messages"

// ClaudeClient calls the Anthropic Messages API for metric extraction.
type ClaudeClient struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return &ClaudeClient{
		apiKey:   apiKey,
		model:    model,
		endpoint: anthropicURL,
		httpClient: &http.Client{
			Timeout: 180 * time.Second,
		},
	}
}

// WithEndpoint points the client at another Messages API URL.
func (c *ClaudeClient) WithEndpoint(url string) *ClaudeClient {
	c.endpoint = url
	return c
}

func (c *ClaudeClient) Model() string { return c.model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Extract asks Claude for the metrics in text.
func (c *ClaudeClient) Extract(ctx context.Context, text string, schema metric.Schema) ([]metric.RawRecord, error) {
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: 8192,
		System:    SystemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: BuildPrompt(schema, text)},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, unavailable(fmt.Errorf("claude api: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, unavailable(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("claude", resp, respBody)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrMalformedResponse, err)
	}
	if apiResp.Error != nil {
		if apiResp.Error.Type == "overloaded_error" || apiResp.Error.Type == "api_error" {
			return nil, &RetryableError{StatusCode: resp.StatusCode, Message: apiResp.Error.Message, Kind: ErrServiceUnavailable}
		}
		return nil, fmt.Errorf("%w: claude error: %s: %s", ErrServiceUnavailable, apiResp.Error.Type, apiResp.Error.Message)
	}

	var out bytes.Buffer
	for _, part := range apiResp.Content {
		if part.Type == "text" {
			out.WriteString(part.Text)
		}
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("%w: empty response from claude", ErrMalformedResponse)
	}
	return DecodeRecords(out.String())
}

// Close releases resources.
func (c *ClaudeClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
