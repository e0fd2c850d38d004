package pathstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the pathstore key-value HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	source     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		source:  "esgcompare",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NodeRequest is the body for PUT /kv/{key}.
type NodeRequest struct {
	Value     json.RawMessage `json:"value"`
	MergeMode string          `json:"merge_mode,omitempty"`
	Source    string          `json:"source,omitempty"`
	ExpiresAt string          `json:"expires_at,omitempty"`
}

// NodeResponse is the response from GET /kv/{key}.
type NodeResponse struct {
	Key   string          `json:"key_path"`
	Value json.RawMessage `json:"value"`
}

// Put stores value at key, replacing what was there. A positive ttl sets an
// expiry on the node.
func (c *Client) Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	req := NodeRequest{Value: value, MergeMode: "replace", Source: c.source}
	if ttl > 0 {
		req.ExpiresAt = time.Now().Add(ttl).UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, key, body)
	if err != nil {
		return fmt.Errorf("put node: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError("put node", key, resp)
	}
	return nil
}

// Get returns the value stored at key. A missing key yields ok=false.
func (c *Client) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	resp, err := c.do(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, false, fmt.Errorf("get node: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, statusError("get node", key, resp)
	}

	var node NodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&node); err != nil {
		return nil, false, fmt.Errorf("decode node: %w", err)
	}
	if len(node.Value) == 0 || string(node.Value) == "null" {
		return nil, false, nil
	}
	return node.Value, true, nil
}

func (c *Client) do(ctx context.Context, method, key string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/kv/"+key, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.httpClient.Do(httpReq)
}

func statusError(op, key string, resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%s %s: status %d: %s", op, key, resp.StatusCode, string(respBody))
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
