package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientConfig contains inference HTTP client configuration
type ClientConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// Client is the HTTP client for the model backend. The batch variant posts
// to <endpoint>/batch and consumes results in request order.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new inference HTTP client
func NewClient(config ClientConfig) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Infer sends a single request to the model backend
func (c *Client) Infer(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := c.post(ctx, c.config.Endpoint, req)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse inference response: %w", err)
	}

	return &resp, nil
}

// InferBatch sends a batch of requests together. Results come back as a
// JSON array in request order.
func (c *Client) InferBatch(ctx context.Context, reqs []*Request) ([]*Response, error) {
	// Batches get double the single-request budget.
	ctx, cancel := context.WithTimeout(ctx, 2*c.config.Timeout)
	defer cancel()

	payload := struct {
		Batch []*Request `json:"batch"`
	}{Batch: reqs}

	body, err := c.post(ctx, c.config.Endpoint+"/batch", payload)
	if err != nil {
		return nil, err
	}

	var resps []*Response
	if err := json.Unmarshal(body, &resps); err != nil {
		return nil, fmt.Errorf("failed to parse batch inference response: %w", err)
	}

	return resps, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference service error %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
