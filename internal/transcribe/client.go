package transcribe

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Backend is the capability interface for a speech-to-text service
type Backend interface {
	Transcribe(ctx context.Context, req *Request) (*Response, error)
}

// Request is the payload sent to the transcription backend
type Request struct {
	AudioData  []byte          `json:"-"`
	SampleRate int             `json:"sample_rate"`
	SessionID  string          `json:"session_id"`
	Context    json.RawMessage `json:"context,omitempty"`
}

// Response is the transcription backend reply. Context is opaque backend
// state echoed on the next request for the same session.
type Response struct {
	Text       string          `json:"text"`
	Confidence *float64        `json:"confidence,omitempty"`
	Context    json.RawMessage `json:"context,omitempty"`
}

// ClientConfig contains transcription client configuration
type ClientConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// Client is the HTTP client for the transcription backend
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new transcription HTTP client
func NewClient(config ClientConfig) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Transcribe sends accumulated audio to the backend and returns the result
func (c *Client) Transcribe(ctx context.Context, req *Request) (*Response, error) {
	payload := struct {
		AudioData  string          `json:"audio_data"`
		SampleRate int             `json:"sample_rate"`
		SessionID  string          `json:"session_id"`
		Context    json.RawMessage `json:"context"`
	}{
		AudioData:  hex.EncodeToString(req.AudioData),
		SampleRate: req.SampleRate,
		SessionID:  req.SessionID,
		Context:    normalizeContext(req.Context),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcription request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
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

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return &result, nil
}

func normalizeContext(ctx json.RawMessage) json.RawMessage {
	if len(ctx) == 0 {
		return json.RawMessage("{}")
	}
	return ctx
}
