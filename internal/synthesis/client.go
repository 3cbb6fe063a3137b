package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skypro1111/voice-ai-service/internal/audio"
)

// Defaults used when the returned audio container cannot be parsed.
const (
	defaultDuration   = 1.0
	defaultSampleRate = 16000
)

// Request is the payload sent to the synthesis backend
type Request struct {
	Text       string         `json:"text"`
	VoiceID    string         `json:"voice_id"`
	SessionID  string         `json:"session_id"`
	RequestID  string         `json:"request_id"`
	Parameters map[string]any `json:"parameters"`
}

// Response carries one synthesized audio chunk
type Response struct {
	AudioData  []byte  `json:"audio_data"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
	Format     string  `json:"format"`
	SessionID  string  `json:"session_id"`
	RequestID  string  `json:"request_id"`
	Text       string  `json:"text"`
}

// Backend is the capability interface for a text-to-speech service
type Backend interface {
	Synthesize(ctx context.Context, req *Request) (*Response, error)
}

// ClientConfig contains synthesis client configuration
type ClientConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// Client is the HTTP client for the synthesis backend. The backend returns
// raw audio bytes in a WAV container; duration and sample rate are derived
// from the container, with fixed defaults when it is malformed.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new synthesis HTTP client
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

// Synthesize requests audio for a text chunk
func (c *Client) Synthesize(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio payload: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesis service error %d: %s", resp.StatusCode, string(audioData))
	}

	duration, sampleRate := analyzeAudio(audioData)

	return &Response{
		AudioData:  audioData,
		Duration:   duration,
		SampleRate: sampleRate,
		Format:     "wav",
		SessionID:  req.SessionID,
		RequestID:  req.RequestID,
		Text:       req.Text,
	}, nil
}

// analyzeAudio decodes the WAV container to verify the payload is intact
// 16-bit mono PCM and derive duration and sample rate from the samples,
// falling back to defaults rather than failing the whole response.
func analyzeAudio(data []byte) (float64, int) {
	samples, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		return defaultDuration, defaultSampleRate
	}
	return float64(len(samples)) / float64(sampleRate), sampleRate
}
