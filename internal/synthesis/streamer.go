package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StreamerConfig contains chunking and buffering configuration
type StreamerConfig struct {
	EnableStreaming   bool
	ChunkSizeChars    int
	AudioBufferSize   int
	BackpressureDelay time.Duration
}

// Item is one element of a synthesis stream. A non-nil Err ends the stream;
// chunks yielded before it remain valid.
type Item struct {
	Response *Response
	Err      error
}

// Streamer turns reply text into a lazy sequence of synthesized audio
// chunks. Produced chunks are pushed into a bounded per-session queue
// before being yielded; a full queue pauses production briefly instead of
// blocking it.
type Streamer struct {
	config  StreamerConfig
	backend Backend
	logger  *slog.Logger

	sessions map[string]chan *Response
	mu       sync.Mutex
}

// NewStreamer creates a synthesis streamer over the given backend
func NewStreamer(config StreamerConfig, backend Backend, logger *slog.Logger) *Streamer {
	if config.ChunkSizeChars < 1 {
		config.ChunkSizeChars = 100
	}
	if config.AudioBufferSize < 1 {
		config.AudioBufferSize = 3
	}
	if config.BackpressureDelay <= 0 {
		config.BackpressureDelay = 100 * time.Millisecond
	}
	return &Streamer{
		config:   config,
		backend:  backend,
		logger:   logger,
		sessions: make(map[string]chan *Response),
	}
}

// Stream synthesizes the reply text with the given voice and yields audio
// chunks as they become available. The returned channel closes when the
// stream completes or after the first per-chunk error.
func (s *Streamer) Stream(ctx context.Context, text, voiceID, sessionID, requestID string) <-chan Item {
	out := make(chan Item)

	go func() {
		defer close(out)

		if !s.config.EnableStreaming || len(text) <= s.config.ChunkSizeChars {
			req := &Request{
				Text:       text,
				VoiceID:    voiceID,
				SessionID:  sessionID,
				RequestID:  requestID,
				Parameters: map[string]any{"is_streaming": false},
			}
			s.produce(ctx, out, sessionID, req)
			return
		}

		chunks := SplitText(text, s.config.ChunkSizeChars)
		for i, chunk := range chunks {
			req := &Request{
				Text:      chunk,
				VoiceID:   voiceID,
				SessionID: sessionID,
				RequestID: fmt.Sprintf("%s-%d", requestID, i),
				Parameters: map[string]any{
					"is_streaming": true,
					"chunk_index":  i,
					"total_chunks": len(chunks),
				},
			}
			if !s.produce(ctx, out, sessionID, req) {
				return
			}
		}
	}()

	return out
}

// produce synthesizes one chunk, buffers and yields it. Returns false when
// the stream should stop.
func (s *Streamer) produce(ctx context.Context, out chan<- Item, sessionID string, req *Request) bool {
	resp, err := s.backend.Synthesize(ctx, req)
	if err != nil {
		s.logger.Error("Synthesis request failed",
			slog.String("session_id", sessionID),
			slog.String("request_id", req.RequestID),
			slog.String("error", err.Error()),
		)
		select {
		case out <- Item{Err: fmt.Errorf("synthesis failed for %s: %w", req.RequestID, err)}:
		case <-ctx.Done():
		}
		return false
	}

	queue := s.sessionQueue(sessionID)
	full := false
	select {
	case queue <- resp:
	default:
		full = true
	}

	select {
	case out <- Item{Response: resp}:
	case <-ctx.Done():
		return false
	}

	if full {
		// Soft backpressure: the chunk above was already yielded, only the
		// next production is delayed.
		select {
		case <-time.After(s.config.BackpressureDelay):
		case <-ctx.Done():
			return false
		}
	}

	return true
}

func (s *Streamer) sessionQueue(sessionID string) chan *Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, exists := s.sessions[sessionID]
	if !exists {
		queue = make(chan *Response, s.config.AudioBufferSize)
		s.sessions[sessionID] = queue
	}
	return queue
}

// Consume removes the oldest buffered chunk for a session, if any
func (s *Streamer) Consume(sessionID string) (*Response, bool) {
	s.mu.Lock()
	queue, exists := s.sessions[sessionID]
	s.mu.Unlock()

	if !exists {
		return nil, false
	}

	select {
	case resp := <-queue:
		return resp, true
	default:
		return nil, false
	}
}

// CleanSession drains and discards the residual audio queue for a session
func (s *Streamer) CleanSession(sessionID string) {
	s.mu.Lock()
	queue, exists := s.sessions[sessionID]
	if exists {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !exists {
		return
	}

	for {
		select {
		case <-queue:
		default:
			return
		}
	}
}

// ActiveSessions returns the number of sessions with a live audio queue
func (s *Streamer) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
