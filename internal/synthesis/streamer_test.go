package synthesis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls []*Request
	failN int // fail the Nth call (1-based), 0 disables
}

func (f *fakeBackend) Synthesize(ctx context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()

	if f.failN > 0 && n == f.failN {
		return nil, fmt.Errorf("synthesis backend unavailable")
	}

	return &Response{
		AudioData:  []byte("audio"),
		Duration:   1.0,
		SampleRate: 16000,
		Format:     "wav",
		SessionID:  req.SessionID,
		RequestID:  req.RequestID,
		Text:       req.Text,
	}, nil
}

func (f *fakeBackend) requests() []*Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Request, len(f.calls))
	copy(out, f.calls)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(items <-chan Item) ([]*Response, error) {
	var responses []*Response
	for item := range items {
		if item.Err != nil {
			return responses, item.Err
		}
		responses = append(responses, item.Response)
	}
	return responses, nil
}

func TestStreamSingleRequestWhenShort(t *testing.T) {
	backend := &fakeBackend{}
	streamer := NewStreamer(StreamerConfig{
		EnableStreaming: true,
		ChunkSizeChars:  100,
		AudioBufferSize: 3,
	}, backend, testLogger())

	responses, err := collect(streamer.Stream(context.Background(), "short reply", "voice-1", "sess-1", "req-1"))
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(responses))
	}

	reqs := backend.requests()
	if reqs[0].RequestID != "req-1" {
		t.Errorf("Expected request id without chunk suffix, got %s", reqs[0].RequestID)
	}
	if reqs[0].Parameters["is_streaming"] != false {
		t.Errorf("Expected is_streaming false, got %v", reqs[0].Parameters["is_streaming"])
	}
	if reqs[0].VoiceID != "voice-1" {
		t.Errorf("Expected voice id propagated, got %s", reqs[0].VoiceID)
	}
}

func TestStreamSingleRequestWhenDisabled(t *testing.T) {
	backend := &fakeBackend{}
	streamer := NewStreamer(StreamerConfig{
		EnableStreaming: false,
		ChunkSizeChars:  50,
		AudioBufferSize: 3,
	}, backend, testLogger())

	long := strings.Repeat("word ", 60)
	responses, err := collect(streamer.Stream(context.Background(), long, "voice-1", "sess-1", "req-1"))
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("Expected streaming disabled to make a single request, got %d chunks", len(responses))
	}
}

func TestStreamChunksLongText(t *testing.T) {
	backend := &fakeBackend{}
	streamer := NewStreamer(StreamerConfig{
		EnableStreaming:   true,
		ChunkSizeChars:    100,
		AudioBufferSize:   10,
		BackpressureDelay: time.Millisecond,
	}, backend, testLogger())

	text := strings.Repeat("This is a sentence that ends right here. ", 8) // ~328 chars
	responses, err := collect(streamer.Stream(context.Background(), text, "voice-1", "sess-1", "req-1"))
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(responses) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(responses))
	}

	reqs := backend.requests()
	var rebuilt strings.Builder
	for i, req := range reqs {
		expectedID := fmt.Sprintf("req-1-%d", i)
		if req.RequestID != expectedID {
			t.Errorf("Chunk %d has wrong request id: expected %s, got %s", i, expectedID, req.RequestID)
		}
		if req.Parameters["is_streaming"] != true {
			t.Errorf("Chunk %d missing is_streaming", i)
		}
		if req.Parameters["chunk_index"] != i {
			t.Errorf("Chunk %d has wrong index: %v", i, req.Parameters["chunk_index"])
		}
		if req.Parameters["total_chunks"] != len(reqs) {
			t.Errorf("Chunk %d has wrong total: %v", i, req.Parameters["total_chunks"])
		}
		rebuilt.WriteString(req.Text)
	}

	if rebuilt.String() != text {
		t.Error("Chunk texts do not reconstruct the original reply")
	}
}

func TestStreamPartialResultsOnFailure(t *testing.T) {
	backend := &fakeBackend{failN: 3}
	streamer := NewStreamer(StreamerConfig{
		EnableStreaming:   true,
		ChunkSizeChars:    100,
		AudioBufferSize:   10,
		BackpressureDelay: time.Millisecond,
	}, backend, testLogger())

	text := strings.Repeat("This is a sentence that ends right here. ", 10)
	responses, err := collect(streamer.Stream(context.Background(), text, "voice-1", "sess-1", "req-1"))

	if err == nil {
		t.Fatal("Expected stream error from failing chunk")
	}
	if !strings.Contains(err.Error(), "synthesis failed for req-1-2") {
		t.Errorf("Unexpected error: %v", err)
	}
	if len(responses) != 2 {
		t.Errorf("Expected 2 chunks before the failure, got %d", len(responses))
	}
}

func TestStreamCleanSession(t *testing.T) {
	backend := &fakeBackend{}
	streamer := NewStreamer(StreamerConfig{
		EnableStreaming: true,
		ChunkSizeChars:  100,
		AudioBufferSize: 3,
	}, backend, testLogger())

	if _, err := collect(streamer.Stream(context.Background(), "hello", "voice-1", "sess-1", "req-1")); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if streamer.ActiveSessions() != 1 {
		t.Fatalf("Expected 1 active session, got %d", streamer.ActiveSessions())
	}

	streamer.CleanSession("sess-1")
	if streamer.ActiveSessions() != 0 {
		t.Errorf("Expected 0 active sessions after clean, got %d", streamer.ActiveSessions())
	}
}

func TestStreamConsumeBufferedChunk(t *testing.T) {
	backend := &fakeBackend{}
	streamer := NewStreamer(StreamerConfig{
		EnableStreaming: true,
		ChunkSizeChars:  100,
		AudioBufferSize: 3,
	}, backend, testLogger())

	if _, err := collect(streamer.Stream(context.Background(), "hello", "voice-1", "sess-1", "req-1")); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	resp, ok := streamer.Consume("sess-1")
	if !ok {
		t.Fatal("Expected a buffered chunk to consume")
	}
	if resp.RequestID != "req-1" {
		t.Errorf("Unexpected request id: %s", resp.RequestID)
	}

	if _, ok := streamer.Consume("sess-1"); ok {
		t.Error("Expected queue drained after consume")
	}
}
