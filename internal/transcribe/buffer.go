package transcribe

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/voice-ai-service/internal/audio"
)

// Result is a transcription produced for a session. Only final results are
// promoted into conversation context by the caller.
type Result struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Final      bool      `json:"is_final"`
	ProducerID string    `json:"producer_id"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// ResultHandler receives transcription results as flushes complete
type ResultHandler func(ctx context.Context, result Result)

// BufferConfig contains the flush trigger configuration
type BufferConfig struct {
	BatchSize  int           // frame count trigger
	MaxLatency time.Duration // time trigger since the last flush

	// OnFlush and OnFailure, when set, observe each backend call
	OnFlush   func(latency time.Duration)
	OnFailure func()
}

// Buffer accumulates enhanced frames per session and flushes them to the
// transcription backend when a size, time, or finality trigger fires.
// Backend calls for one session are strictly serialized: a flush waits for
// the previous one to finish before sending. A failed flush is logged and
// dropped, never retried; that asymmetry with the inference dispatcher is
// intentional, a stale partial transcript is worth less than a fresh one.
type Buffer struct {
	config  BufferConfig
	backend Backend
	handler ResultHandler
	logger  *slog.Logger

	sessions map[string]*sessionBuffer
	mu       sync.Mutex
}

type sessionBuffer struct {
	frames    []audio.Frame
	lastFlush time.Time

	// lastDone is closed when the most recently scheduled flush finishes.
	// Each new flush waits on its predecessor's channel, which both
	// serializes backend calls per session and keeps them in schedule order.
	lastDone chan struct{}

	// backend conversational state echoed on the next call
	backendCtx json.RawMessage
}

// NewBuffer creates a transcription buffer flushing to backend
func NewBuffer(config BufferConfig, backend Backend, handler ResultHandler, logger *slog.Logger) *Buffer {
	if config.BatchSize < 1 {
		config.BatchSize = 3
	}
	if config.MaxLatency <= 0 {
		config.MaxLatency = 300 * time.Millisecond
	}
	return &Buffer{
		config:   config,
		backend:  backend,
		handler:  handler,
		logger:   logger,
		sessions: make(map[string]*sessionBuffer),
	}
}

// ConsumeFrame buffers an enhanced frame and flushes when a trigger fires.
// Implements audio.Sink. The flush itself runs asynchronously so frames
// arriving while a backend call is in flight buffer for the next batch.
func (b *Buffer) ConsumeFrame(ctx context.Context, frame audio.Frame) error {
	b.mu.Lock()
	state, exists := b.sessions[frame.SessionID]
	if !exists {
		state = newSessionBuffer()
		b.sessions[frame.SessionID] = state
	}
	state.frames = append(state.frames, frame)

	now := time.Now()
	shouldFlush := len(state.frames) >= b.config.BatchSize ||
		now.Sub(state.lastFlush) >= b.config.MaxLatency ||
		frame.Final

	if !shouldFlush {
		b.mu.Unlock()
		return nil
	}

	batch := state.frames
	state.frames = nil
	state.lastFlush = now
	prev, done := state.chain()
	b.mu.Unlock()

	go func() {
		defer close(done)
		<-prev
		b.flush(ctx, frame.SessionID, state, batch, frame.Final)
	}()
	return nil
}

func newSessionBuffer() *sessionBuffer {
	done := make(chan struct{})
	close(done)
	return &sessionBuffer{
		lastFlush: time.Now(),
		lastDone:  done,
	}
}

// chain reserves the next slot in the session's flush order. Callers must
// hold b.mu.
func (s *sessionBuffer) chain() (prev, done chan struct{}) {
	prev = s.lastDone
	done = make(chan struct{})
	s.lastDone = done
	return prev, done
}

// Flush synchronously flushes any buffered frames for a session and waits
// for every scheduled backend call to complete. Used at the end of an audio
// stream so the caller sees all results before reading the transcript.
func (b *Buffer) Flush(ctx context.Context, sessionID string, forceFinal bool) {
	b.mu.Lock()
	state, exists := b.sessions[sessionID]
	if !exists {
		b.mu.Unlock()
		return
	}

	batch := state.frames
	state.frames = nil
	state.lastFlush = time.Now()

	var prev, done chan struct{}
	if len(batch) > 0 {
		prev, done = state.chain()
	} else {
		// Nothing buffered: just wait out the scheduled flushes.
		done = state.lastDone
	}
	b.mu.Unlock()

	if len(batch) > 0 {
		if forceFinal {
			batch[len(batch)-1].Final = true
		}
		<-prev
		b.flush(ctx, sessionID, state, batch, batch[len(batch)-1].Final)
		close(done)
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// flush sends one batch to the backend. The batch is snapshotted under b.mu
// by the caller, so flush only touches state fields guarded by the flush
// chain (backendCtx), never ones written on frame arrival.
func (b *Buffer) flush(ctx context.Context, sessionID string, state *sessionBuffer, batch []audio.Frame, final bool) {
	var combined []byte
	var audioLen time.Duration
	for i := range batch {
		combined = append(combined, batch[i].Data...)
		audioLen += batch[i].Duration()
	}

	if len(combined) == 0 {
		return
	}

	req := &Request{
		AudioData:  combined,
		SampleRate: batch[0].SampleRate,
		SessionID:  sessionID,
		Context:    state.backendCtx,
	}

	callStart := time.Now()
	resp, err := b.backend.Transcribe(ctx, req)
	if err != nil {
		if b.config.OnFailure != nil {
			b.config.OnFailure()
		}
		// Dropped, not retried. The next flush carries fresh audio anyway.
		b.logger.Error("Transcription flush failed",
			slog.String("session_id", sessionID),
			slog.Int("frames", len(batch)),
			slog.String("error", err.Error()),
		)
		return
	}

	if b.config.OnFlush != nil {
		b.config.OnFlush(time.Since(callStart))
	}

	if len(resp.Context) > 0 {
		state.backendCtx = resp.Context
	}

	confidence := 1.0
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}

	result := Result{
		Text:       resp.Text,
		Confidence: confidence,
		Final:      final,
		ProducerID: batch[len(batch)-1].ProducerID,
		SessionID:  sessionID,
		Timestamp:  time.Now(),
	}

	b.logger.Debug("Transcription flush completed",
		slog.String("session_id", sessionID),
		slog.Int("frames", len(batch)),
		slog.Duration("audio_duration", audioLen),
		slog.Bool("final", final),
		slog.Float64("confidence", confidence),
	)

	if b.handler != nil {
		b.handler(ctx, result)
	}
}

// Terminate flushes any buffered frames one final time with finality forced,
// then discards all per-session state.
func (b *Buffer) Terminate(ctx context.Context, sessionID string) {
	b.mu.Lock()
	_, exists := b.sessions[sessionID]
	b.mu.Unlock()
	if !exists {
		return
	}

	b.Flush(ctx, sessionID, true)

	b.mu.Lock()
	delete(b.sessions, sessionID)
	b.mu.Unlock()
}

// ActiveSessions returns the number of sessions holding buffered state
func (b *Buffer) ActiveSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}
