package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/voice-ai-service/internal/audio"
	"github.com/skypro1111/voice-ai-service/internal/conversation"
	"github.com/skypro1111/voice-ai-service/internal/inference"
	"github.com/skypro1111/voice-ai-service/internal/metrics"
	"github.com/skypro1111/voice-ai-service/internal/sanitize"
	"github.com/skypro1111/voice-ai-service/internal/synthesis"
	"github.com/skypro1111/voice-ai-service/internal/transcribe"
)

// ErrNoSpeech reports an audio stream that produced no final transcription
var ErrNoSpeech = errors.New("no speech detected in audio stream")

// Session tracks per-session bookkeeping in the orchestrator's registry
type Session struct {
	ID           string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
	VoiceID      string    `json:"voice_id"`
}

// Result is the combined text+audio outcome of an orchestrated request.
// SynthesisErr is non-nil when the chunk stream failed partway; the reply
// text and any audio chunks collected before the failure remain valid.
type Result struct {
	Reply        conversation.Turn     `json:"reply"`
	Audio        []*synthesis.Response `json:"audio"`
	SynthesisErr error                 `json:"-"`
}

// Config contains orchestrator configuration
type Config struct {
	Enhancer       audio.EnhancerConfig
	Buffer         transcribe.BufferConfig
	Dispatcher     inference.DispatcherConfig
	Streamer       synthesis.StreamerConfig
	Sanitizer      sanitize.Config
	MaxContext     int
	ModelName      string
	DefaultVoice   string
	IdleTimeout    time.Duration
	ReportInterval time.Duration
}

// Backends bundles the external services the pipeline talks to
type Backends struct {
	Transcription transcribe.Backend
	Inference     inference.Backend
	Synthesis     synthesis.Backend
}

// Orchestrator wires the pipeline stages end to end. It is the only
// component with visibility across all of them; lower stages know nothing
// about their callers.
type Orchestrator struct {
	config     Config
	ingestor   *audio.Ingestor
	buffer     *transcribe.Buffer
	contextMgr *conversation.Manager
	dispatcher *inference.Dispatcher
	streamer   *synthesis.Streamer
	sanitizer  *sanitize.Sanitizer
	metrics    *metrics.Metrics
	logger     *slog.Logger

	sessions map[string]*Session
	mu       sync.RWMutex

	// latest final transcription per session, consumed by the audio path
	transcripts   map[string]transcribe.Result
	transcriptsMu sync.Mutex

	stats   Stats
	statsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	reaper chan struct{}
}

// Stats holds the orchestrator's running counters. AvgProcessingTime is an
// exponentially weighted moving average with weight 0.2 on the newest sample.
type Stats struct {
	RequestsProcessed   uint64  `json:"requests_processed"`
	AudioStreamsHandled uint64  `json:"audio_streams_handled"`
	InferenceRequests   uint64  `json:"inference_requests"`
	SynthesisRequests   uint64  `json:"synthesis_requests"`
	Errors              uint64  `json:"errors"`
	AvgProcessingTime   float64 `json:"avg_processing_time"`
	ActiveSessions      int     `json:"active_sessions"`
}

// NewOrchestrator builds the full pipeline over the given backends. A nil
// store degrades conversation persistence to in-memory only.
func NewOrchestrator(config Config, backends Backends, store conversation.Store, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if config.DefaultVoice == "" {
		config.DefaultVoice = "default"
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = time.Hour
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = time.Minute
	}

	if config.Dispatcher.OnCacheHit == nil {
		config.Dispatcher.OnCacheHit = m.InferenceCacheHits.Inc
	}
	if config.Buffer.OnFlush == nil {
		config.Buffer.OnFlush = func(latency time.Duration) {
			m.TranscriptionFlushes.Inc()
			m.TranscriptionLatency.Observe(latency.Seconds())
		}
	}
	if config.Buffer.OnFailure == nil {
		config.Buffer.OnFailure = m.TranscriptionFailures.Inc
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		config:      config,
		contextMgr:  conversation.NewManager(config.MaxContext, store, logger),
		dispatcher:  inference.NewDispatcher(config.Dispatcher, backends.Inference, logger),
		streamer:    synthesis.NewStreamer(config.Streamer, backends.Synthesis, logger),
		sanitizer:   sanitize.New(config.Sanitizer),
		metrics:     m,
		logger:      logger,
		sessions:    make(map[string]*Session),
		transcripts: make(map[string]transcribe.Result),
		ctx:         ctx,
		cancel:      cancel,
		reaper:      make(chan struct{}),
	}

	o.buffer = transcribe.NewBuffer(config.Buffer, backends.Transcription, o.handleTranscription, logger)
	o.ingestor = audio.NewIngestor(audio.NewEnhancer(config.Enhancer), o.buffer, logger)
	o.ingestor.OnFrame = m.FramesIngested.Inc
	o.ingestor.OnDrop = m.FramesDropped.Inc

	go o.reaperLoop()

	return o
}

// handleTranscription promotes final transcriptions into conversation
// context as user turns and records them for the audio entry point.
func (o *Orchestrator) handleTranscription(ctx context.Context, result transcribe.Result) {
	if !result.Final || result.Text == "" {
		return
	}

	turn := conversation.NewTurn(conversation.RoleUser, result.Text, result.SessionID, map[string]any{
		"source":     "voice",
		"confidence": result.Confidence,
	})
	if err := o.contextMgr.Append(ctx, turn); err != nil {
		o.logger.Error("Failed to append transcribed turn",
			slog.String("session_id", result.SessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	o.transcriptsMu.Lock()
	o.transcripts[result.SessionID] = result
	o.transcriptsMu.Unlock()
}

func (o *Orchestrator) takeTranscript(sessionID string) (transcribe.Result, bool) {
	o.transcriptsMu.Lock()
	defer o.transcriptsMu.Unlock()

	result, exists := o.transcripts[sessionID]
	if exists {
		delete(o.transcripts, sessionID)
	}
	return result, exists
}

// ProcessAudioStream drives a raw frame stream through ingestion,
// transcription, inference, and synthesis, returning the combined reply.
func (o *Orchestrator) ProcessAudioStream(ctx context.Context, frames <-chan audio.Frame, sessionID, userID string) (*Result, error) {
	sessionID, userID, err := o.sanitizeIDs(sessionID, userID)
	if err != nil {
		return nil, err
	}

	session := o.register(sessionID, userID)
	start := time.Now()

	o.statsMu.Lock()
	o.stats.AudioStreamsHandled++
	o.statsMu.Unlock()

	if err := o.ingestor.ProcessStream(ctx, frames, sessionID, userID); err != nil {
		o.recordError()
		return nil, fmt.Errorf("audio ingestion failed for session %s: %w", sessionID, err)
	}

	// Force out whatever is still buffered so the transcript is complete.
	o.buffer.Flush(ctx, sessionID, true)

	if _, ok := o.takeTranscript(sessionID); !ok {
		return nil, ErrNoSpeech
	}

	return o.respond(ctx, session, start)
}

// ProcessText appends a sanitized user turn and returns the combined reply
func (o *Orchestrator) ProcessText(ctx context.Context, text, sessionID, userID string) (*Result, error) {
	sessionID, userID, err := o.sanitizeIDs(sessionID, userID)
	if err != nil {
		return nil, err
	}

	text, err = o.sanitizer.Text(text)
	if err != nil {
		return nil, fmt.Errorf("invalid message for session %s: %w", sessionID, err)
	}

	session := o.register(sessionID, userID)
	start := time.Now()

	turn := conversation.NewTurn(conversation.RoleUser, text, sessionID, map[string]any{"source": "text"})
	if err := o.contextMgr.Append(ctx, turn); err != nil {
		o.recordError()
		return nil, fmt.Errorf("failed to append user turn for session %s: %w", sessionID, err)
	}

	return o.respond(ctx, session, start)
}

// respond dispatches inference over the current window, appends the
// assistant turn, and streams the synthesized reply.
func (o *Orchestrator) respond(ctx context.Context, session *Session, start time.Time) (*Result, error) {
	window := o.contextMgr.Window(session.ID)
	snapshot := make([]inference.ContextEntry, len(window))
	for i, turn := range window {
		snapshot[i] = inference.ContextEntry{Role: string(turn.Role), Content: turn.Content}
	}

	requestID := fmt.Sprintf("req-%s", uuid.NewString())
	req := &inference.Request{
		Context:    snapshot,
		SessionID:  session.ID,
		UserID:     session.UserID,
		RequestID:  requestID,
		ModelName:  o.config.ModelName,
		Parameters: map[string]any{},
		Timestamp:  float64(start.UnixNano()) / float64(time.Second),
	}

	o.statsMu.Lock()
	o.stats.InferenceRequests++
	o.statsMu.Unlock()
	o.metrics.InferenceRequests.Inc()

	inferStart := time.Now()
	resp, err := o.dispatcher.Dispatch(ctx, req)
	o.metrics.InferenceLatency.Observe(time.Since(inferStart).Seconds())
	if err != nil {
		o.recordError()
		o.metrics.InferenceFailures.Inc()
		o.logger.Error("Inference dispatch failed",
			slog.String("session_id", session.ID),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to generate reply for session %s: %w", session.ID, err)
	}

	assistant := conversation.NewTurn(conversation.RoleAssistant, resp.Text, session.ID, map[string]any{
		"model_used":      resp.ModelUsed,
		"processing_time": resp.ProcessingTime,
	})
	assistant.ID = fmt.Sprintf("assistant-%s", requestID)
	if err := o.contextMgr.Append(ctx, assistant); err != nil {
		o.recordError()
		return nil, fmt.Errorf("failed to append assistant turn for session %s: %w", session.ID, err)
	}

	o.statsMu.Lock()
	o.stats.SynthesisRequests++
	o.statsMu.Unlock()

	result := &Result{Reply: assistant}
	for item := range o.streamer.Stream(ctx, resp.Text, o.voiceFor(session.ID), session.ID, requestID) {
		if item.Err != nil {
			// The text reply and chunks collected so far stay valid.
			o.metrics.SynthesisFailures.Inc()
			result.SynthesisErr = item.Err
			break
		}
		o.metrics.SynthesisChunks.Inc()
		result.Audio = append(result.Audio, item.Response)
	}

	elapsed := time.Since(start)
	o.updateStats(elapsed)
	o.metrics.RequestsProcessed.Inc()
	o.metrics.RequestDuration.Observe(elapsed.Seconds())

	o.logger.Info("Request completed",
		slog.String("session_id", session.ID),
		slog.String("request_id", requestID),
		slog.Int("audio_chunks", len(result.Audio)),
		slog.Duration("duration", elapsed),
	)

	return result, nil
}

func (o *Orchestrator) sanitizeIDs(sessionID, userID string) (string, string, error) {
	sessionID, err := o.sanitizer.ID(sessionID)
	if err != nil {
		return "", "", fmt.Errorf("invalid session id: %w", err)
	}

	if userID != "" {
		userID, err = o.sanitizer.ID(userID)
		if err != nil {
			return "", "", fmt.Errorf("invalid user id: %w", err)
		}
	}

	return sessionID, userID, nil
}

// register creates a session on first activity or touches an existing one
func (o *Orchestrator) register(sessionID, userID string) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	session, exists := o.sessions[sessionID]
	if !exists {
		now := time.Now()
		session = &Session{
			ID:           sessionID,
			UserID:       userID,
			CreatedAt:    now,
			LastActivity: now,
			VoiceID:      o.config.DefaultVoice,
		}
		o.sessions[sessionID] = session
		o.metrics.SessionsCreated.Inc()
		o.metrics.ActiveSessions.Set(float64(len(o.sessions)))

		o.logger.Info("Created new session",
			slog.String("session_id", sessionID),
			slog.String("user_id", userID),
		)
	}

	session.LastActivity = time.Now()
	session.MessageCount++
	return session
}

// SetVoice selects the synthesis voice for a session
func (o *Orchestrator) SetVoice(sessionID, voiceID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	session, exists := o.sessions[sessionID]
	if !exists {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	session.VoiceID = voiceID
	return nil
}

func (o *Orchestrator) voiceFor(sessionID string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if session, exists := o.sessions[sessionID]; exists {
		return session.VoiceID
	}
	return o.config.DefaultVoice
}

func (o *Orchestrator) recordError() {
	o.statsMu.Lock()
	o.stats.Errors++
	o.statsMu.Unlock()
	o.metrics.RequestErrors.Inc()
}

func (o *Orchestrator) updateStats(elapsed time.Duration) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	o.stats.RequestsProcessed++
	sample := elapsed.Seconds()
	if o.stats.RequestsProcessed == 1 {
		o.stats.AvgProcessingTime = sample
	} else {
		o.stats.AvgProcessingTime = o.stats.AvgProcessingTime*0.8 + sample*0.2
	}
}

// GetStats returns a snapshot of the running counters
func (o *Orchestrator) GetStats() Stats {
	o.statsMu.Lock()
	stats := o.stats
	o.statsMu.Unlock()

	o.mu.RLock()
	stats.ActiveSessions = len(o.sessions)
	o.mu.RUnlock()

	return stats
}

// GetSessions returns a snapshot of all active sessions for monitoring
func (o *Orchestrator) GetSessions() []Session {
	o.mu.RLock()
	defer o.mu.RUnlock()

	sessions := make([]Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, *s)
	}
	return sessions
}

// Terminate tears a session down across every pipeline stage
func (o *Orchestrator) Terminate(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	session, exists := o.sessions[sessionID]
	if exists {
		delete(o.sessions, sessionID)
	}
	activeCount := len(o.sessions)
	o.mu.Unlock()

	if !exists {
		return fmt.Errorf("unknown session: %s", sessionID)
	}

	o.ingestor.Terminate(sessionID)
	o.buffer.Terminate(ctx, sessionID)
	if err := o.contextMgr.Clear(ctx, sessionID); err != nil {
		o.logger.Warn("Failed to archive session context",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
	o.streamer.CleanSession(sessionID)

	o.transcriptsMu.Lock()
	delete(o.transcripts, sessionID)
	o.transcriptsMu.Unlock()

	o.metrics.ActiveSessions.Set(float64(activeCount))

	o.logger.Info("Session terminated",
		slog.String("session_id", sessionID),
		slog.Duration("lifetime", time.Since(session.CreatedAt)),
		slog.Int("messages", session.MessageCount),
	)

	return nil
}

// reaperLoop periodically reports counters and reaps idle sessions
func (o *Orchestrator) reaperLoop() {
	defer close(o.reaper)

	ticker := time.NewTicker(o.config.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.reportStats()
			o.reapIdleSessions()
		}
	}
}

func (o *Orchestrator) reportStats() {
	stats := o.GetStats()
	o.logger.Info("Pipeline stats",
		slog.Uint64("requests_processed", stats.RequestsProcessed),
		slog.Uint64("inference_requests", stats.InferenceRequests),
		slog.Uint64("synthesis_requests", stats.SynthesisRequests),
		slog.Uint64("errors", stats.Errors),
		slog.Float64("avg_processing_time", stats.AvgProcessingTime),
		slog.Int("active_sessions", stats.ActiveSessions),
	)
}

func (o *Orchestrator) reapIdleSessions() {
	now := time.Now()

	o.mu.RLock()
	var idle []string
	for id, session := range o.sessions {
		if now.Sub(session.LastActivity) > o.config.IdleTimeout {
			idle = append(idle, id)
		}
	}
	o.mu.RUnlock()

	if len(idle) == 0 {
		return
	}

	o.logger.Info("Reaping idle sessions", slog.Int("count", len(idle)))

	for _, id := range idle {
		if err := o.Terminate(o.ctx, id); err != nil {
			o.logger.Warn("Failed to reap session",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		o.metrics.SessionsReaped.Inc()
	}
}

// Stop gracefully shuts down the orchestrator and its background work
func (o *Orchestrator) Stop() {
	o.logger.Info("Stopping orchestrator...")

	o.mu.RLock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.RUnlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, id := range ids {
		if err := o.Terminate(shutdownCtx, id); err != nil {
			o.logger.Warn("Error terminating session on shutdown",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	o.ingestor.Stop()
	o.dispatcher.Stop()

	o.cancel()
	<-o.reaper

	stats := o.GetStats()
	o.logger.Info("Orchestrator stopped",
		slog.Uint64("requests_processed", stats.RequestsProcessed),
		slog.Uint64("errors", stats.Errors),
	)
}
