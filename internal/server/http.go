package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/voice-ai-service/internal/config"
	"github.com/skypro1111/voice-ai-service/internal/session"
)

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server       *http.Server
	logger       *slog.Logger
	config       *config.Config
	orchestrator *session.Orchestrator

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, orchestrator *session.Orchestrator) *HTTPServer {

	h := &HTTPServer{
		logger:       logger,
		config:       appConfig,
		orchestrator: orchestrator,
		startTime:    time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.handleHealth)

	// Session monitoring endpoints
	mux.HandleFunc("/sessions", h.handleSessions)
	mux.HandleFunc("/sessions/", h.handleSessionDetail)

	// Configuration endpoint
	mux.HandleFunc("/config", h.handleConfig)

	// Statistics endpoint
	mux.HandleFunc("/stats", h.handleStats)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.handleRoot)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.orchestrator.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "voice-ai-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"orchestrator": map[string]interface{}{
				"status":             "running",
				"active_sessions":    stats.ActiveSessions,
				"requests_processed": stats.RequestsProcessed,
				"errors":             stats.Errors,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.orchestrator.GetSessions()

	response := map[string]interface{}{
		"total_sessions": len(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements the /sessions/{session_id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Path[len("/sessions/"):]
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		for _, s := range h.orchestrator.GetSessions() {
			if s.ID == sessionID {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(s)
				return
			}
		}
		http.Error(w, "Session not found", http.StatusNotFound)

	case http.MethodDelete:
		if err := h.orchestrator.Terminate(r.Context(), sessionID); err != nil {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate":   h.config.Audio.SampleRate,
			"chunk_size_ms": h.config.Audio.ChunkSizeMs,
			"vad_threshold": h.config.Audio.VADThreshold,
		},
		"transcription": map[string]interface{}{
			"endpoint":       h.config.Transcription.Endpoint,
			"batch_size":     h.config.Transcription.BatchSize,
			"max_latency_ms": h.config.Transcription.MaxLatencyMs,
			"timeout":        h.config.Transcription.Timeout,
		},
		"inference": map[string]interface{}{
			"endpoint":      h.config.Inference.Endpoint,
			"model_name":    h.config.Inference.ModelName,
			"cache_enabled": h.config.Inference.CacheEnabled,
			"batch_enabled": h.config.Inference.BatchEnabled,
			"max_retries":   h.config.Inference.MaxRetries,
			"timeout":       h.config.Inference.Timeout,
		},
		"synthesis": map[string]interface{}{
			"endpoint":          h.config.Synthesis.Endpoint,
			"enable_streaming":  h.config.Synthesis.EnableStreaming,
			"chunk_size_chars":  h.config.Synthesis.ChunkSizeChars,
			"audio_buffer_size": h.config.Synthesis.AudioBufferSize,
		},
		"conversation": map[string]interface{}{
			"max_context_length": h.config.Conversation.MaxContextLength,
			"persisted_length":   h.config.Conversation.PersistedLength,
		},
		"session": map[string]interface{}{
			"idle_timeout":    h.config.Session.IdleTimeout,
			"report_interval": h.config.Session.ReportInterval,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
		// Note: redis password is intentionally omitted for security
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.orchestrator.GetStats()

	response := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"pipeline":  stats,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Voice AI Session Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                         "API documentation",
			"GET /health":                   "Service health check",
			"GET /sessions":                 "List all active sessions",
			"GET /sessions/{session_id}":    "Get detailed session information",
			"DELETE /sessions/{session_id}": "Terminate a session",
			"GET /config":                   "Get service configuration",
			"GET /stats":                    "Get pipeline statistics",
			"GET /metrics":                  "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
