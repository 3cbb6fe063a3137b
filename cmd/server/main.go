package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/voice-ai-service/internal/audio"
	"github.com/skypro1111/voice-ai-service/internal/config"
	"github.com/skypro1111/voice-ai-service/internal/conversation"
	"github.com/skypro1111/voice-ai-service/internal/inference"
	"github.com/skypro1111/voice-ai-service/internal/metrics"
	"github.com/skypro1111/voice-ai-service/internal/sanitize"
	"github.com/skypro1111/voice-ai-service/internal/server"
	"github.com/skypro1111/voice-ai-service/internal/session"
	"github.com/skypro1111/voice-ai-service/internal/synthesis"
	"github.com/skypro1111/voice-ai-service/internal/transcribe"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voice-ai-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Duration("chunk_duration", cfg.Audio.GetChunkDuration()),
		slog.Float64("vad_threshold", cfg.Audio.VADThreshold),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("inference_endpoint", cfg.Inference.Endpoint),
		slog.String("model_name", cfg.Inference.ModelName),
		slog.String("synthesis_endpoint", cfg.Synthesis.Endpoint),
		slog.Int("max_context_length", cfg.Conversation.MaxContextLength),
		slog.Bool("redis_enabled", cfg.Redis.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize backend clients
	transcriptionBackend, err := transcribe.NewClient(transcribe.ClientConfig{
		Endpoint: cfg.Transcription.Endpoint,
		Timeout:  cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	inferenceBackend, err := inference.NewClient(inference.ClientConfig{
		Endpoint: cfg.Inference.Endpoint,
		Timeout:  cfg.Inference.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create inference client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	synthesisBackend, err := synthesis.NewClient(synthesis.ClientConfig{
		Endpoint: cfg.Synthesis.Endpoint,
		Timeout:  cfg.Synthesis.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create synthesis client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the optional external conversation store
	var store conversation.Store
	if cfg.Redis.Enabled {
		redisStore, err := conversation.NewRedisStore(ctx, conversation.RedisStoreConfig{
			Addr:             cfg.Redis.Address,
			Password:         cfg.Redis.Password,
			DB:               cfg.Redis.DB,
			PersistedLength:  cfg.Conversation.PersistedLength,
			ArchiveRetention: cfg.Conversation.GetArchiveRetentionDuration(),
		})
		if err != nil {
			logger.Error("Failed to connect to redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
		logger.Info("Redis conversation store connected", slog.String("address", cfg.Redis.Address))
	}

	// Initialize pipeline orchestrator
	orchestratorConfig := session.Config{
		Enhancer: audio.EnhancerConfig{
			VADThreshold: cfg.Audio.VADThreshold,
			GainTarget:   cfg.Audio.GainTarget,
			MaxGain:      cfg.Audio.MaxGain,
		},
		Buffer: transcribe.BufferConfig{
			BatchSize:  cfg.Transcription.BatchSize,
			MaxLatency: cfg.Transcription.GetMaxLatencyDuration(),
		},
		Dispatcher: inference.DispatcherConfig{
			CacheEnabled: cfg.Inference.CacheEnabled,
			CacheTTL:     cfg.Inference.GetCacheTTLDuration(),
			CacheMaxSize: cfg.Inference.CacheMaxSize,
			MaxRetries:   cfg.Inference.MaxRetries,
			Timeout:      cfg.Inference.GetTimeoutDuration(),
			BatchEnabled: cfg.Inference.BatchEnabled,
			MaxBatchSize: cfg.Inference.MaxBatchSize,
		},
		Streamer: synthesis.StreamerConfig{
			EnableStreaming: cfg.Synthesis.EnableStreaming,
			ChunkSizeChars:  cfg.Synthesis.ChunkSizeChars,
			AudioBufferSize: cfg.Synthesis.AudioBufferSize,
		},
		Sanitizer: sanitize.Config{
			MaxTextLength: cfg.Session.MaxTextLength,
		},
		MaxContext:     cfg.Conversation.MaxContextLength,
		ModelName:      cfg.Inference.ModelName,
		DefaultVoice:   cfg.Synthesis.DefaultVoice,
		IdleTimeout:    cfg.Session.GetIdleTimeoutDuration(),
		ReportInterval: cfg.Session.GetReportIntervalDuration(),
	}

	orchestrator := session.NewOrchestrator(orchestratorConfig, session.Backends{
		Transcription: transcriptionBackend,
		Inference:     inferenceBackend,
		Synthesis:     synthesisBackend,
	}, store, appMetrics, logger)
	logger.Info("Pipeline orchestrator initialized",
		slog.Duration("idle_timeout", cfg.Session.GetIdleTimeoutDuration()),
		slog.String("model_name", cfg.Inference.ModelName),
	)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, orchestrator)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("HTTP API server started",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop orchestrator (terminate sessions and stop background routines)
	orchestrator.Stop()

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
