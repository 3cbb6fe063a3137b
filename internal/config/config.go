package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Inference     InferenceConfig     `yaml:"inference"`
	Synthesis     SynthesisConfig     `yaml:"synthesis"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	Redis         RedisConfig         `yaml:"redis"`
	Session       SessionConfig       `yaml:"session"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains the status/ops HTTP server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains audio ingestion and enhancement parameters
type AudioConfig struct {
	SampleRate   int     `yaml:"sample_rate"`
	ChunkSizeMs  int     `yaml:"chunk_size_ms"`
	VADThreshold float64 `yaml:"vad_threshold"`
	GainTarget   float64 `yaml:"gain_target"` // fraction of int16 full scale
	MaxGain      float64 `yaml:"max_gain"`
}

// TranscriptionConfig contains speech-to-text buffering and backend configuration
type TranscriptionConfig struct {
	Endpoint     string `yaml:"endpoint"`
	BatchSize    int    `yaml:"batch_size"`     // frames buffered before a flush
	MaxLatencyMs int    `yaml:"max_latency_ms"` // time trigger for a flush
	Timeout      int    `yaml:"timeout"`        // seconds
}

// InferenceConfig contains model dispatch configuration
type InferenceConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ModelName    string  `yaml:"model_name"`
	CacheEnabled bool    `yaml:"cache_enabled"`
	CacheTTL     int     `yaml:"cache_ttl"` // seconds
	CacheMaxSize int     `yaml:"cache_max_size"`
	MaxRetries   int     `yaml:"max_retries"`
	Timeout      float64 `yaml:"timeout"` // seconds
	BatchEnabled bool    `yaml:"batch_enabled"`
	MaxBatchSize int     `yaml:"max_batch_size"`
}

// SynthesisConfig contains text-to-speech streaming configuration
type SynthesisConfig struct {
	Endpoint        string `yaml:"endpoint"`
	EnableStreaming bool   `yaml:"enable_streaming"`
	ChunkSizeChars  int    `yaml:"chunk_size_chars"`
	AudioBufferSize int    `yaml:"audio_buffer_size"`
	DefaultVoice    string `yaml:"default_voice"`
	Timeout         int    `yaml:"timeout"` // seconds
}

// ConversationConfig contains context window configuration
type ConversationConfig struct {
	MaxContextLength int `yaml:"max_context_length"`
	PersistedLength  int `yaml:"persisted_length"`  // entries kept in the external list
	ArchiveRetention int `yaml:"archive_retention"` // days
}

// RedisConfig contains the optional external session-state store configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig contains orchestrator lifecycle configuration
type SessionConfig struct {
	IdleTimeout    int `yaml:"idle_timeout"`    // seconds
	ReportInterval int `yaml:"report_interval"` // seconds
	MaxTextLength  int `yaml:"max_text_length"` // sanitizer cap
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Inference.Validate(); err != nil {
		return fmt.Errorf("inference config: %w", err)
	}

	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("synthesis config: %w", err)
	}

	if err := c.Conversation.Validate(); err != nil {
		return fmt.Errorf("conversation config: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}

	if a.ChunkSizeMs < 1 {
		return fmt.Errorf("chunk_size_ms must be at least 1, got %d", a.ChunkSizeMs)
	}

	if a.VADThreshold < 0 || a.VADThreshold > 1 {
		return fmt.Errorf("vad_threshold must be between 0 and 1, got %f", a.VADThreshold)
	}

	if a.GainTarget <= 0 || a.GainTarget > 1 {
		return fmt.Errorf("gain_target must be between 0 and 1, got %f", a.GainTarget)
	}

	if a.MaxGain < 1 {
		return fmt.Errorf("max_gain must be at least 1, got %f", a.MaxGain)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", t.BatchSize)
	}

	if t.MaxLatencyMs < 1 {
		return fmt.Errorf("max_latency_ms must be at least 1, got %d", t.MaxLatencyMs)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates inference configuration
func (i *InferenceConfig) Validate() error {
	if i.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if i.ModelName == "" {
		return fmt.Errorf("model_name cannot be empty")
	}

	if i.CacheEnabled {
		if i.CacheTTL < 1 {
			return fmt.Errorf("cache_ttl must be at least 1 second, got %d", i.CacheTTL)
		}

		if i.CacheMaxSize < 1 {
			return fmt.Errorf("cache_max_size must be at least 1, got %d", i.CacheMaxSize)
		}
	}

	if i.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", i.MaxRetries)
	}

	if i.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %f", i.Timeout)
	}

	if i.BatchEnabled && i.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be at least 1 when batching is enabled, got %d", i.MaxBatchSize)
	}

	return nil
}

// Validate validates synthesis configuration
func (s *SynthesisConfig) Validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if s.ChunkSizeChars < 1 {
		return fmt.Errorf("chunk_size_chars must be at least 1, got %d", s.ChunkSizeChars)
	}

	if s.AudioBufferSize < 1 {
		return fmt.Errorf("audio_buffer_size must be at least 1, got %d", s.AudioBufferSize)
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	return nil
}

// Validate validates conversation configuration
func (c *ConversationConfig) Validate() error {
	if c.MaxContextLength < 1 {
		return fmt.Errorf("max_context_length must be at least 1, got %d", c.MaxContextLength)
	}

	if c.PersistedLength < 1 {
		return fmt.Errorf("persisted_length must be at least 1, got %d", c.PersistedLength)
	}

	if c.ArchiveRetention < 1 {
		return fmt.Errorf("archive_retention must be at least 1 day, got %d", c.ArchiveRetention)
	}

	return nil
}

// Validate validates redis configuration
func (r *RedisConfig) Validate() error {
	if r.Enabled && r.Address == "" {
		return fmt.Errorf("address cannot be empty when redis is enabled")
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", s.IdleTimeout)
	}

	if s.ReportInterval < 1 {
		return fmt.Errorf("report_interval must be at least 1 second, got %d", s.ReportInterval)
	}

	if s.MaxTextLength < 1 {
		return fmt.Errorf("max_text_length must be at least 1, got %d", s.MaxTextLength)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkDuration returns the audio chunk size as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkSizeMs) * time.Millisecond
}

// GetMaxLatencyDuration returns the flush time trigger as a time.Duration
func (t *TranscriptionConfig) GetMaxLatencyDuration() time.Duration {
	return time.Duration(t.MaxLatencyMs) * time.Millisecond
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetCacheTTLDuration returns the cache time-to-live as a time.Duration
func (i *InferenceConfig) GetCacheTTLDuration() time.Duration {
	return time.Duration(i.CacheTTL) * time.Second
}

// GetTimeoutDuration returns the inference timeout as a time.Duration
func (i *InferenceConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(i.Timeout * float64(time.Second))
}

// GetTimeoutDuration returns the synthesis timeout as a time.Duration
func (s *SynthesisConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetArchiveRetentionDuration returns the archive retention as a time.Duration
func (c *ConversationConfig) GetArchiveRetentionDuration() time.Duration {
	return time.Duration(c.ArchiveRetention) * 24 * time.Hour
}

// GetIdleTimeoutDuration returns the session idle timeout as a time.Duration
func (s *SessionConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// GetReportIntervalDuration returns the stats report interval as a time.Duration
func (s *SessionConfig) GetReportIntervalDuration() time.Duration {
	return time.Duration(s.ReportInterval) * time.Second
}
