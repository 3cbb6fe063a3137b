package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DispatcherConfig contains dispatch behavior configuration
type DispatcherConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	CacheMaxSize int
	MaxRetries   int // total attempts
	Timeout      time.Duration
	BatchEnabled bool
	MaxBatchSize int
	BackoffBase  time.Duration

	// OnCacheHit, when set, is invoked once per request served from cache
	OnCacheHit func()
}

// Dispatcher turns conversation context into model responses. Cache reads
// never trigger retries or batch participation; each logical request makes
// at most one network call sequence.
type Dispatcher struct {
	config  DispatcherConfig
	backend Backend
	cache   *responseCache
	batch   *batcher
	logger  *slog.Logger
}

// NewDispatcher creates an inference dispatcher over the given backend
func NewDispatcher(config DispatcherConfig, backend Backend, logger *slog.Logger) *Dispatcher {
	if config.MaxRetries < 1 {
		config.MaxRetries = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 100 * time.Millisecond
	}

	d := &Dispatcher{
		config:  config,
		backend: backend,
		logger:  logger,
	}

	if config.CacheEnabled {
		d.cache = newResponseCache(config.CacheTTL, config.CacheMaxSize)
	}

	if config.BatchEnabled {
		d.batch = newBatcher(backend, config.MaxBatchSize, logger)
	}

	return d
}

// Dispatch returns a model response for the request, serving from cache
// when possible and otherwise calling the backend with bounded retry.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	var cacheKey string
	if d.cache != nil {
		cacheKey = fingerprint(req)
		if cached, hit := d.cache.get(cacheKey); hit {
			if d.config.OnCacheHit != nil {
				d.config.OnCacheHit()
			}
			d.logger.Debug("Inference cache hit",
				slog.String("session_id", req.SessionID),
				slog.String("request_id", req.RequestID),
			)
			return cached, nil
		}
	}

	var resp *Response
	var lastErr error

	for attempt := 0; attempt < d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Base delay doubled per attempt.
			backoff := d.config.BackoffBase << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var err error
		resp, err = d.send(ctx, req)
		if err == nil {
			lastErr = nil
			break
		}

		lastErr = classify(err)
		d.logger.Warn("Inference attempt failed",
			slog.String("session_id", req.SessionID),
			slog.String("request_id", req.RequestID),
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()),
		)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("inference failed after %d attempts: %w", d.config.MaxRetries, lastErr)
	}

	elapsed := time.Since(start)
	resp.SessionID = req.SessionID
	resp.RequestID = req.RequestID
	resp.ProcessingTime = elapsed.Seconds()
	resp.Timestamp = float64(time.Now().UnixNano()) / float64(time.Second)
	if resp.ModelUsed == "" {
		resp.ModelUsed = req.ModelName
	}

	if d.cache != nil {
		d.cache.put(cacheKey, resp)
	}

	return resp, nil
}

func (d *Dispatcher) send(ctx context.Context, req *Request) (*Response, error) {
	if d.batch != nil {
		return d.batch.submit(ctx, req, d.config.Timeout)
	}
	return d.backend.Infer(ctx, req)
}

// classify rewrites deadline errors so failures surface as timeouts
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", err)
	}
	if strings.Contains(err.Error(), "Client.Timeout") {
		return fmt.Errorf("request timed out: %w", err)
	}
	return err
}

// CacheSize returns the current number of cached responses
func (d *Dispatcher) CacheSize() int {
	if d.cache == nil {
		return 0
	}
	return d.cache.size()
}

// Stop shuts down the batch worker if batching is enabled
func (d *Dispatcher) Stop() {
	if d.batch != nil {
		d.batch.stop()
	}
}
