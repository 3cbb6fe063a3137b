package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink receives enhanced frames in arrival order for a session
type Sink interface {
	ConsumeFrame(ctx context.Context, frame Frame) error
}

// Ingestor accepts raw audio frames per session, runs each through the
// enhancement chain, and forwards surviving frames to the sink. Ingestion
// never blocks on enhancement: frames are queued to a per-session worker,
// which processes them one at a time so the sink observes arrival order.
type Ingestor struct {
	enhancer *Enhancer
	sink     Sink
	logger   *slog.Logger

	// OnFrame and OnDrop, when set before the first stream, observe each
	// frame accepted for processing and each frame discarded.
	OnFrame func()
	OnDrop  func()

	sessions map[string]*sessionWorker
	mu       sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

type sessionWorker struct {
	queue  chan workItem
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type workItem struct {
	frame   Frame
	barrier chan struct{} // non-nil marks a drain barrier, frame is ignored
}

// NewIngestor creates an audio ingestor forwarding enhanced frames to sink
func NewIngestor(enhancer *Enhancer, sink Sink, logger *slog.Logger) *Ingestor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Ingestor{
		enhancer: enhancer,
		sink:     sink,
		logger:   logger,
		sessions: make(map[string]*sessionWorker),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ProcessStream consumes raw frames for a (session, producer) pair until the
// channel closes or the context is cancelled. It returns once every frame
// read from the stream has been enhanced and delivered downstream.
func (in *Ingestor) ProcessStream(ctx context.Context, frames <-chan Frame, sessionID, producerID string) error {
	worker := in.getOrCreateWorker(sessionID)

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return in.drain(ctx, worker, sessionID, count)
			}

			frame.SessionID = sessionID
			frame.ProducerID = producerID
			if frame.Timestamp.IsZero() {
				frame.Timestamp = time.Now()
			}

			select {
			case worker.queue <- workItem{frame: frame}:
				count++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// drain blocks until the worker has processed everything enqueued so far
func (in *Ingestor) drain(ctx context.Context, worker *sessionWorker, sessionID string, count int) error {
	barrier := make(chan struct{})
	select {
	case worker.queue <- workItem{barrier: barrier}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-barrier:
	case <-ctx.Done():
		return ctx.Err()
	}

	in.logger.Debug("Audio stream ingested",
		slog.String("session_id", sessionID),
		slog.Int("frames", count),
	)
	return nil
}

func (in *Ingestor) getOrCreateWorker(sessionID string) *sessionWorker {
	in.mu.Lock()
	defer in.mu.Unlock()

	if worker, exists := in.sessions[sessionID]; exists {
		return worker
	}

	workerCtx, cancel := context.WithCancel(in.ctx)
	worker := &sessionWorker{
		queue:  make(chan workItem, 64),
		cancel: cancel,
	}
	worker.wg.Add(1)
	go func() {
		defer worker.wg.Done()
		in.workerLoop(workerCtx, sessionID, worker.queue)
	}()

	in.sessions[sessionID] = worker
	return worker
}

func (in *Ingestor) workerLoop(ctx context.Context, sessionID string, queue chan workItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-queue:
			if item.barrier != nil {
				close(item.barrier)
				continue
			}
			in.processFrame(ctx, sessionID, item.frame)
		}
	}
}

func (in *Ingestor) processFrame(ctx context.Context, sessionID string, frame Frame) {
	if in.OnFrame != nil {
		in.OnFrame()
	}

	samples, err := BytesToSamples(frame.Data)
	if err != nil {
		if in.OnDrop != nil {
			in.OnDrop()
		}
		in.logger.Warn("Dropping malformed audio frame",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	enhanced, hasVoice := in.enhancer.Enhance(samples)

	// Final frames pass through even without detected speech so the
	// transcription buffer observes finality and flushes its residue.
	if !hasVoice && !frame.Final {
		if in.OnDrop != nil {
			in.OnDrop()
		}
		return
	}

	if hasVoice {
		frame.Data = SamplesToBytes(enhanced)
	}

	if err := in.sink.ConsumeFrame(ctx, frame); err != nil {
		in.logger.Error("Frame sink rejected enhanced frame",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

// Terminate cancels the in-flight enhancement work for a session and
// discards its queued frames.
func (in *Ingestor) Terminate(sessionID string) {
	in.mu.Lock()
	worker, exists := in.sessions[sessionID]
	if exists {
		delete(in.sessions, sessionID)
	}
	in.mu.Unlock()

	if !exists {
		return
	}

	worker.cancel()
	worker.wg.Wait()

	in.logger.Debug("Audio ingestion terminated", slog.String("session_id", sessionID))
}

// ActiveSessions returns the number of sessions with a live worker
func (in *Ingestor) ActiveSessions() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.sessions)
}

// Stop terminates every session worker
func (in *Ingestor) Stop() {
	in.mu.Lock()
	workers := make([]*sessionWorker, 0, len(in.sessions))
	for id, worker := range in.sessions {
		workers = append(workers, worker)
		delete(in.sessions, id)
	}
	in.mu.Unlock()

	in.cancel()
	for _, worker := range workers {
		worker.wg.Wait()
	}
}
