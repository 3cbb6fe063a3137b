package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type batchResult struct {
	resp *Response
	err  error
}

type batchItem struct {
	req   *Request
	reply chan batchResult
}

// batcher collects requests from a bounded channel and dispatches them to
// the backend's batch endpoint from a single worker. Callers enqueue a
// (request, reply-channel) pair and await the reply.
type batcher struct {
	backend  Backend
	maxBatch int
	logger   *slog.Logger

	queue  chan batchItem
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBatcher(backend Backend, maxBatch int, logger *slog.Logger) *batcher {
	if maxBatch < 1 {
		maxBatch = 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &batcher{
		backend:  backend,
		maxBatch: maxBatch,
		logger:   logger,
		queue:    make(chan batchItem, 4*maxBatch),
		ctx:      ctx,
		cancel:   cancel,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.workerLoop()
	}()

	return b
}

// submit enqueues a request and waits for its slice of the batch response
func (b *batcher) submit(ctx context.Context, req *Request, timeout time.Duration) (*Response, error) {
	item := batchItem{req: req, reply: make(chan batchResult, 1)}

	select {
	case b.queue <- item:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.ctx.Done():
		return nil, fmt.Errorf("batch worker stopped")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-item.reply:
		return result.resp, result.err
	case <-timer.C:
		return nil, fmt.Errorf("request %s timed out waiting for batch result", req.RequestID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *batcher) workerLoop() {
	for {
		// Block for the first item, then drain whatever is immediately
		// available up to the batch ceiling.
		var batch []batchItem
		select {
		case <-b.ctx.Done():
			return
		case first := <-b.queue:
			batch = append(batch, first)
		}

	drain:
		for len(batch) < b.maxBatch {
			select {
			case item := <-b.queue:
				batch = append(batch, item)
			default:
				break drain
			}
		}

		b.dispatch(batch)
	}
}

func (b *batcher) dispatch(batch []batchItem) {
	reqs := make([]*Request, len(batch))
	for i, item := range batch {
		reqs[i] = item.req
	}

	results, err := b.backend.InferBatch(b.ctx, reqs)
	if err != nil {
		b.logger.Error("Batch inference call failed",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()),
		)
		for _, item := range batch {
			item.reply <- batchResult{err: err}
		}
		return
	}

	for i, item := range batch {
		if i < len(results) {
			item.reply <- batchResult{resp: results[i]}
		} else {
			item.reply <- batchResult{err: fmt.Errorf("batch response missing result for request %s", item.req.RequestID)}
		}
	}
}

func (b *batcher) stop() {
	b.cancel()
	b.wg.Wait()
}
