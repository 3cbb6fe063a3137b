package inference

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
	mu         sync.Mutex
	calls      int
	batchCalls int
	batchSizes []int
	failUntil  int // calls before this one fail
	err        error
	text       string
}

func (f *fakeBackend) Infer(ctx context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.err != nil && n <= f.failUntil {
		return nil, f.err
	}
	if f.err != nil && f.failUntil == 0 {
		return nil, f.err
	}

	text := f.text
	if text == "" {
		text = "reply"
	}
	return &Response{Text: text, ModelUsed: req.ModelName}, nil
}

func (f *fakeBackend) InferBatch(ctx context.Context, reqs []*Request) ([]*Response, error) {
	f.mu.Lock()
	f.batchCalls++
	f.batchSizes = append(f.batchSizes, len(reqs))
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	results := make([]*Response, len(reqs))
	for i, req := range reqs {
		results[i] = &Response{Text: fmt.Sprintf("reply-%s", req.RequestID), ModelUsed: req.ModelName}
	}
	return results, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest(id, content string) *Request {
	return &Request{
		Context:   []ContextEntry{{Role: "user", Content: content}},
		SessionID: "sess-1",
		RequestID: id,
		ModelName: "assistant-v1",
	}
}

func TestDispatchCachesIdenticalRequests(t *testing.T) {
	backend := &fakeBackend{}
	dispatcher := NewDispatcher(DispatcherConfig{
		CacheEnabled: true,
		CacheTTL:     time.Minute,
		CacheMaxSize: 100,
		MaxRetries:   3,
		Timeout:      time.Second,
	}, backend, testLogger())
	defer dispatcher.Stop()

	ctx := context.Background()

	first, err := dispatcher.Dispatch(ctx, testRequest("req-1", "hello"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	second, err := dispatcher.Dispatch(ctx, testRequest("req-2", "hello"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if backend.callCount() != 1 {
		t.Errorf("Expected exactly 1 backend call, got %d", backend.callCount())
	}
	if first.Text != second.Text {
		t.Errorf("Expected identical cached response, got %q and %q", first.Text, second.Text)
	}
	if dispatcher.CacheSize() != 1 {
		t.Errorf("Expected 1 cache entry, got %d", dispatcher.CacheSize())
	}
}

func TestDispatchDistinctContextsMiss(t *testing.T) {
	backend := &fakeBackend{}
	dispatcher := NewDispatcher(DispatcherConfig{
		CacheEnabled: true,
		CacheTTL:     time.Minute,
		CacheMaxSize: 100,
		MaxRetries:   1,
		Timeout:      time.Second,
	}, backend, testLogger())
	defer dispatcher.Stop()

	ctx := context.Background()
	if _, err := dispatcher.Dispatch(ctx, testRequest("req-1", "hello")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if _, err := dispatcher.Dispatch(ctx, testRequest("req-2", "goodbye")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if backend.callCount() != 2 {
		t.Errorf("Expected 2 backend calls for distinct contexts, got %d", backend.callCount())
	}
}

func TestDispatchCacheExpiry(t *testing.T) {
	backend := &fakeBackend{}
	dispatcher := NewDispatcher(DispatcherConfig{
		CacheEnabled: true,
		CacheTTL:     30 * time.Millisecond,
		CacheMaxSize: 100,
		MaxRetries:   1,
		Timeout:      time.Second,
	}, backend, testLogger())
	defer dispatcher.Stop()

	ctx := context.Background()
	if _, err := dispatcher.Dispatch(ctx, testRequest("req-1", "hello")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if _, err := dispatcher.Dispatch(ctx, testRequest("req-2", "hello")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if backend.callCount() != 2 {
		t.Errorf("Expected expired entry to miss, got %d backend calls", backend.callCount())
	}
}

func TestDispatchRetriesWithBackoff(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("temporary failure"), failUntil: 2}
	dispatcher := NewDispatcher(DispatcherConfig{
		MaxRetries:  3,
		Timeout:     time.Second,
		BackoffBase: 10 * time.Millisecond,
	}, backend, testLogger())
	defer dispatcher.Stop()

	start := time.Now()
	resp, err := dispatcher.Dispatch(context.Background(), testRequest("req-1", "hello"))
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Expected third attempt to succeed, got: %v", err)
	}
	if resp.Text != "reply" {
		t.Errorf("Unexpected response text: %q", resp.Text)
	}
	if backend.callCount() != 3 {
		t.Errorf("Expected 3 attempts, got %d", backend.callCount())
	}

	// Backoff between attempts: 10ms then 20ms.
	if elapsed < 30*time.Millisecond {
		t.Errorf("Expected at least 30ms of backoff, took %v", elapsed)
	}
}

func TestDispatchExhaustsRetries(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("permanent failure")}
	dispatcher := NewDispatcher(DispatcherConfig{
		MaxRetries:  3,
		Timeout:     time.Second,
		BackoffBase: time.Millisecond,
	}, backend, testLogger())
	defer dispatcher.Stop()

	_, err := dispatcher.Dispatch(context.Background(), testRequest("req-1", "hello"))
	if err == nil {
		t.Fatal("Expected error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "inference failed after 3 attempts") {
		t.Errorf("Unexpected error message: %v", err)
	}
	if backend.callCount() != 3 {
		t.Errorf("Expected 3 attempts, got %d", backend.callCount())
	}
}

func TestDispatchClassifiesTimeouts(t *testing.T) {
	backend := &fakeBackend{err: context.DeadlineExceeded}
	dispatcher := NewDispatcher(DispatcherConfig{
		MaxRetries:  2,
		Timeout:     time.Second,
		BackoffBase: time.Millisecond,
	}, backend, testLogger())
	defer dispatcher.Stop()

	_, err := dispatcher.Dispatch(context.Background(), testRequest("req-1", "hello"))
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Expected timeout classification, got: %v", err)
	}
}

func TestDispatchSetsResponseMetadata(t *testing.T) {
	backend := &fakeBackend{}
	dispatcher := NewDispatcher(DispatcherConfig{
		MaxRetries: 1,
		Timeout:    time.Second,
	}, backend, testLogger())
	defer dispatcher.Stop()

	req := testRequest("req-1", "hello")
	resp, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if resp.SessionID != req.SessionID {
		t.Errorf("Expected session id %q, got %q", req.SessionID, resp.SessionID)
	}
	if resp.RequestID != req.RequestID {
		t.Errorf("Expected request id %q, got %q", req.RequestID, resp.RequestID)
	}
	if resp.ModelUsed != "assistant-v1" {
		t.Errorf("Expected model name echoed, got %q", resp.ModelUsed)
	}
	if resp.ProcessingTime < 0 {
		t.Errorf("Expected non-negative processing time, got %f", resp.ProcessingTime)
	}
	if resp.Timestamp == 0 {
		t.Error("Expected timestamp to be set")
	}
}

func TestDispatchBatchesConcurrentRequests(t *testing.T) {
	backend := &fakeBackend{}
	dispatcher := NewDispatcher(DispatcherConfig{
		MaxRetries:   1,
		Timeout:      2 * time.Second,
		BatchEnabled: true,
		MaxBatchSize: 16,
	}, backend, testLogger())
	defer dispatcher.Stop()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	resps := make([]*Response, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			req := testRequest(fmt.Sprintf("req-%d", idx), fmt.Sprintf("message %d", idx))
			resps[idx], errs[idx] = dispatcher.Dispatch(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Request %d failed: %v", i, errs[i])
		}
		expected := fmt.Sprintf("reply-req-%d", i)
		if resps[i].Text != expected {
			t.Errorf("Request %d got wrong reply: expected %q, got %q", i, expected, resps[i].Text)
		}
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	total := 0
	for _, size := range backend.batchSizes {
		if size > 16 {
			t.Errorf("Batch exceeded ceiling: %d", size)
		}
		total += size
	}
	if total != n {
		t.Errorf("Expected %d requests dispatched, got %d", n, total)
	}
}

func TestCacheEvictionOverCeiling(t *testing.T) {
	cache := newResponseCache(300*time.Millisecond, 3)

	for i := 0; i < 3; i++ {
		cache.put(fmt.Sprintf("key-%d", i), &Response{Text: "old"})
	}

	// Age the first entries past 80% of the TTL.
	time.Sleep(250 * time.Millisecond)

	cache.put("key-new", &Response{Text: "new"})

	if cache.size() != 1 {
		t.Errorf("Expected aged entries evicted leaving 1, got %d", cache.size())
	}
	if _, hit := cache.get("key-new"); !hit {
		t.Error("Expected fresh entry to survive eviction")
	}
}

func TestFingerprintIgnoresSessionAndRequestIDs(t *testing.T) {
	a := testRequest("req-1", "hello")
	b := testRequest("req-2", "hello")
	b.SessionID = "sess-other"

	if fingerprint(a) != fingerprint(b) {
		t.Error("Expected fingerprint to ignore session and request ids")
	}

	c := testRequest("req-3", "different")
	if fingerprint(a) == fingerprint(c) {
		t.Error("Expected different contexts to produce different fingerprints")
	}
}
