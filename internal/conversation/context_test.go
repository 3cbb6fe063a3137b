package conversation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
)

type fakeStore struct {
	mu       sync.Mutex
	pushed   []string
	archived []string
	pushErr  error
}

func (f *fakeStore) PushTurn(ctx context.Context, sessionID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, sessionID)
	return nil
}

func (f *fakeStore) Archive(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, sessionID)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerAppendAndWindow(t *testing.T) {
	manager := NewManager(20, nil, testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		turn := NewTurn(RoleUser, fmt.Sprintf("message %d", i), "sess-1", nil)
		if err := manager.Append(ctx, turn); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	window := manager.Window("sess-1")
	if len(window) != 5 {
		t.Fatalf("Expected 5 turns, got %d", len(window))
	}
	for i, turn := range window {
		expected := fmt.Sprintf("message %d", i)
		if turn.Content != expected {
			t.Errorf("Turn %d out of order: expected %q, got %q", i, expected, turn.Content)
		}
	}
}

func TestManagerWindowBound(t *testing.T) {
	manager := NewManager(10, nil, testLogger())
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		turn := NewTurn(RoleUser, fmt.Sprintf("message %d", i), "sess-1", nil)
		if err := manager.Append(ctx, turn); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	window := manager.Window("sess-1")
	if len(window) != 10 {
		t.Fatalf("Expected window bounded to 10 turns, got %d", len(window))
	}

	// Oldest turns are dropped; the newest survive in order.
	if window[0].Content != "message 15" {
		t.Errorf("Expected oldest kept turn to be message 15, got %q", window[0].Content)
	}
	if window[9].Content != "message 24" {
		t.Errorf("Expected newest turn to be message 24, got %q", window[9].Content)
	}
}

func TestManagerRetainsSystemTurns(t *testing.T) {
	manager := NewManager(5, nil, testLogger())
	ctx := context.Background()

	system := NewTurn(RoleSystem, "you are a helpful assistant", "sess-1", nil)
	if err := manager.Append(ctx, system); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		turn := NewTurn(RoleUser, fmt.Sprintf("message %d", i), "sess-1", nil)
		if err := manager.Append(ctx, turn); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	window := manager.Window("sess-1")
	if len(window) != 5 {
		t.Fatalf("Expected window of 5, got %d", len(window))
	}
	if window[0].Role != RoleSystem {
		t.Errorf("Expected system turn retained at front, got role %q", window[0].Role)
	}
	if window[4].Content != "message 19" {
		t.Errorf("Expected newest user turn last, got %q", window[4].Content)
	}
}

func TestManagerRejectsInvalidTurn(t *testing.T) {
	manager := NewManager(20, nil, testLogger())
	ctx := context.Background()

	turn := Turn{Role: "narrator", SessionID: "sess-1"}
	if err := manager.Append(ctx, turn); err == nil {
		t.Error("Expected error for invalid role")
	}

	turn = Turn{Role: RoleUser}
	if err := manager.Append(ctx, turn); err == nil {
		t.Error("Expected error for missing session id")
	}
}

func TestManagerPersistsToStore(t *testing.T) {
	store := &fakeStore{}
	manager := NewManager(20, store, testLogger())
	ctx := context.Background()

	turn := NewTurn(RoleUser, "hello", "sess-1", nil)
	if err := manager.Append(ctx, turn); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if len(store.pushed) != 1 || store.pushed[0] != "sess-1" {
		t.Errorf("Expected one pushed turn for sess-1, got %v", store.pushed)
	}
}

func TestManagerAppendSurvivesStoreFailure(t *testing.T) {
	store := &fakeStore{pushErr: fmt.Errorf("connection refused")}
	manager := NewManager(20, store, testLogger())
	ctx := context.Background()

	turn := NewTurn(RoleUser, "hello", "sess-1", nil)
	if err := manager.Append(ctx, turn); err != nil {
		t.Fatalf("Expected append to succeed despite store failure, got: %v", err)
	}

	if len(manager.Window("sess-1")) != 1 {
		t.Error("Expected turn in window despite store failure")
	}
}

func TestManagerClearArchives(t *testing.T) {
	store := &fakeStore{}
	manager := NewManager(20, store, testLogger())
	ctx := context.Background()

	turn := NewTurn(RoleUser, "hello", "sess-1", nil)
	if err := manager.Append(ctx, turn); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := manager.Clear(ctx, "sess-1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if len(manager.Window("sess-1")) != 0 {
		t.Error("Expected empty window after clear")
	}
	if len(store.archived) != 1 || store.archived[0] != "sess-1" {
		t.Errorf("Expected sess-1 archived, got %v", store.archived)
	}
}

func TestManagerConcurrentAppends(t *testing.T) {
	manager := NewManager(20, nil, testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("sess-%d", n%3)
			for j := 0; j < 20; j++ {
				turn := NewTurn(RoleUser, "concurrent", sessionID, nil)
				if err := manager.Append(ctx, turn); err != nil {
					t.Errorf("Append failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		window := manager.Window(fmt.Sprintf("sess-%d", i))
		if len(window) > 20 {
			t.Errorf("Window for sess-%d exceeds bound: %d", i, len(window))
		}
	}
}
