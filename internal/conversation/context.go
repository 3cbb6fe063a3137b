package conversation

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Manager owns the in-memory context windows for all sessions. A nil store
// degrades the manager to session-local memory with no persistence.
type Manager struct {
	maxLength int
	store     Store
	logger    *slog.Logger

	windows map[string][]Turn
	mu      sync.RWMutex
}

// NewManager creates a context manager with the given window bound
func NewManager(maxLength int, store Store, logger *slog.Logger) *Manager {
	if maxLength < 1 {
		maxLength = 20
	}
	return &Manager{
		maxLength: maxLength,
		store:     store,
		logger:    logger,
		windows:   make(map[string][]Turn),
	}
}

// Append adds a turn to its session's window, applying the windowing
// invariant, and mirrors it to the external store when one is configured.
func (m *Manager) Append(ctx context.Context, turn Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	window := append(m.windows[turn.SessionID], turn)
	if len(window) > m.maxLength {
		window = truncate(window, m.maxLength)
	}
	m.windows[turn.SessionID] = window
	m.mu.Unlock()

	if m.store != nil {
		data, err := json.Marshal(turn)
		if err != nil {
			return err
		}
		if err := m.store.PushTurn(ctx, turn.SessionID, data); err != nil {
			// Persistence is best effort; the in-memory window is authoritative.
			m.logger.Warn("Failed to persist turn",
				slog.String("session_id", turn.SessionID),
				slog.String("message_id", turn.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// truncate drops the oldest non-system turns until the window fits the
// bound. System turns are always retained and relative order is preserved.
func truncate(window []Turn, maxLength int) []Turn {
	toDrop := len(window) - maxLength
	keep := make([]Turn, 0, maxLength)
	for _, t := range window {
		if toDrop > 0 && t.Role != RoleSystem {
			toDrop--
			continue
		}
		keep = append(keep, t)
	}

	return keep
}

// Window returns a copy of the session's current context window
func (m *Manager) Window(sessionID string) []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	window := m.windows[sessionID]
	out := make([]Turn, len(window))
	copy(out, window)
	return out
}

// Clear drops a session's window. With a store configured the persisted
// list is archived with a retention period instead of deleted.
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	_, existed := m.windows[sessionID]
	delete(m.windows, sessionID)
	m.mu.Unlock()

	if existed {
		m.logger.Info("Cleared context", slog.String("session_id", sessionID))
	} else {
		m.logger.Warn("Attempted to clear non-existent session", slog.String("session_id", sessionID))
	}

	if m.store != nil {
		if err := m.store.Archive(ctx, sessionID); err != nil {
			return err
		}
	}

	return nil
}

// SessionCount returns the number of sessions with a live window
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.windows)
}
