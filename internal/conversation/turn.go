package conversation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one role-tagged message in a conversation. Ordered by arrival
// within a session; the total order is the append order.
type Turn struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	ID        string         `json:"message_id"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewTurn creates a turn with a generated id and the current timestamp
func NewTurn(role Role, content, sessionID string, metadata map[string]any) Turn {
	return Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		ID:        fmt.Sprintf("msg-%s", uuid.NewString()),
		SessionID: sessionID,
		Metadata:  metadata,
	}
}

// Validate checks the turn's required fields
func (t *Turn) Validate() error {
	switch t.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return fmt.Errorf("invalid role: %q", t.Role)
	}

	if t.SessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	return nil
}
