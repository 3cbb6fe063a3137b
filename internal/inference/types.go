package inference

import "context"

// ContextEntry is one role+content pair from the conversation window snapshot
type ContextEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries a conversation snapshot to the model backend
type Request struct {
	Context    []ContextEntry `json:"context"`
	SessionID  string         `json:"session_id"`
	UserID     string         `json:"user_id,omitempty"`
	RequestID  string         `json:"request_id"`
	ModelName  string         `json:"model_name"`
	Parameters map[string]any `json:"parameters"`
	Timestamp  float64        `json:"timestamp"`
}

// Response is the model backend reply, annotated with measured latency
type Response struct {
	Text           string         `json:"text"`
	SessionID      string         `json:"session_id"`
	RequestID      string         `json:"request_id"`
	ModelUsed      string         `json:"model_used"`
	ProcessingTime float64        `json:"processing_time"`
	Timestamp      float64        `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Backend is the capability interface for a model inference service
type Backend interface {
	Infer(ctx context.Context, req *Request) (*Response, error)
	InferBatch(ctx context.Context, reqs []*Request) ([]*Response, error)
}
