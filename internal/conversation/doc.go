// Package conversation maintains bounded, role-aware message history per session.
// It enforces the context window invariant (system turns pinned, oldest
// non-system turns evicted first) and optionally mirrors every appended turn
// to an external redis list with archival on session clear.
package conversation
