// Package session provides the end-to-end pipeline orchestrator. It owns
// per-session bookkeeping, wires audio and text entry points through
// ingestion, transcription, context, inference, and synthesis, and reaps
// idle sessions on a timer.
package session
