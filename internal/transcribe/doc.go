// Package transcribe converts enhanced audio frames into transcription results.
// It accumulates frames per session and flushes them to the speech-to-text
// backend on size, latency, or finality triggers, with strict per-session
// serialization of backend calls.
package transcribe
