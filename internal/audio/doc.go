// Package audio handles raw audio frame ingestion and enhancement.
// It implements the per-session enhancement chain (noise reduction, gain
// normalization, energy-based voice activity detection) plus PCM/WAV
// conversion helpers used by the transcription and synthesis stages.
package audio
