// Package synthesis streams model replies back as audio. It splits text into
// speakable chunks at sentence, comma, or whitespace boundaries, requests
// audio per chunk from the synthesis backend, and yields results under a
// bounded per-session buffer with soft backpressure.
package synthesis
