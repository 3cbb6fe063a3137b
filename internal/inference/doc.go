// Package inference dispatches conversation context to the model backend.
// It layers response caching, micro-batching through a single worker, and
// bounded retry with exponential backoff over a plain HTTP backend client.
package inference
