// Package server implements the HTTP API for monitoring and management.
// It exposes health, session, configuration, and statistics endpoints plus
// the Prometheus metrics handler.
package server
