// Package config provides configuration loading and validation for the voice AI service.
// It handles YAML-based configuration with per-section validation and duration
// conversion helpers for all pipeline stages.
package config
