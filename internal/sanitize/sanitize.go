// Package sanitize validates and cleans caller-supplied text and payloads
// before they enter the pipeline. Malformed input surfaces as a validation
// error and is never retried.
package sanitize

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// Config contains sanitization limits
type Config struct {
	MaxTextLength int
	MaxIDLength   int
}

// DefaultConfig returns the sanitizer defaults
func DefaultConfig() Config {
	return Config{
		MaxTextLength: 4096,
		MaxIDLength:   64,
	}
}

// Sanitizer validates and cleans free-form text, identifiers, and base64
// payloads.
type Sanitizer struct {
	config Config
}

var idPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// New creates a sanitizer with the given limits
func New(config Config) *Sanitizer {
	if config.MaxTextLength < 1 {
		config.MaxTextLength = 4096
	}
	if config.MaxIDLength < 1 {
		config.MaxIDLength = 64
	}
	return &Sanitizer{config: config}
}

// Text trims, strips null bytes and control characters, and enforces the
// length cap on free-form text.
func (s *Sanitizer) Text(text string) (string, error) {
	text = strings.TrimSpace(text)

	if text == "" {
		return "", fmt.Errorf("text cannot be empty")
	}

	if len(text) > s.config.MaxTextLength {
		return "", fmt.Errorf("text exceeds maximum length of %d", s.config.MaxTextLength)
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 || (r < 32 && r != '\n' && r != '\t') {
			continue
		}
		b.WriteRune(r)
	}

	return b.String(), nil
}

// ID restricts an identifier to [a-zA-Z0-9_-] and the configured length
func (s *Sanitizer) ID(id string) (string, error) {
	cleaned := idPattern.ReplaceAllString(id, "")

	if cleaned == "" {
		return "", fmt.Errorf("id cannot be empty after sanitization")
	}

	if len(cleaned) > s.config.MaxIDLength {
		return "", fmt.Errorf("id too long: %d characters exceeds limit of %d", len(cleaned), s.config.MaxIDLength)
	}

	return cleaned, nil
}

// Base64 validates a base64 payload, tolerating a data-URL prefix
func (s *Sanitizer) Base64(payload string) (string, error) {
	if strings.HasPrefix(payload, "data:") {
		parts := strings.SplitN(payload, ",", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("malformed data URL")
		}
		payload = parts[1]
	}

	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return "", fmt.Errorf("invalid base64 data: %w", err)
	}

	return payload, nil
}
