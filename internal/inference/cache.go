package inference

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	response   *Response
	insertedAt time.Time
}

// responseCache is a TTL-bounded response cache shared across sessions.
// Entries older than the TTL are never returned; once the cache grows past
// maxSize, entries older than 80% of the TTL are purged opportunistically.
type responseCache struct {
	ttl     time.Duration
	maxSize int

	entries map[string]cacheEntry
	mu      sync.Mutex
}

func newResponseCache(ttl time.Duration, maxSize int) *responseCache {
	if maxSize < 1 {
		maxSize = 1000
	}
	return &responseCache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]cacheEntry),
	}
}

// fingerprint derives the deterministic cache key for a request from its
// model name, serialized context, and serialized parameters. Session and
// request ids are deliberately excluded so identical contexts dedupe
// across sessions.
func fingerprint(req *Request) string {
	contextJSON, _ := json.Marshal(req.Context)
	paramsJSON, _ := json.Marshal(req.Parameters)

	var b strings.Builder
	b.WriteString(req.ModelName)
	b.WriteByte(':')
	b.Write(contextJSON)
	b.WriteByte(':')
	b.Write(paramsJSON)
	return b.String()
}

func (c *responseCache) get(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	if time.Since(entry.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}

	return entry.response, true
}

func (c *responseCache) put(key string, resp *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{response: resp, insertedAt: time.Now()}

	if len(c.entries) <= c.maxSize {
		return
	}

	cutoff := time.Duration(float64(c.ttl) * 0.8)
	for k, e := range c.entries {
		if time.Since(e.insertedAt) > cutoff {
			delete(c.entries, k)
		}
	}
}

func (c *responseCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
