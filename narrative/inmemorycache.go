package narrative

import (
	"sync"
	"time"
)

// InMemoryTemplateCache is a thread-safe in-memory TemplateCache.
type InMemoryTemplateCache struct {
	templates []*NarrativeTemplate
	cachedAt  time.Time
	config    CacheConfig
	mu        sync.RWMutex
	isValid   bool
}

// NewInMemoryTemplateCache creates a new in-memory template cache.
func NewInMemoryTemplateCache(config CacheConfig) *InMemoryTemplateCache {
	return &InMemoryTemplateCache{config: config}
}

// Get retrieves cached templates, or nil when invalid or expired.
func (c *InMemoryTemplateCache) Get() []*NarrativeTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return nil
	}

	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	// Copy so callers cannot mutate the cached slice.
	out := make([]*NarrativeTemplate, len(c.templates))
	copy(out, c.templates)
	return out
}

// Set stores templates in the cache.
func (c *InMemoryTemplateCache) Set(templates []*NarrativeTemplate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.templates = make([]*NarrativeTemplate, len(templates))
	copy(c.templates, templates)
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache.
func (c *InMemoryTemplateCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.templates = nil
}

// IsValid reports whether the cache holds unexpired data.
func (c *InMemoryTemplateCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}
	return true
}
