package narrative

import "time"

// TemplateCache abstracts caching of the active templates list, so the
// render path does not hit the database on every request.
type TemplateCache interface {
	// Get retrieves cached templates; nil on miss or expiry
	Get() []*NarrativeTemplate

	// Set stores templates in cache
	Set(templates []*NarrativeTemplate)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if the cache holds usable data
	IsValid() bool
}

// CacheConfig holds cache behavior configuration.
type CacheConfig struct {
	// TTL for cached entries; 0 means manual invalidation only
	TTL time.Duration
}

// DefaultCacheConfig returns the default: no TTL, invalidate on mutation.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
