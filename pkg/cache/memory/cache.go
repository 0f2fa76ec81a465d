package memory

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/resumekit/authz/pkg/authz"
)

// Config controls cache capacity and the safety-net TTL.
type Config struct {
	// MaxEntries bounds the number of cached contexts; the least
	// recently used entry is evicted beyond it.
	MaxEntries int
	// TTL expires entries that explicit invalidation somehow missed.
	// Zero disables expiry entirely.
	TTL time.Duration
}

// DefaultConfig returns sensible defaults for a single-process deployment.
func DefaultConfig() *Config {
	return &Config{
		MaxEntries: 10000,
		TTL:        15 * time.Minute,
	}
}

// Cache is an in-process ContextCache over an expirable LRU. The engine
// keeps entries correct through explicit invalidation; the TTL only
// bounds the damage of a missed one.
type Cache struct {
	cache  *lru.LRU[string, *authz.UserAuthContext]
	hits   atomic.Int64
	misses atomic.Int64
}

var _ authz.ContextCache = (*Cache)(nil)

// NewCache creates an in-memory context cache. A nil config uses
// DefaultConfig.
func NewCache(config *Config) *Cache {
	if config == nil {
		config = DefaultConfig()
	}
	maxEntries := config.MaxEntries
	if maxEntries < 16 {
		maxEntries = 16
	}
	return &Cache{
		cache: lru.NewLRU[string, *authz.UserAuthContext](maxEntries, nil, config.TTL),
	}
}

// Get returns the cached context for the user, or (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, userID string) (*authz.UserAuthContext, error) {
	authCtx, ok := c.cache.Get(userID)
	if !ok {
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	return authCtx, nil
}

// Set stores the user's resolved context.
func (c *Cache) Set(ctx context.Context, userID string, authCtx *authz.UserAuthContext) error {
	c.cache.Add(userID, authCtx)
	return nil
}

// Invalidate drops the user's cached context.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	c.cache.Remove(userID)
	return nil
}

// InvalidateAll drops every cached context.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.cache.Purge()
	return nil
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits      int64
	Misses    int64
	HitRate   float64
	ItemCount int64
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	stats := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		ItemCount: int64(c.cache.Len()),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close releases the cached entries.
func (c *Cache) Close() error {
	c.cache.Purge()
	return nil
}
