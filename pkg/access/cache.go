package access

import (
	"context"
	"sync"
	"time"

	"github.com/RitoIssei/bot-mng-ns/internal/metrics"
	"github.com/RitoIssei/bot-mng-ns/internal/utils"
)

// Loader fetches the full current value for a key from the source of truth.
type Loader[V any] func(ctx context.Context) (V, error)

type cacheEntry[V any] struct {
	value    V
	cachedAt time.Time
}

// Cache memoizes loader results per key for a TTL. Entries are only ever replaced by a full
// reload. Concurrent misses may load the same key more than once.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]cacheEntry[V]
	clock   utils.Clock
}

func NewCache[V any](clock utils.Clock) *Cache[V] {
	return &Cache[V]{entries: make(map[string]cacheEntry[V]), clock: clock}
}

// GetOrLoad returns the cached value when it is at most ttl old and otherwise calls loader.
// A failing loader leaves the cache untouched so the next call retries.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, loader Loader[V], ttl time.Duration) (V, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()

	if ok && c.clock.Now().Sub(entry.cachedAt) <= ttl {
		metrics.AccessCacheRequestsTotal.WithLabelValues(key, "hit").Inc()
		return entry.value, nil
	}

	value, err := loader(ctx)
	if err != nil {
		metrics.AccessCacheRequestsTotal.WithLabelValues(key, "error").Inc()
		var zero V
		return zero, err
	}
	metrics.AccessCacheRequestsTotal.WithLabelValues(key, "miss").Inc()

	c.mu.Lock()
	c.entries[key] = cacheEntry[V]{value: value, cachedAt: c.clock.Now()}
	c.mu.Unlock()
	return value, nil
}

func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
