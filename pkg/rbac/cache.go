package rbac

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// decisionCache memoizes boolean decision outcomes keyed by
// user:action:resourceType:resourceID. Invalidation bumps a generation
// counter baked into every key instead of walking the LRU, so one role
// edit discards every prior decision in O(1); superseded entries age out
// under LRU pressure or TTL.
type decisionCache struct {
	entries    *lru.LRU[string, bool]
	generation atomic.Uint64

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

func newDecisionCache(size int, ttl time.Duration) *decisionCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &decisionCache{
		entries: lru.NewLRU[string, bool](size, nil, ttl),
	}
}

func (c *decisionCache) key(userID, action, resourceType, resourceID string) string {
	return fmt.Sprintf("g%d:%s:%s:%s:%s", c.generation.Load(), userID, action, resourceType, resourceID)
}

func (c *decisionCache) get(key string) (bool, bool) {
	allowed, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return allowed, ok
}

func (c *decisionCache) set(key string, allowed bool) {
	c.entries.Add(key, allowed)
}

// invalidate discards every memoized decision by bumping the
// generation. Superseded entries stay in the LRU until evicted.
func (c *decisionCache) invalidate() {
	c.generation.Add(1)
	c.invalidations.Add(1)
}

// purge is invalidate plus eviction of the stored entries. Mutations
// take the cheap generation path; explicit ClearCache calls purge so
// the memory comes back too.
func (c *decisionCache) purge() {
	c.generation.Add(1)
	c.invalidations.Add(1)
	c.entries.Purge()
}

func (c *decisionCache) stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
		Entries:       c.entries.Len(),
	}
}

// CacheStats reports decision cache counters. Entries counts stored
// entries including those from superseded generations that have not yet
// been evicted.
type CacheStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Invalidations int64 `json:"invalidations"`
	Entries       int   `json:"entries"`
}
