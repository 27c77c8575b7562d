// pkg/imagecache/cache.go
package imagecache

import (
	"sort"
	"strings"
	"sync"

	"imagefetch/pkg/models"
	"imagefetch/pkg/utils"
)

// Cache is a keyed in-memory image store with LRU-by-last-access eviction
// under a memory budget. Reads may run concurrently; writes are exclusive,
// matching the reader-preferring lock regime described for the coordinator's
// collaborators.
type Cache struct {
	mu sync.RWMutex
	log *utils.Logger

	memoryCapacity                 int64
	preferredMemoryUsageAfterPurge int64

	entries     map[string]*models.CachedImage
	memoryUsage int64
}

// Options configures a Cache. MemoryCapacity must be >= PreferredMemoryUsageAfterPurge >= 0.
type Options struct {
	MemoryCapacity                 int64
	PreferredMemoryUsageAfterPurge int64
	Log                            *utils.Logger
}

// New constructs a Cache, panicking if the capacity invariant is violated —
// this is a construction-time configuration error, not a runtime one.
func New(opts Options) *Cache {
	if opts.MemoryCapacity < opts.PreferredMemoryUsageAfterPurge || opts.PreferredMemoryUsageAfterPurge < 0 {
		panic("imagecache: memoryCapacity must be >= preferredMemoryUsageAfterPurge >= 0")
	}
	log := opts.Log
	if log == nil {
		log = utils.NewLogger(utils.Config{})
	}
	return &Cache{
		log:                             log,
		memoryCapacity:                  opts.MemoryCapacity,
		preferredMemoryUsageAfterPurge:  opts.PreferredMemoryUsageAfterPurge,
		entries:                         make(map[string]*models.CachedImage),
	}
}

// Add stores or replaces the image under key, then evicts down to
// PreferredMemoryUsageAfterPurge if the insert pushed usage over
// MemoryCapacity. Both the insert and any resulting eviction are observed
// atomically by other writers.
func (c *Cache) Add(image *models.Image, key string, filterIdentifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[key]; ok {
		c.memoryUsage -= prev.TotalBytes
	}

	entry := &models.CachedImage{
		Image:      image,
		Identifier: filterIdentifier,
		TotalBytes: image.TotalBytes(),
	}
	entry.Touch()
	c.entries[key] = entry
	c.memoryUsage += entry.TotalBytes

	if c.memoryUsage > c.memoryCapacity {
		c.evictLocked()
	}
}

// AddForRequest is the convenience form that computes the CacheKey from a
// request fingerprint and optional filter identifier.
func (c *Cache) AddForRequest(image *models.Image, urlID string, filterIdentifier string) {
	c.Add(image, models.CacheKey(urlID, filterIdentifier), filterIdentifier)
}

// evictLocked drains memoryUsage down to preferredMemoryUsageAfterPurge in
// ascending LastAccessedAt order. Caller must hold the write lock.
func (c *Cache) evictLocked() {
	type kv struct {
		key   string
		entry *models.CachedImage
	}
	ordered := make([]kv, 0, len(c.entries))
	for k, e := range c.entries {
		ordered = append(ordered, kv{k, e})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].entry.LastAccessedAt().Before(ordered[j].entry.LastAccessedAt())
	})

	for _, item := range ordered {
		if c.memoryUsage <= c.preferredMemoryUsageAfterPurge {
			break
		}
		delete(c.entries, item.key)
		c.memoryUsage -= item.entry.TotalBytes
		c.log.WithFields(map[string]interface{}{
			"key":   item.key,
			"bytes": item.entry.TotalBytes,
		}).Debug("imagecache: evicted entry")
	}
}

// Get returns the image stored under key and bumps its LastAccessedAt.
// Getting never triggers eviction. Concurrent Gets run under a shared read
// lock; the access-time bump is an atomic store on the entry itself, so it
// never needs the exclusive write lock evictLocked and the other writers use.
func (c *Cache) Get(key string) (*models.Image, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	entry.Touch()
	return entry.Image, true
}

// Contains reports whether key is present without updating LastAccessedAt.
func (c *Cache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Remove deletes key, reporting whether anything was removed.
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	c.memoryUsage -= entry.TotalBytes
	return true
}

// RemovePrefix deletes every entry whose key starts with urlString (i.e.
// the unfiltered entry and every filtered variant for that URL).
func (c *Cache) RemovePrefix(urlString string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := false
	for k, entry := range c.entries {
		if k == urlString || strings.HasPrefix(k, urlString+"-") {
			delete(c.entries, k)
			c.memoryUsage -= entry.TotalBytes
			removed = true
		}
	}
	return removed
}

// Clear removes every entry and resets memory usage to zero. Used both for
// explicit bulk clears and for memory-warning purges.
func (c *Cache) Clear() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 {
		return false
	}
	c.entries = make(map[string]*models.CachedImage)
	c.memoryUsage = 0
	return true
}

// MemoryUsage returns a consistent snapshot of current usage.
func (c *Cache) MemoryUsage() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memoryUsage
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns a snapshot of all cache keys, for inspection endpoints.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
