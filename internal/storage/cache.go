// ABOUTME: LRU + TTL bounded cache of lesson records with a content-hash ledger
// ABOUTME: Recency order lives in an ordered map; oldest entry is evicted first
package storage

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/harper/distill/internal/models"
)

const (
	// DefaultCacheCapacity bounds the number of cached lessons
	DefaultCacheCapacity = 50
	// DefaultCacheTTL is how long a lesson stays readable after its last write
	DefaultCacheTTL = 2 * time.Hour
)

type cacheEntry struct {
	record   *models.LessonRecord
	storedAt time.Time
}

// ContentCache holds recently derived lessons keyed by lesson id, plus a
// ledger mapping document content hashes to the lesson id produced for them.
// Every method holds the cache lock for its whole duration.
type ContentCache struct {
	mu       sync.Mutex
	entries  *orderedmap.OrderedMap[string, cacheEntry]
	dedup    map[string]string
	capacity int
	ttl      time.Duration
	now      func() time.Time
	logger   *log.Logger
}

// CacheOption customizes a ContentCache
type CacheOption func(*ContentCache)

// WithCapacity sets the maximum number of entries. Values < 1 keep the default.
func WithCapacity(n int) CacheOption {
	return func(c *ContentCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithTTL sets the entry lifetime. Zero or negative disables expiry.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *ContentCache) { c.ttl = ttl }
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) CacheOption {
	return func(c *ContentCache) { c.now = now }
}

// WithCacheLogger sets the logger used for eviction events
func WithCacheLogger(logger *log.Logger) CacheOption {
	return func(c *ContentCache) { c.logger = logger }
}

// NewContentCache creates an empty cache
func NewContentCache(opts ...CacheOption) *ContentCache {
	c := &ContentCache{
		entries:  orderedmap.New[string, cacheEntry](),
		dedup:    make(map[string]string),
		capacity: DefaultCacheCapacity,
		ttl:      DefaultCacheTTL,
		now:      time.Now,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put inserts or replaces the record for id, stamps it with the current time
// and marks it most recently used. The least recently used entries are
// evicted while the cache is over capacity.
func (c *ContentCache) Put(id string, record *models.LessonRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Set(id, cacheEntry{record: record, storedAt: c.now()})
	_ = c.entries.MoveToBack(id)

	for c.entries.Len() > c.capacity {
		oldest := c.entries.Oldest()
		if oldest == nil {
			break
		}
		c.entries.Delete(oldest.Key)
		c.logger.Debug("evicted lesson from cache", "id", oldest.Key, "reason", "capacity")
	}
}

// Get returns the record for id. An expired entry is removed and reported
// absent; a live entry is promoted to most recently used.
func (c *ContentCache) Get(id string) (*models.LessonRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(id)
	if !ok {
		return nil, false
	}
	if c.expired(entry) {
		c.entries.Delete(id)
		c.logger.Debug("evicted lesson from cache", "id", id, "reason", "ttl")
		return nil, false
	}
	_ = c.entries.MoveToBack(id)
	return entry.record, true
}

// Invalidate removes id from the cache and reports whether it was present
func (c *ContentCache) Invalidate(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries.Delete(id)
	return ok
}

// Len returns the number of entries, including expired ones not yet swept
func (c *ContentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Sweep removes every expired entry and returns how many were removed
func (c *ContentCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []string
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		if c.expired(pair.Value) {
			stale = append(stale, pair.Key)
		}
	}
	for _, id := range stale {
		c.entries.Delete(id)
	}
	return len(stale)
}

// DedupLookup returns the lesson id registered for a content hash
func (c *ContentCache) DedupLookup(contentHash string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.dedup[contentHash]
	return id, ok
}

// DedupRegister records that contentHash produced lesson id. The ledger is
// independent of eviction and only shrinks through PruneDedup.
func (c *ContentCache) DedupRegister(contentHash, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dedup[contentHash] = id
}

// PruneDedup drops ledger entries whose lesson is no longer cached and
// returns how many were dropped
func (c *ContentCache) PruneDedup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for hash, id := range c.dedup {
		if _, ok := c.entries.Get(id); !ok {
			delete(c.dedup, hash)
			pruned++
		}
	}
	return pruned
}

// DedupLen returns the number of ledger entries
func (c *ContentCache) DedupLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dedup)
}

func (c *ContentCache) expired(e cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl
}
