package cache

import (
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

const (
	DefaultSearchCapacity = 30
	DefaultSearchTTL      = 8 * time.Minute

	// evictionChance is the fraction of writes that trigger a sweep while under capacity.
	evictionChance = 0.1
)

type searchEntry struct {
	results  []models.SearchResult
	limit    int // provider limit the results were fetched with, 0 when unbounded
	storedAt time.Time
	hits     int
}

// covers reports whether the entry can answer a request for at most limit results. A list shorter
// than the limit it was fetched with is complete and covers any request.
func (e *searchEntry) covers(limit int) bool {
	if e.limit <= 0 || len(e.results) < e.limit {
		return true
	}
	return limit > 0 && limit <= e.limit
}

// SearchCache is a bounded, time-boxed memo of search results keyed by normalized query.
type SearchCache struct {
	mu       sync.Mutex
	entries  map[string]*searchEntry
	capacity int
	ttl      time.Duration

	now    func() time.Time
	chance func() float64
}

// NewSearchCache creates a cache holding at most capacity queries for ttl each.
// Non-positive arguments fall back to [DefaultSearchCapacity] and [DefaultSearchTTL].
func NewSearchCache(capacity int, ttl time.Duration) *SearchCache {
	if capacity <= 0 {
		capacity = DefaultSearchCapacity
	}
	if ttl <= 0 {
		ttl = DefaultSearchTTL
	}
	return &SearchCache{
		entries:  make(map[string]*searchEntry),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		chance:   rand.Float64,
	}
}

// Get returns a copy of the results stored for query and counts the hit.
// Expired entries are misses.
func (c *SearchCache) Get(query string) ([]models.SearchResult, bool) {
	return c.Lookup(query, 0)
}

// Lookup is [SearchCache.Get] for a request of at most limit results. An entry fetched with a
// smaller limit that may have been cut short is a miss.
func (c *SearchCache) Lookup(query string, limit int) ([]models.SearchResult, bool) {
	key := shared.NormalizeQuery(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	if !e.covers(limit) {
		return nil, false
	}
	e.hits++
	return slices.Clone(e.results), true
}

// Put stores the complete results for query. A sweep runs when the cache is over capacity and on
// a random fraction of the remaining writes.
func (c *SearchCache) Put(query string, results []models.SearchResult) {
	c.PutLimit(query, results, 0)
}

// PutLimit stores results that were fetched with a provider limit.
func (c *SearchCache) PutLimit(query string, results []models.SearchResult, limit int) {
	key := shared.NormalizeQuery(query)
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &searchEntry{results: slices.Clone(results), limit: max(limit, 0), storedAt: c.now()}
	if len(c.entries) > c.capacity || c.chance() < evictionChance {
		c.evictLocked()
	}
}

// Evict runs a full sweep immediately.
func (c *SearchCache) Evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked()
}

// Len returns the number of stored queries, including expired ones not yet swept.
func (c *SearchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SearchCache) evictLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
	if len(c.entries) <= c.capacity {
		return
	}

	type scored struct {
		key   string
		score float64
	}
	ranked := make([]scored, 0, len(c.entries))
	for k, e := range c.entries {
		age := now.Sub(e.storedAt).Seconds()
		if age < 1 {
			age = 1
		}
		// The store itself counts as a use so a new entry is not evicted on insertion.
		ranked = append(ranked, scored{key: k, score: float64(e.hits+1) / age})
	}
	slices.SortFunc(ranked, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})
	for _, s := range ranked[c.capacity:] {
		delete(c.entries, s.key)
	}
}
