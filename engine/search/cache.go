package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/WessleyAI/docsearch/engine/domain"
)

const (
	// DefaultCacheLimit is the entry count above which the cache evicts.
	DefaultCacheLimit = 1000
	// DefaultCacheEvict is how many of the oldest entries one eviction drops.
	DefaultCacheEvict = 100
)

type cacheEntry struct {
	resp     *domain.SearchResponse
	inserted time.Time
	expires  time.Time
	seq      uint64
}

// Cache is a TTL cache of search responses owned by one Engine. When it grows
// past its limit the oldest entries by insertion time are dropped.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	limit   int
	evict   int
	seq     uint64
	now     func() time.Time
}

// NewCache creates a Cache that drops evict entries once it holds more than
// limit. Non-positive values select the defaults.
func NewCache(limit, evict int) *Cache {
	if limit <= 0 {
		limit = DefaultCacheLimit
	}
	if evict <= 0 {
		evict = DefaultCacheEvict
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		limit:   limit,
		evict:   evict,
		now:     time.Now,
	}
}

// Get returns a copy of a live entry. Expired entries are removed.
func (c *Cache) Get(key string) (*domain.SearchResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.resp.Clone(), true
}

// Put stores resp for ttl. A non-positive ttl stores nothing.
func (c *Cache) Put(key string, resp *domain.SearchResponse, ttl time.Duration) {
	if resp == nil || ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.seq++
	c.entries[key] = cacheEntry{resp: resp.Clone(), inserted: now, expires: now.Add(ttl), seq: c.seq}
	c.evictIfOver(c.limit)
}

// GetOrCompute returns the cached response for key or calls compute and caches
// its result. The lock is not held while compute runs, so concurrent misses on
// one key may compute twice. hit reports whether the cache answered.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (*domain.SearchResponse, error)) (resp *domain.SearchResponse, hit bool, err error) {
	if r, ok := c.Get(key); ok {
		return r, true, nil
	}
	r, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	c.Put(key, r, ttl)
	return r, false, nil
}

// EvictIfOver drops the configured number of oldest entries when more than
// limit are held.
func (c *Cache) EvictIfOver(limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictIfOver(limit)
}

// evictIfOver is EvictIfOver for callers holding c.mu.
func (c *Cache) evictIfOver(limit int) {
	if len(c.entries) <= limit {
		return
	}
	type aged struct {
		key      string
		inserted time.Time
		seq      uint64
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.inserted, e.seq})
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].inserted.Equal(all[j].inserted) {
			return all[i].inserted.Before(all[j].inserted)
		}
		return all[i].seq < all[j].seq
	})
	n := c.evict
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// cacheKeyParts is hashed into the cache key. Filter slices are sorted so
// argument order does not matter.
type cacheKeyParts struct {
	Query            string   `json:"q"`
	TopK             int      `json:"k"`
	MinScore         float64  `json:"min"`
	SpaceKeys        []string `json:"spaces"`
	Labels           []string `json:"labels"`
	ChunkTypes       []string `json:"types"`
	IncludeCitations bool     `json:"cite"`
	MaxCitations     int      `json:"max_cite"`
}

// CacheKey is the stable hash of a query and the config fields that change
// its response.
func CacheKey(query string, cfg domain.SearchConfig) string {
	types := make([]string, len(cfg.ChunkTypes))
	for i, t := range cfg.ChunkTypes {
		types[i] = string(t)
	}
	parts := cacheKeyParts{
		Query:            query,
		TopK:             cfg.TopK,
		MinScore:         cfg.MinScore,
		SpaceKeys:        sortedCopy(cfg.SpaceKeys),
		Labels:           sortedCopy(cfg.Labels),
		ChunkTypes:       sortedCopy(types),
		IncludeCitations: cfg.IncludeCitations,
		MaxCitations:     cfg.MaxCitationsPerResult,
	}
	b, _ := json.Marshal(parts)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
