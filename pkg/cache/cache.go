// Package cache memoizes fully processed meshes keyed by element and
// feature set. The cache is bounded; when full it evicts the entry with the
// lowest lastAccess(ms) × accessCount score, so an entry that is reused
// often needs a much older timestamp before it is dropped. Meshes are
// cloned on the way in and on the way out; callers never hold a buffer the
// cache owns.
package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chazu/kerf/pkg/kernel"
)

// DefaultMaxEntries is used when New is given a non-positive bound.
const DefaultMaxEntries = 100

// topKeyCount bounds Stats.TopKeys.
const topKeyCount = 5

// Backing is an optional second tier. Entries are written through on Put
// and promoted into memory on a memory miss.
type Backing interface {
	Load(key string) (*kernel.Mesh, bool, error)
	Save(key string, m *kernel.Mesh) error
	Clear() error
}

// Metrics receives cache events. The pipeline wires it to OpenTelemetry
// counters.
type Metrics interface {
	CacheHit()
	CacheMiss()
	CacheEviction()
}

type entry struct {
	key         string
	mesh        *kernel.Mesh
	accessCount int64
	lastAccess  time.Time
}

func (e *entry) score() float64 {
	return float64(e.lastAccess.UnixMilli()) * float64(e.accessCount)
}

// KeyAccess is one row of Stats.TopKeys.
type KeyAccess struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries     int         `json:"entries"`
	MaxEntries  int         `json:"max_entries"`
	Hits        int64       `json:"hits"`
	BackingHits int64       `json:"backing_hits"`
	Misses      int64       `json:"misses"`
	Evictions   int64       `json:"evictions"`
	HitRate     float64     `json:"hit_rate"`
	TopKeys     []KeyAccess `json:"top_keys"`
}

// Cache is a bounded mesh memo. It is safe for concurrent use; one mutex
// covers every read, write and eviction.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	max     int

	now     func() time.Time
	backing Backing
	logger  *slog.Logger
	metrics Metrics

	hits, backingHits, misses, evictions int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now. Tests use it to control eviction scores.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBacking adds a persistent tier.
func WithBacking(b Backing) Option {
	return func(c *Cache) { c.backing = b }
}

// WithLogger sets the logger used for backing-tier failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the event sink.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New returns an empty cache holding at most maxEntries meshes.
func New(maxEntries int, opts ...Option) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &Cache{
		entries: make(map[string]*entry),
		max:     maxEntries,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns a clone of the mesh stored under key. A hit increments the
// entry's access count and refreshes its last access time.
func (c *Cache) Get(key string) (*kernel.Mesh, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.accessCount++
		e.lastAccess = c.now()
		c.hits++
		out := e.mesh.Clone()
		c.mu.Unlock()
		c.emit(Metrics.CacheHit)
		return out, true
	}
	c.mu.Unlock()

	if c.backing != nil {
		m, ok, err := c.backing.Load(key)
		if err != nil {
			c.logger.Warn("cache: backing load failed", "key", key, "error", err)
		}
		if ok && m != nil {
			c.mu.Lock()
			c.insertLocked(key, m)
			c.backingHits++
			c.mu.Unlock()
			c.emit(Metrics.CacheHit)
			return m.Clone(), true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	c.emit(Metrics.CacheMiss)
	return nil, false
}

// Put stores a clone of m under key. Nil and released meshes are ignored.
func (c *Cache) Put(key string, m *kernel.Mesh) {
	if m == nil || m.Released() {
		return
	}
	stored := m.Clone()

	c.mu.Lock()
	c.insertLocked(key, stored)
	c.mu.Unlock()

	if c.backing != nil {
		if err := c.backing.Save(key, stored.Clone()); err != nil {
			c.logger.Warn("cache: backing save failed", "key", key, "error", err)
		}
	}
}

// insertLocked takes ownership of m. c.mu must be held.
func (c *Cache) insertLocked(key string, m *kernel.Mesh) {
	now := c.now()
	if old, ok := c.entries[key]; ok {
		if old.mesh != m {
			old.mesh.Release()
		}
		old.mesh = m
		old.lastAccess = now
		return
	}
	for len(c.entries) >= c.max {
		c.evictLocked()
	}
	c.entries[key] = &entry{key: key, mesh: m, accessCount: 1, lastAccess: now}
}

// evictLocked drops the lowest-scoring entry; ties go to the smallest key.
func (c *Cache) evictLocked() {
	var victim *entry
	for _, e := range c.entries {
		if victim == nil {
			victim = e
			continue
		}
		s, vs := e.score(), victim.score()
		if s < vs || (s == vs && e.key < victim.key) {
			victim = e
		}
	}
	if victim == nil {
		return
	}
	delete(c.entries, victim.key)
	victim.mesh.Release()
	c.evictions++
	c.logger.Debug("cache: evicted", "key", victim.key, "count", victim.accessCount)
	c.emit(Metrics.CacheEviction)
}

// Clear releases every in-memory entry and clears the backing tier.
func (c *Cache) Clear() {
	c.mu.Lock()
	for k, e := range c.entries {
		e.mesh.Release()
		delete(c.entries, k)
	}
	c.mu.Unlock()

	if c.backing != nil {
		if err := c.backing.Clear(); err != nil {
			c.logger.Warn("cache: backing clear failed", "error", err)
		}
	}
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MaxEntries returns the configured bound.
func (c *Cache) MaxEntries() int { return c.max }

// Stats returns a snapshot of the counters and the most accessed keys.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:     len(c.entries),
		MaxEntries:  c.max,
		Hits:        c.hits,
		BackingHits: c.backingHits,
		Misses:      c.misses,
		Evictions:   c.evictions,
	}
	if total := c.hits + c.backingHits + c.misses; total > 0 {
		s.HitRate = float64(c.hits+c.backingHits) / float64(total)
	}

	keys := make([]KeyAccess, 0, len(c.entries))
	for _, e := range c.entries {
		keys = append(keys, KeyAccess{Key: e.key, Count: e.accessCount})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Count != keys[j].Count {
			return keys[i].Count > keys[j].Count
		}
		return keys[i].Key < keys[j].Key
	})
	if len(keys) > topKeyCount {
		keys = keys[:topKeyCount]
	}
	s.TopKeys = keys
	return s
}

func (c *Cache) emit(event func(Metrics)) {
	if c.metrics != nil {
		event(c.metrics)
	}
}
