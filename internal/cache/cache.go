// Package cache provides a TTL + LRU key/value store for fetch results.
package cache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"github.com/postly/job-harvester/internal/metrics"
	"github.com/postly/job-harvester/internal/scraper"
)

// Config sizes the cache.
type Config struct {
	MaxSize    int
	DefaultTTL time.Duration
}

// Stats reports cache activity and an advisory memory footprint.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
	// MemoryBytes is an estimate (key length plus serialized value size),
	// advisory only.
	MemoryBytes int64 `json:"memory_bytes"`
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	approx    int64
}

// Cache is a strict-LRU store with per-entry TTL. Expired entries are
// treated as absent on read and swept periodically in the background; the
// sweep interval scales with capacity so large caches sweep less often.
type Cache[V any] struct {
	cfg   Config
	clock scraper.Clock

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = most recently used
	stats Stats

	stop chan struct{}
	once sync.Once
}

// New creates a Cache and starts its expiry sweeper.
func New[V any](cfg Config, clock scraper.Clock) *Cache[V] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 500
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	metrics.Init()
	c := &Cache[V]{
		cfg:   cfg,
		clock: clock,
		items: make(map[string]*list.Element),
		order: list.New(),
		stop:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Close stops the background sweeper. Idempotent.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Set stores value under key. A zero ttl uses the configured default.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ent := &entry[V]{
		key:       key,
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
		approx:    approxSize(key, value),
	}
	if el, ok := c.items[key]; ok {
		c.stats.MemoryBytes -= el.Value.(*entry[V]).approx
		el.Value = ent
		c.order.MoveToFront(el)
	} else {
		if len(c.items) >= c.cfg.MaxSize {
			c.evictOldest()
		}
		c.items[key] = c.order.PushFront(ent)
	}
	c.stats.Sets++
	c.stats.MemoryBytes += ent.approx
	metrics.ObserveCache("set")
}

// Get returns the value for key if present and unexpired, refreshing its
// recency.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		metrics.ObserveCache("miss")
		return zero, false
	}
	ent := el.Value.(*entry[V])
	if !c.clock.Now().Before(ent.expiresAt) {
		c.removeLocked(el)
		c.stats.Misses++
		metrics.ObserveCache("miss")
		return zero, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	metrics.ObserveCache("hit")
	return ent.value, true
}

// Has reports presence without touching recency order.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return false
	}
	return c.clock.Now().Before(el.Value.(*entry[V]).expiresAt)
}

// Delete removes key, reporting whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.stats.MemoryBytes = 0
}

// Stats returns a snapshot of cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}

func (c *Cache[V]) evictOldest() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.removeLocked(back)
	c.stats.Evictions++
	metrics.ObserveCache("eviction")
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	ent := el.Value.(*entry[V])
	delete(c.items, ent.key)
	c.order.Remove(el)
	c.stats.MemoryBytes -= ent.approx
}

// sweepInterval scales with capacity: bigger caches tolerate more
// staleness in exchange for less sweep overhead.
func (c *Cache[V]) sweepInterval() time.Duration {
	iv := time.Duration(c.cfg.MaxSize) * 100 * time.Millisecond
	if iv < 5*time.Second {
		iv = 5 * time.Second
	}
	if iv > 5*time.Minute {
		iv = 5 * time.Minute
	}
	return iv
}

func (c *Cache[V]) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*entry[V]).expiresAt) {
			c.removeLocked(el)
		}
		el = prev
	}
}

func approxSize[V any](key string, value V) int64 {
	size := int64(len(key))
	if b, err := json.Marshal(value); err == nil {
		size += int64(len(b))
	}
	return size
}
