package cache

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

type item[V any] struct {
	value V
	ts    time.Time
}

// Cache memoises values by key with a fixed capacity and a ttl. The oldest insertions
// are evicted first once either limit is exceeded.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]item[V]
	order    []entry
	capacity int
	ttl      time.Duration
}

// New creates a cache with the provided capacity and ttl.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache[V]{
		items:    make(map[string]item[V], capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Get returns the value stored for key if it was put inside the ttl window.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok && now.Sub(it.ts) <= c.ttl {
		return it.value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key, replacing any previous value.
func (c *Cache[V]) Put(key string, value V) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[V]{value: value, ts: now}
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
}

// Len reports how many keys are currently held, expired ones included until compaction.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[V]) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		// A key re-put later has a newer order entry; only the matching one deletes it.
		if it, ok := c.items[oldest.key]; ok && it.ts == oldest.ts {
			delete(c.items, oldest.key)
		}
	}
}
