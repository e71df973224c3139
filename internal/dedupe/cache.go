// ABOUTME: TTL- and size-bounded set of handled keys with insertion order
// ABOUTME: Used by the connection monitor to avoid accepting a request twice in one run

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable] struct {
	markedAt time.Time
	element  *list.Element
}

// Cache remembers keys for ttl, keeping at most maxSize of them. Expired
// keys are dropped lazily on access instead of by a background sweeper, so
// a Cache needs no Close.
type Cache[K comparable] struct {
	mu      sync.Mutex
	seen    map[K]*entry[K]
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a Cache. A non-positive ttl means keys never expire; a
// non-positive maxSize means no size bound.
func New[K comparable](ttl time.Duration, maxSize int) *Cache[K] {
	return &Cache[K]{
		seen:    make(map[K]*entry[K]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for expiry. Intended for tests.
func (c *Cache[K]) WithClock(now func() time.Time) *Cache[K] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Check reports whether key was marked and has not expired.
func (c *Cache[K]) Check(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key)
}

// CheckAndMark returns true if key was already marked. Otherwise it marks
// key and returns false.
func (c *Cache[K]) CheckAndMark(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(key) {
		return true
	}
	c.markLocked(key)
	return false
}

// Mark records key, refreshing its timestamp if already present.
func (c *Cache[K]) Mark(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// Len returns the number of live keys.
func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	return len(c.seen)
}

// Keys returns live keys, oldest mark first.
func (c *Cache[K]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()

	keys := make([]K, 0, len(c.seen))
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(K))
	}
	return keys
}

func (c *Cache[K]) liveLocked(key K) bool {
	e, ok := c.seen[key]
	if !ok {
		return false
	}
	if c.expired(e) {
		c.removeLocked(key, e)
		return false
	}
	return true
}

func (c *Cache[K]) markLocked(key K) {
	if e, ok := c.seen[key]; ok {
		e.markedAt = c.now()
		c.order.MoveToBack(e.element)
		return
	}

	c.pruneLocked()
	if c.maxSize > 0 && len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest := front.Value.(K)
			c.removeLocked(oldest, c.seen[oldest])
		}
	}

	c.seen[key] = &entry[K]{markedAt: c.now(), element: c.order.PushBack(key)}
}

// pruneLocked walks from the oldest mark and stops at the first live key,
// since marks are ordered by time.
func (c *Cache[K]) pruneLocked() {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key := front.Value.(K)
		e := c.seen[key]
		if !c.expired(e) {
			return
		}
		c.removeLocked(key, e)
	}
}

func (c *Cache[K]) expired(e *entry[K]) bool {
	return c.ttl > 0 && c.now().Sub(e.markedAt) >= c.ttl
}

func (c *Cache[K]) removeLocked(key K, e *entry[K]) {
	c.order.Remove(e.element)
	delete(c.seen, key)
}
