package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is bounded by size and TTL. Evicted and expired entries are
// handed to the eviction callback outside the lock.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	sliding bool
	now     func() time.Time
	onEvict func(key string, value T)
	items   map[string]*list.Element
	lru     *list.List
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

type entry[T any] struct {
	key  string
	data T
}

// Option configures an LRUCache.
type Option[T any] func(*LRUCache[T])

// WithClock replaces time.Now.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *LRUCache[T]) { c.now = now }
}

// WithSlidingTTL makes every Get push the expiry forward.
func WithSlidingTTL[T any]() Option[T] {
	return func(c *LRUCache[T]) { c.sliding = true }
}

// WithEvict registers fn for entries dropped by capacity or expiry.
// Explicit Delete does not call it.
func WithEvict[T any](fn func(key string, value T)) Option[T] {
	return func(c *LRUCache[T]) { c.onEvict = fn }
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration, opts ...Option[T]) *LRUCache[T] {
	c := &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a live value and marks it most recently used.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	var (
		zero    T
		evicted []entry[T]
	)
	defer func() { c.evict(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	now := c.now()
	if now.After(item.expiresAt) {
		evicted = append(evicted, c.removeElement(elem))
		return zero, false
	}
	if c.sliding {
		item.expiresAt = now.Add(c.ttl)
	}
	c.lru.MoveToFront(elem)
	return item.data, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *LRUCache[T]) Set(key string, data T) {
	var evicted []entry[T]
	defer func() { c.evict(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}
	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(item)
	for c.maxSize > 0 && c.lru.Len() > c.maxSize {
		evicted = append(evicted, c.removeElement(c.lru.Back()))
	}
}

// Delete removes a key from the cache
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

func (c *LRUCache[T]) removeElement(elem *list.Element) entry[T] {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
	return entry[T]{key: item.key, data: item.data}
}

func (c *LRUCache[T]) evict(es []entry[T]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range es {
		c.onEvict(e.key, e.data)
	}
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	var evicted []entry[T]
	c.mu.Lock()
	now := c.now()
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		if now.After(elem.Value.(*cacheItem[T]).expiresAt) {
			evicted = append(evicted, c.removeElement(elem))
		}
		elem = next
	}
	c.mu.Unlock()

	c.evict(evicted)
	return len(evicted)
}

// Each calls fn for every live entry, most recent first. fn runs without
// the lock held.
func (c *LRUCache[T]) Each(fn func(key string, value T)) {
	c.mu.Lock()
	now := c.now()
	live := make([]entry[T], 0, c.lru.Len())
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*cacheItem[T])
		if !now.After(item.expiresAt) {
			live = append(live, entry[T]{key: item.key, data: item.data})
		}
	}
	c.mu.Unlock()

	for _, e := range live {
		fn(e.key, e.data)
	}
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
