// Package cache provides a thread-safe LRU cache for parsed expressions.
//
// Parsing is deterministic in its inputs (text, mode and whether whitespace
// is preserved), so a parsed *types.Expression can be shared between callers
// that evaluate the same expression against many data contexts.
//
// # Example
//
//	c := cache.New(1024)
//	expr, err := c.GetOrParse(cache.Key{Text: "#{uid}*2", Mode: types.ModeValidationRule}, parse)
package cache

import (
	"container/list"
	"sync"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

// Key identifies a parse.
type Key struct {
	Text     string
	Mode     types.Mode
	Annotate bool
}

type entry struct {
	key  Key
	expr *types.Expression
}

// Cache is an LRU cache of parsed expressions. Once the capacity is reached
// the least recently used entry is evicted.
//
// Safe for concurrent use by multiple goroutines.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	ll       *list.List
	items    map[Key]*list.Element
	hits     uint64
	misses   uint64
}

// Stats reports cache usage counters.
type Stats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// New creates a cache holding up to capacity expressions.
// A capacity <= 0 selects the default of 256.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[Key]*list.Element, capacity),
	}
}

// Get returns the cached expression for key and marks it most recently used.
func (c *Cache) Get(key Key) (*types.Expression, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.ll.MoveToFront(el)
	return el.Value.(*entry).expr, true
}

// Set inserts or replaces the expression for key.
func (c *Cache) Set(key Key, expr *types.Expression) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).expr = expr
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.capacity {
		c.evictLocked()
	}
	c.items[key] = c.ll.PushFront(&entry{key: key, expr: expr})
}

// GetOrParse returns the cached expression for key, or calls parse and
// caches its result. Parse errors are not cached.
func (c *Cache) GetOrParse(key Key, parse func() (*types.Expression, error)) (*types.Expression, error) {
	if expr, ok := c.Get(key); ok {
		return expr, nil
	}
	expr, err := parse()
	if err != nil {
		return nil, err
	}
	c.Set(key, expr)
	return expr, nil
}

// Len returns the number of cached expressions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Stats returns a snapshot of the usage counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses, Len: len(c.items)}
}

// Invalidate removes key from the cache.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

// Clear removes every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[Key]*list.Element, c.capacity)
	c.hits, c.misses = 0, 0
}

// evictLocked drops the least recently used entry. c.mu must be held.
func (c *Cache) evictLocked() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
