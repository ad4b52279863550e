package geodata

import (
	"fmt"
	"sync"

	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// CachedDissolver wraps a Dissolver with an in-memory LRU cache. Dissolving
// a province or the national outline is the most expensive part of the geo
// rollups and the boundary set rarely changes between refreshes, so the
// cache key is the dissolve key plus the member count.
type CachedDissolver struct {
	inner domain.Dissolver
	cache *lruCache
}

// NewCachedDissolver creates a cache decorator around a dissolver.
func NewCachedDissolver(inner domain.Dissolver, maxEntries int) *CachedDissolver {
	return &CachedDissolver{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedDissolver) Dissolve(key string, members []geom.T) geom.T {
	cacheKey := fmt.Sprintf("%s|%d", key, len(members))
	if g, ok := c.cache.get(cacheKey); ok {
		return g
	}
	g := c.inner.Dissolve(key, members)
	// Only cache non-nil shapes so a degenerate member set can be retried.
	if g != nil {
		c.cache.put(cacheKey, g)
	}
	return g
}

// lruCache is a simple thread-safe LRU cache for dissolved geometries.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value geom.T
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (geom.T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value geom.T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
