package volume

import (
	"sync"

	"volseg/internal/models"
)

// DefaultCacheCapacity is the number of slices kept in memory when no
// explicit budget is configured.
const DefaultCacheCapacity = 200

// lruNode is a node of the intrusive recency list.
type lruNode struct {
	index      int
	slice      *models.Slice
	prev, next *lruNode
}

// lruList is a doubly linked list ordered from most to least recently used.
type lruList struct {
	head, tail *lruNode
	len        int
}

func (l *lruList) pushFront(n *lruNode) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.len++
}

func (l *lruList) remove(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.len--
}

func (l *lruList) moveToFront(n *lruNode) {
	if l.head == n {
		return
	}
	l.remove(n)
	l.pushFront(n)
}

// budget bounds the cache either by entry count or by total sample bytes.
type budget struct {
	items int   // used when bytes == 0
	bytes int64 // byte budget; 0 selects the item budget
}

// sliceCache is a mutex-guarded LRU cache of decoded slices.
//
// The cache only mirrors the slice source; dropping any entry, or the
// whole cache, never loses data.
type sliceCache struct {
	mu      sync.Mutex
	entries map[int]*lruNode
	lru     lruList
	limit   budget
	size    int64 // bytes currently held

	hits, misses, evictions uint64
}

func newSliceCache(capacity int) *sliceCache {
	return &sliceCache{
		entries: make(map[int]*lruNode),
		limit:   budget{items: capacity},
	}
}

// get returns a cached slice and marks it most recently used.
func (c *sliceCache) get(index int) (*models.Slice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[index]
	if !ok {
		c.misses++
		cacheMisses.Inc()
		return nil, false
	}
	c.lru.moveToFront(n)
	c.hits++
	cacheHits.Inc()
	return n.slice, true
}

// put inserts a slice as most recently used and evicts down to budget.
func (c *sliceCache) put(index int, s *models.Slice) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.entries[index]; ok {
		c.size += s.Bytes() - n.slice.Bytes()
		cacheBytes.Add(float64(s.Bytes() - n.slice.Bytes()))
		n.slice = s
		c.lru.moveToFront(n)
	} else {
		n := &lruNode{index: index, slice: s}
		c.entries[index] = n
		c.lru.pushFront(n)
		c.size += s.Bytes()
		cacheBytes.Add(float64(s.Bytes()))
	}
	c.evictLocked()
}

// overLocked reports whether the cache exceeds its budget.
func (c *sliceCache) overLocked() bool {
	if c.limit.bytes > 0 {
		return c.size > c.limit.bytes
	}
	return c.lru.len > c.limit.items
}

// evictLocked drops least recently used entries until within budget.
func (c *sliceCache) evictLocked() {
	for c.lru.tail != nil && c.overLocked() {
		oldest := c.lru.tail
		c.lru.remove(oldest)
		delete(c.entries, oldest.index)
		c.size -= oldest.slice.Bytes()
		c.evictions++
		cacheEvictions.Inc()
		cacheBytes.Sub(float64(oldest.slice.Bytes()))
	}
}

func (c *sliceCache) setCapacity(items int) {
	if items < 0 {
		items = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = budget{items: items}
	c.evictLocked()
}

func (c *sliceCache) setMemory(bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bytes <= 0 {
		// A zero byte budget caches nothing.
		c.limit = budget{items: 0}
	} else {
		c.limit = budget{bytes: bytes}
	}
	c.evictLocked()
}

func (c *sliceCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cacheBytes.Sub(float64(c.size))
	c.entries = make(map[int]*lruNode)
	c.lru = lruList{}
	c.size = 0
}

// indices returns the cached depth indices from most to least recently used.
func (c *sliceCache) indices() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, c.lru.len)
	for n := c.lru.head; n != nil; n = n.next {
		out = append(out, n.index)
	}
	return out
}

// CacheStats is a snapshot of cache activity.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Bytes     int64
}

func (c *sliceCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   c.lru.len,
		Bytes:     c.size,
	}
}
