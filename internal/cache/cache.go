// Package cache provides caching of authorization decisions.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// DecisionCache stores allow/deny outcomes keyed by
// principal|action|resource. Entries are dropped on grant/revoke and on
// session invalidation, so a cached decision never outlives the trust state
// it was computed from.
type DecisionCache interface {
	Get(key string) (allowed bool, ok bool)
	Set(key string, allowed bool)
	Delete(key string)
	// DeletePrefix drops every entry whose key starts with prefix. Used to
	// purge all decisions for one principal.
	DeletePrefix(prefix string)
	Clear()
	Stats() Stats
	Close() error
}

// Stats contains cache statistics.
type Stats struct {
	Size    int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Key builds the canonical cache key for a decision.
func Key(principal, action, resource string) string {
	return principal + "|" + action + "|" + resource
}

// LRU implements DecisionCache with an in-process LRU and TTL.
type LRU struct {
	capacity int
	ttl      time.Duration

	items map[string]*list.Element
	order *list.List
	mu    sync.Mutex

	hits   uint64
	misses uint64
}

type lruEntry struct {
	key       string
	allowed   bool
	expiresAt time.Time
}

// NewLRU creates an LRU decision cache.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	return &LRU{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *LRU) Get(key string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return false, false
	}

	entry := elem.Value.(*lruEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return false, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.allowed, true
}

func (c *LRU) Set(key string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.allowed = allowed
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		c.removeElement(c.order.Back())
	}

	entry := &lruEntry{key: key, allowed: allowed, expiresAt: time.Now().Add(c.ttl)}
	c.items[key] = c.order.PushFront(entry)
}

func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

func (c *LRU) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(elem)
		}
	}
}

func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
}

func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Size:   c.order.Len(),
		Hits:   c.hits,
		Misses: c.misses,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

func (c *LRU) Close() error {
	return nil
}

func (c *LRU) removeElement(elem *list.Element) {
	entry := elem.Value.(*lruEntry)
	delete(c.items, entry.key)
	c.order.Remove(elem)
}
