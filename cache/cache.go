// Package cache implements a bounded in-memory cache with per-entry TTL,
// priority classes and LRU eviction inside each priority bucket.
package cache

import (
	"container/list"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Priority classes. Each class carries its own default TTL; eviction at
// capacity drains the lowest non-empty class first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical

	numPriorities = 4
)

// Default TTL per priority class.
var defaultTTL = map[Priority]time.Duration{
	PriorityCritical: 6 * time.Hour,
	PriorityHigh:     1 * time.Hour,
	PriorityNormal:   5 * time.Minute,
	PriorityLow:      30 * time.Second,
}

type entry struct {
	key          string
	value        interface{}
	priority     Priority
	createdAt    time.Time
	expiresAt    time.Time
	accessCount  int64
	lastAccessed time.Time
}

// Stats exposes hit/miss/eviction/expiration counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
	Size        int   `json:"size"`
	Capacity    int   `json:"capacity"`
}

// BoundedCache is a fixed-capacity cache. Size never exceeds the configured
// maximum: inserting at capacity evicts an expired entry if one exists, else
// the least-recently-used entry of the lowest non-empty priority bucket.
type BoundedCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	buckets  [numPriorities]*list.List // front = most recently used
	stats    Stats
	now      func() time.Time // overridable in tests
}

// New creates a BoundedCache with the given capacity.
func New(capacity int) *BoundedCache {
	if capacity <= 0 {
		capacity = 1
	}
	c := &BoundedCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
	for i := range c.buckets {
		c.buckets[i] = list.New()
	}
	c.stats.Capacity = capacity
	return c
}

// Get returns the cached value, or false on a miss or an expired entry.
// Expired entries are removed on access.
func (c *BoundedCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.removeElement(el)
		c.stats.Expirations++
		c.stats.Misses++
		return nil, false
	}

	e.accessCount++
	e.lastAccessed = c.now()
	c.buckets[e.priority].MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

// Set stores a value under the priority class's default TTL.
func (c *BoundedCache) Set(key string, value interface{}, priority Priority) {
	c.SetWithTTL(key, value, priority, defaultTTL[priority])
}

// SetWithTTL stores a value with an explicit TTL.
func (c *BoundedCache) SetWithTTL(key string, value interface{}, priority Priority, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	} else if len(c.entries) >= c.capacity {
		c.evictOne()
	}

	e := &entry{
		key:          key,
		value:        value,
		priority:     priority,
		createdAt:    now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
	c.entries[key] = c.buckets[priority].PushFront(e)
}

// Delete removes a key; returns whether it was present.
func (c *BoundedCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// InvalidateByPattern removes every key matching the regular expression and
// returns how many were dropped.
func (c *BoundedCache) InvalidateByPattern(pattern string) int {
	re, err := regexp.Compile(pattern)
	if err != nil {
		logrus.Warnf("Invalid cache invalidation pattern %q: %v", pattern, err)
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, el := range c.entries {
		if re.MatchString(key) {
			c.removeElement(el)
			removed++
		}
	}
	return removed
}

// SweepExpired removes every expired entry; returns the count. Called by the
// background sweep worker.
func (c *BoundedCache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, el := range c.entries {
		if now.After(el.Value.(*entry).expiresAt) {
			c.removeElement(el)
			c.stats.Expirations++
			removed++
		}
	}
	return removed
}

// Len returns the current entry count.
func (c *BoundedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetStats returns a snapshot of the counters.
func (c *BoundedCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	return s
}

// evictOne frees exactly one slot: an expired entry when one exists, else the
// LRU entry of the lowest non-empty priority bucket. Caller holds the lock.
func (c *BoundedCache) evictOne() {
	now := c.now()
	for _, el := range c.entries {
		if now.After(el.Value.(*entry).expiresAt) {
			c.removeElement(el)
			c.stats.Expirations++
			return
		}
	}

	for p := PriorityLow; p <= PriorityCritical; p++ {
		bucket := c.buckets[p]
		if bucket.Len() == 0 {
			continue
		}
		c.removeElement(bucket.Back())
		c.stats.Evictions++
		return
	}
}

func (c *BoundedCache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	c.buckets[e.priority].Remove(el)
	delete(c.entries, e.key)
}
