// Package cache keeps rendered artifacts in memory for the life of the
// process. Backing files are never re-read once loaded, so entries are
// never invalidated; they are only evicted to respect the size limits.
package cache

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Artifact is one rendered output.
type Artifact struct {
	ContentType string
	Body        []byte
}

// Size is the number of bytes accounted for the artifact.
func (a Artifact) Size() int {
	return len(a.Body) + len(a.ContentType)
}

// Key builds a cache key from its parts.
func Key(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// Entry is a cached artifact with metadata.
type Entry struct {
	Key        string
	Artifact   Artifact
	AccessedAt time.Time
	CreatedAt  time.Time
}

// LRUCache is an in-memory LRU cache of artifacts.
type LRUCache struct {
	mu           sync.Mutex
	items        map[string]*listItem
	lru          *list // most recent at front
	maxSize      int
	maxBytes     int64
	currentBytes int64
	onEvict      func(key string, a Artifact)

	group     singleflight.Group
	hitCount  int64
	missCount int64
}

type listItem struct {
	Entry
	prev *listItem
	next *listItem
}

type list struct {
	head *listItem // most recently accessed
	tail *listItem // least recently accessed
	len  int
}

func (l *list) moveToFront(item *listItem) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

func (l *list) pushFront(item *listItem) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

func (l *list) unlink(item *listItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

func (l *list) removeBack() *listItem {
	item := l.tail
	if item != nil {
		l.unlink(item)
	}
	return item
}

// Options configures the LRU cache.
type Options struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int
	// MaxBytes is the maximum size of the bodies. 0 means unlimited.
	MaxBytes int64
	// OnEvict is called when an entry is evicted.
	OnEvict func(key string, a Artifact)
}

// New creates a new LRU cache with the given options.
func New(opts Options) *LRUCache {
	return &LRUCache{
		items:    make(map[string]*listItem),
		lru:      &list{},
		maxSize:  opts.MaxSize,
		maxBytes: opts.MaxBytes,
		onEvict:  opts.OnEvict,
	}
}

// Get retrieves an artifact.
func (c *LRUCache) Get(key string) (Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.missCount++
		return Artifact{}, false
	}
	c.hitCount++
	item.AccessedAt = time.Now()
	c.lru.moveToFront(item)
	return item.Artifact, true
}

// Set stores an artifact, evicting the least recently used entries when
// a limit is exceeded.
func (c *LRUCache) Set(key string, a Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if item, exists := c.items[key]; exists {
		c.currentBytes -= int64(item.Artifact.Size())
		item.Artifact = a
		item.AccessedAt = now
		c.currentBytes += int64(a.Size())
		c.lru.moveToFront(item)
		c.evictIfNeeded(key)
		return
	}

	item := &listItem{Entry: Entry{Key: key, Artifact: a, AccessedAt: now, CreatedAt: now}}
	c.items[key] = item
	c.lru.pushFront(item)
	c.currentBytes += int64(a.Size())
	c.evictIfNeeded(key)
}

// GetOrCreate returns the cached artifact for key, calling create once on
// a miss. Concurrent callers for the same key share one call. Failures
// are not cached.
func (c *LRUCache) GetOrCreate(key string, create func() (Artifact, error)) (Artifact, error) {
	if a, ok := c.Get(key); ok {
		return a, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if a, ok := c.peek(key); ok {
			return a, nil
		}
		a, err := create()
		if err != nil {
			return Artifact{}, err
		}
		c.Set(key, a)
		return a, nil
	})
	if err != nil {
		return Artifact{}, err
	}
	return v.(Artifact), nil
}

func (c *LRUCache) peek(key string) (Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[key]; ok {
		return item.Artifact, true
	}
	return Artifact{}, false
}

// Clear removes all entries.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem)
	c.lru = &list{}
	c.currentBytes = 0
}

// Len returns the number of entries.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictIfNeeded evicts entries while a limit is exceeded. The entry just
// stored is kept even when it alone exceeds MaxBytes.
func (c *LRUCache) evictIfNeeded(keep string) {
	for c.shouldEvict() {
		item := c.lru.tail
		if item == nil || item.Key == keep {
			break
		}
		c.lru.removeBack()
		delete(c.items, item.Key)
		c.currentBytes -= int64(item.Artifact.Size())
		if c.onEvict != nil {
			c.onEvict(item.Key, item.Artifact)
		}
	}
}

func (c *LRUCache) shouldEvict() bool {
	if c.maxSize > 0 && c.lru.len > c.maxSize {
		return true
	}
	if c.maxBytes > 0 && c.currentBytes > c.maxBytes {
		return true
	}
	return false
}

// Stats describes the cache usage.
type Stats struct {
	Length       int     `json:"length" yaml:"length" msgpack:"length"`
	CurrentBytes int64   `json:"current_bytes" yaml:"current_bytes" msgpack:"current_bytes"`
	HitCount     int64   `json:"hit_count" yaml:"hit_count" msgpack:"hit_count"`
	MissCount    int64   `json:"miss_count" yaml:"miss_count" msgpack:"miss_count"`
	HitRate      float64 `json:"hit_rate" yaml:"hit_rate" msgpack:"hit_rate"`
}

// Stats returns the current statistics.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Length:       len(c.items),
		CurrentBytes: c.currentBytes,
		HitCount:     c.hitCount,
		MissCount:    c.missCount,
	}
	if total := c.hitCount + c.missCount; total > 0 {
		s.HitRate = float64(c.hitCount) / float64(total)
	}
	return s
}

// ResetStats resets the hit and miss counters.
func (c *LRUCache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hitCount = 0
	c.missCount = 0
}
