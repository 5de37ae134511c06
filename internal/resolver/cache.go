package resolver

import (
	"container/list"
	"sync"
	"time"

	"github.com/troubadour-audio/troubadour/internal/player"
)

// Cache is a bounded TTL cache of resolution results keyed by the
// original query. Eviction is oldest-insertion-first.
type Cache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

type cacheEntry struct {
	key     string
	tracks  []player.Track
	expires time.Time
}

func NewCache(max int, ttl time.Duration) *Cache {
	if max <= 0 {
		max = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		max:     max,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns a copy of the cached tracks for key, if fresh.
func (c *Cache) Get(key string) ([]player.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := element.Value.(*cacheEntry)
	if c.now().After(entry.expires) {
		c.order.Remove(element)
		delete(c.entries, key)
		return nil, false
	}
	out := make([]player.Track, len(entry.tracks))
	copy(out, entry.tracks)
	return out, true
}

// Put stores tracks under key, evicting the oldest entry when full.
func (c *Cache) Put(key string, tracks []player.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]player.Track, len(tracks))
	copy(stored, tracks)

	if element, ok := c.entries[key]; ok {
		entry := element.Value.(*cacheEntry)
		entry.tracks = stored
		entry.expires = c.now().Add(c.ttl)
		return
	}
	for len(c.entries) >= c.max {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	entry := &cacheEntry{key: key, tracks: stored, expires: c.now().Add(c.ttl)}
	c.entries[key] = c.order.PushBack(entry)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
