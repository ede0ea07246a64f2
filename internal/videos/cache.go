package videos

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache remembers successful lookups for ttl so resubmitting a popular video
// does not spawn yt-dlp again. Concurrent lookups of the same URL share one
// call to next. Errors pass through uncached.
type Cache struct {
	next  Provider
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cached
}

type cached struct {
	meta    Metadata
	expires time.Time
}

func NewCache(next Provider, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{next: next, ttl: ttl, now: time.Now, entries: make(map[string]cached)}
}

func (c *Cache) Lookup(ctx context.Context, url string) (Metadata, error) {
	if c == nil || c.next == nil {
		return Metadata{}, ErrProviderUnavailable
	}
	if m, ok := c.get(url); ok {
		return m, nil
	}

	v, err, _ := c.group.Do(url, func() (any, error) {
		m, err := c.next.Lookup(ctx, url)
		if err != nil {
			return Metadata{}, err
		}
		c.put(url, m)
		return m, nil
	})
	if err != nil {
		return Metadata{}, err
	}
	return v.(Metadata), nil
}

func (c *Cache) get(url string) (Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok || !c.now().Before(e.expires) {
		return Metadata{}, false
	}
	return e.meta, true
}

// put stores m and drops whatever has expired, which keeps the map bounded by
// the number of distinct videos submitted within one ttl.
func (c *Cache) put(url string, m Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[url] = cached{meta: m, expires: now.Add(c.ttl)}
}

// Len reports the number of held entries. Expired ones linger until the next put.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
