package evaluation

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
)

func cacheKey(station string, anchor time.Time, horizon int) string {
	return fmt.Sprintf("%s|%s|%d", station, anchor.Format(domain.DateLayout), horizon)
}

// freshCache keeps the most recently used assessments and serves them only while they
// are younger than the freshness window. Stale entries are dropped on lookup.
type freshCache struct {
	maxEntries int
	window     time.Duration

	mu      sync.Mutex
	order   *list.List // front is most recently used
	entries map[string]*list.Element
}

type cached struct {
	key        string
	assessment domain.Assessment
}

func newFreshCache(maxEntries int, window time.Duration) *freshCache {
	return &freshCache{
		maxEntries: maxEntries,
		window:     window,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *freshCache) get(key string, now time.Time) (domain.Assessment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return domain.Assessment{}, false
	}
	item := el.Value.(*cached)
	if !item.assessment.FreshAt(now, c.window) {
		c.order.Remove(el)
		delete(c.entries, key)
		return domain.Assessment{}, false
	}
	c.order.MoveToFront(el)
	return item.assessment, true
}

func (c *freshCache) put(key string, a domain.Assessment) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cached).assessment = a
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cached{key: key, assessment: a})

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cached).key)
	}
}

func (c *freshCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
