// Package searchcache memoizes grid search results per normalized query for
// the lifetime of a session.
package searchcache

import (
	"container/list"
	"context"
	"strings"
	"sync"

	"github.com/gridskin/gridskin/internal/models"
)

// Searcher resolves a query string to ranked grid candidates, typically the
// SteamGridDB client.
type Searcher interface {
	Search(ctx context.Context, name string) ([]models.GridCandidate, error)
}

// Cache is an LRU cache from normalized query to candidate list. On a miss
// it delegates to the Searcher and stores the result; hits return the stored
// list without a network call. The API's ranking order is preserved.
type Cache struct {
	searcher Searcher
	capacity int
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List
}

type cacheEntry struct {
	key        string
	candidates []models.GridCandidate
}

// New creates a cache delegating misses to searcher, bounded to capacity
// distinct queries.
func New(searcher Searcher, capacity int) *Cache {
	return &Cache{
		searcher: searcher,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Normalize returns the cache key for a query: trimmed, case-folded, with
// runs of whitespace collapsed to single spaces.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Lookup returns the candidates for query, consulting the Searcher only on a
// cache miss. Failed searches are not cached so a later retry can succeed.
func (c *Cache) Lookup(ctx context.Context, query string) ([]models.GridCandidate, error) {
	key := Normalize(query)
	if key == "" {
		return nil, models.Errf(models.ErrNotFound, "empty query")
	}

	if candidates, ok := c.get(key); ok {
		return candidates, nil
	}

	candidates, err := c.searcher.Search(ctx, key)
	if err != nil {
		return nil, err
	}
	c.set(key, candidates)
	return candidates, nil
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) get(key string) ([]models.GridCandidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).candidates, true
	}
	return nil, false
}

func (c *Cache) set(key string, candidates []models.GridCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).candidates = candidates
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, candidates: candidates})
	c.entries[key] = elem

	if c.capacity > 0 && c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}
