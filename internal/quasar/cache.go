package quasar

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// publicationCache counts how often each publication was processed. It is
// bounded, so suppression is best effort once entries are evicted.
type publicationCache struct {
	mu     sync.Mutex
	counts *lru.Cache[string, int]
}

func newPublicationCache(size int) (*publicationCache, error) {
	counts, err := lru.New[string, int](size)
	if err != nil {
		return nil, err
	}
	return &publicationCache{counts: counts}, nil
}

// Count returns how many times uuid was admitted without touching recency
func (c *publicationCache) Count(uuid string) int {
	n, _ := c.counts.Peek(uuid)
	return n
}

// Admit increments the count for uuid unless it already reached limit. It
// returns the new count, or 0 when the publication is refused.
func (c *publicationCache) Admit(uuid string, limit int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, _ := c.counts.Get(uuid)
	if n >= limit {
		return 0
	}
	n++
	c.counts.Add(uuid, n)
	return n
}

// Len returns the number of cached publications
func (c *publicationCache) Len() int {
	return c.counts.Len()
}
