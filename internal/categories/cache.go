package categories

import (
	"context"
	"sync"
	"time"

	"github.com/praktis/pricecompare/pkg/backend"
)

const DefaultTTL = 5 * time.Minute

// GroupSource loads the flat category list.
type GroupSource interface {
	FetchGroups(ctx context.Context) ([]backend.Group, error)
}

// Cache keeps the linked tree for TTL and rebuilds it from the source on expiry.
// A failed refresh keeps serving the previous tree.
type Cache struct {
	source GroupSource
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	tree      *Tree
	fetchedAt time.Time
}

func NewCache(source GroupSource, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{source: source, ttl: ttl, now: time.Now}
}

func (c *Cache) fresh() (*Tree, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tree != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.tree, true
	}
	return c.tree, false
}

// Tree returns the cached tree, refreshing it when expired.
func (c *Cache) Tree(ctx context.Context) (*Tree, error) {
	if tree, ok := c.fresh(); ok {
		return tree, nil
	}

	groups, err := c.source.FetchGroups(ctx)
	if err != nil {
		c.mu.RLock()
		stale := c.tree
		c.mu.RUnlock()
		if stale != nil {
			return stale, nil
		}
		return nil, err
	}

	tree := BuildTree(groups)
	c.mu.Lock()
	c.tree = tree
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return tree, nil
}

// Descendants resolves id and its whole subtree.
func (c *Cache) Descendants(ctx context.Context, id int) (map[int]struct{}, error) {
	tree, err := c.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return tree.Descendants(id), nil
}

// Invalidate forces the next read to refetch.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.tree = nil
	c.mu.Unlock()
}
