package commentclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"larder/internal/models"
	"larder/internal/utils"
)

const (
	DefaultFreshness     = 30 * time.Second
	DefaultCacheCapacity = 256
)

// ErrSuperseded is returned to a caller whose fetch was replaced by a newer fetch
// for the same key, or cancelled by Invalidate/Clear. Its result was discarded.
var ErrSuperseded = errors.New("commentclient: fetch superseded")

// Fetcher loads the comment tree for a page.
type Fetcher func(ctx context.Context, pageSlug string) ([]*models.CommentNode, error)

type inflightFetch struct {
	gen    uint64
	cancel context.CancelFunc
}

// Cache holds recent comment trees per page. It is owned by whoever creates it and
// lives until Clear or until the owner drops it; there is no package-level state.
type Cache struct {
	mu       sync.Mutex
	fetch    Fetcher
	entries  *utils.TTLCache[[]*models.CommentNode]
	inflight map[string]*inflightFetch
	gen      uint64

	capacity  int
	freshness time.Duration
	now       func() time.Time
}

type CacheOption func(*Cache)

func WithCapacity(n int) CacheOption {
	return func(c *Cache) { c.capacity = n }
}

// WithFreshness sets how long a fetched tree is served without a network call.
func WithFreshness(d time.Duration) CacheOption {
	return func(c *Cache) { c.freshness = d }
}

func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func NewCache(fetch Fetcher, opts ...CacheOption) (*Cache, error) {
	c := &Cache{
		fetch:     fetch,
		inflight:  make(map[string]*inflightFetch),
		capacity:  DefaultCacheCapacity,
		freshness: DefaultFreshness,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	entries, err := utils.NewTTLCache[[]*models.CommentNode](c.capacity, c.now)
	if err != nil {
		return nil, err
	}
	c.entries = entries
	return c, nil
}

// Get returns the cached tree while it is fresh, otherwise fetches it. A new fetch
// cancels any fetch already running for the key; only the latest one may store
// its result.
func (c *Cache) Get(ctx context.Context, pageSlug string) ([]*models.CommentNode, error) {
	c.mu.Lock()
	if tree, ok := c.entries.Get(pageSlug); ok {
		c.mu.Unlock()
		return tree, nil
	}
	if prev, ok := c.inflight[pageSlug]; ok {
		prev.cancel()
	}
	c.gen++
	gen := c.gen
	fetchCtx, cancel := context.WithCancel(ctx)
	c.inflight[pageSlug] = &inflightFetch{gen: gen, cancel: cancel}
	c.mu.Unlock()

	tree, err := c.fetch(fetchCtx, pageSlug)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer cancel()

	current, ok := c.inflight[pageSlug]
	if !ok || current.gen != gen {
		return nil, ErrSuperseded
	}
	delete(c.inflight, pageSlug)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		tree = []*models.CommentNode{}
	}
	c.entries.Set(pageSlug, tree, c.freshness)
	return tree, nil
}

// Invalidate drops the cached tree for a page and cancels its in-flight fetch, so the
// next Get goes to the network.
func (c *Cache) Invalidate(pageSlug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Delete(pageSlug)
	if f, ok := c.inflight[pageSlug]; ok {
		f.cancel()
		delete(c.inflight, pageSlug)
	}
}

// Clear empties the cache and cancels every in-flight fetch.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Clear()
	for key, f := range c.inflight {
		f.cancel()
		delete(c.inflight, key)
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
