// Package cache holds the per-session category cache.
//
// Each tag moves through Unrequested -> Pending -> Loaded|Failed exactly once.
// Loaded and Failed are terminal: nothing is refetched for the life of the
// cache, and at most one fetch per tag is ever in flight.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"calbrowse/internal/fetch"
	appLog "calbrowse/internal/log"
	"calbrowse/internal/model"
	"calbrowse/internal/normalize"
)

// ErrUnknownCategory is recorded for tags that are not in the registry.
var ErrUnknownCategory = errors.New("unknown category")

// Fetcher retrieves the raw records of one data file.
type Fetcher interface {
	FetchCategoryArray(ctx context.Context, locator string) ([]model.RawRecord, error)
}

// State is the load state of one tag.
type State int

const (
	Unrequested State = iota
	Pending
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unrequested"
	}
}

// Entry is the terminal result for one tag.
type Entry struct {
	Tag   string
	Items []model.Record
	Err   error
}

// OK reports whether the load succeeded.
func (e Entry) OK() bool { return e.Err == nil }

// LoadHook runs once after a category loads successfully.
type LoadHook func(cat model.Category, items []model.Record)

// Option configures a Cache.
type Option func(*Cache)

// WithLoadHook registers a hook called after each successful load.
func WithLoadHook(h LoadHook) Option {
	return func(c *Cache) { c.hooks = append(c.hooks, h) }
}

// Cache maps category tags to load results.
type Cache struct {
	categories *model.Categories
	fetcher    Fetcher
	hooks      []LoadHook

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]Entry
	pending map[string]struct{}
}

// New creates an empty cache.
func New(categories *model.Categories, fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		categories: categories,
		fetcher:    fetcher,
		entries:    make(map[string]Entry),
		pending:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureLoaded blocks until tag has an entry or ctx is done. Concurrent and
// repeated calls share one fetch. The fetch itself is not tied to ctx: a
// caller giving up does not abort a load other callers may be waiting on.
func (c *Cache) EnsureLoaded(ctx context.Context, tag string) {
	select {
	case <-c.Start(ctx, tag):
	case <-ctx.Done():
	}
}

// Start is the non-blocking form of EnsureLoaded. The tag is marked pending
// before Start returns; the returned channel is closed once it has an entry.
func (c *Cache) Start(ctx context.Context, tag string) <-chan struct{} {
	done := make(chan struct{})
	wait := c.begin(ctx, tag)
	if wait == nil {
		close(done)
		return done
	}
	go func() {
		<-wait
		close(done)
	}()
	return done
}

// begin marks tag pending and joins or starts its load. It returns nil when
// the tag already has an entry.
func (c *Cache) begin(ctx context.Context, tag string) <-chan singleflight.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.entries[tag]; done {
		return nil
	}
	c.pending[tag] = struct{}{}

	loadCtx := context.WithoutCancel(ctx)
	return c.group.DoChan(tag, func() (any, error) {
		c.load(loadCtx, tag)
		return nil, nil
	})
}

// load fetches and normalizes one category and stores the terminal entry.
func (c *Cache) load(ctx context.Context, tag string) {
	cat, ok := c.categories.Lookup(tag)
	if !ok {
		c.store(Entry{Tag: tag, Err: fmt.Errorf("%w: %s", ErrUnknownCategory, tag)})
		return
	}

	raws, err := c.fetcher.FetchCategoryArray(ctx, cat.Locator)
	if err != nil {
		appLog.Error("category load failed", err, "tag", tag, "kind", fetch.KindOf(err))
		c.store(Entry{Tag: tag, Err: err})
		return
	}

	items := normalize.NormalizeAll(raws, cat)
	for _, h := range c.hooks {
		h(cat, items)
	}
	c.store(Entry{Tag: tag, Items: items})
	appLog.Info("category loaded", "tag", tag, "items", len(items))
}

func (c *Cache) store(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Tag] = e
	delete(c.pending, e.Tag)
}

// Get returns the entry for tag, if loading has finished.
func (c *Cache) Get(tag string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tag]
	return e, ok
}

// State reports where tag is in its lifecycle.
func (c *Cache) State(tag string) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[tag]; ok {
		if e.OK() {
			return Loaded
		}
		return Failed
	}
	if _, ok := c.pending[tag]; ok {
		return Pending
	}
	return Unrequested
}
