// Package cache holds the last fetched results of every gallery query, serves
// them while revalidating, and invalidates the dependent entries after a write.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/liminalpurple/visionary-vault/internal/library"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_cache_hits_total",
		Help: "Cache reads answered with a fresh value.",
	}, []string{"kind"})
	cacheStaleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_cache_stale_total",
		Help: "Cache reads answered with a stale or missing value.",
	}, []string{"kind"})
	cacheFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_cache_fetches_total",
		Help: "Network fetches started by the cache.",
	}, []string{"kind"})
	cacheFetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_cache_fetch_errors_total",
		Help: "Network fetches that failed.",
	}, []string{"kind"})
	cacheInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_cache_invalidations_total",
		Help: "Entries marked stale.",
	}, []string{"kind"})
)

// DefaultMaxEntries bounds the number of cached queries
const DefaultMaxEntries = 512

// Fetcher performs the network read for a key
type Fetcher func(ctx context.Context, key Key) (any, error)

// Result is what Get reports for a key
type Result struct {
	Value    any   // Last successful value, nil if never loaded
	Loaded   bool  // A value has been fetched at least once
	Stale    bool  // The value may not reflect the remote source
	Fetching bool  // A fetch for the key is in flight
	Err      error // Error of the most recent failed fetch, cleared on success
}

type entry struct {
	value    any
	loaded   bool
	stale    bool
	err      error
	gen      uint64 // bumped on every invalidation and write-back
	valueGen uint64 // gen at which the applied value's fetch started, or of its write-back
	inFlight int
}

// Cache is the process-scoped query cache
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache[Key, *entry]
	fetch    Fetcher
	group    singleflight.Group
	pending  sync.WaitGroup
	timeout  time.Duration
	log      logrus.FieldLogger
	onUpdate func(Key)
}

// Option configures a Cache
type Option func(*options)

type options struct {
	maxEntries int
	timeout    time.Duration
	log        logrus.FieldLogger
	onUpdate   func(Key)
}

// WithMaxEntries bounds the number of cached keys
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// WithFetchTimeout bounds every network fetch; zero means no timeout
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithOnUpdate registers a callback run after a fetch result is applied
func WithOnUpdate(fn func(Key)) Option {
	return func(o *options) { o.onUpdate = fn }
}

// New creates a cache that reads through fetch
func New(fetch Fetcher, opts ...Option) (*Cache, error) {
	o := options{maxEntries: DefaultMaxEntries, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := lru.New[Key, *entry](o.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &Cache{
		entries:  entries,
		fetch:    fetch,
		timeout:  o.timeout,
		log:      o.log.WithField("component", "cache"),
		onUpdate: o.onUpdate,
	}, nil
}

// entryFor returns the entry for key, creating an empty stale one. Caller holds mu.
func (c *Cache) entryFor(key Key) *entry {
	e, ok := c.entries.Get(key)
	if !ok {
		e = &entry{stale: true}
		c.entries.Add(key, e)
	}
	return e
}

func (e *entry) result() Result {
	return Result{
		Value:    e.value,
		Loaded:   e.loaded,
		Stale:    e.stale || !e.loaded,
		Fetching: e.inFlight > 0,
		Err:      e.err,
	}
}

// Get returns the cached value for key immediately, stale or not, and starts
// a background refetch when the entry is stale or missing.
func (c *Cache) Get(key Key) Result {
	c.mu.Lock()
	res := c.entryFor(key).result()
	c.mu.Unlock()

	if res.Stale {
		cacheStaleTotal.WithLabelValues(string(key.Kind)).Inc()
		c.revalidate(key)
	} else {
		cacheHitsTotal.WithLabelValues(string(key.Kind)).Inc()
	}
	return res
}

// Peek returns the cached state for key without triggering a fetch
func (c *Cache) Peek(key Key) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(key)
	if !ok {
		return Result{Stale: true}, false
	}
	return e.result(), true
}

// Load returns a fresh value for key, waiting for the network when the entry
// is stale or missing. Concurrent callers share one fetch. When the fetch
// fails the previous value, if any, is returned along with the error.
func (c *Cache) Load(ctx context.Context, key Key) (any, error) {
	c.mu.Lock()
	e := c.entryFor(key)
	if e.loaded && !e.stale {
		v := e.value
		c.mu.Unlock()
		cacheHitsTotal.WithLabelValues(string(key.Kind)).Inc()
		return v, nil
	}
	c.mu.Unlock()
	cacheStaleTotal.WithLabelValues(string(key.Kind)).Inc()

	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.run(key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			c.mu.Lock()
			defer c.mu.Unlock()
			if prior, ok := c.entries.Peek(key); ok && prior.loaded {
				return prior.value, r.Err
			}
			return nil, r.Err
		}
		return r.Val, nil
	}
}

// revalidate starts a background fetch for key unless one is in flight
func (c *Cache) revalidate(key Key) {
	c.pending.Add(1)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.run(key)
	})
	go func() {
		<-ch
		c.pending.Done()
	}()
}

// run performs one fetch and applies its result
func (c *Cache) run(key Key) (any, error) {
	c.mu.Lock()
	e := c.entryFor(key)
	startGen := e.gen
	e.inFlight++
	c.mu.Unlock()

	cacheFetchesTotal.WithLabelValues(string(key.Kind)).Inc()

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	value, err := c.fetch(ctx, key)

	c.mu.Lock()
	e = c.entryFor(key)
	if e.inFlight > 0 {
		e.inFlight--
	}

	if err != nil {
		e.err = err
		c.mu.Unlock()
		cacheFetchErrorsTotal.WithLabelValues(string(key.Kind)).Inc()
		c.log.WithFields(logrus.Fields{"key": key.String()}).WithError(err).Warn("Fetch failed, keeping previous value")
		return nil, err
	}

	// A fetch that started before the applied value's fetch must not replace it
	if e.loaded && startGen < e.valueGen {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}

	e.value = value
	e.loaded = true
	e.err = nil
	e.valueGen = startGen
	e.stale = e.gen != startGen
	stale := e.stale
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"key": key.String(), "stale": stale}).Debug("Cache entry updated")
	if c.onUpdate != nil {
		c.onUpdate(key)
	}
	return value, nil
}

// Wait blocks until every background revalidation started so far has finished
func (c *Cache) Wait() {
	c.pending.Wait()
}

// Invalidate marks keys stale. It never fetches; the next access does.
func (c *Cache) Invalidate(keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.invalidateLocked(key)
	}
}

func (c *Cache) invalidateLocked(key Key) {
	e, ok := c.entries.Peek(key)
	if !ok {
		return
	}
	e.stale = true
	e.gen++
	// a later Load must not join a fetch that started before this point
	c.group.Forget(key.String())
	cacheInvalidationsTotal.WithLabelValues(string(key.Kind)).Inc()
}

// InvalidateKind marks every cached key of kind stale
func (c *Cache) InvalidateKind(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		if key.Kind == kind {
			c.invalidateLocked(key)
		}
	}
}

// InvalidateImage marks stale everything an edit of image id can change:
// the image itself, the collection under every cached tag filter, the tag
// map and the statistics.
func (c *Cache) InvalidateImage(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		switch {
		case key.Kind == KindCollection,
			key.Kind == KindTags,
			key.Kind == KindStats,
			key == ImageKey(id):
			c.invalidateLocked(key)
		}
	}
	c.log.WithField("image_id", id).Debug("Invalidated image and dependent views")
}

// InvalidateViews marks the collections, tag map and statistics stale
func (c *Cache) InvalidateViews() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		if key.Kind != KindImage {
			c.invalidateLocked(key)
		}
	}
}

// writeBackLocked replaces the value of e. Fetches that started earlier are
// dropped when they complete. Caller holds mu.
func (c *Cache) writeBackLocked(key Key, e *entry, value any) {
	e.value = value
	e.loaded = true
	e.gen++
	e.valueGen = e.gen
	c.group.Forget(key.String())
}

// Set writes value back into key and marks it fresh
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryFor(key)
	c.writeBackLocked(key, e, value)
	e.err = nil
	e.stale = false
}

// UpdateImage writes an edited record back into the image entry and into
// every cached collection holding it. Staleness of those entries is kept.
func (c *Cache) UpdateImage(img library.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries.Peek(ImageKey(img.ID)); ok {
		c.writeBackLocked(ImageKey(img.ID), e, img)
	} else {
		e = &entry{}
		c.writeBackLocked(ImageKey(img.ID), e, img)
		c.entries.Add(ImageKey(img.ID), e)
	}

	for _, key := range c.entries.Keys() {
		if key.Kind != KindCollection {
			continue
		}
		e, _ := c.entries.Peek(key)
		images, ok := e.value.([]library.Image)
		if !ok {
			continue
		}
		for i := range images {
			if images[i].ID == img.ID {
				replaced := make([]library.Image, len(images))
				copy(replaced, images)
				replaced[i] = img
				c.writeBackLocked(key, e, replaced)
				break
			}
		}
	}
}

// Len returns the number of cached keys
func (c *Cache) Len() int {
	return c.entries.Len()
}
