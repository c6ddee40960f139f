// Package gallery ties the query cache, filter state, view composer, layout
// engine and edit session into the state a rendering layer draws from.
package gallery

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/liminalpurple/visionary-vault/internal/cache"
	"github.com/liminalpurple/visionary-vault/internal/edit"
	"github.com/liminalpurple/visionary-vault/internal/filter"
	"github.com/liminalpurple/visionary-vault/internal/layout"
	"github.com/liminalpurple/visionary-vault/internal/library"
	"github.com/liminalpurple/visionary-vault/internal/view"
)

// Thumbnail size tiers
const (
	TierSmall  = "small"
	TierMedium = "medium"
	TierLarge  = "large"
)

const probeConcurrency = 4

// Backend is the remote library as seen by the gallery
type Backend interface {
	edit.Patcher
	ThumbnailURL(path string) string
	ProbeThumbnail(ctx context.Context, path string) (layout.Dimensions, error)
	Subscribe(ctx context.Context, fn func(library.Event)) error
}

// Tile is one grid cell
type Tile struct {
	Image        library.Image
	Span         int
	ThumbnailURL string
}

// View is everything needed to draw the grid for the current filter
type View struct {
	Title   string
	Tags    []string // selected tags, selection order
	Tiles   []Tile
	Empty   string // message for an empty grid, "" when there are tiles
	Loaded  bool   // the collection has been fetched at least once
	Stale   bool   // the collection may be out of date
	Loading bool   // a fetch is in flight
	Err     error  // last fetch error of the collection
}

// Gallery is the client state of one user session
type Gallery struct {
	mu      sync.Mutex
	filter  filter.State
	tier    string
	cache   *cache.Cache
	backend Backend
	layout  *layout.Engine
	session *edit.Session
	log     logrus.FieldLogger
}

// Option configures a Gallery
type Option func(*Gallery)

// WithTier selects the thumbnail size tier
func WithTier(tier string) Option {
	return func(g *Gallery) { g.tier = tier }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Gallery) { g.log = log }
}

// New creates a gallery on top of c and backend
func New(c *cache.Cache, backend Backend, engine *layout.Engine, opts ...Option) (*Gallery, error) {
	g := &Gallery{
		tier:    TierMedium,
		cache:   c,
		backend: backend,
		layout:  engine,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	switch g.tier {
	case TierSmall, TierMedium, TierLarge:
	default:
		return nil, fmt.Errorf("unknown thumbnail size %q (want small, medium or large)", g.tier)
	}
	g.log = g.log.WithField("component", "gallery")
	g.session = edit.NewSession(c, backend, g.log)
	return g, nil
}

// Session returns the gallery's edit session. There is exactly one.
func (g *Gallery) Session() *edit.Session {
	return g.session
}

// Layout returns the layout engine
func (g *Gallery) Layout() *layout.Engine {
	return g.layout
}

// ToggleTag adds or removes a tag from the filter
func (g *Gallery) ToggleTag(tag string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filter.ToggleTag(tag)
}

// ClearTags empties the tag filter
func (g *Gallery) ClearTags() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filter.Clear()
}

// SetFavoritesOnly sets the favorites toggle
func (g *Gallery) SetFavoritesOnly(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filter.SetFavoritesOnly(on)
}

// Filter returns the selected tags and the favorites toggle
func (g *Gallery) Filter() ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter.Tags(), g.filter.FavoritesOnly()
}

func (g *Gallery) filterSnapshot() ([]string, bool, cache.Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter.Tags(), g.filter.FavoritesOnly(), g.filter.Key()
}

// Snapshot returns the view from whatever is cached, without waiting.
// A stale or missing collection is refetched in the background.
func (g *Gallery) Snapshot() View {
	tags, fav, key := g.filterSnapshot()
	res := g.cache.Get(key)
	images, _ := res.Value.([]library.Image)

	v := g.compose(tags, fav, images)
	v.Loaded = res.Loaded
	v.Stale = res.Stale
	v.Loading = res.Fetching || (!res.Loaded && res.Err == nil)
	v.Err = res.Err
	return v
}

// View loads the collection for the current filter, waiting for the network
// when the cached copy is stale, and composes the grid. When the fetch fails
// and an older collection is cached, that collection is shown along with the error.
func (g *Gallery) View(ctx context.Context) (View, error) {
	tags, fav, key := g.filterSnapshot()
	value, err := g.cache.Load(ctx, key)
	images, _ := value.([]library.Image)
	if err != nil && images == nil {
		return View{Title: view.Title(tags, fav), Tags: tags, Err: err}, err
	}

	v := g.compose(tags, fav, images)
	v.Loaded = true
	v.Stale = err != nil
	v.Err = err
	return v, nil
}

func (g *Gallery) compose(tags []string, fav bool, images []library.Image) View {
	visible := view.Compose(images, fav)
	v := View{
		Title: view.Title(tags, fav),
		Tags:  tags,
		Tiles: make([]Tile, 0, len(visible)),
	}
	for _, img := range visible {
		v.Tiles = append(v.Tiles, Tile{
			Image:        img,
			Span:         g.layout.Declare(img),
			ThumbnailURL: g.backend.ThumbnailURL(img.Thumbnail(g.tier)),
		})
	}
	if len(v.Tiles) == 0 {
		v.Empty = view.EmptyMessage(tags, fav)
	}
	return v
}

// Tags returns the tag frequency pairs matching query, most used first
func (g *Gallery) Tags(ctx context.Context, query string) ([]library.TagCount, error) {
	value, err := g.cache.Load(ctx, cache.TagsKey())
	counts, _ := value.(library.TagCounts)
	if counts == nil {
		return nil, err
	}
	return counts.Search(query), err
}

// Stats returns the library statistics
func (g *Gallery) Stats(ctx context.Context) (library.Stats, error) {
	value, err := g.cache.Load(ctx, cache.StatsKey())
	stats, ok := value.(library.Stats)
	if !ok {
		if err == nil {
			err = fmt.Errorf("unexpected cached statistics %T", value)
		}
		return library.Stats{}, err
	}
	return stats, err
}

// Refresh marks the collections, tag map and statistics stale
func (g *Gallery) Refresh() {
	g.cache.InvalidateViews()
	g.log.Debug("Views marked stale")
}

// Follow applies the library's change events as cache invalidations until
// ctx is done or the feed fails
func (g *Gallery) Follow(ctx context.Context) error {
	return g.follow(ctx, nil)
}

// follow runs after, if set, once each event has been applied
func (g *Gallery) follow(ctx context.Context, after func()) error {
	return g.backend.Subscribe(ctx, func(evt library.Event) {
		log := g.log.WithFields(logrus.Fields{"event_id": evt.ID, "type": evt.Type})
		switch {
		case evt.Type == library.EventImageUpdated && evt.ImageID != "":
			g.cache.InvalidateImage(evt.ImageID)
			log.WithField("image_id", evt.ImageID).Debug("Image changed remotely")
		default:
			g.cache.InvalidateViews()
			log.Debug("Library changed remotely")
		}
		if after != nil {
			after()
		}
	})
}

// ProbeTiles downloads the thumbnail of every tile and calls fn with the
// measured dimensions of each one that loaded. fn may be called concurrently.
func (g *Gallery) ProbeTiles(ctx context.Context, tiles []Tile, fn func(layout.AssetDimensions)) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(probeConcurrency)

	for _, tile := range tiles {
		path := tile.Image.Thumbnail(g.tier)
		if path == "" {
			continue
		}
		id := tile.Image.ID
		eg.Go(func() error {
			dims, err := g.backend.ProbeThumbnail(egCtx, path)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				g.log.WithField("image_id", id).WithError(err).Debug("Thumbnail probe failed, keeping declared span")
				return nil
			}
			fn(layout.AssetDimensions{ID: id, Width: dims.Width, Height: dims.Height})
			return nil
		})
	}
	return eg.Wait()
}

// MeasureTiles probes every tile's thumbnail, applies the measurements to
// the layout engine at once and returns the tiles with updated spans.
// Thumbnails that fail to load keep their declared span.
func (g *Gallery) MeasureTiles(ctx context.Context, tiles []Tile) ([]Tile, error) {
	err := g.ProbeTiles(ctx, tiles, g.layout.Measured)
	g.layout.Flush()

	out := make([]Tile, len(tiles))
	for i, tile := range tiles {
		tile.Span = g.layout.Span(tile.Image.ID)
		out[i] = tile
	}
	return out, err
}
