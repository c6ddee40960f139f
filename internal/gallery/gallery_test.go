package gallery

import (
	"context"
	"image"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalpurple/visionary-vault/internal/cache"
	"github.com/liminalpurple/visionary-vault/internal/layout"
	"github.com/liminalpurple/visionary-vault/internal/library"
	"github.com/liminalpurple/visionary-vault/internal/remote"
	"github.com/liminalpurple/visionary-vault/internal/server"
)

type env struct {
	gallery  *Gallery
	cache    *cache.Cache
	client   *remote.Client
	notes    *remote.Recorder
	srv      *server.Server
	store    *library.Store
	thumbDir string
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
}

// newEnv runs the real library service over a temp SQLite store and points
// a gallery at it
func newEnv(t *testing.T) *env {
	return newEnvWithSignal(t, nil)
}

func newEnvWithSignal(t *testing.T, sig *Signal) *env {
	t.Helper()
	log, _ := test.NewNullLogger()
	ctx := context.Background()

	store, err := library.Open(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, img := range []library.Image{
		{ID: "a", CreatedAt: "2024-01-01", ImageSize: "512x768", Tags: "cat,portrait", Favorite: 1,
			Thumbnails: library.Thumbnails{Medium: "/thumbnails/medium/a.png"}},
		// declared square, the asset is actually 2:3
		{ID: "b", CreatedAt: "2024-01-02", ImageSize: "1024x1024", Tags: "cat",
			Thumbnails: library.Thumbnails{Medium: "/thumbnails/medium/b.png"}},
		{ID: "c", CreatedAt: "2024-01-03", ImageSize: "1024x768",
			Thumbnails: library.Thumbnails{Medium: "/thumbnails/medium/missing.png"}},
	} {
		require.NoError(t, store.Put(ctx, img))
	}

	thumbDir := t.TempDir()
	writePNG(t, filepath.Join(thumbDir, "medium", "a.png"), 64, 96)
	writePNG(t, filepath.Join(thumbDir, "medium", "b.png"), 64, 96)

	srv := server.New(store, server.Options{ThumbnailsDir: thumbDir, TopTags: 5}, log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	t.Cleanup(stopHub)
	go srv.Hub().Run(hubCtx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	notes := &remote.Recorder{}
	client, err := remote.NewClient(ts.URL, 5*time.Second, notes, log)
	require.NoError(t, err)

	cacheOpts := []cache.Option{cache.WithLogger(log)}
	layoutOpts := []layout.EngineOption{layout.WithLogger(log)}
	if sig != nil {
		cacheOpts = append(cacheOpts, cache.WithOnUpdate(func(cache.Key) { sig.Notify() }))
		layoutOpts = append(layoutOpts, layout.WithOnChange(func(string, int) { sig.Notify() }))
	}
	c, err := cache.New(client.Fetcher(), cacheOpts...)
	require.NoError(t, err)

	g, err := New(c, client, layout.NewEngine(10*time.Millisecond, layoutOpts...), WithLogger(log))
	require.NoError(t, err)

	return &env{gallery: g, cache: c, client: client, notes: notes, srv: srv, store: store, thumbDir: thumbDir}
}

func tileIDs(tiles []Tile) []string {
	ids := make([]string, 0, len(tiles))
	for _, tile := range tiles {
		ids = append(ids, tile.Image.ID)
	}
	return ids
}

func TestNew_RejectsUnknownTier(t *testing.T) {
	_, err := New(nil, nil, layout.NewEngine(0), WithTier("huge"))
	assert.Error(t, err)
}

func TestView_FilterAndFavorites(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.gallery

	v, err := g.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "All Images", v.Title)
	assert.Equal(t, []string{"c", "b", "a"}, tileIDs(v.Tiles))
	assert.Empty(t, v.Empty)

	spans := map[string]int{}
	for _, tile := range v.Tiles {
		spans[tile.Image.ID] = tile.Span
	}
	assert.Equal(t, map[string]int{"a": 45, "b": 30, "c": 23}, spans)
	assert.Equal(t, e.client.BaseURL()+"/thumbnails/medium/a.png", v.Tiles[2].ThumbnailURL)

	g.ToggleTag("cat")
	v, err = g.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, tileIDs(v.Tiles))
	assert.Equal(t, "All Images • Filtered by 1 tag", v.Title)

	g.SetFavoritesOnly(true)
	v, err = g.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tileIDs(v.Tiles))

	g.ToggleTag("dog")
	v, err = g.View(ctx)
	require.NoError(t, err)
	assert.Empty(t, v.Tiles)
	assert.Equal(t, "No images match the selected tags: cat, dog", v.Empty)

	g.ClearTags()
	tags, fav := g.Filter()
	assert.Empty(t, tags)
	assert.True(t, fav)
}

func TestSnapshot_ServesCachedWhileRevalidating(t *testing.T) {
	e := newEnv(t)
	g := e.gallery

	first := g.Snapshot()
	assert.False(t, first.Loaded)
	assert.True(t, first.Loading)
	assert.Empty(t, first.Tiles)

	e.cache.Wait()
	second := g.Snapshot()
	assert.True(t, second.Loaded)
	assert.False(t, second.Stale)
	assert.Len(t, second.Tiles, 3)

	g.Refresh()
	third := g.Snapshot()
	assert.True(t, third.Stale)
	assert.Len(t, third.Tiles, 3, "stale collection is still shown")
	e.cache.Wait()
}

// TestEditSave_InvalidatesViews covers an edit flowing through to the
// collection, the tag map and the statistics
func TestEditSave_InvalidatesViews(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.gallery

	_, err := g.View(ctx)
	require.NoError(t, err)
	tags, err := g.Tags(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []library.TagCount{{Tag: "cat", Count: 2}, {Tag: "portrait", Count: 1}}, tags)
	stats, err := g.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UntaggedImages)

	s := g.Session()
	require.NoError(t, s.Open(ctx, "c"))
	require.NoError(t, s.AddTag("sky"))
	require.NoError(t, s.ToggleFavorite())
	require.NoError(t, s.Save(ctx))

	notes := e.notes.Drain()
	require.NotEmpty(t, notes)
	assert.Equal(t, remote.LevelSuccess, notes[len(notes)-1].Level)

	g.SetFavoritesOnly(true)
	v, err := g.View(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, tileIDs(v.Tiles))

	tags, err = g.Tags(ctx, "sk")
	require.NoError(t, err)
	assert.Equal(t, []library.TagCount{{Tag: "sky", Count: 1}}, tags)

	stats, err = g.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.UntaggedImages)
	assert.Equal(t, 3, stats.TaggedImages)
}

// TestEditSave_LeavesTagFilter verifies a record whose tag was removed drops
// out of the collection filtered by that tag
func TestEditSave_LeavesTagFilter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.gallery

	g.ToggleTag("portrait")
	v, err := g.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tileIDs(v.Tiles))
	before, err := g.Tags(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, before, library.TagCount{Tag: "portrait", Count: 1})

	s := g.Session()
	require.NoError(t, s.Open(ctx, "a"))
	require.NoError(t, s.EditTags("cat, sky"))
	require.NoError(t, s.Save(ctx))

	res, ok := e.cache.Peek(cache.CollectionKey([]string{"portrait"}))
	require.True(t, ok)
	assert.True(t, res.Stale)

	v, err = g.View(ctx)
	require.NoError(t, err)
	assert.Empty(t, v.Tiles)
	assert.Equal(t, "No images match the selected tags: portrait", v.Empty)

	after, err := g.Tags(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []library.TagCount{{Tag: "cat", Count: 2}, {Tag: "sky", Count: 1}}, after)
}

func TestOpenMissingImage(t *testing.T) {
	e := newEnv(t)
	err := e.gallery.Session().Open(context.Background(), "nope")
	assert.ErrorIs(t, err, library.ErrNotFound)
	assert.NotEmpty(t, e.notes.Drain())
}

// TestMeasureTiles verifies a measured asset overrides a wrong declared size
func TestMeasureTiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	v, err := e.gallery.View(ctx)
	require.NoError(t, err)

	tiles, err := e.gallery.MeasureTiles(ctx, v.Tiles)
	require.NoError(t, err)

	spans := map[string]int{}
	for _, tile := range tiles {
		spans[tile.Image.ID] = tile.Span
	}
	assert.Equal(t, 45, spans["b"], "square declaration corrected from 2:3 thumbnail")
	assert.Equal(t, 45, spans["a"])
	assert.Equal(t, 23, spans["c"], "failed probe keeps declared span")
}

// TestFollow verifies a change made by another client marks cached views stale
func TestFollow(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := e.gallery.View(ctx)
	require.NoError(t, err)
	res, _ := e.cache.Peek(cache.CollectionKey(nil))
	require.False(t, res.Stale)

	done := make(chan error, 1)
	go func() { done <- e.gallery.Follow(ctx) }()
	assert.Eventually(t, func() bool { return e.srv.Hub().ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	prompt := "edited elsewhere"
	require.NoError(t, e.client.PatchImage(ctx, "a", library.Patch{Prompt: &prompt}))

	assert.Eventually(t, func() bool {
		res, _ := e.cache.Peek(cache.CollectionKey(nil))
		return res.Stale
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
