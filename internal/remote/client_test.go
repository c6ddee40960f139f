package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalpurple/visionary-vault/internal/cache"
	"github.com/liminalpurple/visionary-vault/internal/library"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *Recorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log, _ := test.NewNullLogger()
	rec := &Recorder{}
	client, err := NewClient(srv.URL, 5*time.Second, rec, log)
	require.NoError(t, err)
	return client, rec
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("ftp://example.com", time.Second, nil, nil)
	assert.Error(t, err)
	_, err = NewClient("://bad", time.Second, nil, nil)
	assert.Error(t, err)
}

// TestFetchCollection_SendsTagFilter verifies the tag filter travels as a comma list
func TestFetchCollection_SendsTagFilter(t *testing.T) {
	var gotTags string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/images", r.URL.Path)
		gotTags = r.URL.Query().Get("tags")
		writeJSON(w, []library.Image{{ID: "x", ImageSize: "1x1"}})
	}))

	images, err := client.FetchCollection(context.Background(), []string{"a", "b c"})
	require.NoError(t, err)
	assert.Equal(t, "a,b c", gotTags)
	require.Len(t, images, 1)
	assert.Equal(t, "x", images[0].ID)

	_, err = client.FetchCollection(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, gotTags)
}

// TestFetchImage_NotFound verifies a 404 maps to library.ErrNotFound and notifies
func TestFetchImage_NotFound(t *testing.T) {
	client, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "image not found", http.StatusNotFound)
	}))

	img, err := client.FetchImage(context.Background(), "missing")
	assert.Nil(t, img)
	assert.ErrorIs(t, err, library.ErrNotFound)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)

	notes := rec.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, LevelError, notes[0].Level)
	assert.Equal(t, "Failed to load image details. Please try again.", notes[0].Description)
}

// TestFetchFailuresNotify verifies every read reports failure without panicking
func TestFetchFailuresNotify(t *testing.T) {
	client, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	ctx := context.Background()

	_, err := client.FetchCollection(ctx, nil)
	assert.Error(t, err)
	_, err = client.FetchTagFrequency(ctx)
	assert.Error(t, err)
	stats, err := client.FetchStats(ctx)
	assert.Error(t, err)
	assert.Nil(t, stats)

	assert.Len(t, rec.Drain(), 3)
}

// TestPatchImage verifies the patch body and success notification
func TestPatchImage(t *testing.T) {
	var got map[string]any
	client, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/image/x", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		writeJSON(w, map[string]string{"status": "ok"})
	}))

	tags, prompt, fav := "a,c", "new prompt", 1
	err := client.PatchImage(context.Background(), "x", library.Patch{Tags: &tags, Prompt: &prompt, Favorite: &fav})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tags": "a,c", "prompt": "new prompt", "favorite": float64(1)}, got)

	notes := rec.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, LevelSuccess, notes[0].Level)
}

func TestPatchImage_Rejected(t *testing.T) {
	client, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))

	tags := "a"
	err := client.PatchImage(context.Background(), "x", library.Patch{Tags: &tags})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Equal(t, LevelError, rec.Drain()[0].Level)
}

func TestThumbnailURL(t *testing.T) {
	client, err := NewClient("http://localhost:8000/", time.Second, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/thumbnails/small/x.webp", client.ThumbnailURL("/thumbnails/small/x.webp"))
	assert.Equal(t, "http://localhost:8000/thumbnails/x.png", client.ThumbnailURL("thumbnails/x.png"))
	assert.Equal(t, "https://cdn.example/x.png", client.ThumbnailURL("https://cdn.example/x.png"))
	assert.Empty(t, client.ThumbnailURL(""))
	assert.Equal(t, "ws://localhost:8000/api/events", client.EventsURL())
}

// TestProbeThumbnail verifies measured dimensions come from the downloaded asset
func TestProbeThumbnail(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 60))))
	data := buf.Bytes()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/thumbnails/medium/x.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))

	raw, mime, err := client.DownloadThumbnail(context.Background(), "/thumbnails/medium/x.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, data, raw)

	dims, err := client.ProbeThumbnail(context.Background(), "/thumbnails/medium/x.png")
	require.NoError(t, err)
	assert.Equal(t, 40, dims.Width)
	assert.Equal(t, 60, dims.Height)

	_, err = client.ProbeThumbnail(context.Background(), "/thumbnails/medium/missing.png")
	assert.Error(t, err)
}

// TestProbeThumbnail_RejectsNonImage verifies a page served in place of a
// thumbnail is not handed to the decoder
func TestProbeThumbnail_RejectsNonImage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>login</body></html>"))
	}))

	_, err := client.ProbeThumbnail(context.Background(), "/thumbnails/medium/x.png")
	assert.ErrorIs(t, err, ErrNotImage)
	assert.ErrorContains(t, err, "text/html")
}

// TestFetcher verifies each cache key kind maps to its endpoint
func TestFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/images", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []library.Image{{ID: r.URL.Query().Get("tags")}})
	})
	mux.HandleFunc("/api/image/x", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, library.Image{ID: "x"})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, library.TagCounts{"a": 3})
	})
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, library.Stats{TotalImages: 1, UntaggedImages: 1, TopTags: []library.TagCount{}})
	})
	client, _ := newTestClient(t, mux)
	fetch := client.Fetcher()
	ctx := context.Background()

	v, err := fetch(ctx, cache.CollectionKey([]string{"b", "a"}))
	require.NoError(t, err)
	assert.Equal(t, "a,b", v.([]library.Image)[0].ID)

	v, err = fetch(ctx, cache.ImageKey("x"))
	require.NoError(t, err)
	assert.Equal(t, library.Image{ID: "x"}, v)

	v, err = fetch(ctx, cache.TagsKey())
	require.NoError(t, err)
	assert.Equal(t, library.TagCounts{"a": 3}, v)

	v, err = fetch(ctx, cache.StatsKey())
	require.NoError(t, err)
	assert.Equal(t, 1, v.(library.Stats).TotalImages)

	_, err = fetch(ctx, cache.Key{Kind: "bogus"})
	assert.Error(t, err)
}

// TestSubscribe verifies events from the feed reach the callback
func TestSubscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteJSON(library.Event{ID: "1", Type: library.EventImageUpdated, ImageID: "x"})
		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan library.Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- client.Subscribe(ctx, func(e library.Event) { received <- e })
	}()

	select {
	case evt := <-received:
		assert.Equal(t, "x", evt.ImageID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "image/jpeg", detectMimeType([]byte{0xFF, 0xD8, 0xFF, 0xE0}))
	assert.Equal(t, "image/webp", detectMimeType([]byte("RIFF\x00\x00\x00\x00WEBPVP8 ")))
	assert.Equal(t, "image/tiff", detectMimeType([]byte("II*\x00\x08\x00\x00\x00")))
	assert.Equal(t, "application/octet-stream", detectMimeType([]byte{1}))
}
