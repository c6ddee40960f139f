package gallery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalpurple/visionary-vault/internal/library"
)

func TestSignal_Coalesces(t *testing.T) {
	s := NewSignal()
	s.Notify()
	s.Notify()
	s.Notify()

	<-s.C()
	select {
	case <-s.C():
		t.Fatal("notifications should coalesce")
	default:
	}
}

// TestWatcher_RedrawsOnChanges verifies the watcher draws the loaded
// collection, applies measured spans and picks up remote edits
func TestWatcher_RedrawsOnChanges(t *testing.T) {
	sig := NewSignal()
	e := newEnvWithSignal(t, sig)

	var mu sync.Mutex
	var last View
	redraw := func(v View) {
		mu.Lock()
		defer mu.Unlock()
		last = v
	}
	current := func() View {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
	span := func(v View, id string) int {
		for _, tile := range v.Tiles {
			if tile.Image.ID == id {
				return tile.Span
			}
		}
		return 0
	}

	w := NewWatcher(e.gallery, sig, redraw, WatchOptions{Measure: true, RetryDelay: 50 * time.Millisecond})
	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	assert.Eventually(t, func() bool {
		v := current()
		return v.Loaded && len(v.Tiles) == 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return span(current(), "b") == 45 }, 2*time.Second, 5*time.Millisecond,
		"measured thumbnail corrects the declared square")

	assert.Eventually(t, func() bool { return e.srv.Hub().ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	fav := 1
	require.NoError(t, e.client.PatchImage(context.Background(), "b", library.Patch{Favorite: &fav}))

	assert.Eventually(t, func() bool {
		for _, tile := range current().Tiles {
			if tile.Image.ID == "b" && tile.Image.IsFavorite() {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	w.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
