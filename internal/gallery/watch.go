package gallery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liminalpurple/visionary-vault/internal/layout"
)

// Signal coalesces change notifications into a single pending wake-up
type Signal struct {
	ch chan struct{}
}

// NewSignal creates a signal
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify records a change. It never blocks.
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the channel receiving one value per batch of notifications
func (s *Signal) C() <-chan struct{} {
	return s.ch
}

// WatchOptions configures a Watcher
type WatchOptions struct {
	Refresh    time.Duration // periodic full refresh, 0 disables
	RetryDelay time.Duration // wait before reconnecting to the event feed
	Measure    bool          // probe thumbnails to correct declared sizes
}

// Watcher keeps a rendering up to date: it redraws whenever a cached query
// or a span changes, follows the library's event feed and refreshes
// periodically
type Watcher struct {
	gallery  *Gallery
	signal   *Signal
	redraw   func(View)
	opts     WatchOptions
	ctx      context.Context
	cancel   context.CancelFunc
	log      logrus.FieldLogger
	mu       sync.Mutex
	measured map[string]bool
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher. signal must be the one wired to the cache's
// and the layout engine's change callbacks.
func NewWatcher(g *Gallery, signal *Signal, redraw func(View), opts WatchOptions) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	return &Watcher{
		gallery:  g,
		signal:   signal,
		redraw:   redraw,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		log:      g.log.WithField("component", "watch"),
		measured: make(map[string]bool),
	}
}

// Run draws the gallery and keeps redrawing until Stop is called
func (w *Watcher) Run() error {
	w.log.Info("Watching gallery for changes")
	defer w.wg.Wait()

	measurements := make(chan layout.AssetDimensions)
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.follow()
	}()
	go func() {
		defer w.wg.Done()
		if err := w.gallery.layout.Run(w.ctx, measurements); err != nil && !errors.Is(err, context.Canceled) {
			w.log.WithError(err).Warn("Layout loop stopped")
		}
	}()

	var tick <-chan time.Time
	if w.opts.Refresh > 0 {
		ticker := time.NewTicker(w.opts.Refresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.draw(measurements)
	for {
		select {
		case <-w.signal.C():
			w.draw(measurements)

		case <-tick:
			w.gallery.Refresh()
			w.draw(measurements)

		case <-w.ctx.Done():
			w.log.Info("Watch loop stopped")
			return nil
		}
	}
}

// Stop ends Run
func (w *Watcher) Stop() {
	w.cancel()
}

func (w *Watcher) draw(measurements chan<- layout.AssetDimensions) {
	v := w.gallery.Snapshot()
	w.redraw(v)

	if !w.opts.Measure {
		return
	}
	var fresh []Tile
	w.mu.Lock()
	for _, tile := range v.Tiles {
		if !w.measured[tile.Image.ID] {
			w.measured[tile.Image.ID] = true
			fresh = append(fresh, tile)
		}
	}
	w.mu.Unlock()
	if len(fresh) == 0 {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		_ = w.gallery.ProbeTiles(w.ctx, fresh, func(d layout.AssetDimensions) {
			select {
			case measurements <- d:
			case <-w.ctx.Done():
			}
		})
	}()
}

// follow keeps the event feed connected, retrying after failures
func (w *Watcher) follow() {
	for {
		err := w.gallery.follow(w.ctx, w.signal.Notify)
		if w.ctx.Err() != nil {
			return
		}
		w.log.WithError(err).WithField("retry_in", w.opts.RetryDelay.String()).Warn("Event feed lost")

		select {
		case <-time.After(w.opts.RetryDelay):
			// changes made while disconnected were missed
			w.gallery.Refresh()
			w.signal.Notify()
		case <-w.ctx.Done():
			return
		}
	}
}
