// Package cli implements the vault subcommands.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/liminalpurple/visionary-vault/internal/cache"
	"github.com/liminalpurple/visionary-vault/internal/config"
	"github.com/liminalpurple/visionary-vault/internal/gallery"
	"github.com/liminalpurple/visionary-vault/internal/layout"
	"github.com/liminalpurple/visionary-vault/internal/remote"
	"github.com/liminalpurple/visionary-vault/internal/render"
)

// app is the client side wired together from configuration
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	client  *remote.Client
	cache   *cache.Cache
	gallery *gallery.Gallery
	signal  *gallery.Signal
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// newApp builds the client, cache, layout engine and gallery. Change
// notifications from the cache and the layout engine go to app.signal.
func newApp() (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	client, err := remote.NewClient(cfg.API.BaseURL, cfg.API.Timeout, remote.LogNotifier{Log: log}, log)
	if err != nil {
		return nil, err
	}

	signal := gallery.NewSignal()
	c, err := cache.New(client.Fetcher(),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithFetchTimeout(cfg.Cache.FetchTimeout),
		cache.WithLogger(log),
		cache.WithOnUpdate(func(cache.Key) { signal.Notify() }),
	)
	if err != nil {
		return nil, err
	}

	engine := layout.NewEngine(cfg.Layout.SettleDelay,
		layout.WithLogger(log),
		layout.WithOnChange(func(string, int) { signal.Notify() }),
	)

	g, err := gallery.New(c, client, engine,
		gallery.WithTier(cfg.Gallery.ThumbnailSize),
		gallery.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, client: client, cache: c, gallery: g, signal: signal}, nil
}

// columns returns the configured column count or one derived from the terminal
func (a *app) columns(flag int) int {
	if flag > 0 {
		return flag
	}
	if a.cfg.Gallery.Columns > 0 {
		return a.cfg.Gallery.Columns
	}
	return render.Columns(render.TerminalWidth(os.Stdout, 80))
}

// filterFlags are the tag filter and favorites toggle shared by list and watch
type filterFlags struct {
	tags      []string
	favorites bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.tags, "tags", "t", nil, "only show images carrying all of these tags")
	cmd.Flags().BoolVarP(&f.favorites, "favorites", "f", false, "only show favorite images")
}

func (f *filterFlags) apply(g *gallery.Gallery) {
	for _, tag := range f.tags {
		if tag = strings.TrimSpace(tag); tag != "" && !contains(g, tag) {
			g.ToggleTag(tag)
		}
	}
	g.SetFavoritesOnly(f.favorites)
}

func contains(g *gallery.Gallery, tag string) bool {
	tags, _ := g.Filter()
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
