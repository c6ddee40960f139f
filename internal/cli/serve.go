package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liminalpurple/visionary-vault/internal/library"
	"github.com/liminalpurple/visionary-vault/internal/server"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var (
		listen     string
		database   string
		thumbnails string
		seed       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local library service",
		Long: `Run the HTTP service the gallery talks to.

Image metadata is kept in a SQLite database; thumbnails are served from a
directory laid out as <dir>/<tier>/<file>. Every change made through the API
is broadcast to connected clients over /api/events. Prometheus metrics are
exposed on /metrics.

--seed loads image records from a JSON array before starting, replacing
records with the same id.

The service runs until interrupted with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen = listen
			}
			if cmd.Flags().Changed("db") {
				cfg.Server.Database = database
			}
			if cmd.Flags().Changed("thumbnails") {
				cfg.Server.ThumbnailsDir = thumbnails
			}

			store, err := library.Open(cfg.Server.Database)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if seed != "" {
				n, err := seedStore(ctx, store, seed)
				if err != nil {
					return err
				}
				log.WithField("images", n).Info("Seeded library")
			}

			srv := server.New(store, server.Options{
				ThumbnailsDir: cfg.Server.ThumbnailsDir,
				TopTags:       cfg.Server.TopTags,
			}, log)

			ctx, stop := signalContext(ctx)
			defer stop()
			return srv.Run(ctx, cfg.Server.Listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config)")
	cmd.Flags().StringVar(&database, "db", "", "SQLite database path (default from config)")
	cmd.Flags().StringVar(&thumbnails, "thumbnails", "", "thumbnail directory (default from config)")
	cmd.Flags().StringVar(&seed, "seed", "", "JSON file of image records to load")
	return cmd
}

// seedStore puts every record of the JSON array at path into store
func seedStore(ctx context.Context, store *library.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}
	var images []library.Image
	if err := json.Unmarshal(data, &images); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for _, img := range images {
		if err := store.Put(ctx, img); err != nil {
			return 0, fmt.Errorf("failed to seed image %q: %w", img.ID, err)
		}
	}
	return len(images), nil
}

// signalContext is cancelled on interrupt or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
