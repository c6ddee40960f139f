package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/liminalpurple/visionary-vault/internal/gallery"
	"github.com/liminalpurple/visionary-vault/internal/render"
)

const clearScreen = "\033[H\033[2J"

// NewWatchCmd creates the watch command
func NewWatchCmd() *cobra.Command {
	var (
		filter  filterFlags
		columns int
		refresh time.Duration
		measure bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the gallery grid and keep it up to date",
		Long: `Show the gallery grid and redraw it whenever the library changes.

The cached grid is drawn immediately and refreshed in the background. Edits
made by other clients arrive over the library's event feed; if the feed drops
the command reconnects and refetches everything. With --measure thumbnails
are downloaded in the background and tiles resize once their real
proportions are known.

The command runs until interrupted with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			filter.apply(a.gallery)

			out := cmd.OutOrStdout()
			cols := a.columns(columns)
			watcher := gallery.NewWatcher(a.gallery, a.signal, func(v gallery.View) {
				redraw(out, v, cols)
			}, gallery.WatchOptions{Refresh: refresh, Measure: measure})

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				errChan <- watcher.Run()
			}()

			select {
			case err := <-errChan:
				return err
			case sig := <-sigChan:
				a.log.WithField("signal", sig.String()).Info("Received signal")
			case <-cmd.Context().Done():
			}
			watcher.Stop()
			return <-errChan
		},
	}

	filter.register(cmd)
	cmd.Flags().IntVarP(&columns, "columns", "c", 0, "number of grid columns (default from config or terminal width)")
	cmd.Flags().DurationVar(&refresh, "refresh", 0, "also refetch everything at this interval (0 disables)")
	cmd.Flags().BoolVar(&measure, "measure", false, "measure thumbnails and resize tiles")
	return cmd
}

func redraw(out io.Writer, v gallery.View, columns int) {
	fmt.Fprint(out, clearScreen)
	if v.Loading && !v.Loaded {
		fmt.Fprintln(out, "Loading images...")
		return
	}
	_ = render.Grid(out, v, columns)
}
