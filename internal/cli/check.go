package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/liminalpurple/visionary-vault/internal/cache"
	"github.com/liminalpurple/visionary-vault/internal/gallery"
	"github.com/liminalpurple/visionary-vault/internal/library"
)

const feedProbeTime = 2 * time.Second

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the connection to the library and the gallery pipeline",
		Long: `Check that all components are working correctly:

  - Configuration loads properly
  - The library service is reachable
  - The collection, tag map and statistics can be fetched
  - Thumbnails can be downloaded and measured
  - The event feed accepts connections

This is useful for verifying setup before running watch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runCheck(ctx context.Context, out io.Writer) error {
	fail := func(err error) error {
		fmt.Fprintf(out, "❌\n   Error: %v\n", err)
		return err
	}

	fmt.Fprintln(out, "🧪 Running vault checks...")
	fmt.Fprintln(out)

	fmt.Fprint(out, "📋 Loading configuration... ")
	a, err := newApp()
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(out, "✅\n   Library: %s\n", a.client.BaseURL())

	fmt.Fprint(out, "🔌 Contacting library... ")
	stats, err := a.gallery.Stats(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(out, "✅\n   %d images, %d tagged\n", stats.TotalImages, stats.TaggedImages)

	fmt.Fprint(out, "📊 Verifying statistics... ")
	if err := stats.Validate(); err != nil {
		return fail(err)
	}
	fmt.Fprintln(out, "✅")

	fmt.Fprint(out, "🖼️  Fetching collection... ")
	v, err := a.gallery.View(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(out, "✅\n   %d images\n", len(v.Tiles))
	if len(v.Tiles) != stats.TotalImages {
		fmt.Fprintf(out, "   ⚠️  statistics report %d images\n", stats.TotalImages)
	}

	fmt.Fprint(out, "🏷️  Fetching tag map... ")
	value, err := a.cache.Load(ctx, cache.TagsKey())
	if err != nil {
		return fail(err)
	}
	counts, _ := value.(library.TagCounts)
	fmt.Fprintf(out, "✅\n   %d distinct tags\n", len(counts))
	fmt.Fprintln(out)

	if err := checkThumbnails(ctx, out, a.gallery, v.Tiles); err != nil {
		return err
	}

	fmt.Fprint(out, "📡 Connecting to event feed... ")
	feedCtx, cancel := context.WithTimeout(ctx, feedProbeTime)
	defer cancel()
	if err := a.client.Subscribe(feedCtx, func(library.Event) {}); err != nil {
		return fail(err)
	}
	fmt.Fprintln(out, "✅")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "🎉 All checks passed! The gallery is ready.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "To browse the library, run:")
	fmt.Fprintln(out, "  vault watch")
	fmt.Fprintln(out)
	return nil
}

// checkThumbnails measures up to a handful of tiles and reports span corrections
func checkThumbnails(ctx context.Context, out io.Writer, g *gallery.Gallery, tiles []gallery.Tile) error {
	const sample = 5

	fmt.Fprint(out, "📐 Measuring thumbnails... ")
	if len(tiles) == 0 {
		fmt.Fprintln(out, "⏭️  no images")
		return nil
	}
	tiles = tiles[:min(sample, len(tiles))]

	measured, err := g.MeasureTiles(ctx, tiles)
	if err != nil {
		fmt.Fprintf(out, "❌\n   Error: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "✅")
	for i, tile := range measured {
		note := ""
		if tile.Span != tiles[i].Span {
			note = fmt.Sprintf(" (declared %d)", tiles[i].Span)
		}
		fmt.Fprintf(out, "   %s: span %d%s\n", tile.Image.ID, tile.Span, note)
	}
	fmt.Fprintln(out)
	return nil
}
