package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liminalpurple/visionary-vault/internal/render"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	var (
		filter  filterFlags
		columns int
		table   bool
		measure bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the gallery grid",
		Long: `Show the images of the library as a masonry grid.

Images can be narrowed down by tags (an image must carry every selected tag)
and to favorites only. Each tile's height follows the image's aspect ratio.
With --measure the thumbnails are downloaded to correct sizes the library
records wrongly.`,
		Example: `  vault list
  vault list --tags cat,portrait --favorites
  vault list --table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			filter.apply(a.gallery)

			v, err := a.gallery.View(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load gallery: %w", err)
			}
			if measure && len(v.Tiles) > 0 {
				tiles, err := a.gallery.MeasureTiles(cmd.Context(), v.Tiles)
				if err != nil {
					return err
				}
				v.Tiles = tiles
			}

			if table {
				if len(v.Tiles) == 0 {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), v.Empty)
					return err
				}
				return render.Table(cmd.OutOrStdout(), v.Tiles)
			}
			return render.Grid(cmd.OutOrStdout(), v, a.columns(columns))
		},
	}

	filter.register(cmd)
	cmd.Flags().IntVarP(&columns, "columns", "c", 0, "number of grid columns (default from config or terminal width)")
	cmd.Flags().BoolVar(&table, "table", false, "print a table instead of a grid")
	cmd.Flags().BoolVar(&measure, "measure", false, "measure thumbnails before laying out")
	return cmd
}
