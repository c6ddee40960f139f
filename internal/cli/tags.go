package cli

import (
	"github.com/spf13/cobra"

	"github.com/liminalpurple/visionary-vault/internal/render"
)

// NewTagsCmd creates the tags command
func NewTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags [query]",
		Short: "List tags by how many images carry them",
		Long: `List every tag in the library with the number of images carrying it,
most used first. An optional query keeps only tags containing it
(case-insensitive).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			pairs, err := a.gallery.Tags(cmd.Context(), query)
			if err != nil {
				return err
			}
			return render.Tags(cmd.OutOrStdout(), pairs)
		},
	}
}

// NewStatsCmd creates the stats command
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show library statistics",
		Long:  `Show how many images the library holds, how many are tagged, and the most used tags.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			stats, err := a.gallery.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return render.Stats(cmd.OutOrStdout(), stats)
		},
	}
}
