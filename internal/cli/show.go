package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liminalpurple/visionary-vault/internal/library"
	"github.com/liminalpurple/visionary-vault/internal/render"
)

// NewShowCmd creates the show command
func NewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one image's metadata",
		Long: `Show every metadata field of one image: prompt, tags, favorite flag,
generation settings, size and the thumbnail URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			session := a.gallery.Session()
			if err := session.Open(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, library.ErrNotFound) {
					return fmt.Errorf("image %s not found", args[0])
				}
				return err
			}
			defer session.Close()

			img, _ := session.Record()
			thumb := a.client.ThumbnailURL(img.Thumbnail(a.cfg.Gallery.ThumbnailSize))
			return render.Detail(cmd.OutOrStdout(), img, thumb)
		},
	}
}
