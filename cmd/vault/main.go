package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liminalpurple/visionary-vault/internal/cli"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "vault",
		Short: "Gallery client for an AI image library",
		Long: `Visionary Vault - browse, filter and curate a library of generated images.

Filter the gallery by tags and favorites, view it as a masonry grid that
follows each image's proportions, and edit tags, prompts and favorites.
The serve command runs the local library service the client talks to.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cli.NewServeCmd())
	rootCmd.AddCommand(cli.NewListCmd())
	rootCmd.AddCommand(cli.NewShowCmd())
	rootCmd.AddCommand(cli.NewEditCmd())
	rootCmd.AddCommand(cli.NewTagsCmd())
	rootCmd.AddCommand(cli.NewStatsCmd())
	rootCmd.AddCommand(cli.NewWatchCmd())
	rootCmd.AddCommand(cli.NewCheckCmd())
	rootCmd.AddCommand(cli.NewInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
