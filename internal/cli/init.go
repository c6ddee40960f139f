package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liminalpurple/visionary-vault/internal/config"
)

// NewInitCmd creates the init command
func NewInitCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the current settings",
		Long: `Write config.yaml to the config directory with the effective settings:
defaults, overridden by any existing config file, .env file and VAULT_*
environment variables.

The config directory is $VAULT_CONFIG_DIR, $XDG_CONFIG_HOME/visionary-vault
or ~/.config/visionary-vault, whichever is set first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if baseURL != "" {
				cfg.API.BaseURL = baseURL
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			path, err := config.Save(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Configuration saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "api", "", "library service URL")
	return cmd
}
