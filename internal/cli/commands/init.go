package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chatdesk-dev/chatdesk/internal/cli/config"
)

// NewInitCmd creates the init command
func NewInitCmd() *cobra.Command {
	var docsURL string

	cmd := &cobra.Command{
		Use:   "init [api-url]",
		Short: "Create a chatdesk.json in the current directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			currentDir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}
			apiURL := config.DefaultAPIURL
			if len(args) > 0 {
				apiURL = args[0]
			}
			return runInit(cmd.OutOrStdout(), currentDir, apiURL, docsURL)
		},
	}

	cmd.Flags().StringVar(&docsURL, "docs-url", "", "Base URL of the document backend (defaults to api-url)")

	return cmd
}

func runInit(out io.Writer, dir, apiURL, docsURL string) error {
	configPath := filepath.Join(dir, config.ConfigFileName)

	cfg := config.DefaultConfig()
	isNewConfig := true
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load existing config: %w", err)
		}
		isNewConfig = false
	}

	cfg.APIURL = apiURL
	if docsURL != "" {
		cfg.APIURL2 = docsURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := config.Save(configPath, cfg); err != nil {
		return err
	}

	if isNewConfig {
		fmt.Fprintf(out, "✓ Created ./%s for %s\n", config.ConfigFileName, cfg.APIURL)
	} else {
		fmt.Fprintf(out, "✓ Updated ./%s for %s\n", config.ConfigFileName, cfg.APIURL)
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Run 'chatdesk register' or 'chatdesk login' to authenticate")
	fmt.Fprintln(out, "  2. Run 'chatdesk chat' to start a conversation")

	return nil
}
