// Package cli provides the command-line interface for glass.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/glasshq/glass/internal/config"
)

// NewRootCmd creates the root command for glass.
func NewRootCmd(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "glass [url]",
		Short: "An embeddable Chromium-based browser core",
		Long: `Glass runs a Chromium engine out of process and manages tabs,
sessions, and rendering state for an embedding shell.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := ""
			if len(args) > 0 {
				url = args[0]
			}
			return runBrowse(cmd.Context(), url)
		},
	}

	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
	rootCmd.AddCommand(NewBrowseCmd())
	rootCmd.AddCommand(NewConfigCmd())
	return rootCmd
}

// loadConfig builds and loads the configuration manager.
func loadConfig() (*config.Manager, error) {
	manager, err := config.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}
	if err := manager.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return manager, nil
}

// Execute runs the root command.
func Execute(version, commit, buildDate string) {
	if err := NewRootCmd(version, commit, buildDate).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
