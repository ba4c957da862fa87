package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glasshq/glass/internal/config"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Generate the JSON schema for the config file",
		RunE: func(_ *cobra.Command, _ []string) error {
			return config.GenerateSchemaFile()
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration directory",
		RunE: func(_ *cobra.Command, _ []string) error {
			dir, err := config.GetConfigDir()
			if err != nil {
				return err
			}
			fmt.Println(dir)
			return nil
		},
	})

	return configCmd
}
