package cmd

import (
	"fmt"

	"github.com/iksnae/uistream/internal"
	"github.com/spf13/cobra"
)

var configEndpoint string

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write a starter config file",
	Long: `Write a config file with the built-in defaults to the --config location
(default ~/.config/uistream/config.yaml). Pass --endpoint to set the
streaming endpoint in the same step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = internal.DefaultConfigPath()
		}

		cfg := internal.DefaultConfig()
		cfg.Endpoint = configEndpoint
		if err := internal.SaveConfig(path, cfg); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		internal.PrintSuccess("Config written to " + path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().StringVar(&configEndpoint, "endpoint", "", "Streaming endpoint URL to record in the config")
}
