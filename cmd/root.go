package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iksnae/uistream/internal"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	storePath  string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "uistream",
	Short: "Stream agent-generated UI trees and manage the resulting sessions",
	Long: `A CLI client for agent endpoints that stream declarative UI patches.

uistream sends a prompt to a streaming endpoint, applies the returned
patch stream to a local element tree, and persists the finished session
(tree plus conversation) for later inspection and export.

Quick Start:
  uistream send "build me a dashboard"   # Stream a new turn
  uistream list                          # List stored sessions
  uistream show <session-id>             # Inspect a session's tree
  uistream export --format md            # Export sessions as Markdown
  uistream replay transcript.ndjson      # Re-apply a recorded stream offline`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file given by --config, falling back to the
// default location.
func loadConfig() (*internal.Config, error) {
	path := configPath
	if path == "" {
		path = internal.DefaultConfigPath()
	}
	cfg, err := internal.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStore opens the session database given by --store, defaulting to
// ~/.local/share/uistream/sessions.db.
func openStore() (*internal.SessionStore, error) {
	path := storePath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".local", "share", "uistream", "sessions.db")
	}
	store, err := internal.OpenSessionStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return store, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file location (default ~/.config/uistream/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Session database location (default ~/.local/share/uistream/sessions.db)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
