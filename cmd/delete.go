package cmd

import (
	"fmt"

	"github.com/iksnae/uistream/internal"
	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.DeleteSession(args[0]); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		internal.PrintSuccess("Session " + args[0] + " deleted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
