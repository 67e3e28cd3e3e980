package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iksnae/uistream/internal"
	"github.com/iksnae/uistream/internal/export"
	"github.com/spf13/cobra"
)

var (
	format     string
	outputDir  string
	sessionID  string
	writeIndex bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored sessions to file",
	Long: `Export stored sessions to various formats (jsonl, md, yaml, json).

You can export all sessions or a specific session by ID.
Use 'uistream list' to see available session IDs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		infos, err := store.ListSessions()
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		if sessionID != "" {
			filtered := make([]internal.SessionInfo, 0, 1)
			for _, info := range infos {
				if info.ID == sessionID {
					filtered = append(filtered, info)
					break
				}
			}
			if len(filtered) == 0 {
				return fmt.Errorf("session not found: %s (use 'uistream list' to see available sessions)", sessionID)
			}
			infos = filtered
		}

		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		ctx := context.Background()
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d session(s) to %s", len(infos), outputDir), func() error {
			for _, info := range infos {
				snapshot, err := store.LoadSession(info.ID)
				if err != nil {
					internal.LogError("Failed to load session %s: %v", info.ID, err)
					continue
				}
				session := &export.Session{
					ID:           info.ID,
					Title:        info.Title,
					Tree:         snapshot.Tree,
					Conversation: snapshot.Conversation,
				}

				filename := fmt.Sprintf("session_%s.%s", info.ID, exporter.Extension())
				path := filepath.Join(outputDir, filename)

				file, err := os.Create(path)
				if err != nil {
					internal.LogError("Failed to create file %s: %v", path, err)
					continue
				}
				if err := exporter.Export(session, file); err != nil {
					_ = file.Close()
					internal.LogError("Failed to export session %s: %v", info.ID, err)
					continue
				}
				if err := file.Close(); err != nil {
					internal.LogWarn("Failed to close file %s: %v", path, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		if writeIndex {
			indexPath := filepath.Join(outputDir, "index.yaml")
			if err := store.WriteIndex(indexPath); err != nil {
				internal.LogWarn("Failed to write index: %v", err)
			}
		}

		internal.PrintSuccess(fmt.Sprintf("Export complete: %d session(s) exported to %s", len(infos), outputDir))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().StringVar(&sessionID, "session-id", "", "Export a specific session by ID")
	exportCmd.Flags().BoolVar(&writeIndex, "index", false, "Also write an index.yaml of exported sessions")
}
