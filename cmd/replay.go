package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/iksnae/uistream/internal"
	"github.com/spf13/cobra"
)

var (
	replaySessionID string
	replayTitle     string
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay <transcript>",
	Short: "Re-apply a recorded stream transcript offline",
	Long: `Replay a recorded stream transcript (the raw data: lines of a previous
response) through the patch engine without contacting any endpoint.

The rebuilt tree is printed, and with --session it is also saved to the
session store. Useful for inspecting captured streams and reproducing
patch application issues.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		defer func() { _ = file.Close() }()

		state := internal.NewSessionState()
		state.Init()
		state.EnsureTree()

		turn := internal.CreatePendingTurn("replay of "+args[0], false, nil)
		state.AppendTurn(turn)

		scheduler := internal.NewManualScheduler()
		pipeline := internal.NewPatchPipeline(scheduler, internal.DefaultMaxBufferedPatches, nil, func(patches []internal.Patch) {
			state.ApplyPatchBatch(patches, internal.ApplyOptions{TurnID: turn.ID})
		})

		// A file never stalls; the watchdog only guards against a parser
		// handler deadlock.
		err = internal.ReadStream(context.Background(), file, time.Minute, func(event *internal.WireEvent) error {
			return replayEvent(state, turn, pipeline, event)
		})
		if err != nil {
			return fmt.Errorf("replay failed: %w", err)
		}
		pipeline.Flush()

		if err := internal.FinalizeTurn(turn, state.Tree()); err != nil {
			return fmt.Errorf("failed to finalize replayed turn: %w", err)
		}
		state.PublishTurn(turn)

		fmt.Println(renderTree(state.Tree()))
		for _, msg := range turn.AssistantMessages {
			fmt.Println(msg.Content)
		}
		if out := renderToolProgress(turn.ToolProgress); out != "" {
			fmt.Println(out)
		}

		if replaySessionID != "" {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			snapshot, err := state.SnapshotSession()
			if err != nil {
				return fmt.Errorf("failed to snapshot session: %w", err)
			}
			title := replayTitle
			if title == "" {
				title = "replay of " + args[0]
			}
			if err := store.SaveSession(replaySessionID, title, snapshot); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}
			internal.PrintSuccess("Session " + replaySessionID + " saved")
		}
		return nil
	},
}

// replayEvent mirrors the live dispatch for the event kinds that matter
// offline. Control and progress events only adjust ephemeral state.
func replayEvent(state *internal.SessionState, turn *internal.ConversationTurn, pipeline *internal.PatchPipeline, event *internal.WireEvent) error {
	switch event.Kind {
	case internal.EventPatch:
		pipeline.Push(event.Patches, event.Atomic)
	case internal.EventMessage:
		internal.ApplyMessageEvent(turn, event.Message)
	case internal.EventQuestion:
		turn.Questions = append(turn.Questions, event.Question)
	case internal.EventSuggestion:
		turn.Suggestions = event.Suggestions
	case internal.EventProgress:
		turn.ToolProgress = append(turn.ToolProgress, *event.Progress)
	case internal.EventError:
		internal.PrintWarning(fmt.Sprintf("Stream error [%s]: %s", event.StreamErr.Code, event.StreamErr.Message))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replaySessionID, "session", "", "Save the rebuilt session under this ID")
	replayCmd.Flags().StringVar(&replayTitle, "title", "", "Session title when saving")
}
