package cmd

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/iksnae/uistream/internal"
	"github.com/spf13/cobra"
)

var (
	sendEndpoint    string
	sendSessionID   string
	sendTitle       string
	sendAttach      []string
	sendLibraryDocs []string
	sendProactive   bool
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <prompt>",
	Short: "Send a prompt and stream the resulting UI patches",
	Long: `Send a prompt to the configured streaming endpoint, apply the returned
patch stream to the session's element tree, and persist the finished session.

With --session the send continues an existing session: its tree and
conversation are loaded first and sent as context. Press Ctrl-C to abort
an in-flight send; an aborted turn leaves no trace in the session.

The bearer token is read from the UISTREAM_TOKEN environment variable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if sendEndpoint != "" {
			cfg.Endpoint = sendEndpoint
		}
		if cfg.Endpoint == "" {
			return fmt.Errorf("no endpoint configured (set endpoint in the config file or pass --endpoint)")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		state := internal.NewSessionState()
		state.Init()

		sessionID := sessionIDForSend(store, state)

		clientCfg := cfg.ClientConfig()
		if token := os.Getenv("UISTREAM_TOKEN"); token != "" {
			clientCfg.AuthProvider = func(ctx context.Context) (map[string]string, error) {
				return map[string]string{"Authorization": "Bearer " + token}, nil
			}
		}
		client := internal.NewClient(clientCfg, state)

		attachments, err := loadAttachments(sendAttach)
		if err != nil {
			return err
		}

		// Ctrl-C aborts the send instead of killing the process so the
		// pending turn is cleanly removed.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		err = client.Send(ctx, prompt, internal.SendOptions{
			Attachments:        attachments,
			LibraryDocumentIDs: sendLibraryDocs,
			IsProactive:        sendProactive,
		})
		if errors.Is(err, internal.ErrAborted) {
			internal.PrintWarning("Send aborted")
			return nil
		}
		if err != nil {
			return err
		}

		printConversationTail(state)

		snapshot, err := state.SnapshotSession()
		if err != nil {
			return fmt.Errorf("failed to snapshot session: %w", err)
		}
		title := sendTitle
		if title == "" {
			title = truncate(prompt, 60)
		}
		if err := store.SaveSession(sessionID, title, snapshot); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}

		internal.PrintSuccess(fmt.Sprintf("Session %s saved (%d element(s))", sessionID, len(state.Tree().Elements)))
		return nil
	},
}

// sessionIDForSend resolves which session this send belongs to, loading the
// prior snapshot into state when continuing an existing one.
func sessionIDForSend(store *internal.SessionStore, state *internal.SessionState) string {
	if sendSessionID == "" {
		return internal.NewIdempotencyKey()
	}
	snapshot, err := store.LoadSession(sendSessionID)
	if err != nil {
		internal.PrintWarning(fmt.Sprintf("Session %s not found, starting fresh", sendSessionID))
		return sendSessionID
	}
	state.LoadSession(snapshot)
	return sendSessionID
}

// loadAttachments reads each named file into an attachment, guessing the
// content type from the extension.
func loadAttachments(paths []string) ([]internal.Attachment, error) {
	var attachments []internal.Attachment
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", path, err)
		}
		attachments = append(attachments, internal.Attachment{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Data:        data,
		})
	}
	return attachments, nil
}

// printConversationTail prints the assistant output of the newest turn.
func printConversationTail(state *internal.SessionState) {
	turns := state.Conversation()
	if len(turns) == 0 {
		return
	}
	turn := turns[len(turns)-1]
	for _, msg := range turn.AssistantMessages {
		fmt.Println(msg.Content)
	}
	for _, question := range turn.Questions {
		internal.PrintInfo("Question: " + question)
	}
	if len(turn.Suggestions) > 0 {
		internal.PrintInfo("Suggestions: " + strings.Join(turn.Suggestions, ", "))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendEndpoint, "endpoint", "", "Streaming endpoint URL (overrides config)")
	sendCmd.Flags().StringVar(&sendSessionID, "session", "", "Continue an existing session by ID")
	sendCmd.Flags().StringVar(&sendTitle, "title", "", "Session title (defaults to the prompt)")
	sendCmd.Flags().StringArrayVar(&sendAttach, "attach", nil, "File to attach (repeatable)")
	sendCmd.Flags().StringArrayVar(&sendLibraryDocs, "library-doc", nil, "Library document ID to reference (repeatable)")
	sendCmd.Flags().BoolVar(&sendProactive, "proactive", false, "Mark the turn as proactive")
}
