package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// AuthProvider resolves auth headers just-in-time, right before the
// transport opens.
type AuthProvider func(ctx context.Context) (map[string]string, error)

// ClientConfig wires the orchestrator. Zero values fall back to the
// package defaults.
type ClientConfig struct {
	Endpoint           string
	HTTPClient         *http.Client
	IdleTimeout        time.Duration
	FlushInterval      time.Duration
	MaxBufferedPatches int
	RetryBase          time.Duration
	RetryMax           time.Duration
	MaxRetryAttempts   int
	ProtectedTypes     []string
	AuthProvider       AuthProvider
	FlushHook          FlushHook
	// Scheduler overrides the pipeline cadence; tests inject ManualScheduler.
	Scheduler Scheduler

	// OnComplete receives the final tree after a successful send.
	OnComplete func(tree *Tree)
	// OnError receives the failure of a send. Not invoked on abort.
	OnError func(err error)
	// OnCitations receives every citation update as it streams in.
	OnCitations func(citations []Citation)
}

// SendOptions carries the per-send inputs beyond the prompt.
type SendOptions struct {
	Context            SendContext
	Attachments        []Attachment
	LibraryDocumentIDs []string
	IsProactive        bool
}

// Client is the stream orchestrator: it builds the request, opens the
// transport, runs the event loop, drives the patch pipeline, finalizes the
// turn and handles every failure path. At most one send is in flight per
// client.
type Client struct {
	cfg       ClientConfig
	state     *SessionState
	reconnect *ReconnectManager
	http      *http.Client

	mu       sync.Mutex
	inFlight bool
	cancel   context.CancelFunc
}

// NewClient creates an orchestrator bound to the given state container.
func NewClient(cfg ClientConfig, state *SessionState) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		cfg:       cfg,
		state:     state,
		reconnect: NewReconnectManager(cfg.RetryBase, cfg.RetryMax, cfg.MaxRetryAttempts),
		http:      httpClient,
	}
}

// State returns the shared state container.
func (c *Client) State() *SessionState {
	return c.state
}

// Abort cancels the in-flight send, if any. Idempotent: aborting an already
// finished or already aborted send is a no-op.
func (c *Client) Abort() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Send runs one full request/response exchange. A second concurrent call for
// the same client is logged and returns nil: a double-submit race is a user
// error, not a failure. On abort the pending turn is removed and ErrAborted
// returned; on any other failure the turn is marked failed and the error
// both returned and passed to OnError.
func (c *Client) Send(ctx context.Context, prompt string, opts SendOptions) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		LogWarn("Send refused: another send is already in flight")
		return nil
	}
	// Clear any stale transport handle from a previous send.
	if c.cancel != nil {
		c.cancel()
	}
	sendCtx, cancel := context.WithCancel(ctx)
	c.inFlight = true
	c.cancel = cancel
	c.mu.Unlock()

	c.reconnect.Reset()
	c.state.SetStreaming(true)
	c.state.SetErr(nil)
	c.state.EnsureTree()

	defer func() {
		cancel()
		c.mu.Lock()
		c.inFlight = false
		c.cancel = nil
		c.mu.Unlock()
		c.state.SetStreaming(false)
	}()

	turn := CreatePendingTurn(prompt, opts.IsProactive, opts.Attachments)
	c.state.AppendTurn(turn)

	protected := append(append([]string(nil), c.cfg.ProtectedTypes...), opts.Context.ProtectedTypes()...)

	scheduler := c.cfg.Scheduler
	if scheduler == nil {
		scheduler = NewTimerScheduler(c.cfg.FlushInterval)
	}
	pipeline := NewPatchPipeline(scheduler, c.cfg.MaxBufferedPatches, c.cfg.FlushHook, func(patches []Patch) {
		c.state.ApplyPatchBatch(patches, ApplyOptions{TurnID: turn.ID, ProtectedTypes: protected})
	})

	err := c.runStream(sendCtx, prompt, opts, turn, pipeline)

	switch {
	case err == nil:
		pipeline.Flush()
		if ferr := FinalizeTurn(turn, c.state.Tree()); ferr != nil {
			LogError("Failed to snapshot tree for turn %s: %v", turn.ID, ferr)
		}
		c.state.PublishTurn(turn)
		if c.cfg.OnComplete != nil {
			c.cfg.OnComplete(c.state.Tree())
		}
		return nil

	case isAbortError(err):
		// The request was deliberately cancelled: discard buffered patches
		// and remove the turn as if it never happened. No callbacks.
		pipeline.Reset()
		c.state.DropTurn(turn.ID)
		LogInfo("Send aborted by user")
		return ErrAborted

	default:
		pipeline.Reset()
		MarkTurnFailed(turn, err.Error())
		c.state.PublishTurn(turn)
		c.state.SetErr(err)
		if c.cfg.OnError != nil {
			c.cfg.OnError(err)
		}
		return err
	}
}

// runStream drives connect + event loop with the reconnection budget. Each
// attempt gets a fresh idempotency key; reconnect attempts carry the resume
// header so the server replays only events past the recorded sequence.
func (c *Client) runStream(ctx context.Context, prompt string, opts SendOptions, turn *ConversationTurn, pipeline *PatchPipeline) error {
	reconnecting := false
	for {
		payload := RequestPayload{
			Prompt:             prompt,
			Context:            opts.Context,
			IdempotencyKey:     NewIdempotencyKey(),
			Tree:               c.state.Tree(),
			Messages:           ConversationMessages(c.state.Conversation()),
			LibraryDocumentIDs: opts.LibraryDocumentIDs,
			Attachments:        opts.Attachments,
		}

		var resume map[string]string
		if reconnecting {
			resume = c.reconnect.ResumeHeaders()
		}

		body, err := c.connect(ctx, payload, resume)
		if err == nil {
			err = ReadStream(ctx, body, c.cfg.IdleTimeout, func(event *WireEvent) error {
				return c.handleEvent(event, turn, pipeline)
			})
			_ = body.Close()
		}
		if err == nil {
			return nil
		}
		if isAbortError(err) || !isRetryable(err) || !c.reconnect.ShouldRetry() {
			return err
		}

		delay := c.reconnect.NextRetryDelay()
		LogInfo("Stream interrupted (%v); reconnecting in %s (attempt %d)", err, delay, c.reconnect.Attempts())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		reconnecting = true
	}
}

// connect opens the transport for one attempt.
func (c *Client) connect(ctx context.Context, payload RequestPayload, resume map[string]string) (io.ReadCloser, error) {
	body, contentType, err := BuildRequestBody(payload)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, body)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(IdempotencyHeader, payload.IdempotencyKey)

	if c.cfg.AuthProvider != nil {
		headers, err := c.cfg.AuthProvider(ctx)
		if err != nil {
			return nil, &TransportError{Op: "connect", Err: fmt.Errorf("auth resolution failed: %w", err)}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}
	for k, v := range resume {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &TransportError{Op: "status", Status: resp.StatusCode}
	}
	if resp.Body == nil {
		return nil, &TransportError{Op: "connect", Err: fmt.Errorf("response has no body")}
	}
	return resp.Body, nil
}

// handleEvent routes one parsed event. Failures on non-critical kinds are
// logged and swallowed so the loop continues; critical kinds escalate,
// because their failure means the visible output is provably incomplete.
func (c *Client) handleEvent(event *WireEvent, turn *ConversationTurn, pipeline *PatchPipeline) error {
	if event.Seq > 0 {
		c.reconnect.RecordSequence(event.Seq)
	}

	err := c.dispatchEvent(event, turn, pipeline)
	if err == nil {
		return nil
	}
	// Dispatch may already have decided the failure is fatal, e.g. a
	// non-recoverable in-band error event.
	var processing *EventProcessingError
	if errors.As(err, &processing) && processing.Critical {
		return err
	}
	if isCriticalEvent(event) {
		return &EventProcessingError{Kind: string(event.Kind), Critical: true, Err: err}
	}
	LogWarn("Ignoring failure on %s event: %v", event.Kind, err)
	return nil
}

func (c *Client) dispatchEvent(event *WireEvent, turn *ConversationTurn, pipeline *PatchPipeline) error {
	switch event.Kind {
	case EventMessage:
		ApplyMessageEvent(turn, event.Message)
		c.state.PublishTurn(turn)
		return nil

	case EventPatch:
		pipeline.Push(event.Patches, event.Atomic)
		return nil

	case EventQuestion:
		turn.Questions = append(turn.Questions, event.Question)
		c.state.PublishTurn(turn)
		return nil

	case EventSuggestion:
		turn.Suggestions = event.Suggestions
		c.state.PublishTurn(turn)
		return nil

	case EventProgress:
		turn.ToolProgress = append(turn.ToolProgress, *event.Progress)
		c.state.AddProgress(*event.Progress)
		return nil

	case EventControl:
		return c.dispatchControl(event.Control, turn)

	case EventError:
		if event.StreamErr.Recoverable {
			LogWarn("Recoverable stream error [%s]: %s", event.StreamErr.Code, event.StreamErr.Message)
			return nil
		}
		return &EventProcessingError{
			Kind:     string(EventError),
			Critical: true,
			Err:      fmt.Errorf("stream error [%s]: %s", event.StreamErr.Code, event.StreamErr.Message),
		}

	case EventDone:
		return nil

	default:
		LogDebug("Dropping event of unknown kind %q", event.Kind)
		return nil
	}
}

func (c *Client) dispatchControl(control *ControlEvent, turn *ConversationTurn) error {
	switch control.Type {
	case ControlStreamingStarted:
		LogDebug("Streaming started for turn %s", turn.ID)
		return nil

	case ControlPersistedAttachments:
		var persisted []map[string]interface{}
		if err := reencode(control.Data["attachments"], &persisted); err != nil {
			return fmt.Errorf("invalid persisted attachments: %w", err)
		}
		turn.PersistedAttachments = persisted
		c.state.PublishTurn(turn)
		return nil

	case ControlDocumentIndex:
		var outline DocumentOutline
		if err := reencode(control.Data, &outline); err != nil {
			return fmt.Errorf("invalid document index: %w", err)
		}
		turn.DocumentIndex = MergeDocumentIndex(turn.DocumentIndex, outline)
		c.state.PublishTurn(turn)
		return nil

	case ControlCitations:
		var citations []Citation
		if err := reencode(control.Data["citations"], &citations); err != nil {
			return fmt.Errorf("invalid citations: %w", err)
		}
		c.state.SetCitations(citations)
		if c.cfg.OnCitations != nil {
			c.cfg.OnCitations(citations)
		}
		return nil

	case ControlPlanCreated, ControlStepStarted, ControlStepDone,
		ControlSubtaskStarted, ControlSubtaskDone,
		ControlLevelStarted, ControlLevelCompleted, ControlOrchestrationDone:
		next, changed := ApplyPlanEvent(c.state.Plan(), control)
		if changed {
			c.state.SetPlan(next)
		}
		return nil

	default:
		LogDebug("Dropping control event of type %q", control.Type)
		return nil
	}
}

// EditTurn rolls the conversation and tree back to just before the given
// turn, then re-sends the new message with the restored tree as context.
// An undo snapshot is pushed first.
func (c *Client) EditTurn(ctx context.Context, id, newMessage string, opts SendOptions) error {
	if err := c.rollback(id); err != nil {
		return err
	}
	return c.Send(ctx, newMessage, opts)
}

// DeleteTurn is the same rollback without resending.
func (c *Client) DeleteTurn(id string) error {
	return c.rollback(id)
}

func (c *Client) rollback(id string) error {
	if err := c.state.PushHistory(); err != nil {
		return err
	}
	truncated, snapshot, ok := RollbackToTurn(c.state.Conversation(), id)
	if !ok {
		return fmt.Errorf("turn %s not found", id)
	}
	c.state.SetConversation(truncated)
	if snapshot != nil {
		c.state.SetTree(snapshot)
	} else {
		c.state.SetTree(NewTree())
	}
	return nil
}

// isCriticalEvent reports whether a handling failure on this event must fail
// the whole send. The critical set covers everything whose loss makes the
// visible output inconsistent.
func isCriticalEvent(event *WireEvent) bool {
	switch event.Kind {
	case EventMessage, EventPatch, EventQuestion, EventSuggestion:
		return true
	case EventControl:
		return event.Control != nil && event.Control.Type == ControlPersistedAttachments
	}
	return false
}

func isAbortError(err error) bool {
	return IsAbort(err) || errors.Is(err, context.Canceled)
}

// isRetryable limits reconnection to transport-level interruptions: idle
// timeouts and read/connect failures. Protocol-level failures and HTTP
// status errors are not retried.
func isRetryable(err error) bool {
	var idle *IdleTimeoutError
	if errors.As(err, &idle) {
		return true
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return transport.Op == "read" || transport.Op == "connect"
	}
	return false
}
