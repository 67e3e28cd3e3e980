package internal

import (
	"errors"
	"fmt"
)

// ErrAborted marks a user-initiated cancellation. Aborts take the
// "remove turn, no callback" path rather than the "mark failed" path.
var ErrAborted = errors.New("send aborted")

// ProtocolError represents a wire frame that failed schema validation or
// could not be decoded. Non-fatal: the frame is dropped and parsing continues.
type ProtocolError struct {
	Code    string
	Line    string
	Details string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error [%s]: %s: %v", e.Code, e.Details, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IdleTimeoutError fires when the stream watchdog sees no bytes within the
// idle window. Distinct from a network error so callers can decide to retry.
type IdleTimeoutError struct {
	Idle string // human-readable idle window, e.g. "30s"
}

func (e *IdleTimeoutError) Error() string {
	return fmt.Sprintf("stream idle timeout: no data received within %s", e.Idle)
}

// TransportError represents a fetch rejection, non-OK HTTP status or missing
// body. Fatal to the current send attempt.
type TransportError struct {
	Op     string // "connect", "read", "status"
	Status int    // HTTP status when Op is "status"
	Err    error
}

func (e *TransportError) Error() string {
	if e.Op == "status" {
		return fmt.Sprintf("transport error: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PatchError represents a structurally invalid patch that reached the patch
// engine. Caught per-patch in the batch applier, logged and skipped.
type PatchError struct {
	Op   string
	Path string
	Err  error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch error [%s %s]: %v", e.Op, e.Path, e.Err)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

// EventProcessingError wraps a failure while handling one parsed stream event. Critical
// event kinds escalate to abort the whole send; the rest are logged and the
// loop continues.
type EventProcessingError struct {
	Kind     string
	Critical bool
	Err      error
}

func (e *EventProcessingError) Error() string {
	return fmt.Sprintf("event error [%s]: %v", e.Kind, e.Err)
}

func (e *EventProcessingError) Unwrap() error {
	return e.Err
}

// StoreError represents errors accessing the session store.
type StoreError struct {
	Op  string // "open", "save", "load", "list", "delete"
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store error: %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("store error: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsAbort reports whether err is (or wraps) a user-initiated abort.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted)
}
