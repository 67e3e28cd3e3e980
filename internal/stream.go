package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"
)

// DefaultIdleTimeout is the watchdog window for a stalled stream. It fires on
// inactivity, not total duration, so a slow-but-steady stream never times out.
const DefaultIdleTimeout = 30 * time.Second

type streamChunk struct {
	data []byte
	err  error
}

// ReadStream pulls raw chunks from r, reassembles line-delimited frames
// across chunk boundaries and hands every parsed event to handle, in arrival
// order. It returns nil on a clean end of stream (done sentinel or EOF), an
// IdleTimeoutError when no chunk arrives within idleTimeout, the context's
// error on cancellation, and otherwise the first error from handle.
//
// The sequence is finite and not restartable; callers reconnect through the
// reconnection manager instead of reusing a reader.
func ReadStream(ctx context.Context, r io.Reader, idleTimeout time.Duration, handle func(*WireEvent) error) error {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	chunks := make(chan streamChunk)
	quit := make(chan struct{})
	defer close(quit)

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			chunk := streamChunk{err: err}
			if n > 0 {
				chunk.data = append([]byte(nil), buf[:n]...)
			}
			select {
			case chunks <- chunk:
			case <-quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	watchdog := time.NewTimer(idleTimeout)
	defer watchdog.Stop()

	var pending []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-watchdog.C:
			return &IdleTimeoutError{Idle: idleTimeout.String()}
		case chunk := <-chunks:
			if len(chunk.data) > 0 {
				if !watchdog.Stop() {
					<-watchdog.C
				}
				watchdog.Reset(idleTimeout)

				pending = append(pending, chunk.data...)
				rest, done, err := drainLines(&pending, handle)
				if err != nil {
					return err
				}
				pending = rest
				if done {
					return nil
				}
			}
			if chunk.err != nil {
				if errors.Is(chunk.err, io.EOF) {
					// Flush a trailing frame without a final newline.
					if len(pending) > 0 {
						if _, _, err := handleLine(string(pending), handle); err != nil {
							return err
						}
					}
					return nil
				}
				return &TransportError{Op: "read", Err: chunk.err}
			}
		}
	}
}

// drainLines consumes every complete line in pending, returning the trailing
// incomplete segment for the next chunk.
func drainLines(pending *[]byte, handle func(*WireEvent) error) ([]byte, bool, error) {
	buf := *pending
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return buf, false, nil
		}
		line := string(buf[:idx])
		buf = buf[idx+1:]

		handled, done, err := handleLine(line, handle)
		if err != nil {
			return buf, false, err
		}
		_ = handled
		if done {
			return buf, true, nil
		}
	}
}

func handleLine(line string, handle func(*WireEvent) error) (bool, bool, error) {
	event := ParseLine(line)
	if event == nil {
		// Unrecognized framing, silently dropped.
		return false, false, nil
	}
	if event.Kind == EventDone {
		if err := handle(event); err != nil {
			return true, true, err
		}
		return true, true, nil
	}
	if err := handle(event); err != nil {
		return true, false, err
	}
	return true, false, nil
}
