package internal

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ResumeHeader asks the server to replay only events after the given
// sequence number on a reconnect attempt.
const ResumeHeader = "X-Resume-After-Sequence"

// Reconnection defaults. Delay grows exponentially from the base, capped at
// the max, with jitter to avoid thundering-herd reconnects.
const (
	DefaultRetryBase   = 500 * time.Millisecond
	DefaultRetryMax    = 10 * time.Second
	DefaultMaxAttempts = 5
)

// ReconnectManager tracks the highest sequence number observed on a stream
// and the retry budget for reconnecting the transport. Resumption semantics
// apply within one logical multi-attempt connection only; every new
// top-level send resets the manager.
type ReconnectManager struct {
	mu          sync.Mutex
	lastSeq     int64
	attempts    int
	base        time.Duration
	max         time.Duration
	maxAttempts int
	jitter      func() float64
}

// NewReconnectManager creates a manager with the given backoff parameters;
// non-positive values fall back to the defaults.
func NewReconnectManager(base, max time.Duration, maxAttempts int) *ReconnectManager {
	if base <= 0 {
		base = DefaultRetryBase
	}
	if max <= 0 {
		max = DefaultRetryMax
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &ReconnectManager{
		base:        base,
		max:         max,
		maxAttempts: maxAttempts,
		jitter:      rand.Float64,
	}
}

// RecordSequence notes a sequence number observed on the stream. Lower
// numbers than the current high-water mark are ignored.
func (m *ReconnectManager) RecordSequence(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.lastSeq {
		m.lastSeq = n
	}
}

// LastSequence returns the high-water mark.
func (m *ReconnectManager) LastSequence() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeq
}

// ShouldRetry reports whether another reconnect attempt is allowed.
func (m *ReconnectManager) ShouldRetry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts < m.maxAttempts
}

// NextRetryDelay increments the attempt count and returns the backoff delay
// for this attempt: base * 2^attempt capped at max, with 10-30% jitter in a
// random direction.
func (m *ReconnectManager) NextRetryDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempt := m.attempts
	m.attempts++

	factor := int64(1)
	if attempt > 0 {
		if attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << attempt
		}
	}
	delay := time.Duration(int64(m.base) * factor)
	if delay > m.max {
		delay = m.max
	}

	frac := 0.1 + 0.2*m.jitter()
	if m.jitter() < 0.5 {
		frac = -frac
	}
	jittered := time.Duration(float64(delay) * (1 + frac))
	if jittered < 0 {
		jittered = delay
	}
	return jittered
}

// Attempts returns how many retry delays have been handed out.
func (m *ReconnectManager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// ResumeHeaders returns the headers a reconnecting request should carry.
// Empty when nothing has been observed yet.
func (m *ReconnectManager) ResumeHeaders() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSeq == 0 {
		return nil
	}
	return map[string]string{
		ResumeHeader: fmt.Sprintf("%d", m.lastSeq),
	}
}

// Reset clears both the sequence mark and the retry count. Called at the
// start of every new top-level send.
func (m *ReconnectManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeq = 0
	m.attempts = 0
}
