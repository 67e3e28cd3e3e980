package internal

import (
	"testing"
	"time"
)

// fixedJitter makes NextRetryDelay deterministic. The first value feeds the
// magnitude draw, the second the direction draw, repeating.
func fixedJitter(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestReconnect_BackoffGrowsAndCaps(t *testing.T) {
	m := NewReconnectManager(500*time.Millisecond, 10*time.Second, 10)
	// Magnitude 0 keeps frac at the 10% floor, direction 1 keeps it positive,
	// so every delay is exactly 1.1x the raw backoff.
	m.jitter = fixedJitter(0, 1)

	want := []time.Duration{
		550 * time.Millisecond,  // 500ms
		1100 * time.Millisecond, // 1s
		2200 * time.Millisecond, // 2s
		4400 * time.Millisecond, // 4s
		8800 * time.Millisecond, // 8s
		11 * time.Second,        // capped at 10s
		11 * time.Second,
	}
	for i, w := range want {
		got := m.NextRetryDelay()
		if got != w {
			t.Errorf("attempt %d: delay = %v, want %v", i, got, w)
		}
	}
	if m.Attempts() != len(want) {
		t.Errorf("Attempts() = %d, want %d", m.Attempts(), len(want))
	}
}

func TestReconnect_JitterStaysWithinBounds(t *testing.T) {
	m := NewReconnectManager(time.Second, time.Minute, 100)

	for i := 0; i < 50; i++ {
		m.Reset()
		got := m.NextRetryDelay()
		ratio := float64(got) / float64(time.Second)
		if ratio < 0.7 || ratio > 1.3 {
			t.Fatalf("delay %v falls outside the 30%% jitter band", got)
		}
		if ratio > 0.9 && ratio < 1.1 {
			t.Fatalf("delay %v falls inside the 10%% dead band", got)
		}
	}
}

func TestReconnect_NegativeJitterDirection(t *testing.T) {
	m := NewReconnectManager(time.Second, time.Minute, 5)
	// Magnitude 1 gives the 30% ceiling, direction 0 flips it negative.
	m.jitter = fixedJitter(1, 0)

	got := m.NextRetryDelay()
	if got < 699*time.Millisecond || got > 700*time.Millisecond {
		t.Errorf("delay = %v, want roughly 700ms", got)
	}
}

func TestReconnect_RetryBudget(t *testing.T) {
	m := NewReconnectManager(time.Millisecond, time.Millisecond, 3)
	m.jitter = fixedJitter(0, 1)

	for i := 0; i < 3; i++ {
		if !m.ShouldRetry() {
			t.Fatalf("attempt %d should be allowed", i)
		}
		m.NextRetryDelay()
	}
	if m.ShouldRetry() {
		t.Error("budget exhausted, ShouldRetry must be false")
	}

	m.Reset()
	if !m.ShouldRetry() {
		t.Error("reset must restore the retry budget")
	}
}

func TestReconnect_SequenceHighWaterMark(t *testing.T) {
	m := NewReconnectManager(0, 0, 0)

	if headers := m.ResumeHeaders(); headers != nil {
		t.Errorf("ResumeHeaders() = %v before any event, want nil", headers)
	}

	m.RecordSequence(3)
	m.RecordSequence(7)
	m.RecordSequence(5) // stale, ignored
	if got := m.LastSequence(); got != 7 {
		t.Errorf("LastSequence() = %d, want 7", got)
	}

	headers := m.ResumeHeaders()
	if headers[ResumeHeader] != "7" {
		t.Errorf("ResumeHeaders() = %v, want %s: 7", headers, ResumeHeader)
	}

	m.Reset()
	if m.LastSequence() != 0 || m.ResumeHeaders() != nil {
		t.Error("reset must clear the sequence mark")
	}
}

func TestReconnect_Defaults(t *testing.T) {
	m := NewReconnectManager(0, -1, 0)
	if m.base != DefaultRetryBase || m.max != DefaultRetryMax || m.maxAttempts != DefaultMaxAttempts {
		t.Errorf("defaults not applied: base=%v max=%v attempts=%d", m.base, m.max, m.maxAttempts)
	}
}
