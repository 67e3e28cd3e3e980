package internal

import (
	"sync"
	"time"
)

// DefaultFlushInterval is the batching cadence of the patch pipeline, the
// timer analogue of a frame tick.
const DefaultFlushInterval = 16 * time.Millisecond

// Scheduler defers a single pending callback. The pipeline uses it to
// coalesce many pushes into one visible update; tests inject ManualScheduler
// to make the cadence deterministic.
type Scheduler interface {
	// Schedule arranges for fn to run soon. A second call before fn ran
	// replaces the pending callback.
	Schedule(fn func())
	// Cancel drops the pending callback, if any.
	Cancel()
}

// TimerScheduler runs callbacks after a fixed interval.
type TimerScheduler struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
}

// NewTimerScheduler creates a scheduler with the given interval; zero or
// negative falls back to DefaultFlushInterval.
func NewTimerScheduler(interval time.Duration) *TimerScheduler {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &TimerScheduler{interval: interval}
}

// Schedule arranges fn to run after the interval, replacing any pending run.
func (s *TimerScheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.interval, fn)
}

// Cancel drops the pending run.
func (s *TimerScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// ManualScheduler holds the callback until Fire is called. Test-only cadence.
type ManualScheduler struct {
	mu      sync.Mutex
	pending func()
}

// NewManualScheduler creates a scheduler driven by explicit Fire calls.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule stores fn as the pending callback.
func (s *ManualScheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = fn
}

// Cancel drops the pending callback.
func (s *ManualScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Fire runs the pending callback, if any.
func (s *ManualScheduler) Fire() {
	s.mu.Lock()
	fn := s.pending
	s.pending = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// HasPending reports whether a callback is waiting.
func (s *ManualScheduler) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}
