package internal

import "sync"

// DefaultMaxBufferedPatches forces a synchronous flush once this many patches
// are buffered, bounding memory and latency under a burst.
const DefaultMaxBufferedPatches = 200

// FlushHook runs around every pipeline flush. The DOM host uses it to save
// and restore text selection across a subtree replacement; non-DOM hosts
// (tests, server side) plug in NopFlushHook.
type FlushHook interface {
	BeforeFlush()
	AfterFlush()
}

// NopFlushHook is the no-op hook.
type NopFlushHook struct{}

// BeforeFlush does nothing.
func (NopFlushHook) BeforeFlush() {}

// AfterFlush does nothing.
func (NopFlushHook) AfterFlush() {}

// PatchPipeline buffers patch groups emitted by the event loop and flushes
// them to the tree on the scheduler's cadence. Atomic groups are always
// flushed as their own transaction, never merged with neighbours, so a
// multi-field update is never observed half-applied.
type PatchPipeline struct {
	mu          sync.Mutex
	groups      []PatchGroup
	buffered    int
	maxBuffered int
	scheduler   Scheduler
	scheduled   bool
	hook        FlushHook

	// sink applies one batch of patches to the live tree. Each call is one
	// batch-applier transaction.
	sink func(patches []Patch)
}

// NewPatchPipeline creates a pipeline that flushes through sink on the given
// scheduler's cadence.
func NewPatchPipeline(scheduler Scheduler, maxBuffered int, hook FlushHook, sink func(patches []Patch)) *PatchPipeline {
	if maxBuffered <= 0 {
		maxBuffered = DefaultMaxBufferedPatches
	}
	if hook == nil {
		hook = NopFlushHook{}
	}
	return &PatchPipeline{
		maxBuffered: maxBuffered,
		scheduler:   scheduler,
		hook:        hook,
		sink:        sink,
	}
}

// Push appends a patch group to the buffer. The flush is scheduled for the
// next tick, or forced synchronously once the buffered count crosses the
// configured threshold.
func (p *PatchPipeline) Push(patches []Patch, atomic bool) {
	if len(patches) == 0 {
		return
	}
	p.mu.Lock()
	p.groups = append(p.groups, PatchGroup{Patches: patches, Atomic: atomic})
	p.buffered += len(patches)
	force := p.buffered >= p.maxBuffered
	if !force && !p.scheduled {
		p.scheduled = true
		p.mu.Unlock()
		p.scheduler.Schedule(p.Flush)
		return
	}
	p.mu.Unlock()
	if force {
		p.Flush()
	}
}

// Flush applies the whole buffer now. Safe to call with an empty buffer.
func (p *PatchPipeline) Flush() {
	p.mu.Lock()
	groups := p.groups
	p.groups = nil
	p.buffered = 0
	p.scheduled = false
	p.mu.Unlock()
	p.scheduler.Cancel()

	if len(groups) == 0 {
		return
	}

	p.hook.BeforeFlush()
	defer p.hook.AfterFlush()

	// Merge consecutive non-atomic groups into one transaction; an atomic
	// group cuts the run and is flushed alone.
	var run []Patch
	for _, group := range groups {
		if group.Atomic {
			if len(run) > 0 {
				p.sink(run)
				run = nil
			}
			p.sink(group.Patches)
			continue
		}
		run = append(run, group.Patches...)
	}
	if len(run) > 0 {
		p.sink(run)
	}
}

// Reset cancels any pending flush and discards the buffer without applying
// it. Used on send abort.
func (p *PatchPipeline) Reset() {
	p.mu.Lock()
	p.groups = nil
	p.buffered = 0
	p.scheduled = false
	p.mu.Unlock()
	p.scheduler.Cancel()
}

// Buffered returns the number of patches currently waiting.
func (p *PatchPipeline) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffered
}
