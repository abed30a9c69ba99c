package cache

import (
	"context"
	"sync"
	"time"
)

// Debouncer lets only the last of a burst of inputs through after a quiet period.
// Each new input cancels the pending one.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending chan struct{}
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Settle waits for the quiet period and reports whether this input is still the latest.
// It returns false as soon as a newer input arrives or ctx is done.
func (d *Debouncer) Settle(ctx context.Context) bool {
	cancel := make(chan struct{})
	d.mu.Lock()
	if d.pending != nil {
		close(d.pending)
	}
	d.pending = cancel
	d.mu.Unlock()

	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.pending != cancel {
			return false
		}
		d.pending = nil
		return true
	case <-cancel:
		return false
	case <-ctx.Done():
		d.mu.Lock()
		if d.pending == cancel {
			d.pending = nil
		}
		d.mu.Unlock()
		return false
	}
}

// Trigger runs fn once the input settles, unless a newer Trigger or Settle supersedes it.
func (d *Debouncer) Trigger(ctx context.Context, fn func()) {
	go func() {
		if d.Settle(ctx) {
			fn()
		}
	}()
}

// DebounceGroup keeps one Debouncer per input source (a search box, a session) while the
// source has an input waiting. Idle sources are dropped.
type DebounceGroup struct {
	delay time.Duration

	mu      sync.Mutex
	sources map[string]*sourceDebouncer
}

type sourceDebouncer struct {
	d       *Debouncer
	waiting int
}

func NewDebounceGroup(delay time.Duration) *DebounceGroup {
	return &DebounceGroup{delay: delay, sources: make(map[string]*sourceDebouncer)}
}

// Settle is Debouncer.Settle for the debouncer of source.
func (g *DebounceGroup) Settle(ctx context.Context, source string) bool {
	g.mu.Lock()
	s, ok := g.sources[source]
	if !ok {
		s = &sourceDebouncer{d: NewDebouncer(g.delay)}
		g.sources[source] = s
	}
	s.waiting++
	g.mu.Unlock()

	settled := s.d.Settle(ctx)

	g.mu.Lock()
	s.waiting--
	if s.waiting == 0 {
		delete(g.sources, source)
	}
	g.mu.Unlock()
	return settled
}

// Len is the number of sources with an input waiting.
func (g *DebounceGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sources)
}
