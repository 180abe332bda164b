package polling

import (
	"context"
	"sync"
	"time"
)

// Predicate reports whether the awaited condition is satisfied. A returned
// error counts as "not yet": transient failures must not abort a
// confirmation wait.
type Predicate func(ctx context.Context) (bool, error)

// Handle represents one active polling loop.
type Handle struct {
	mu        sync.Mutex
	cancelled bool
	completed bool
	done      chan struct{}
	cancelCtx context.CancelFunc
}

// Cancel marks the handle inert. An in-flight attempt is allowed to finish
// but its result is discarded, and no further attempts are scheduled.
// Cancelling an already-cancelled or already-completed handle is a no-op.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancelled || h.completed {
		return
	}
	h.cancelled = true
	h.cancelCtx()
	close(h.done)
}

// Cancelled reports whether the handle was cancelled before completing.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Completed reports whether the predicate succeeded.
func (h *Handle) Completed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.completed
}

// Done is closed when the handle completes or is cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// inert reports whether the loop should stop scheduling attempts.
func (h *Handle) inert() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled || h.completed
}

// complete marks the handle successful. Returns false if the handle was
// cancelled first, in which case the result is discarded.
func (h *Handle) complete() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancelled || h.completed {
		return false
	}
	h.completed = true
	h.cancelCtx()
	close(h.done)
	return true
}

// Poller starts polling loops and keeps at most one of them active: starting
// a new loop supersedes the previous one. A scope that owns a Poller cancels
// its active handle on teardown via Stop.
type Poller struct {
	mu     sync.Mutex
	active *Handle
}

// NewPoller creates a poller with no active loop.
func NewPoller() *Poller {
	return &Poller{}
}

// Start cancels any previously started loop, then runs predicate immediately
// and again interval after each completed attempt until it returns true or
// the handle is cancelled. Attempts never overlap.
func (p *Poller) Start(ctx context.Context, predicate Predicate, interval time.Duration) *Handle {
	pollCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		done:      make(chan struct{}),
		cancelCtx: cancel,
	}

	p.mu.Lock()
	prev := p.active
	p.active = h
	p.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	go p.run(pollCtx, h, predicate, interval)

	return h
}

// Stop cancels the active loop, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	h := p.active
	p.active = nil
	p.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
}

// Active reports whether a loop is currently running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil && !p.active.inert()
}

func (p *Poller) run(ctx context.Context, h *Handle, predicate Predicate, interval time.Duration) {
	for {
		if h.inert() {
			return
		}

		ok, err := predicate(ctx)
		if err != nil {
			// Treated as a false probe; the loop stays alive.
			ok = false
		}
		if ok && h.complete() {
			p.clear(h)
			return
		}
		if h.inert() {
			p.clear(h)
			return
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			h.Cancel()
			p.clear(h)
			return
		case <-h.done:
			timer.Stop()
			p.clear(h)
			return
		case <-timer.C:
		}
	}
}

// clear releases the active slot if h still holds it.
func (p *Poller) clear(h *Handle) {
	p.mu.Lock()
	if p.active == h {
		p.active = nil
	}
	p.mu.Unlock()
}
