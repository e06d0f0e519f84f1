// Package poll drives the document processing status loop: a repeating timer
// fires status checks against the backend until the session reaches a
// terminal state or the poller is stopped.
package poll

import (
	"context"
	"sync"
	"time"
)

// Timer invokes a callback at a fixed interval until stopped. Callbacks run
// sequentially on a single goroutine; a slow callback delays the next tick
// rather than overlapping it.
type Timer struct {
	interval time.Duration
	fn       func(ctx context.Context)

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	finished  chan struct{}
}

// NewTimer returns a timer that will call fn every interval once started.
func NewTimer(interval time.Duration, fn func(ctx context.Context)) *Timer {
	return &Timer{
		interval: interval,
		fn:       fn,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Start launches the tick loop. The callback fires immediately, then every
// interval. Start is a no-op after the first call.
func (t *Timer) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		go t.loop(ctx)
	})
}

// Stop halts the tick loop. Safe to call multiple times and from any
// goroutine, including from within the callback.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
	})
}

// Finished returns a channel that is closed once the tick loop has exited.
func (t *Timer) Finished() <-chan struct{} {
	return t.finished
}

func (t *Timer) loop(ctx context.Context) {
	defer close(t.finished)

	// Fire immediately on start.
	t.fn(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-t.done:
				return
			default:
			}
			t.fn(ctx)
		}
	}
}
