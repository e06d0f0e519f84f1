// Package analysis fetches and caches the document analysis for a session.
// Concurrent requests for the same session are collapsed into a single
// backend call, so the expensive LLM analysis runs at most once per document.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tanmayd/vaidya/pkg/backend"
)

// Error wraps a failed analysis fetch with the session it belongs to.
type Error struct {
	SessionID string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("analysis: session %s: %v", e.SessionID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Coordinator fetches analyses through the backend and memoises them per
// session. Safe for concurrent use.
type Coordinator struct {
	client backend.Client

	group singleflight.Group

	mu      sync.Mutex
	results map[string]backend.Analysis
}

// NewCoordinator returns a coordinator backed by the given client.
func NewCoordinator(client backend.Client) *Coordinator {
	return &Coordinator{
		client:  client,
		results: make(map[string]backend.Analysis),
	}
}

// Get returns the analysis for the session, fetching it from the backend on
// first call. Concurrent callers for the same session share one backend call
// and receive the same result. Failed fetches are not cached, so a later Get
// retries.
func (c *Coordinator) Get(ctx context.Context, req backend.AnalyzeRequest) (backend.Analysis, error) {
	c.mu.Lock()
	if a, ok := c.results[req.SessionID]; ok {
		c.mu.Unlock()
		return a, nil
	}
	c.mu.Unlock()

	v, err, shared := c.group.Do(req.SessionID, func() (any, error) {
		a, err := c.client.Analyze(ctx, req)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.results[req.SessionID] = a
		c.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return backend.Analysis{}, &Error{SessionID: req.SessionID, Err: err}
	}
	if shared {
		slog.Debug("analysis request coalesced", "session_id", req.SessionID)
	}
	return v.(backend.Analysis), nil
}

// Cached returns the memoised analysis for the session, if any. It never
// triggers a backend call.
func (c *Coordinator) Cached(sessionID string) (backend.Analysis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.results[sessionID]
	return a, ok
}

// Invalidate drops the memoised analysis for the session. The next Get will
// fetch again. Pending fetches are unaffected.
func (c *Coordinator) Invalidate(sessionID string) {
	c.mu.Lock()
	delete(c.results, sessionID)
	c.mu.Unlock()
	c.group.Forget(sessionID)
}
