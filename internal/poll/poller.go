package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tanmayd/vaidya/internal/observe"
	"github.com/tanmayd/vaidya/pkg/backend"
)

// progressTable maps each processing state to the percentage shown while the
// document moves through the pipeline. Values match what the backend reports
// for its own progress bar.
var progressTable = map[backend.ProcessingState]int{
	backend.StatePending:       10,
	backend.StateUploading:     20,
	backend.StatePreprocessing: 40,
	backend.StateExtracting:    60,
	backend.StateAnalyzing:     80,
	backend.StateCompleted:     100,
	backend.StateFailed:        0,
}

// Progress returns the display percentage for a processing state. Unknown
// states map to 0.
func Progress(state backend.ProcessingState) int {
	return progressTable[state]
}

// Streamer is implemented by backend clients that can push status updates
// over a persistent connection instead of being polled.
type Streamer interface {
	StatusStream(ctx context.Context, sessionID string) (<-chan backend.StatusReport, error)
}

// Callbacks receive status transitions from a [StatusPoller]. All callbacks
// are invoked from the poller's own goroutine, never concurrently. OnCompleted
// and OnFailed fire at most once each, and never both.
type Callbacks struct {
	// OnUpdate receives every accepted report with its display percentage,
	// including the final terminal report.
	OnUpdate func(report backend.StatusReport, percent int)

	// OnCompleted fires once when the backend reports successful processing.
	OnCompleted func(report backend.StatusReport)

	// OnFailed fires once when the backend reports failed processing.
	OnFailed func(report backend.StatusReport)
}

// StatusPoller watches one document session until it reaches a terminal
// state. It checks the backend at a fixed interval, or consumes a pushed
// status stream when the client supports one, falling back to polling if the
// stream cannot be established.
//
// Transport errors during a check are logged and the poll continues; only a
// report from the backend can finish the poller.
type StatusPoller struct {
	client    backend.Client
	sessionID string
	interval  time.Duration
	cb        Callbacks
	metrics   *observe.Metrics
	useStream bool

	timer *Timer

	mu       sync.Mutex
	finished bool
}

// Option configures a [StatusPoller].
type Option func(*StatusPoller)

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *StatusPoller) { p.metrics = m }
}

// WithStream makes the poller try a pushed status stream before falling back
// to interval polling. Requires the client to implement [Streamer].
func WithStream() Option {
	return func(p *StatusPoller) { p.useStream = true }
}

// New creates a poller for the given session. Call [StatusPoller.Start] to
// begin watching.
func New(client backend.Client, sessionID string, interval time.Duration, cb Callbacks, opts ...Option) *StatusPoller {
	p := &StatusPoller{
		client:    client,
		sessionID: sessionID,
		interval:  interval,
		cb:        cb,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	p.timer = NewTimer(interval, p.tick)
	return p
}

// Start begins watching the session in a background goroutine. The first
// status check happens immediately. Start is a no-op after the first call.
func (p *StatusPoller) Start(ctx context.Context) {
	p.metrics.ActivePolls.Add(ctx, 1)

	if p.useStream {
		if s, ok := p.client.(Streamer); ok {
			go p.consumeStream(ctx, s)
			return
		}
		slog.Debug("status stream requested but client cannot stream, polling instead",
			"session_id", p.sessionID,
		)
	}
	p.timer.Start(ctx)
}

// Stop halts the poller without waiting for an in-flight check. No callbacks
// fire after Stop returns. Safe to call multiple times, including after the
// poller finished on its own.
func (p *StatusPoller) Stop() {
	p.mu.Lock()
	already := p.finished
	p.finished = true
	p.mu.Unlock()

	p.timer.Stop()
	if !already {
		p.metrics.ActivePolls.Add(context.Background(), -1)
	}
}

// consumeStream reads pushed status reports until a terminal state arrives.
// If the stream cannot be established, or closes before a terminal state, the
// poller falls back to interval polling.
func (p *StatusPoller) consumeStream(ctx context.Context, s Streamer) {
	reports, err := s.StatusStream(ctx, p.sessionID)
	if err != nil {
		slog.Warn("status stream unavailable, falling back to polling",
			"session_id", p.sessionID,
			"error", err,
		)
		p.timer.Start(ctx)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case report, ok := <-reports:
			if !ok {
				// Stream ended without a terminal state. The session may
				// still be processing, so keep watching the slow way.
				if !p.done() {
					slog.Warn("status stream closed early, falling back to polling",
						"session_id", p.sessionID,
					)
					p.timer.Start(ctx)
				}
				return
			}
			p.handle(ctx, report)
			if p.done() {
				return
			}
		}
	}
}

// tick performs one status check. Runs on the timer goroutine.
func (p *StatusPoller) tick(ctx context.Context) {
	if p.done() {
		return
	}

	report, err := p.client.Status(ctx, p.sessionID)
	if err != nil {
		slog.Warn("status check failed, will retry",
			"session_id", p.sessionID,
			"error", err,
		)
		return
	}
	p.handle(ctx, report)
}

// handle applies one status report: records the tick, discards stale or
// foreign reports, notifies callbacks, and finishes on terminal states.
func (p *StatusPoller) handle(ctx context.Context, report backend.StatusReport) {
	if report.SessionID != "" && report.SessionID != p.sessionID {
		slog.Debug("discarding status report for foreign session",
			"session_id", p.sessionID,
			"report_session_id", report.SessionID,
		)
		return
	}
	if !report.State.IsValid() {
		slog.Warn("discarding status report with unknown state",
			"session_id", p.sessionID,
			"state", string(report.State),
		)
		return
	}

	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	terminal := report.State.Terminal()
	if terminal {
		p.finished = true
	}
	p.mu.Unlock()

	p.metrics.RecordPollTick(ctx, string(report.State))

	if p.cb.OnUpdate != nil {
		p.cb.OnUpdate(report, Progress(report.State))
	}

	if !terminal {
		return
	}

	p.timer.Stop()
	p.metrics.ActivePolls.Add(ctx, -1)

	switch report.State {
	case backend.StateCompleted:
		if p.cb.OnCompleted != nil {
			p.cb.OnCompleted(report)
		}
	case backend.StateFailed:
		if p.cb.OnFailed != nil {
			p.cb.OnFailed(report)
		}
	}
}

func (p *StatusPoller) done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}
