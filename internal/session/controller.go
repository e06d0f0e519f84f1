package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tanmayd/vaidya/internal/analysis"
	audioctl "github.com/tanmayd/vaidya/internal/audio"
	"github.com/tanmayd/vaidya/internal/chat"
	"github.com/tanmayd/vaidya/internal/config"
	"github.com/tanmayd/vaidya/internal/observe"
	"github.com/tanmayd/vaidya/internal/poll"
	"github.com/tanmayd/vaidya/internal/scheme"
	"github.com/tanmayd/vaidya/internal/upload"
	"github.com/tanmayd/vaidya/pkg/audio"
	"github.com/tanmayd/vaidya/pkg/backend"
)

// ProcessingError reports a document the backend pipeline could not process.
type ProcessingError struct {
	Message string
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	if e.Message == "" {
		return "session: processing failed"
	}
	return "session: processing failed: " + e.Message
}

// Controller drives one document session at a time. All state transitions
// happen under a single lock, and observers see them in order.
type Controller struct {
	client   backend.Client
	cfg      *config.Config
	metrics  *observe.Metrics
	analyses *analysis.Coordinator

	// audio persists across sessions so the chosen speed survives a reset.
	audio *audioctl.Controller

	mu       sync.Mutex
	snap     Snapshot
	poller   *poll.StatusPoller
	chat     *chat.Session
	schemes  *scheme.Matcher
	closers  []func() error
	onChange func(Snapshot)
}

// Option configures a [Controller].
type Option func(*Controller)

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController wires a session controller from its collaborators. The
// player renders synthesized speech; cfg supplies language, poll cadence,
// and audio defaults.
func NewController(client backend.Client, player audio.Player, cfg *config.Config, opts ...Option) *Controller {
	c := &Controller{
		client:   client,
		cfg:      cfg,
		analyses: analysis.NewCoordinator(client),
		snap:     Snapshot{Step: StepUpload},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.audio = audioctl.NewController(client, player,
		audioctl.WithDefaultSpeed(cfg.Audio.DefaultSpeed),
		audioctl.WithCacheTTL(cfg.Audio.CacheTTL),
	)
	return c
}

// OnChange registers an observer that receives a snapshot after every state
// change. Only one observer is supported; a second call replaces the first.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Audio returns the playback controller. It is always available; playback
// operations on it are no-ops until something has been played.
func (c *Controller) Audio() *audioctl.Controller {
	return c.audio
}

// Upload starts a new session with the given document. Any active session is
// reset first. The document is validated locally before the backend is
// called; rejected documents leave the controller on the upload step with
// LastError set. On success the controller moves to the processing step and
// watches the backend until processing finishes. ctx must outlive the
// session: cancelling it stops the status watch.
func (c *Controller) Upload(ctx context.Context, doc backend.Document) error {
	if err := c.Reset(ctx); err != nil {
		return err
	}

	if err := upload.Validate(&doc); err != nil {
		c.apply(func(s *Snapshot) { s.LastError = err })
		return err
	}

	ctx, span := observe.StartSpan(ctx, "session.upload")
	defer span.End()

	receipt, err := c.client.Upload(ctx, doc)
	if err != nil {
		err = fmt.Errorf("session: upload: %w", err)
		c.apply(func(s *Snapshot) { s.LastError = err })
		return err
	}

	sid := receipt.SessionID
	poller := poll.New(c.client, sid, c.cfg.Poll.Interval, poll.Callbacks{
		OnUpdate: func(report backend.StatusReport, percent int) {
			c.applyIfCurrent(sid, func(s *Snapshot) {
				s.State = report.State
				s.Progress = percent
				s.Message = report.Message
			})
		},
		OnCompleted: func(report backend.StatusReport) {
			c.complete(ctx, sid, receipt.DocumentID)
		},
		OnFailed: func(report backend.StatusReport) {
			c.applyIfCurrent(sid, func(s *Snapshot) {
				s.Step = StepUpload
				s.LastError = &ProcessingError{Message: report.Message}
			})
		},
	}, c.pollOptions()...)

	c.mu.Lock()
	c.snap = Snapshot{
		Step:       StepProcessing,
		SessionID:  sid,
		DocumentID: receipt.DocumentID,
		State:      backend.StatePending,
		Progress:   poll.Progress(backend.StatePending),
	}
	c.poller = poller
	c.closers = append(c.closers, func() error {
		poller.Stop()
		return nil
	})
	fn := c.onChange
	snap := c.snap
	c.mu.Unlock()

	c.metrics.ActiveSessions.Add(ctx, 1)
	poller.Start(ctx)

	if fn != nil {
		fn(snap)
	}
	return nil
}

func (c *Controller) pollOptions() []poll.Option {
	opts := []poll.Option{poll.WithMetrics(c.metrics)}
	if c.cfg.Backend.UseStatusStream {
		opts = append(opts, poll.WithStream())
	}
	return opts
}

// complete fetches the analysis for a finished document and opens the
// results step. Runs on the poller goroutine after a completed status, and
// again on [Controller.RetryAnalysis].
func (c *Controller) complete(ctx context.Context, sid, docID string) error {
	ctx, span := observe.StartSpan(ctx, "session.analyze")
	defer span.End()

	a, err := c.analyses.Get(ctx, backend.AnalyzeRequest{
		SessionID:  sid,
		DocumentID: docID,
		Language:   string(c.cfg.Language),
	})
	if err != nil {
		// The document did process; only interpretation failed. The step is
		// kept so the analysis can be retried without re-uploading.
		c.applyIfCurrent(sid, func(s *Snapshot) {
			s.State = backend.StateCompleted
			s.Progress = poll.Progress(backend.StateCompleted)
			s.LastError = err
		})
		return err
	}

	thread := chat.NewSession(c.client, sid, string(c.cfg.Language), chat.WithMetrics(c.metrics))
	matcher := scheme.NewMatcher(c.client, sid, string(c.cfg.Language))

	c.mu.Lock()
	if c.snap.SessionID != sid {
		c.mu.Unlock()
		return nil
	}
	c.chat = thread
	c.schemes = matcher
	c.closers = append(c.closers,
		func() error {
			c.audio.Pause()
			return c.audio.Shutdown()
		},
		func() error {
			thread.Clear()
			return nil
		},
		func() error {
			matcher.Invalidate()
			return nil
		},
	)
	c.snap.Step = StepResults
	c.snap.State = backend.StateCompleted
	c.snap.Progress = poll.Progress(backend.StateCompleted)
	c.snap.Analysis = &a
	c.snap.LastError = nil
	fn := c.onChange
	snap := c.snap
	c.mu.Unlock()

	if a.Emergency != nil && a.Emergency.Detected {
		observe.Logger(ctx).Warn("emergency finding detected",
			"session_id", sid,
			"reason", a.Emergency.Reason,
		)
	}
	if fn != nil {
		fn(snap)
	}
	return nil
}

// RetryAnalysis fetches the analysis again after a failed interpretation of a
// processed document. The document does not need re-uploading; failures are
// not cached, so the backend is called afresh.
func (c *Controller) RetryAnalysis(ctx context.Context) error {
	c.mu.Lock()
	snap := c.snap
	c.mu.Unlock()

	if snap.SessionID == "" {
		return ErrNoSession
	}
	if snap.Step == StepResults {
		return nil
	}
	if snap.State != backend.StateCompleted {
		return ErrNotReady
	}
	return c.complete(ctx, snap.SessionID, snap.DocumentID)
}

// Reset tears the session down from any state: the status watch stops, audio
// is released, the chat thread empties, and the backend document is deleted
// best-effort. Idempotent; resetting an idle controller is a no-op.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.snap.SessionID == "" && len(c.closers) == 0 {
		c.snap = Snapshot{Step: StepUpload}
		c.mu.Unlock()
		return nil
	}
	sid := c.snap.SessionID
	closers := c.closers
	c.closers = nil
	c.poller = nil
	c.chat = nil
	c.schemes = nil
	c.snap = Snapshot{Step: StepUpload}
	fn := c.onChange
	snap := c.snap
	c.mu.Unlock()

	// Tear down in reverse of creation order.
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			slog.Warn("closer error during reset", "index", i, "error", err)
		}
	}

	if sid != "" {
		c.analyses.Invalidate(sid)
		c.metrics.ActiveSessions.Add(ctx, -1)
		if err := c.client.DeleteDocument(ctx, sid); err != nil {
			slog.Warn("remote document delete failed",
				"session_id", sid,
				"error", err,
			)
		}
	}

	if fn != nil {
		fn(snap)
	}
	return nil
}

// Ask submits a follow-up question on the results step. Serial: a second
// question while one is in flight fails with [chat.ErrBusy].
func (c *Controller) Ask(ctx context.Context, question string) (chat.Turn, error) {
	c.mu.Lock()
	thread := c.chat
	sid := c.snap.SessionID
	c.mu.Unlock()

	if thread == nil {
		if sid == "" {
			return chat.Turn{}, ErrNoSession
		}
		return chat.Turn{}, ErrNotReady
	}
	return thread.Ask(ctx, question)
}

// Transcript returns the chat thread so far. Empty when no session or before
// results.
func (c *Controller) Transcript() []chat.Turn {
	c.mu.Lock()
	thread := c.chat
	c.mu.Unlock()
	if thread == nil {
		return nil
	}
	return thread.Turns()
}

// PlaySummary speaks the analysis summary aloud in the session language.
// Requires the results step.
func (c *Controller) PlaySummary(ctx context.Context) error {
	c.mu.Lock()
	snap := c.snap
	c.mu.Unlock()

	if snap.Analysis == nil {
		if snap.SessionID == "" {
			return ErrNoSession
		}
		return ErrNotReady
	}
	return c.audio.Play(ctx, snap.Analysis.Summary, string(c.cfg.Language))
}

// MatchSchemes checks the profile against the welfare scheme catalogue. On
// the results step the query carries the session so the backend can use the
// document's findings; otherwise it runs standalone.
func (c *Controller) MatchSchemes(ctx context.Context, p scheme.Profile) (backend.SchemeResult, error) {
	c.mu.Lock()
	matcher := c.schemes
	if matcher == nil {
		matcher = scheme.NewMatcher(c.client, c.snap.SessionID, string(c.cfg.Language))
		c.schemes = matcher
	}
	c.mu.Unlock()
	return matcher.Match(ctx, p)
}

// SchemeResult returns the most recent successful scheme match, if any.
func (c *Controller) SchemeResult() (backend.SchemeResult, bool) {
	c.mu.Lock()
	matcher := c.schemes
	c.mu.Unlock()
	if matcher == nil {
		return backend.SchemeResult{}, false
	}
	return matcher.Result()
}

// SendSummarySMS texts the analysis summary to the given phone number.
// Requires the results step.
func (c *Controller) SendSummarySMS(ctx context.Context, phone string, includeSchemes bool) (backend.SMSReceipt, error) {
	c.mu.Lock()
	snap := c.snap
	c.mu.Unlock()

	if snap.Analysis == nil {
		if snap.SessionID == "" {
			return backend.SMSReceipt{}, ErrNoSession
		}
		return backend.SMSReceipt{}, ErrNotReady
	}

	receipt, err := c.client.SendSummarySMS(ctx, backend.SMSRequest{
		SessionID:      snap.SessionID,
		Phone:          phone,
		IncludeSchemes: includeSchemes,
		Language:       string(c.cfg.Language),
	})
	if err != nil {
		return backend.SMSReceipt{}, fmt.Errorf("session: send sms: %w", err)
	}
	return receipt, nil
}

// apply mutates the snapshot and notifies the observer.
func (c *Controller) apply(mutate func(*Snapshot)) {
	c.mu.Lock()
	mutate(&c.snap)
	fn := c.onChange
	snap := c.snap
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// applyIfCurrent mutates the snapshot only when sid is still the active
// session, discarding late poller callbacks from a session that was reset.
func (c *Controller) applyIfCurrent(sid string, mutate func(*Snapshot)) {
	c.mu.Lock()
	if c.snap.SessionID != sid {
		c.mu.Unlock()
		return
	}
	mutate(&c.snap)
	fn := c.onChange
	snap := c.snap
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
