// Package mock provides a configurable, recording test double for
// [backend.Client].
//
// Every method call is recorded for assertion in tests; exported fields
// control what the mock returns. Scripted status sequences let tests drive a
// poller through an arbitrary progression of processing states. The mock is
// safe for concurrent use.
//
// Typical usage:
//
//	api := &mock.Client{}
//	api.StatusScript = []mock.StatusStep{
//	    {Report: backend.StatusReport{State: backend.StatePending}},
//	    {Report: backend.StatusReport{State: backend.StateCompleted}},
//	}
//
//	// inject api into the system under test …
//
//	if got := api.CallCount("Status"); got != 2 {
//	    t.Errorf("expected 2 Status calls, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/tanmayd/vaidya/pkg/backend"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// StatusStep is one scripted response from [Client.Status]. When Err is
// non-nil the step fails with that error and Report is ignored.
type StatusStep struct {
	Report backend.StatusReport
	Err    error
}

// Client is a configurable test double for [backend.Client]. All *Err fields
// default to nil (success); all *Result fields default to their zero value.
type Client struct {
	mu    sync.Mutex
	calls []Call

	// statusIdx tracks progress through StatusScript.
	statusIdx int

	// UploadResult and UploadErr control [Client.Upload].
	UploadResult backend.UploadReceipt
	UploadErr    error

	// StatusScript is consumed one step per [Client.Status] call; the final
	// step repeats once the script is exhausted. An empty script yields a
	// zero report.
	StatusScript []StatusStep

	// StatusHook, when non-nil, overrides StatusScript entirely.
	StatusHook func(sessionID string) (backend.StatusReport, error)

	// AnalyzeResult and AnalyzeErr control [Client.Analyze].
	AnalyzeResult backend.Analysis
	AnalyzeErr    error

	// SynthesizeResult and SynthesizeErr control [Client.Synthesize].
	SynthesizeResult backend.Speech
	SynthesizeErr    error

	// AskResult and AskErr control [Client.Ask]. AskHook, when non-nil,
	// overrides both — useful for blocking a call mid-flight.
	AskResult backend.Answer
	AskErr    error
	AskHook   func(q backend.Question) (backend.Answer, error)

	// MatchResult and MatchErr control [Client.MatchSchemes].
	MatchResult backend.SchemeResult
	MatchErr    error

	// SMSResult and SMSErr control [Client.SendSummarySMS].
	SMSResult backend.SMSReceipt
	SMSErr    error

	// DeleteErr controls [Client.DeleteDocument].
	DeleteErr error

	// HealthErr controls [Client.Health].
	HealthErr error
}

// Compile-time check that *Client satisfies [backend.Client].
var _ backend.Client = (*Client)(nil)

// Calls returns a copy of all recorded method invocations in order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (c *Client) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls and rewinds the status script without altering
// response configuration.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
	c.statusIdx = 0
}

// record appends one call entry.
func (c *Client) record(method string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Method: method, Args: args})
}

// Upload implements [backend.Client].
func (c *Client) Upload(_ context.Context, doc backend.Document) (backend.UploadReceipt, error) {
	c.record("Upload", doc)
	if c.UploadErr != nil {
		return backend.UploadReceipt{}, c.UploadErr
	}
	return c.UploadResult, nil
}

// Status implements [backend.Client], consuming the next scripted step.
func (c *Client) Status(_ context.Context, sessionID string) (backend.StatusReport, error) {
	c.record("Status", sessionID)

	if c.StatusHook != nil {
		return c.StatusHook(sessionID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.StatusScript) == 0 {
		return backend.StatusReport{}, nil
	}
	step := c.StatusScript[c.statusIdx]
	if c.statusIdx < len(c.StatusScript)-1 {
		c.statusIdx++
	}
	if step.Err != nil {
		return backend.StatusReport{}, step.Err
	}
	return step.Report, nil
}

// Analyze implements [backend.Client].
func (c *Client) Analyze(_ context.Context, req backend.AnalyzeRequest) (backend.Analysis, error) {
	c.record("Analyze", req)
	if c.AnalyzeErr != nil {
		return backend.Analysis{}, c.AnalyzeErr
	}
	return c.AnalyzeResult, nil
}

// Synthesize implements [backend.Client].
func (c *Client) Synthesize(_ context.Context, req backend.SynthesizeRequest) (backend.Speech, error) {
	c.record("Synthesize", req)
	if c.SynthesizeErr != nil {
		return backend.Speech{}, c.SynthesizeErr
	}
	return c.SynthesizeResult, nil
}

// Ask implements [backend.Client].
func (c *Client) Ask(_ context.Context, q backend.Question) (backend.Answer, error) {
	c.record("Ask", q)
	if c.AskHook != nil {
		return c.AskHook(q)
	}
	if c.AskErr != nil {
		return backend.Answer{}, c.AskErr
	}
	return c.AskResult, nil
}

// MatchSchemes implements [backend.Client].
func (c *Client) MatchSchemes(_ context.Context, q backend.SchemeQuery) (backend.SchemeResult, error) {
	c.record("MatchSchemes", q)
	if c.MatchErr != nil {
		return backend.SchemeResult{}, c.MatchErr
	}
	return c.MatchResult, nil
}

// SendSummarySMS implements [backend.Client].
func (c *Client) SendSummarySMS(_ context.Context, req backend.SMSRequest) (backend.SMSReceipt, error) {
	c.record("SendSummarySMS", req)
	if c.SMSErr != nil {
		return backend.SMSReceipt{}, c.SMSErr
	}
	return c.SMSResult, nil
}

// DeleteDocument implements [backend.Client].
func (c *Client) DeleteDocument(_ context.Context, sessionID string) error {
	c.record("DeleteDocument", sessionID)
	return c.DeleteErr
}

// Health implements [backend.Client].
func (c *Client) Health(_ context.Context) error {
	c.record("Health")
	return c.HealthErr
}
