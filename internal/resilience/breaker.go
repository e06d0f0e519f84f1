// Package resilience provides the circuit breaker guarding backend API calls.
//
// The [Breaker] is a classic three-state breaker (closed → open → half-open).
// It is wrapped around the interactive backend operations (analyze, chat,
// scheme matching, speech synthesis) so that a dead backend fails fast with
// [ErrOpen] instead of stalling the user behind repeated timeouts. Status
// polling deliberately bypasses the breaker: the poller swallows transport
// errors and must keep ticking until a terminal state.
//
// All methods are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Execute] while the breaker is open and the
// cool-down period has not yet elapsed.
var ErrOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed is the normal state — calls are forwarded.
	Closed State = iota

	// Open means the breaker tripped on consecutive failures. Calls are
	// rejected with [ErrOpen] until the cool-down elapses.
	Open

	// HalfOpen is the probe state after the cool-down. A bounded number of
	// calls pass through; success closes the breaker, failure re-opens it.
	HalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings holds the tuning knobs for a [Breaker]. Zero values are replaced
// with defaults by [NewBreaker].
type Settings struct {
	// Name labels the breaker in log messages (e.g. "backend").
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// CoolDown is how long the breaker stays open before allowing probe
	// calls. Default: 30s.
	CoolDown time.Duration

	// ProbeQuota is the number of probe calls permitted in the half-open
	// state before the breaker decides to close or re-open. Default: 3.
	ProbeQuota int
}

// Breaker implements the three-state circuit breaker pattern.
type Breaker struct {
	name        string
	maxFailures int
	coolDown    time.Duration
	probeQuota  int

	mu         sync.Mutex
	state      State
	failures   int
	lastFail   time.Time
	probes     int
	probeFails int
}

// NewBreaker creates a [Breaker] from the given settings, substituting
// defaults for zero-valued fields.
func NewBreaker(s Settings) *Breaker {
	if s.MaxFailures <= 0 {
		s.MaxFailures = 5
	}
	if s.CoolDown <= 0 {
		s.CoolDown = 30 * time.Second
	}
	if s.ProbeQuota <= 0 {
		s.ProbeQuota = 3
	}
	return &Breaker{
		name:        s.Name,
		maxFailures: s.MaxFailures,
		coolDown:    s.CoolDown,
		probeQuota:  s.ProbeQuota,
		state:       Closed,
	}
}

// Execute runs fn if the breaker permits it. In the open state it returns
// [ErrOpen] without invoking fn. In the half-open state at most ProbeQuota
// probe calls are let through.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.lastFail) < b.coolDown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("circuit breaker half-open, probing", "name", b.name)

	case HalfOpen:
		if b.probes >= b.probeQuota {
			b.mu.Unlock()
			return ErrOpen
		}
	}

	probing := b.state == HalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure records a failed call. Must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.lastFail = time.Now()

	if probing {
		// A single failed probe re-opens immediately.
		b.probeFails++
		b.state = Open
		b.failures = b.maxFailures
		slog.Warn("circuit breaker re-opened after failed probe", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.maxFailures {
		b.state = Open
		slog.Warn("circuit breaker opened",
			"name", b.name,
			"consecutive_failures", b.failures,
		)
	}
}

// onSuccess records a successful call. Must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFails >= b.probeQuota {
			b.state = Closed
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			slog.Info("circuit breaker closed after successful probes", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State returns the breaker's current state. An open breaker whose cool-down
// has elapsed is reported as [HalfOpen]; the actual transition happens on the
// next [Breaker.Execute].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.lastFail) >= b.coolDown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [Closed], clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
}
