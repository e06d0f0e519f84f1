package resilience

import (
	"errors"
	"testing"
	"time"
)

var errCallFailed = errors.New("call failed")

func failingCall() error { return errCallFailed }
func okCall() error      { return nil }

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", MaxFailures: 3, CoolDown: time.Hour})

	for i := 0; i < 3; i++ {
		if err := b.Execute(failingCall); !errors.Is(err, errCallFailed) {
			t.Fatalf("call %d: expected call error, got %v", i, err)
		}
	}

	if got := b.State(); got != Open {
		t.Fatalf("expected Open after 3 failures, got %v", got)
	}
	if err := b.Execute(okCall); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen while open, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", MaxFailures: 3, CoolDown: time.Hour})

	_ = b.Execute(failingCall)
	_ = b.Execute(failingCall)
	_ = b.Execute(okCall)
	_ = b.Execute(failingCall)
	_ = b.Execute(failingCall)

	if got := b.State(); got != Closed {
		t.Fatalf("expected Closed (no 3 consecutive failures), got %v", got)
	}
}

func TestBreaker_HalfOpenAfterCoolDown(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", MaxFailures: 1, CoolDown: 10 * time.Millisecond, ProbeQuota: 1})

	_ = b.Execute(failingCall)
	if got := b.State(); got != Open {
		t.Fatalf("expected Open, got %v", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := b.State(); got != HalfOpen {
		t.Fatalf("expected HalfOpen after cool-down, got %v", got)
	}

	// A successful probe closes the breaker.
	if err := b.Execute(okCall); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if got := b.State(); got != Closed {
		t.Fatalf("expected Closed after successful probe, got %v", got)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", MaxFailures: 1, CoolDown: 10 * time.Millisecond, ProbeQuota: 1})

	_ = b.Execute(failingCall)
	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(failingCall); !errors.Is(err, errCallFailed) {
		t.Fatalf("expected call error on probe, got %v", err)
	}
	if err := b.Execute(okCall); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen after failed probe, got %v", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", MaxFailures: 1, CoolDown: time.Hour})

	_ = b.Execute(failingCall)
	if got := b.State(); got != Open {
		t.Fatalf("expected Open, got %v", got)
	}

	b.Reset()
	if got := b.State(); got != Closed {
		t.Fatalf("expected Closed after Reset, got %v", got)
	}
	if err := b.Execute(okCall); err != nil {
		t.Fatalf("expected call to pass after Reset, got %v", err)
	}
}

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker(Settings{})
	if b.maxFailures != 5 || b.coolDown != 30*time.Second || b.probeQuota != 3 {
		t.Errorf("unexpected defaults: maxFailures=%d coolDown=%v probeQuota=%d",
			b.maxFailures, b.coolDown, b.probeQuota)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		Closed:   "closed",
		Open:     "open",
		HalfOpen: "half-open",
		State(9): "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
