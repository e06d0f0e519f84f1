package audio_test

import (
	"testing"

	"github.com/tanmayd/vaidya/pkg/audio"
	audiomock "github.com/tanmayd/vaidya/pkg/audio/mock"
)

func TestHandle_SwapReleasesPreviousFirst(t *testing.T) {
	h := &audio.Handle{}
	first := &audiomock.Playback{}
	second := &audiomock.Playback{}

	if err := h.Swap(first); err != nil {
		t.Fatalf("first Swap: %v", err)
	}
	if h.Get() != first {
		t.Fatal("expected first playback to be held")
	}

	if err := h.Swap(second); err != nil {
		t.Fatalf("second Swap: %v", err)
	}

	// The old resource must be paused and closed before the new one is held.
	calls := first.Calls()
	if len(calls) != 2 || calls[0] != "Pause" || calls[1] != "Close" {
		t.Errorf("expected [Pause Close] on the old playback, got %v", calls)
	}
	if h.Get() != second {
		t.Error("expected second playback to be held")
	}
	if second.Closed() {
		t.Error("new playback must not be closed by Swap")
	}
}

func TestHandle_ReleaseIsIdempotent(t *testing.T) {
	h := &audio.Handle{}
	pb := &audiomock.Playback{}

	_ = h.Swap(pb)
	if err := h.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if h.Live() {
		t.Error("expected no live playback after Release")
	}
	if !pb.Closed() {
		t.Error("expected playback to be closed")
	}

	// Releasing an empty handle is a no-op.
	if err := h.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if got := pb.Calls(); len(got) != 2 {
		t.Errorf("expected no further calls after second Release, got %v", got)
	}
}

func TestHandle_SwapReportsCloseError(t *testing.T) {
	h := &audio.Handle{}
	broken := &audiomock.Playback{CloseErr: errClose}
	replacement := &audiomock.Playback{}

	_ = h.Swap(broken)
	if err := h.Swap(replacement); err == nil {
		t.Error("expected close error to propagate from Swap")
	}
	// Ownership still transfers despite the close error.
	if h.Get() != replacement {
		t.Error("expected replacement to be held after close error")
	}
}

var errClose = &closeError{}

type closeError struct{}

func (*closeError) Error() string { return "close failed" }
