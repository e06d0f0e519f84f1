// Package mock provides scripted test doubles for the audio ports.
//
// [Player.Load] returns preconfigured [Playback] values (or an error), and
// every transport call on a Playback is recorded in order so tests can assert
// sequencing — in particular that an old resource is paused and closed before
// a new one starts. Both types are safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/tanmayd/vaidya/pkg/audio"
)

// Player is a configurable test double for [audio.Player].
type Player struct {
	mu   sync.Mutex
	urls []string

	// LoadErr is returned by [Player.Load] when non-nil.
	LoadErr error

	// Playbacks is consumed one per Load call; when exhausted (or empty) a
	// fresh zero-value [Playback] is returned.
	Playbacks []*Playback

	loadIdx int
}

// Compile-time check that *Player satisfies [audio.Player].
var _ audio.Player = (*Player)(nil)

// Load implements [audio.Player].
func (p *Player) Load(_ context.Context, url string) (audio.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.urls = append(p.urls, url)
	if p.LoadErr != nil {
		return nil, p.LoadErr
	}
	if p.loadIdx < len(p.Playbacks) {
		pb := p.Playbacks[p.loadIdx]
		p.loadIdx++
		return pb, nil
	}
	return &Playback{}, nil
}

// LoadedURLs returns the URLs passed to Load, in order.
func (p *Player) LoadedURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.urls))
	copy(out, p.urls)
	return out
}

// Playback is a recording test double for [audio.Playback].
type Playback struct {
	mu    sync.Mutex
	calls []string
	rate  float64
	pos   float64

	// DurationVal is returned by [Playback.Duration].
	DurationVal float64

	// CloseErr is returned by the first Close call when non-nil.
	CloseErr error

	events chan audio.Event
	closed bool
}

// Compile-time check that *Playback satisfies [audio.Playback].
var _ audio.Playback = (*Playback)(nil)

// Calls returns the recorded transport calls in order (e.g. "Play", "Seek").
func (pb *Playback) Calls() []string {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	out := make([]string, len(pb.calls))
	copy(out, pb.calls)
	return out
}

// Closed reports whether Close has been called at least once.
func (pb *Playback) Closed() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.closed
}

// Rate returns the last rate passed to SetRate (0 if never set).
func (pb *Playback) Rate() float64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.rate
}

// Emit pushes an event to the playback's event stream. Must not be called
// after Close.
func (pb *Playback) Emit(ev audio.Event) {
	pb.mu.Lock()
	ch := pb.eventsLocked()
	pb.mu.Unlock()
	ch <- ev
}

// eventsLocked lazily creates the event channel. Must be called with pb.mu held.
func (pb *Playback) eventsLocked() chan audio.Event {
	if pb.events == nil {
		pb.events = make(chan audio.Event, 16)
	}
	return pb.events
}

func (pb *Playback) record(call string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.calls = append(pb.calls, call)
}

// Play implements [audio.Playback].
func (pb *Playback) Play() { pb.record("Play") }

// Pause implements [audio.Playback].
func (pb *Playback) Pause() { pb.record("Pause") }

// Seek implements [audio.Playback].
func (pb *Playback) Seek(seconds float64) {
	pb.mu.Lock()
	pb.pos = seconds
	pb.calls = append(pb.calls, "Seek")
	pb.mu.Unlock()
}

// SetRate implements [audio.Playback].
func (pb *Playback) SetRate(rate float64) {
	pb.mu.Lock()
	pb.rate = rate
	pb.calls = append(pb.calls, "SetRate")
	pb.mu.Unlock()
}

// Position implements [audio.Playback].
func (pb *Playback) Position() float64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.pos
}

// Duration implements [audio.Playback].
func (pb *Playback) Duration() float64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.DurationVal
}

// Events implements [audio.Playback].
func (pb *Playback) Events() <-chan audio.Event {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.eventsLocked()
}

// Close implements [audio.Playback]. The first call records "Close" and
// closes the event stream; subsequent calls are no-ops returning nil.
func (pb *Playback) Close() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.closed {
		return nil
	}
	pb.closed = true
	pb.calls = append(pb.calls, "Close")
	close(pb.eventsLocked())
	return pb.CloseErr
}
