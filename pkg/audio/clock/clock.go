// Package clock provides a wall-clock simulated [audio.Playback] for
// headless environments: the position advances with elapsed time scaled by
// the playback rate, and progress events are emitted on a fixed interval.
// No sound is produced.
//
// The reference CLI uses it so the full session flow (synthesize → play →
// seek → speed) can be exercised without a sound device; tests use it for
// deterministic-enough timing behaviour.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/tanmayd/vaidya/pkg/audio"
)

const (
	defaultDuration = 60 * time.Second
	defaultTick     = 500 * time.Millisecond
)

// Option is a functional option for configuring a [Player].
type Option func(*Player)

// WithDuration sets the simulated resource duration. Default: 60s.
func WithDuration(d time.Duration) Option {
	return func(p *Player) {
		p.duration = d
	}
}

// WithTick sets the progress event interval. Default: 500ms.
func WithTick(d time.Duration) Option {
	return func(p *Player) {
		p.tick = d
	}
}

// Player implements [audio.Player] with clock-driven simulated playbacks.
type Player struct {
	duration time.Duration
	tick     time.Duration
}

// Compile-time check that *Player satisfies [audio.Player].
var _ audio.Player = (*Player)(nil)

// NewPlayer creates a simulated player.
func NewPlayer(opts ...Option) *Player {
	p := &Player{
		duration: defaultDuration,
		tick:     defaultTick,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Load implements [audio.Player]. The URL is accepted without being fetched.
func (p *Player) Load(_ context.Context, _ string) (audio.Playback, error) {
	pb := &playback{
		duration: p.duration.Seconds(),
		rate:     1.0,
		events:   make(chan audio.Event, 16),
		done:     make(chan struct{}),
	}
	go pb.loop(p.tick)
	return pb, nil
}

// playback is a clock-driven [audio.Playback].
type playback struct {
	mu       sync.Mutex
	playing  bool
	base     float64   // accumulated position up to resumedAt
	resumed  time.Time // when playback last transitioned to playing
	rate     float64
	duration float64
	ended    bool

	events    chan audio.Event
	done      chan struct{}
	closeOnce sync.Once
}

// position computes the current position. Must be called with pb.mu held.
func (pb *playback) position() float64 {
	pos := pb.base
	if pb.playing {
		pos += time.Since(pb.resumed).Seconds() * pb.rate
	}
	if pos > pb.duration {
		pos = pb.duration
	}
	return pos
}

// freeze folds elapsed time into base. Must be called with pb.mu held.
func (pb *playback) freeze() {
	pb.base = pb.position()
	pb.resumed = time.Now()
}

// loop emits progress events and an ended event each time the position
// reaches the duration. It keeps running after the end so a seek-back can
// resume playback; only Close terminates it. The loop is the sole sender on
// the events channel and closes it on exit.
func (pb *playback) loop(tick time.Duration) {
	defer close(pb.events)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-pb.done:
			return
		case <-ticker.C:
			pb.mu.Lock()
			if !pb.playing {
				pb.mu.Unlock()
				continue
			}
			pos := pb.position()
			atEnd := pos >= pb.duration && !pb.ended
			if atEnd {
				pb.ended = true
				pb.playing = false
				pb.base = pb.duration
			}
			pb.mu.Unlock()

			if atEnd {
				pb.emit(audio.Event{Kind: audio.EventEnded, Position: pos})
				continue
			}
			pb.emit(audio.Event{Kind: audio.EventProgress, Position: pos})
		}
	}
}

// emit delivers an event unless the playback has been closed.
func (pb *playback) emit(ev audio.Event) {
	select {
	case pb.events <- ev:
	case <-pb.done:
	}
}

// Play implements [audio.Playback].
func (pb *playback) Play() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.playing || pb.ended {
		return
	}
	pb.playing = true
	pb.resumed = time.Now()
}

// Pause implements [audio.Playback].
func (pb *playback) Pause() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if !pb.playing {
		return
	}
	pb.freeze()
	pb.playing = false
}

// Seek implements [audio.Playback].
func (pb *playback) Seek(seconds float64) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	if seconds > pb.duration {
		seconds = pb.duration
	}
	pb.base = seconds
	pb.resumed = time.Now()
	if seconds < pb.duration {
		pb.ended = false
	}
}

// SetRate implements [audio.Playback].
func (pb *playback) SetRate(rate float64) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if rate <= 0 {
		return
	}
	pb.freeze()
	pb.rate = rate
}

// Position implements [audio.Playback].
func (pb *playback) Position() float64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.position()
}

// Duration implements [audio.Playback].
func (pb *playback) Duration() float64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.duration
}

// Events implements [audio.Playback].
func (pb *playback) Events() <-chan audio.Event {
	return pb.events
}

// Close implements [audio.Playback]. Safe to call multiple times.
func (pb *playback) Close() error {
	pb.closeOnce.Do(func() {
		pb.mu.Lock()
		pb.freeze()
		pb.playing = false
		pb.mu.Unlock()
		close(pb.done)
	})
	return nil
}
