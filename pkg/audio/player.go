// Package audio defines the playback ports consumed by the session engine's
// audio controller.
//
// The two primary abstractions are:
//
//   - [Player] — loads a synthesized audio URL and returns a [Playback].
//   - [Playback] — one live playable resource with transport controls and a
//     lifecycle event stream.
//
// The engine never decodes or renders audio itself; the presentation layer
// supplies a Player backed by whatever sound device it has. The clock
// subpackage provides a wall-clock simulated Playback for headless use, and
// the mock subpackage provides scripted test doubles.
//
// This package lives under pkg/ because external adapters are expected to
// implement [Player] and [Playback].
package audio

import "context"

// EventKind classifies playback lifecycle events.
type EventKind int

const (
	// EventProgress reports a position update during playback.
	EventProgress EventKind = iota

	// EventEnded signals that playback reached the end of the resource.
	EventEnded

	// EventErrored signals that the resource failed to load or play. The
	// playback is unusable afterwards; Err carries the cause.
	EventErrored
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventEnded:
		return "ended"
	case EventErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Event is one playback lifecycle notification.
type Event struct {
	// Kind classifies the event.
	Kind EventKind

	// Position is the playback position in seconds at the time of the event.
	Position float64

	// Err is set for [EventErrored] events.
	Err error
}

// Playback is a single live audio resource.
//
// The Events channel is closed when the playback is closed.
// Implementations must be safe for concurrent use, and Close must be
// idempotent.
type Playback interface {
	// Play starts or resumes playback.
	Play()

	// Pause halts playback, retaining the current position.
	Pause()

	// Seek jumps to the given position in seconds, clamped to the resource
	// duration.
	Seek(seconds float64)

	// SetRate adjusts the playback speed multiplier (1.0 = normal).
	SetRate(rate float64)

	// Position returns the current playback position in seconds.
	Position() float64

	// Duration returns the total resource duration in seconds, or 0 when
	// unknown.
	Duration() float64

	// Events returns the lifecycle event stream for this resource.
	Events() <-chan Event

	// Close releases the resource. Safe to call multiple times.
	Close() error
}

// Player loads playable resources. Implementations wrap a concrete audio
// output (or simulate one).
type Player interface {
	// Load fetches the audio at url and prepares it for playback. The
	// returned Playback starts paused at position zero.
	Load(ctx context.Context, url string) (Playback, error)
}
