// Package audio coordinates speech synthesis and playback for the session
// engine. It turns analysis text into a playable resource via the backend,
// caches presigned audio URLs until they expire, and holds exactly one live
// playback at a time.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tanmayd/vaidya/pkg/audio"
	"github.com/tanmayd/vaidya/pkg/backend"
)

// ErrNothingToPlay is returned by Play when the text to speak is empty.
var ErrNothingToPlay = errors.New("audio: nothing to play")

// urlSafetyMargin is subtracted from a presigned URL's lifetime so a cached
// entry is never handed out moments before it expires.
const urlSafetyMargin = 30 * time.Second

// PlaybackError reports a failure inside a live playback. It does not tear
// down the controller; the user can retry with a fresh Play.
type PlaybackError struct {
	Err error
}

// Error implements the error interface.
func (e *PlaybackError) Error() string {
	return fmt.Sprintf("audio: playback failed: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *PlaybackError) Unwrap() error { return e.Err }

// State is a snapshot of the controller for display.
type State struct {
	// Playing reports whether audio is currently advancing.
	Playing bool

	// Live reports whether a playback resource is held, playing or paused.
	Live bool

	// Position and Duration are in seconds. Zero when nothing is live.
	Position float64
	Duration float64

	// Speed is the persisted playback rate.
	Speed float64

	// Language of the last synthesized speech.
	Language string

	// Err is the most recent playback error, if any. Cleared by Play.
	Err error
}

// Controller owns the single audio playback of a session. Safe for
// concurrent use.
type Controller struct {
	client backend.Client
	player audio.Player
	urls   *cache.Cache
	ttl    time.Duration

	handle audio.Handle

	mu       sync.Mutex
	speed    float64
	language string
	text     string
	playing  bool
	position float64
	duration float64
	lastErr  error
}

// Option configures a [Controller].
type Option func(*Controller)

// WithDefaultSpeed sets the initial playback rate. Defaults to 1.0.
func WithDefaultSpeed(speed float64) Option {
	return func(c *Controller) { c.speed = speed }
}

// WithCacheTTL caps how long a synthesized URL is reused. The URL's own
// expiry still applies when it is sooner. Defaults to 50 minutes.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Controller) { c.ttl = ttl }
}

// NewController returns a controller that synthesizes through client and
// plays through player.
func NewController(client backend.Client, player audio.Player, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		player: player,
		speed:  1.0,
		ttl:    50 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.urls = cache.New(c.ttl, 10*time.Minute)
	return c
}

// Play releases any previous playback, then synthesizes text in the given
// language and starts playback from the beginning. The old resource is gone
// before the new one starts loading. The persisted speed is applied to the
// new resource. A cached audio URL is reused while it remains valid.
func (c *Controller) Play(ctx context.Context, text, language string) error {
	if text == "" {
		return ErrNothingToPlay
	}

	// The previous playback must be fully released before the replacement
	// even starts loading; two resources are never live at once.
	if err := c.handle.Release(); err != nil {
		slog.Warn("previous playback did not close cleanly", "error", err)
	}
	c.mu.Lock()
	c.playing = false
	c.mu.Unlock()

	speech, err := c.speechFor(ctx, text, language)
	if err != nil {
		return err
	}

	pb, err := c.player.Load(ctx, speech.AudioURL)
	if err != nil {
		// The URL may have expired server-side early. Drop it so the next
		// attempt synthesizes fresh audio.
		c.urls.Delete(urlKey(text, language))
		return fmt.Errorf("audio: load %q: %w", speech.AudioURL, err)
	}

	if err := c.handle.Swap(pb); err != nil {
		slog.Warn("previous playback did not close cleanly", "error", err)
	}

	c.mu.Lock()
	pb.SetRate(c.speed)
	c.language = language
	c.text = text
	c.playing = true
	c.position = 0
	c.duration = pb.Duration()
	c.lastErr = nil
	c.mu.Unlock()

	pb.Play()
	go c.pump(pb)
	return nil
}

// speechFor returns a valid synthesized speech for the text, from cache when
// possible.
func (c *Controller) speechFor(ctx context.Context, text, language string) (backend.Speech, error) {
	key := urlKey(text, language)
	if v, ok := c.urls.Get(key); ok {
		speech := v.(backend.Speech)
		if speech.ExpiresAt.IsZero() || time.Until(speech.ExpiresAt) > urlSafetyMargin {
			return speech, nil
		}
		c.urls.Delete(key)
	}

	speech, err := c.client.Synthesize(ctx, backend.SynthesizeRequest{
		Text:     text,
		Language: language,
	})
	if err != nil {
		return backend.Speech{}, fmt.Errorf("audio: synthesize: %w", err)
	}

	ttl := c.ttl
	if !speech.ExpiresAt.IsZero() {
		if until := time.Until(speech.ExpiresAt) - urlSafetyMargin; until < ttl {
			ttl = until
		}
	}
	if ttl > 0 {
		c.urls.Set(key, speech, ttl)
	}
	return speech, nil
}

// pump forwards playback events into the controller state until the
// playback's event stream closes.
func (c *Controller) pump(pb audio.Playback) {
	for ev := range pb.Events() {
		c.mu.Lock()
		// Ignore events from a playback that has been swapped out.
		if c.handle.Get() != pb {
			c.mu.Unlock()
			return
		}
		switch ev.Kind {
		case audio.EventProgress:
			c.position = ev.Position
		case audio.EventEnded:
			c.position = ev.Position
			c.playing = false
		case audio.EventErrored:
			c.playing = false
			c.lastErr = &PlaybackError{Err: ev.Err}
			slog.Warn("playback errored", "error", ev.Err)
		}
		c.mu.Unlock()
	}
}

// Pause halts the live playback, keeping its position.
func (c *Controller) Pause() {
	if pb := c.handle.Get(); pb != nil {
		pb.Pause()
		c.mu.Lock()
		c.playing = false
		c.mu.Unlock()
	}
}

// Resume continues the live playback from its current position. A no-op when
// nothing is live.
func (c *Controller) Resume() {
	if pb := c.handle.Get(); pb != nil {
		pb.Play()
		c.mu.Lock()
		c.playing = true
		c.mu.Unlock()
	}
}

// Seek jumps the live playback to the given position in seconds.
func (c *Controller) Seek(seconds float64) {
	if pb := c.handle.Get(); pb != nil {
		pb.Seek(seconds)
		c.mu.Lock()
		c.position = pb.Position()
		c.mu.Unlock()
	}
}

// Replay restarts the live playback from the beginning.
func (c *Controller) Replay() {
	if pb := c.handle.Get(); pb != nil {
		pb.Seek(0)
		pb.Play()
		c.mu.Lock()
		c.position = 0
		c.playing = true
		c.mu.Unlock()
	}
}

// SetSpeed sets the playback rate. The rate persists across playbacks and is
// applied immediately to the live one.
func (c *Controller) SetSpeed(rate float64) {
	c.mu.Lock()
	c.speed = rate
	c.mu.Unlock()
	if pb := c.handle.Get(); pb != nil {
		pb.SetRate(rate)
	}
}

// Speed returns the persisted playback rate.
func (c *Controller) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// State returns a snapshot for display.
func (c *Controller) State() State {
	live := c.handle.Live()
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Live:     live,
		Speed:    c.speed,
		Language: c.language,
		Err:      c.lastErr,
	}
	if live {
		s.Playing = c.playing
		s.Position = c.position
		s.Duration = c.duration
	}
	return s
}

// Shutdown releases the live playback and clears the URL cache. The
// controller can be reused afterwards; the persisted speed survives.
func (c *Controller) Shutdown() error {
	err := c.handle.Release()

	c.mu.Lock()
	c.playing = false
	c.position = 0
	c.duration = 0
	c.text = ""
	c.lastErr = nil
	c.mu.Unlock()

	c.urls.Flush()
	return err
}

// urlKey builds the cache key for a text and language pair.
func urlKey(text, language string) string {
	return language + "\x00" + text
}
