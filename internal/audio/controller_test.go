package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgaudio "github.com/tanmayd/vaidya/pkg/audio"
	audiomock "github.com/tanmayd/vaidya/pkg/audio/mock"
	"github.com/tanmayd/vaidya/pkg/backend"
	backendmock "github.com/tanmayd/vaidya/pkg/backend/mock"
)

func freshSpeech(url string) backend.Speech {
	return backend.Speech{
		AudioURL:  url,
		VoiceID:   "aditi",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestPlay_SynthesizesAndStartsPlayback(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = freshSpeech("https://cdn.example/a.mp3")
	pb := &audiomock.Playback{DurationVal: 42}
	player := &audiomock.Player{Playbacks: []*audiomock.Playback{pb}}
	c := NewController(api, player, WithDefaultSpeed(1.5))

	if err := c.Play(context.Background(), "summary text", "en"); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if urls := player.LoadedURLs(); len(urls) != 1 || urls[0] != "https://cdn.example/a.mp3" {
		t.Errorf("unexpected loaded urls %v", urls)
	}
	if pb.Rate() != 1.5 {
		t.Errorf("expected persisted speed applied, got %f", pb.Rate())
	}
	calls := pb.Calls()
	if len(calls) == 0 || calls[len(calls)-1] != "Play" {
		t.Errorf("expected Play after setup, got %v", calls)
	}

	s := c.State()
	if !s.Playing || !s.Live || s.Duration != 42 {
		t.Errorf("unexpected state %+v", s)
	}
}

func TestPlay_EmptyTextRejected(t *testing.T) {
	c := NewController(&backendmock.Client{}, &audiomock.Player{})
	if err := c.Play(context.Background(), "", "en"); !errors.Is(err, ErrNothingToPlay) {
		t.Errorf("expected ErrNothingToPlay, got %v", err)
	}
}

func TestPlay_ReusesCachedURL(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = freshSpeech("https://cdn.example/a.mp3")
	player := &audiomock.Player{}
	c := NewController(api, player)

	for range 2 {
		if err := c.Play(context.Background(), "same text", "en"); err != nil {
			t.Fatalf("Play: %v", err)
		}
	}

	if got := api.CallCount("Synthesize"); got != 1 {
		t.Errorf("expected 1 synthesis for repeated text, got %d", got)
	}
	if urls := player.LoadedURLs(); len(urls) != 2 {
		t.Errorf("expected 2 loads, got %v", urls)
	}
}

func TestPlay_ExpiredURLIsResynthesized(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = backend.Speech{
		AudioURL:  "https://cdn.example/short.mp3",
		ExpiresAt: time.Now().Add(5 * time.Second), // inside the safety margin
	}
	c := NewController(api, &audiomock.Player{})

	for range 2 {
		if err := c.Play(context.Background(), "text", "en"); err != nil {
			t.Fatalf("Play: %v", err)
		}
	}

	// A nearly-expired URL must not be cached.
	if got := api.CallCount("Synthesize"); got != 2 {
		t.Errorf("expected 2 syntheses for a short-lived URL, got %d", got)
	}
}

func TestPlay_DifferentLanguageSynthesizesAgain(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = freshSpeech("https://cdn.example/a.mp3")
	c := NewController(api, &audiomock.Player{})

	if err := c.Play(context.Background(), "text", "en"); err != nil {
		t.Fatalf("Play en: %v", err)
	}
	if err := c.Play(context.Background(), "text", "hi"); err != nil {
		t.Fatalf("Play hi: %v", err)
	}
	if got := api.CallCount("Synthesize"); got != 2 {
		t.Errorf("expected per-language synthesis, got %d calls", got)
	}
}

func TestPlay_ReplacesPreviousPlayback(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = freshSpeech("https://cdn.example/a.mp3")
	first := &audiomock.Playback{}
	second := &audiomock.Playback{}
	player := &audiomock.Player{Playbacks: []*audiomock.Playback{first, second}}
	c := NewController(api, player)

	if err := c.Play(context.Background(), "one", "en"); err != nil {
		t.Fatalf("first Play: %v", err)
	}
	if err := c.Play(context.Background(), "two", "en"); err != nil {
		t.Fatalf("second Play: %v", err)
	}

	if !first.Closed() {
		t.Error("expected the first playback to be closed")
	}
	if second.Closed() {
		t.Error("the live playback must not be closed")
	}
}

// gatedPlayer fails the test when Load is called while the previous playback
// is still open.
type gatedPlayer struct {
	*audiomock.Player
	t    *testing.T
	prev *audiomock.Playback
}

func (p *gatedPlayer) Load(ctx context.Context, url string) (pkgaudio.Playback, error) {
	p.t.Helper()
	if p.prev != nil && !p.prev.Closed() {
		p.t.Error("Load called before the previous playback was released")
	}
	return p.Player.Load(ctx, url)
}

func TestPlay_ReleasesPreviousBeforeLoadingNext(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = freshSpeech("https://cdn.example/a.mp3")
	first := &audiomock.Playback{}
	second := &audiomock.Playback{}
	player := &gatedPlayer{
		Player: &audiomock.Player{Playbacks: []*audiomock.Playback{first, second}},
		t:      t,
	}
	c := NewController(api, player)

	if err := c.Play(context.Background(), "one", "en"); err != nil {
		t.Fatalf("first Play: %v", err)
	}
	player.prev = first
	if err := c.Play(context.Background(), "two", "en"); err != nil {
		t.Fatalf("second Play: %v", err)
	}

	calls := first.Calls()
	if len(calls) < 2 || calls[len(calls)-2] != "Pause" || calls[len(calls)-1] != "Close" {
		t.Errorf("expected the old playback paused then closed, got %v", calls)
	}
	if second.Closed() {
		t.Error("the live playback must not be closed")
	}
}

func TestPlay_LoadFailureDropsCachedURL(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = freshSpeech("https://cdn.example/gone.mp3")
	player := &audiomock.Player{LoadErr: errors.New("403 forbidden")}
	c := NewController(api, player)

	if err := c.Play(context.Background(), "text", "en"); err == nil {
		t.Fatal("expected load error")
	}

	// Retry must synthesize fresh rather than reuse the dead URL.
	player.LoadErr = nil
	if err := c.Play(context.Background(), "text", "en"); err != nil {
		t.Fatalf("retry Play: %v", err)
	}
	if got := api.CallCount("Synthesize"); got != 2 {
		t.Errorf("expected fresh synthesis after load failure, got %d calls", got)
	}
}

func TestTransportControls(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = freshSpeech("u")
	pb := &audiomock.Playback{DurationVal: 30}
	player := &audiomock.Player{Playbacks: []*audiomock.Playback{pb}}
	c := NewController(api, player)

	if err := c.Play(context.Background(), "text", "en"); err != nil {
		t.Fatalf("Play: %v", err)
	}

	c.Pause()
	if s := c.State(); s.Playing {
		t.Error("expected paused state")
	}

	c.Resume()
	if s := c.State(); !s.Playing {
		t.Error("expected playing state after Resume")
	}

	c.Seek(12)
	if s := c.State(); s.Position != 12 {
		t.Errorf("expected position 12 after Seek, got %f", s.Position)
	}

	c.Replay()
	if s := c.State(); s.Position != 0 || !s.Playing {
		t.Errorf("expected restart from zero, got %+v", s)
	}
}

func TestSetSpeed_PersistsAcrossPlaybacks(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = freshSpeech("u")
	first := &audiomock.Playback{}
	second := &audiomock.Playback{}
	player := &audiomock.Player{Playbacks: []*audiomock.Playback{first, second}}
	c := NewController(api, player)

	if err := c.Play(context.Background(), "one", "en"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	c.SetSpeed(0.75)
	if first.Rate() != 0.75 {
		t.Errorf("expected live playback rate 0.75, got %f", first.Rate())
	}

	if err := c.Play(context.Background(), "two", "en"); err != nil {
		t.Fatalf("second Play: %v", err)
	}
	if second.Rate() != 0.75 {
		t.Errorf("expected persisted rate on new playback, got %f", second.Rate())
	}
	if c.Speed() != 0.75 {
		t.Errorf("expected persisted speed, got %f", c.Speed())
	}
}

func TestPump_SurfacesPlaybackErrorNonFatally(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = freshSpeech("u")
	pb := &audiomock.Playback{}
	replacement := &audiomock.Playback{}
	player := &audiomock.Player{Playbacks: []*audiomock.Playback{pb, replacement}}
	c := NewController(api, player)

	if err := c.Play(context.Background(), "text", "en"); err != nil {
		t.Fatalf("Play: %v", err)
	}

	pb.Emit(pkgaudio.Event{Kind: pkgaudio.EventErrored, Err: errors.New("decoder died")})

	waitFor(t, func() bool {
		s := c.State()
		return s.Err != nil && !s.Playing
	}, "playback error to surface")

	var perr *PlaybackError
	if s := c.State(); !errors.As(s.Err, &perr) {
		t.Errorf("expected *PlaybackError, got %v", s.Err)
	}

	// A fresh Play recovers and clears the error.
	if err := c.Play(context.Background(), "text", "en"); err != nil {
		t.Fatalf("recovery Play: %v", err)
	}
	if s := c.State(); s.Err != nil {
		t.Errorf("expected error cleared by Play, got %v", s.Err)
	}
}

func TestPump_TracksProgressAndEnd(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = freshSpeech("u")
	pb := &audiomock.Playback{DurationVal: 10}
	player := &audiomock.Player{Playbacks: []*audiomock.Playback{pb}}
	c := NewController(api, player)

	if err := c.Play(context.Background(), "text", "en"); err != nil {
		t.Fatalf("Play: %v", err)
	}

	pb.Emit(pkgaudio.Event{Kind: pkgaudio.EventProgress, Position: 4.5})
	waitFor(t, func() bool { return c.State().Position == 4.5 }, "progress update")

	pb.Emit(pkgaudio.Event{Kind: pkgaudio.EventEnded, Position: 10})
	waitFor(t, func() bool {
		s := c.State()
		return !s.Playing && s.Position == 10
	}, "ended state")
}

func TestShutdown_ReleasesPlaybackKeepsSpeed(t *testing.T) {
	api := &backendmock.Client{}
	api.SynthesizeResult = freshSpeech("u")
	pb := &audiomock.Playback{}
	player := &audiomock.Player{Playbacks: []*audiomock.Playback{pb}}
	c := NewController(api, player)

	if err := c.Play(context.Background(), "text", "en"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	c.SetSpeed(2.0)

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !pb.Closed() {
		t.Error("expected playback closed on Shutdown")
	}
	s := c.State()
	if s.Live || s.Playing {
		t.Errorf("expected idle state after Shutdown, got %+v", s)
	}
	if c.Speed() != 2.0 {
		t.Errorf("expected speed to survive Shutdown, got %f", c.Speed())
	}

	// The URL cache was flushed, so the next Play synthesizes again.
	if err := c.Play(context.Background(), "text", "en"); err != nil {
		t.Fatalf("Play after Shutdown: %v", err)
	}
	if got := api.CallCount("Synthesize"); got != 2 {
		t.Errorf("expected fresh synthesis after Shutdown, got %d calls", got)
	}
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
