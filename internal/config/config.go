// Package config provides the configuration schema and loader for the vaidya
// session engine.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to the corresponding [slog.Level]. Unknown levels map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Language is a BCP 47-ish language tag accepted by the backend.
type Language string

const (
	LangEnglish Language = "en"
	LangHindi   Language = "hi"
	LangKannada Language = "kn"
	LangTamil   Language = "ta"
	LangTelugu  Language = "te"
)

// IsValid reports whether l is a language the backend can serve.
func (l Language) IsValid() bool {
	switch l {
	case LangEnglish, LangHindi, LangKannada, LangTamil, LangTelugu:
		return true
	}
	return false
}

// Defaults substituted by [Load] for zero-valued fields.
const (
	// DefaultPollInterval is the status poll cadence.
	DefaultPollInterval = 1500 * time.Millisecond

	// DefaultBackendTimeout bounds a single backend round trip.
	DefaultBackendTimeout = 60 * time.Second

	// DefaultSpeed is the initial audio playback rate.
	DefaultSpeed = 1.0

	// DefaultAudioCacheTTL caps how long a synthesized audio URL is reused.
	// Presigned URLs expire after an hour server-side; stay safely under.
	DefaultAudioCacheTTL = 50 * time.Minute
)

// Config is the root configuration for the session engine.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Backend  BackendConfig `yaml:"backend"`
	Poll     PollConfig    `yaml:"poll"`
	Audio    AudioConfig   `yaml:"audio"`
	Language Language      `yaml:"language"`
	Log      LogConfig     `yaml:"log"`
}

// BackendConfig locates and authenticates against the document backend.
type BackendConfig struct {
	// BaseURL is the backend root (e.g. "https://api.example.org").
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a Bearer token when non-empty.
	APIKey string `yaml:"api_key"`

	// Timeout bounds a single backend round trip.
	Timeout time.Duration `yaml:"timeout"`

	// UseStatusStream subscribes to server-pushed status updates over
	// WebSocket instead of polling, falling back to polling when the
	// subscription cannot be established.
	UseStatusStream bool `yaml:"use_status_stream"`
}

// PollConfig tunes the status poller.
type PollConfig struct {
	// Interval is the fixed delay between status checks.
	Interval time.Duration `yaml:"interval"`
}

// AudioConfig tunes playback behaviour.
type AudioConfig struct {
	// DefaultSpeed is the initial playback rate, in [0.5, 2.0].
	DefaultSpeed float64 `yaml:"default_speed"`

	// CacheTTL caps how long a synthesized audio URL is reused before a
	// fresh synthesis call is made.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level controls verbosity.
	Level LogLevel `yaml:"level"`
}
