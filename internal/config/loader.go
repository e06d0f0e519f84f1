package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults substitutes defaults for zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = DefaultPollInterval
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	if cfg.Audio.DefaultSpeed == 0 {
		cfg.Audio.DefaultSpeed = DefaultSpeed
	}
	if cfg.Audio.CacheTTL == 0 {
		cfg.Audio.CacheTTL = DefaultAudioCacheTTL
	}
	if cfg.Language == "" {
		cfg.Language = LangEnglish
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = LogInfo
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}
	if cfg.Backend.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout %v must not be negative", cfg.Backend.Timeout))
	}
	if cfg.Poll.Interval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("poll.interval %v is below the 100ms minimum", cfg.Poll.Interval))
	}
	if cfg.Audio.DefaultSpeed < 0.5 || cfg.Audio.DefaultSpeed > 2.0 {
		errs = append(errs, fmt.Errorf("audio.default_speed %.2f is out of range [0.5, 2.0]", cfg.Audio.DefaultSpeed))
	}
	if cfg.Audio.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("audio.cache_ttl %v must not be negative", cfg.Audio.CacheTTL))
	}
	if !cfg.Language.IsValid() {
		errs = append(errs, fmt.Errorf("language %q is invalid; valid values: en, hi, kn, ta, te", cfg.Language))
	}
	if !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	return errors.Join(errs...)
}
