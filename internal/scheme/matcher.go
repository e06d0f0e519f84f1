// Package scheme matches a household profile against government welfare
// schemes via the backend. Profiles are validated locally, state names are
// resolved to canonical spellings before the query is sent, and a result
// that arrives after the profile changed is discarded as stale.
package scheme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tanmayd/vaidya/pkg/backend"
)

// ErrStale is returned when a match result arrives after the profile or
// session changed and is therefore discarded.
var ErrStale = errors.New("scheme: result is stale, profile changed during match")

// Profile is the household eligibility profile entered by the user.
type Profile struct {
	// State is the Indian state or union territory of residence. Misspelled
	// and phonetically-close names are accepted and normalised.
	State string `validate:"required"`

	// IncomeBand is the annual household income range, one of the bands the
	// backend catalogue understands.
	IncomeBand string `validate:"required,oneof=below-1l 1l-3l 3l-5l above-5l"`

	// Age of the patient in years.
	Age int `validate:"gte=0,lte=120"`

	// BPL marks below-poverty-line card holders.
	BPL bool

	// Conditions lists diagnosed conditions relevant to eligibility.
	Conditions []string
}

// Matcher runs scheme matches for one document session. Safe for concurrent
// use; only the result of the newest profile is ever kept.
type Matcher struct {
	client   backend.Client
	validate *validator.Validate

	mu        sync.Mutex
	sessionID string
	language  string
	epoch     uint64
	result    *backend.SchemeResult
}

// NewMatcher returns a matcher bound to the given document session. The
// session id may be empty for a standalone eligibility check.
func NewMatcher(client backend.Client, sessionID, language string) *Matcher {
	return &Matcher{
		client:    client,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		sessionID: sessionID,
		language:  language,
	}
}

// Match validates the profile, resolves the state name, and queries the
// backend. A successful result replaces the stored one; a failure leaves the
// previous result in place. If the profile changes while the query is in
// flight the arriving result is dropped and [ErrStale] is returned.
func (m *Matcher) Match(ctx context.Context, p Profile) (backend.SchemeResult, error) {
	if err := m.validate.Struct(p); err != nil {
		return backend.SchemeResult{}, fmt.Errorf("scheme: invalid profile: %w", err)
	}

	state := p.State
	if canonical, ok := NormalizeState(p.State); ok {
		if canonical != p.State {
			slog.Debug("normalised state name",
				"input", p.State,
				"canonical", canonical,
			)
		}
		state = canonical
	}

	m.mu.Lock()
	epoch := m.epoch
	query := backend.SchemeQuery{
		State:      state,
		IncomeBand: p.IncomeBand,
		Age:        p.Age,
		BPL:        p.BPL,
		Conditions: p.Conditions,
		SessionID:  m.sessionID,
		Language:   m.language,
	}
	m.mu.Unlock()

	result, err := m.client.MatchSchemes(ctx, query)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return backend.SchemeResult{}, ErrStale
	}
	if err != nil {
		// Keep whatever the user last saw.
		return backend.SchemeResult{}, fmt.Errorf("scheme: match: %w", err)
	}
	m.result = &result
	return result, nil
}

// Result returns the most recent successful match, if any.
func (m *Matcher) Result() (backend.SchemeResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		return backend.SchemeResult{}, false
	}
	return *m.result, true
}

// Invalidate drops the stored result and marks any in-flight match stale.
// Called when the profile form is edited or the session is reset.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.result = nil
}
