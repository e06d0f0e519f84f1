package scheme

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tanmayd/vaidya/pkg/backend"
	backendmock "github.com/tanmayd/vaidya/pkg/backend/mock"
)

func validProfile() Profile {
	return Profile{
		State:      "Karnataka",
		IncomeBand: "1l-3l",
		Age:        54,
		BPL:        true,
		Conditions: []string{"diabetes"},
	}
}

func TestMatch_SendsNormalisedQuery(t *testing.T) {
	api := &backendmock.Client{}
	api.MatchResult = backend.SchemeResult{
		Schemes: []backend.Scheme{{ID: "ab-pmjay", Name: "Ayushman Bharat PM-JAY"}},
		Count:   1,
	}
	m := NewMatcher(api, "s1", "kn")

	p := validProfile()
	p.State = "karnatka" // common misspelling

	result, err := m.Match(context.Background(), p)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Count != 1 {
		t.Errorf("unexpected result %+v", result)
	}

	calls := api.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 backend call, got %d", len(calls))
	}
	q := calls[0].Args[0].(backend.SchemeQuery)
	if q.State != "Karnataka" {
		t.Errorf("expected normalised state Karnataka, got %q", q.State)
	}
	if q.SessionID != "s1" || q.Language != "kn" {
		t.Errorf("expected session context on the query, got %+v", q)
	}
	if !q.BPL || q.IncomeBand != "1l-3l" || q.Age != 54 {
		t.Errorf("profile fields lost in translation: %+v", q)
	}
}

func TestMatch_RejectsInvalidProfile(t *testing.T) {
	api := &backendmock.Client{}
	m := NewMatcher(api, "s1", "en")

	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"missing state", func(p *Profile) { p.State = "" }},
		{"unknown income band", func(p *Profile) { p.IncomeBand = "5l-10l" }},
		{"negative age", func(p *Profile) { p.Age = -1 }},
		{"implausible age", func(p *Profile) { p.Age = 140 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(&p)
			if _, err := m.Match(context.Background(), p); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if got := api.CallCount("MatchSchemes"); got != 0 {
		t.Errorf("invalid profiles must not reach the backend, got %d calls", got)
	}
}

func TestMatch_FailureKeepsPriorResult(t *testing.T) {
	api := &backendmock.Client{}
	api.MatchResult = backend.SchemeResult{Count: 2}
	m := NewMatcher(api, "s1", "en")

	if _, err := m.Match(context.Background(), validProfile()); err != nil {
		t.Fatalf("Match: %v", err)
	}

	api.MatchErr = errors.New("rag index offline")
	if _, err := m.Match(context.Background(), validProfile()); err == nil {
		t.Fatal("expected match error")
	}

	prior, ok := m.Result()
	if !ok || prior.Count != 2 {
		t.Errorf("expected the prior result to survive the failure, got %+v %v", prior, ok)
	}
}

func TestMatch_InFlightResultDiscardedAfterInvalidate(t *testing.T) {
	inFlight := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	api := &backendmock.Client{}
	slow := &slowMatch{
		Client: api,
		started: func() { once.Do(func() { close(inFlight) }) },
		release: release,
		result:  backend.SchemeResult{Count: 5},
	}
	m := NewMatcher(slow, "s1", "en")

	done := make(chan error, 1)
	go func() {
		_, err := m.Match(context.Background(), validProfile())
		done <- err
	}()

	<-inFlight
	m.Invalidate()
	close(release)

	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if _, ok := m.Result(); ok {
		t.Error("expected no stored result after Invalidate")
	}
}

// slowMatch delays MatchSchemes until release is closed.
type slowMatch struct {
	*backendmock.Client
	started func()
	release <-chan struct{}
	result  backend.SchemeResult
}

func (s *slowMatch) MatchSchemes(_ context.Context, _ backend.SchemeQuery) (backend.SchemeResult, error) {
	s.started()
	<-s.release
	return s.result, nil
}

func TestInvalidate_DropsStoredResult(t *testing.T) {
	api := &backendmock.Client{}
	api.MatchResult = backend.SchemeResult{Count: 1}
	m := NewMatcher(api, "s1", "en")

	if _, err := m.Match(context.Background(), validProfile()); err != nil {
		t.Fatalf("Match: %v", err)
	}
	m.Invalidate()
	if _, ok := m.Result(); ok {
		t.Error("expected no result after Invalidate")
	}
}
