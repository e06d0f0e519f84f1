package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/tanmayd/vaidya/internal/observe"
	"github.com/tanmayd/vaidya/pkg/backend"
	backendmock "github.com/tanmayd/vaidya/pkg/backend/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestSession(t *testing.T, api *backendmock.Client) *Session {
	t.Helper()
	return NewSession(api, "s1", "en", WithMetrics(testMetrics(t)))
}

func TestAsk_RecordsBothTurns(t *testing.T) {
	api := &backendmock.Client{}
	api.AskResult = backend.Answer{
		Text:            "Your hemoglobin is slightly low.",
		RelatedValues:   []string{"Hemoglobin"},
		ShouldAskDoctor: true,
	}
	s := newTestSession(t, api)

	reply, err := s.Ask(context.Background(), "why am I tired?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply.Role != RoleAssistant || reply.Text != "Your hemoglobin is slightly low." {
		t.Errorf("unexpected reply %+v", reply)
	}
	if reply.Answer == nil || !reply.Answer.ShouldAskDoctor {
		t.Error("expected structured answer on the assistant turn")
	}

	turns := s.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Text != "why am I tired?" {
		t.Errorf("unexpected user turn %+v", turns[0])
	}
	if turns[1].Role != RoleAssistant {
		t.Errorf("unexpected assistant turn %+v", turns[1])
	}
}

func TestAsk_SendsSessionAndLanguage(t *testing.T) {
	api := &backendmock.Client{}
	s := newTestSession(t, api)

	if _, err := s.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	calls := api.Calls()
	if len(calls) != 1 || calls[0].Method != "Ask" {
		t.Fatalf("unexpected calls %v", calls)
	}
	q := calls[0].Args[0].(backend.Question)
	if q.SessionID != "s1" || q.Language != "en" || q.Text != "q" {
		t.Errorf("unexpected question %+v", q)
	}
}

func TestAsk_FallbackOnBackendFailure(t *testing.T) {
	api := &backendmock.Client{}
	api.AskErr = errors.New("model timeout")
	s := newTestSession(t, api)

	reply, err := s.Ask(context.Background(), "what does this mean?")
	if err == nil {
		t.Fatal("expected the backend error to surface")
	}
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.SessionID != "s1" {
		t.Errorf("expected typed chat error for s1, got %v", err)
	}
	if !errors.Is(err, api.AskErr) {
		t.Errorf("expected the cause preserved, got %v", err)
	}
	if !reply.Fallback {
		t.Error("expected a fallback assistant turn")
	}
	if reply.Answer != nil {
		t.Error("fallback turn must not carry a structured answer")
	}

	// The transcript still holds both turns.
	turns := s.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns after failure, got %d", len(turns))
	}
	if !turns[1].Fallback || turns[1].Text == "" {
		t.Errorf("unexpected fallback turn %+v", turns[1])
	}
}

func TestAsk_RejectsConcurrentQuestions(t *testing.T) {
	api := &backendmock.Client{}
	inFlight := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	api.AskHook = func(q backend.Question) (backend.Answer, error) {
		once.Do(func() { close(inFlight) })
		<-release
		return backend.Answer{Text: "done"}, nil
	}
	s := newTestSession(t, api)

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.Ask(context.Background(), "first")
		firstDone <- err
	}()

	<-inFlight
	if !s.Busy() {
		t.Error("expected session to be busy mid-flight")
	}
	if _, err := s.Ask(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first Ask: %v", err)
	}
	if s.Busy() {
		t.Error("expected session to be free after the answer")
	}

	// The rejected question left no trace in the transcript.
	turns := s.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if got := api.CallCount("Ask"); got != 1 {
		t.Errorf("expected 1 backend call, got %d", got)
	}
}

func TestClear_EmptiesTranscript(t *testing.T) {
	api := &backendmock.Client{}
	api.AskResult = backend.Answer{Text: "a"}
	s := newTestSession(t, api)

	if _, err := s.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	s.Clear()
	if got := s.Turns(); len(got) != 0 {
		t.Errorf("expected empty transcript, got %d turns", len(got))
	}

	// The session remains usable after Clear.
	if _, err := s.Ask(context.Background(), "q2"); err != nil {
		t.Fatalf("Ask after Clear: %v", err)
	}
	if got := s.Turns(); len(got) != 2 {
		t.Errorf("expected 2 turns after new question, got %d", len(got))
	}
}
