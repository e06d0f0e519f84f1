// Package chat manages the follow-up question thread for a document session.
// Questions are answered strictly one at a time; the thread is an append-only
// transcript that survives backend failures by recording a fallback answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tanmayd/vaidya/internal/observe"
	"github.com/tanmayd/vaidya/pkg/backend"
)

// ErrBusy is returned by Ask while a previous question is still in flight.
var ErrBusy = errors.New("chat: a question is already being answered")

// Error wraps a failed follow-up question with the session it belongs to.
type Error struct {
	SessionID string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("chat: session %s: %v", e.SessionID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// fallbackAnswer is recorded as the assistant turn when the backend cannot
// answer. The thread stays coherent and the user is told what to do next.
const fallbackAnswer = "I could not answer that right now. Please try asking again, " +
	"or note the question down for your doctor."

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the conversation transcript.
type Turn struct {
	// Role identifies the speaker.
	Role Role

	// Text is the question or answer body.
	Text string

	// At is when the turn was recorded.
	At time.Time

	// Answer carries the structured backend response for assistant turns.
	// Nil for user turns and for fallback answers.
	Answer *backend.Answer

	// Fallback marks an assistant turn recorded after a backend failure.
	Fallback bool
}

// Session is the serial question-and-answer thread for one document.
// Safe for concurrent use; only one question is in flight at a time.
type Session struct {
	client    backend.Client
	sessionID string
	language  string
	metrics   *observe.Metrics

	mu    sync.Mutex
	busy  bool
	turns []Turn
}

// Option configures a [Session].
type Option func(*Session)

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// NewSession creates a chat thread bound to a processed document session.
func NewSession(client backend.Client, sessionID, language string, opts ...Option) *Session {
	s := &Session{
		client:    client,
		sessionID: sessionID,
		language:  language,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Ask submits a follow-up question and waits for the answer. The question is
// appended to the transcript before the backend is called, and an assistant
// turn is always appended afterwards. When the backend fails, the assistant
// turn is the fallback answer and a typed [Error] wrapping the failure is
// returned alongside it.
//
// Only one question may be in flight; concurrent calls fail fast with
// [ErrBusy] and leave the transcript untouched.
func (s *Session) Ask(ctx context.Context, question string) (Turn, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Turn{}, ErrBusy
	}
	s.busy = true
	s.turns = append(s.turns, Turn{Role: RoleUser, Text: question, At: time.Now()})
	s.mu.Unlock()

	answer, err := s.client.Ask(ctx, backend.Question{
		SessionID: s.sessionID,
		Text:      question,
		Language:  s.language,
	})

	var reply Turn
	if err != nil {
		slog.Warn("question failed, recording fallback answer",
			"session_id", s.sessionID,
			"error", err,
		)
		s.metrics.RecordChatTurn(ctx, "fallback")
		reply = Turn{Role: RoleAssistant, Text: fallbackAnswer, At: time.Now(), Fallback: true}
		err = &Error{SessionID: s.sessionID, Err: err}
	} else {
		s.metrics.RecordChatTurn(ctx, "ok")
		reply = Turn{Role: RoleAssistant, Text: answer.Text, At: time.Now(), Answer: &answer}
	}

	s.mu.Lock()
	s.turns = append(s.turns, reply)
	s.busy = false
	s.mu.Unlock()

	return reply, err
}

// Busy reports whether a question is currently in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Turns returns a copy of the transcript in order.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Clear empties the transcript. An in-flight answer will still be appended
// when it arrives.
func (s *Session) Clear() {
	s.mu.Lock()
	s.turns = nil
	s.mu.Unlock()
}
