// Package session orchestrates the life of one medical document: upload,
// processing, and results. The [Controller] is the single entry point the
// presentation layer talks to; it owns the status poller, the analysis
// fetch, the audio playback, the chat thread, and the scheme matcher, and
// guarantees they are torn down together on reset.
package session

import (
	"errors"

	"github.com/tanmayd/vaidya/pkg/backend"
)

// ErrNoSession is returned by operations that need an active session when
// none exists, including after a reset.
var ErrNoSession = errors.New("session: no active session")

// ErrNotReady is returned by operations that need completed results while
// the document is still processing.
var ErrNotReady = errors.New("session: results not ready")

// Step is the user-visible stage of the document flow.
type Step string

const (
	// StepUpload means no document is being processed; a new upload is
	// accepted.
	StepUpload Step = "upload"

	// StepProcessing means a document is uploaded and the backend pipeline
	// is running.
	StepProcessing Step = "processing"

	// StepResults means the analysis is available.
	StepResults Step = "results"
)

// Snapshot is an immutable view of the session state. Observers receive one
// on every change.
type Snapshot struct {
	// Step is the current stage.
	Step Step

	// SessionID and DocumentID identify the backend session. Empty before
	// the first upload and after a reset; retained after a processing
	// failure so the document can still be cleaned up.
	SessionID  string
	DocumentID string

	// State and Progress mirror the backend's processing pipeline while on
	// the processing step.
	State    backend.ProcessingState
	Progress int

	// Message is the backend's human-readable status line.
	Message string

	// Analysis is set on the results step.
	Analysis *backend.Analysis

	// LastError is the most recent failure: a processing failure, a rejected
	// upload, or a failed analysis fetch. Cleared by the next upload or by a
	// successful analysis retry.
	LastError error
}
