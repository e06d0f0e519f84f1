// Package backend defines the client contract for the document-understanding
// backend: upload, processing status, interpretation, speech synthesis,
// follow-up questions, scheme matching, and SMS summaries.
//
// The session engine only consumes these request/response shapes — OCR, PII
// redaction, LLM interpretation and speech synthesis all happen server-side.
// The canonical implementation is [HTTPClient]; tests use the recording mock
// in the mock subpackage.
//
// This package lives under pkg/ because alternative transports (a gRPC
// gateway, an embedded test server) are expected to implement [Client].
package backend

import (
	"context"
	"fmt"
	"time"
)

// ProcessingState is the backend-reported stage of document processing.
type ProcessingState string

const (
	StatePending       ProcessingState = "pending"
	StateUploading     ProcessingState = "uploading"
	StatePreprocessing ProcessingState = "preprocessing"
	StateExtracting    ProcessingState = "extracting"
	StateAnalyzing     ProcessingState = "analyzing"
	StateCompleted     ProcessingState = "completed"
	StateFailed        ProcessingState = "failed"
)

// IsValid reports whether s is a recognised processing state.
func (s ProcessingState) IsValid() bool {
	switch s {
	case StatePending, StateUploading, StatePreprocessing,
		StateExtracting, StateAnalyzing, StateCompleted, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether no further status changes can follow s.
func (s ProcessingState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Document is a candidate file handed to the upload endpoint.
type Document struct {
	// Name is the original file name (e.g. "report.pdf").
	Name string

	// MIME is the declared media type of the file content.
	MIME string

	// Data is the raw file content.
	Data []byte
}

// UploadReceipt identifies a freshly created processing session.
type UploadReceipt struct {
	SessionID  string          `json:"session_id"`
	DocumentID string          `json:"document_id"`
	Status     ProcessingState `json:"status"`
	Message    string          `json:"message,omitempty"`
}

// StatusReport is one snapshot of server-side processing progress.
type StatusReport struct {
	SessionID     string          `json:"session_id"`
	State         ProcessingState `json:"status"`
	Message       string          `json:"message,omitempty"`
	OCRConfidence float64         `json:"ocr_confidence,omitempty"`
	QualityIssues []string        `json:"quality_issues,omitempty"`
}

// AnalyzeRequest asks the backend to interpret a processed document.
type AnalyzeRequest struct {
	SessionID  string `json:"session_id"`
	DocumentID string `json:"document_id"`
	Language   string `json:"language"`
}

// AbnormalValue is a single out-of-range measurement found in the document.
type AbnormalValue struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	NormalRange string `json:"normal_range,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// EmergencyNotice flags findings that warrant immediate medical attention.
type EmergencyNotice struct {
	Detected bool   `json:"detected"`
	Reason   string `json:"reason,omitempty"`
	Advice   string `json:"advice,omitempty"`
}

// Analysis is the backend's plain-language interpretation of a document.
// Immutable once fetched for a given session; a new session invalidates it.
type Analysis struct {
	SessionID           string             `json:"session_id"`
	Summary             string             `json:"summary"`
	KeyFindings         []string           `json:"key_findings,omitempty"`
	AbnormalValues      []AbnormalValue    `json:"abnormal_values,omitempty"`
	ThingsToNote        []string           `json:"things_to_note,omitempty"`
	QuestionsForDoctor  []string           `json:"questions_for_doctor,omitempty"`
	Confidence          float64            `json:"confidence"`
	ConfidenceBreakdown map[string]float64 `json:"confidence_breakdown,omitempty"`
	SourceGrounding     []string           `json:"source_grounding,omitempty"`
	Emergency           *EmergencyNotice   `json:"emergency,omitempty"`
}

// SynthesizeRequest asks the backend to render text as speech.
type SynthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Speech is a synthesized audio resource. AudioURL is presigned and expires.
type Speech struct {
	AudioURL  string    `json:"audio_url"`
	VoiceID   string    `json:"voice_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Question is a follow-up question about an analysed document.
type Question struct {
	SessionID string `json:"session_id"`
	Text      string `json:"question"`
	Language  string `json:"language"`
}

// Answer is the backend's reply to a follow-up [Question].
type Answer struct {
	Text            string   `json:"answer"`
	RelatedValues   []string `json:"related_values,omitempty"`
	ShouldAskDoctor bool     `json:"should_ask_doctor"`
}

// SchemeQuery describes a household profile for welfare scheme matching.
type SchemeQuery struct {
	State      string   `json:"state"`
	IncomeBand string   `json:"income_range"`
	Age        int      `json:"age"`
	BPL        bool     `json:"is_bpl"`
	Conditions []string `json:"conditions,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	Language   string   `json:"language,omitempty"`
}

// Scheme is a single government scheme candidate.
type Scheme struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	State       string `json:"state,omitempty"`
	Type        string `json:"type,omitempty"`
	Eligibility string `json:"eligibility,omitempty"`
	Benefits    string `json:"benefits,omitempty"`
	ApplyLink   string `json:"apply_link,omitempty"`
}

// SchemeResult is the ranked outcome of a scheme match.
type SchemeResult struct {
	Schemes []Scheme `json:"schemes"`
	Count   int      `json:"count"`
	Summary string   `json:"summary,omitempty"`
	RAGUsed bool     `json:"rag_used,omitempty"`
}

// SMSRequest asks the backend to text the analysis summary to a phone.
type SMSRequest struct {
	SessionID      string `json:"session_id"`
	Phone          string `json:"phone_number"`
	IncludeSchemes bool   `json:"include_schemes"`
	Language       string `json:"language"`
}

// SMSReceipt reports the outcome of an SMS send.
type SMSReceipt struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
}

// APIError is a non-2xx backend response carrying the server's detail string.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Detail is the server-provided error description.
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend: %s (status %d)", e.Detail, e.StatusCode)
}

// Breaker gates outbound calls. [HTTPClient] wraps its interactive calls in
// one when configured via [WithBreaker]; *resilience.Breaker satisfies it.
type Breaker interface {
	Execute(fn func() error) error
}

// Client is the full backend contract consumed by the session engine.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Upload submits a document and opens a processing session.
	Upload(ctx context.Context, doc Document) (UploadReceipt, error)

	// Status returns the current processing snapshot for a session.
	Status(ctx context.Context, sessionID string) (StatusReport, error)

	// Analyze requests the plain-language interpretation of a processed
	// document. Only valid once processing reached the completed state.
	Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, error)

	// Synthesize renders text as speech and returns a presigned audio URL.
	Synthesize(ctx context.Context, req SynthesizeRequest) (Speech, error)

	// Ask submits a follow-up question about the analysed document.
	Ask(ctx context.Context, q Question) (Answer, error)

	// MatchSchemes returns government schemes matching a household profile.
	MatchSchemes(ctx context.Context, q SchemeQuery) (SchemeResult, error)

	// SendSummarySMS texts the analysis summary to a phone number.
	SendSummarySMS(ctx context.Context, req SMSRequest) (SMSReceipt, error)

	// DeleteDocument removes a session's document and server-side state.
	// Invoked best-effort when a session is reset.
	DeleteDocument(ctx context.Context, sessionID string) error

	// Health probes backend readiness.
	Health(ctx context.Context) error
}
