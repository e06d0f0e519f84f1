package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// API paths, mirroring the document backend's routing.
const (
	uploadPath     = "/api/documents/upload"
	statusPathFmt  = "/api/documents/status/%s"
	deletePathFmt  = "/api/documents/%s"
	analyzePath    = "/api/analysis/explain"
	questionPath   = "/api/analysis/question"
	synthesizePath = "/api/audio/synthesize"
	schemesPath    = "/api/schemes/match"
	smsPath        = "/api/notifications/send-summary"
	healthPath     = "/health"
)

const defaultUserAgent = "vaidya/1.0"

// Recorder receives one timing sample per backend call. *observe.Metrics
// satisfies it; a nil Recorder disables recording.
type Recorder interface {
	RecordBackendCall(ctx context.Context, call, status string, seconds float64)
}

// Option is a functional option for configuring an [HTTPClient].
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying [http.Client].
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithAPIKey attaches a Bearer token to every request.
func WithAPIKey(key string) Option {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// WithBreaker wraps the interactive calls (analyze, synthesize, ask, scheme
// match, SMS) in the given circuit breaker. Upload and status polling always
// pass through: the poller owns its own retry discipline and must keep
// ticking until a terminal state.
func WithBreaker(b Breaker) Option {
	return func(c *HTTPClient) {
		c.breaker = b
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *HTTPClient) {
		c.userAgent = ua
	}
}

// WithRecorder installs a metrics recorder for call timings.
func WithRecorder(r Recorder) Option {
	return func(c *HTTPClient) {
		c.recorder = r
	}
}

// HTTPClient implements [Client] against the JSON/HTTP document backend.
// All methods are safe for concurrent use.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	breaker    Breaker
	recorder   Recorder
}

// Compile-time check that *HTTPClient satisfies [Client].
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the backend at baseURL
// (e.g. "https://api.example.org"). baseURL must be non-empty.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, errors.New("backend: baseURL must not be empty")
	}
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// errorBody is the JSON error envelope returned on non-2xx responses.
type errorBody struct {
	Detail string `json:"detail"`
}

// Upload implements [Client.Upload] via a multipart POST.
func (c *HTTPClient) Upload(ctx context.Context, doc Document) (UploadReceipt, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, doc.Name))
	hdr.Set("Content-Type", doc.MIME)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return UploadReceipt{}, fmt.Errorf("backend: upload: build form: %w", err)
	}
	if _, err := part.Write(doc.Data); err != nil {
		return UploadReceipt{}, fmt.Errorf("backend: upload: write form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadReceipt{}, fmt.Errorf("backend: upload: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, &body)
	if err != nil {
		return UploadReceipt{}, fmt.Errorf("backend: upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var receipt UploadReceipt
	err = c.roundTrip(req, "upload", &receipt)
	if err != nil {
		return UploadReceipt{}, err
	}
	return receipt, nil
}

// Status implements [Client.Status]. Never routed through the breaker.
func (c *HTTPClient) Status(ctx context.Context, sessionID string) (StatusReport, error) {
	var report StatusReport
	err := c.call(ctx, http.MethodGet, fmt.Sprintf(statusPathFmt, sessionID), nil, &report, "status")
	return report, err
}

// Analyze implements [Client.Analyze], guarded by the breaker when set.
func (c *HTTPClient) Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, error) {
	var analysis Analysis
	err := c.guarded(func() error {
		return c.call(ctx, http.MethodPost, analyzePath, req, &analysis, "analyze")
	})
	return analysis, err
}

// Synthesize implements [Client.Synthesize], guarded by the breaker when set.
func (c *HTTPClient) Synthesize(ctx context.Context, req SynthesizeRequest) (Speech, error) {
	var speech Speech
	err := c.guarded(func() error {
		return c.call(ctx, http.MethodPost, synthesizePath, req, &speech, "synthesize")
	})
	return speech, err
}

// Ask implements [Client.Ask], guarded by the breaker when set.
func (c *HTTPClient) Ask(ctx context.Context, q Question) (Answer, error) {
	var answer Answer
	err := c.guarded(func() error {
		return c.call(ctx, http.MethodPost, questionPath, q, &answer, "ask")
	})
	return answer, err
}

// MatchSchemes implements [Client.MatchSchemes], guarded by the breaker when set.
func (c *HTTPClient) MatchSchemes(ctx context.Context, q SchemeQuery) (SchemeResult, error) {
	var result SchemeResult
	err := c.guarded(func() error {
		return c.call(ctx, http.MethodPost, schemesPath, q, &result, "schemes")
	})
	return result, err
}

// SendSummarySMS implements [Client.SendSummarySMS], guarded by the breaker when set.
func (c *HTTPClient) SendSummarySMS(ctx context.Context, req SMSRequest) (SMSReceipt, error) {
	var receipt SMSReceipt
	err := c.guarded(func() error {
		return c.call(ctx, http.MethodPost, smsPath, req, &receipt, "sms")
	})
	return receipt, err
}

// DeleteDocument implements [Client.DeleteDocument].
func (c *HTTPClient) DeleteDocument(ctx context.Context, sessionID string) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf(deletePathFmt, sessionID), nil, nil, "delete")
}

// Health implements [Client.Health].
func (c *HTTPClient) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, healthPath, nil, nil, "health")
}

// guarded runs fn through the breaker when one is configured.
func (c *HTTPClient) guarded(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

// call performs a JSON round trip: body (if non-nil) is encoded as the
// request body, and the response is decoded into out (if non-nil).
func (c *HTTPClient) call(ctx context.Context, method, path string, body, out any, kind string) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: %s: encode request: %w", kind, err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", kind, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.roundTrip(req, kind, out)
}

// roundTrip executes req, maps non-2xx responses to [*APIError], and decodes
// a 2xx body into out when out is non-nil.
func (c *HTTPClient) roundTrip(req *http.Request, kind string, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(req.Context(), kind, "error", start)
		return fmt.Errorf("backend: %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.record(req.Context(), kind, "error", start)
		var eb errorBody
		// A body that is not the error envelope still yields a usable APIError.
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return &APIError{StatusCode: resp.StatusCode, Detail: eb.Detail}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.record(req.Context(), kind, "error", start)
			return fmt.Errorf("backend: %s: decode response: %w", kind, err)
		}
	}
	c.record(req.Context(), kind, "ok", start)
	return nil
}

// record emits one timing sample when a recorder is configured.
func (c *HTTPClient) record(ctx context.Context, kind, status string, start time.Time) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordBackendCall(ctx, kind, status, time.Since(start).Seconds())
}
