package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// statusStreamPathFmt is the WebSocket endpoint that pushes status updates.
const statusStreamPathFmt = "/ws/status/%s"

// StatusStream subscribes to server-pushed processing status updates for one
// session. It returns a channel that emits a [StatusReport] per update and is
// closed when a terminal state arrives, the connection drops, or ctx is
// cancelled.
//
// The stream is an optional alternative to polling [HTTPClient.Status];
// callers unable to establish it should fall back to polling.
func (c *HTTPClient) StatusStream(ctx context.Context, sessionID string) (<-chan StatusReport, error) {
	wsURL, err := websocketURL(c.baseURL, fmt.Sprintf(statusStreamPathFmt, sessionID))
	if err != nil {
		return nil, fmt.Errorf("backend: status stream: %w", err)
	}

	var hdrOpts *websocket.DialOptions
	if c.apiKey != "" {
		hdrOpts = &websocket.DialOptions{}
		hdrOpts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + c.apiKey},
		}
	}
	conn, _, err := websocket.Dial(ctx, wsURL, hdrOpts)
	if err != nil {
		return nil, fmt.Errorf("backend: status stream dial: %w", err)
	}

	updates := make(chan StatusReport, 8)

	go func() {
		defer close(updates)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			report, ok := parseStatusMessage(msg)
			if !ok {
				slog.Debug("status stream: skipping malformed message", "session_id", sessionID)
				continue
			}
			select {
			case updates <- report:
			case <-ctx.Done():
				return
			}
			if report.State.Terminal() {
				return
			}
		}
	}()

	return updates, nil
}

// websocketURL rewrites an http(s) base URL to its ws(s) equivalent and
// appends path.
func websocketURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a websocket scheme
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// parseStatusMessage decodes one pushed status frame. Frames that are not a
// status report (or carry an unknown state) are skipped rather than
// terminating the stream.
func parseStatusMessage(msg []byte) (StatusReport, bool) {
	var report StatusReport
	if err := json.Unmarshal(msg, &report); err != nil {
		return StatusReport{}, false
	}
	if report.State == "" {
		return StatusReport{}, false
	}
	return report, true
}
