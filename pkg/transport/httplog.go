package transport

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
)

const (
	// LevelTrace is a custom log level for detailed HTTP traffic.
	LevelTrace = slog.Level(-8)
)

// NewHTTPClient returns a client that injects apiKey and dumps traffic at
// LevelTrace. The client has no overall timeout; streaming calls are bounded
// by their context and the idle watchdog instead.
func NewHTTPClient(apiKey string) *http.Client {
	return &http.Client{
		Transport: &loggingTransport{
			base:   http.DefaultTransport,
			apiKey: apiKey,
		},
	}
}

type loggingTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// The SDK skips its own key injection when handed a custom client.
	if t.apiKey != "" && req.Header.Get("x-goog-api-key") == "" && req.URL.Query().Get("key") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("x-goog-api-key", t.apiKey)
	}

	if !slog.Default().Enabled(req.Context(), LevelTrace) {
		return t.base.RoundTrip(req)
	}

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		slog.Debug("Failed to dump request", "error", err)
	} else {
		slog.Log(req.Context(), LevelTrace, "REST request", "url", redact(req), "dump", scrubKey(string(reqDump), t.apiKey))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Never consume a push body here; the decoder owns it.
	isStream := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") ||
		strings.Contains(req.URL.Query().Get("alt"), "sse")

	respDump, err := httputil.DumpResponse(resp, !isStream)
	if err != nil {
		slog.Debug("Failed to dump response", "error", err)
	} else {
		slog.Log(req.Context(), LevelTrace, "REST response", "status", resp.StatusCode, "isStream", isStream, "dump", string(respDump))
	}

	return resp, nil
}

func redact(req *http.Request) string {
	u := *req.URL
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func scrubKey(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, key, "REDACTED")
}
