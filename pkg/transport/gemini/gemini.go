// Package gemini streams answers from the Gemini REST API using server-sent
// events and the shared transport decoder.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nstogner/plantchat/pkg/transport"
)

const (
	// DefaultBaseURL is the public Generative Language endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "gemini-2.0-flash"

	maxErrorBody = 4 << 10
)

// Config configures a Transport.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// IdleTimeout bounds the wait for the first byte and the gap between
	// subsequent bytes. Zero disables the watchdog.
	IdleTimeout time.Duration
	// SystemInstruction is sent with every call when non-empty.
	SystemInstruction string
	// HTTPClient overrides the default logging client.
	HTTPClient *http.Client
}

// Transport implements transport.Transport against streamGenerateContent.
type Transport struct {
	cfg    Config
	client *http.Client
}

var _ transport.Transport = (*Transport)(nil)

// New returns a REST transport.
func New(cfg Config) *Transport {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = transport.NewHTTPClient(cfg.APIKey)
	}
	return &Transport{cfg: cfg, client: client}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

// Body builds the JSON request body for req.
func (t *Transport) Body(req transport.Request) ([]byte, error) {
	turns := req.Turns()
	body := generateRequest{Contents: make([]content, 0, len(turns))}
	for _, turn := range turns {
		body.Contents = append(body.Contents, content{
			Role:  transport.WireRole(turn.Role),
			Parts: []part{{Text: turn.Text}},
		})
	}
	if t.cfg.SystemInstruction != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: t.cfg.SystemInstruction}}}
	}
	return json.Marshal(body)
}

func (t *Transport) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse",
		t.cfg.BaseURL, url.PathEscape(t.cfg.Model))
}

// Stream implements transport.Transport.
func (t *Transport) Stream(ctx context.Context, req transport.Request) transport.Stream {
	p := transport.NewPipe(ctx)
	go t.run(p, req)
	return p
}

func (t *Transport) run(p *transport.Pipe, req transport.Request) {
	defer p.Finish()
	ctx, cancel := context.WithCancel(p.Context())
	defer cancel()

	// One watchdog covers time to first byte and every later gap.
	wd := transport.StartWatchdog(t.cfg.IdleTimeout, cancel)
	defer wd.Stop()

	body, err := t.Body(req)
	if err != nil {
		p.Send(transport.Failure(fmt.Errorf("encoding request: %w", err)))
		return
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(), bytes.NewReader(body))
	if err != nil {
		p.Send(transport.Failure(fmt.Errorf("building request: %w", err)))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	slog.Debug("Gemini.Stream: starting", "model", t.cfg.Model, "historyCount", len(req.History))
	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		p.Send(transport.Failure(wd.Err(fmt.Errorf("sending request: %w", err))))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		p.Send(transport.Failure(&transport.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}))
		return
	}
	wd.Kick()

	var deltas int
	transport.Decode(wd.Reader(resp.Body), func(ev transport.Event) bool {
		if ev.Type == transport.EventDelta {
			deltas++
		}
		if ev.Type == transport.EventFailure && p.Context().Err() != nil {
			// Consumer closed the stream; nothing left to report.
			return false
		}
		return p.Send(ev)
	})
	slog.Debug("Gemini.Stream: finished", "deltas", deltas, "duration", time.Since(start))
}
