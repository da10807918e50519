// Package genaisdk streams answers through the Google Gen AI SDK.
package genaisdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nstogner/plantchat/pkg/transport"
	"google.golang.org/genai"
)

// Config configures a Transport.
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	IdleTimeout       time.Duration
	SystemInstruction string
}

// Transport implements transport.Transport with genai.Client.
type Transport struct {
	client *genai.Client
	cfg    Config
}

var _ transport.Transport = (*Transport)(nil)

// New creates a Gen AI client for the Gemini API backend.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  transport.NewHTTPClient(cfg.APIKey),
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Transport{client: client, cfg: cfg}, nil
}

// Contents converts a request into SDK contents.
func Contents(req transport.Request) []*genai.Content {
	turns := req.Turns()
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		contents = append(contents, genai.NewContentFromText(turn.Text, genai.Role(transport.WireRole(turn.Role))))
	}
	return contents
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
	wd := transport.StartWatchdog(t.cfg.IdleTimeout, cancel)
	defer wd.Stop()

	var config *genai.GenerateContentConfig
	if t.cfg.SystemInstruction != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: t.cfg.SystemInstruction}}},
		}
	}

	slog.Debug("GenAI.Stream: starting", "model", t.cfg.Model, "historyCount", len(req.History))
	for resp, err := range t.client.Models.GenerateContentStream(ctx, t.cfg.Model, Contents(req), config) {
		if err != nil {
			if p.Context().Err() != nil {
				return
			}
			p.Send(transport.Failure(wd.Err(statusError(err))))
			return
		}
		wd.Kick()
		for _, ev := range Events(resp) {
			if !p.Send(ev) || ev.Terminal() {
				return
			}
		}
	}
	p.Send(transport.Done())
}

// Events maps one SDK response onto transport events using the same rules as
// the wire decoder.
func Events(resp *genai.GenerateContentResponse) []transport.Event {
	if resp == nil {
		return nil
	}
	var events []transport.Event
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		cand := resp.Candidates[0]
		if cand.Content != nil && len(cand.Content.Parts) > 0 && cand.Content.Parts[0] != nil {
			if text := cand.Content.Parts[0].Text; text != "" {
				events = append(events, transport.Delta(text))
			}
		}
		if cand.FinishReason == genai.FinishReasonSafety {
			return append(events, transport.SafetyBlocked(string(cand.FinishReason)))
		}
	}
	if len(events) == 0 && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return []transport.Event{transport.PromptBlocked(string(resp.PromptFeedback.BlockReason))}
	}
	return events
}

func statusError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &transport.StatusError{Code: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &transport.StatusError{Code: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return fmt.Errorf("streaming content: %w", err)
}
