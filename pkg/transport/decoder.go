package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const (
	// MalformedChunkText is emitted as a delta in place of a record that could
	// not be decoded, so one bad line does not discard the rest of an answer.
	MalformedChunkText = "[malformed chunk]"

	// MaxLineSize bounds a single record. Longer lines are treated as malformed.
	MaxLineSize = 1 << 20

	// FinishReasonSafety is the finish reason the remote service uses when it
	// stops generating for safety reasons.
	FinishReasonSafety = "SAFETY"
)

var dataPrefix = []byte("data:")

// chunk is the subset of a streamGenerateContent record that we inspect.
// Everything else is ignored.
type chunk struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Decode reads a server-push body line by line and hands the resulting events
// to emit in source order. It always finishes with exactly one terminal event
// (Done, a block event or Failure) unless emit returns false first, in which
// case decoding stops immediately. Decode never reads past a terminal event;
// the caller is responsible for closing the body afterwards.
func Decode(r io.Reader, emit func(Event) bool) {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, oversized, err := readLine(br)
		if len(line) > 0 || oversized {
			events, stop := decodeLine(line, oversized)
			for _, ev := range events {
				if !emit(ev) {
					return
				}
			}
			if stop {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				emit(Done())
				return
			}
			emit(Failure(fmt.Errorf("reading stream: %w", err)))
			return
		}
	}
}

// readLine returns the next line without its terminator. Lines longer than
// MaxLineSize are drained and reported as oversized.
func readLine(br *bufio.Reader) ([]byte, bool, error) {
	var buf []byte
	oversized := false
	for {
		frag, err := br.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(frag) > MaxLineSize {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, frag...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(buf, "\r\n"), oversized, err
	}
}

// decodeLine turns one line into zero or more events. The boolean result is
// true when the last event is terminal.
func decodeLine(line []byte, oversized bool) ([]Event, bool) {
	if oversized {
		perr := &ProtocolError{Err: fmt.Errorf("record exceeds %d bytes", MaxLineSize)}
		slog.Warn("Skipping oversized stream record", "error", perr)
		return []Event{Delta(MalformedChunkText)}, false
	}
	if !bytes.HasPrefix(line, dataPrefix) {
		// Blank separators, comments, event:/id: fields.
		return nil, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return nil, false
	}
	if bytes.Equal(payload, []byte("[DONE]")) {
		return []Event{Done()}, true
	}

	var c chunk
	if err := json.Unmarshal(payload, &c); err != nil {
		perr := &ProtocolError{Line: string(payload), Err: err}
		slog.Warn("Skipping malformed stream record", "error", perr)
		return []Event{Delta(MalformedChunkText)}, false
	}
	return c.events()
}

func (c *chunk) events() ([]Event, bool) {
	if c.Error != nil {
		return []Event{Failure(&StatusError{Code: c.Error.Code, Body: c.Error.Message})}, true
	}

	var events []Event
	if len(c.Candidates) > 0 {
		cand := c.Candidates[0]
		if cand.Content != nil && len(cand.Content.Parts) > 0 {
			if t := cand.Content.Parts[0].Text; t != nil && *t != "" {
				events = append(events, Delta(*t))
			}
		}
		if cand.FinishReason == FinishReasonSafety {
			return append(events, SafetyBlocked(cand.FinishReason)), true
		}
	}
	if len(events) == 0 && c.PromptFeedback != nil && c.PromptFeedback.BlockReason != "" {
		return []Event{PromptBlocked(c.PromptFeedback.BlockReason)}, true
	}
	return events, false
}
