package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/nstogner/plantchat/pkg/domain"
)

// EventType identifies the kind of a stream Event.
type EventType string

const (
	// EventDelta carries an incremental fragment of the answer.
	EventDelta EventType = "delta"
	// EventSafetyBlocked means the remote service refused to continue.
	EventSafetyBlocked EventType = "safety_blocked"
	// EventPromptBlocked means the request was rejected before generation.
	EventPromptBlocked EventType = "prompt_blocked"
	// EventDone marks the normal end of the stream.
	EventDone EventType = "done"
	// EventFailure reports a network, timeout or status failure.
	EventFailure EventType = "failure"
)

// Event is a tagged union of everything a Stream can yield.
// Text is set for EventDelta, Reason for the two block events and Err for
// EventFailure.
type Event struct {
	Type   EventType
	Text   string
	Reason string
	Err    error
}

// Delta returns a delta event.
func Delta(text string) Event { return Event{Type: EventDelta, Text: text} }

// SafetyBlocked returns a safety block event.
func SafetyBlocked(reason string) Event { return Event{Type: EventSafetyBlocked, Reason: reason} }

// PromptBlocked returns a prompt block event.
func PromptBlocked(reason string) Event { return Event{Type: EventPromptBlocked, Reason: reason} }

// Done returns the end-of-stream event.
func Done() Event { return Event{Type: EventDone} }

// Failure returns a transport failure event.
func Failure(err error) Event { return Event{Type: EventFailure, Err: err} }

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Type != EventDelta
}

func (e Event) String() string {
	switch e.Type {
	case EventDelta:
		return fmt.Sprintf("delta(%q)", e.Text)
	case EventSafetyBlocked, EventPromptBlocked:
		return fmt.Sprintf("%s(%s)", e.Type, e.Reason)
	case EventFailure:
		return fmt.Sprintf("failure(%v)", e.Err)
	default:
		return string(e.Type)
	}
}

// Turn is the wire shape of one history entry.
type Turn struct {
	Role domain.Role `json:"role"`
	Text string      `json:"text"`
}

// Request is everything a Transport needs for one streaming call.
type Request struct {
	// Prompt is the new user text.
	Prompt string
	// History is the chronological window of prior finalized turns.
	History []Turn
	// Context is an opaque caller hint prepended to the first user turn.
	Context string
}

// Transport starts streaming calls against a remote generative service.
type Transport interface {
	// Stream begins a call and returns immediately. Failures, including those
	// that happen before any byte is received, are delivered as EventFailure.
	Stream(ctx context.Context, req Request) Stream
}

// Stream is a single in-flight call.
type Stream interface {
	// Events yields events in source order. The channel is closed after a
	// terminal event or after Close.
	Events() <-chan Event

	// Close aborts the underlying call. It is safe to call more than once.
	Close() error
}

var (
	// ErrIdleTimeout is reported when no byte arrives within the idle interval.
	ErrIdleTimeout = errors.New("transport: idle timeout waiting for response data")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("transport: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("transport: unexpected status %d: %s", e.Code, e.Body)
}

// ProtocolError describes a record that could not be decoded.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("transport: malformed chunk: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// HistoryFrom converts finalized messages into wire turns.
func HistoryFrom(msgs []domain.Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: m.Role, Text: m.Text})
	}
	return turns
}
