package transport

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nstogner/plantchat/pkg/domain"
)

func collect(t *testing.T, body string) []Event {
	t.Helper()
	var events []Event
	Decode(strings.NewReader(body), func(ev Event) bool {
		events = append(events, ev)
		return true
	})
	return events
}

func textRecord(text string) string {
	return `data: {"candidates":[{"content":{"parts":[{"text":"` + text + `"}],"role":"model"}}]}` + "\n\n"
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []Event
	}{
		{
			name: "deltas then done",
			body: textRecord("Hi") + textRecord(", ") + textRecord("there."),
			want: []Event{Delta("Hi"), Delta(", "), Delta("there."), Done()},
		},
		{
			name: "empty body",
			body: "",
			want: []Event{Done()},
		},
		{
			name: "crlf and comments ignored",
			body: ": keepalive\r\nevent: message\r\n" + strings.ReplaceAll(textRecord("a"), "\n", "\r\n"),
			want: []Event{Delta("a"), Done()},
		},
		{
			name: "safety block stops decoding",
			body: textRecord("partial") +
				`data: {"candidates":[{"finishReason":"SAFETY","safetyRatings":[{"category":"HARM_CATEGORY_X"}]}]}` + "\n\n" +
				textRecord("never"),
			want: []Event{Delta("partial"), SafetyBlocked("SAFETY")},
		},
		{
			name: "text with safety finish in one record",
			body: `data: {"candidates":[{"content":{"parts":[{"text":"abc"}]},"finishReason":"SAFETY"}]}` + "\n",
			want: []Event{Delta("abc"), SafetyBlocked("SAFETY")},
		},
		{
			name: "prompt block",
			body: `data: {"promptFeedback":{"blockReason":"OTHER"}}` + "\n" + textRecord("never"),
			want: []Event{PromptBlocked("OTHER")},
		},
		{
			name: "malformed record becomes diagnostic delta",
			body: textRecord("one") + "data: {not json\n" + textRecord("two"),
			want: []Event{Delta("one"), Delta(MalformedChunkText), Delta("two"), Done()},
		},
		{
			name: "unknown fields and non-safety finish ignored",
			body: `data: {"usageMetadata":{"promptTokenCount":3}}` + "\n" +
				`data: {"candidates":[{"content":{"parts":[{"text":"end"}]},"finishReason":"STOP"}],"modelVersion":"x"}` + "\n",
			want: []Event{Delta("end"), Done()},
		},
		{
			name: "last line without newline",
			body: strings.TrimSuffix(textRecord("tail"), "\n\n"),
			want: []Event{Delta("tail"), Done()},
		},
		{
			name: "done sentinel",
			body: textRecord("x") + "data: [DONE]\n" + textRecord("never"),
			want: []Event{Delta("x"), Done()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, tt.body)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].Type != tt.want[i].Type || got[i].Text != tt.want[i].Text || got[i].Reason != tt.want[i].Reason {
					t.Errorf("event %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDecodeInBandError(t *testing.T) {
	got := collect(t, `data: {"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`+"\n")
	if len(got) != 1 || got[0].Type != EventFailure {
		t.Fatalf("got %v, want single failure", got)
	}
	var se *StatusError
	if !errors.As(got[0].Err, &se) || se.Code != 503 {
		t.Errorf("err = %v, want StatusError 503", got[0].Err)
	}
}

func TestDecodeOversizedLine(t *testing.T) {
	body := "data: " + strings.Repeat("x", MaxLineSize+10) + "\n" + textRecord("after")
	got := collect(t, body)
	want := []Event{Delta(MalformedChunkText), Delta("after"), Done()}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Type != want[i].Type || got[i].Text != want[i].Text {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeStopsWhenConsumerGone(t *testing.T) {
	n := 0
	Decode(strings.NewReader(textRecord("a")+textRecord("b")+textRecord("c")), func(ev Event) bool {
		n++
		return false
	})
	if n != 1 {
		t.Errorf("emit called %d times, want 1", n)
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestDecodeReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader(textRecord("a")), failingReader{boom})
	var events []Event
	Decode(r, func(ev Event) bool {
		events = append(events, ev)
		return true
	})
	if len(events) != 2 || events[0].Text != "a" || events[1].Type != EventFailure {
		t.Fatalf("got %v", events)
	}
	if !errors.Is(events[1].Err, boom) {
		t.Errorf("err = %v, want wrapped %v", events[1].Err, boom)
	}
}

type blockingReader struct{ unblock chan struct{} }

func (r blockingReader) Read([]byte) (int, error) {
	<-r.unblock
	return 0, errors.New("closed")
}

func TestWatchdogReaderTimesOut(t *testing.T) {
	br := blockingReader{unblock: make(chan struct{})}
	w := StartWatchdog(20*time.Millisecond, func() { close(br.unblock) })
	defer w.Stop()

	var events []Event
	Decode(w.Reader(br), func(ev Event) bool {
		events = append(events, ev)
		return true
	})
	if len(events) != 1 || events[0].Type != EventFailure {
		t.Fatalf("got %v, want failure", events)
	}
	if !errors.Is(events[0].Err, ErrIdleTimeout) {
		t.Errorf("err = %v, want ErrIdleTimeout", events[0].Err)
	}
}

func TestNilWatchdog(t *testing.T) {
	w := StartWatchdog(0, func() { t.Error("disabled watchdog fired") })
	if w != nil {
		t.Fatal("expected nil watchdog for zero interval")
	}
	w.Kick()
	w.Stop()
	if w.Fired() {
		t.Error("nil watchdog reports fired")
	}
	r := strings.NewReader("x")
	if w.Reader(r) != io.Reader(r) {
		t.Error("nil watchdog should not wrap reader")
	}
}

func TestRequestTurns(t *testing.T) {
	req := Request{
		Prompt: "How often should I water it?",
		History: []Turn{
			{Role: domain.RoleAssistant, Text: "Hello!"},
			{Role: domain.RoleUser, Text: "I have a fern."},
			{Role: domain.RoleAssistant, Text: "Nice."},
		},
		Context: "viewing plant Boston fern",
	}
	turns := req.Turns()
	if len(turns) != 4 {
		t.Fatalf("len = %d, want 4", len(turns))
	}
	if turns[1].Text != "Context: viewing plant Boston fern\n\nI have a fern." {
		t.Errorf("first user turn = %q", turns[1].Text)
	}
	if turns[3].Text != req.Prompt || turns[3].Role != domain.RoleUser {
		t.Errorf("last turn = %+v", turns[3])
	}
	if req.History[1].Text != "I have a fern." {
		t.Error("Turns mutated the request history")
	}

	bare := Request{Prompt: "hi"}.Turns()
	if len(bare) != 1 || bare[0].Text != "hi" {
		t.Errorf("bare turns = %+v", bare)
	}
}

func TestPipeCloseStopsProducer(t *testing.T) {
	p := NewPipe(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer p.Finish()
		for p.Send(Delta("x")) {
		}
	}()
	<-p.Events()
	p.Close()
	p.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer did not stop after Close")
	}
	for range p.Events() {
	}
}
