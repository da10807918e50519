package mock

import (
	"strings"
	"testing"

	"github.com/nstogner/plantchat/pkg/transport"
)

func TestMockStream(t *testing.T) {
	tests := []struct {
		prompt   string
		wantText string
		wantLast transport.EventType
	}{
		{prompt: "hello there", wantText: "Echo (0 prior turns): hello there", wantLast: transport.EventDone},
		{prompt: "hi #safety", wantText: "Echo (0 prior turns): hi #safety", wantLast: transport.EventSafetyBlocked},
		{prompt: "#blocked", wantText: "", wantLast: transport.EventPromptBlocked},
		{prompt: "x #fail", wantText: "Echo ", wantLast: transport.EventFailure},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			s := (&Transport{}).Stream(t.Context(), transport.Request{Prompt: tt.prompt})
			var text strings.Builder
			var last transport.Event
			for ev := range s.Events() {
				if ev.Type == transport.EventDelta {
					text.WriteString(ev.Text)
				}
				last = ev
			}
			if text.String() != tt.wantText {
				t.Errorf("text = %q, want %q", text.String(), tt.wantText)
			}
			if last.Type != tt.wantLast {
				t.Errorf("last = %v, want %s", last, tt.wantLast)
			}
		})
	}
}
