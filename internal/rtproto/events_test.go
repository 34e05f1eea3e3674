package rtproto

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseServerEventToolArgsDone(t *testing.T) {
	raw := []byte(`{"type":"response.function_call_arguments.done","call_id":"call_1","name":"open_file","arguments":"{\"path\":\"main.go\"}"}`)
	ev, err := ParseServerEvent(raw)
	if err != nil {
		t.Fatalf("ParseServerEvent() error = %v", err)
	}
	if ev.Type != TypeToolArgsDone {
		t.Fatalf("Type = %q, want %q", ev.Type, TypeToolArgsDone)
	}
	if ev.CallID != "call_1" || ev.Name != "open_file" {
		t.Fatalf("CallID/Name = %q/%q, want call_1/open_file", ev.CallID, ev.Name)
	}
	if ev.Arguments != `{"path":"main.go"}` {
		t.Fatalf("Arguments = %q", ev.Arguments)
	}
}

func TestParseServerEventMissingType(t *testing.T) {
	if _, err := ParseServerEvent([]byte(`{"delta":"hi"}`)); err == nil {
		t.Fatalf("ParseServerEvent() error = nil, want missing-type error")
	}
}

func TestParseServerEventInvalidJSON(t *testing.T) {
	if _, err := ParseServerEvent([]byte(`{`)); err == nil {
		t.Fatalf("ParseServerEvent() error = nil, want parse error")
	}
}

func TestSessionUpdateFrameShape(t *testing.T) {
	desc := SessionDescriptor{
		Model:        "rt-large",
		Instructions: "be brief",
		Tools: []ToolSpec{{
			Type:       "function",
			Name:       "speak",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
	}
	raw, err := json.Marshal(SessionUpdate(desc))
	if err != nil {
		t.Fatalf("marshal session.update: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, `"type":"session.update"`) {
		t.Fatalf("frame missing type discriminator: %s", s)
	}
	if !strings.Contains(s, `"instructions":"be brief"`) {
		t.Fatalf("frame missing session payload: %s", s)
	}
}

func TestControlFrameShapes(t *testing.T) {
	cases := []struct {
		frame any
		want  string
	}{
		{AudioCommit(), `{"type":"input_audio_buffer.commit"}`},
		{ResponseCreate(), `{"type":"response.create"}`},
		{AudioAppend("cGNt"), `{"type":"input_audio_buffer.append","audio":"cGNt"}`},
	}
	for _, tc := range cases {
		raw, err := json.Marshal(tc.frame)
		if err != nil {
			t.Fatalf("marshal %T: %v", tc.frame, err)
		}
		if string(raw) != tc.want {
			t.Fatalf("frame = %s, want %s", raw, tc.want)
		}
	}
}
