package rtproto

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates inbound frames from the realtime backend.
type EventType string

const (
	TypeError              EventType = "error"
	TypeSessionCreated     EventType = "session.created"
	TypeSessionUpdated     EventType = "session.updated"
	TypeSpeechStarted      EventType = "input_audio_buffer.speech_started"
	TypeSpeechStopped      EventType = "input_audio_buffer.speech_stopped"
	TypeInputCommitted     EventType = "input_audio_buffer.committed"
	TypeTranscriptDone     EventType = "conversation.item.input_audio_transcription.completed"
	TypeResponseCreated    EventType = "response.created"
	TypeResponseTextDelta  EventType = "response.text.delta"
	TypeResponseTextDone   EventType = "response.text.done"
	TypeResponseAudioDelta EventType = "response.audio.delta"
	TypeResponseAudioDone  EventType = "response.audio.done"
	TypeToolArgsDelta      EventType = "response.function_call_arguments.delta"
	TypeToolArgsDone       EventType = "response.function_call_arguments.done"
	TypeResponseDone       EventType = "response.done"
)

// ErrorDetail is the backend-reported error payload inside an error event.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Usage carries token accounting attached to response.done events.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	TotalTokens  int `json:"total_tokens,omitempty"`
}

// ServerEvent is the flattened decoding of one inbound frame. Vendors vary
// in which fields they populate per type; consumers key off Type and read
// only the fields that type defines.
type ServerEvent struct {
	Type       EventType    `json:"type"`
	EventID    string       `json:"event_id,omitempty"`
	ResponseID string       `json:"response_id,omitempty"`
	ItemID     string       `json:"item_id,omitempty"`
	CallID     string       `json:"call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Text       string       `json:"text,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Arguments  string       `json:"arguments,omitempty"`
	AudioMS    int64        `json:"audio_end_ms,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
	Usage      *Usage       `json:"usage,omitempty"`
}

// ParseServerEvent decodes one inbound frame. Unknown types decode fine; the
// demultiplexer decides what to do with them.
func ParseServerEvent(raw []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ServerEvent{}, fmt.Errorf("invalid server event: %w", err)
	}
	if ev.Type == "" {
		return ServerEvent{}, fmt.Errorf("server event missing type")
	}
	return ev, nil
}
