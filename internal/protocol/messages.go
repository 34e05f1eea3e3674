package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants on the client edge.
type MessageType string

const (
	TypeClientAudioChunk   MessageType = "client_audio_chunk"
	TypeClientControl      MessageType = "client_control"
	TypeSpeechStarted      MessageType = "speech_started"
	TypeSpeechEnded        MessageType = "speech_ended"
	TypeAssistantTextDelta MessageType = "assistant_text_delta"
	TypeAssistantAudio     MessageType = "assistant_audio_chunk"
	TypeAssistantTurnEnd   MessageType = "assistant_turn_end"
	TypeToolCall           MessageType = "tool_call"
	TypeSystemEvent        MessageType = "system_event"
	TypeErrorEvent         MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientAudioChunk carries one captured PCM frame. Voice is the client-side
// energy gate's verdict for the frame; the server's detector turns the flag
// stream into speech segments.
type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	Voice       bool        `json:"voice"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Text      string      `json:"text,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type SpeechStarted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	SpeechID  string      `json:"speech_id"`
	TSMs      int64       `json:"ts_ms"`
}

type SpeechEnded struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	SpeechID  string      `json:"speech_id"`
	TSMs      int64       `json:"ts_ms"`
}

type AssistantTextDelta struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	SpeechID  string      `json:"speech_id,omitempty"`
	TextDelta string      `json:"text_delta"`
}

type AssistantAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	ClipID      string      `json:"clip_id"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type AssistantTurnEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	SpeechID  string      `json:"speech_id,omitempty"`
	Text      string      `json:"text"`
	Reason    string      `json:"reason"`
}

// ToolCall relays an assistant-proposed editor action to the client, along
// with the policy gate's verdict.
type ToolCall struct {
	Type             MessageType `json:"type"`
	SessionID        string      `json:"session_id"`
	Name             string      `json:"name"`
	ArgumentsJSON    string      `json:"arguments_json"`
	Risk             string      `json:"risk"`
	RequiresApproval bool        `json:"requires_approval"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
