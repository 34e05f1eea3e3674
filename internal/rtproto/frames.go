package rtproto

import "encoding/json"

// FrameType discriminates outbound frames sent to the realtime backend.
type FrameType string

const (
	TypeSessionUpdate  FrameType = "session.update"
	TypeItemCreate     FrameType = "conversation.item.create"
	TypeResponseCreate FrameType = "response.create"
	TypeAudioAppend    FrameType = "input_audio_buffer.append"
	TypeAudioCommit    FrameType = "input_audio_buffer.commit"
)

// TurnDetection configures server-side turn handling. A nil value in the
// session descriptor means the client drives commits itself.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

// ToolSpec describes one callable tool in the session descriptor.
type ToolSpec struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// SessionDescriptor is the desired remote session configuration. The
// reconciler compares serialized descriptors, so field order and omitempty
// behavior must stay deterministic.
type SessionDescriptor struct {
	Model             string         `json:"model,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	Modalities        []string       `json:"modalities,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat string         `json:"output_audio_format,omitempty"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
	Tools             []ToolSpec     `json:"tools,omitempty"`
}

type sessionUpdateFrame struct {
	Type    FrameType         `json:"type"`
	Session SessionDescriptor `json:"session"`
}

type audioAppendFrame struct {
	Type  FrameType `json:"type"`
	Audio string    `json:"audio"`
}

type controlFrame struct {
	Type FrameType `json:"type"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemCreateFrame struct {
	Type FrameType        `json:"type"`
	Item conversationItem `json:"item"`
}

// SessionUpdate builds the frame that pushes a new session descriptor.
func SessionUpdate(desc SessionDescriptor) any {
	return sessionUpdateFrame{Type: TypeSessionUpdate, Session: desc}
}

// AudioAppend builds an audio frame carrying base64-encoded PCM.
func AudioAppend(audioBase64 string) any {
	return audioAppendFrame{Type: TypeAudioAppend, Audio: audioBase64}
}

// AudioCommit builds the end-of-utterance buffer flush.
func AudioCommit() any {
	return controlFrame{Type: TypeAudioCommit}
}

// ResponseCreate asks the backend to answer the committed input.
func ResponseCreate() any {
	return controlFrame{Type: TypeResponseCreate}
}

// UserTextItem builds a text conversation item for the non-audio path.
func UserTextItem(text string) any {
	return itemCreateFrame{
		Type: TypeItemCreate,
		Item: conversationItem{
			Type:    "message",
			Role:    "user",
			Content: []itemContent{{Type: "input_text", Text: text}},
		},
	}
}
