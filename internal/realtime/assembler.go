package realtime

import (
	"bytes"
	"encoding/base64"
	"strings"
)

// toolCallAssembler accumulates function-call argument deltas until the done
// event. Mutated only from the read loop.
type toolCallAssembler struct {
	callID string
	name   string
	args   strings.Builder
}

func newToolCallAssembler(callID string) *toolCallAssembler {
	return &toolCallAssembler{callID: callID}
}

func (a *toolCallAssembler) appendDelta(name, delta string) {
	if name != "" {
		a.name = name
	}
	a.args.WriteString(delta)
}

// finalize returns the assembled name and argument text, preferring the
// complete arguments from the done event over the accumulated deltas.
func (a *toolCallAssembler) finalize(name, arguments string) (string, string) {
	if name != "" {
		a.name = name
	}
	args := strings.TrimSpace(arguments)
	if args == "" {
		args = strings.TrimSpace(a.args.String())
	}
	if args == "" {
		args = "{}"
	}
	return a.name, args
}

// audioClipAssembler reconstructs synthesized audio from base64 deltas.
type audioClipAssembler struct {
	id  string
	buf bytes.Buffer
}

func newAudioClipAssembler(id string) *audioClipAssembler {
	return &audioClipAssembler{id: id}
}

func (a *audioClipAssembler) appendBase64(b64 string) error {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	a.buf.Write(raw)
	return nil
}

func (a *audioClipAssembler) finalize() []byte {
	out := make([]byte, a.buf.Len())
	copy(out, a.buf.Bytes())
	return out
}
