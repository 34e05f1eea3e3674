package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// CLIClient executes a local completion CLI and extracts a textual reply.
type CLIClient struct {
	binaryPath string
}

func NewCLIClient(binaryPath string) *CLIClient {
	return &CLIClient{binaryPath: strings.TrimSpace(binaryPath)}
}

func (c *CLIClient) StreamCompletion(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	args := []string{
		"complete",
		"--json",
		"--no-color",
	}
	if sessionID := strings.TrimSpace(req.SessionID); sessionID != "" {
		args = append(args, "--session-id", sessionID)
	}
	args = append(args, "--message", buildPrompt(req))

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// exec.CommandContext may surface "signal: killed" instead of
			// context cancellation.
			return Response{}, ctx.Err()
		}
		errText := strings.TrimSpace(stderr.String())
		if errText == "" {
			errText = strings.TrimSpace(stdout.String())
		}
		if errText != "" {
			return Response{}, fmt.Errorf("llm cli failed: %w: %s", err, errText)
		}
		return Response{}, fmt.Errorf("llm cli failed: %w", err)
	}

	text := parseCLIReply(stdout.String())
	if text == "" {
		text = strings.TrimSpace(stdout.String())
	}
	if text != "" && onDelta != nil {
		if err := onDelta(text); err != nil {
			return Response{}, err
		}
	}

	return Response{Text: text}, nil
}

func buildPrompt(req Request) string {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return ""
	}

	hasInstructions := strings.TrimSpace(req.Instructions) != ""
	hasContext := len(req.Context) > 0
	if !hasInstructions && !hasContext {
		return input
	}

	var b strings.Builder
	if hasInstructions {
		b.WriteString(strings.TrimSpace(req.Instructions))
		b.WriteString("\n")
	}
	if hasContext {
		b.WriteString("Relevant conversation context:\n")
		for _, line := range req.Context {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("User message:\n")
	b.WriteString(input)
	return b.String()
}

func parseCLIReply(raw string) string {
	obj, ok := parseJSONObject(raw)
	if !ok {
		return ""
	}
	return pickStringField(obj, "text", "output", "message")
}

func pickStringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			if s, ok := v.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func parseJSONObject(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj, true
	}

	// Many CLIs emit logs before JSON. Parse from the last JSON-looking block.
	start := strings.LastIndex(raw, "\n{")
	if start >= 0 {
		start++
		if err := json.Unmarshal([]byte(raw[start:]), &obj); err == nil {
			return obj, true
		}
	}

	brace := strings.LastIndex(raw, "{")
	if brace >= 0 {
		if err := json.Unmarshal([]byte(raw[brace:]), &obj); err == nil {
			return obj, true
		}
	}

	return nil, false
}
