// Package parse extracts structured tool invocations from free-form model
// output. Models rarely honor a single response shape, so extraction runs an
// ordered cascade of strategies and stops at the first that matches; the
// final strategy always succeeds by routing the raw text to the speak tool.
package parse

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/mgriva/voxbridge/internal/tools"
)

// ToolCall is one structured invocation. Arguments is always a syntactically
// valid JSON object in canonical form.
type ToolCall struct {
	Name      string
	Arguments string
}

// ModelResponse is the finished, non-streaming model output handed to the
// parser. Either field may be empty.
type ModelResponse struct {
	Text      string
	ToolCalls []ToolCall
}

type strategy func(text string, available []string) ([]ToolCall, bool)

var strategies = []strategy{
	parseHeadingBlocks,
	parseToolParametersObject,
	parseLoneKeyObject,
	parseSingleAvailableTool,
	parseFencedNameBlocks,
	parseToolArray,
	parseEscapedToolArray,
}

// ExtractToolCalls produces the ordered tool invocations for a response.
// Structured tool calls pass through (with their argument bodies
// canonicalized); otherwise the strategy cascade runs over the text. Pure
// function of its inputs, safe to call concurrently.
func ExtractToolCalls(resp ModelResponse, available []string) []ToolCall {
	if len(resp.ToolCalls) > 0 {
		out := make([]ToolCall, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			args := tc.Arguments
			if canon, ok := canonicalJSON(args); ok {
				args = canon
			} else if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			out = append(out, ToolCall{Name: tc.Name, Arguments: args})
		}
		return out
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil
	}
	for _, try := range strategies {
		if calls, ok := try(text, available); ok && len(calls) > 0 {
			return calls
		}
	}
	return []ToolCall{speakCall(text)}
}

func speakCall(text string) ToolCall {
	args, _ := json.Marshal(map[string]string{"text": text})
	return ToolCall{Name: tools.SpeakToolName, Arguments: string(args)}
}

var (
	headingRe = regexp.MustCompile(`(?m)^###[ \t]*(.+?)[ \t]*$`)
	fencedRe  = regexp.MustCompile("(?s)```(?:json)?[ \t]*\n?(.*?)```")
	// Header-derived names keep identifier characters only. The upstream
	// behavior stripped backslashes alone, which let markdown emphasis and
	// punctuation leak into tool names.
	toolNameCleanRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// Strategy 1: repeated "### <tool>" headers, each optionally followed by a
// fenced JSON block holding the arguments. A missing block means no
// arguments.
func parseHeadingBlocks(text string, _ []string) ([]ToolCall, bool) {
	headers := headingRe.FindAllStringSubmatchIndex(text, -1)
	if len(headers) == 0 {
		return nil, false
	}

	var calls []ToolCall
	for i, h := range headers {
		name := sanitizeToolName(text[h[2]:h[3]])
		if name == "" {
			return nil, false
		}
		segEnd := len(text)
		if i+1 < len(headers) {
			segEnd = headers[i+1][0]
		}
		segment := text[h[1]:segEnd]

		args := "{}"
		if m := fencedRe.FindStringSubmatch(segment); m != nil {
			canon, ok := canonicalObject(m[1])
			if !ok {
				return nil, false
			}
			args = canon
		}
		calls = append(calls, ToolCall{Name: name, Arguments: args})
	}
	return calls, true
}

// Strategy 2: a single JSON object shaped {"tool": ..., "parameters": ...}.
func parseToolParametersObject(text string, _ []string) ([]ToolCall, bool) {
	obj, ok := decodeObject(unfence(text))
	if !ok {
		return nil, false
	}
	return toolCallFromNamedObject(obj)
}

// Strategy 3: a single JSON object whose lone top-level key is a known tool
// name; the value is the argument object.
func parseLoneKeyObject(text string, available []string) ([]ToolCall, bool) {
	obj, ok := decodeObject(unfence(text))
	if !ok || len(obj) != 1 {
		return nil, false
	}
	for key, val := range obj {
		if !containsName(available, key) {
			return nil, false
		}
		canon, ok := canonicalObject(string(val))
		if !ok {
			return nil, false
		}
		return []ToolCall{{Name: key, Arguments: canon}}, true
	}
	return nil, false
}

// Strategy 4: exactly one tool is available, so any JSON object body is
// unambiguously that tool's arguments.
func parseSingleAvailableTool(text string, available []string) ([]ToolCall, bool) {
	if len(available) != 1 {
		return nil, false
	}
	canon, ok := canonicalObject(unfence(text))
	if !ok {
		return nil, false
	}
	return []ToolCall{{Name: available[0], Arguments: canon}}, true
}

// Strategy 5: one or more fenced json blocks, each holding an object shaped
// {"name": ..., "parameters": ...} or {"tool": ..., "parameters": ...}. A
// block matching neither shape fails the whole strategy rather than being
// skipped: partial extraction would silently drop calls.
func parseFencedNameBlocks(text string, _ []string) ([]ToolCall, bool) {
	blocks := fencedRe.FindAllStringSubmatch(text, -1)
	if len(blocks) == 0 {
		return nil, false
	}
	var calls []ToolCall
	for _, m := range blocks {
		obj, ok := decodeObject(m[1])
		if !ok {
			return nil, false
		}
		call, ok := toolCallFromNamedObject(obj)
		if !ok {
			return nil, false
		}
		calls = append(calls, call...)
	}
	return calls, true
}

// Strategy 6: a raw JSON array of single-key objects, each key a tool name.
// The bracket check is a cheap prefilter before the structural parse.
func parseToolArray(text string, available []string) ([]ToolCall, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "[") || !strings.Contains(trimmed, `{"`) {
		return nil, false
	}
	return toolCallsFromArray(trimmed, available)
}

// Strategy 7: the whole answer looks like an escaped, possibly fenced JSON
// array (a model quoting its own output). Unescape the common sequences and
// retry the array parse.
func parseEscapedToolArray(text string, available []string) ([]ToolCall, bool) {
	unescaped := strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\\`, `\`).Replace(text)
	trimmed := strings.TrimSpace(unfence(unescaped))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	return toolCallsFromArray(trimmed, available)
}

func toolCallsFromArray(raw string, available []string) ([]ToolCall, bool) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil || len(items) == 0 {
		return nil, false
	}
	var calls []ToolCall
	for _, item := range items {
		if len(item) != 1 {
			return nil, false
		}
		for key, val := range item {
			name := sanitizeToolName(key)
			if name == "" {
				return nil, false
			}
			if len(available) > 0 && !containsName(available, name) {
				return nil, false
			}
			canon, ok := canonicalObject(string(val))
			if !ok {
				return nil, false
			}
			calls = append(calls, ToolCall{Name: name, Arguments: canon})
		}
	}
	return calls, true
}

func toolCallFromNamedObject(obj map[string]json.RawMessage) ([]ToolCall, bool) {
	var rawName json.RawMessage
	if v, ok := obj["tool"]; ok {
		rawName = v
	} else if v, ok := obj["name"]; ok {
		rawName = v
	} else {
		return nil, false
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil {
		return nil, false
	}
	name = sanitizeToolName(name)
	if name == "" {
		return nil, false
	}

	args := "{}"
	if v, ok := obj["parameters"]; ok {
		canon, ok := canonicalObject(string(v))
		if !ok {
			return nil, false
		}
		args = canon
	}
	return []ToolCall{{Name: name, Arguments: args}}, true
}

// unfence strips a markdown code fence only when it wraps the entire text;
// partial fences are left alone so multi-block strategies see them.
func unfence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return trimmed
	}
	if loc := fencedRe.FindStringSubmatchIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
		return strings.TrimSpace(trimmed[loc[2]:loc[3]])
	}
	return trimmed
}

func sanitizeToolName(raw string) string {
	return toolNameCleanRe.ReplaceAllString(strings.TrimSpace(raw), "")
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// decodeObject parses text as a single JSON object with no trailing content.
func decodeObject(text string) (map[string]json.RawMessage, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return obj, true
}

// canonicalObject re-serializes a JSON object body to canonical form. Bodies
// that are not objects ("null", arrays, scalars) are rejected; an empty body
// defaults to the empty object.
func canonicalObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return "{}", true
	}
	if !strings.HasPrefix(raw, "{") {
		return "", false
	}
	return canonicalJSON(raw)
}

// canonicalJSON decodes any JSON element and re-encodes it compactly, with
// object keys sorted. Numbers round-trip verbatim via json.Number.
func canonicalJSON(raw string) (string, bool) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	if dec.More() {
		return "", false
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", false
	}
	return strings.TrimSpace(buf.String()), true
}
