package policy

import (
	"regexp"
	"strings"
)

// ToolCallDecision is the gate verdict for one assistant-proposed tool call.
type ToolCallDecision struct {
	Risk             string
	RequiresApproval bool
	Blocked          bool
	Reason           string
}

var (
	blockedArgPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\brm\s+-rf\s+/(?:\s|$)`),
		regexp.MustCompile(`(?i)(?:id_rsa|id_ed25519|\.env|auth\.json)`),
		regexp.MustCompile(`(?i)\b(exfiltrate|dump credentials|leak secrets?)\b`),
	}
	highRiskTools = []string{
		"delete_file", "remove_file", "run_command", "execute", "shell",
		"git_push", "git_merge", "deploy", "drop_table", "migrate",
	}
	mediumRiskTools = []string{
		"write_file", "edit_file", "create_file", "rename", "move_file",
		"run_tests", "format", "apply_patch",
	}
)

// DecideToolCall classifies a tool call before it is dispatched to the
// editor. Speak and read-only tools pass through; mutating tools require
// approval and destructive argument shapes are blocked outright.
func DecideToolCall(name, argumentsJSON string) ToolCallDecision {
	tool := strings.ToLower(strings.TrimSpace(name))
	args := strings.ToLower(argumentsJSON)

	for _, re := range blockedArgPatterns {
		if re.MatchString(args) {
			return ToolCallDecision{
				Risk:             "blocked",
				RequiresApproval: true,
				Blocked:          true,
				Reason:           "Arguments appear to include destructive or secret-exfiltration behavior.",
			}
		}
	}

	for _, t := range highRiskTools {
		if tool == t {
			return ToolCallDecision{
				Risk:             "high",
				RequiresApproval: true,
			}
		}
	}

	for _, t := range mediumRiskTools {
		if tool == t {
			return ToolCallDecision{
				Risk:             "medium",
				RequiresApproval: true,
			}
		}
	}

	return ToolCallDecision{Risk: "low"}
}
