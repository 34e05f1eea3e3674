package llm

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Request is the normalized completion request sent to the text backend.
// It is used when the realtime channel is unavailable and a turn has to be
// answered over plain HTTP or a local CLI.
type Request struct {
	SessionID    string   `json:"session_id"`
	TurnID       string   `json:"turn_id"`
	Input        string   `json:"input"`
	Context      []string `json:"context,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// Response is the final response after streaming deltas.
type Response struct {
	Text string `json:"text"`
}

// DeltaHandler receives streaming text fragments.
type DeltaHandler func(delta string) error

// Client produces a completion for one turn.
type Client interface {
	StreamCompletion(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error)
}

// Config controls client construction.
type Config struct {
	Mode    string
	HTTPURL string
	CLIPath string
}

func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoClient(cfg), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("llm HTTP url is required for http mode")
		}
		return NewHTTPClient(cfg.HTTPURL), nil
	case "cli":
		if strings.TrimSpace(cfg.CLIPath) == "" {
			return nil, errors.New("llm CLI path is required for cli mode")
		}
		return NewCLIClient(cfg.CLIPath), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm client mode %q", cfg.Mode)
	}
}

func newAutoClient(cfg Config) Client {
	httpURL := strings.TrimSpace(cfg.HTTPURL)
	cliPath := strings.TrimSpace(cfg.CLIPath)

	var primary Client
	if httpURL != "" {
		primary = NewHTTPClient(httpURL)
	}

	var secondary Client
	if cliPath != "" {
		if _, err := exec.LookPath(cliPath); err == nil {
			secondary = NewCLIClient(cliPath)
		}
	}
	if secondary == nil {
		secondary = NewMockClient()
	}

	if primary == nil {
		return secondary
	}
	return NewFailoverClient(primary, secondary)
}
