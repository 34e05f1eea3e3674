package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient provides deterministic local replies when no backend is
// reachable. Useful for development and tests.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) StreamCompletion(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return Response{}, err
		}
	}
	return Response{Text: text}, nil
}

func buildMockReply(req Request) string {
	base := strings.TrimSpace(req.Input)
	if base == "" {
		base = "I am listening."
	}

	if len(req.Context) == 0 {
		return fmt.Sprintf("I heard you: %s", base)
	}

	last := strings.TrimSpace(req.Context[len(req.Context)-1])
	if last == "" {
		return fmt.Sprintf("I heard you: %s", base)
	}

	return fmt.Sprintf("I heard you: %s\nI also remember: %s", base, last)
}
