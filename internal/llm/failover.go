package llm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// FailoverClient attempts a primary client first and falls back on error.
// Auth failures latch: once the primary rejects credentials it is skipped
// for the rest of the process lifetime instead of failing every turn.
type FailoverClient struct {
	primary  Client
	fallback Client

	primaryDown atomic.Bool
}

func NewFailoverClient(primary, fallback Client) *FailoverClient {
	return &FailoverClient{
		primary:  primary,
		fallback: fallback,
	}
}

func (c *FailoverClient) StreamCompletion(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	if c.primary == nil || c.primaryDown.Load() {
		if c.fallback == nil {
			return Response{}, fmt.Errorf("failover client misconfigured")
		}
		return c.fallback.StreamCompletion(ctx, req, onDelta)
	}

	resp, err := c.primary.StreamCompletion(ctx, req, onDelta)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Response{}, err
	}

	var be *BackendError
	if errors.As(err, &be) && be.Kind == KindAuth {
		c.primaryDown.Store(true)
	}

	if c.fallback == nil {
		return Response{}, err
	}
	fallbackResp, fallbackErr := c.fallback.StreamCompletion(ctx, req, onDelta)
	if fallbackErr != nil {
		return Response{}, fmt.Errorf("primary client error: %w; fallback client error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}
