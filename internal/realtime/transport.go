package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mgriva/voxbridge/internal/reliability"
)

const (
	defaultConnectAttempts = 3
	defaultConnectTimeout  = 10 * time.Second
	connectBackoffBase     = 250 * time.Millisecond
	connectBackoffCap      = 2 * time.Second
)

// Transport establishes the physical stream to the realtime backend. It owns
// retry policy for a single connect cycle; everything after the handshake
// belongs to the session.
type Transport struct {
	dialer   Dialer
	url      string
	header   http.Header
	attempts int
	timeout  time.Duration
}

func NewTransport(dialer Dialer, url string, header http.Header, attempts int, timeout time.Duration) *Transport {
	if attempts <= 0 {
		attempts = defaultConnectAttempts
	}
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	return &Transport{
		dialer:   dialer,
		url:      url,
		header:   header,
		attempts: attempts,
		timeout:  timeout,
	}
}

// Connect dials with a bounded per-attempt timeout until one attempt
// succeeds or the budget is exhausted, backing off between attempts. On
// exhaustion the error wraps ErrConnectionFailure; this layer does not retry
// further.
func (t *Transport) Connect(ctx context.Context) (Conn, error) {
	var lastErr error
	for attempt := 0; attempt < t.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, t.timeout)
		conn, err := t.dialer.Dial(attemptCtx, t.url, t.header)
		cancel()
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if attempt < t.attempts-1 {
			backoff := reliability.ExponentialBackoff(attempt, connectBackoffBase, connectBackoffCap)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("%w: %d attempts exhausted: %v", ErrConnectionFailure, t.attempts, lastErr)
}
