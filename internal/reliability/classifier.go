package reliability

import (
	"strings"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsBenignRealtimeError reports whether a backend error frame is an expected
// side effect of normal operation (e.g. cancelling a response that already
// finished) rather than something to surface to the user.
func IsBenignRealtimeError(code, message string) bool {
	switch strings.TrimSpace(code) {
	case "response_cancel_not_active", "input_audio_buffer_commit_empty":
		return true
	}
	msg := strings.ToLower(message)
	return strings.Contains(msg, "response interrupted") ||
		strings.Contains(msg, "cancellation failed: no active response")
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
