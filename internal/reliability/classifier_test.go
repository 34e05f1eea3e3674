package reliability

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = true, want false", code)
		}
	}
}

func TestIsBenignRealtimeError(t *testing.T) {
	if !IsBenignRealtimeError("", "Response interrupted by new request") {
		t.Fatalf("interrupted response should be benign")
	}
	if !IsBenignRealtimeError("response_cancel_not_active", "") {
		t.Fatalf("cancel-not-active code should be benign")
	}
	if IsBenignRealtimeError("server_error", "internal failure") {
		t.Fatalf("server_error should not be benign")
	}
}

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Second
	if got := ExponentialBackoff(0, base, cap); got != base {
		t.Fatalf("attempt 0 = %s, want %s", got, base)
	}
	if got := ExponentialBackoff(2, base, cap); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %s, want 400ms", got)
	}
	if got := ExponentialBackoff(10, base, cap); got != cap {
		t.Fatalf("attempt 10 = %s, want cap %s", got, cap)
	}
}
