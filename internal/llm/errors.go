package llm

import "fmt"

// ErrorKind classifies backend failures so callers can decide whether to
// retry, fail over, or surface the error.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"
	KindTimeout     ErrorKind = "timeout"
	KindUnknown     ErrorKind = "unknown"
)

// BackendError wraps a backend failure with its classification and, for
// HTTP backends, the status code that produced it.
type BackendError struct {
	Kind   ErrorKind
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm backend %s (status %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("llm backend %s: %s", e.Kind, e.Detail)
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status == 408 || status == 504:
		return KindTimeout
	case status >= 500:
		return KindUnavailable
	default:
		return KindUnknown
	}
}
