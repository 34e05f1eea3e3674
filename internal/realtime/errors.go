package realtime

import "errors"

var (
	// ErrConnectionFailure is returned when the transport cannot establish
	// a connection within its attempt budget. The owner decides whether to
	// restart the whole session.
	ErrConnectionFailure = errors.New("realtime: connection failure")

	// ErrCorrelationAbandoned resolves pending response futures when the
	// connection is lost before the backend answered.
	ErrCorrelationAbandoned = errors.New("realtime: response abandoned on reconnect")

	// ErrSessionDisposed is returned by operations on a shut-down session.
	ErrSessionDisposed = errors.New("realtime: session disposed")
)
