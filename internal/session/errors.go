package session

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is matched by every *TransportError.
	ErrTransport = errors.New("session: transport error")

	ErrNotConnected = errors.New("session: not connected")

	errCloseInFlight = errors.New("previous close still in flight")
	errSessionClosed = errors.New("session closed")
)

// TransportError reports a socket-level failure. It is retryable.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("session: %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
