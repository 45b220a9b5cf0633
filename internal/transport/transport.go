// Package transport is the socket capability a signaling session drives.
//
// A Transport never calls back into its owner. Background I/O enqueues
// events that the owner drains with Poll from its own update loop.
package transport

import (
	"errors"
	"fmt"
	"net/url"
)

type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type EventKind int

const (
	EventOpened EventKind = iota
	EventMessage
	EventError
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one queued transport occurrence. Data is set for EventMessage,
// Err for EventError and possibly EventClosed, Code for EventClosed when the
// peer sent a close frame.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
	Code int
}

// Transport is a message-oriented duplex socket.
type Transport interface {
	// Connect starts an asynchronous open. Completion is reported through
	// an EventOpened or an EventError followed by EventClosed.
	Connect(rawURL string) error
	Send(data []byte) error
	// Close requests a close. It is a no-op when already closed or closing.
	Close() error
	State() State
	// Poll returns and clears the queued events.
	Poll() []Event
}

// Factory creates a fresh transport for each connection attempt.
type Factory func() Transport

var (
	ErrInvalidURL = errors.New("transport: invalid url")
	ErrBusy       = errors.New("transport: not closed")
	ErrNotOpen    = errors.New("transport: not open")
)

// ValidateURL accepts only ws and wss addresses with a host.
func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}
