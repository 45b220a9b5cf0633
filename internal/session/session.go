// Package session wraps one transport with message encoding and an explicit
// observer list.
package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mossy-p/bridge-signaling/internal/codec"
	"github.com/mossy-p/bridge-signaling/internal/logging"
	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/transport"
)

// Observer receives session events. All calls happen inside Pump.
type Observer interface {
	OnConnected()
	OnMessage(msg models.Message)
	OnError(err error)
	OnDisconnected(code int, err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Connected    func()
	Message      func(models.Message)
	Error        func(error)
	Disconnected func(code int, err error)
}

func (o ObserverFuncs) OnConnected() {
	if o.Connected != nil {
		o.Connected()
	}
}

func (o ObserverFuncs) OnMessage(msg models.Message) {
	if o.Message != nil {
		o.Message(msg)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

func (o ObserverFuncs) OnDisconnected(code int, err error) {
	if o.Disconnected != nil {
		o.Disconnected(code, err)
	}
}

type subscription struct {
	obs     Observer
	removed bool
}

// Session owns exactly one transport for its whole life.
type Session struct {
	t   transport.Transport
	log *logrus.Entry

	mu        sync.Mutex
	observers []*subscription
	closed    bool
	url       string
}

func New(t transport.Transport, log logrus.FieldLogger) *Session {
	return &Session{t: t, log: logging.Component(log, "session")}
}

// State mirrors the transport; it carries no business state.
func (s *Session) State() transport.State { return s.t.State() }

// URL returns the address passed to the last successful Connect.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Connect opens the transport. A call while connecting or open is a logged
// no-op. A close still in flight, a closed session, or an address the
// transport rejects fail with *TransportError.
func (s *Session) Connect(url string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return &TransportError{Op: "connect", URL: url, Err: errSessionClosed}
	}

	switch st := s.t.State(); st {
	case transport.StateConnecting, transport.StateOpen:
		s.log.WithField("state", st).Warn("connect ignored, transport already active")
		return nil
	case transport.StateClosing:
		return &TransportError{Op: "connect", URL: url, Err: errCloseInFlight}
	}

	if err := s.t.Connect(url); err != nil {
		return &TransportError{Op: "connect", URL: url, Err: err}
	}
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	s.log.WithField("url", url).Debug("connecting")
	return nil
}

// Send encodes msg and writes it. Nothing is buffered.
func (s *Session) Send(msg models.Message) error {
	if s.t.State() != transport.StateOpen {
		return ErrNotConnected
	}
	data, err := codec.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.t.Send(data); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	s.log.WithField("type", msg.Type()).Debug("sent")
	return nil
}

// Disconnect requests a transport close. It is idempotent.
func (s *Session) Disconnect() {
	switch s.t.State() {
	case transport.StateClosed, transport.StateClosing:
		return
	}
	if err := s.t.Close(); err != nil {
		s.log.WithError(err).Warn("close failed")
	}
}

// Close detaches every observer and disconnects. Events still queued in the
// transport are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	for _, sub := range s.observers {
		sub.removed = true
	}
	s.observers = nil
	s.mu.Unlock()
	s.Disconnect()
}

// Subscribe adds o and returns a function that removes it.
func (s *Session) Subscribe(o Observer) (unsubscribe func()) {
	sub := &subscription{obs: o}
	s.mu.Lock()
	if s.closed {
		sub.removed = true
	} else {
		s.observers = append(s.observers, sub)
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		sub.removed = true
		for i, cur := range s.observers {
			if cur == sub {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				break
			}
		}
	}
}

// Observers returns the number of live subscriptions.
func (s *Session) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// Pump drains queued transport events on the caller's goroutine and returns
// how many were dispatched. Each inbound frame is decoded exactly once; a
// frame that fails to decode is delivered as a malformed models.Unknown.
func (s *Session) Pump() int {
	events := s.t.Poll()
	n := 0
	for _, ev := range events {
		if s.isClosed() {
			return n
		}
		switch ev.Kind {
		case transport.EventOpened:
			s.log.Debug("connected")
			s.each(func(o Observer) { o.OnConnected() })

		case transport.EventMessage:
			msg, err := codec.Decode(ev.Data)
			if err != nil {
				s.log.WithError(err).WithField("bytes", len(ev.Data)).Warn("malformed message")
			}
			s.each(func(o Observer) { o.OnMessage(msg) })

		case transport.EventError:
			terr := &TransportError{Op: "transport", URL: s.URL(), Err: ev.Err}
			s.log.WithError(ev.Err).Debug("transport error")
			s.each(func(o Observer) { o.OnError(terr) })

		case transport.EventClosed:
			s.log.WithField("code", ev.Code).Debug("disconnected")
			s.each(func(o Observer) { o.OnDisconnected(ev.Code, ev.Err) })
		}
		n++
	}
	return n
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// each calls fn for every observer subscribed at the time of the call that
// has not been removed by an earlier observer in the same round.
func (s *Session) each(fn func(Observer)) {
	s.mu.Lock()
	subs := append([]*subscription(nil), s.observers...)
	s.mu.Unlock()

	for _, sub := range subs {
		s.mu.Lock()
		live := !sub.removed
		s.mu.Unlock()
		if live {
			fn(sub.obs)
		}
	}
}
