// Package transporttest provides an in-memory Transport driven by tests.
package transporttest

import (
	"errors"
	"sync"

	"github.com/mossy-p/bridge-signaling/internal/transport"
)

// Fake records every call and only changes state when the test says so.
// Close leaves it Closing until FinishClose unless AutoClose is set.
type Fake struct {
	mu sync.Mutex

	state    transport.State
	events   []transport.Event
	sent     [][]byte
	urls     []string
	closes   int
	sendErr  error
	connErr  error
	autoShut bool
}

func New() *Fake { return &Fake{autoShut: true} }

// SetAutoClose controls whether Close completes immediately.
func (f *Fake) SetAutoClose(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoShut = v
}

// RejectConnect makes the next Connect calls fail synchronously with err.
func (f *Fake) RejectConnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connErr = err
}

// FailSends makes Send return err.
func (f *Fake) FailSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *Fake) Connect(rawURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connErr != nil {
		return f.connErr
	}
	if _, err := transport.ValidateURL(rawURL); err != nil {
		return err
	}
	if f.state != transport.StateClosed {
		return transport.ErrBusy
	}
	f.urls = append(f.urls, rawURL)
	f.state = transport.StateConnecting
	return nil
}

func (f *Fake) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.StateOpen {
		return transport.ErrNotOpen
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	switch f.state {
	case transport.StateClosed, transport.StateClosing:
		return nil
	}
	if f.autoShut {
		f.state = transport.StateClosed
		f.events = append(f.events, transport.Event{Kind: transport.EventClosed, Code: 1000})
		return nil
	}
	f.state = transport.StateClosing
	return nil
}

func (f *Fake) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Fake) Poll() []transport.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := f.events
	f.events = nil
	return ev
}

// Open completes a pending connect.
func (f *Fake) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.StateConnecting {
		return
	}
	f.state = transport.StateOpen
	f.events = append(f.events, transport.Event{Kind: transport.EventOpened})
}

// FailOpen makes a pending connect fail the way a refused dial does.
func (f *Fake) FailOpen(err error) {
	if err == nil {
		err = errors.New("connection refused")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = transport.StateClosed
	f.events = append(f.events,
		transport.Event{Kind: transport.EventError, Err: err},
		transport.Event{Kind: transport.EventClosed, Err: err})
}

// Deliver queues an inbound frame.
func (f *Fake) Deliver(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, transport.Event{Kind: transport.EventMessage, Data: []byte(data)})
}

// Drop simulates the remote end closing the connection.
func (f *Fake) Drop(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = transport.StateClosed
	f.events = append(f.events, transport.Event{Kind: transport.EventClosed, Code: code})
}

// FinishClose completes a close started while AutoClose was off.
func (f *Fake) FinishClose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.StateClosing {
		return
	}
	f.state = transport.StateClosed
	f.events = append(f.events, transport.Event{Kind: transport.EventClosed, Code: 1000})
}

// Sent returns copies of every frame written so far.
func (f *Fake) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, b := range f.sent {
		out[i] = string(b)
	}
	return out
}

func (f *Fake) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func (f *Fake) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Pool hands out a fresh Fake per Factory call and keeps them for inspection.
type Pool struct {
	mu    sync.Mutex
	fakes []*Fake
	setup func(*Fake)
}

// NewPool returns a pool; setup, if non-nil, runs on every new Fake.
func NewPool(setup func(*Fake)) *Pool {
	return &Pool{setup: setup}
}

func (p *Pool) Factory() transport.Factory {
	return func() transport.Transport {
		f := New()
		if p.setup != nil {
			p.setup(f)
		}
		p.mu.Lock()
		p.fakes = append(p.fakes, f)
		p.mu.Unlock()
		return f
	}
}

// Len is the number of transports created so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fakes)
}

// Last returns the most recently created transport, or nil.
func (p *Pool) Last() *Fake {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.fakes) == 0 {
		return nil
	}
	return p.fakes[len(p.fakes)-1]
}

func (p *Pool) At(i int) *Fake {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fakes[i]
}
