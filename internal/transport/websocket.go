package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	// Servers ping every 54s; a silent minute means the peer is gone.
	defaultReadTimeout = 60 * time.Second
	closeGrace         = time.Second
)

// WebSocketOptions tunes the gorilla client.
type WebSocketOptions struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout bounds the silence between inbound frames, pings
	// included, before the connection is treated as dead.
	ReadTimeout time.Duration
	Header      http.Header
}

// WebSocket is a Transport over github.com/gorilla/websocket. It runs one
// goroutine for the dial and one read loop per open connection.
type WebSocket struct {
	opts   WebSocketOptions
	dialer *websocket.Dialer

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	gen    uint64
	cancel context.CancelFunc
	events []Event

	writeMu sync.Mutex
}

func NewWebSocket(opts WebSocketOptions) *WebSocket {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	return &WebSocket{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
	}
}

// WebSocketFactory returns a Factory producing WebSocket transports.
func WebSocketFactory(opts WebSocketOptions) Factory {
	return func() Transport { return NewWebSocket(opts) }
}

func (w *WebSocket) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *WebSocket) Poll() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := w.events
	w.events = nil
	return events
}

func (w *WebSocket) push(ev Event) {
	w.events = append(w.events, ev)
}

func (w *WebSocket) Connect(rawURL string) error {
	if _, err := ValidateURL(rawURL); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateClosed {
		return ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.gen++
	w.cancel = cancel
	w.state = StateConnecting
	go w.dial(ctx, w.gen, rawURL)
	return nil
}

func (w *WebSocket) dial(ctx context.Context, gen uint64, rawURL string) {
	conn, resp, err := w.dialer.DialContext(ctx, rawURL, w.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.gen {
		// Closed while dialing.
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		w.state = StateClosed
		w.cancel = nil
		w.push(Event{Kind: EventError, Err: err})
		w.push(Event{Kind: EventClosed, Err: err})
		return
	}

	w.conn = conn
	w.state = StateOpen
	w.push(Event{Kind: EventOpened})
	go w.readLoop(gen, conn)
}

func (w *WebSocket) readLoop(gen uint64, conn *websocket.Conn) {
	w.extendRead(gen, conn)
	conn.SetPingHandler(func(appData string) error {
		w.extendRead(gen, conn)
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(w.opts.WriteTimeout))
		var ne net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &ne) && ne.Timeout()) {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		w.extendRead(gen, conn)
		return nil
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			if gen == w.gen {
				code := 0
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					code = ce.Code
				}
				expected := w.state == StateClosing
				w.state = StateClosed
				w.conn = nil
				w.cancel = nil
				if !expected && code == 0 {
					w.push(Event{Kind: EventError, Err: err})
				}
				w.push(Event{Kind: EventClosed, Code: code, Err: err})
			}
			w.mu.Unlock()
			conn.Close()
			return
		}
		w.extendRead(gen, conn)
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		w.mu.Lock()
		if gen == w.gen {
			w.push(Event{Kind: EventMessage, Data: data})
		}
		w.mu.Unlock()
	}
}

// extendRead pushes the read deadline out while the connection is open. A
// closing connection keeps the short deadline Close set.
func (w *WebSocket) extendRead(gen uint64, conn *websocket.Conn) {
	w.mu.Lock()
	live := gen == w.gen && w.state == StateOpen
	w.mu.Unlock()
	if live {
		conn.SetReadDeadline(time.Now().Add(w.opts.ReadTimeout))
	}
}

func (w *WebSocket) Send(data []byte) error {
	w.mu.Lock()
	conn := w.conn
	open := w.state == StateOpen
	w.mu.Unlock()
	if !open || conn == nil {
		return ErrNotOpen
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	switch w.state {
	case StateClosed, StateClosing:
		w.mu.Unlock()
		return nil

	case StateConnecting:
		w.gen++
		if w.cancel != nil {
			w.cancel()
			w.cancel = nil
		}
		w.state = StateClosed
		w.push(Event{Kind: EventClosed, Code: websocket.CloseNormalClosure})
		w.mu.Unlock()
		return nil
	}

	w.state = StateClosing
	conn := w.conn
	w.mu.Unlock()

	w.writeMu.Lock()
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	w.writeMu.Unlock()

	// The read loop observes the close and moves to StateClosed.
	conn.SetReadDeadline(time.Now().Add(closeGrace))
	if err != nil {
		conn.Close()
	}
	return nil
}
