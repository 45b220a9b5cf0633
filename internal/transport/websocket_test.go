package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// collect polls until an event of kind shows up and returns everything seen.
func collect(t *testing.T, w *WebSocket, kind EventKind) []Event {
	t.Helper()
	var seen []Event
	require.Eventually(t, func() bool {
		seen = append(seen, w.Poll()...)
		for _, ev := range seen {
			if ev.Kind == kind {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
	return seen
}

func TestWebSocketEcho(t *testing.T) {
	ts := echoServer(t)
	w := NewWebSocket(WebSocketOptions{})

	require.NoError(t, w.Connect(wsURL(ts)))
	assert.ErrorIs(t, w.Connect(wsURL(ts)), ErrBusy)

	collect(t, w, EventOpened)
	assert.Equal(t, StateOpen, w.State())

	require.NoError(t, w.Send([]byte(`{"type":"ping"}`)))
	events := collect(t, w, EventMessage)
	var got string
	for _, ev := range events {
		if ev.Kind == EventMessage {
			got = string(ev.Data)
		}
	}
	assert.Equal(t, `{"type":"ping"}`, got)

	require.NoError(t, w.Close())
	collect(t, w, EventClosed)
	assert.Equal(t, StateClosed, w.State())
	assert.NoError(t, w.Close(), "close is idempotent")
}

func TestWebSocketRemoteClose(t *testing.T) {
	ts := echoServer(t)
	w := NewWebSocket(WebSocketOptions{})
	require.NoError(t, w.Connect(wsURL(ts)))
	collect(t, w, EventOpened)

	require.NoError(t, w.Send([]byte("bye")))
	events := collect(t, w, EventClosed)
	last := events[len(events)-1]
	assert.Equal(t, EventClosed, last.Kind)
	assert.Equal(t, websocket.CloseGoingAway, last.Code)
	assert.ErrorIs(t, w.Send([]byte("x")), ErrNotOpen)
}

func TestWebSocketDialFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	w := NewWebSocket(WebSocketOptions{HandshakeTimeout: time.Second})
	require.NoError(t, w.Connect(wsURL(ts)))

	events := collect(t, w, EventClosed)
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].Kind)
	assert.Error(t, events[0].Err)
	assert.Equal(t, StateClosed, w.State())
}

// silentServer accepts the upgrade, sends the given number of pings and then
// goes quiet without closing the socket.
func silentServer(t *testing.T, pings int, every time.Duration) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	done := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < pings; i++ {
			time.Sleep(every)
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
		<-done
	}))
	t.Cleanup(func() {
		close(done)
		ts.Close()
	})
	return ts
}

func TestWebSocketReadTimeout(t *testing.T) {
	ts := silentServer(t, 0, 0)
	w := NewWebSocket(WebSocketOptions{ReadTimeout: 100 * time.Millisecond})
	require.NoError(t, w.Connect(wsURL(ts)))

	events := collect(t, w, EventClosed)
	assert.Equal(t, EventOpened, events[0].Kind)
	assert.Equal(t, EventError, events[1].Kind)
	assert.Error(t, events[1].Err)
	assert.Equal(t, StateClosed, w.State())
}

func TestWebSocketPingsKeepConnectionAlive(t *testing.T) {
	ts := silentServer(t, 8, 40*time.Millisecond)
	w := NewWebSocket(WebSocketOptions{ReadTimeout: 150 * time.Millisecond})
	require.NoError(t, w.Connect(wsURL(ts)))
	collect(t, w, EventOpened)

	// Pings arrive well inside the read timeout for 320ms.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, StateOpen, w.State())
	for _, ev := range w.Poll() {
		assert.NotEqual(t, EventClosed, ev.Kind)
	}

	// Once they stop, the deadline expires.
	collect(t, w, EventClosed)
	assert.Equal(t, StateClosed, w.State())
}

func TestWebSocketRejectsAddress(t *testing.T) {
	w := NewWebSocket(WebSocketOptions{})
	for _, raw := range []string{"http://example.com", "ws://", "::nope"} {
		assert.ErrorIs(t, w.Connect(raw), ErrInvalidURL, raw)
	}
	assert.Equal(t, StateClosed, w.State())
}

func TestWebSocketCloseWhileConnecting(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	w := NewWebSocket(WebSocketOptions{})
	require.NoError(t, w.Connect(wsURL(ts)))
	assert.Equal(t, StateConnecting, w.State())
	require.NoError(t, w.Close())

	events := w.Poll()
	require.Len(t, events, 1)
	assert.Equal(t, EventClosed, events[0].Kind)
	assert.Equal(t, StateClosed, w.State())

	// The cancelled dial must not resurrect the transport.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, w.Poll())
	assert.Equal(t, StateClosed, w.State())
}
