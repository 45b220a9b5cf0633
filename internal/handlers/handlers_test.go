package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/bridge-signaling/config"
	"github.com/mossy-p/bridge-signaling/internal/auth"
	"github.com/mossy-p/bridge-signaling/internal/codec"
	"github.com/mossy-p/bridge-signaling/internal/logging"
	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/rooms"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
		MaxGuests: 1,
	}
}

type testServer struct {
	*httptest.Server
	store *rooms.Memory
	hub   *Hub
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store := rooms.NewMemory()
	router, hub := NewRouter(cfg, store, logging.Discard())
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: store, hub: hub}
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg models.Message) {
	t.Helper()
	data, err := codec.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func read(t *testing.T, conn *websocket.Conn) models.Message {
	t.Helper()
	msg, err := codec.Decode(readRaw(t, conn))
	require.NoError(t, err)
	return msg
}

// join registers and consumes the registered and joined-room replies.
func join(t *testing.T, ts *testServer, peerID, clientType, roomID string) *websocket.Conn {
	t.Helper()
	conn := dial(t, ts)
	send(t, conn, models.Register{PeerID: peerID, ClientType: clientType, RoomID: roomID})
	require.Equal(t, models.Registered{}, read(t, conn))
	require.Equal(t, models.JoinedRoom{RoomID: roomID, PeerID: peerID, Role: clientType}, read(t, conn))
	return conn
}

func TestRegisterAndJoin(t *testing.T) {
	ts := newTestServer(t, nil)

	host := join(t, ts, "host_1", models.ClientTypeHost, "ROOM42")
	mobile := join(t, ts, "mobile_1", models.ClientTypeMobile, "ROOM42")

	assert.Equal(t, models.PeerJoined{PeerID: "host_1", Role: models.ClientTypeHost}, read(t, mobile))
	assert.Equal(t, models.PeerJoined{PeerID: "mobile_1", Role: models.ClientTypeMobile}, read(t, host))

	assert.ElementsMatch(t, []string{"host_1", "mobile_1"}, ts.hub.Members("ROOM42"))

	meta, err := ts.store.Get(t.Context(), "ROOM42")
	require.NoError(t, err)
	assert.Equal(t, "host_1", meta.HostPeer)
	assert.Equal(t, models.ClientTypeHost, meta.HostType)
}

func TestRelayIsVerbatim(t *testing.T) {
	ts := newTestServer(t, nil)

	host := join(t, ts, "host_1", models.ClientTypeHost, "ROOM42")
	mobile := join(t, ts, "mobile_1", models.ClientTypeMobile, "ROOM42")
	read(t, mobile)
	read(t, host)

	touch := `{"type":"touch","touchId":3,"phase":"Moved","positionX":0.125,"positionY":0.75}`
	require.NoError(t, mobile.WriteMessage(websocket.TextMessage, []byte(touch)))
	assert.Equal(t, touch, string(readRaw(t, host)))

	haptic := `{"type":"haptic","commandType":"Short","duration":0,"intensity":1}`
	require.NoError(t, host.WriteMessage(websocket.TextMessage, []byte(haptic)))
	assert.Equal(t, haptic, string(readRaw(t, mobile)))

	offer := `{"type":"offer","sdp":"v=0"}`
	require.NoError(t, host.WriteMessage(websocket.TextMessage, []byte(offer)))
	assert.Equal(t, offer, string(readRaw(t, mobile)))
}

func TestHostLeaveNotifiesGuests(t *testing.T) {
	ts := newTestServer(t, nil)

	host := join(t, ts, "host_1", models.ClientTypeHost, "ROOM42")
	mobile := join(t, ts, "mobile_1", models.ClientTypeMobile, "ROOM42")
	read(t, mobile)
	read(t, host)

	require.NoError(t, host.Close())
	assert.Equal(t, models.HostDisconnected{}, read(t, mobile))

	assert.Eventually(t, func() bool {
		meta, err := ts.store.Get(t.Context(), "ROOM42")
		return err == nil && meta.HostPeer == ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmptyRoomIsRemoved(t *testing.T) {
	ts := newTestServer(t, nil)

	mobile := join(t, ts, "mobile_1", models.ClientTypeMobile, "ROOM42")
	require.NoError(t, mobile.Close())

	assert.Eventually(t, func() bool {
		_, err := ts.store.Get(t.Context(), "ROOM42")
		return err == rooms.ErrNotFound
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, ts.hub.Members("ROOM42"))
}

func TestRegisterRejections(t *testing.T) {
	ts := newTestServer(t, nil)

	join(t, ts, "host_1", models.ClientTypeHost, "ROOM42")
	join(t, ts, "mobile_1", models.ClientTypeMobile, "ROOM42")

	tests := []struct {
		name string
		reg  models.Register
		want models.Error
	}{
		{
			name: "room full",
			reg:  models.Register{PeerID: "mobile_2", ClientType: models.ClientTypeMobile, RoomID: "ROOM42"},
			want: models.Error{Error: "room is full", Context: "register"},
		},
		{
			name: "second host",
			reg:  models.Register{PeerID: "host_2", ClientType: models.ClientTypeHost, RoomID: "ROOM42"},
			want: models.Error{Error: "room already has a host", Context: "register"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, ts)
			send(t, conn, tt.reg)
			assert.Equal(t, tt.want, read(t, conn))
		})
	}
}

func TestReconnectReplacesStaleConnection(t *testing.T) {
	ts := newTestServer(t, nil)

	stale := join(t, ts, "mobile_1", models.ClientTypeMobile, "ROOM42")
	join(t, ts, "mobile_1", models.ClientTypeMobile, "ROOM42")

	stale.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := stale.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, []string{"mobile_1"}, ts.hub.Members("ROOM42"))
}

func TestProtocolErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"touch","touchId":1,"phase":"Began","positionX":0,"positionY":0}`)))
	assert.Equal(t, models.Error{Error: "not registered", Context: "touch"}, read(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, models.Error{Error: "malformed message", Context: "parse"}, read(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, models.Error{Error: "unknown message type", Context: "ping"}, read(t, conn))

	send(t, conn, models.Register{PeerID: "mobile_1", ClientType: models.ClientTypeMobile})
	msg := read(t, conn)
	require.IsType(t, models.Error{}, msg)
	assert.Equal(t, "register", msg.(models.Error).Context)

	send(t, conn, models.Register{PeerID: "mobile_1", ClientType: models.ClientTypeMobile, RoomID: "ROOM42"})
	read(t, conn)
	read(t, conn)
	send(t, conn, models.Register{PeerID: "mobile_1", ClientType: models.ClientTypeMobile, RoomID: "ROOM42"})
	assert.Equal(t, models.Error{Error: "already registered", Context: "register"}, read(t, conn))

	send(t, conn, models.Registered{})
	assert.Equal(t, models.Error{Error: "unexpected message", Context: "registered"}, read(t, conn))
}

func postAuth(t *testing.T, ts *testServer, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/auth", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.AuthKey = "letmein" })

	resp := postAuth(t, ts, models.AuthRequest{PeerID: "mobile_1", ClientType: "mobile", AuthKey: "letmein"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out models.AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	claims, err := auth.ParseToken(testSecret, out.Token)
	require.NoError(t, err)
	assert.Equal(t, "mobile_1", claims.PeerID)
	assert.Equal(t, "mobile", claims.ClientType)
	assert.Greater(t, out.ExpiresAt, time.Now().UnixMilli())

	resp = postAuth(t, ts, models.AuthRequest{PeerID: "mobile_1", ClientType: "mobile", AuthKey: "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postAuth(t, ts, map[string]string{"peerId": "mobile_1", "clientType": "toaster", "authKey": "letmein"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginDisabledWithoutKey(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := postAuth(t, ts, models.AuthRequest{PeerID: "mobile_1", ClientType: "mobile", AuthKey: "anything"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterRequiresToken(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.AuthKey = "letmein" })

	conn := dial(t, ts)
	send(t, conn, models.Register{PeerID: "mobile_1", ClientType: "mobile", RoomID: "ROOM42"})
	assert.Equal(t, models.Error{Error: "invalid token", Context: "register"}, read(t, conn))

	other, _, err := auth.IssueToken(testSecret, "mobile_2", "mobile", time.Hour, time.Now())
	require.NoError(t, err)
	send(t, conn, models.Register{PeerID: "mobile_1", ClientType: "mobile", RoomID: "ROOM42", Token: other})
	assert.Equal(t, models.Error{Error: "invalid token", Context: "register"}, read(t, conn))

	token, _, err := auth.IssueToken(testSecret, "mobile_1", "mobile", time.Hour, time.Now())
	require.NoError(t, err)
	send(t, conn, models.Register{PeerID: "mobile_1", ClientType: "mobile", RoomID: "ROOM42", Token: token})
	assert.Equal(t, models.Registered{}, read(t, conn))
}
