package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/bridge-signaling/config"
	"github.com/mossy-p/bridge-signaling/internal/handlers"
	"github.com/mossy-p/bridge-signaling/internal/logging"
	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/orchestrator"
	"github.com/mossy-p/bridge-signaling/internal/rooms"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// newServer starts a rendezvous server whose store already holds ROOM42
// with a host and one guest.
func newServer(t *testing.T) string {
	t.Helper()
	store := rooms.NewMemory()
	ctx := t.Context()
	_, err := store.Ensure(ctx, "ROOM42", 1)
	require.NoError(t, err)
	require.NoError(t, store.SetHost(ctx, "ROOM42", "host_1", models.ClientTypeHost))
	require.NoError(t, store.AddPeer(ctx, "ROOM42", "host_1"))
	require.NoError(t, store.AddPeer(ctx, "ROOM42", "mobile_1"))

	router, _ := handlers.NewRouter(&config.Config{JWTSecret: "cli", MaxGuests: 1}, store, logging.Discard())
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func deadServer(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ts.Close()
	return url
}

func clearSignalEnv(t *testing.T) {
	for _, key := range []string{
		"SIGNAL_SERVER_URL", "SIGNAL_ROOM_ID", "SIGNAL_AUTH_KEY", "SIGNAL_CLIENT_TYPE",
		"SIGNAL_AUTO_ROOM", "SIGNAL_REQUIRE_AUTH", "SIGNAL_TEARDOWN_ON_HOST_DISCONNECT",
		"SIGNAL_MAX_RECONNECTS", "SIGNAL_BACKOFF_BASE", "SIGNAL_REGISTRATION_TIMEOUT",
		"SIGNAL_COUNT_INITIAL_ATTEMPT",
	} {
		t.Setenv(key, "")
	}
}

func TestRoomsCommand(t *testing.T) {
	clearSignalEnv(t)
	server := newServer(t)

	out, err := execute(t, "rooms", "--server", server)
	require.NoError(t, err)
	assert.Contains(t, out, "ROOM42  Host: host | Guests: 1")
}

func TestRoomsCommandJSONWithUnavailableServer(t *testing.T) {
	clearSignalEnv(t)
	server := newServer(t)
	dead := deadServer(t)

	out, err := execute(t, "rooms", "--json", "--server", server, "--server", dead)
	require.NoError(t, err)

	var results []serverRooms
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, server, results[0].Server)
	require.Len(t, results[0].Rooms, 1)
	assert.Equal(t, "ROOM42", results[0].Rooms[0].RoomID)
	assert.Empty(t, results[0].Error)
	assert.NotEmpty(t, results[1].Error)
	assert.Empty(t, results[1].Rooms)
}

func TestInviteCommand(t *testing.T) {
	clearSignalEnv(t)

	out, err := execute(t, "invite", "abc234", "--server", "wss://signal.example/ws")
	require.NoError(t, err)
	var inv models.RoomInvite
	require.NoError(t, json.Unmarshal([]byte(out), &inv))
	assert.Equal(t, "ABC234", inv.RoomID)
	assert.Equal(t, "wss://signal.example/ws", inv.ServerURL)
	_, err = time.Parse(time.RFC3339, inv.Timestamp)
	assert.NoError(t, err)

	out, err = execute(t, "invite")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &inv))
	assert.Len(t, inv.RoomID, 6)

	out, err = execute(t, "invite", "--parse", "abc234")
	require.NoError(t, err)
	assert.Equal(t, "room: ABC234\n", out)

	_, err = execute(t, "invite", "--parse", "not a code")
	assert.Error(t, err)
}

func TestInviteCheck(t *testing.T) {
	clearSignalEnv(t)
	server := newServer(t)

	payload := `{"roomId":"ROOM42","serverUrl":"` + server + `"}`
	out, err := execute(t, "invite", "--parse", "--check", payload)
	require.NoError(t, err)
	assert.Contains(t, out, "status: open (host: host, guests: 1)")

	out, err = execute(t, "invite", "--parse", "--check", "--server", server, "ZZZ999")
	require.NoError(t, err)
	assert.Contains(t, out, "status: not found")
}

func TestConnectOnce(t *testing.T) {
	clearSignalEnv(t)
	server := newServer(t)

	_, err := execute(t, "connect", "--server", server, "--room", "FRESH2", "--type", "mobile", "--fingerprint", "cli-test", "--once")
	assert.NoError(t, err)
}

func TestConnectGivesUp(t *testing.T) {
	clearSignalEnv(t)
	dead := deadServer(t)

	_, err := execute(t, "connect", "--server", dead, "--room", "FRESH2", "--fingerprint", "cli-test", "--max-reconnects", "0")
	assert.ErrorIs(t, err, orchestrator.ErrRetryExhausted)
}

func TestConnectRejectsInvalidSettings(t *testing.T) {
	clearSignalEnv(t)

	_, err := execute(t, "connect", "--server", "http://localhost:8080", "--room", "ROOM42")
	assert.ErrorIs(t, err, config.ErrInvalidConnection)

	_, err = execute(t, "connect", "--room", "ROOM42", "--type", "toaster")
	assert.ErrorIs(t, err, config.ErrInvalidConnection)
}

func TestConnectScreenNeedsPeerAndStdin(t *testing.T) {
	clearSignalEnv(t)

	_, err := execute(t, "connect", "--room", "ROOM42", "--screen", "1080x1920")
	assert.ErrorContains(t, err, "--screen needs --peer and --stdin")

	_, err = execute(t, "connect", "--room", "ROOM42", "--peer", "--stdin", "--screen", "wide")
	assert.ErrorContains(t, err, "invalid --screen")
}

func TestParseScreen(t *testing.T) {
	w, h, err := parseScreen("1080x1920")
	require.NoError(t, err)
	assert.Equal(t, 1080.0, w)
	assert.Equal(t, 1920.0, h)

	w, h, err = parseScreen("800X600")
	require.NoError(t, err)
	assert.Equal(t, 800.0, w)
	assert.Equal(t, 600.0, h)

	for _, bad := range []string{"", "1080", "0x10", "10x-1", "axb"} {
		_, _, err := parseScreen(bad)
		assert.Error(t, err, bad)
	}
}
