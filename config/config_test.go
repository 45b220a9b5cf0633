package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ROOM_TTL", "")
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.Redis.RoomTTL)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ROOM_STORE", "memory")
	t.Setenv("ROOM_MAX_GUESTS", "4")
	t.Setenv("TOKEN_TTL", "15m")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "memory", cfg.RoomStore)
	assert.Equal(t, 4, cfg.MaxGuests)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestDefaultConnectionNeedsRoom(t *testing.T) {
	c := DefaultConnection()
	assert.ErrorIs(t, c.Validate(), ErrInvalidConnection)

	c.RoomID = "ROOM42"
	assert.NoError(t, c.Validate())
}

func TestConnectionValidate(t *testing.T) {
	valid := DefaultConnection()
	valid.RoomID = "ROOM42"

	tests := []struct {
		name   string
		mutate func(*Connection)
	}{
		{"http scheme", func(c *Connection) { c.ServerURL = "http://localhost:8080" }},
		{"negative retries", func(c *Connection) { c.MaxReconnectAttempts = -1 }},
		{"no attempts at all", func(c *Connection) { c.MaxReconnectAttempts = 0; c.CountInitialAttempt = true }},
		{"zero backoff", func(c *Connection) { c.BackoffBase = 0 }},
		{"timeout not shorter than backoff", func(c *Connection) { c.RegistrationTimeout = c.BackoffBase }},
		{"zero timeout", func(c *Connection) { c.RegistrationTimeout = 0 }},
		{"auth without key", func(c *Connection) { c.RequireAuthentication = true }},
		{"bad client type", func(c *Connection) { c.ClientType = "tablet" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConnection)
		})
	}

	noRetry := valid
	noRetry.MaxReconnectAttempts = 0
	assert.NoError(t, noRetry.Validate())
}

func TestLoadConnectionEnv(t *testing.T) {
	t.Setenv("SIGNAL_SERVER_URL", "wss://signal.example.com/ws")
	t.Setenv("SIGNAL_ROOM_ID", "ABC234")
	t.Setenv("SIGNAL_REQUIRE_AUTH", "true")
	t.Setenv("SIGNAL_AUTH_KEY", "secret")
	t.Setenv("SIGNAL_MAX_RECONNECTS", "5")
	t.Setenv("SIGNAL_BACKOFF_BASE", "2s")

	c, err := LoadConnection()
	require.NoError(t, err)
	assert.Equal(t, "wss://signal.example.com/ws", c.ServerURL)
	assert.Equal(t, "ABC234", c.RoomID)
	assert.True(t, c.RequireAuthentication)
	assert.Equal(t, 5, c.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, c.BackoffBase)
	assert.NoError(t, c.Validate())
}

func TestRetries(t *testing.T) {
	c := DefaultConnection()
	assert.Equal(t, 3, c.Retries())

	t.Setenv("SIGNAL_COUNT_INITIAL_ATTEMPT", "true")
	c, err := LoadConnection()
	require.NoError(t, err)
	assert.True(t, c.CountInitialAttempt)
	assert.Equal(t, 2, c.Retries())
}

func TestLoadConnectionEnvErrors(t *testing.T) {
	t.Setenv("SIGNAL_MAX_RECONNECTS", "many")
	_, err := LoadConnection()
	assert.Error(t, err)
}

func TestLoadConnectionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serverUrl: ws://10.0.0.2:8080/ws
autoGenerateRoomId: true
clientType: host
maxReconnectAttempts: 0
backoffBase: 3s
registrationTimeout: 1s
teardownOnHostDisconnect: true
capabilities:
  canVibrate: true
`), 0o600))
	t.Setenv("SIGNAL_CLIENT_TYPE", "")

	c, err := LoadConnectionFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.2:8080/ws", c.ServerURL)
	assert.True(t, c.AutoGenerateRoomID)
	assert.Equal(t, "host", c.ClientType)
	assert.Equal(t, 0, c.MaxReconnectAttempts)
	assert.Equal(t, 3*time.Second, c.BackoffBase)
	assert.Equal(t, time.Second, c.RegistrationTimeout)
	assert.True(t, c.TeardownOnHostDisconnect)
	assert.True(t, c.Capabilities.CanVibrate)
	assert.NoError(t, c.Validate())

	t.Setenv("SIGNAL_BACKOFF_BASE", "5s")
	c, err = LoadConnectionFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.BackoffBase, "environment wins over the file")
}

func TestLoadConnectionFileErrors(t *testing.T) {
	_, err := LoadConnectionFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backoffBase: [1, 2]\n"), 0o600))
	_, err = LoadConnectionFile(path)
	assert.Error(t, err)
}
