package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/transport"
)

// Connection configures one client's signaling lifecycle. The orchestrator
// copies it when an attempt sequence starts.
type Connection struct {
	ServerURL                string        `yaml:"serverUrl"`
	RoomID                   string        `yaml:"roomId"`
	AutoGenerateRoomID       bool          `yaml:"autoGenerateRoomId"`
	RequireAuthentication    bool          `yaml:"requireAuthentication"`
	AuthKey                  string        `yaml:"authKey"`
	MaxReconnectAttempts     int           `yaml:"maxReconnectAttempts"`
	BackoffBase              time.Duration `yaml:"backoffBase"`
	RegistrationTimeout      time.Duration `yaml:"registrationTimeout"`
	TeardownOnHostDisconnect bool          `yaml:"teardownOnHostDisconnect"`
	// CountInitialAttempt makes MaxReconnectAttempts the total number of
	// attempts, the first one included, instead of the number of retries.
	CountInitialAttempt bool                `yaml:"countInitialAttempt"`
	ClientType          string              `yaml:"clientType"`
	Capabilities        models.Capabilities `yaml:"capabilities"`
}

// DefaultConnection returns the settings used when nothing overrides them.
func DefaultConnection() Connection {
	return Connection{
		ServerURL:            "ws://localhost:8080/ws",
		MaxReconnectAttempts: 3,
		BackoffBase:          time.Second,
		RegistrationTimeout:  750 * time.Millisecond,
		ClientType:           models.ClientTypeMobile,
	}
}

var ErrInvalidConnection = errors.New("config: invalid connection")

func (c Connection) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConnection, fmt.Sprintf(format, args...))
	}

	if _, err := transport.ValidateURL(c.ServerURL); err != nil {
		return invalid("serverUrl: %v", err)
	}
	if c.RoomID == "" && !c.AutoGenerateRoomID {
		return invalid("roomId is required unless autoGenerateRoomId is set")
	}
	if c.RequireAuthentication && c.AuthKey == "" {
		return invalid("authKey is required when requireAuthentication is set")
	}
	if c.MaxReconnectAttempts < 0 {
		return invalid("maxReconnectAttempts must be >= 0")
	}
	if c.CountInitialAttempt && c.MaxReconnectAttempts < 1 {
		return invalid("maxReconnectAttempts must be >= 1 when countInitialAttempt is set")
	}
	if c.BackoffBase <= 0 {
		return invalid("backoffBase must be positive")
	}
	if c.RegistrationTimeout <= 0 || c.RegistrationTimeout >= c.BackoffBase {
		return invalid("registrationTimeout must be positive and shorter than backoffBase")
	}
	if c.ClientType != models.ClientTypeMobile && c.ClientType != models.ClientTypeHost {
		return invalid("clientType must be %q or %q", models.ClientTypeMobile, models.ClientTypeHost)
	}
	return nil
}

// Retries is the number of retries allowed after the first failed attempt.
func (c Connection) Retries() int {
	if c.CountInitialAttempt {
		return c.MaxReconnectAttempts - 1
	}
	return c.MaxReconnectAttempts
}

// LoadConnection applies SIGNAL_* environment variables over the defaults.
func LoadConnection() (Connection, error) {
	c := DefaultConnection()
	if err := c.applyEnv(); err != nil {
		return Connection{}, err
	}
	return c, nil
}

// LoadConnectionFile reads a YAML file over the defaults and then applies
// the environment.
func LoadConnectionFile(path string) (Connection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Connection{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	c := DefaultConnection()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Connection{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.applyEnv(); err != nil {
		return Connection{}, err
	}
	return c, nil
}

func (c *Connection) applyEnv() error {
	c.ServerURL = getEnv("SIGNAL_SERVER_URL", c.ServerURL)
	c.RoomID = getEnv("SIGNAL_ROOM_ID", c.RoomID)
	c.AuthKey = getEnv("SIGNAL_AUTH_KEY", c.AuthKey)
	c.ClientType = getEnv("SIGNAL_CLIENT_TYPE", c.ClientType)

	var err error
	if c.AutoGenerateRoomID, err = envBool("SIGNAL_AUTO_ROOM", c.AutoGenerateRoomID); err != nil {
		return err
	}
	if c.RequireAuthentication, err = envBool("SIGNAL_REQUIRE_AUTH", c.RequireAuthentication); err != nil {
		return err
	}
	if c.TeardownOnHostDisconnect, err = envBool("SIGNAL_TEARDOWN_ON_HOST_DISCONNECT", c.TeardownOnHostDisconnect); err != nil {
		return err
	}
	if c.CountInitialAttempt, err = envBool("SIGNAL_COUNT_INITIAL_ATTEMPT", c.CountInitialAttempt); err != nil {
		return err
	}
	if v := os.Getenv("SIGNAL_MAX_RECONNECTS"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			return fmt.Errorf("config: SIGNAL_MAX_RECONNECTS: %w", perr)
		}
		c.MaxReconnectAttempts = n
	}
	if c.BackoffBase, err = envDuration("SIGNAL_BACKOFF_BASE", c.BackoffBase); err != nil {
		return err
	}
	if c.RegistrationTimeout, err = envDuration("SIGNAL_REGISTRATION_TIMEOUT", c.RegistrationTimeout); err != nil {
		return err
	}
	return nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
