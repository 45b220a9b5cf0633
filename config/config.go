package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the rendezvous server configuration.
type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	// AuthKey is the shared key clients present to POST /auth. Empty
	// disables the endpoint.
	AuthKey   string
	TokenTTL  time.Duration
	RoomStore string // "redis" or "memory"
	MaxGuests int
	LogLevel  string
	LogFormat string
	Redis     RedisConfig
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	RoomTTL  time.Duration
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := strings.Split(originsStr, ",")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		AuthKey:        getEnv("AUTH_KEY", ""),
		TokenTTL:       getEnvDuration("TOKEN_TTL", time.Hour),
		RoomStore:      getEnv("ROOM_STORE", "redis"),
		MaxGuests:      getEnvInt("ROOM_MAX_GUESTS", 1),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			RoomTTL:  getEnvDuration("ROOM_TTL", 24*time.Hour),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
