package configs

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Agent    AgentConfig
	Database DatabaseConfig
	Realtime RealtimeConfig
}

// ServerConfig holds the client-facing server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// AgentConfig holds the EA bridge listener configuration
type AgentConfig struct {
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RealtimeConfig holds tunables for the realtime core
type RealtimeConfig struct {
	PresenceTTL  time.Duration
	ActionExpiry time.Duration
	RateMax      int
	RateWindow   time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		Agent: AgentConfig{
			Port: getEnv("AGENT_PORT", "8090"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Realtime: RealtimeConfig{
			PresenceTTL:  getDuration("PRESENCE_TTL", 90*time.Second),
			ActionExpiry: getDuration("ACTION_EXPIRY", 2*time.Minute),
			RateMax:      getInt("RATE_LIMIT_MAX", 5),
			RateWindow:   getDuration("RATE_LIMIT_WINDOW", 10*time.Second),
		},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
