package config

import (
	"os"
	"strconv"
	"time"
)

// ServerConfig holds settings for the TCP server runtime.
type ServerConfig struct {
	ListenAddr    string
	Database      DatabaseConfig
	Mongo         MongoConfig
	Media         MediaConfig
	JWT           JWTConfig
	Sweep         SweepConfig
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxFrameBytes int
}

// ClientConfig holds settings for the terminal client.
type ClientConfig struct {
	ServerAddr string
}

// DatabaseConfig captures SQLite storage configuration.
type DatabaseConfig struct {
	Path string
}

// MongoConfig captures the document-store connection. An empty URI selects
// the SQLite backend instead.
type MongoConfig struct {
	URI      string
	Database string
}

// MediaConfig captures the media store location.
type MediaConfig struct {
	Dir     string
	BaseURL string
}

// JWTConfig defines token issuance parameters.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

// SweepConfig drives the ephemeral-content expiry sweepers.
type SweepConfig struct {
	StatusInterval time.Duration
	PostInterval   time.Duration
	BootDelay      time.Duration
	BatchLimit     int
}

// LoadServerConfig builds the server configuration from environment variables with sensible defaults.
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: envOrDefault("TRAKLINE_LISTEN_ADDR", ":9000"),
		Database:   DatabaseConfig{Path: envOrDefault("TRAKLINE_DB_PATH", "trakline.db")},
		Mongo: MongoConfig{
			URI:      envOrDefault("TRAKLINE_MONGO_URI", ""),
			Database: envOrDefault("TRAKLINE_MONGO_DB", "trakline"),
		},
		Media: MediaConfig{
			Dir:     envOrDefault("TRAKLINE_MEDIA_DIR", "media"),
			BaseURL: envOrDefault("TRAKLINE_MEDIA_BASE_URL", "/media"),
		},
		JWT: loadJWTConfig(),
		Sweep: SweepConfig{
			StatusInterval: envDuration("TRAKLINE_STATUS_SWEEP_INTERVAL", time.Hour),
			PostInterval:   envDuration("TRAKLINE_POST_SWEEP_INTERVAL", 6*time.Hour),
			BootDelay:      envDuration("TRAKLINE_SWEEP_BOOT_DELAY", 30*time.Second),
			BatchLimit:     envInt("TRAKLINE_SWEEP_BATCH_LIMIT", 100),
		},
		// Connections idle between user actions are normal; reads have no
		// deadline unless one is configured.
		ReadTimeout:   envDuration("TRAKLINE_READ_TIMEOUT", 0),
		WriteTimeout:  envDuration("TRAKLINE_WRITE_TIMEOUT", 15*time.Second),
		MaxFrameBytes: envInt("TRAKLINE_MAX_FRAME_BYTES", 1<<20),
	}
}

// LoadClientConfig builds the client configuration from environment variables.
func LoadClientConfig() ClientConfig {
	return ClientConfig{
		ServerAddr: envOrDefault("TRAKLINE_SERVER_ADDR", "localhost:9000"),
	}
}

func loadJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:     envOrDefault("TRAKLINE_JWT_SECRET", "replace-me"),
		Issuer:     envOrDefault("TRAKLINE_JWT_ISSUER", "trakline"),
		Expiration: envDuration("TRAKLINE_JWT_EXPIRATION", 24*time.Hour),
	}
}

func envOrDefault(key, value string) string {
	if env, ok := os.LookupEnv(key); ok {
		return env
	}
	return value
}

func envDuration(key string, def time.Duration) time.Duration {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(env); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(key string, def int) int {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(env); err == nil {
			return parsed
		}
	}
	return def
}
