package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Scheme string // Required: authentication scheme served (cookie+csrf, bearer) (default: cookie+csrf)
	Issuer string // Optional: issuer claim for bearer access tokens (default: emstore-dev)

	SigningKeyFile    string        // Optional: PKCS8 Ed25519 PEM file; ephemeral key when empty
	MasterKeyPath     string        // Optional: master key file for mailbox password encryption
	DatabaseFile      string        // Optional: path to SQLite database file (default: ./emstore.db)
	PepperFile        string        // Optional: path to file containing pepper for password hashing (default: ./pepper)
	SessionTTL        time.Duration // Optional: cookie session lifetime (default: 14 days)
	AccessTTL         time.Duration // Optional: bearer access token lifetime (default: 15m)
	RefreshTTL        time.Duration // Optional: bearer refresh token lifetime (default: 30 days)
	MaxAttachmentSize int64         // Optional: per-file attachment cap in bytes (default: 10 MiB)
	SecureCookies     bool          // Optional: mark cookies Secure (default: false)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8000)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Scheme:            getEnvOrDefault("EMSTORE_SCHEME", "cookie+csrf"),
		Issuer:            getEnvOrDefault("EMSTORE_ISSUER", "emstore-dev"),
		SigningKeyFile:    os.Getenv("EMSTORE_SIGNING_KEY_FILE"),
		MasterKeyPath:     os.Getenv("EMSTORE_MASTER_KEY_PATH"),
		DatabaseFile:      getEnvOrDefault("EMSTORE_DATABASE_FILE", "emstore.db"),
		PepperFile:        getEnvOrDefault("EMSTORE_PEPPER_FILE", "pepper"),
		SessionTTL:        getEnvDurationOrDefault("EMSTORE_SESSION_TTL", 14*24*time.Hour),
		AccessTTL:         getEnvDurationOrDefault("EMSTORE_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:        getEnvDurationOrDefault("EMSTORE_REFRESH_TTL", 30*24*time.Hour),
		MaxAttachmentSize: int64(getEnvIntOrDefault("EMSTORE_MAX_ATTACHMENT_SIZE", 10<<20)),
		SecureCookies:     getEnvBoolOrDefault("EMSTORE_SECURE_COOKIES", false),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8000),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
