// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr    string
	AllowedOrigin string
	LogLevel      slog.Level

	// StoreURL and StoreToken are the backing-store endpoint and privileged
	// token. Either may be empty; requests then fail with a configuration error.
	StoreURL   string
	StoreToken string
	StoreTable string

	// JWTSecret enables identity binding when non-empty.
	JWTSecret string
	// SecretKey enables AES-256-GCM sealing of stored keys when non-nil.
	SecretKey []byte
}

// HasStoreSettings returns true when both StoreURL and StoreToken are non-empty.
func (c *Config) HasStoreSettings() bool {
	return c.StoreURL != "" && c.StoreToken != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
// Store settings (SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY) are optional at
// startup. Optional variables with defaults: KEYRELAY_LISTEN_ADDR (127.0.0.1:8080),
// KEYRELAY_ALLOWED_ORIGIN, KEYRELAY_STORE_TABLE (user_api_keys), KEYRELAY_LOG_LEVEL (info).
// KEYRELAY_STORE_TABLE applies to Supabase and PostgreSQL endpoints; SQLite
// endpoints only accept the default table.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		ListenAddr:    "127.0.0.1:8080",
		AllowedOrigin: "https://k03e2io1y3fx9wvj0vr8.container-api.io",
		LogLevel:      slog.LevelInfo,
		StoreURL:      strings.TrimSpace(os.Getenv("SUPABASE_URL")),
		StoreToken:    strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_ROLE_KEY")),
		StoreTable:    "user_api_keys",
		JWTSecret:     os.Getenv("KEYRELAY_JWT_SECRET"),
	}

	if v, ok := os.LookupEnv("KEYRELAY_LISTEN_ADDR"); ok && v != "" {
		cfg.ListenAddr = v
	}

	if v, ok := os.LookupEnv("KEYRELAY_ALLOWED_ORIGIN"); ok && v != "" {
		cfg.AllowedOrigin = v
	}

	if v, ok := os.LookupEnv("KEYRELAY_STORE_TABLE"); ok && v != "" {
		cfg.StoreTable = v
	}

	if v, ok := os.LookupEnv("KEYRELAY_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("KEYRELAY_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	if v, ok := os.LookupEnv("KEYRELAY_SECRET_KEY"); ok && v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("KEYRELAY_SECRET_KEY must be hex encoded: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("KEYRELAY_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.SecretKey = key
	}

	return cfg, nil
}
