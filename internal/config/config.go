// Package config reads the server settings from the environment.
//
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/clinic-links/internal/backend"
	"github.com/sakif/clinic-links/internal/model"
)

// Config holds every setting the server needs.
type Config struct {
	Port    int
	Backend string // local | hosted | hybrid

	// local backend
	DataDir     string
	StorePrefix string

	// hosted and hybrid backends
	DatabaseURL       string
	DatabaseAuthToken string

	// hosted backend
	IdentityURL          string
	IdentityClientID     string
	IdentityClientSecret string

	JWTSecret    string
	SessionTTL   time.Duration
	CookieSecure bool

	TemplateDir  string
	StaticDir    string
	DefaultsFile string

	LogLevel slog.Level
}

// Load reads .env (if any) and the environment. It returns an error for
// values that do not parse; call Validate for cross-field checks.
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env is normal in production

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("config: PORT: %w", err)
	}

	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "12h"))
	if err != nil {
		return nil, fmt.Errorf("config: SESSION_TTL: %w", err)
	}

	secure, err := strconv.ParseBool(getEnv("COOKIE_SECURE", "false"))
	if err != nil {
		return nil, fmt.Errorf("config: COOKIE_SECURE: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	return &Config{
		Port:                 port,
		Backend:              strings.ToLower(getEnv("BACKEND", backend.NameLocal)),
		DataDir:              getEnv("DATA_DIR", "data"),
		StorePrefix:          getEnv("STORE_PREFIX", "440_"),
		DatabaseURL:          getEnv("DATABASE_URL", "file:data/site.db"),
		DatabaseAuthToken:    getEnv("DATABASE_AUTH_TOKEN", ""),
		IdentityURL:          getEnv("IDENTITY_URL", ""),
		IdentityClientID:     getEnv("IDENTITY_CLIENT_ID", ""),
		IdentityClientSecret: getEnv("IDENTITY_CLIENT_SECRET", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		SessionTTL:           ttl,
		CookieSecure:         secure,
		TemplateDir:          getEnv("TEMPLATE_DIR", "web/templates"),
		StaticDir:            getEnv("STATIC_DIR", "web/static"),
		DefaultsFile:         getEnv("DEFAULTS_FILE", ""),
		LogLevel:             level,
	}, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	case len(c.JWTSecret) < 16:
		return errors.New("config: JWT_SECRET must be set to at least 16 characters")
	case c.SessionTTL <= 0:
		return errors.New("config: SESSION_TTL must be positive")
	}

	switch c.Backend {
	case backend.NameLocal:
		if c.DataDir == "" {
			return errors.New("config: DATA_DIR is required for the local backend")
		}
	case backend.NameHybrid:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the hybrid backend")
		}
	case backend.NameHosted:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the hosted backend")
		}
		if c.IdentityURL == "" || c.IdentityClientID == "" {
			return errors.New("config: IDENTITY_URL and IDENTITY_CLIENT_ID are required for the hosted backend")
		}
	default:
		return fmt.Errorf("config: BACKEND %q is not one of local, hosted, hybrid", c.Backend)
	}
	return nil
}

// DatabaseDSN returns DatabaseURL with the auth token attached the way
// the libsql driver expects it.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseAuthToken == "" || strings.Contains(c.DatabaseURL, "authToken=") {
		return c.DatabaseURL
	}
	sep := "?"
	if strings.Contains(c.DatabaseURL, "?") {
		sep = "&"
	}
	return c.DatabaseURL + sep + "authToken=" + c.DatabaseAuthToken
}

// Defaults returns the content shown when nothing is stored, with the
// DEFAULTS_FILE override applied when one is configured.
func (c *Config) Defaults() (model.Records, error) {
	if c.DefaultsFile == "" {
		return model.Defaults(), nil
	}
	data, err := os.ReadFile(c.DefaultsFile)
	if err != nil {
		return model.Records{}, fmt.Errorf("config: reading DEFAULTS_FILE: %w", err)
	}
	return model.DefaultsWithOverride(data)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
