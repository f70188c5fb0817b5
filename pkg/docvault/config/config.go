package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	devJWTSecret    = "docvault-dev-secret-change-in-production"
	minSecretLength = 32
)

// Config holds process configuration loaded from the environment
type Config struct {
	Env             string
	Port            string
	BaseURL         string
	DBPath          string
	JWTSecret       string
	TokenTTL        time.Duration
	ShareLinkTTL    time.Duration
	ShareLinkMaxTTL time.Duration
	UploadDir       string
	MaxUploadBytes  int64
	ShareRatePerSec float64
	ShareRateBurst  int
	LogLevel        string
	UsingDevSecret  bool
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Env:       get("DOCVAULT_ENV", EnvDevelopment),
		Port:      get("PORT", "8080"),
		DBPath:    get("DOCVAULT_DB_PATH", "docvault.db"),
		JWTSecret: get("DOCVAULT_JWT_SECRET", ""),
		UploadDir: get("DOCVAULT_UPLOAD_DIR", "uploads"),
		LogLevel:  get("LOG_LEVEL", "info"),
	}
	cfg.BaseURL = get("DOCVAULT_BASE_URL", "http://localhost:"+cfg.Port)

	var err error
	if cfg.TokenTTL, err = parseDuration("DOCVAULT_TOKEN_TTL", get("DOCVAULT_TOKEN_TTL", "24h")); err != nil {
		return nil, err
	}
	if cfg.ShareLinkTTL, err = parseDuration("DOCVAULT_SHARE_LINK_TTL", get("DOCVAULT_SHARE_LINK_TTL", "24h")); err != nil {
		return nil, err
	}
	if cfg.ShareLinkMaxTTL, err = parseDuration("DOCVAULT_SHARE_LINK_MAX_TTL", get("DOCVAULT_SHARE_LINK_MAX_TTL", "720h")); err != nil {
		return nil, err
	}

	maxUploadMB, err := strconv.ParseInt(get("DOCVAULT_MAX_UPLOAD_MB", "100"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("config: DOCVAULT_MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB << 20

	if cfg.ShareRatePerSec, err = strconv.ParseFloat(get("DOCVAULT_SHARE_RATE", "5"), 64); err != nil {
		return nil, fmt.Errorf("config: DOCVAULT_SHARE_RATE: %w", err)
	}
	if cfg.ShareRateBurst, err = strconv.Atoi(get("DOCVAULT_SHARE_BURST", "10")); err != nil {
		return nil, fmt.Errorf("config: DOCVAULT_SHARE_BURST: %w", err)
	}

	if cfg.JWTSecret == "" && cfg.Env != EnvProduction {
		cfg.JWTSecret = devJWTSecret
		cfg.UsingDevSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("config: unknown DOCVAULT_ENV %q", c.Env)
	}
	if c.JWTSecret == "" {
		return errors.New("config: DOCVAULT_JWT_SECRET is required")
	}
	if c.Env == EnvProduction && len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("config: DOCVAULT_JWT_SECRET must be at least %d bytes in production", minSecretLength)
	}
	if c.TokenTTL <= 0 || c.ShareLinkTTL <= 0 || c.ShareLinkMaxTTL <= 0 {
		return errors.New("config: durations must be positive")
	}
	if c.ShareLinkTTL > c.ShareLinkMaxTTL {
		return errors.New("config: DOCVAULT_SHARE_LINK_TTL exceeds DOCVAULT_SHARE_LINK_MAX_TTL")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("config: DOCVAULT_MAX_UPLOAD_MB must be positive")
	}
	if c.ShareRatePerSec <= 0 || c.ShareRateBurst <= 0 {
		return errors.New("config: share rate limit must be positive")
	}
	return nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
