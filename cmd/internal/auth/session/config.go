package session

import (
	"os"
	"strings"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls the server-session sliding TTL, JWT lifetimes, clock skew
// tolerance, and the HS256 signing secret.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of issued tokens.
	Issuer string

	// SessionTTL is the server session's sliding lifetime. Every handled
	// request slides the window forward.
	SessionTTL time.Duration

	// AccessTokenTTL defines the lifetime of JWT access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL defines the lifetime of JWT refresh tokens.
	RefreshTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// Secret is the HS256 signing key for both access and refresh tokens.
	Secret []byte
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:          "ptw",
		SessionTTL:      2 * time.Hour,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ClockSkew:       30 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - PTW_JWT_SECRET (>= 32 bytes)
//
// Optional (durations must be valid Go duration strings):
//   - PTW_AUTH_ISSUER
//   - PTW_AUTH_SESSION_TTL
//   - PTW_AUTH_ACCESS_TTL
//   - PTW_AUTH_REFRESH_TTL
//   - PTW_AUTH_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("PTW_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("PTW_AUTH_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.SessionTTL = d
	}

	if v := os.Getenv("PTW_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("PTW_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("PTW_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	secret := strings.TrimSpace(os.Getenv("PTW_JWT_SECRET"))
	if len(secret) < 32 {
		return Config{}, ErrConfig
	}
	cfg.Secret = []byte(secret)

	// Invariants: the access token must outlive neither credential.
	if cfg.AccessTokenTTL > cfg.RefreshTokenTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
