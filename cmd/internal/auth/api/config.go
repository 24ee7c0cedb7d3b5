package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Config controls the HTTP surface: cookie names and scoping, proxy trust
// and request-body limits. Cookie security attributes derive from Env.
type Config struct {
	// Env is "dev" or "prod". Dev uses SameSite=Lax cookies over plain
	// HTTP; prod uses SameSite=None + Secure (the SPA runs on another
	// origin in production).
	Env string

	SessionCookieName string
	RefreshCookieName string

	// RefreshCookiePath scopes the refresh cookie so it only travels to
	// the API routes, never to static assets.
	RefreshCookiePath string

	CookieDomain string

	// TrustProxy enables X-Forwarded-For / X-Real-IP for client IPs.
	TrustProxy bool

	MaxBodyBytes int64
}

// DefaultConfig returns dev-safe defaults.
func DefaultConfig() Config {
	return Config{
		Env:               "dev",
		SessionCookieName: "sessionId",
		RefreshCookieName: "refreshToken",
		RefreshCookiePath: "/api",
		MaxBodyBytes:      1 << 20,
	}
}

// LoadConfigFromEnv builds a Config from PTW_* variables, falling back to
// DefaultConfig for anything unset.
//
// Recognized:
//   - PTW_ENV ("dev" | "prod")
//   - PTW_COOKIE_DOMAIN
//   - PTW_TRUST_PROXY (bool)
//   - PTW_HTTP_MAX_BODY_BYTES (int64)
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("PTW_ENV")); v != "" {
		cfg.Env = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("PTW_COOKIE_DOMAIN")); v != "" {
		cfg.CookieDomain = v
	}
	cfg.TrustProxy = envBool("PTW_TRUST_PROXY", cfg.TrustProxy)
	if v := strings.TrimSpace(os.Getenv("PTW_HTTP_MAX_BODY_BYTES")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxBodyBytes = n
		}
	}
	return cfg
}

// Prod reports whether cookies need cross-site attributes.
func (c Config) Prod() bool { return c.Env == "prod" }

func (c Config) cookieSecure() bool { return c.Prod() }

func (c Config) cookieSameSite() http.SameSite {
	if c.Prod() {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
