package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// If true:
	// - /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, PTW_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and reset-token hashing must be HMAC-based.
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// ResetBaseURL is the origin used in password-reset links. Empty means
	// derive it from HTTPAddr (dev).
	ResetBaseURL string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("PTW_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("PTW_LOG_LEVEL", "info"),
		LogFormat: EnvString("PTW_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("PTW_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PTW_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("PTW_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("PTW_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("PTW_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("PTW_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("PTW_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("PTW_DB_MIN_CONNS", 0),

		RedisAddr:     EnvString("PTW_REDIS_ADDR", ""),
		RedisPassword: EnvString("PTW_REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("PTW_REDIS_DB", 0),

		ReadinessRequireDB: EnvBool("PTW_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("PTW_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvStringList("PTW_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("PTW_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("PTW_CORS_MAX_AGE_SECONDS", 600),

		ResetBaseURL: EnvString("PTW_RESET_BASE_URL", ""),
	}
}
