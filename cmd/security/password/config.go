package password

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt reads at most 72 bytes of input; longer passwords would be
// silently truncated, so the policy refuses them outright.
const bcryptMaxInputBytes = 72

// Policy controls password validation.
type Policy struct {
	MinLength int
	MaxLength int
	// Required character classes.
	RequireLower  bool
	RequireUpper  bool
	RequireDigit  bool
	RequireSymbol bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Cost   int
	Policy Policy
}

// DefaultConfig returns the baseline used for interactive logins.
// Values can be overridden via env.
func DefaultConfig() Config {
	return Config{
		Cost: 12,
		Policy: Policy{
			MinLength:     8,
			MaxLength:     bcryptMaxInputBytes,
			RequireLower:  true,
			RequireUpper:  true,
			RequireDigit:  true,
			RequireSymbol: true,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - PTW_PASSWORD_MIN_LEN
// - PTW_PASSWORD_MAX_LEN
// - PTW_PASSWORD_REQUIRE_CLASSES (true/false; toggles all four class checks)
// - PTW_BCRYPT_COST
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("PTW_PASSWORD_MIN_LEN"); ok {
		n, err := atoiPositiveInt(v, 1, bcryptMaxInputBytes)
		if err != nil {
			return Config{}, fmt.Errorf("PTW_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}

	if v, ok := os.LookupEnv("PTW_PASSWORD_MAX_LEN"); ok {
		n, err := atoiPositiveInt(v, 1, bcryptMaxInputBytes)
		if err != nil {
			return Config{}, fmt.Errorf("PTW_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}

	if v, ok := os.LookupEnv("PTW_PASSWORD_REQUIRE_CLASSES"); ok {
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("PTW_PASSWORD_REQUIRE_CLASSES: %w", err)
		}
		cfg.Policy.RequireLower = b
		cfg.Policy.RequireUpper = b
		cfg.Policy.RequireDigit = b
		cfg.Policy.RequireSymbol = b
	}

	if v, ok := os.LookupEnv("PTW_BCRYPT_COST"); ok {
		n, err := atoiPositiveInt(v, bcrypt.MinCost, bcrypt.MaxCost)
		if err != nil {
			return Config{}, fmt.Errorf("PTW_BCRYPT_COST: %w", err)
		}
		cfg.Cost = n
	}

	// Final sanity.
	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func atoiPositiveInt(s string, minVal, maxVal int) (int, error) {
	s = strings.TrimSpace(s)
	i64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes", "on", "ON", "On":
		return true, nil
	case "0", "false", "FALSE", "False", "no", "NO", "No", "off", "OFF", "Off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean")
	}
}
