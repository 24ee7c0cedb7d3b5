// Package identity password hashing (bcrypt).
//
// This file preserves identity's public API:
//
//   - HashPassword
//   - VerifyPassword
//
// while using cmd/security/password as the single source of truth for:
//   - bcrypt cost (defaults + env overrides)
//   - password policy (defaults + env overrides)
//
// English notes:
// - identity MUST NOT silently drift from security/password configuration.
// - identity keeps a historical baseline of min length 8, but will honor stricter env policy.
package identity

import (
	"errors"

	"ptw/cmd/security/password"
)

// HashPassword returns a bcrypt hash string.
//
// Security contract:
// - Enforces a baseline min length of 8.
// - Will honor stricter password policy from env (via security/password).
func HashPassword(passwordPlain string) (string, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		// Treat invalid env as an operational error, not a weak fallback.
		return "", err
	}

	// English comment:
	// identity baseline is min 8 chars, but env may be stricter. We always take the stricter one.
	if cfg.Policy.MinLength < 8 {
		cfg.Policy.MinLength = 8
	}

	enc, err := cfg.Hash(passwordPlain)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort):
			return "", errors.New("password too short")
		case errors.Is(err, password.ErrPasswordTooLong):
			return "", errors.New("password too long")
		case errors.Is(err, password.ErrWeakPassword):
			return "", errors.New("weak password")
		default:
			return "", err
		}
	}

	return enc, nil
}

// VerifyPassword checks a password against a stored bcrypt hash.
// Malformed hashes verify as a mismatch plus an error, never a match.
func VerifyPassword(passwordPlain string, encodedHash string) (bool, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		return false, err
	}

	ok, err := cfg.Verify(encodedHash, passwordPlain)
	if err != nil {
		if errors.Is(err, password.ErrInvalidHash) {
			return false, errors.New("invalid bcrypt hash format")
		}
		return false, err
	}
	return ok, nil
}
