package app

import (
	"errors"

	"ptw/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// English comment:
// - Fail-fast is intentional: silently falling back to weaker crypto in production is unacceptable.
// - Enforcement is end-to-end by validating the same module that performs hashing (security/token).
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// English comment:
	// - Minimum 32 bytes recommended for HMAC-SHA256 secret.
	// - We measure bytes (not runes) because the key is used as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: PTW_REQUIRE_TOKEN_HMAC=true but PTW_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: PTW_REQUIRE_TOKEN_HMAC=true but PTW_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	// Guards against future changes reintroducing a SHA fallback under policy.
	if !token.HMACEnabled() {
		return errors.New("security policy: PTW_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	return nil
}
