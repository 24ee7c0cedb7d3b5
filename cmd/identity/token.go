package identity

import (
	"ptw/cmd/security/token"
)

// Reset-token hardening:
//
// English comment:
// - identity delegates reset-token hashing to cmd/security/token as the single source of truth.
// - Output is always a 64-char hex string.
//
// Recommendation (prod):
// - Set PTW_TOKEN_HMAC_KEY to a long random secret (>= 32 bytes).

// NewResetToken returns a cryptographically random password-reset token (hex).
// It is e-mailed to the account holder exactly once and never stored;
// the server stores only a hash (see HashResetTokenHex).
func NewResetToken() (string, error) {
	return token.GenerateHex(32)
}

// HashResetTokenHex returns the server-stored hash for reset tokens.
// It uses HMAC-SHA256 if PTW_TOKEN_HMAC_KEY is set; otherwise falls back to SHA-256.
func HashResetTokenHex(tokenStr string) string { return token.HashResetTokenHex(tokenStr) }
