// Package identity implements PTW's account and credential foundation.
//
// It contains the canonical Account model (role, status, session binding,
// refresh-token lineage, reset-token pair), security primitives (ULID,
// password hashing, reset-token hashing), and the store interface used by
// the session coordinator and HTTP layer.
//
// This package is intentionally dependency-light and security-first.
package identity
