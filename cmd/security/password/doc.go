// Package password provides password hashing and verification utilities for PTW.
//
// It implements bcrypt hashing and includes:
// - Configurable bcrypt cost (via environment variables)
// - Password policy validation (length bounds + required character classes)
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - bcrypt only reads the first 72 bytes of input, so MaxLength never exceeds 72.
package password
