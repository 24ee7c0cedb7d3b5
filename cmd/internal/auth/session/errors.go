package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the email or password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountInactive is returned when the account exists but may not log in.
	ErrAccountInactive = errors.New("account inactive")

	// ErrActiveSession is returned when a login collides with a live session
	// and force was not requested.
	ErrActiveSession = errors.New("active session exists")

	// ErrNoRefreshToken is returned when a refresh is attempted without a token.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrInvalidRefreshToken is returned when the refresh token fails verification.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrAccountNotFound is returned when a verified token's subject no longer exists.
	ErrAccountNotFound = errors.New("account not found")

	// ErrRefreshRevoked is returned when a refresh token's jti no longer matches
	// the account's stored lineage (superseded by a newer login or cleared by logout).
	ErrRefreshRevoked = errors.New("refresh token revoked")

	// ErrInvalidToken is returned when an access token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionNotFound is returned when a session id does not match a live record.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionRevoked is returned when an account's session binding no longer
	// points at a live session (taken over by a forced login or logged out).
	ErrSessionRevoked = errors.New("session revoked")

	// ErrSessionPersistence is returned when the session or account store fails
	// during login/refresh. Maps to HTTP 500.
	ErrSessionPersistence = errors.New("session persistence failed")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// CredentialError scopes an invalid-credential failure to a form field.
// Field is "email" or "password"; the API layer maps it to the constant
// user-facing message for that field.
type CredentialError struct {
	Field string
}

func (e CredentialError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidCredentials.Error(), e.Field)
}

func (e CredentialError) Unwrap() error { return ErrInvalidCredentials }

// ConflictError carries the display name shown in the takeover prompt when a
// login collides with a live session.
type ConflictError struct {
	DisplayName string
}

func (e ConflictError) Error() string {
	return ErrActiveSession.Error()
}

func (e ConflictError) Unwrap() error { return ErrActiveSession }
