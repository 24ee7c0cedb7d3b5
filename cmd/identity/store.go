package identity

import (
	"context"
	"time"
)

// Store is the account persistence boundary.
type Store interface {
	// CreateAccount registers a new account.
	// Returns ConflictError{Field: "email"|"phone"} on uniqueness violations.
	CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error)

	GetAccount(ctx context.Context, id string) (Account, error)

	// FindByEmail looks an account up by normalized email.
	// Returns ErrNotFound when no account carries the email.
	FindByEmail(ctx context.Context, email string) (Account, error)

	// BindSession records a new session binding and shuffles
	// LastLogin -> PrevLogin. Returns the updated account.
	BindSession(ctx context.Context, in BindSessionInput) (Account, error)

	// UnbindSession clears the session-binding fields, but only when the
	// account's ActiveSessionID still equals sessionID. A later login owns
	// the binding and must not be disturbed by a stale logout. Idempotent.
	UnbindSession(ctx context.Context, accountID, sessionID string) error

	// SetRefreshTokenID records the jti of the currently valid refresh token.
	// Last writer wins; no row locking.
	SetRefreshTokenID(ctx context.Context, accountID, jti string) error

	// ClearRefreshTokenID revokes the refresh lineage. Idempotent.
	ClearRefreshTokenID(ctx context.Context, accountID string) error

	// SetResetToken stores a hashed password-reset token with its expiry,
	// replacing any previous one.
	SetResetToken(ctx context.Context, accountID, tokenHash string, expires time.Time) error

	// FindByResetTokenHash returns the account holding an unexpired reset
	// token with the given hash, or ErrNotFound.
	FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (Account, error)

	// ResetPassword sets a new password hash, clears the reset-token pair
	// and appends remark to the audit log.
	ResetPassword(ctx context.Context, accountID, passwordHash, remark string, now time.Time) error

	// UpdatePassword sets a new password hash and appends remark.
	UpdatePassword(ctx context.Context, accountID, passwordHash, remark string, now time.Time) error

	// UpdateProfile updates the mutable profile fields.
	// Returns ConflictError{Field: "phone"} when the phone is taken.
	UpdateProfile(ctx context.Context, in UpdateProfileInput) (Account, error)
}
