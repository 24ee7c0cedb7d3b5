package session

import (
	"context"
	"time"

	"ptw/cmd/identity"
)

// Record is the server-side session state keyed by the opaque session id.
// It is deliberately small: the authoritative account state lives in the
// credential store, and the record only proves "this id is a live session
// of this user".
type Record struct {
	UserID    string        `json:"user_id"`
	Role      identity.Role `json:"role"`
	CreatedAt time.Time     `json:"created_at"`

	// ExpiresAt is derived from the store's TTL on read; it is not part of
	// the persisted value.
	ExpiresAt time.Time `json:"-"`
}

// Store abstracts persistence for server sessions.
//
// Implementations expire records by TTL; an expired record is
// indistinguishable from a destroyed one (both yield ErrSessionNotFound).
type Store interface {
	// Create stores a new session record with the given TTL.
	Create(ctx context.Context, sessionID string, rec Record, ttl time.Duration) error

	// Get loads a live session record. Returns ErrSessionNotFound when the
	// id is unknown or the record has expired.
	Get(ctx context.Context, sessionID string) (Record, error)

	// Touch slides the session's expiry window forward by ttl.
	// Returns ErrSessionNotFound when the record is gone.
	Touch(ctx context.Context, sessionID string, ttl time.Duration) error

	// Destroy removes a session record. Destroying a missing record is a no-op.
	Destroy(ctx context.Context, sessionID string) error
}
