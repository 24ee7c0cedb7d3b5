package authapi

import (
	"context"
	"time"
)

// ResetMessage is the payload for password-reset delivery. The raw token
// appears only here and in the dev-mode response; the store keeps a hash.
type ResetMessage struct {
	Email     string
	ResetURL  string
	ExpiresAt time.Time
}

// ResetMailer delivers password-reset links.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}

// NoopResetMailer is the default mailer; dev deployments read the link
// from the forgot-password response instead.
type NoopResetMailer struct{}

func (NoopResetMailer) SendPasswordReset(context.Context, ResetMessage) error { return nil }
