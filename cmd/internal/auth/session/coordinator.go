package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ptw/cmd/identity"
)

// Coordinator implements the high-level session operations for PTW.
//
// It owns the login conflict probe (single active session per account),
// forced takeover, logout ownership, and refresh-token rotation. All
// decisions are made against the session store and the account store;
// nothing here trusts client-held state beyond verified token claims.
type Coordinator struct {
	cfg      Config
	accounts identity.Store
	sessions Store
	tokens   *TokenManager
	log      *slog.Logger
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(cfg Config, accounts identity.Store, sessions Store, tokens *TokenManager, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{cfg: cfg, accounts: accounts, sessions: sessions, tokens: tokens, log: log}
}

// Config exposes the coordinator's effective configuration (cookie TTLs).
func (c *Coordinator) Config() Config { return c.cfg }

// LoginInput carries one login attempt.
type LoginInput struct {
	Email    string
	Password string
	Force    bool

	UserAgent string
	IP        string
	Now       time.Time
}

// LoginResult is a successful login.
//
// TokenIssued is false when the JWT pair could not be produced; the session
// cookie is still valid and the client operates in degraded (cookie-only)
// mode until the next explicit login.
type LoginResult struct {
	Account       identity.Account
	SessionID     string
	SessionExpiry time.Time

	TokenIssued   bool
	AccessToken   string
	RefreshToken  string
	RefreshExpiry time.Time

	// Forced reports that a prior live session was evicted.
	Forced bool
}

// Login implements the login algorithm:
//
//  1. credential check (field-scoped failures),
//  2. conflict probe against the session store,
//  3. without force: conflict result carrying the holder's display name,
//     with force: destroy the prior session,
//  4. create + bind the new session (lastLogin -> prevLogin shuffle),
//  5. best-effort token issuance.
//
// The probe and the bind are not atomic; two perfectly concurrent logins can
// both pass the probe. The next login's probe converges the state.
func (c *Coordinator) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	acct, err := c.accounts.FindByEmail(ctx, in.Email)
	if err != nil {
		if identity.IsNotFound(err) {
			loginsTotal.WithLabelValues("invalid").Inc()
			return LoginResult{}, CredentialError{Field: "email"}
		}
		loginsTotal.WithLabelValues("error").Inc()
		return LoginResult{}, err
	}

	if acct.Status != identity.StatusActive {
		loginsTotal.WithLabelValues("inactive").Inc()
		return LoginResult{}, ErrAccountInactive
	}

	ok, err := identity.VerifyPassword(in.Password, acct.PasswordHash)
	if err != nil || !ok {
		loginsTotal.WithLabelValues("invalid").Inc()
		return LoginResult{}, CredentialError{Field: "password"}
	}

	// Conflict probe: the account's binding may point at a session that has
	// long since expired out of the store. Only a live record is a conflict.
	forced := false
	if acct.ActiveSessionID != nil {
		_, probeErr := c.sessions.Get(ctx, *acct.ActiveSessionID)
		switch {
		case probeErr == nil && !in.Force:
			loginsTotal.WithLabelValues("conflict").Inc()
			return LoginResult{}, ConflictError{DisplayName: acct.Username}
		case probeErr == nil && in.Force:
			if err := c.sessions.Destroy(ctx, *acct.ActiveSessionID); err != nil {
				loginsTotal.WithLabelValues("error").Inc()
				return LoginResult{}, ErrSessionPersistence
			}
			forced = true
			c.log.Info("auth.login.force_evict",
				"user_id", acct.ID,
				"evicted_session", *acct.ActiveSessionID,
			)
		}
		// probeErr != nil: stale pointer, proceed.
	}

	sessionID := uuid.NewString()
	rec := Record{UserID: acct.ID, Role: acct.Role, CreatedAt: now}
	if err := c.sessions.Create(ctx, sessionID, rec, c.cfg.SessionTTL); err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		c.log.Error("auth.login.session_store", "err", err)
		return LoginResult{}, ErrSessionPersistence
	}

	acct, err = c.accounts.BindSession(ctx, identity.BindSessionInput{
		AccountID: acct.ID,
		SessionID: sessionID,
		UserAgent: in.UserAgent,
		IP:        in.IP,
		Now:       now,
	})
	if err != nil {
		// Roll the orphaned record back so it cannot trip future probes.
		_ = c.sessions.Destroy(ctx, sessionID)
		loginsTotal.WithLabelValues("error").Inc()
		c.log.Error("auth.login.bind", "err", err)
		return LoginResult{}, ErrSessionPersistence
	}

	res := LoginResult{
		Account:       acct,
		SessionID:     sessionID,
		SessionExpiry: now.Add(c.cfg.SessionTTL),
		Forced:        forced,
	}

	// Token issuance is best-effort: the session cookie already authenticates
	// the user, so a signing or store failure degrades rather than fails.
	access, _, err := c.tokens.IssueAccess(now, acct.ID, acct.Role)
	if err == nil {
		var refresh, jti string
		var refreshExp time.Time
		refresh, jti, refreshExp, err = c.tokens.IssueRefresh(now, acct.ID, acct.Role)
		if err == nil {
			err = c.accounts.SetRefreshTokenID(ctx, acct.ID, jti)
		}
		if err == nil {
			res.TokenIssued = true
			res.AccessToken = access
			res.RefreshToken = refresh
			res.RefreshExpiry = refreshExp
		}
	}
	if err != nil {
		tokenIssueFailures.Inc()
		c.log.Warn("auth.login.token_degraded", "user_id", acct.ID, "err", err)
	}

	if forced {
		loginsTotal.WithLabelValues("forced").Inc()
	} else {
		loginsTotal.WithLabelValues("success").Inc()
	}
	return res, nil
}

// LogoutInput describes the caller's credentials at logout time.
// SessionID/AccountID are set when a live session cookie was resolved;
// RefreshToken is the raw refresh cookie, when present.
type LogoutInput struct {
	SessionID    string
	AccountID    string
	RefreshToken string
	Now          time.Time
}

// Logout destroys the caller's session and clears the account's binding,
// but only while the caller still owns it: a binding taken over by a newer
// login is left untouched. Without a session, a best-effort decode of the
// refresh cookie clears the refresh lineage only. Always idempotent.
func (c *Coordinator) Logout(ctx context.Context, in LogoutInput) error {
	if in.SessionID != "" && in.AccountID != "" {
		if err := c.sessions.Destroy(ctx, in.SessionID); err != nil {
			c.log.Warn("auth.logout.destroy", "session_id", in.SessionID, "err", err)
		}
		if err := c.accounts.UnbindSession(ctx, in.AccountID, in.SessionID); err != nil {
			c.log.Warn("auth.logout.unbind", "user_id", in.AccountID, "err", err)
		}
		logoutsTotal.WithLabelValues("session").Inc()
		return nil
	}

	if tok := strings.TrimSpace(in.RefreshToken); tok != "" {
		if userID, ok := c.tokens.DecodeRefreshSubject(tok); ok {
			if err := c.accounts.ClearRefreshTokenID(ctx, userID); err != nil {
				c.log.Warn("auth.logout.clear_jti", "user_id", userID, "err", err)
			}
		}
		logoutsTotal.WithLabelValues("token_only").Inc()
		return nil
	}

	logoutsTotal.WithLabelValues("anonymous").Inc()
	return nil
}

// Refreshed is the result of a successful rotation.
// The new refresh token travels only in the cookie; the access token only
// in the response body.
type Refreshed struct {
	AccessToken   string
	RefreshToken  string
	RefreshExpiry time.Time
}

// Refresh validates a refresh token and rotates its jti.
//
// The stored-jti comparison is the revocation mechanism: a token whose jti
// was superseded (newer login, forced takeover, logout) is dead even though
// its signature and expiry still verify. Rotation is last-writer-wins; a
// concurrently rotated loser is revoked at its next attempt.
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string, now time.Time) (Refreshed, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		refreshesTotal.WithLabelValues("invalid").Inc()
		return Refreshed{}, ErrNoRefreshToken
	}

	claims, err := c.tokens.ParseRefresh(refreshToken)
	if err != nil {
		refreshesTotal.WithLabelValues("invalid").Inc()
		return Refreshed{}, ErrInvalidRefreshToken
	}

	acct, err := c.accounts.GetAccount(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			refreshesTotal.WithLabelValues("invalid").Inc()
			return Refreshed{}, ErrAccountNotFound
		}
		refreshesTotal.WithLabelValues("error").Inc()
		return Refreshed{}, err
	}

	if acct.RefreshTokenID == nil || *acct.RefreshTokenID != claims.JTI {
		refreshesTotal.WithLabelValues("revoked").Inc()
		return Refreshed{}, ErrRefreshRevoked
	}

	access, _, err := c.tokens.IssueAccess(now, acct.ID, acct.Role)
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return Refreshed{}, ErrSessionPersistence
	}
	refresh, jti, refreshExp, err := c.tokens.IssueRefresh(now, acct.ID, acct.Role)
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return Refreshed{}, ErrSessionPersistence
	}
	if err := c.accounts.SetRefreshTokenID(ctx, acct.ID, jti); err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		c.log.Error("auth.refresh.rotate", "user_id", acct.ID, "err", err)
		return Refreshed{}, ErrSessionPersistence
	}

	refreshesTotal.WithLabelValues("rotated").Inc()
	return Refreshed{
		AccessToken:   access,
		RefreshToken:  refresh,
		RefreshExpiry: refreshExp,
	}, nil
}

// ResolveSession loads a live session record and slides its TTL.
func (c *Coordinator) ResolveSession(ctx context.Context, sessionID string) (Record, error) {
	rec, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if err := c.sessions.Touch(ctx, sessionID, c.cfg.SessionTTL); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// VerifyAccess validates a bearer access token.
func (c *Coordinator) VerifyAccess(token string) (AccessClaims, error) {
	return c.tokens.ParseAccess(token)
}

// CheckSessionLive reports whether the account still has a live bound
// session. ErrSessionRevoked means the binding was taken over or cleared;
// bearer-authenticated callers surface this as the distinguished
// session-revoked signal.
func (c *Coordinator) CheckSessionLive(ctx context.Context, userID string) error {
	acct, err := c.accounts.GetAccount(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return ErrSessionRevoked
		}
		return err
	}
	if acct.ActiveSessionID == nil {
		return ErrSessionRevoked
	}
	if _, err := c.sessions.Get(ctx, *acct.ActiveSessionID); err != nil {
		return ErrSessionRevoked
	}
	return nil
}
