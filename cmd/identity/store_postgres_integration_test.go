package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require PTW_TEST_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_CreateAccount_ConflictEmail_CaseInsensitive(t *testing.T) {
	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := s.CreateAccount(ctx, CreateAccountInput{
		Email:    "User@Example.com",
		Username: "First",
		Phone:    "+974 5555 0001",
		Password: "Str0ng-password!",
		Role:     RoleRequester,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account 1: %v", err)
	}

	// Same email (case-insensitive) should conflict regardless of role.
	_, err = s.CreateAccount(ctx, CreateAccountInput{
		Email:    "user@example.COM",
		Username: "Second",
		Phone:    "+974 5555 0002",
		Password: "Str0ng-password!",
		Role:     RoleApprover,
		Now:      time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_BindSession_ShufflesLogins(t *testing.T) {
	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	acct, err := s.CreateAccount(ctx, CreateAccountInput{
		Email:    "bind-" + strings.ToLower(mustNewULIDLike(t)) + "@example.com",
		Username: "Binder",
		Phone:    "+974" + mustNewULIDLike(t)[18:],
		Password: "Str0ng-password!",
		Role:     RoleRequester,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	t1 := time.Now().UTC().Truncate(time.Millisecond)
	a1, err := s.BindSession(ctx, BindSessionInput{
		AccountID: acct.ID, SessionID: "sess-1", UserAgent: "it-agent/1.0", IP: "127.0.0.1", Now: t1,
	})
	if err != nil {
		t.Fatalf("bind 1: %v", err)
	}
	if a1.PrevLogin != nil {
		t.Fatalf("expected nil prev login on first bind, got %v", a1.PrevLogin)
	}
	if a1.ActiveSessionID == nil || *a1.ActiveSessionID != "sess-1" {
		t.Fatalf("expected binding to sess-1, got %v", a1.ActiveSessionID)
	}

	t2 := t1.Add(time.Minute)
	a2, err := s.BindSession(ctx, BindSessionInput{
		AccountID: acct.ID, SessionID: "sess-2", Now: t2,
	})
	if err != nil {
		t.Fatalf("bind 2: %v", err)
	}
	if a2.PrevLogin == nil || !a2.PrevLogin.Equal(t1) {
		t.Fatalf("expected prev login %v, got %v", t1, a2.PrevLogin)
	}

	// Stale unbind (sess-1) must not clear sess-2's binding.
	if err := s.UnbindSession(ctx, acct.ID, "sess-1"); err != nil {
		t.Fatalf("stale unbind: %v", err)
	}
	got, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActiveSessionID == nil || *got.ActiveSessionID != "sess-2" {
		t.Fatalf("stale unbind cleared the binding: %v", got.ActiveSessionID)
	}

	if err := s.UnbindSession(ctx, acct.ID, "sess-2"); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	got, err = s.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActiveSessionID != nil {
		t.Fatalf("expected cleared binding, got %v", got.ActiveSessionID)
	}
}

func TestPostgresStore_RefreshTokenID_RotateAndClear(t *testing.T) {
	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	acct, err := s.CreateAccount(ctx, CreateAccountInput{
		Email:    "jti-" + strings.ToLower(mustNewULIDLike(t)) + "@example.com",
		Username: "Rotator",
		Phone:    "+974" + mustNewULIDLike(t)[18:],
		Password: "Str0ng-password!",
		Role:     RoleApprover,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	if err := s.SetRefreshTokenID(ctx, acct.ID, "jti-1"); err != nil {
		t.Fatalf("set jti-1: %v", err)
	}
	if err := s.SetRefreshTokenID(ctx, acct.ID, "jti-2"); err != nil {
		t.Fatalf("set jti-2: %v", err)
	}

	got, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RefreshTokenID == nil || *got.RefreshTokenID != "jti-2" {
		t.Fatalf("expected jti-2, got %v", got.RefreshTokenID)
	}

	if err := s.ClearRefreshTokenID(ctx, acct.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.ClearRefreshTokenID(ctx, acct.ID); err != nil {
		t.Fatalf("clear twice (idempotent): %v", err)
	}
}

func TestPostgresStore_ResetToken_ExpiryWindow(t *testing.T) {
	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	acct, err := s.CreateAccount(ctx, CreateAccountInput{
		Email:    "reset-" + strings.ToLower(mustNewULIDLike(t)) + "@example.com",
		Username: "Resetter",
		Phone:    "+974" + mustNewULIDLike(t)[18:],
		Password: "Str0ng-password!",
		Role:     RoleRequester,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	now := time.Now().UTC()
	hash := HashResetTokenHex("plain-token")
	if err := s.SetResetToken(ctx, acct.ID, hash, now.Add(15*time.Minute)); err != nil {
		t.Fatalf("set reset token: %v", err)
	}

	if _, err := s.FindByResetTokenHash(ctx, hash, now); err != nil {
		t.Fatalf("find within window: %v", err)
	}
	if _, err := s.FindByResetTokenHash(ctx, hash, now.Add(16*time.Minute)); !IsNotFound(err) {
		t.Fatalf("expected not found after expiry, got %v", err)
	}

	if err := s.ResetPassword(ctx, acct.ID, "new-hash", "password reset via token", now); err != nil {
		t.Fatalf("reset password: %v", err)
	}
	got, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ResetTokenHash != nil || got.PasswordHash != "new-hash" {
		t.Fatalf("expected cleared token + new hash, got token=%v hash=%q", got.ResetTokenHash, got.PasswordHash)
	}
}

// ---- helpers ----

func mustNewAccountStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("PTW_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: PTW_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse PTW_TEST_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (PTW_TEST_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "ptw_it_" + strings.ToLower(mustNewULIDLike(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgxIdent1(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgxIdent1(schema)+` CASCADE`)
}

func mustApplyAccountSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	accounts := pgIdent(schema, "accounts")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  username TEXT NOT NULL DEFAULT '',
  company TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'Active',

  last_login TIMESTAMPTZ NULL,
  prev_login TIMESTAMPTZ NULL,

  active_session_id TEXT NULL,
  active_session_created_at TIMESTAMPTZ NULL,
  active_session_user_agent TEXT NULL,
  active_session_ip TEXT NULL,

  refresh_token_id TEXT NULL,

  reset_token_hash TEXT NULL,
  reset_token_expires TIMESTAMPTZ NULL,

  password_updated_at TIMESTAMPTZ NULL,
  profile_updated_at TIMESTAMPTZ NULL,
  remarks TEXT[] NOT NULL DEFAULT '{}',

  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_accounts_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_accounts_email UNIQUE (email),
  CONSTRAINT chk_accounts_role CHECK (role IN ('requester', 'pre_approver', 'approver', 'admin')),
  CONSTRAINT chk_accounts_status CHECK (status IN ('Active', 'Inactive'))
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_accounts_phone
  ON %s (phone) WHERE phone <> '';

CREATE INDEX IF NOT EXISTS idx_accounts_reset_token_hash
  ON %s (reset_token_hash);
`, accounts, accounts, accounts)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func mustNewULIDLike(t *testing.T) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	return id
}

func pgxIdent1(ident string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection in dynamic DDL.
	return pgx.Identifier{ident}.Sanitize()
}
