package session

import (
	"testing"
	"time"

	"ptw/cmd/identity"
)

func testTokenManager(t *testing.T) *TokenManager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Secret = []byte(testSecret)
	m, err := NewTokenManager(cfg)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return m
}

func TestTokens_AccessRoundtrip(t *testing.T) {
	m := testTokenManager(t)
	now := time.Now().UTC()

	tok, exp, err := m.IssueAccess(now, "user-1", identity.RoleApprover)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if !exp.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("expected 15m expiry, got %v", exp.Sub(now))
	}

	claims, err := m.ParseAccess(tok)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != identity.RoleApprover {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestTokens_ExpiredAccessRejected(t *testing.T) {
	m := testTokenManager(t)

	tok, _, err := m.IssueAccess(time.Now().UTC().Add(-time.Hour), "user-1", identity.RoleRequester)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := m.ParseAccess(tok); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokens_WrongSecretRejected(t *testing.T) {
	m := testTokenManager(t)

	other := DefaultConfig()
	other.Secret = []byte("ffffffffffffffffffffffffffffffff")
	m2, err := NewTokenManager(other)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	tok, _, err := m.IssueAccess(time.Now().UTC(), "user-1", identity.RoleRequester)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := m2.ParseAccess(tok); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestTokens_RefreshCarriesJTI(t *testing.T) {
	m := testTokenManager(t)
	now := time.Now().UTC()

	tok, jti, exp, err := m.IssueRefresh(now, "user-1", identity.RoleAdmin)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if jti == "" {
		t.Fatalf("expected non-empty jti")
	}
	if !exp.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("expected 7d expiry, got %v", exp.Sub(now))
	}

	claims, err := m.ParseRefresh(tok)
	if err != nil {
		t.Fatalf("ParseRefresh: %v", err)
	}
	if claims.JTI != jti || claims.UserID != "user-1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}

	// Each issuance mints a distinct jti.
	_, jti2, _, err := m.IssueRefresh(now, "user-1", identity.RoleAdmin)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if jti2 == jti {
		t.Fatalf("expected rotated jti")
	}
}

func TestTokens_AccessTokenIsNotARefreshToken(t *testing.T) {
	m := testTokenManager(t)

	tok, _, err := m.IssueAccess(time.Now().UTC(), "user-1", identity.RoleRequester)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := m.ParseRefresh(tok); err != ErrInvalidRefreshToken {
		t.Fatalf("expected ErrInvalidRefreshToken for jti-less token, got %v", err)
	}
}

func TestTokens_DecodeRefreshSubject_ToleratesExpiry(t *testing.T) {
	m := testTokenManager(t)

	tok, _, _, err := m.IssueRefresh(time.Now().UTC().Add(-30*24*time.Hour), "user-9", identity.RoleRequester)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	// The strict path rejects it.
	if _, err := m.ParseRefresh(tok); err != ErrInvalidRefreshToken {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
	// The logout decode path still yields the subject.
	sub, ok := m.DecodeRefreshSubject(tok)
	if !ok || sub != "user-9" {
		t.Fatalf("expected subject user-9, got %q ok=%v", sub, ok)
	}

	// Garbage stays garbage.
	if _, ok := m.DecodeRefreshSubject("not-a-token"); ok {
		t.Fatalf("expected decode failure for garbage")
	}
}
