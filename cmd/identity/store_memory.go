package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
//
// English notes:
// - Guarded by a single RWMutex; all returned Accounts are copies.
// - Uniqueness (email, phone) is checked under the write lock, mirroring the
//   Postgres unique constraints.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account // id -> account
	byEmail  map[string]string  // normalized email -> id
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		byEmail:  make(map[string]string),
	}
}

func (m *MemoryStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	email := NormalizeEmail(in.Email)
	phone := NormalizePhone(in.Phone)

	if email == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email is required"}
	}
	if strings.TrimSpace(in.Password) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password is required"}
	}
	if _, ok := ParseRole(string(in.Role)); !ok {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid role"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	pwHash, err := HashPassword(in.Password)
	if err != nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[email]; exists {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}
	if phone != "" {
		for _, a := range m.accounts {
			if a.Phone == phone {
				return Account{}, ConflictError{Op: op, Field: "phone"}
			}
		}
	}

	acct := Account{
		ID:           id,
		Email:        email,
		Username:     strings.TrimSpace(in.Username),
		Company:      strings.TrimSpace(in.Company),
		Phone:        phone,
		PasswordHash: pwHash,
		Role:         in.Role,
		Status:       StatusActive,
		Remarks:      []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	m.accounts[id] = acct
	m.byEmail[email] = id
	return cloneAccount(acct), nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetAccount"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	acct, ok := m.accounts[id]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return cloneAccount(acct), nil
}

func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.FindByEmail"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return cloneAccount(m.accounts[id]), nil
}

func (m *MemoryStore) BindSession(ctx context.Context, in BindSessionInput) (Account, error) {
	const op = "identity.BindSession"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if strings.TrimSpace(in.AccountID) == "" || strings.TrimSpace(in.SessionID) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing account or session id"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[in.AccountID]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}

	acct.PrevLogin = acct.LastLogin
	t := now
	acct.LastLogin = &t
	sid := in.SessionID
	acct.ActiveSessionID = &sid
	acct.ActiveSessionCreatedAt = &t
	acct.ActiveSessionUserAgent = strPtrOrNil(in.UserAgent)
	acct.ActiveSessionIP = strPtrOrNil(in.IP)
	acct.UpdatedAt = now

	m.accounts[in.AccountID] = acct
	return cloneAccount(acct), nil
}

func (m *MemoryStore) UnbindSession(ctx context.Context, accountID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[accountID]
	if !ok {
		return nil
	}
	// Ownership check: a later login owns the binding.
	if acct.ActiveSessionID == nil || *acct.ActiveSessionID != sessionID {
		return nil
	}

	acct.ActiveSessionID = nil
	acct.ActiveSessionCreatedAt = nil
	acct.ActiveSessionUserAgent = nil
	acct.ActiveSessionIP = nil
	acct.RefreshTokenID = nil
	acct.UpdatedAt = time.Now().UTC()

	m.accounts[accountID] = acct
	return nil
}

func (m *MemoryStore) SetRefreshTokenID(ctx context.Context, accountID, jti string) error {
	const op = "identity.SetRefreshTokenID"

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[accountID]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}

	j := jti
	acct.RefreshTokenID = &j
	acct.UpdatedAt = time.Now().UTC()
	m.accounts[accountID] = acct
	return nil
}

func (m *MemoryStore) ClearRefreshTokenID(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[accountID]
	if !ok {
		return nil
	}

	acct.RefreshTokenID = nil
	acct.UpdatedAt = time.Now().UTC()
	m.accounts[accountID] = acct
	return nil
}

func (m *MemoryStore) SetResetToken(ctx context.Context, accountID, tokenHash string, expires time.Time) error {
	const op = "identity.SetResetToken"

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[accountID]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}

	h := tokenHash
	e := expires
	acct.ResetTokenHash = &h
	acct.ResetTokenExpires = &e
	acct.UpdatedAt = time.Now().UTC()
	m.accounts[accountID] = acct
	return nil
}

func (m *MemoryStore) FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (Account, error) {
	const op = "identity.FindByResetTokenHash"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, acct := range m.accounts {
		if acct.ResetTokenHash != nil && *acct.ResetTokenHash == tokenHash &&
			acct.ResetTokenExpires != nil && acct.ResetTokenExpires.After(now) {
			return cloneAccount(acct), nil
		}
	}
	return Account{}, NotFoundError{Op: op, Resource: "reset_token"}
}

func (m *MemoryStore) ResetPassword(ctx context.Context, accountID, passwordHash, remark string, now time.Time) error {
	const op = "identity.ResetPassword"

	if err := ctx.Err(); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[accountID]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}

	acct.PasswordHash = passwordHash
	acct.ResetTokenHash = nil
	acct.ResetTokenExpires = nil
	t := now
	acct.PasswordUpdatedAt = &t
	acct.Remarks = append(acct.Remarks, remark)
	acct.UpdatedAt = now
	m.accounts[accountID] = acct
	return nil
}

func (m *MemoryStore) UpdatePassword(ctx context.Context, accountID, passwordHash, remark string, now time.Time) error {
	const op = "identity.UpdatePassword"

	if err := ctx.Err(); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[accountID]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}

	acct.PasswordHash = passwordHash
	t := now
	acct.PasswordUpdatedAt = &t
	acct.Remarks = append(acct.Remarks, remark)
	acct.UpdatedAt = now
	m.accounts[accountID] = acct
	return nil
}

func (m *MemoryStore) UpdateProfile(ctx context.Context, in UpdateProfileInput) (Account, error) {
	const op = "identity.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	phone := NormalizePhone(in.Phone)

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[in.AccountID]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}

	if phone != "" {
		for id, other := range m.accounts {
			if id != in.AccountID && other.Phone == phone {
				return Account{}, ConflictError{Op: op, Field: "phone"}
			}
		}
	}

	acct.Username = strings.TrimSpace(in.Username)
	acct.Company = strings.TrimSpace(in.Company)
	acct.Phone = phone
	t := now
	acct.ProfileUpdatedAt = &t
	acct.UpdatedAt = now
	m.accounts[in.AccountID] = acct
	return cloneAccount(acct), nil
}

// SetStatus flips an account's lifecycle state (test/admin helper).
func (m *MemoryStore) SetStatus(accountID string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acct, ok := m.accounts[accountID]; ok {
		acct.Status = status
		m.accounts[accountID] = acct
	}
}

func cloneAccount(a Account) Account {
	out := a
	out.LastLogin = cloneTimePtr(a.LastLogin)
	out.PrevLogin = cloneTimePtr(a.PrevLogin)
	out.ActiveSessionID = cloneStrPtr(a.ActiveSessionID)
	out.ActiveSessionCreatedAt = cloneTimePtr(a.ActiveSessionCreatedAt)
	out.ActiveSessionUserAgent = cloneStrPtr(a.ActiveSessionUserAgent)
	out.ActiveSessionIP = cloneStrPtr(a.ActiveSessionIP)
	out.RefreshTokenID = cloneStrPtr(a.RefreshTokenID)
	out.ResetTokenHash = cloneStrPtr(a.ResetTokenHash)
	out.ResetTokenExpires = cloneTimePtr(a.ResetTokenExpires)
	out.PasswordUpdatedAt = cloneTimePtr(a.PasswordUpdatedAt)
	out.ProfileUpdatedAt = cloneTimePtr(a.ProfileUpdatedAt)
	out.Remarks = append([]string(nil), a.Remarks...)
	return out
}

func cloneStrPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func strPtrOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
