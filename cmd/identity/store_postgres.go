package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements account persistence over PostgreSQL.
//
// English design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - UnbindSession and ClearRefreshTokenID are conditional UPDATEs; their
//   WHERE clauses carry the ownership checks so no explicit locking is needed.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the account store (default "ptw").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "ptw",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const accountColumns = `id, email, username, company, phone, password_hash, role, status,
       last_login, prev_login,
       active_session_id, active_session_created_at, active_session_user_agent, active_session_ip,
       refresh_token_id, reset_token_hash, reset_token_expires,
       password_updated_at, profile_updated_at, remarks, created_at, updated_at`

// CreateAccount registers a new account row.
func (s *PostgresStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	email := NormalizeEmail(in.Email)
	phone := NormalizePhone(in.Phone)
	username := strings.TrimSpace(in.Username)
	company := strings.TrimSpace(in.Company)

	if email == "" {
		return Account{}, pgInvalid(op, "email is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return Account{}, pgInvalid(op, "password is required")
	}
	if _, ok := ParseRole(string(in.Role)); !ok {
		return Account{}, pgInvalid(op, "invalid role")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	pwHash, err := HashPassword(in.Password)
	if err != nil {
		return Account{}, pgInvalid(op, err.Error())
	}

	accountID, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	accounts := pgIdent(s.schema, "accounts")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+accounts+` (
		     id, email, username, company, phone, password_hash, role, status, remarks, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '{}', $9, $9)`,
		accountID,
		email,
		username,
		company,
		phone,
		pwHash,
		string(in.Role),
		string(StatusActive),
		now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}

	return Account{
		ID:           accountID,
		Email:        email,
		Username:     username,
		Company:      company,
		Phone:        phone,
		PasswordHash: pwHash,
		Role:         in.Role,
		Status:       StatusActive,
		Remarks:      []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetAccount returns an account by id.
func (s *PostgresStore) GetAccount(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetAccount"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Account{}, pgInvalid(op, "missing account id")
	}

	accounts := pgIdent(s.schema, "accounts")

	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+accounts+` WHERE id = $1`,
		id,
	)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, err
	}
	return acct, nil
}

// FindByEmail returns an account by normalized email.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.FindByEmail"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	email = NormalizeEmail(email)
	if email == "" {
		return Account{}, pgInvalid(op, "missing email")
	}

	accounts := pgIdent(s.schema, "accounts")

	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+accounts+` WHERE email = $1`,
		email,
	)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, err
	}
	return acct, nil
}

// BindSession records a new session binding and shuffles last_login into prev_login.
func (s *PostgresStore) BindSession(ctx context.Context, in BindSessionInput) (Account, error) {
	const op = "identity.BindSession"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if strings.TrimSpace(in.AccountID) == "" {
		return Account{}, pgInvalid(op, "missing account id")
	}
	if strings.TrimSpace(in.SessionID) == "" {
		return Account{}, pgInvalid(op, "missing session id")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	accounts := pgIdent(s.schema, "accounts")

	// Single statement so the last_login -> prev_login shuffle reads the
	// pre-update value.
	row := s.pool.QueryRow(ctx,
		`UPDATE `+accounts+`
		    SET prev_login = last_login,
		        last_login = $1,
		        active_session_id = $2,
		        active_session_created_at = $1,
		        active_session_user_agent = $3,
		        active_session_ip = $4,
		        updated_at = $1
		  WHERE id = $5
		  RETURNING `+accountColumns,
		now, in.SessionID, pgNullable(in.UserAgent), pgNullable(in.IP), in.AccountID,
	)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, err
	}
	return acct, nil
}

// UnbindSession clears the binding fields only while sessionID still owns them.
// Idempotent: unbinding an already-unbound or superseded session is a no-op.
func (s *PostgresStore) UnbindSession(ctx context.Context, accountID, sessionID string) error {
	const op = "identity.UnbindSession"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(accountID) == "" || strings.TrimSpace(sessionID) == "" {
		return pgInvalid(op, "missing account or session id")
	}

	accounts := pgIdent(s.schema, "accounts")

	_, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+`
		    SET active_session_id = NULL,
		        active_session_created_at = NULL,
		        active_session_user_agent = NULL,
		        active_session_ip = NULL,
		        refresh_token_id = NULL,
		        updated_at = now()
		  WHERE id = $1
		    AND active_session_id = $2`,
		accountID, sessionID,
	)
	return err
}

// SetRefreshTokenID records the jti of the currently valid refresh token.
func (s *PostgresStore) SetRefreshTokenID(ctx context.Context, accountID, jti string) error {
	const op = "identity.SetRefreshTokenID"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(accountID) == "" || strings.TrimSpace(jti) == "" {
		return pgInvalid(op, "missing account id or jti")
	}

	accounts := pgIdent(s.schema, "accounts")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+`
		    SET refresh_token_id = $1, updated_at = now()
		  WHERE id = $2`,
		jti, accountID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// ClearRefreshTokenID revokes the refresh lineage (idempotent).
func (s *PostgresStore) ClearRefreshTokenID(ctx context.Context, accountID string) error {
	const op = "identity.ClearRefreshTokenID"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(accountID) == "" {
		return pgInvalid(op, "missing account id")
	}

	accounts := pgIdent(s.schema, "accounts")

	_, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+`
		    SET refresh_token_id = NULL, updated_at = now()
		  WHERE id = $1`,
		accountID,
	)
	return err
}

// SetResetToken stores a hashed reset token, replacing any previous one.
func (s *PostgresStore) SetResetToken(ctx context.Context, accountID, tokenHash string, expires time.Time) error {
	const op = "identity.SetResetToken"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(accountID) == "" || strings.TrimSpace(tokenHash) == "" {
		return pgInvalid(op, "missing account id or token hash")
	}

	accounts := pgIdent(s.schema, "accounts")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+`
		    SET reset_token_hash = $1,
		        reset_token_expires = $2,
		        updated_at = now()
		  WHERE id = $3`,
		tokenHash, expires, accountID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// FindByResetTokenHash returns the account holding an unexpired reset token.
func (s *PostgresStore) FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (Account, error) {
	const op = "identity.FindByResetTokenHash"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if strings.TrimSpace(tokenHash) == "" {
		return Account{}, pgInvalid(op, "missing token hash")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	accounts := pgIdent(s.schema, "accounts")

	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+`
		   FROM `+accounts+`
		  WHERE reset_token_hash = $1
		    AND reset_token_expires > $2`,
		tokenHash, now,
	)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "reset_token"}
		}
		return Account{}, err
	}
	return acct, nil
}

// ResetPassword sets a new hash, clears the reset pair and appends remark.
func (s *PostgresStore) ResetPassword(ctx context.Context, accountID, passwordHash, remark string, now time.Time) error {
	const op = "identity.ResetPassword"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(accountID) == "" || strings.TrimSpace(passwordHash) == "" {
		return pgInvalid(op, "missing account id or password hash")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	accounts := pgIdent(s.schema, "accounts")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+`
		    SET password_hash = $1,
		        reset_token_hash = NULL,
		        reset_token_expires = NULL,
		        password_updated_at = $2,
		        remarks = array_append(remarks, $3),
		        updated_at = $2
		  WHERE id = $4`,
		passwordHash, now, remark, accountID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// UpdatePassword sets a new hash and appends remark.
func (s *PostgresStore) UpdatePassword(ctx context.Context, accountID, passwordHash, remark string, now time.Time) error {
	const op = "identity.UpdatePassword"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(accountID) == "" || strings.TrimSpace(passwordHash) == "" {
		return pgInvalid(op, "missing account id or password hash")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	accounts := pgIdent(s.schema, "accounts")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+`
		    SET password_hash = $1,
		        password_updated_at = $2,
		        remarks = array_append(remarks, $3),
		        updated_at = $2
		  WHERE id = $4`,
		passwordHash, now, remark, accountID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// UpdateProfile updates the mutable profile fields.
func (s *PostgresStore) UpdateProfile(ctx context.Context, in UpdateProfileInput) (Account, error) {
	const op = "identity.UpdateProfile"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if strings.TrimSpace(in.AccountID) == "" {
		return Account{}, pgInvalid(op, "missing account id")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	accounts := pgIdent(s.schema, "accounts")

	row := s.pool.QueryRow(ctx,
		`UPDATE `+accounts+`
		    SET username = $1,
		        company = $2,
		        phone = $3,
		        profile_updated_at = $4,
		        updated_at = $4
		  WHERE id = $5
		  RETURNING `+accountColumns,
		strings.TrimSpace(in.Username),
		strings.TrimSpace(in.Company),
		NormalizePhone(in.Phone),
		now,
		in.AccountID,
	)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}
	return acct, nil
}

// ---- helpers ----

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var role, status string
	err := row.Scan(
		&a.ID, &a.Email, &a.Username, &a.Company, &a.Phone, &a.PasswordHash, &role, &status,
		&a.LastLogin, &a.PrevLogin,
		&a.ActiveSessionID, &a.ActiveSessionCreatedAt, &a.ActiveSessionUserAgent, &a.ActiveSessionIP,
		&a.RefreshTokenID, &a.ResetTokenHash, &a.ResetTokenExpires,
		&a.PasswordUpdatedAt, &a.ProfileUpdatedAt, &a.Remarks, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}
	a.Role = Role(role)
	a.Status = Status(status)
	return a, nil
}

// pgNullable maps an empty string to SQL NULL.
func pgNullable(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// English comment:
	// Prefer stable schema constraint names. Fall back to heuristic substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_accounts_email":
		return "email", true
	case "uq_accounts_phone":
		return "phone", true
	default:
		switch {
		case strings.Contains(c, "email"):
			return "email", true
		case strings.Contains(c, "phone"):
			return "phone", true
		default:
			return "unique", true
		}
	}
}
