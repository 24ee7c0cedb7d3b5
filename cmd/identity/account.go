package identity

import "time"

// Role is an account's permission level in the permit workflow.
type Role string

const (
	RoleRequester   Role = "requester"
	RolePreApprover Role = "pre_approver"
	RoleApprover    Role = "approver"
	RoleAdmin       Role = "admin"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleRequester, RolePreApprover, RoleApprover, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// Status is an account's lifecycle state. Inactive accounts cannot log in.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Account is PTW's canonical security principal.
//
// Session binding invariant: at most one live server session is bound to an
// account at a time. ActiveSessionID may point at an already-expired session;
// staleness is detected by probing the session store, never assumed.
type Account struct {
	ID           string
	Email        string
	Username     string
	Company      string
	Phone        string
	PasswordHash string
	Role         Role
	Status       Status

	LastLogin *time.Time
	PrevLogin *time.Time

	// Session binding (single active session per account).
	ActiveSessionID        *string
	ActiveSessionCreatedAt *time.Time
	ActiveSessionUserAgent *string
	ActiveSessionIP        *string

	// Refresh-token lineage: the jti of the one currently valid refresh token.
	RefreshTokenID *string

	// Password-reset pair. Only the hash is stored.
	ResetTokenHash    *string
	ResetTokenExpires *time.Time

	PasswordUpdatedAt *time.Time
	ProfileUpdatedAt  *time.Time
	Remarks           []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateAccountInput describes a registration request.
// Email, phone and password are validated and normalized by the caller;
// the store enforces uniqueness and hashes the password.
type CreateAccountInput struct {
	Email    string
	Username string
	Company  string
	Phone    string
	Password string
	Role     Role
	Now      time.Time
}

// BindSessionInput binds a freshly created server session to an account.
// The store shuffles LastLogin into PrevLogin and records the binding metadata.
type BindSessionInput struct {
	AccountID string
	SessionID string
	UserAgent string
	IP        string
	Now       time.Time
}

// UpdateProfileInput updates the mutable profile fields.
type UpdateProfileInput struct {
	AccountID string
	Username  string
	Company   string
	Phone     string
	Now       time.Time
}
