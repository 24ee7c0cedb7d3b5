package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ptw/cmd/identity"
)

// AccessClaims is the validated payload of an access token.
type AccessClaims struct {
	UserID string
	Role   identity.Role
}

// RefreshClaims is the validated payload of a refresh token.
// JTI is the rotation handle: a refresh token is live only while its jti
// matches the account's stored refresh-token id.
type RefreshClaims struct {
	UserID string
	Role   identity.Role
	JTI    string
}

// tokenClaims is the wire shape shared by both token kinds.
// Refresh tokens additionally carry RegisteredClaims.ID (jti).
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies the HS256 JWT pair.
type TokenManager struct {
	cfg Config
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(cfg Config) (*TokenManager, error) {
	if len(cfg.Secret) < 32 {
		return nil, ErrConfig
	}
	return &TokenManager{cfg: cfg}, nil
}

// IssueAccess signs a short-lived access token (sub + role).
func (m *TokenManager) IssueAccess(now time.Time, userID string, role identity.Role) (string, time.Time, error) {
	exp := now.Add(m.cfg.AccessTokenTTL)

	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefresh signs a refresh token (sub + role + fresh jti).
func (m *TokenManager) IssueRefresh(now time.Time, userID string, role identity.Role) (signed string, jti string, exp time.Time, err error) {
	exp = now.Add(m.cfg.RefreshTokenTTL)
	jti = uuid.NewString()

	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, exp, nil
}

// ParseAccess verifies an access token's signature, expiry and issuer.
func (m *TokenManager) ParseAccess(token string) (AccessClaims, error) {
	claims, err := m.parse(token)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	return AccessClaims{
		UserID: claims.Subject,
		Role:   identity.Role(claims.Role),
	}, nil
}

// ParseRefresh verifies a refresh token and requires a jti.
func (m *TokenManager) ParseRefresh(token string) (RefreshClaims, error) {
	claims, err := m.parse(token)
	if err != nil {
		return RefreshClaims{}, ErrInvalidRefreshToken
	}
	if claims.ID == "" {
		return RefreshClaims{}, ErrInvalidRefreshToken
	}
	return RefreshClaims{
		UserID: claims.Subject,
		Role:   identity.Role(claims.Role),
		JTI:    claims.ID,
	}, nil
}

// DecodeRefreshSubject extracts the subject from a refresh token without
// failing on expiry. Used by the token-only logout path, where clearing a
// dead lineage is still the right thing to do for an expired token.
func (m *TokenManager) DecodeRefreshSubject(token string) (string, bool) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithLeeway(m.cfg.ClockSkew),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

func (m *TokenManager) parse(token string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.cfg.ClockSkew),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *TokenManager) keyFunc(*jwt.Token) (any, error) {
	return m.cfg.Secret, nil
}
