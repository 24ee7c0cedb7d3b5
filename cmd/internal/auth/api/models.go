package authapi

import (
	"time"

	"ptw/cmd/identity"
)

type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type fieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Force    bool   `json:"force"`
}

type loginResponse struct {
	Message     string       `json:"message"`
	AccessToken string       `json:"accessToken,omitempty"`
	User        userResponse `json:"user"`
}

// conflictResponse is the 409 body for an active-session conflict. The
// client renders the holder's display name in the takeover prompt.
type conflictResponse struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	User    conflictUser `json:"user"`
}

type conflictUser struct {
	DisplayName string `json:"displayName"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type registerRequest struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Company         string `json:"company"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// forgotPasswordResponse is enumeration-safe: the message is identical
// whether or not the email exists. ResetLink is populated in dev only.
type forgotPasswordResponse struct {
	Message   string `json:"message"`
	ResetLink string `json:"resetLink,omitempty"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type checkPasswordRequest struct {
	Password string `json:"password"`
}

type checkPasswordResponse struct {
	Valid bool `json:"valid"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type updateProfileRequest struct {
	Username string `json:"username"`
	Company  string `json:"company"`
	Phone    string `json:"phone"`
}

type userResponse struct {
	ID        string        `json:"id"`
	Email     string        `json:"email"`
	Username  string        `json:"username"`
	Company   string        `json:"company,omitempty"`
	Phone     string        `json:"phone,omitempty"`
	Role      identity.Role `json:"role"`
	Status    string        `json:"status"`
	LastLogin *time.Time    `json:"lastLogin,omitempty"`
	PrevLogin *time.Time    `json:"prevLogin,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

type profileResponse struct {
	User     userResponse `json:"user"`
	ClientIP string       `json:"clientIp"`
	Session  sessionEcho  `json:"session"`
}

type sessionEcho struct {
	ID   string        `json:"id"`
	Role identity.Role `json:"role"`
}

func toUserResponse(a identity.Account) userResponse {
	return userResponse{
		ID:        a.ID,
		Email:     a.Email,
		Username:  a.Username,
		Company:   a.Company,
		Phone:     a.Phone,
		Role:      a.Role,
		Status:    string(a.Status),
		LastLogin: a.LastLogin,
		PrevLogin: a.PrevLogin,
		CreatedAt: a.CreatedAt,
	}
}
