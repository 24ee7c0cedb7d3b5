package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ptw/cmd/identity"
	"ptw/cmd/internal/auth/session"
	"ptw/cmd/security/password"
)

// resetTokenTTL bounds how long an emailed reset link stays usable.
const resetTokenTTL = 15 * time.Minute

// Handler wires the HTTP auth endpoints to the account store and the
// session coordinator.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts identity.Store
	coord    *session.Coordinator
	pw       password.Config

	mailer       ResetMailer
	resetBaseURL string
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithResetMailer overrides the default no-op reset mailer.
func WithResetMailer(m ResetMailer) HandlerOption {
	return func(h *Handler) {
		if m != nil {
			h.mailer = m
		}
	}
}

// WithResetBaseURL sets the origin used to build reset links.
func WithResetBaseURL(u string) HandlerOption {
	return func(h *Handler) {
		h.resetBaseURL = strings.TrimRight(strings.TrimSpace(u), "/")
	}
}

// NewHandler constructs the auth Handler.
func NewHandler(log *slog.Logger, cfg Config, accounts identity.Store, coord *session.Coordinator, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if accounts == nil {
		return nil, errors.New("authapi: nil account store")
	}
	if coord == nil {
		return nil, errors.New("authapi: nil session coordinator")
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		accounts: accounts,
		coord:    coord,
		pw:       pwCfg,
		mailer:   NoopResetMailer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires the auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/logout", h.handleLogout)
	mux.HandleFunc("/api/refresh-token", h.handleRefresh)
	mux.HandleFunc("/api/profile", h.requireAuth(h.handleProfile))
	mux.HandleFunc("/api/register", h.handleRegister)
	mux.HandleFunc("/api/forgot-password", h.handleForgotPassword)
	mux.HandleFunc("/api/reset-password", h.handleResetPassword)
	mux.HandleFunc("/api/check-password", h.requireAuth(h.handleCheckPassword))
	mux.HandleFunc("/api/update-password", h.requireAuth(h.handleUpdatePassword))
	mux.HandleFunc("/api/update-profile", h.requireAuth(h.handleUpdateProfile))
	mux.HandleFunc("/api/ping", h.requireAuth(h.handlePing))
}

// ---- login / logout / refresh ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body.")
		return
	}

	email := identity.NormalizeEmail(req.Email)
	if !validEmail(email) {
		writeFieldError(w, "email", msgInvalidEmail)
		return
	}
	if strings.TrimSpace(req.Password) == "" {
		writeFieldError(w, "password", msgInvalidPassword)
		return
	}

	res, err := h.coord.Login(r.Context(), session.LoginInput{
		Email:     email,
		Password:  req.Password,
		Force:     req.Force,
		UserAgent: strings.TrimSpace(r.UserAgent()),
		IP:        clientIP(r, h.cfg.TrustProxy),
	})
	if err != nil {
		var cred session.CredentialError
		var conflict session.ConflictError
		switch {
		case errors.As(err, &cred):
			writeFieldError(w, cred.Field, loginFieldMessage(cred.Field))
		case errors.Is(err, session.ErrAccountInactive):
			writeError(w, http.StatusForbidden, "ACCOUNT_INACTIVE",
				"Your account is inactive. Contact an administrator.")
		case errors.As(err, &conflict):
			writeJSON(w, http.StatusConflict, conflictResponse{
				Code:    "ACTIVE_SESSION",
				Message: "This account is already signed in on another device.",
				User:    conflictUser{DisplayName: conflict.DisplayName},
			})
		default:
			h.log.Error("auth.login", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
		}
		return
	}

	h.setSessionCookie(w, res.SessionID, res.SessionExpiry)
	if res.TokenIssued {
		h.setRefreshCookie(w, res.RefreshToken, res.RefreshExpiry)
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Message:     "Login successful.",
		AccessToken: res.AccessToken,
		User:        toUserResponse(res.Account),
	})
}

func loginFieldMessage(field string) string {
	if field == "email" {
		return msgInvalidEmail
	}
	return msgInvalidPassword
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var in session.LogoutInput
	if sid, ok := h.sessionIDFromCookie(r); ok {
		if rec, err := h.coord.ResolveSession(r.Context(), sid); err == nil {
			in.SessionID = sid
			in.AccountID = rec.UserID
		}
	}
	if rt, ok := h.refreshTokenFromCookie(r); ok {
		in.RefreshToken = rt
	}

	if err := h.coord.Logout(r.Context(), in); err != nil {
		h.log.Warn("auth.logout", "err", err)
	}

	// Cookies are cleared no matter which logout path ran.
	h.expireSessionCookie(w)
	h.expireRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out."})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rt, ok := h.refreshTokenFromCookie(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "NO_REFRESH_TOKEN", "No refresh token.")
		return
	}

	res, err := h.coord.Refresh(r.Context(), rt, time.Now().UTC())
	if err != nil {
		if errors.Is(err, session.ErrSessionPersistence) {
			writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
			return
		}
		// Terminal for the client: drop the cookie so it stops retrying.
		h.expireRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, "REFRESH_REVOKED", "Invalid or expired refresh token.")
		return
	}

	h.setRefreshCookie(w, res.RefreshToken, res.RefreshExpiry)
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: res.AccessToken})
}

// ---- profile / keepalive ----

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, _ := principalFrom(r.Context())

	acct, err := h.accounts.GetAccount(r.Context(), p.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Account no longer exists.")
			return
		}
		h.log.Error("auth.profile", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		User:     toUserResponse(acct),
		ClientIP: clientIP(r, h.cfg.TrustProxy),
		Session:  sessionEcho{ID: p.SessionID, Role: p.Role},
	})
}

// handlePing slides the session TTL; the idle-warning "Continue" button
// calls it. The slide itself happens during authentication.
func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "pong"})
}

// ---- registration ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body.")
		return
	}

	email := identity.NormalizeEmail(req.Email)
	if !validEmail(email) {
		writeFieldError(w, "email", msgInvalidEmail)
		return
	}
	if !validName(req.Username) {
		writeFieldError(w, "username", "Please enter a valid name.")
		return
	}
	if !validName(req.Company) {
		writeFieldError(w, "company", "Please enter a valid company name.")
		return
	}
	phone, ok := validatePhone(req.Phone)
	if !ok {
		writeFieldError(w, "phone", "Please enter a valid Qatari phone number (+974).")
		return
	}
	if err := h.pw.Validate(req.Password); err != nil {
		writeFieldError(w, "password", passwordPolicyMessage(err))
		return
	}
	if req.Password != req.ConfirmPassword {
		writeFieldError(w, "confirmPassword", "Passwords do not match.")
		return
	}

	acct, err := h.accounts.CreateAccount(r.Context(), identity.CreateAccountInput{
		Email:    email,
		Username: strings.TrimSpace(req.Username),
		Company:  strings.TrimSpace(req.Company),
		Phone:    phone,
		Password: req.Password,
		Role:     identity.RoleRequester,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		var conflict identity.ConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, fieldErrorResponse{
				Field:   conflict.Field,
				Message: "An account with this " + conflict.Field + " already exists.",
			})
			return
		}
		h.log.Error("auth.register", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
		return
	}

	writeJSON(w, http.StatusCreated, loginResponse{
		Message: "Account created. Please sign in.",
		User:    toUserResponse(acct),
	})
}

// ---- password reset ----

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req forgotPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body.")
		return
	}

	// The response is identical whether or not the account exists.
	const generic = "If that email is registered, a reset link has been sent."

	email := identity.NormalizeEmail(req.Email)
	if !validEmail(email) {
		writeJSON(w, http.StatusOK, forgotPasswordResponse{Message: generic})
		return
	}

	acct, err := h.accounts.FindByEmail(r.Context(), email)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.log.Error("auth.forgot_password.lookup", "err", err)
		}
		writeJSON(w, http.StatusOK, forgotPasswordResponse{Message: generic})
		return
	}

	now := time.Now().UTC()
	tok, err := identity.NewResetToken()
	if err != nil {
		h.log.Error("auth.forgot_password.token", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
		return
	}
	expires := now.Add(resetTokenTTL)
	if err := h.accounts.SetResetToken(r.Context(), acct.ID, identity.HashResetTokenHex(tok), expires); err != nil {
		h.log.Error("auth.forgot_password.store", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
		return
	}

	link := h.resetBaseURL + "/reset-password?token=" + tok
	if err := h.mailer.SendPasswordReset(r.Context(), ResetMessage{
		Email:     acct.Email,
		ResetURL:  link,
		ExpiresAt: expires,
	}); err != nil {
		h.log.Warn("auth.forgot_password.mail", "err", err)
	}

	resp := forgotPasswordResponse{Message: generic}
	if !h.cfg.Prod() {
		resp.ResetLink = link
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body.")
		return
	}

	tok := strings.TrimSpace(req.Token)
	if tok == "" {
		writeFieldError(w, "token", "Reset token is required.")
		return
	}
	if err := h.pw.Validate(req.Password); err != nil {
		writeFieldError(w, "password", passwordPolicyMessage(err))
		return
	}
	if req.Password != req.ConfirmPassword {
		writeFieldError(w, "confirmPassword", "Passwords do not match.")
		return
	}

	now := time.Now().UTC()
	acct, err := h.accounts.FindByResetTokenHash(r.Context(), identity.HashResetTokenHex(tok), now)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusBadRequest, "INVALID_RESET_TOKEN",
				"Reset link is invalid or has expired.")
			return
		}
		h.log.Error("auth.reset_password.lookup", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
		return
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		writeFieldError(w, "password", msgInvalidPassword)
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), acct.ID, hash, "Password reset via emailed link.", now); err != nil {
		h.log.Error("auth.reset_password.store", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
		return
	}
	// A reset invalidates the refresh lineage; any stolen refresh token dies here.
	if err := h.accounts.ClearRefreshTokenID(r.Context(), acct.ID); err != nil {
		h.log.Warn("auth.reset_password.revoke", "err", err)
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated. Please sign in."})
}

// ---- authenticated password / profile management ----

func (h *Handler) handleCheckPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, _ := principalFrom(r.Context())

	var req checkPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body.")
		return
	}

	acct, err := h.accounts.GetAccount(r.Context(), p.UserID)
	if err != nil {
		h.log.Error("auth.check_password", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
		return
	}

	ok, _ := identity.VerifyPassword(req.Password, acct.PasswordHash)
	writeJSON(w, http.StatusOK, checkPasswordResponse{Valid: ok})
}

func (h *Handler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, _ := principalFrom(r.Context())

	var req updatePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body.")
		return
	}

	acct, err := h.accounts.GetAccount(r.Context(), p.UserID)
	if err != nil {
		h.log.Error("auth.update_password.lookup", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
		return
	}

	ok, _ := identity.VerifyPassword(req.CurrentPassword, acct.PasswordHash)
	if !ok {
		writeFieldError(w, "currentPassword", "Current password is incorrect.")
		return
	}
	if err := h.pw.Validate(req.NewPassword); err != nil {
		writeFieldError(w, "newPassword", passwordPolicyMessage(err))
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		writeFieldError(w, "confirmPassword", "Passwords do not match.")
		return
	}

	hash, err := identity.HashPassword(req.NewPassword)
	if err != nil {
		writeFieldError(w, "newPassword", msgInvalidPassword)
		return
	}
	now := time.Now().UTC()
	if err := h.accounts.UpdatePassword(r.Context(), p.UserID, hash, "Password changed by the account holder.", now); err != nil {
		h.log.Error("auth.update_password.store", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated."})
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, _ := principalFrom(r.Context())

	var req updateProfileRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body.")
		return
	}

	if !validName(req.Username) {
		writeFieldError(w, "username", "Please enter a valid name.")
		return
	}
	if !validName(req.Company) {
		writeFieldError(w, "company", "Please enter a valid company name.")
		return
	}
	phone, ok := validatePhone(req.Phone)
	if !ok {
		writeFieldError(w, "phone", "Please enter a valid Qatari phone number (+974).")
		return
	}

	acct, err := h.accounts.UpdateProfile(r.Context(), identity.UpdateProfileInput{
		AccountID: p.UserID,
		Username:  strings.TrimSpace(req.Username),
		Company:   strings.TrimSpace(req.Company),
		Phone:     phone,
		Now:       time.Now().UTC(),
	})
	if err != nil {
		var conflict identity.ConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, fieldErrorResponse{
				Field:   conflict.Field,
				Message: "An account with this " + conflict.Field + " already exists.",
			})
			return
		}
		h.log.Error("auth.update_profile", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Profile updated.",
		User:    toUserResponse(acct),
	})
}

func passwordPolicyMessage(err error) string {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return "Password is too short."
	case errors.Is(err, password.ErrPasswordTooLong):
		return "Password is too long."
	default:
		return "Password must mix upper and lower case letters, digits and symbols."
	}
}
