package authapi

import (
	"context"
	"errors"
	"net/http"

	"ptw/cmd/identity"
	"ptw/cmd/internal/auth/session"
)

// StatusSessionRevoked is sent to bearer-authenticated callers whose
// account no longer holds a live session binding. Clients treat it as a
// forced logout, distinct from an expired access token (401).
const StatusSessionRevoked = 440

// principal is the resolved identity of a request.
type principal struct {
	UserID string
	Role   identity.Role

	// SessionID is set when the identity came from the session cookie.
	SessionID string
	// Bearer is set when the identity came from an access token.
	Bearer bool
}

type principalKey struct{}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}

// authenticate resolves a request's identity from the session cookie or,
// failing that, a bearer access token. The cookie path slides the session
// TTL; the bearer path additionally requires the account's session binding
// to still be live and signals a dead binding with 440.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (principal, bool) {
	if sid, ok := h.sessionIDFromCookie(r); ok {
		rec, err := h.coord.ResolveSession(r.Context(), sid)
		if err == nil {
			return principal{UserID: rec.UserID, Role: rec.Role, SessionID: sid}, true
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			h.log.Error("auth.session.resolve", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
			return principal{}, false
		}
		// Dead cookie: fall through to the bearer path before rejecting.
	}

	if tok, ok := bearerToken(r); ok {
		claims, err := h.coord.VerifyAccess(tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token.")
			return principal{}, false
		}
		if err := h.coord.CheckSessionLive(r.Context(), claims.UserID); err != nil {
			if errors.Is(err, session.ErrSessionRevoked) {
				writeError(w, StatusSessionRevoked, "SESSION_REVOKED", "Your session was ended on this device.")
				return principal{}, false
			}
			h.log.Error("auth.session.check", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong.")
			return principal{}, false
		}
		return principal{UserID: claims.UserID, Role: claims.Role, Bearer: true}, true
	}

	writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required.")
	return principal{}, false
}

// requireAuth wraps a handler with identity resolution.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	}
}

// SecurityHeaders applies the baseline response headers to every route.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("X-Content-Type-Options", "nosniff")
		hdr.Set("X-Frame-Options", "DENY")
		hdr.Set("Referrer-Policy", "no-referrer")
		hdr.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
