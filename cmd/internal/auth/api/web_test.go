package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testWebHandler(env string) *Handler {
	cfg := DefaultConfig()
	cfg.Env = env
	return &Handler{cfg: cfg}
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	res := rec.Result()
	defer res.Body.Close()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestSessionCookie_DevAttributes(t *testing.T) {
	h := testWebHandler("dev")
	rec := httptest.NewRecorder()
	h.setSessionCookie(rec, "sid-1", time.Now().Add(2*time.Hour))

	c := findCookie(t, rec, "sessionId")
	if !c.HttpOnly || c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("dev session cookie attrs: %+v", c)
	}
	if c.Path != "/" {
		t.Fatalf("session cookie path = %q", c.Path)
	}
}

func TestRefreshCookie_ProdAttributes(t *testing.T) {
	h := testWebHandler("prod")
	rec := httptest.NewRecorder()
	h.setRefreshCookie(rec, "tok", time.Now().Add(7*24*time.Hour))

	c := findCookie(t, rec, "refreshToken")
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteNoneMode {
		t.Fatalf("prod refresh cookie attrs: %+v", c)
	}
	if c.Path != "/api" {
		t.Fatalf("refresh cookie path = %q", c.Path)
	}
}

func TestExpireCookies(t *testing.T) {
	h := testWebHandler("dev")
	rec := httptest.NewRecorder()
	h.expireSessionCookie(rec)
	h.expireRefreshCookie(rec)

	if c := findCookie(t, rec, "sessionId"); c.MaxAge != -1 || c.Value != "" {
		t.Fatalf("session cookie not expired: %+v", c)
	}
	if c := findCookie(t, rec, "refreshToken"); c.MaxAge != -1 || c.Value != "" {
		t.Fatalf("refresh cookie not expired: %+v", c)
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	if _, ok := bearerToken(r); ok {
		t.Fatalf("expected no token on bare request")
	}

	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	tok, ok := bearerToken(r)
	if !ok || tok != "abc.def.ghi" {
		t.Fatalf("bearerToken = %q, %v", tok, ok)
	}

	r.Header.Set("Authorization", "Basic dXNlcg==")
	if _, ok := bearerToken(r); ok {
		t.Fatalf("expected rejection of non-bearer scheme")
	}
}

func TestClientIP_ProxyTrust(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	r.RemoteAddr = "10.0.0.9:50123"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.9")

	if got := clientIP(r, false); got != "10.0.0.9" {
		t.Fatalf("untrusted proxy: got %q", got)
	}
	if got := clientIP(r, true); got != "203.0.113.7" {
		t.Fatalf("trusted proxy: got %q", got)
	}

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "198.51.100.4")
	if got := clientIP(r, true); got != "198.51.100.4" {
		t.Fatalf("x-real-ip: got %q", got)
	}
}
