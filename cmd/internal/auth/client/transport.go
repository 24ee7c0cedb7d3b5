package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/sync/singleflight"
)

// StatusSessionRevoked is the server's signal that this device's session
// was ended (forced takeover or logout elsewhere).
const StatusSessionRevoked = 440

// ErrRefreshFailed is returned when the refresh endpoint rejects the
// rotation. Terminal: the interceptor never retries a failed refresh.
var ErrRefreshFailed = errors.New("token refresh failed")

// Transport is the client-side auth interceptor. It attaches the bearer
// token, performs at most one single-flight refresh-and-retry on a 401,
// and routes the 440 session-revoked signal to the AuthContext.
type Transport struct {
	// Base performs the actual requests. nil means http.DefaultTransport.
	Base http.RoundTripper

	Auth *AuthContext

	// RefreshURL is the refresh endpoint; RefreshClient must carry the
	// browser cookie jar (the refresh token lives in a cookie) and must
	// not route through this Transport.
	RefreshURL    string
	RefreshClient *http.Client

	sf singleflight.Group
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.send(req, t.Auth.Token())
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == StatusSessionRevoked {
		t.Auth.sessionRevoked()
		return resp, nil
	}
	if resp.StatusCode != http.StatusUnauthorized || !replayable(req) {
		return resp, nil
	}

	// Concurrent 401s from this context share one refresh.
	tok, refreshErr, _ := t.sf.Do("refresh", func() (any, error) {
		return t.refresh(req.Context())
	})
	if refreshErr != nil {
		t.Auth.expireSession()
		return resp, nil
	}

	resp.Body.Close()
	return t.send(req, tok.(string))
}

func (t *Transport) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}

func (t *Transport) refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.RefreshURL, nil)
	if err != nil {
		return "", err
	}

	client := t.RefreshClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ErrRefreshFailed
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		return "", ErrRefreshFailed
	}

	t.Auth.SetAccessToken(body.AccessToken)
	return body.AccessToken, nil
}

// replayable reports whether the request body can be replayed for the
// single retry. Bodyless requests always are; others need GetBody.
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
