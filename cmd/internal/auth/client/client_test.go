package authclient

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func reloadRecorder() (func(EventType), *[]EventType, *sync.Mutex) {
	var mu sync.Mutex
	var got []EventType
	return func(reason EventType) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, reason)
	}, &got, &mu
}

// Tab A logs out; tab B (same account) reloads. The publishing tab never
// reacts to its own event.
func TestCrossTab_LogoutReloadsOtherTab(t *testing.T) {
	ch := NewMemoryBroadcaster()

	reloadA, gotA, muA := reloadRecorder()
	tabA := NewAuthContext(ContextConfig{Channel: ch, OnReload: reloadA})
	tabA.Init()
	defer tabA.Dispose()

	reloadB, gotB, muB := reloadRecorder()
	tabB := NewAuthContext(ContextConfig{Channel: ch, OnReload: reloadB})
	tabB.Init()
	defer tabB.Dispose()

	tabA.SetAuthenticated("user-x", "tok-a")
	tabB.SetAuthenticated("user-x", "tok-b")

	tabA.Logout()

	muB.Lock()
	if len(*gotB) == 0 || (*gotB)[len(*gotB)-1] != EventLogout {
		muB.Unlock()
		t.Fatalf("tab B reloads = %v, want trailing logout", *gotB)
	}
	muB.Unlock()
	if tabB.Token() != "" {
		t.Fatalf("tab B token should be cleared on cross-tab logout")
	}

	muA.Lock()
	defer muA.Unlock()
	for _, r := range *gotA {
		if r == EventLogout {
			t.Fatalf("tab A reacted to its own logout")
		}
	}
}

// A login for a different account reloads other tabs; the same account
// does not.
func TestCrossTab_LoginReloadPolicy(t *testing.T) {
	ch := NewMemoryBroadcaster()

	tabA := NewAuthContext(ContextConfig{Channel: ch})
	tabA.Init()
	defer tabA.Dispose()

	reloadB, gotB, muB := reloadRecorder()
	tabB := NewAuthContext(ContextConfig{Channel: ch, OnReload: reloadB})
	tabB.Init()
	defer tabB.Dispose()
	tabB.SetAuthenticated("user-y", "tok-b")

	// Same account: no reaction.
	tabA.SetAuthenticated("user-y", "tok-a")
	muB.Lock()
	if len(*gotB) != 0 {
		muB.Unlock()
		t.Fatalf("tab B reloaded for same-account login: %v", *gotB)
	}
	muB.Unlock()

	// Different account: reload.
	tabA.SetAuthenticated("user-x", "tok-a2")
	muB.Lock()
	defer muB.Unlock()
	if len(*gotB) != 1 || (*gotB)[0] != EventLogin {
		t.Fatalf("tab B reloads = %v, want [login]", *gotB)
	}
}

func TestDispose_StopsEvents(t *testing.T) {
	ch := NewMemoryBroadcaster()

	tabA := NewAuthContext(ContextConfig{Channel: ch})
	tabA.Init()
	defer tabA.Dispose()

	reloadB, gotB, muB := reloadRecorder()
	tabB := NewAuthContext(ContextConfig{Channel: ch, OnReload: reloadB})
	tabB.Init()
	tabB.Dispose()

	tabA.Logout()

	muB.Lock()
	defer muB.Unlock()
	if len(*gotB) != 0 {
		t.Fatalf("disposed tab still received events: %v", *gotB)
	}
}

func TestTransport_AttachesBearer(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	auth := NewAuthContext(ContextConfig{})
	auth.SetAuthenticated("user-x", "tok-1")

	client := &http.Client{Transport: &Transport{Auth: auth}}
	resp, err := client.Get(srv.URL + "/api/profile")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got != "Bearer tok-1" {
		t.Fatalf("Authorization = %q", got)
	}
}

// Concurrent 401s share exactly one refresh, and every request succeeds
// after the single retry.
func TestTransport_SingleFlightRefresh(t *testing.T) {
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accessToken":"fresh"}`))
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	auth := NewAuthContext(ContextConfig{})
	auth.SetAuthenticated("user-x", "stale")

	client := &http.Client{Transport: &Transport{
		Auth:          auth,
		RefreshURL:    srv.URL + "/api/refresh-token",
		RefreshClient: srv.Client(),
	}}

	const n = 5
	var wg sync.WaitGroup
	statuses := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(srv.URL + "/api/data")
			if err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i, code := range statuses {
		if code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, code)
		}
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	if auth.Token() != "fresh" {
		t.Fatalf("token = %q, want rotated token", auth.Token())
	}
}

// A failed refresh is terminal: clear the token, broadcast the expiry and
// fire the redirect hook after the delay.
func TestTransport_RefreshFailureExpiresSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ch := NewMemoryBroadcaster()
	expired := make(chan struct{}, 1)
	auth := NewAuthContext(ContextConfig{
		Channel:              ch,
		OnSessionExpired:     func() { expired <- struct{}{} },
		ExpiredRedirectDelay: 10 * time.Millisecond,
	})
	auth.Init()
	defer auth.Dispose()
	auth.SetAuthenticated("user-x", "stale")

	otherTab := make(chan Event, 1)
	sub := ch.Subscribe(func(ev Event) { otherTab <- ev })
	defer sub.Close()

	client := &http.Client{Transport: &Transport{
		Auth:          auth,
		RefreshURL:    srv.URL + "/api/refresh-token",
		RefreshClient: srv.Client(),
	}}

	resp, err := client.Get(srv.URL + "/api/data")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want the original 401", resp.StatusCode)
	}

	if auth.Token() != "" {
		t.Fatalf("token should be cleared after failed refresh")
	}
	select {
	case ev := <-otherTab:
		if ev.Type != EventSessionExpired || ev.UserID != "user-x" {
			t.Fatalf("broadcast = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected session_expired broadcast")
	}
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatalf("expected redirect hook after delay")
	}
}

// The 440 signal routes to the revoked hook without touching the refresh
// path.
func TestTransport_SessionRevokedSignal(t *testing.T) {
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(StatusSessionRevoked)
		_, _ = w.Write([]byte(`{"code":"SESSION_REVOKED","message":"Your session was ended on this device."}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	revoked := make(chan struct{}, 1)
	auth := NewAuthContext(ContextConfig{
		OnSessionRevoked: func() { revoked <- struct{}{} },
	})
	auth.SetAuthenticated("user-x", "tok")

	client := &http.Client{Transport: &Transport{
		Auth:          auth,
		RefreshURL:    srv.URL + "/api/refresh-token",
		RefreshClient: srv.Client(),
	}}

	resp, err := client.Get(srv.URL + "/api/data")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != StatusSessionRevoked {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	select {
	case <-revoked:
	case <-time.After(time.Second):
		t.Fatalf("expected revoked hook")
	}
	if auth.Token() != "" {
		t.Fatalf("token should be cleared on revocation")
	}
	if refreshCalls.Load() != 0 {
		t.Fatalf("440 must not trigger a refresh")
	}
}
