package authclient

import (
	"sync"
	"time"
)

// defaultExpiredRedirectDelay gives the expired-session notice time to
// render before the redirect hook fires.
const defaultExpiredRedirectDelay = 1500 * time.Millisecond

// ContextConfig configures an AuthContext.
type ContextConfig struct {
	Storage TokenStorage
	Channel Broadcaster

	// OnReload stands in for a full page reload forced by another tab.
	// The reason is the broadcast event type that caused it.
	OnReload func(reason EventType)

	// OnSessionExpired is the redirect hook invoked (after the delay)
	// when a refresh attempt fails terminally.
	OnSessionExpired func()

	// OnSessionRevoked is invoked when the server signals that this
	// device's session was ended (forced takeover elsewhere).
	OnSessionRevoked func()

	ExpiredRedirectDelay time.Duration
}

// AuthContext owns one browsing context's auth state: the tab-scoped
// access token, the single in-flight refresh, and the subscription to the
// cross-tab channel. It replaces what would otherwise be module-level
// mutable state.
type AuthContext struct {
	cfg ContextConfig

	mu     sync.Mutex
	userID string
	sub    *Subscription

	// timers pending at Dispose time are cancelled.
	timers []*time.Timer
}

// NewAuthContext builds an AuthContext. Call Init before use and Dispose
// when the context goes away.
func NewAuthContext(cfg ContextConfig) *AuthContext {
	if cfg.Storage == nil {
		cfg.Storage = NewMemoryTokenStorage()
	}
	if cfg.ExpiredRedirectDelay <= 0 {
		cfg.ExpiredRedirectDelay = defaultExpiredRedirectDelay
	}
	return &AuthContext{cfg: cfg}
}

// Init subscribes to the cross-tab channel. Reload policy:
//   - logout and session_expired from another tab always reload,
//   - login reloads only when the account differs from this context's.
func (c *AuthContext) Init() {
	if c.cfg.Channel == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return
	}
	c.sub = c.cfg.Channel.Subscribe(c.onEvent)
}

// Dispose drops the subscription and cancels pending redirect timers.
func (c *AuthContext) Dispose() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	for _, tm := range timers {
		tm.Stop()
	}
}

// Token returns the current access token ("" when signed out).
func (c *AuthContext) Token() string { return c.cfg.Storage.Token() }

// UserID returns the account this context is authenticated as.
func (c *AuthContext) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// SetAuthenticated records a successful login in this context and
// announces it to the other tabs.
func (c *AuthContext) SetAuthenticated(userID, accessToken string) {
	c.cfg.Storage.SetToken(accessToken)
	c.mu.Lock()
	c.userID = userID
	sub := c.sub
	c.mu.Unlock()

	if sub != nil {
		sub.Publish(Event{Type: EventLogin, UserID: userID})
	}
}

// SetAccessToken replaces the token after a silent refresh. No broadcast:
// other tabs refresh on their own schedule.
func (c *AuthContext) SetAccessToken(accessToken string) {
	c.cfg.Storage.SetToken(accessToken)
}

// Logout clears this context and announces the logout.
func (c *AuthContext) Logout() {
	c.cfg.Storage.Clear()
	c.mu.Lock()
	userID := c.userID
	c.userID = ""
	sub := c.sub
	c.mu.Unlock()

	if sub != nil {
		sub.Publish(Event{Type: EventLogout, UserID: userID})
	}
}

// expireSession handles a terminal refresh failure: clear the token,
// announce the expiry, and schedule the redirect hook.
func (c *AuthContext) expireSession() {
	c.cfg.Storage.Clear()
	c.mu.Lock()
	userID := c.userID
	c.userID = ""
	sub := c.sub
	c.mu.Unlock()

	if sub != nil {
		sub.Publish(Event{Type: EventSessionExpired, UserID: userID})
	}
	if c.cfg.OnSessionExpired != nil {
		tm := time.AfterFunc(c.cfg.ExpiredRedirectDelay, c.cfg.OnSessionExpired)
		c.mu.Lock()
		c.timers = append(c.timers, tm)
		c.mu.Unlock()
	}
}

// sessionRevoked handles the server's 440 signal: the session on this
// device was ended elsewhere. Independent of the refresh path.
func (c *AuthContext) sessionRevoked() {
	c.cfg.Storage.Clear()
	c.mu.Lock()
	c.userID = ""
	c.mu.Unlock()

	if c.cfg.OnSessionRevoked != nil {
		c.cfg.OnSessionRevoked()
	}
}

func (c *AuthContext) onEvent(ev Event) {
	switch ev.Type {
	case EventLogout, EventSessionExpired:
		c.cfg.Storage.Clear()
		c.reload(ev.Type)
	case EventLogin:
		// Same account signing in again elsewhere is not a state change
		// this tab needs to react to.
		c.mu.Lock()
		same := ev.UserID != "" && ev.UserID == c.userID
		c.mu.Unlock()
		if !same {
			c.reload(ev.Type)
		}
	}
}

func (c *AuthContext) reload(reason EventType) {
	if c.cfg.OnReload != nil {
		c.cfg.OnReload(reason)
	}
}
