package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Coordinator outcome counters. Labels are closed sets so cardinality stays flat.
var (
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptw_auth_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"result"}) // success, forced, conflict, invalid, inactive, error

	refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptw_auth_refreshes_total",
		Help: "Refresh-token rotations by outcome.",
	}, []string{"result"}) // rotated, revoked, invalid, error

	logoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptw_auth_logouts_total",
		Help: "Logouts by path.",
	}, []string{"path"}) // session, token_only, anonymous

	tokenIssueFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptw_auth_token_issue_failures_total",
		Help: "Logins that succeeded cookie-only because token issuance failed.",
	})
)
