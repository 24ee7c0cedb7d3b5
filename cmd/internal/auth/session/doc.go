// Package session implements PTW's hybrid session architecture.
//
// A successful login produces two credentials: an opaque server-session id
// (HTTP-only cookie, 2h sliding TTL, backed by Redis or memory) and a JWT
// pair (15m access token in the response body, 7d refresh token in an
// HTTP-only cookie scoped to /api). A refresh token is valid only while its
// jti matches the account's stored refresh-token id; every refresh rotates
// the jti, so exactly one refresh lineage is live per account.
//
// The Coordinator enforces the single-active-session invariant: a login
// probes the session store for the account's bound session and either
// reports a conflict or, with force, evicts the prior session.
//
// Transport (cookies, status codes) is intentionally out of scope here.
package session
