package domain

import "time"

// Session is a cookie-scheme login. The cookie carries an opaque token and
// only its fingerprint is stored.
type Session struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// RefreshToken is a bearer-scheme refresh credential. Tokens rotate on use;
// a revoked token is never accepted again.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
