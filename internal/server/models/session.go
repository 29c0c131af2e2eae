package models

import "time"

// RefreshSession is one step of a refresh-token rotation chain, keyed by the
// token's jti. Sessions are revoked, never deleted: redeeming a session sets
// RevokedAt and links forward to its replacement via ReplacedByJTI.
type RefreshSession struct {
	JTI           string
	UserID        string
	ExpiresAt     time.Time
	CreatedAt     time.Time
	RevokedAt     *time.Time
	ReplacedByJTI string
}

// Revoked reports whether the session has been revoked.
func (s *RefreshSession) Revoked() bool {
	return s.RevokedAt != nil
}

// Expired reports whether the session expiry has passed at time now.
func (s *RefreshSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
