package models

import "time"

// TrustedDevice is a "remember this device" grant that lets a user skip the
// second factor. Only the SHA-256 hash of the bearer token is stored; the raw
// token lives exclusively in the client cookie.
type TrustedDevice struct {
	ID        string
	UserID    string
	TokenHash string
	UserAgent string // truncated client descriptor, informational only
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the grant is past its expiry at the given instant.
func (d *TrustedDevice) Expired(now time.Time) bool {
	return !d.ExpiresAt.After(now)
}
