package models

import "time"

// LoginAttempt is a single failed credential or OTP check, recorded for the
// sliding-window throttle. Rows are only meaningful in aggregate and are
// purged once they age out of the lockout window.
type LoginAttempt struct {
	ID          int64
	Address     string
	AttemptedAt time.Time
}
