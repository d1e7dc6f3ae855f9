package models

import "time"

// Audit event kinds written by the authentication core.
const (
	AuditLoginOK            = "login_ok"
	AuditLoginFail          = "login_fail"
	AuditLogin2FAPending    = "login_2fa_pending"
	AuditLogin2FAFail       = "login_2fa_fail"
	AuditLogin2FATrusted    = "login_2fa_trusted"
	AuditLogin2FATrustedNew = "login_2fa_trusted_new"
	AuditLogout             = "logout"
	AuditTwoFactorEnabled   = "2fa_enabled"
	AuditTwoFactorDisabled  = "2fa_disabled"
	AuditPasswordChanged    = "password_changed"
)

// AuditEntry is an append-only record of a security-relevant event.
// Username is nil for events against unknown accounts only when the submitted
// value itself is unavailable; failed logins keep the submitted username.
type AuditEntry struct {
	ID          int64
	OccurredAt  time.Time
	Username    *string
	Address     string
	Kind        string
	Description string
}
