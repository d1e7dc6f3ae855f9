package models

import (
	"time"
)

// Roles a user account can hold.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleReader = "reader"
)

type User struct {
	ID           string
	Username     string // unique, case-sensitive, immutable
	PasswordHash string
	Role         string
	DisplayName  string
	Active       bool
	TOTPSecret   string // empty unless enrollment completed
	TOTPEnabled  bool
	CreatedAt    time.Time
}

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
