package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is an account row. Email is unique case-insensitively. PasswordHash
// is an opaque credential produced by the password hasher; it is never
// exposed outside the service layer.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	LastSeenAt   time.Time
}
