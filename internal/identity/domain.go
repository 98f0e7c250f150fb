// Package identity manages user accounts, credentials, and API tokens.
package identity

import (
	"errors"
	"time"
)

// ErrInvalidCredentials covers every login failure so responses never reveal
// whether the email exists.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is an authenticated account. Field agents additionally own a row in
// the agents table linked by UserID.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Token is an issued bearer token. Only the SHA-256 hash is stored.
type Token struct {
	Hash      string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
