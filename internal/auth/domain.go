// Package auth issues and verifies bearer tokens for back-office users.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/kassa/internal/shared"
	"github.com/odyssey-erp/kassa/internal/users"
)

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=admin seller"`
}

// LoginRequest carries credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ClientMeta describes the caller for the session log.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Session is returned by register and login.
type Session struct {
	User      users.User `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Claims is the JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var (
	// ErrInvalidToken indicates a missing, malformed, expired or revoked token.
	ErrInvalidToken = shared.NewError(shared.ErrUnauthorized, "auth: invalid token")
	// ErrAdminRegistration is returned when a non-admin registers an admin account.
	ErrAdminRegistration = shared.NewError(shared.ErrForbidden, "auth: only admins may create admin accounts")
)
