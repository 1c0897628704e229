// Package users manages back-office accounts.
package users

import (
	"time"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// User represents a user account for management.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Actor converts the user into the request principal.
func (u User) Actor() shared.Actor {
	return shared.Actor{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// UpdateRequest changes the non-nil fields.
type UpdateRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=6"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin seller"`
	IsActive *bool   `json:"isActive"`
}

var (
	// ErrUserNotFound indicates an unknown user id or email.
	ErrUserNotFound = shared.NewError(shared.ErrNotFound, "users: user not found")
	// ErrDuplicateEmail indicates the email is taken.
	ErrDuplicateEmail = shared.NewError(shared.ErrConflict, "users: email already registered")
	// ErrSelfDelete blocks an admin from deleting their own account.
	ErrSelfDelete = shared.NewError(shared.ErrBusinessRule, "users: cannot delete your own account")
	// ErrRoleAdminOnly is returned when a non-admin changes a role.
	ErrRoleAdminOnly = shared.NewError(shared.ErrForbidden, "users: only admins may change roles")
	// ErrNotOwner is returned when a non-admin edits someone else.
	ErrNotOwner = shared.NewError(shared.ErrForbidden, "users: cannot edit another user")
)

// ValidRole reports whether role is assignable.
func ValidRole(role string) bool {
	return role == shared.RoleAdmin || role == shared.RoleSeller
}
