package users

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser loads one user. Non-admins can only read themselves.
func (s *Service) GetUser(ctx context.Context, id int64, actor shared.Actor) (User, error) {
	if !actor.IsAdmin() && actor.ID != id {
		return User{}, ErrNotOwner
	}
	return s.repo.FindByID(ctx, id)
}

// UpdateUser applies req. Users may edit themselves; admins may edit anyone and are the
// only ones allowed to change roles or deactivate accounts.
func (s *Service) UpdateUser(ctx context.Context, id int64, req UpdateRequest, actor shared.Actor) (User, error) {
	if !actor.IsAdmin() && actor.ID != id {
		return User{}, ErrNotOwner
	}
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if req.Name != nil {
		u.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Role != nil && *req.Role != u.Role {
		if !actor.IsAdmin() {
			return User{}, ErrRoleAdminOnly
		}
		if !ValidRole(*req.Role) {
			return User{}, shared.FieldError("role", "must be admin or seller")
		}
		u.Role = *req.Role
	}
	if req.IsActive != nil && *req.IsActive != u.IsActive {
		if !actor.IsAdmin() {
			return User{}, ErrRoleAdminOnly
		}
		u.IsActive = *req.IsActive
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			return User{}, shared.FieldError("password", "must be at least 6 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, err
		}
		u.PasswordHash = string(hash)
	}
	if u.Name == "" {
		return User{}, shared.FieldError("name", "is required")
	}
	return s.repo.UpdateUser(ctx, u)
}

// DeleteUser removes an account other than the actor's own.
func (s *Service) DeleteUser(ctx context.Context, id int64, actor shared.Actor) error {
	if actor.ID == id {
		return ErrSelfDelete
	}
	return s.repo.DeleteUser(ctx, id)
}
