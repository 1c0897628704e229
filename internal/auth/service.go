package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/kassa/internal/shared"
	"github.com/odyssey-erp/kassa/internal/users"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	FindByID(ctx context.Context, id int64) (users.User, error)
	CreateUser(ctx context.Context, u users.User) (users.User, error)
	CountUsers(ctx context.Context) (int, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	SessionActive(ctx context.Context, id string) (bool, error)
	DeleteSession(ctx context.Context, id string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenIssuer
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Register creates an account and signs the caller in. Admin accounts can only be
// created by an admin, except for the very first account.
func (s *Service) Register(ctx context.Context, req RegisterRequest, actor *shared.Actor, meta ClientMeta) (Session, error) {
	role := req.Role
	if role == "" {
		role = shared.RoleSeller
	}
	if role == shared.RoleAdmin && (actor == nil || !actor.IsAdmin()) {
		n, err := s.repo.CountUsers(ctx)
		if err != nil {
			return Session{}, err
		}
		if n > 0 {
			return Session{}, ErrAdminRegistration
		}
	}
	if len(req.Password) < 6 {
		return Session{}, shared.FieldError("password", "must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, err
	}
	user, err := s.repo.CreateUser(ctx, users.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		return Session{}, err
	}
	return s.startSession(ctx, user, meta)
}

// Login validates credentials and issues a token.
func (s *Service) Login(ctx context.Context, req LoginRequest, meta ClientMeta) (Session, error) {
	user, err := s.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return Session{}, err
	}
	return s.startSession(ctx, user, meta)
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// VerifyActor re-checks the password of an already authenticated user. Destructive
// operations call it before they run.
func (s *Service) VerifyActor(ctx context.Context, actorID int64, secret string) error {
	user, err := s.repo.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrInvalidCredentials
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)); err != nil {
		return shared.ErrInvalidCredentials
	}
	return nil
}

// ResolveToken verifies raw and loads the user it was issued to. Tokens of deleted or
// deactivated users and of logged-out sessions are rejected.
func (s *Service) ResolveToken(ctx context.Context, raw string) (users.User, Claims, error) {
	claims, userID, err := s.tokens.Parse(raw)
	if err != nil {
		return users.User{}, Claims{}, err
	}
	active, err := s.repo.SessionActive(ctx, claims.ID)
	if err != nil {
		return users.User{}, Claims{}, err
	}
	if !active {
		return users.User{}, Claims{}, ErrInvalidToken
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return users.User{}, Claims{}, ErrInvalidToken
		}
		return users.User{}, Claims{}, err
	}
	if !user.IsActive {
		return users.User{}, Claims{}, ErrInvalidToken
	}
	return user, claims, nil
}

// Me loads the current user.
func (s *Service) Me(ctx context.Context, id int64) (users.User, error) {
	return s.repo.FindByID(ctx, id)
}

// Logout revokes the session behind a token.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.repo.DeleteSession(ctx, sessionID)
}

func (s *Service) startSession(ctx context.Context, user users.User, meta ClientMeta) (Session, error) {
	token, jti, expiresAt, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return Session{}, err
	}
	if err := s.repo.CreateSession(ctx, jti, user.ID, expiresAt, meta.IP, meta.UserAgent); err != nil {
		return Session{}, err
	}
	return Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
