package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/custodia-app/custodia/internal/shared"
)

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

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser inserts a new user with a bcrypt-hashed credential.
func (s *Service) CreateUser(ctx context.Context, username, password, displayName string, active bool) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("%w: usuario required", shared.ErrValidation)
	}
	if password == "" {
		return User{}, fmt.Errorf("%w: contrasena required", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	return s.repo.CreateUser(ctx, User{
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayName),
		Active:       active,
	})
}

// UpdateUser updates a user. An empty password keeps the stored hash.
func (s *Service) UpdateUser(ctx context.Context, id int64, username, password, displayName string, active bool) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("%w: usuario required", shared.ErrValidation)
	}
	existing, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	hash := existing.PasswordHash
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, fmt.Errorf("users: hash password: %w", err)
		}
		hash = string(hashed)
	}
	return s.repo.UpdateUser(ctx, User{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
		Active:       active,
	})
}

// DeleteUser hard-deletes a user, returning the removed record.
func (s *Service) DeleteUser(ctx context.Context, id int64) (User, error) {
	return s.repo.DeleteUser(ctx, id)
}

// Authenticate validates username/password credentials. Unknown users,
// inactive accounts and wrong passwords all collapse into
// shared.ErrInvalidCredentials so callers cannot tell which part failed.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return User{}, shared.ErrInvalidCredentials
		}
		return User{}, err
	}
	if !user.Active {
		return User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}
