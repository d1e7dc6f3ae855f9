package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jzupan/clubmgr/internal/models"
	pkgauth "github.com/jzupan/clubmgr/pkg/auth"
)

// UserService handles account management outside the login flow.
type UserService struct {
	users    UserRepository
	verifier PasswordVerifier
	audit    AuditRecorder
	logger   *slog.Logger

	hashCost       int
	minPasswordLen int
}

// NewUserService creates a new UserService. hashCost and minPasswordLen come
// from configuration; every hash this service produces uses them.
func NewUserService(users UserRepository, verifier PasswordVerifier, audit AuditRecorder, hashCost, minPasswordLen int, logger *slog.Logger) *UserService {
	return &UserService{
		users:          users,
		verifier:       verifier,
		audit:          audit,
		logger:         logger,
		hashCost:       hashCost,
		minPasswordLen: minPasswordLen,
	}
}

// Get returns a single user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// EnsureAdmin creates the bootstrap administrator account on first start.
// The configured password is only hashed when the account does not exist yet;
// changing the environment variable later does not rotate the password.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}

	hash, err := pkgauth.HashPasswordCost(password, s.hashCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		DisplayName:  "Administrator",
		Active:       true,
	}

	if _, err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	s.logger.Info("bootstrap admin account created", slog.String("username", username))
	return nil
}

// ChangeDisplayName updates the name shown on the profile. Not a security
// event, so it is not audited.
func (s *UserService) ChangeDisplayName(ctx context.Context, userID, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if len([]rune(displayName)) > 255 {
		return fmt.Errorf("display name too long: %w", models.ErrBadRequest)
	}

	if err := s.users.UpdateDisplayName(ctx, userID, displayName); err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}
	return nil
}

// ChangePassword swaps the password after verifying the current one and
// checking the new one against the policy.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next, address string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.verifier.Compare(user.PasswordHash, current); err != nil {
		return fmt.Errorf("current password incorrect: %w", models.ErrUnauthorized)
	}

	if err := pkgauth.ValidatePasswordMin(next, s.minPasswordLen); err != nil {
		return err
	}

	hash, err := pkgauth.HashPasswordCost(next, s.hashCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.audit.Record(ctx, &user.Username, models.AuditPasswordChanged, "password changed", address)
	return nil
}
