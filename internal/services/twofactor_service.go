package services

import (
	"context"
	"fmt"
	"log/slog"

	internalauth "github.com/jzupan/clubmgr/internal/auth"
	"github.com/jzupan/clubmgr/internal/models"
)

// TwoFactorService handles enrollment and removal of the second factor.
type TwoFactorService struct {
	users  UserRepository
	totp   *internalauth.TOTPManager
	otp    OTPValidator
	audit  AuditRecorder
	logger *slog.Logger
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(
	users UserRepository,
	totp *internalauth.TOTPManager,
	otp OTPValidator,
	audit AuditRecorder,
	logger *slog.Logger,
) *TwoFactorService {
	return &TwoFactorService{
		users:  users,
		totp:   totp,
		otp:    otp,
		audit:  audit,
		logger: logger,
	}
}

// StartEnrollment generates a fresh secret and QR code for the user. The
// secret is not active yet; the caller parks it until ConfirmEnrollment.
func (s *TwoFactorService) StartEnrollment(ctx context.Context, userID string) (*internalauth.Enrollment, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TOTPEnabled {
		return nil, fmt.Errorf("two-factor already enabled: %w", models.ErrConflict)
	}

	return s.totp.GenerateEnrollment(user.Username)
}

// ConfirmEnrollment activates the parked secret once the user proves their
// authenticator produces valid codes for it.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, userID, secret, code, address string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPEnabled {
		return fmt.Errorf("two-factor already enabled: %w", models.ErrConflict)
	}
	if secret == "" {
		return fmt.Errorf("no enrollment in progress: %w", models.ErrBadRequest)
	}

	if !s.otp.Validate(secret, code) {
		return fmt.Errorf("invalid one-time code: %w", models.ErrUnauthorized)
	}

	if err := s.users.UpdateTOTP(ctx, userID, secret, true); err != nil {
		return fmt.Errorf("failed to enable two-factor: %w", err)
	}

	s.audit.Record(ctx, &user.Username, models.AuditTwoFactorEnabled, "two-factor authentication enabled", address)
	return nil
}

// Disable turns the second factor off. A valid current code is required so
// the factor cannot be removed without possession of the authenticator. The
// secret wipe and the revocation of every trusted-device grant commit in one
// transaction; a re-enrollment starts from zero trust.
func (s *TwoFactorService) Disable(ctx context.Context, userID, code, address string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		return fmt.Errorf("two-factor not enabled: %w", models.ErrBadRequest)
	}

	if !s.otp.Validate(user.TOTPSecret, code) {
		return fmt.Errorf("invalid one-time code: %w", models.ErrUnauthorized)
	}

	revoked, err := s.users.DisableTOTP(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}
	if revoked > 0 {
		s.logger.Info("revoked trusted devices",
			slog.String("user_id", userID),
			slog.Int64("count", revoked),
		)
	}

	s.audit.Record(ctx, &user.Username, models.AuditTwoFactorDisabled, "two-factor authentication disabled", address)
	return nil
}
