package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	internalauth "github.com/jzupan/clubmgr/internal/auth"
	"github.com/jzupan/clubmgr/internal/models"
	"github.com/jzupan/clubmgr/internal/session"
	pkgauth "github.com/jzupan/clubmgr/pkg/auth"
)

// UserRepository defines the user persistence surface the services need
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	UpdateTOTP(ctx context.Context, id, secret string, enabled bool) error
	UpdateDisplayName(ctx context.Context, id, displayName string) error
	DisableTOTP(ctx context.Context, id string) (int64, error)
}

// TrustedDeviceRepository defines persistence for remember-device grants
type TrustedDeviceRepository interface {
	Create(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error)
	GetByUserAndHash(ctx context.Context, userID, tokenHash string) (*models.TrustedDevice, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// RateLimiter gates authentication attempts by client address
type RateLimiter interface {
	Allow(ctx context.Context, address string) bool
	RecordFailure(ctx context.Context, address string)
}

// PasswordVerifier abstracts the hash comparison so tests can observe that
// every code path performs exactly one verification.
type PasswordVerifier interface {
	Compare(hash, password string) error
	CompareDummy(password string)
}

// OTPValidator checks a one-time code against a shared secret
type OTPValidator interface {
	Validate(secret, code string) bool
}

// BcryptVerifier is the production PasswordVerifier
type BcryptVerifier struct{}

func (BcryptVerifier) Compare(hash, password string) error {
	return pkgauth.ComparePassword(hash, password)
}

func (BcryptVerifier) CompareDummy(password string) {
	pkgauth.CompareDummy(password)
}

// PasswordOutcome is the result of a password submission
type PasswordOutcome int

const (
	PasswordRateLimited PasswordOutcome = iota
	PasswordInvalid
	PasswordAuthenticated
	PasswordAwaiting2FA
)

// OTPOutcome is the result of a one-time-code submission
type OTPOutcome int

const (
	OTPRateLimited OTPOutcome = iota
	OTPNoPending
	OTPInvalid
	OTPAuthenticated
)

// PasswordLogin carries everything a password submission needs
type PasswordLogin struct {
	Username    string
	Password    string
	DeviceToken string // raw remember-device cookie value, may be empty
	UserAgent   string
	Address     string
}

// OTPLogin carries a one-time-code submission
type OTPLogin struct {
	Code           string
	RememberDevice bool
	UserAgent      string
	Address        string
}

// OTPResult is returned on a successful code submission. NewDeviceToken is
// non-empty only when the user asked to remember the device; the caller puts
// it in the cookie.
type OTPResult struct {
	Outcome        OTPOutcome
	Session        *session.Session
	NewDeviceToken string
}

// LoginService drives the password and second-factor steps of signing in.
type LoginService struct {
	users    UserRepository
	devices  TrustedDeviceRepository
	limiter  RateLimiter
	audit    AuditRecorder
	sessions *session.Manager
	verifier PasswordVerifier
	otp      OTPValidator
	timing   *internalauth.TimingDelay

	deviceTTL time.Duration
	logger    *slog.Logger
}

// NewLoginService creates a new LoginService
func NewLoginService(
	users UserRepository,
	devices TrustedDeviceRepository,
	limiter RateLimiter,
	audit AuditRecorder,
	sessions *session.Manager,
	verifier PasswordVerifier,
	otp OTPValidator,
	timing *internalauth.TimingDelay,
	deviceTTL time.Duration,
	logger *slog.Logger,
) *LoginService {
	return &LoginService{
		users:     users,
		devices:   devices,
		limiter:   limiter,
		audit:     audit,
		sessions:  sessions,
		verifier:  verifier,
		otp:       otp,
		timing:    timing,
		deviceTTL: deviceTTL,
		logger:    logger,
	}
}

// SubmitPassword runs the first step of the login state machine. On any
// outcome that changes privilege the old session is destroyed and a fresh one
// returned; the caller must re-set the session cookie from the returned
// session.
//
// A rate-limited attempt is rejected before any credential work: nothing is
// verified, recorded, or audited for it.
func (s *LoginService) SubmitPassword(ctx context.Context, sess *session.Session, input PasswordLogin) (PasswordOutcome, *session.Session, error) {
	started := time.Now()

	if !s.limiter.Allow(ctx, input.Address) {
		return PasswordRateLimited, sess, nil
	}

	user, err := s.users.GetByUsername(ctx, input.Username)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return PasswordInvalid, sess, err
	}

	if user == nil || !user.Active {
		// Burn a verification so an unknown or disabled username costs the
		// same as a wrong password.
		s.verifier.CompareDummy(input.Password)
		return s.failPassword(ctx, input, started), sess, nil
	}

	if err := s.verifier.Compare(user.PasswordHash, input.Password); err != nil {
		return s.failPassword(ctx, input, started), sess, nil
	}

	identity := session.Identity{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		DisplayName: user.Name(),
	}

	if user.TOTPEnabled {
		if input.DeviceToken != "" {
			hash := internalauth.HashDeviceToken(input.DeviceToken)
			if _, err := s.devices.GetByUserAndHash(ctx, user.ID, hash); err == nil {
				fresh, err := s.sessions.Rotate(sess)
				if err != nil {
					return PasswordInvalid, sess, err
				}
				fresh.SetAuthenticated(identity)
				s.audit.Record(ctx, &user.Username, models.AuditLogin2FATrusted, "signed in, second factor skipped for trusted device", input.Address)
				return PasswordAuthenticated, fresh, nil
			}
		}

		fresh, err := s.sessions.Rotate(sess)
		if err != nil {
			return PasswordInvalid, sess, err
		}
		fresh.SetAwaiting2FA(identity)
		s.audit.Record(ctx, &user.Username, models.AuditLogin2FAPending, "password accepted, awaiting one-time code", input.Address)
		return PasswordAwaiting2FA, fresh, nil
	}

	fresh, err := s.sessions.Rotate(sess)
	if err != nil {
		return PasswordInvalid, sess, err
	}
	fresh.SetAuthenticated(identity)
	s.audit.Record(ctx, &user.Username, models.AuditLoginOK, "signed in", input.Address)
	return PasswordAuthenticated, fresh, nil
}

func (s *LoginService) failPassword(ctx context.Context, input PasswordLogin, started time.Time) PasswordOutcome {
	s.limiter.RecordFailure(ctx, input.Address)
	s.audit.Record(ctx, &input.Username, models.AuditLoginFail, "invalid username or password", input.Address)
	s.timing.WaitFrom(started)
	return PasswordInvalid
}

// SubmitOTP runs the second step of the login state machine for sessions
// parked in the awaiting state.
func (s *LoginService) SubmitOTP(ctx context.Context, sess *session.Session, input OTPLogin) (OTPResult, error) {
	started := time.Now()

	identity, bound := sess.Identity()
	if !bound || sess.State() != session.StateAwaiting2FA {
		return OTPResult{Outcome: OTPNoPending, Session: sess}, nil
	}

	if !s.limiter.Allow(ctx, input.Address) {
		return OTPResult{Outcome: OTPRateLimited, Session: sess}, nil
	}

	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		sess.Clear()
		return OTPResult{Outcome: OTPNoPending, Session: sess}, nil
	}
	if !user.Active || !user.TOTPEnabled {
		// Account changed under the pending session; treat as no pending login
		sess.Clear()
		return OTPResult{Outcome: OTPNoPending, Session: sess}, nil
	}

	if !s.otp.Validate(user.TOTPSecret, input.Code) {
		s.limiter.RecordFailure(ctx, input.Address)
		s.audit.Record(ctx, &user.Username, models.AuditLogin2FAFail, "invalid one-time code", input.Address)
		s.timing.WaitFrom(started)
		return OTPResult{Outcome: OTPInvalid, Session: sess}, nil
	}

	fresh, err := s.sessions.Rotate(sess)
	if err != nil {
		return OTPResult{Outcome: OTPInvalid, Session: sess}, err
	}
	fresh.SetAuthenticated(identity)
	s.audit.Record(ctx, &user.Username, models.AuditLoginOK, "signed in with one-time code", input.Address)

	var newToken string
	if input.RememberDevice {
		token, err := pkgauth.GenerateDeviceToken()
		if err != nil {
			s.logger.Error("failed to generate device token", slog.Any("error", err))
		} else {
			device := &models.TrustedDevice{
				UserID:    user.ID,
				TokenHash: internalauth.HashDeviceToken(token),
				UserAgent: internalauth.TruncateUserAgent(input.UserAgent),
				ExpiresAt: time.Now().Add(s.deviceTTL),
			}
			if _, err := s.devices.Create(ctx, device); err != nil {
				s.logger.Error("failed to store trusted device", slog.Any("error", err))
			} else {
				newToken = token
				s.audit.Record(ctx, &user.Username, models.AuditLogin2FATrustedNew, "device remembered", input.Address)
			}
		}
	}

	return OTPResult{Outcome: OTPAuthenticated, Session: fresh, NewDeviceToken: newToken}, nil
}

// Logout drops the session. Trusted-device grants survive a logout; they
// expire on their own schedule.
func (s *LoginService) Logout(ctx context.Context, sess *session.Session, address string) {
	if identity, bound := sess.Identity(); bound {
		s.audit.Record(ctx, &identity.Username, models.AuditLogout, "signed out", address)
	}
	s.sessions.Destroy(sess.ID())
}
