package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalauth "github.com/jzupan/clubmgr/internal/auth"
	"github.com/jzupan/clubmgr/internal/models"
	"github.com/jzupan/clubmgr/internal/session"
)

const (
	testPassword = "Veljavno1234!ab"
	testOTPCode  = "123456"
)

type loginFixture struct {
	svc      *LoginService
	users    *MockUserRepository
	devices  *MockTrustedDeviceRepository
	limiter  *MockRateLimiter
	audit    *RecordingAudit
	verifier *CountingVerifier
	sessions *session.Manager
}

func newLoginFixture(t *testing.T, user *models.User) *loginFixture {
	t.Helper()

	users := &MockUserRepository{}
	if user != nil {
		users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
			if username == user.Username {
				return user, nil
			}
			return nil, models.ErrNotFound
		}
		users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
			if id == user.ID {
				return user, nil
			}
			return nil, models.ErrNotFound
		}
	}

	limiter := &MockRateLimiter{}
	audit := &RecordingAudit{}
	verifier := &CountingVerifier{ValidPassword: testPassword}
	devices := &MockTrustedDeviceRepository{}
	sessions := session.NewManager(30*time.Minute, time.Hour, testLogger())

	svc := NewLoginService(
		users, devices, limiter, audit, sessions, verifier,
		StubOTP{ValidCode: testOTPCode},
		internalauth.NewTimingDelay(0, 0),
		30*24*time.Hour,
		testLogger(),
	)

	return &loginFixture{
		svc:      svc,
		users:    users,
		devices:  devices,
		limiter:  limiter,
		audit:    audit,
		verifier: verifier,
		sessions: sessions,
	}
}

func plainUser() *models.User {
	return &models.User{
		ID:       "u1",
		Username: "admin",
		Role:     models.RoleAdmin,
		Active:   true,
	}
}

func totpUser() *models.User {
	u := plainUser()
	u.TOTPEnabled = true
	u.TOTPSecret = "JBSWY3DPEHPK3PXP"
	return u
}

func (f *loginFixture) anonSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := f.sessions.Create()
	require.NoError(t, err)
	return sess
}

func passwordInput(username, password string) PasswordLogin {
	return PasswordLogin{
		Username:  username,
		Password:  password,
		UserAgent: "test-agent",
		Address:   "10.0.0.1",
	}
}

func TestSubmitPasswordSuccessWithout2FA(t *testing.T) {
	f := newLoginFixture(t, plainUser())
	sess := f.anonSession(t)
	oldID := sess.ID()

	outcome, fresh, err := f.svc.SubmitPassword(context.Background(), sess, passwordInput("admin", testPassword))
	require.NoError(t, err)

	assert.Equal(t, PasswordAuthenticated, outcome)
	assert.Equal(t, session.StateAuthenticated, fresh.State())
	assert.NotEqual(t, oldID, fresh.ID(), "session ID must rotate on sign-in")

	identity, bound := fresh.Identity()
	require.True(t, bound)
	assert.Equal(t, "admin", identity.Username)

	_, ok := f.sessions.Get(oldID)
	assert.False(t, ok, "pre-login session must be destroyed")

	assert.Equal(t, []string{models.AuditLoginOK}, f.audit.Kinds())
	assert.Zero(t, f.limiter.FailureCount())
}

func TestSubmitPasswordWrongPassword(t *testing.T) {
	f := newLoginFixture(t, plainUser())
	sess := f.anonSession(t)

	outcome, same, err := f.svc.SubmitPassword(context.Background(), sess, passwordInput("admin", "wrong-password"))
	require.NoError(t, err)

	assert.Equal(t, PasswordInvalid, outcome)
	assert.Same(t, sess, same, "failed login keeps the session")
	assert.Equal(t, session.StateAnonymous, same.State())
	assert.Equal(t, 1, f.limiter.FailureCount())
	assert.Equal(t, []string{models.AuditLoginFail}, f.audit.Kinds())
}

func TestSubmitPasswordUnknownUser(t *testing.T) {
	f := newLoginFixture(t, plainUser())
	sess := f.anonSession(t)

	outcome, _, err := f.svc.SubmitPassword(context.Background(), sess, passwordInput("ghost", testPassword))
	require.NoError(t, err)

	assert.Equal(t, PasswordInvalid, outcome)
	assert.Equal(t, 1, f.limiter.FailureCount())

	require.Len(t, f.audit.Entries, 1)
	assert.Equal(t, models.AuditLoginFail, f.audit.Entries[0].Kind)
	require.NotNil(t, f.audit.Entries[0].Username)
	assert.Equal(t, "ghost", *f.audit.Entries[0].Username, "submitted username is kept in the audit record")
}

// Unknown usernames and wrong passwords both cost exactly one hash check.
func TestSubmitPasswordUniformVerificationCost(t *testing.T) {
	f := newLoginFixture(t, plainUser())

	_, _, err := f.svc.SubmitPassword(context.Background(), f.anonSession(t), passwordInput("ghost", "whatever"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.verifier.TotalVerifications())
	assert.Equal(t, 1, f.verifier.DummyCalls)

	_, _, err = f.svc.SubmitPassword(context.Background(), f.anonSession(t), passwordInput("admin", "wrong"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.verifier.TotalVerifications())
	assert.Equal(t, 1, f.verifier.Compares)
}

func TestSubmitPasswordInactiveUser(t *testing.T) {
	user := plainUser()
	user.Active = false
	f := newLoginFixture(t, user)
	sess := f.anonSession(t)

	outcome, _, err := f.svc.SubmitPassword(context.Background(), sess, passwordInput("admin", testPassword))
	require.NoError(t, err)

	assert.Equal(t, PasswordInvalid, outcome)
	assert.Equal(t, 1, f.verifier.DummyCalls, "disabled accounts take the dummy path")
	assert.Equal(t, []string{models.AuditLoginFail}, f.audit.Kinds())
}

// A rate-limited attempt does no credential work at all: no verification, no
// failure record, no audit entry.
func TestSubmitPasswordRateLimited(t *testing.T) {
	f := newLoginFixture(t, plainUser())
	f.limiter.AllowFunc = func(ctx context.Context, address string) bool { return false }
	sess := f.anonSession(t)

	outcome, same, err := f.svc.SubmitPassword(context.Background(), sess, passwordInput("admin", testPassword))
	require.NoError(t, err)

	assert.Equal(t, PasswordRateLimited, outcome)
	assert.Same(t, sess, same)
	assert.Zero(t, f.verifier.TotalVerifications())
	assert.Zero(t, f.limiter.FailureCount())
	assert.Empty(t, f.audit.Entries)
}

func TestSubmitPassword2FARequired(t *testing.T) {
	f := newLoginFixture(t, totpUser())
	sess := f.anonSession(t)
	oldID := sess.ID()

	outcome, fresh, err := f.svc.SubmitPassword(context.Background(), sess, passwordInput("admin", testPassword))
	require.NoError(t, err)

	assert.Equal(t, PasswordAwaiting2FA, outcome)
	assert.Equal(t, session.StateAwaiting2FA, fresh.State())
	assert.NotEqual(t, oldID, fresh.ID(), "session rotates at the awaiting step too")
	assert.Equal(t, []string{models.AuditLogin2FAPending}, f.audit.Kinds())
}

func TestSubmitPasswordTrustedDeviceSkips2FA(t *testing.T) {
	f := newLoginFixture(t, totpUser())

	rawToken := "raw-device-token"
	wantHash := internalauth.HashDeviceToken(rawToken)
	f.devices.GetByUserAndHashFunc = func(ctx context.Context, userID, tokenHash string) (*models.TrustedDevice, error) {
		if userID == "u1" && tokenHash == wantHash {
			return &models.TrustedDevice{UserID: userID, TokenHash: tokenHash}, nil
		}
		return nil, models.ErrNotFound
	}

	input := passwordInput("admin", testPassword)
	input.DeviceToken = rawToken

	outcome, fresh, err := f.svc.SubmitPassword(context.Background(), f.anonSession(t), input)
	require.NoError(t, err)

	assert.Equal(t, PasswordAuthenticated, outcome)
	assert.Equal(t, session.StateAuthenticated, fresh.State())
	assert.Equal(t, []string{models.AuditLogin2FATrusted}, f.audit.Kinds())
}

func TestSubmitPasswordUnknownDeviceTokenFallsBackTo2FA(t *testing.T) {
	f := newLoginFixture(t, totpUser())

	input := passwordInput("admin", testPassword)
	input.DeviceToken = "stale-token"

	outcome, fresh, err := f.svc.SubmitPassword(context.Background(), f.anonSession(t), input)
	require.NoError(t, err)

	assert.Equal(t, PasswordAwaiting2FA, outcome)
	assert.Equal(t, session.StateAwaiting2FA, fresh.State())
}

func awaitingSession(t *testing.T, f *loginFixture) *session.Session {
	t.Helper()
	outcome, sess, err := f.svc.SubmitPassword(context.Background(), f.anonSession(t), passwordInput("admin", testPassword))
	require.NoError(t, err)
	require.Equal(t, PasswordAwaiting2FA, outcome)
	return sess
}

func otpInput(code string, remember bool) OTPLogin {
	return OTPLogin{
		Code:           code,
		RememberDevice: remember,
		UserAgent:      "test-agent",
		Address:        "10.0.0.1",
	}
}

func TestSubmitOTPSuccess(t *testing.T) {
	f := newLoginFixture(t, totpUser())
	sess := awaitingSession(t, f)
	awaitingID := sess.ID()

	result, err := f.svc.SubmitOTP(context.Background(), sess, otpInput(testOTPCode, false))
	require.NoError(t, err)

	assert.Equal(t, OTPAuthenticated, result.Outcome)
	assert.Equal(t, session.StateAuthenticated, result.Session.State())
	assert.NotEqual(t, awaitingID, result.Session.ID())
	assert.Empty(t, result.NewDeviceToken)

	kinds := f.audit.Kinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, models.AuditLoginOK, kinds[1])
}

func TestSubmitOTPRememberDevice(t *testing.T) {
	f := newLoginFixture(t, totpUser())

	var stored *models.TrustedDevice
	f.devices.CreateFunc = func(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error) {
		stored = device
		return device, nil
	}

	sess := awaitingSession(t, f)

	result, err := f.svc.SubmitOTP(context.Background(), sess, otpInput(testOTPCode, true))
	require.NoError(t, err)

	assert.Equal(t, OTPAuthenticated, result.Outcome)
	require.NotEmpty(t, result.NewDeviceToken)

	require.NotNil(t, stored)
	assert.Equal(t, "u1", stored.UserID)
	assert.Equal(t, internalauth.HashDeviceToken(result.NewDeviceToken), stored.TokenHash,
		"only the hash of the token is persisted")
	assert.Equal(t, "test-agent", stored.UserAgent)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), stored.ExpiresAt, time.Minute)

	// The sign-in itself is audited; the grant is an additional entry.
	assert.Equal(t, []string{
		models.AuditLogin2FAPending,
		models.AuditLoginOK,
		models.AuditLogin2FATrustedNew,
	}, f.audit.Kinds())
}

func TestSubmitOTPWrongCode(t *testing.T) {
	f := newLoginFixture(t, totpUser())
	sess := awaitingSession(t, f)

	result, err := f.svc.SubmitOTP(context.Background(), sess, otpInput("000000", false))
	require.NoError(t, err)

	assert.Equal(t, OTPInvalid, result.Outcome)
	assert.Equal(t, session.StateAwaiting2FA, result.Session.State(), "pending state survives a wrong code")
	assert.Equal(t, 1, f.limiter.FailureCount(), "OTP failures count toward the throttle")

	kinds := f.audit.Kinds()
	assert.Equal(t, models.AuditLogin2FAFail, kinds[len(kinds)-1])
}

func TestSubmitOTPNoPendingLogin(t *testing.T) {
	f := newLoginFixture(t, totpUser())
	sess := f.anonSession(t)

	result, err := f.svc.SubmitOTP(context.Background(), sess, otpInput(testOTPCode, false))
	require.NoError(t, err)

	assert.Equal(t, OTPNoPending, result.Outcome)
	assert.Empty(t, f.audit.Entries)
}

func TestSubmitOTPRateLimited(t *testing.T) {
	f := newLoginFixture(t, totpUser())
	sess := awaitingSession(t, f)

	f.limiter.AllowFunc = func(ctx context.Context, address string) bool { return false }

	result, err := f.svc.SubmitOTP(context.Background(), sess, otpInput(testOTPCode, false))
	require.NoError(t, err)

	assert.Equal(t, OTPRateLimited, result.Outcome)
	assert.Equal(t, session.StateAwaiting2FA, result.Session.State())
}

func TestLogout(t *testing.T) {
	f := newLoginFixture(t, plainUser())

	_, fresh, err := f.svc.SubmitPassword(context.Background(), f.anonSession(t), passwordInput("admin", testPassword))
	require.NoError(t, err)
	id := fresh.ID()

	f.svc.Logout(context.Background(), fresh, "10.0.0.1")

	_, ok := f.sessions.Get(id)
	assert.False(t, ok)

	kinds := f.audit.Kinds()
	assert.Equal(t, models.AuditLogout, kinds[len(kinds)-1])
}

// Logging out must not revoke remember-device grants: the token issued before
// the logout still skips the second factor on the next sign-in.
func TestLogoutKeepsTrustedDevices(t *testing.T) {
	f := newLoginFixture(t, totpUser())

	var stored *models.TrustedDevice
	f.devices.CreateFunc = func(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error) {
		stored = device
		return device, nil
	}
	f.devices.GetByUserAndHashFunc = func(ctx context.Context, userID, tokenHash string) (*models.TrustedDevice, error) {
		if stored != nil && stored.UserID == userID && stored.TokenHash == tokenHash {
			return stored, nil
		}
		return nil, models.ErrNotFound
	}

	sess := awaitingSession(t, f)
	result, err := f.svc.SubmitOTP(context.Background(), sess, otpInput(testOTPCode, true))
	require.NoError(t, err)
	require.NotEmpty(t, result.NewDeviceToken)

	f.svc.Logout(context.Background(), result.Session, "10.0.0.1")

	input := passwordInput("admin", testPassword)
	input.DeviceToken = result.NewDeviceToken
	outcome, fresh, err := f.svc.SubmitPassword(context.Background(), f.anonSession(t), input)
	require.NoError(t, err)

	assert.Equal(t, PasswordAuthenticated, outcome)
	assert.Equal(t, session.StateAuthenticated, fresh.State())
}

func TestLogoutAnonymousSessionNoAudit(t *testing.T) {
	f := newLoginFixture(t, plainUser())
	sess := f.anonSession(t)

	f.svc.Logout(context.Background(), sess, "10.0.0.1")

	assert.Empty(t, f.audit.Entries)
}
