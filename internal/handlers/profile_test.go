package handlers_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalauth "github.com/jzupan/clubmgr/internal/auth"
	"github.com/jzupan/clubmgr/internal/handlers"
	"github.com/jzupan/clubmgr/internal/models"
	"github.com/jzupan/clubmgr/internal/session"
	pkgauth "github.com/jzupan/clubmgr/pkg/auth"
	pkghttp "github.com/jzupan/clubmgr/pkg/http"
)

func newProfileHandler(t *testing.T, users handlers.UserServiceInterface, twoFactor handlers.TwoFactorServiceInterface) *handlers.ProfileHandler {
	t.Helper()
	if users == nil {
		users = &handlers.MockUserService{}
	}
	if twoFactor == nil {
		twoFactor = &handlers.MockTwoFactorService{}
	}
	return handlers.NewProfileHandler(users, twoFactor, handlers.NewTestRenderer(t), testCookies, &pkghttp.IPConfig{})
}

func signedInSession(t *testing.T) *session.Session {
	t.Helper()
	_, sess := handlers.NewTestSession(t)
	sess.SetAuthenticated(session.Identity{
		UserID:      "u1",
		Username:    "alenka",
		Role:        models.RoleReader,
		DisplayName: "Alenka Novak",
	})
	return sess
}

func TestProfileShowsIdentity(t *testing.T) {
	sess := signedInSession(t)
	handler := newProfileHandler(t, nil, nil)

	w := httptest.NewRecorder()
	handler.Show(w, handlers.NewFormRequest(t, "GET", "/profile", nil, sess))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "alenka")
	assert.Contains(t, w.Body.String(), "Alenka Novak")
}

func TestChangeNameUpdatesSessionIdentity(t *testing.T) {
	sess := signedInSession(t)

	var gotName string
	users := &handlers.MockUserService{
		ChangeDisplayNameFunc: func(ctx context.Context, userID, displayName string) error {
			gotName = displayName
			return nil
		},
	}
	handler := newProfileHandler(t, users, nil)

	w := httptest.NewRecorder()
	form := url.Values{"display_name": {"Alenka N."}}
	handler.ChangeName(w, handlers.NewFormRequest(t, "POST", "/profile/name", form, sess))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "Display name updated.")
	assert.Equal(t, "Alenka N.", gotName)

	identity, bound := sess.Identity()
	require.True(t, bound)
	assert.Equal(t, "Alenka N.", identity.DisplayName)
}

func TestChangePasswordSuccess(t *testing.T) {
	sess := signedInSession(t)

	var gotCurrent, gotNext string
	users := &handlers.MockUserService{
		ChangePasswordFunc: func(ctx context.Context, userID, current, next, address string) error {
			gotCurrent, gotNext = current, next
			return nil
		},
	}
	handler := newProfileHandler(t, users, nil)

	w := httptest.NewRecorder()
	form := url.Values{
		"current_password": {"Veljavno1234!ab"},
		"new_password":     {"NovoGeslo5678?cd"},
	}
	handler.ChangePassword(w, handlers.NewFormRequest(t, "POST", "/profile/password", form, sess))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "Password changed.")
	assert.Equal(t, "Veljavno1234!ab", gotCurrent)
	assert.Equal(t, "NovoGeslo5678?cd", gotNext)
}

func TestChangePasswordPolicyFailureNamesRule(t *testing.T) {
	sess := signedInSession(t)

	users := &handlers.MockUserService{
		ChangePasswordFunc: func(ctx context.Context, userID, current, next, address string) error {
			return &pkgauth.PolicyError{Reason: "Password must be at least 14 characters long."}
		},
	}
	handler := newProfileHandler(t, users, nil)

	w := httptest.NewRecorder()
	form := url.Values{
		"current_password": {"Veljavno1234!ab"},
		"new_password":     {"kratko"},
	}
	handler.ChangePassword(w, handlers.NewFormRequest(t, "POST", "/profile/password", form, sess))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "at least 14 characters")
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	sess := signedInSession(t)

	users := &handlers.MockUserService{
		ChangePasswordFunc: func(ctx context.Context, userID, current, next, address string) error {
			return fmt.Errorf("verify password: %w", models.ErrUnauthorized)
		},
	}
	handler := newProfileHandler(t, users, nil)

	w := httptest.NewRecorder()
	form := url.Values{
		"current_password": {"napacno"},
		"new_password":     {"NovoGeslo5678?cd"},
	}
	handler.ChangePassword(w, handlers.NewFormRequest(t, "POST", "/profile/password", form, sess))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "Current password is incorrect.")
}

func TestStartEnrollStoresSecretServerSide(t *testing.T) {
	sess := signedInSession(t)

	twoFactor := &handlers.MockTwoFactorService{
		StartEnrollmentFunc: func(ctx context.Context, userID string) (*internalauth.Enrollment, error) {
			return &internalauth.Enrollment{
				Secret:    "JBSWY3DPEHPK3PXP",
				URL:       "otpauth://totp/ClubMgr:alenka?secret=JBSWY3DPEHPK3PXP",
				QRDataURL: "data:image/png;base64,QUJD",
			}, nil
		},
	}
	handler := newProfileHandler(t, nil, twoFactor)

	w := httptest.NewRecorder()
	handler.StartEnroll(w, handlers.NewFormRequest(t, "POST", "/profile/2fa/enroll", url.Values{}, sess))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "data:image/png;base64,QUJD")
	assert.Contains(t, w.Body.String(), "JBSWY3DPEHPK3PXP")

	// The secret waits in the session until confirmation, not in a form field
	assert.Equal(t, "JBSWY3DPEHPK3PXP", sess.PendingTOTPSecret())
}

func TestStartEnrollAlreadyEnabled(t *testing.T) {
	sess := signedInSession(t)

	twoFactor := &handlers.MockTwoFactorService{
		StartEnrollmentFunc: func(ctx context.Context, userID string) (*internalauth.Enrollment, error) {
			return nil, fmt.Errorf("enrollment: %w", models.ErrConflict)
		},
	}
	handler := newProfileHandler(t, nil, twoFactor)

	w := httptest.NewRecorder()
	handler.StartEnroll(w, handlers.NewFormRequest(t, "POST", "/profile/2fa/enroll", url.Values{}, sess))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "already enabled")
}

func TestConfirmEnrollUsesPendingSecret(t *testing.T) {
	sess := signedInSession(t)
	sess.SetPendingTOTPSecret("JBSWY3DPEHPK3PXP")

	var gotSecret, gotCode string
	twoFactor := &handlers.MockTwoFactorService{
		ConfirmEnrollmentFunc: func(ctx context.Context, userID, secret, code, address string) error {
			gotSecret, gotCode = secret, code
			return nil
		},
	}
	handler := newProfileHandler(t, nil, twoFactor)

	w := httptest.NewRecorder()
	form := url.Values{"code": {"123456"}}
	handler.ConfirmEnroll(w, handlers.NewFormRequest(t, "POST", "/profile/2fa/confirm", form, sess))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "Two-factor authentication enabled.")
	assert.Equal(t, "JBSWY3DPEHPK3PXP", gotSecret)
	assert.Equal(t, "123456", gotCode)
	assert.Empty(t, sess.PendingTOTPSecret())
}

func TestConfirmEnrollInvalidCodeKeepsSecret(t *testing.T) {
	sess := signedInSession(t)
	sess.SetPendingTOTPSecret("JBSWY3DPEHPK3PXP")

	twoFactor := &handlers.MockTwoFactorService{
		ConfirmEnrollmentFunc: func(ctx context.Context, userID, secret, code, address string) error {
			return fmt.Errorf("confirm: %w", models.ErrUnauthorized)
		},
	}
	handler := newProfileHandler(t, nil, twoFactor)

	w := httptest.NewRecorder()
	form := url.Values{"code": {"000000"}}
	handler.ConfirmEnroll(w, handlers.NewFormRequest(t, "POST", "/profile/2fa/confirm", form, sess))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid one-time code.")
	assert.Equal(t, "JBSWY3DPEHPK3PXP", sess.PendingTOTPSecret())
}

func TestDisableTwoFactorClearsDeviceCookie(t *testing.T) {
	sess := signedInSession(t)

	var gotCode string
	twoFactor := &handlers.MockTwoFactorService{
		DisableFunc: func(ctx context.Context, userID, code, address string) error {
			gotCode = code
			return nil
		},
	}
	handler := newProfileHandler(t, nil, twoFactor)

	w := httptest.NewRecorder()
	form := url.Values{"code": {"123456"}}
	handler.Disable2FA(w, handlers.NewFormRequest(t, "POST", "/profile/2fa/disable", form, sess))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "Two-factor authentication disabled.")
	assert.Equal(t, "123456", gotCode)

	cookie := handlers.FindCookie(w, "_2fa_device")
	require.NotNil(t, cookie)
	assert.Negative(t, cookie.MaxAge)
}

func TestDisableTwoFactorWrongCode(t *testing.T) {
	sess := signedInSession(t)

	twoFactor := &handlers.MockTwoFactorService{
		DisableFunc: func(ctx context.Context, userID, code, address string) error {
			return fmt.Errorf("disable: %w", models.ErrUnauthorized)
		},
	}
	handler := newProfileHandler(t, nil, twoFactor)

	w := httptest.NewRecorder()
	form := url.Values{"code": {"000000"}}
	handler.Disable2FA(w, handlers.NewFormRequest(t, "POST", "/profile/2fa/disable", form, sess))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid one-time code.")
	assert.Nil(t, handlers.FindCookie(w, "_2fa_device"))
}
