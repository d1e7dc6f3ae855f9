package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	internalauth "github.com/jzupan/clubmgr/internal/auth"
	"github.com/jzupan/clubmgr/internal/models"
	"github.com/jzupan/clubmgr/internal/services"
	"github.com/jzupan/clubmgr/internal/session"
)

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	SubmitPasswordFunc func(ctx context.Context, sess *session.Session, input services.PasswordLogin) (services.PasswordOutcome, *session.Session, error)
	SubmitOTPFunc      func(ctx context.Context, sess *session.Session, input services.OTPLogin) (services.OTPResult, error)
	LogoutFunc         func(ctx context.Context, sess *session.Session, address string)
}

func (m *MockLoginService) SubmitPassword(ctx context.Context, sess *session.Session, input services.PasswordLogin) (services.PasswordOutcome, *session.Session, error) {
	if m.SubmitPasswordFunc != nil {
		return m.SubmitPasswordFunc(ctx, sess, input)
	}
	return services.PasswordInvalid, nil, nil
}

func (m *MockLoginService) SubmitOTP(ctx context.Context, sess *session.Session, input services.OTPLogin) (services.OTPResult, error) {
	if m.SubmitOTPFunc != nil {
		return m.SubmitOTPFunc(ctx, sess, input)
	}
	return services.OTPResult{Outcome: services.OTPInvalid}, nil
}

func (m *MockLoginService) Logout(ctx context.Context, sess *session.Session, address string) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, sess, address)
	}
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	GetFunc               func(ctx context.Context, id string) (*models.User, error)
	ChangeDisplayNameFunc func(ctx context.Context, userID, displayName string) error
	ChangePasswordFunc    func(ctx context.Context, userID, current, next, address string) error
}

func (m *MockUserService) Get(ctx context.Context, id string) (*models.User, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserService) ChangeDisplayName(ctx context.Context, userID, displayName string) error {
	if m.ChangeDisplayNameFunc != nil {
		return m.ChangeDisplayNameFunc(ctx, userID, displayName)
	}
	return nil
}

func (m *MockUserService) ChangePassword(ctx context.Context, userID, current, next, address string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, userID, current, next, address)
	}
	return nil
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	StartEnrollmentFunc   func(ctx context.Context, userID string) (*internalauth.Enrollment, error)
	ConfirmEnrollmentFunc func(ctx context.Context, userID, secret, code, address string) error
	DisableFunc           func(ctx context.Context, userID, code, address string) error
}

func (m *MockTwoFactorService) StartEnrollment(ctx context.Context, userID string) (*internalauth.Enrollment, error) {
	if m.StartEnrollmentFunc != nil {
		return m.StartEnrollmentFunc(ctx, userID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTwoFactorService) ConfirmEnrollment(ctx context.Context, userID, secret, code, address string) error {
	if m.ConfirmEnrollmentFunc != nil {
		return m.ConfirmEnrollmentFunc(ctx, userID, secret, code, address)
	}
	return nil
}

func (m *MockTwoFactorService) Disable(ctx context.Context, userID, code, address string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, userID, code, address)
	}
	return nil
}

// NewTestRenderer builds a renderer over the embedded templates with a silent
// logger
func NewTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	renderer, err := NewRenderer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to build renderer: %v", err)
	}
	return renderer
}

// NewTestSession creates a throwaway manager and a fresh anonymous session
func NewTestSession(t *testing.T) (*session.Manager, *session.Session) {
	t.Helper()
	manager := session.NewManager(30*time.Minute, time.Hour,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	sess, err := manager.Create()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return manager, sess
}

// NewFormRequest builds a form POST (or plain GET) carrying the session in its
// context, the way the session middleware would
func NewFormRequest(t *testing.T, method, path string, form url.Values, sess *session.Session) *http.Request {
	t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req.WithContext(session.WithSession(req.Context(), sess))
}

// FindCookie returns the named cookie from a recorded response, or nil
func FindCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
