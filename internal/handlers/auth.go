package handlers

import (
	"context"
	"net/http"
	"time"

	internalauth "github.com/jzupan/clubmgr/internal/auth"
	"github.com/jzupan/clubmgr/internal/services"
	"github.com/jzupan/clubmgr/internal/session"
	pkghttp "github.com/jzupan/clubmgr/pkg/http"
)

// User-facing authentication messages. The invalid-credentials text is shared
// by wrong passwords, unknown users, and disabled accounts: the response never
// reveals which of those occurred. Throttling gets its own message, but always
// with HTTP 200 so the status code stays uniform.
const (
	msgInvalidCredentials = "Invalid username or password."
	msgInvalidCode        = "Invalid one-time code."
	msgThrottled          = "Too many failed attempts. Please wait 15 minutes."
)

// LoginServiceInterface defines the login business logic the handler needs
type LoginServiceInterface interface {
	SubmitPassword(ctx context.Context, sess *session.Session, input services.PasswordLogin) (services.PasswordOutcome, *session.Session, error)
	SubmitOTP(ctx context.Context, sess *session.Session, input services.OTPLogin) (services.OTPResult, error)
	Logout(ctx context.Context, sess *session.Session, address string)
}

// AuthHandler serves the login, second-factor, and logout pages
type AuthHandler struct {
	service   LoginServiceInterface
	renderer  *Renderer
	cookies   internalauth.CookieConfig
	ipConfig  *pkghttp.IPConfig
	deviceTTL time.Duration
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	service LoginServiceInterface,
	renderer *Renderer,
	cookies internalauth.CookieConfig,
	ipConfig *pkghttp.IPConfig,
	deviceTTL time.Duration,
) *AuthHandler {
	return &AuthHandler{
		service:   service,
		renderer:  renderer,
		cookies:   cookies,
		ipConfig:  ipConfig,
		deviceTTL: deviceTTL,
	}
}

// Form DTOs

// LoginForm represents the password step submission
type LoginForm struct {
	Username string `validate:"required,max=150"`
	Password string `validate:"required,max=128"`
}

// OTPForm represents the one-time-code submission
type OTPForm struct {
	Code string `validate:"required,len=6,numeric"`
}

type loginPage struct {
	Message   string
	Username  string
	CSRFToken string
}

type otpPage struct {
	Message   string
	CSRFToken string
}

// ShowLogin renders the sign-in form
// GET /login
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	if sess.State() == session.StateAuthenticated {
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}

	var message string
	if r.URL.Query().Get("expired") == "1" {
		message = "Your session has expired. Please sign in again."
	}

	h.renderer.Render(w, http.StatusOK, "login.html", loginPage{
		Message:   message,
		CSRFToken: sess.CSRFToken(),
	})
}

// Login handles the password step
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())

	form := LoginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	if err := ValidateForm(form); err != nil {
		h.renderer.Render(w, http.StatusOK, "login.html", loginPage{
			Message:   msgInvalidCredentials,
			Username:  form.Username,
			CSRFToken: sess.CSRFToken(),
		})
		return
	}

	input := services.PasswordLogin{
		Username:  form.Username,
		Password:  form.Password,
		UserAgent: r.UserAgent(),
		Address:   pkghttp.ExtractClientIP(r, h.ipConfig),
	}
	if token, err := internalauth.GetDeviceCookie(r, h.cookies); err == nil {
		input.DeviceToken = token
	}

	outcome, fresh, err := h.service.SubmitPassword(r.Context(), sess, input)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	switch outcome {
	case services.PasswordAuthenticated:
		internalauth.SetSessionCookie(w, fresh.ID(), h.cookies)
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
	case services.PasswordAwaiting2FA:
		internalauth.SetSessionCookie(w, fresh.ID(), h.cookies)
		http.Redirect(w, r, "/login/2fa", http.StatusSeeOther)
	case services.PasswordRateLimited:
		h.renderer.Render(w, http.StatusOK, "login.html", loginPage{
			Message:   msgThrottled,
			Username:  form.Username,
			CSRFToken: sess.CSRFToken(),
		})
	default:
		h.renderer.Render(w, http.StatusOK, "login.html", loginPage{
			Message:   msgInvalidCredentials,
			Username:  form.Username,
			CSRFToken: sess.CSRFToken(),
		})
	}
}

// ShowOTP renders the one-time-code form for a pending login
// GET /login/2fa
func (h *AuthHandler) ShowOTP(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	if sess.State() != session.StateAwaiting2FA {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	h.renderer.Render(w, http.StatusOK, "login_2fa.html", otpPage{CSRFToken: sess.CSRFToken()})
}

// SubmitOTP handles the one-time-code step
// POST /login/2fa
func (h *AuthHandler) SubmitOTP(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())

	form := OTPForm{Code: r.PostFormValue("code")}
	if err := ValidateForm(form); err != nil {
		h.renderer.Render(w, http.StatusOK, "login_2fa.html", otpPage{
			Message:   msgInvalidCode,
			CSRFToken: sess.CSRFToken(),
		})
		return
	}

	input := services.OTPLogin{
		Code:           form.Code,
		RememberDevice: r.PostFormValue("remember_device") == "1",
		UserAgent:      r.UserAgent(),
		Address:        pkghttp.ExtractClientIP(r, h.ipConfig),
	}

	result, err := h.service.SubmitOTP(r.Context(), sess, input)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	switch result.Outcome {
	case services.OTPAuthenticated:
		internalauth.SetSessionCookie(w, result.Session.ID(), h.cookies)
		if result.NewDeviceToken != "" {
			internalauth.SetDeviceCookie(w, result.NewDeviceToken, h.deviceTTL, h.cookies)
		}
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
	case services.OTPNoPending:
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case services.OTPRateLimited:
		h.renderer.Render(w, http.StatusOK, "login_2fa.html", otpPage{
			Message:   msgThrottled,
			CSRFToken: sess.CSRFToken(),
		})
	default:
		h.renderer.Render(w, http.StatusOK, "login_2fa.html", otpPage{
			Message:   msgInvalidCode,
			CSRFToken: sess.CSRFToken(),
		})
	}
}

// Throttled answers requests the raw flood limiter rejected. It renders the
// login page with the throttling message; the status stays 200 like every
// other login response.
func (h *AuthHandler) Throttled(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())

	h.renderer.Render(w, http.StatusOK, "login.html", loginPage{
		Message:   msgThrottled,
		CSRFToken: sess.CSRFToken(),
	})
}

// Logout ends the session and returns to the sign-in page
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())

	h.service.Logout(r.Context(), sess, pkghttp.ExtractClientIP(r, h.ipConfig))
	internalauth.ClearSessionCookie(w, h.cookies)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
