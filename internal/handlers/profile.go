package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	internalauth "github.com/jzupan/clubmgr/internal/auth"
	"github.com/jzupan/clubmgr/internal/models"
	"github.com/jzupan/clubmgr/internal/session"
	pkgauth "github.com/jzupan/clubmgr/pkg/auth"
	pkghttp "github.com/jzupan/clubmgr/pkg/http"
)

// UserServiceInterface defines the account management surface the handler needs
type UserServiceInterface interface {
	Get(ctx context.Context, id string) (*models.User, error)
	ChangeDisplayName(ctx context.Context, userID, displayName string) error
	ChangePassword(ctx context.Context, userID, current, next, address string) error
}

// TwoFactorServiceInterface defines the enrollment surface the handler needs
type TwoFactorServiceInterface interface {
	StartEnrollment(ctx context.Context, userID string) (*internalauth.Enrollment, error)
	ConfirmEnrollment(ctx context.Context, userID, secret, code, address string) error
	Disable(ctx context.Context, userID, code, address string) error
}

// ProfileHandler serves the signed-in account pages
type ProfileHandler struct {
	users     UserServiceInterface
	twoFactor TwoFactorServiceInterface
	renderer  *Renderer
	cookies   internalauth.CookieConfig
	ipConfig  *pkghttp.IPConfig
}

// NewProfileHandler creates a new ProfileHandler
func NewProfileHandler(
	users UserServiceInterface,
	twoFactor TwoFactorServiceInterface,
	renderer *Renderer,
	cookies internalauth.CookieConfig,
	ipConfig *pkghttp.IPConfig,
) *ProfileHandler {
	return &ProfileHandler{
		users:     users,
		twoFactor: twoFactor,
		renderer:  renderer,
		cookies:   cookies,
		ipConfig:  ipConfig,
	}
}

// ChangePasswordForm represents the password change submission
type ChangePasswordForm struct {
	CurrentPassword string `validate:"required"`
	NewPassword     string `validate:"required,max=128"`
}

// ChangeNameForm represents the display name submission
type ChangeNameForm struct {
	DisplayName string `validate:"max=255"`
}

type profilePage struct {
	Username    string
	DisplayName string
	Role        string
	TOTPEnabled bool
	Message     string
	IsError     bool
	CSRFToken   string
}

type setupPage struct {
	// template.URL so the data: image URL survives template escaping
	QRDataURL template.URL
	Secret    string
	Message   string
	CSRFToken string
}

func (h *ProfileHandler) page(r *http.Request, message string, isError bool) profilePage {
	sess, _ := session.FromContext(r.Context())
	identity, _ := sess.Identity()

	page := profilePage{
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
		Message:     message,
		IsError:     isError,
		CSRFToken:   sess.CSRFToken(),
	}

	if user, err := h.users.Get(r.Context(), identity.UserID); err == nil {
		page.TOTPEnabled = user.TOTPEnabled
	}

	return page
}

// Show renders the profile page
// GET /profile
func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, "", false))
}

// ChangeName updates the display name and refreshes the session identity so
// the new name shows immediately
// POST /profile/name
func (h *ProfileHandler) ChangeName(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	identity, _ := sess.Identity()

	form := ChangeNameForm{DisplayName: r.PostFormValue("display_name")}
	if err := ValidateForm(form); err != nil {
		h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, err.Error(), true))
		return
	}

	if err := h.users.ChangeDisplayName(r.Context(), identity.UserID, form.DisplayName); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	identity.DisplayName = form.DisplayName
	sess.SetAuthenticated(identity)

	h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, "Display name updated.", false))
}

// ChangePassword swaps the account password
// POST /profile/password
func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	identity, _ := sess.Identity()

	form := ChangePasswordForm{
		CurrentPassword: r.PostFormValue("current_password"),
		NewPassword:     r.PostFormValue("new_password"),
	}
	if err := ValidateForm(form); err != nil {
		h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, err.Error(), true))
		return
	}

	addr := pkghttp.ExtractClientIP(r, h.ipConfig)
	err := h.users.ChangePassword(r.Context(), identity.UserID, form.CurrentPassword, form.NewPassword, addr)
	if err != nil {
		var policyErr *pkgauth.PolicyError
		switch {
		case errors.As(err, &policyErr):
			// Policy failures name the violated rule; nothing else does
			h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, policyErr.Reason, true))
		case errors.Is(err, models.ErrUnauthorized):
			h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, "Current password is incorrect.", true))
		default:
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, "Password changed.", false))
}

// StartEnroll begins two-factor enrollment and shows the QR code
// POST /profile/2fa/enroll
func (h *ProfileHandler) StartEnroll(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	identity, _ := sess.Identity()

	enrollment, err := h.twoFactor.StartEnrollment(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, "Two-factor authentication is already enabled.", true))
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	sess.SetPendingTOTPSecret(enrollment.Secret)

	h.renderer.Render(w, http.StatusOK, "twofactor_setup.html", setupPage{
		QRDataURL: template.URL(enrollment.QRDataURL),
		Secret:    enrollment.Secret,
		CSRFToken: sess.CSRFToken(),
	})
}

// ConfirmEnroll activates two-factor once the user proves a working code
// POST /profile/2fa/confirm
func (h *ProfileHandler) ConfirmEnroll(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	identity, _ := sess.Identity()

	form := OTPForm{Code: r.PostFormValue("code")}
	secret := sess.PendingTOTPSecret()

	if err := ValidateForm(form); err != nil {
		h.renderer.Render(w, http.StatusOK, "twofactor_setup.html", setupPage{
			Message:   msgInvalidCode,
			Secret:    secret,
			CSRFToken: sess.CSRFToken(),
		})
		return
	}

	addr := pkghttp.ExtractClientIP(r, h.ipConfig)
	err := h.twoFactor.ConfirmEnrollment(r.Context(), identity.UserID, secret, form.Code, addr)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			h.renderer.Render(w, http.StatusOK, "twofactor_setup.html", setupPage{
				Message:   msgInvalidCode,
				Secret:    secret,
				CSRFToken: sess.CSRFToken(),
			})
		case errors.Is(err, models.ErrBadRequest):
			h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, "No enrollment in progress.", true))
		case errors.Is(err, models.ErrConflict):
			h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, "Two-factor authentication is already enabled.", true))
		default:
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	sess.ClearPendingTOTPSecret()
	h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, "Two-factor authentication enabled.", false))
}

// Disable2FA turns the second factor off. A valid current code is required;
// a session alone cannot remove the factor.
// POST /profile/2fa/disable
func (h *ProfileHandler) Disable2FA(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	identity, _ := sess.Identity()

	form := OTPForm{Code: r.PostFormValue("code")}
	if err := ValidateForm(form); err != nil {
		h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, msgInvalidCode, true))
		return
	}

	addr := pkghttp.ExtractClientIP(r, h.ipConfig)

	err := h.twoFactor.Disable(r.Context(), identity.UserID, form.Code, addr)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, msgInvalidCode, true))
		case errors.Is(err, models.ErrBadRequest):
			h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, "Two-factor authentication is not enabled.", true))
		default:
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	// The grant rows are gone; drop the now-useless cookie as well
	internalauth.ClearDeviceCookie(w, h.cookies)
	h.renderer.Render(w, http.StatusOK, "profile.html", h.page(r, "Two-factor authentication disabled.", false))
}
