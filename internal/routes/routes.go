package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jzupan/clubmgr/internal/database"
	"github.com/jzupan/clubmgr/internal/handlers"
	"github.com/jzupan/clubmgr/internal/middleware"
	"github.com/jzupan/clubmgr/internal/session"
)

// Config carries the routing dependencies
type Config struct {
	AuthHandler    *handlers.AuthHandler
	ProfileHandler *handlers.ProfileHandler
	SessionMW      *session.Middleware
	DB             *database.DB
	FloodRPM       int
	// FloodHandler responds to clients over the raw request cap. It should be
	// indistinguishable from an ordinary failed attempt.
	FloodHandler http.HandlerFunc
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, cfg Config) {
	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecurityHeaders)
	router.Use(cfg.SessionMW.Handler)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.DB.HealthCheck(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})

	// Authentication endpoints. The flood limiter sits in front of the
	// password and code submissions only; pages render unthrottled.
	router.Get("/login", cfg.AuthHandler.ShowLogin)
	router.Get("/login/2fa", cfg.AuthHandler.ShowOTP)

	router.Group(func(r chi.Router) {
		r.Use(middleware.FloodLimitByIP(cfg.FloodRPM, cfg.FloodHandler))
		r.Use(session.VerifyCSRF)
		r.Post("/login", cfg.AuthHandler.Login)
		r.Post("/login/2fa", cfg.AuthHandler.SubmitOTP)
	})

	router.With(session.VerifyCSRF).Post("/logout", cfg.AuthHandler.Logout)

	// Signed-in pages
	router.Group(func(r chi.Router) {
		r.Use(session.RequireAuthenticated)
		r.Use(session.VerifyCSRF)
		r.Get("/profile", cfg.ProfileHandler.Show)
		r.Post("/profile/name", cfg.ProfileHandler.ChangeName)
		r.Post("/profile/password", cfg.ProfileHandler.ChangePassword)
		r.Post("/profile/2fa/enroll", cfg.ProfileHandler.StartEnroll)
		r.Post("/profile/2fa/confirm", cfg.ProfileHandler.ConfirmEnroll)
		r.Post("/profile/2fa/disable", cfg.ProfileHandler.Disable2FA)
	})
}
