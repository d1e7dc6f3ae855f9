package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/jzupan/clubmgr/internal/auth"
)

type contextKey string

const (
	sessionKey contextKey = "session"
	staleKey   contextKey = "staleSession"
)

// Middleware resolves the request's session from the cookie, creating a
// fresh anonymous one when the cookie is missing, unknown, or expired.
// Requests to exempt paths do not refresh the inactivity clock, so sitting on
// the login page cannot keep a session alive.
type Middleware struct {
	manager *Manager
	cookies auth.CookieConfig

	// exemptPrefixes lists paths whose traffic does not count as activity
	exemptPrefixes []string
	exemptExact    []string
}

func NewMiddleware(manager *Manager, cookies auth.CookieConfig) *Middleware {
	return &Middleware{
		manager: manager,
		cookies: cookies,
		exemptExact: []string{
			"/login",
			"/login/2fa",
			"/logout",
			"/health",
		},
		exemptPrefixes: []string{
			"/static/",
		},
	}
}

func (mw *Middleware) exempt(path string) bool {
	for _, p := range mw.exemptExact {
		if path == p {
			return true
		}
	}
	for _, prefix := range mw.exemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Handler attaches the session to the request context.
func (mw *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sess *Session
		stale := false

		if id, err := auth.GetSessionCookie(r, mw.cookies); err == nil {
			var ok bool
			sess, ok = mw.manager.Get(id)
			stale = !ok
		}

		if sess == nil {
			created, err := mw.manager.Create()
			if err != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			sess = created
			auth.SetSessionCookie(w, sess.ID(), mw.cookies)
		} else if !mw.exempt(r.URL.Path) {
			mw.manager.Touch(sess)
		}

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		if stale {
			ctx = context.WithValue(ctx, staleKey, true)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the session attached by Handler.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*Session)
	return sess, ok
}

// WithSession injects a session into a context. Test helper.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// WasExpired reports whether the request carried a cookie for a session that
// no longer exists (timed out or destroyed).
func WasExpired(ctx context.Context) bool {
	stale, _ := ctx.Value(staleKey).(bool)
	return stale
}

// RequireAuthenticated redirects to the login page unless the session is
// fully signed in. A timed-out session gets a marker so the login page can
// say why.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := FromContext(r.Context())
		if !ok || sess.State() != StateAuthenticated {
			target := "/login"
			if WasExpired(r.Context()) {
				target = "/login?expired=1"
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// VerifyCSRF rejects mutating requests whose csrf_token form field does not
// match the session token.
func VerifyCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		sess, ok := FromContext(r.Context())
		if !ok || !ValidCSRF(sess, r.PostFormValue("csrf_token")) {
			http.Error(w, "invalid or missing CSRF token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
