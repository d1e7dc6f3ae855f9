package auth

import (
	"net/http"
	"time"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	SessionName string
	DeviceName  string
	SessionTTL  time.Duration // absolute session lifetime; 0 means session cookie
	Secure      bool          // HTTPS only
}

// SetSessionCookie sets the opaque session identifier. The cookie expires
// with the absolute session lifetime; the server-side timeouts still apply,
// whichever runs out first wins.
func SetSessionCookie(w http.ResponseWriter, id string, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     config.SessionName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if config.SessionTTL > 0 {
		cookie.MaxAge = int(config.SessionTTL.Seconds())
		cookie.Expires = time.Now().Add(config.SessionTTL)
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     config.SessionName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	http.SetCookie(w, cookie)
}

// SetDeviceCookie sets the remember-device bearer token
func SetDeviceCookie(w http.ResponseWriter, token string, ttl time.Duration, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     config.DeviceName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	http.SetCookie(w, cookie)
}

// ClearDeviceCookie removes the remember-device cookie
func ClearDeviceCookie(w http.ResponseWriter, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     config.DeviceName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	http.SetCookie(w, cookie)
}

// GetSessionCookie retrieves the session identifier from the request
func GetSessionCookie(r *http.Request, config CookieConfig) (string, error) {
	cookie, err := r.Cookie(config.SessionName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetDeviceCookie retrieves the remember-device token from the request
func GetDeviceCookie(r *http.Request, config CookieConfig) (string, error) {
	cookie, err := r.Cookie(config.DeviceName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
