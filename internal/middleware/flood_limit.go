package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// FloodLimitByIP caps raw requests per client address in front of the
// application's failure throttle. The limit handler is supplied by the
// caller so throttled responses look exactly like ordinary ones; nothing in
// the status code or shape of the reply reveals that limiting happened.
func FloodLimitByIP(requestsPerMinute int, limitHandler http.HandlerFunc) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(limitHandler),
	)
}
