package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// LoginRateLimit returns an HTTP middleware that caps requests per client IP
// per minute. It fronts the login endpoint to slow credential stuffing; the
// per-key sliding-window limit on guarded routes is separate and lives in
// the service layer. A non-positive rate falls back to the default so a
// missing setting can never lock out login entirely.
func LoginRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 10
	}
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
