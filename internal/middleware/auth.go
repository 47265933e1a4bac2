// Package middleware provides HTTP middleware for the gatekeepd server:
// request logging, bearer-token authentication, and per-IP rate limiting
// of failed auth attempts.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthOptions configures BearerAuth behavior beyond the token itself.
type AuthOptions struct {
	// OnFailure is invoked for every rejected request, if set.
	OnFailure func()

	// Limiter, if set, rejects IPs whose failed attempts exceed the
	// configured rate before the token is even inspected.
	Limiter *RateLimiter
}

// BearerAuth returns middleware that requires "Authorization: Bearer
// <token>" on every request. An empty token disables authentication and
// returns the handler unchanged. The token comparison is constant time.
func BearerAuth(token string, opts AuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r.RemoteAddr)
			if opts.Limiter != nil && !opts.Limiter.Allow(ip) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			presented, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				if opts.Limiter != nil {
					opts.Limiter.RecordFailure(ip)
				}
				if opts.OnFailure != nil {
					opts.OnFailure()
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}
