package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards the /api/v1 routes with a static token. The comparison
// is constant-time, and a missing or malformed Authorization header fails
// the same way as a wrong token. The health endpoint stays outside this
// middleware so probes work without credentials.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, prefix) || subtle.ConstantTimeCompare([]byte(header[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
