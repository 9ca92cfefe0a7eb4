package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// RequireBasicAuth returns middleware that admits only requests carrying the
// given credentials. Empty credentials lock the wrapped routes entirely.
func RequireBasicAuth(user, pass, realm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user == "" || pass == "" {
				writeError(w, "Admin access is not configured", http.StatusForbidden)
				return
			}

			u, p, ok := r.BasicAuth()
			if !ok || !secureEqual(u, user) || !secureEqual(p, pass) {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
				if strings.HasPrefix(r.URL.Path, "/api/") {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					json.NewEncoder(w).Encode(map[string]string{
						"error":   "unauthorized",
						"message": "Admin authentication required",
					})
					return
				}
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// secureEqual compares in constant time.
func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
