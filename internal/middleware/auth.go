package middleware

import (
	"net/http"
	"strings"
)

const debugTokenPrefix = "debug:"

// Auth is a development helper: outside production, "Authorization: Bearer debug:<token>"
// signs the session in with <token> as the customer access token. Real sign-in happens
// on the commerce platform's customer account pages.
func Auth(production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !production {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					token := strings.TrimPrefix(auth, "Bearer ")
					if strings.HasPrefix(token, debugTokenPrefix) {
						if t := strings.TrimSpace(strings.TrimPrefix(token, debugTokenPrefix)); t != "" {
							GetSession(r).SignIn(t)
						}
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
