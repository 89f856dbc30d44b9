// Package api implements the decksmith REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// AuthMiddleware guards the deck routes with a static bearer token.
// With enabled false every request passes through.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	if !enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validBearer(r.Header.Get("Authorization"), want) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="decksmith"`)
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validBearer(header string, want []byte) bool {
	got, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || len(want) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), want) == 1
}
