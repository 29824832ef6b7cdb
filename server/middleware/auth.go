package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Siva-Pavan02/Computer-Science-AI/errors"
)

// Authentication requires "Authorization: Bearer <token>" on the wrapped
// handler. An empty token leaves the handler open.
func Authentication(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || presented == "" {
				errors.WriteError(w, errors.NewError(errors.AuthenticationError,
					"Missing bearer token", http.StatusUnauthorized, GetRequestID(r.Context()), nil, nil))
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				errors.WriteError(w, errors.NewError(errors.AuthenticationError,
					"Invalid bearer token", http.StatusUnauthorized, GetRequestID(r.Context()), nil, nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
