package middleware

import (
	"net/http"

	"github.com/directchat/internal/auth"
	"github.com/directchat/internal/logger"
)

// Authenticate resolves the caller with a and stores the user id in the
// request context. Unauthenticated requests get a JSON 401.
func Authenticate(a auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := a.Authenticate(r)
			if err != nil {
				logger.Debugf("auth rejected %s %s from %s: %v", r.Method, r.URL.Path, MaskAddr(r.RemoteAddr), err)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
