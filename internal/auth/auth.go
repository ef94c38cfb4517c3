// Package auth resolves the caller of an HTTP request to a user id. The chat
// core trusts whatever id the configured Authenticator returns.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/directchat/internal/config"
)

var ErrUnauthorized = errors.New("unauthorized")

type Authenticator interface {
	// Authenticate returns the caller's user id or ErrUnauthorized.
	Authenticate(r *http.Request) (string, error)
}

// New builds the Authenticator selected by cfg.Mode.
func New(cfg config.AuthConfig) (Authenticator, error) {
	switch cfg.Mode {
	case config.AuthModeService:
		return NewServiceAuthenticator(cfg.ServiceURL, cfg.CookieName, nil), nil
	case config.AuthModeJWT:
		return NewJWTAuthenticator([]byte(cfg.JWTSecret), cfg.CookieName), nil
	case config.AuthModeDev:
		return DevAuthenticator{}, nil
	}
	return nil, errors.New("auth: unknown mode " + cfg.Mode)
}

// bearerToken reads "Authorization: Bearer ..." and falls back to the named
// cookie.
func bearerToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}
