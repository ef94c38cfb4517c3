package auth

import (
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the user id as "userId"; "sub" is accepted too.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

type JWTAuthenticator struct {
	secret     []byte
	cookieName string
	parser     *jwt.Parser
}

func NewJWTAuthenticator(secret []byte, cookieName string) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret:     secret,
		cookieName: cookieName,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (string, error) {
	raw := bearerToken(r, a.cookieName)
	if raw == "" {
		return "", ErrUnauthorized
	}
	var claims Claims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return a.secret, nil })
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: bad user id claim", ErrUnauthorized)
	}
	return id, nil
}

// Sign issues an HS256 token for userID; used by the dev seed and tests.
func (a *JWTAuthenticator) Sign(userID string, claims jwt.RegisteredClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: userID, RegisteredClaims: claims}).SignedString(a.secret)
}
