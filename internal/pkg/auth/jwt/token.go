/*
Package jwt implements credential verification for the gateway handshake.

A connection must present a bearer token before the WebSocket upgrade completes;
an absent or invalid token closes the link. There is no anonymous or
partially-authenticated state.
*/
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// SessionExpiration defines the duration for gateway session tokens.
	SessionExpiration = 24 * time.Hour

	// TokenIssuer identifies the issuer of the token.
	TokenIssuer = "Concord-Auth"
)

// ErrInvalidToken is returned for any token that fails signature, expiry,
// or claim validation. Callers treat every variant the same way.
var ErrInvalidToken = errors.New("invalid or expired token")

// Verifier validates bearer tokens against a shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier bound to the given secret key.
func NewVerifier(secretKey string) *Verifier {
	return &Verifier{secret: []byte(secretKey)}
}

// Verify parses and validates the token string and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateToken creates and signs a new JWT Token string for the given payload.
// Used by tests and local tooling; production tokens come from the auth service.
func GenerateToken(payload *Payload, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	payload.StandardClaims = jwt.StandardClaims{
		ExpiresAt: now.Add(duration).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    TokenIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}
