package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the structure of the JSON Web Token (JWT) claims accepted
// at the gateway handshake. Token issuance and refresh belong to the auth
// service; the gateway only verifies.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// UserID is the unique identifier of the authenticated user.
	UserID string `json:"user_id"`

	// DisplayName is the user's display name, carried so the gateway can
	// populate presence rosters without a user lookup.
	DisplayName string `json:"display_name"`

	// Email is the user's email address.
	Email string `json:"email"`
}
