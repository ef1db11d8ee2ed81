package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims carried by Ripple Chat identity tokens.
// Tokens are minted by the external auth collaborator; this server only
// validates them and extracts the external identity for directory resolution.
type Payload struct {
	// StandardClaims embeds the standard JWT fields (Exp, Iat, Iss) used for
	// token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ExternalID is the opaque identity assigned by the auth provider. It is
	// never used directly as a presence or room key; the user directory
	// translates it to the internal user id once, at the boundary.
	ExternalID string `json:"external_id"`

	// Username is the display name carried for convenience (typing indicators,
	// message attribution) so the realtime layer does not need a second lookup.
	Username string `json:"username"`
}
