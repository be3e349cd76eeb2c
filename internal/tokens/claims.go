package tokens

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the token_type claim
const (
	TypeAccess  = "access_token"
	TypeRefresh = "refresh_token"
	TypeSession = "session"
)

// BaseClaims are shared by every token kind. Registered claims (iss, aud,
// iat, exp, jti) are filled in by the Issuer.
type BaseClaims struct {
	jwt.RegisteredClaims
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type"`
}

func (b *BaseClaims) base() *BaseClaims { return b }

// Payload is any claim set the Issuer can sign
type Payload interface {
	jwt.Claims
	base() *BaseClaims
}

// AccessTokenClaims is the payload of a bearer access token
type AccessTokenClaims struct {
	BaseClaims
}

// NewAccessTokenClaims builds access token claims for subject
func NewAccessTokenClaims(subject, clientID, scope string) *AccessTokenClaims {
	c := &AccessTokenClaims{}
	c.Subject = subject
	c.ClientID = clientID
	c.Scope = scope
	c.TokenType = TypeAccess
	return c
}

// RefreshTokenClaims is the payload of a refresh token
type RefreshTokenClaims struct {
	BaseClaims
}

// NewRefreshTokenClaims builds refresh token claims for subject
func NewRefreshTokenClaims(subject, clientID, scope string) *RefreshTokenClaims {
	c := &RefreshTokenClaims{}
	c.Subject = subject
	c.ClientID = clientID
	c.Scope = scope
	c.TokenType = TypeRefresh
	return c
}

// SessionClaims is the payload of the login session cookie
type SessionClaims struct {
	BaseClaims
	Email string `json:"email,omitempty"`
}

// NewSessionClaims builds session claims for a logged in user
func NewSessionClaims(subject, email string) *SessionClaims {
	c := &SessionClaims{Email: email}
	c.Subject = subject
	c.TokenType = TypeSession
	return c
}

// Audiences returns the aud claim as a plain slice
func (b *BaseClaims) Audiences() []string {
	return []string(b.RegisteredClaims.Audience)
}
