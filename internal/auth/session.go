package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/franciscosanchezn/authzilla/internal/services"
	"github.com/franciscosanchezn/authzilla/internal/tokens"
)

var (
	ErrTokenRevoked  = errors.New("token has been revoked")
	ErrForeignClient = errors.New("token was issued to a client its subject does not own")
)

// sessionAudience keeps session cookies unusable as API bearer tokens
func (o *OAuthService) sessionAudience() string {
	return o.cfg.Issuer + "/session"
}

// IssueSession signs the login session cookie value for a user
func (o *OAuthService) IssueSession(userID uint, email string) (string, error) {
	claims := tokens.NewSessionClaims(strconv.FormatUint(uint64(userID), 10), email)
	token, err := o.issuer.Issue(claims, o.cfg.SessionTTL, []string{o.sessionAudience()})
	if err != nil {
		return "", fmt.Errorf("failed to issue session: %w", err)
	}
	return token, nil
}

// SessionPrincipal resolves a session cookie value to the logged in user
func (o *OAuthService) SessionPrincipal(cookie string) (Principal, error) {
	claims, err := o.issuer.Verify(cookie, o.sessionAudience())
	if err != nil {
		return Principal{}, err
	}
	if claims.TokenType != tokens.TypeSession || claims.Subject == "" {
		return Principal{}, tokens.ErrInvalidToken
	}
	return Principal{Authenticated: true, UserID: claims.Subject}, nil
}

// ManagementAudience is the resource a client requests to call the
// management API on its owner's behalf
func (o *OAuthService) ManagementAudience() string {
	return o.cfg.Issuer + "/management"
}

// VerifyManagementToken accepts an unrevoked access token for the management
// audience, issued on behalf of the user who owns the requesting client.
func (o *OAuthService) VerifyManagementToken(ctx context.Context, token string) (*tokens.BaseClaims, error) {
	claims, err := o.verifyAccessToken(ctx, token, o.ManagementAudience())
	if err != nil {
		return nil, err
	}

	client, err := o.registry.Lookup(ctx, claims.ClientID)
	if errors.Is(err, services.ErrClientNotFound) {
		return nil, ErrForeignClient
	}
	if err != nil {
		return nil, err
	}
	if client.GetUserID() != claims.Subject {
		return nil, ErrForeignClient
	}
	return claims, nil
}

// verifyAccessToken accepts an unrevoked access token for audience
func (o *OAuthService) verifyAccessToken(ctx context.Context, token, audience string) (*tokens.BaseClaims, error) {
	claims, err := o.issuer.Verify(token, audience)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokens.TypeAccess {
		return nil, tokens.ErrInvalidToken
	}
	revoked, err := o.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}
