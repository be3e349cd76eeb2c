package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/franciscosanchezn/authzilla/internal/authcode"
	"github.com/franciscosanchezn/authzilla/internal/instrumentation"
	"github.com/franciscosanchezn/authzilla/internal/models"
	"github.com/franciscosanchezn/authzilla/internal/services"
	"github.com/franciscosanchezn/authzilla/internal/store"
	"github.com/franciscosanchezn/authzilla/internal/tokens"
	"github.com/go-oauth2/oauth2/v4"
	oautherrors "github.com/go-oauth2/oauth2/v4/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// TokenRequest holds the form parameters of a token request. ClientID and
// ClientSecret come from the form or from HTTP Basic authentication.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	RefreshToken string
	Scope        string
	Resources    []string
}

// TokenResponse is the successful token endpoint body (RFC 6749 §5.1)
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Token dispatches a token request to its grant handler. Failures are
// returned as *Error.
func (o *OAuthService) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	ctx, span := o.inst.StartSpan(ctx, instrumentation.SpanToken,
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String(instrumentation.AttrGrantType, req.GrantType),
	)
	defer span.End()

	resp, perr := o.token(ctx, req)
	if perr != nil {
		instrumentation.RecordError(span, perr.Code(), perr.cause)
		o.inst.Metrics().RecordGrantFailed(ctx, "token", perr.Code())

		entry := log.WithFields(logrus.Fields{
			"client_id":  req.ClientID,
			"grant_type": req.GrantType,
			"error":      perr.Code(),
		})
		if perr.Status >= http.StatusInternalServerError {
			entry.WithError(perr.cause).Error("Token request failed")
		} else {
			entry.WithField("reason", perr.Description).Debug("Token request rejected")
		}
		return nil, perr
	}

	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

func (o *OAuthService) token(ctx context.Context, req TokenRequest) (*TokenResponse, *Error) {
	grant := oauth2.GrantType(req.GrantType)
	switch grant {
	case "":
		return nil, errInvalidRequest("grant_type is required")
	case oauth2.AuthorizationCode, oauth2.Refreshing, oauth2.ClientCredentials:
	default:
		return nil, newError(oautherrors.ErrUnsupportedGrantType, http.StatusBadRequest, "")
	}

	client, perr := o.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if perr != nil {
		return nil, perr
	}

	clientCfg, err := o.registry.LookupConfiguration(ctx, client.ID)
	if errors.Is(err, services.ErrConfigurationNotFound) {
		defaults := models.DefaultConfigurationBlob()
		clientCfg, err = &defaults, nil
	}
	if err != nil {
		return nil, errServer(err)
	}

	switch grant {
	case oauth2.AuthorizationCode:
		return o.authorizationCodeGrant(ctx, client, clientCfg, req)
	case oauth2.Refreshing:
		return o.refreshTokenGrant(ctx, client, clientCfg, req)
	default:
		return o.clientCredentialsGrant(ctx, client, clientCfg, req)
	}
}

// authenticateClient accepts public clients by id alone and confidential
// clients by id and secret.
func (o *OAuthService) authenticateClient(ctx context.Context, clientID, secret string) (*models.OAuthClient, *Error) {
	if clientID == "" {
		return nil, errInvalidClient("client authentication is required")
	}
	client, err := o.registry.Lookup(ctx, clientID)
	if errors.Is(err, services.ErrClientNotFound) {
		return nil, errInvalidClient("client authentication failed")
	}
	if err != nil {
		return nil, errServer(err)
	}
	if client.IsPublic() {
		return client, nil
	}

	ok, err := o.registry.VerifySecret(ctx, clientID, secret)
	if err != nil {
		return nil, errServer(err)
	}
	if !ok {
		return nil, errInvalidClient("client authentication failed")
	}
	return client, nil
}

func (o *OAuthService) authorizationCodeGrant(ctx context.Context, client *models.OAuthClient, clientCfg *models.ConfigurationBlob, req TokenRequest) (*TokenResponse, *Error) {
	if req.Code == "" {
		return nil, errInvalidRequest("code is required")
	}

	claims, err := o.codec.Validate(req.Code, client.ID)
	if err != nil {
		return nil, errInvalidGrant(codeFailure(err)).withCause(err)
	}

	// The code is consumed before the redirect URI comparison so that a
	// mismatching request still burns it.
	err = o.ledger.Redeem(ctx, claims.ID, client.ID, claims.ExpiresAt.Time)
	if errors.Is(err, store.ErrAlreadyRedeemed) {
		return nil, errInvalidGrant("authorization code has already been used")
	}
	if err != nil {
		return nil, errServer(err)
	}

	if !redirectMatches(claims.RedirectURI, req.RedirectURI, clientCfg.URIs.RedirectURIs) {
		return nil, errInvalidGrant("redirect_uri does not match the authorization request")
	}

	audience := claims.Resources
	if len(audience) == 0 {
		audience = []string{o.issuer.Audience()}
	}

	access, perr := o.issueAccess(ctx, tokens.NewAccessTokenClaims(claims.UserID, client.ID, claims.Scope), audience, clientCfg, oauth2.AuthorizationCode)
	if perr != nil {
		return nil, perr
	}
	refresh, perr := o.issueRefresh(ctx, tokens.NewRefreshTokenClaims(claims.UserID, client.ID, claims.Scope), clientCfg, oauth2.AuthorizationCode)
	if perr != nil {
		return nil, perr
	}

	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(o.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refresh,
		Scope:        claims.Scope,
	}, nil
}

func (o *OAuthService) refreshTokenGrant(ctx context.Context, client *models.OAuthClient, clientCfg *models.ConfigurationBlob, req TokenRequest) (*TokenResponse, *Error) {
	if req.RefreshToken == "" {
		return nil, errInvalidRequest("refresh_token is required")
	}

	claims, perr := o.verifyRefreshToken(ctx, req.RefreshToken, client.ID)
	if perr != nil {
		return nil, perr
	}

	audience := []string{o.issuer.Audience()}
	if len(req.Resources) > 0 {
		if perr := validateResources(req.Resources); perr != nil {
			return nil, perr
		}
		audience = req.Resources
	}

	// A rotated token is consumed before anything is issued, so of two
	// concurrent requests presenting it only one obtains new tokens.
	rotate := o.rotation != nil && o.rotation(clientCfg, claims)
	if rotate {
		err := o.tokens.RevokeOnce(ctx, recordFor(claims))
		if errors.Is(err, store.ErrAlreadyRevoked) {
			return nil, errInvalidGrant("refresh token has been revoked")
		}
		if err != nil {
			return nil, errServer(err)
		}
	}

	access, perr := o.issueAccess(ctx, tokens.NewAccessTokenClaims(claims.Subject, client.ID, claims.Scope), audience, clientCfg, oauth2.Refreshing)
	if perr != nil {
		return nil, perr
	}

	refresh := req.RefreshToken
	if rotate {
		refresh, perr = o.issueRefresh(ctx, tokens.NewRefreshTokenClaims(claims.Subject, client.ID, claims.Scope), clientCfg, oauth2.Refreshing)
		if perr != nil {
			return nil, perr
		}
		log.WithFields(logrus.Fields{"client_id": client.ID, "jti": claims.ID}).Debug("Refresh token rotated")
	}

	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(o.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refresh,
		Scope:        claims.Scope,
	}, nil
}

// verifyRefreshToken accepts only unrevoked refresh tokens issued to clientID.
// Access tokens are rejected even though their signature verifies.
func (o *OAuthService) verifyRefreshToken(ctx context.Context, token, clientID string) (*tokens.BaseClaims, *Error) {
	claims, err := o.issuer.Verify(token, o.issuer.Audience())
	if err != nil {
		return nil, errInvalidGrant("refresh token is invalid or expired").withCause(err)
	}
	if claims.TokenType != tokens.TypeRefresh {
		return nil, errInvalidGrant("token is not a refresh token")
	}
	if claims.ClientID != clientID {
		return nil, errInvalidGrant("refresh token was not issued to this client")
	}
	revoked, err := o.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, errServer(err)
	}
	if revoked {
		return nil, errInvalidGrant("refresh token has been revoked")
	}
	return claims, nil
}

func (o *OAuthService) clientCredentialsGrant(ctx context.Context, client *models.OAuthClient, clientCfg *models.ConfigurationBlob, req TokenRequest) (*TokenResponse, *Error) {
	if client.IsPublic() {
		return nil, newError(oautherrors.ErrUnauthorizedClient, http.StatusBadRequest, "public clients cannot use the client_credentials grant")
	}
	if perr := validateResources(req.Resources); perr != nil {
		return nil, perr
	}

	audience := req.Resources
	if len(audience) == 0 {
		audience = []string{o.issuer.Audience()}
	}

	access, perr := o.issueAccess(ctx, tokens.NewAccessTokenClaims(client.ID, client.ID, req.Scope), audience, clientCfg, oauth2.ClientCredentials)
	if perr != nil {
		return nil, perr
	}
	return &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(o.cfg.AccessTokenTTL.Seconds()),
		Scope:       req.Scope,
	}, nil
}

func (o *OAuthService) issueAccess(ctx context.Context, claims *tokens.AccessTokenClaims, audience []string, clientCfg *models.ConfigurationBlob, grant oauth2.GrantType) (string, *Error) {
	token, err := o.issuer.Issue(claims, o.cfg.AccessTokenTTL, audience, tokens.WithAlgorithm(clientCfg.JWT.Algorithm))
	if err != nil {
		return "", errServer(err)
	}
	if err := o.tokens.Record(ctx, recordFor(&claims.BaseClaims)); err != nil {
		return "", errServer(err)
	}
	o.inst.Metrics().RecordTokenIssued(ctx, claims.ClientID, grant.String(), tokens.TypeAccess)
	return token, nil
}

func (o *OAuthService) issueRefresh(ctx context.Context, claims *tokens.RefreshTokenClaims, clientCfg *models.ConfigurationBlob, grant oauth2.GrantType) (string, *Error) {
	ttl := o.cfg.RefreshTokenTTL
	if limit := clientCfg.MaxRefreshLifetime(); limit > 0 && limit < ttl {
		ttl = limit
	}

	token, err := o.issuer.IssueRefresh(claims, ttl, tokens.WithAlgorithm(clientCfg.JWT.Algorithm))
	if err != nil {
		return "", errServer(err)
	}
	if err := o.tokens.Record(ctx, recordFor(&claims.BaseClaims)); err != nil {
		return "", errServer(err)
	}
	o.inst.Metrics().RecordTokenIssued(ctx, claims.ClientID, grant.String(), tokens.TypeRefresh)
	return token, nil
}

// redirectMatches compares the token request redirect_uri with the one the
// code was issued for. A code issued without redirect_uri went to the single
// registered URI, which the client may repeat or omit.
func redirectMatches(sealed, requested string, registered []string) bool {
	if sealed != "" || requested == "" {
		return sealed == requested
	}
	effective, perr := effectiveRedirectURI(registered, "")
	return perr == nil && effective == requested
}

// recordFor builds the store record of a signed token from its claims
func recordFor(claims *tokens.BaseClaims) *models.TokenRecord {
	record := &models.TokenRecord{
		JTI:       claims.ID,
		ClientID:  claims.ClientID,
		Subject:   claims.Subject,
		TokenType: claims.TokenType,
		Scope:     claims.Scope,
	}
	if claims.IssuedAt != nil {
		record.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		record.ExpiresAt = claims.ExpiresAt.Time
	}
	if record.IssuedAt.IsZero() {
		record.IssuedAt = time.Now()
	}
	return record
}

// codeFailure turns a codec error into a client facing description
func codeFailure(err error) string {
	switch {
	case errors.Is(err, authcode.ErrClientMismatch):
		return "authorization code was not issued to this client"
	case errors.Is(err, authcode.ErrExpired):
		return "authorization code has expired"
	case errors.Is(err, authcode.ErrNotYetValid):
		return "authorization code is not yet valid"
	case errors.Is(err, authcode.ErrInvalidIssuer):
		return "authorization code was issued by another server"
	default:
		return "authorization code is invalid"
	}
}
