package auth

import (
	"context"
	"errors"
	"time"

	"github.com/franciscosanchezn/authzilla/internal/instrumentation"
	"github.com/franciscosanchezn/authzilla/internal/store"
	"github.com/franciscosanchezn/authzilla/internal/tokens"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// IntrospectionResponse is the RFC 7662 response body. Only Active is set
// for inactive tokens.
type IntrospectionResponse struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	Issuer    string   `json:"iss,omitempty"`
	Audience  []string `json:"aud,omitempty"`
	JTI       string   `json:"jti,omitempty"`
}

// Revoke marks token inactive. Unknown, invalid, expired and already revoked
// tokens succeed silently (RFC 7009 §2.2). Only a missing token or a storage
// fault is an error.
func (o *OAuthService) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	ctx, span := o.inst.StartSpan(ctx, instrumentation.SpanRevoke,
		attribute.String(instrumentation.AttrTokenType, tokenTypeHint),
	)
	defer span.End()

	if token == "" {
		perr := errInvalidRequest("token is required")
		instrumentation.RecordError(span, perr.Code(), nil)
		return perr
	}

	claims, err := o.issuer.Parse(token)
	if err != nil {
		log.WithError(err).Debug("Ignoring revocation of an unverifiable token")
		instrumentation.SetSpanSuccess(span)
		return nil
	}

	if err := o.tokens.Revoke(ctx, recordFor(claims)); err != nil {
		perr := errServer(err)
		instrumentation.RecordError(span, perr.Code(), err)
		log.WithFields(logrus.Fields{"jti": claims.ID, "client_id": claims.ClientID}).WithError(err).Error("Failed to revoke token")
		return perr
	}

	o.inst.Metrics().RecordTokenRevoked(ctx, claims.ClientID)
	log.WithFields(logrus.Fields{"jti": claims.ID, "client_id": claims.ClientID}).Info("Token revoked")
	instrumentation.SetSpanSuccess(span)
	return nil
}

// Introspect reports whether token is active. It never fails: any
// verification or storage problem yields an inactive response.
func (o *OAuthService) Introspect(ctx context.Context, token, tokenTypeHint string) *IntrospectionResponse {
	ctx, span := o.inst.StartSpan(ctx, instrumentation.SpanIntrospect,
		attribute.String(instrumentation.AttrTokenType, tokenTypeHint),
	)
	defer span.End()
	defer instrumentation.SetSpanSuccess(span)

	inactive := &IntrospectionResponse{Active: false}
	if token == "" {
		return inactive
	}

	claims, err := o.issuer.Parse(token)
	if err != nil {
		return inactive
	}
	if claims.TokenType == tokens.TypeSession {
		return inactive
	}

	// tokens issued before their record was kept are judged by the JWT alone
	record, err := o.tokens.Get(ctx, claims.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		log.WithField("jti", claims.ID).WithError(err).Error("Failed to load token record during introspection")
		return inactive
	case !record.IsActive(time.Now()):
		return inactive
	}

	resp := &IntrospectionResponse{
		Active:    true,
		Scope:     claims.Scope,
		ClientID:  claims.ClientID,
		Subject:   claims.Subject,
		TokenType: claims.TokenType,
		Issuer:    claims.Issuer,
		Audience:  claims.Audiences(),
		JTI:       claims.ID,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Unix()
	}
	return resp
}
