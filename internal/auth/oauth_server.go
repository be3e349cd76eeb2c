// Package auth implements the OAuth 2.1 authorization and token endpoints:
// the authorization request state machine, the grant dispatcher, and token
// revocation and introspection. HTTP parsing lives in the controllers.
package auth

import (
	"context"

	"github.com/franciscosanchezn/authzilla/internal/authcode"
	"github.com/franciscosanchezn/authzilla/internal/config"
	"github.com/franciscosanchezn/authzilla/internal/instrumentation"
	"github.com/franciscosanchezn/authzilla/internal/models"
	"github.com/franciscosanchezn/authzilla/internal/store"
	"github.com/franciscosanchezn/authzilla/internal/tokens"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)
}

// SetLogLevel adjusts the package logger, called once at startup
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// ClientRegistry looks up registered clients and their configuration
type ClientRegistry interface {
	Lookup(ctx context.Context, clientID string) (*models.OAuthClient, error)
	LookupConfiguration(ctx context.Context, clientID string) (*models.ConfigurationBlob, error)
	VerifySecret(ctx context.Context, clientID, secret string) (bool, error)
}

// RotationPolicy decides whether a refresh grant replaces the presented
// refresh token with a new one.
type RotationPolicy func(cfg *models.ConfigurationBlob, refresh *tokens.BaseClaims) bool

// DefaultRotationPolicy rotates when the client enables refresh token rotation
func DefaultRotationPolicy(cfg *models.ConfigurationBlob, _ *tokens.BaseClaims) bool {
	return cfg != nil && cfg.Refresh.RotationEnabled
}

// OAuthService wires the code codec, token issuer, client registry and token
// store behind the OAuth endpoints. All fields are set at construction.
type OAuthService struct {
	cfg      *config.ServerConfig
	codec    *authcode.Codec
	issuer   *tokens.Issuer
	registry ClientRegistry
	tokens   store.TokenStore
	ledger   store.RedemptionLedger
	inst     *instrumentation.Instrumentation
	rotation RotationPolicy
}

// Option customizes an OAuthService
type Option func(*OAuthService)

func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(o *OAuthService) { o.inst = inst }
}

func WithRotationPolicy(policy RotationPolicy) Option {
	return func(o *OAuthService) { o.rotation = policy }
}

func NewOAuthService(
	cfg *config.ServerConfig,
	codec *authcode.Codec,
	issuer *tokens.Issuer,
	registry ClientRegistry,
	st store.Store,
	opts ...Option,
) *OAuthService {
	o := &OAuthService{
		cfg:      cfg,
		codec:    codec,
		issuer:   issuer,
		registry: registry,
		tokens:   st,
		ledger:   st,
		rotation: DefaultRotationPolicy,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Issuer exposes the token issuer for JWKS publication
func (o *OAuthService) Issuer() *tokens.Issuer {
	return o.issuer
}
