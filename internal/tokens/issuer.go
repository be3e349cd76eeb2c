package tokens

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/franciscosanchezn/authzilla/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrConfiguration     = errors.New("token issuer misconfigured")
	ErrExpired           = errors.New("token has expired")
	ErrInvalidSignature  = errors.New("token signature is invalid")
	ErrAudienceMismatch  = errors.New("token audience mismatch")
	ErrInvalidToken      = errors.New("token is invalid")
	ErrUnsupportedMethod = errors.New("unsupported signing algorithm")
)

// Issuer mints and verifies signed bearer tokens. It holds only immutable
// key material and is safe for concurrent use.
type Issuer struct {
	issuer     string
	audience   string
	algorithm  string
	hmacSecret []byte
	rsaKey     *rsa.PrivateKey
	keyID      string
	now        func() time.Time
}

// IssuerOption customizes an Issuer
type IssuerOption func(*Issuer)

// WithClock replaces time.Now for both signing and verification
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer builds an issuer from the validated server configuration
func NewIssuer(cfg *config.ServerConfig, opts ...IssuerOption) (*Issuer, error) {
	i := &Issuer{
		issuer:     strings.TrimSpace(cfg.Issuer),
		audience:   strings.TrimSpace(cfg.Audience),
		algorithm:  strings.ToUpper(cfg.JWTAlgorithm),
		hmacSecret: cfg.AccessTokenSecret,
		rsaKey:     cfg.RSAPrivateKey,
		now:        time.Now,
	}
	if i.algorithm == "" {
		i.algorithm = jwt.SigningMethodHS256.Alg()
	}
	if !i.Supports(i.algorithm) {
		return nil, fmt.Errorf("%w: no key material for %s", ErrConfiguration, i.algorithm)
	}
	if i.rsaKey != nil {
		kid, err := thumbprint(&i.rsaKey.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		i.keyID = kid
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Algorithm returns the server default signing algorithm
func (i *Issuer) Algorithm() string { return i.algorithm }

// Audience returns the server audience used for refresh tokens
func (i *Issuer) Audience() string { return i.audience }

// Supports reports whether the issuer holds key material for alg
func (i *Issuer) Supports(alg string) bool {
	switch jwt.GetSigningMethod(strings.ToUpper(alg)).(type) {
	case *jwt.SigningMethodHMAC:
		return len(i.hmacSecret) > 0
	case *jwt.SigningMethodRSA:
		return i.rsaKey != nil
	default:
		return false
	}
}

// IssueOption customizes a single issued token
type IssueOption func(*issueParams)

type issueParams struct {
	algorithm string
}

// WithAlgorithm signs with alg instead of the server default. Unsupported
// algorithms fall back to the default.
func WithAlgorithm(alg string) IssueOption {
	return func(p *issueParams) { p.algorithm = strings.ToUpper(alg) }
}

// Issue signs payload after setting iss, aud, iat, exp and a fresh jti
func (i *Issuer) Issue(payload Payload, ttl time.Duration, audience []string, opts ...IssueOption) (string, error) {
	if i.issuer == "" {
		return "", fmt.Errorf("%w: issuer cannot be empty", ErrConfiguration)
	}
	aud := make([]string, 0, len(audience))
	for _, a := range audience {
		if a = strings.TrimSpace(a); a != "" {
			aud = append(aud, a)
		}
	}
	if len(aud) == 0 {
		return "", fmt.Errorf("%w: audience cannot be empty", ErrConfiguration)
	}

	params := issueParams{algorithm: i.algorithm}
	for _, opt := range opts {
		opt(&params)
	}
	if !i.Supports(params.algorithm) {
		params.algorithm = i.algorithm
	}

	now := i.now()
	claims := payload.base()
	claims.Issuer = i.issuer
	claims.Audience = aud
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.ID = uuid.NewString()

	method := jwt.GetSigningMethod(params.algorithm)
	token := jwt.NewWithClaims(method, payload)
	key := any(i.hmacSecret)
	if _, ok := method.(*jwt.SigningMethodRSA); ok {
		key = i.rsaKey
		token.Header["kid"] = i.keyID
	}

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// IssueRefresh signs a refresh token for the server audience
func (i *Issuer) IssueRefresh(payload *RefreshTokenClaims, ttl time.Duration, opts ...IssueOption) (string, error) {
	if i.audience == "" {
		return "", fmt.Errorf("%w: audience cannot be empty", ErrConfiguration)
	}
	payload.TokenType = TypeRefresh
	return i.Issue(payload, ttl, []string{i.audience}, opts...)
}

// Verify checks signature, issuer, expiry and that expectedAudience is one
// of the token audiences.
func (i *Issuer) Verify(token, expectedAudience string) (*BaseClaims, error) {
	if strings.TrimSpace(expectedAudience) == "" {
		return nil, fmt.Errorf("%w: expected audience cannot be empty", ErrConfiguration)
	}
	return i.parse(token, jwt.WithAudience(expectedAudience))
}

// Parse checks signature, issuer and expiry without an audience constraint.
// It serves introspection and revocation, which accept any audience this
// server issued for.
func (i *Issuer) Parse(token string) (*BaseClaims, error) {
	return i.parse(token)
}

func (i *Issuer) parse(token string, extra ...jwt.ParserOption) (*BaseClaims, error) {
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods(i.validMethods()),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	}, extra...)

	claims := &BaseClaims{}
	_, err := jwt.ParseWithClaims(token, claims, i.keyFunc, opts...)
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

func (i *Issuer) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(i.hmacSecret) == 0 {
			return nil, ErrUnsupportedMethod
		}
		return i.hmacSecret, nil
	case *jwt.SigningMethodRSA:
		if i.rsaKey == nil {
			return nil, ErrUnsupportedMethod
		}
		return &i.rsaKey.PublicKey, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMethod, token.Header["alg"])
	}
}

func (i *Issuer) validMethods() []string {
	var methods []string
	for _, alg := range []string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512"} {
		if i.Supports(alg) {
			methods = append(methods, alg)
		}
	}
	return methods
}

// classify maps jwt library errors onto this package's error kinds
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudienceMismatch
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}
