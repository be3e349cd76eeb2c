// Package authcode seals authorization grants into self-contained, encrypted
// authorization codes. A code is base64url(nonce || AEAD ciphertext) of the
// JSON claim set, so the server needs no storage to validate it.
package authcode

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/franciscosanchezn/authzilla/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrEncryption     = errors.New("authorization code encryption failed")
	ErrInvalidCode    = errors.New("invalid authorization code")
	ErrClientMismatch = errors.New("client id mismatch")
	ErrInvalidIssuer  = errors.New("invalid issuer")
	ErrNotYetValid    = errors.New("authorization code is not yet valid")
	ErrExpired        = errors.New("authorization code has expired")
)

// additional data bound into every ciphertext, versions the code format
var associatedData = []byte("authzilla/authorization-code/v1")

// Claims is the grant sealed inside an authorization code.
// Subject is unused; UserID carries the resource owner.
type Claims struct {
	jwt.RegisteredClaims
	ClientID    string   `json:"client_id"`
	UserID      string   `json:"user_id"`
	RedirectURI string   `json:"redirect_uri,omitempty"`
	Scope       string   `json:"scope,omitempty"`
	Resources   []string `json:"resource,omitempty"`
}

// Option customizes a single generated code
type Option func(*Claims)

// WithRedirectURI records the redirect_uri sent with the authorization request
func WithRedirectURI(uri string) Option {
	return func(c *Claims) { c.RedirectURI = uri }
}

// WithScope records the requested scope
func WithScope(scope string) Option {
	return func(c *Claims) { c.Scope = scope }
}

// WithResources records validated RFC 8707 resource indicators
func WithResources(resources []string) Option {
	return func(c *Claims) { c.Resources = resources }
}

// Codec generates and validates authorization codes. It holds only
// immutable state and is safe for concurrent use.
type Codec struct {
	aead   cipher.AEAD
	issuer string
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

// CodecOption customizes a Codec
type CodecOption func(*Codec)

// WithClock replaces time.Now
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec builds a codec from the validated server configuration.
func NewCodec(cfg *config.ServerConfig, opts ...CodecOption) (*Codec, error) {
	aead, err := newAEAD(cfg.AuthCodeCipher, cfg.AuthCodeKey)
	if err != nil {
		return nil, err
	}
	c := &Codec{
		aead:   aead,
		issuer: cfg.Issuer,
		ttl:    cfg.AuthCodeTTL,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newAEAD(name string, key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: key must be 32 bytes, got %d", ErrEncryption, len(key))
	}
	switch name {
	case config.CipherAESGCM, "":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
		}
		return aead, nil
	case config.CipherChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: unsupported cipher %q", ErrEncryption, name)
	}
}

// Generate issues a code for clientID on behalf of userID, valid from now
// until now + the configured TTL.
func (c *Codec) Generate(clientID, userID string, opts ...Option) (string, error) {
	now := c.now().Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		ClientID: clientID,
		UserID:   userID,
	}
	for _, opt := range opts {
		opt(&claims)
	}
	return c.Seal(claims)
}

// Seal encrypts an arbitrary claim set. Generate is the normal entry point.
func (c *Codec) Seal(claims Claims) (string, error) {
	if c == nil || c.aead == nil {
		return "", ErrEncryption
	}
	plaintext, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("%w: failed to generate nonce: %v", ErrEncryption, err)
	}

	// Seal appends to nonce, producing nonce || ciphertext
	sealed := c.aead.Seal(nonce, nonce, plaintext, associatedData)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a code without checking its claims.
func (c *Codec) Decrypt(code string) (*Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(code, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed encoding", ErrInvalidCode)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: payload too short", ErrInvalidCode)
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrInvalidCode)
	}

	var claims Claims
	if err := json.Unmarshal(plaintext, &claims); err != nil {
		return nil, fmt.Errorf("%w: malformed claims", ErrInvalidCode)
	}
	if claims.NotBefore == nil || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing time window", ErrInvalidCode)
	}
	return &claims, nil
}

// Validate decrypts a code and checks, in this order, client binding,
// issuer, not-before and expiry.
func (c *Codec) Validate(code, expectedClientID string) (*Claims, error) {
	claims, err := c.Decrypt(code)
	if err != nil {
		return nil, err
	}

	if claims.ClientID != expectedClientID {
		return nil, ErrClientMismatch
	}
	if claims.Issuer != c.issuer {
		return nil, ErrInvalidIssuer
	}

	now := c.now().Unix()
	if now < claims.NotBefore.Unix() {
		return nil, ErrNotYetValid
	}
	if now > claims.ExpiresAt.Unix() {
		return nil, ErrExpired
	}
	return claims, nil
}

// TTL returns the configured code lifetime
func (c *Codec) TTL() time.Duration {
	return c.ttl
}
