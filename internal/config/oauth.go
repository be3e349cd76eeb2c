package config

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Auth code ciphers
const (
	CipherAESGCM           = "aes-256-gcm"
	CipherChaCha20Poly1305 = "chacha20-poly1305"
)

const authCodeKeySize = 32

var (
	ErrMissingIssuer   = errors.New("ISSUER_NAME environment variable is required")
	ErrMissingAudience = errors.New("AUDIENCE environment variable is required")
	ErrLegacyCodeTTL   = errors.New("AUTH_CODE_EXPIRY_MINUTES is no longer supported, set AUTH_CODE_EXPIRY_SECONDS instead")
)

// ServerConfig is the OAuth core configuration. It is built once at startup,
// validated, and handed to every component constructor. Nothing mutates it afterwards.
type ServerConfig struct {
	Issuer   string
	Audience string

	AuthCodeKey    []byte
	AuthCodeCipher string
	AuthCodeTTL    time.Duration

	JWTAlgorithm      string
	AccessTokenSecret []byte
	RSAPrivateKey     *rsa.PrivateKey
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration

	LoginURL          string
	SessionCookieName string
	SessionTTL        time.Duration
}

// String returns a representation of ServerConfig with key material masked
func (c *ServerConfig) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("ServerConfig{Issuer: %s, Audience: %s, AuthCodeKey: [REDACTED], AuthCodeCipher: %s, AuthCodeTTL: %s, JWTAlgorithm: %s, AccessTokenSecret: [REDACTED], RSAKey: %t, AccessTokenTTL: %s, RefreshTokenTTL: %s, LoginURL: %s}",
		c.Issuer, c.Audience, c.AuthCodeCipher, c.AuthCodeTTL, c.JWTAlgorithm, c.RSAPrivateKey != nil, c.AccessTokenTTL, c.RefreshTokenTTL, c.LoginURL)
}

// LoadServerConfig reads the OAuth section from the environment and validates it.
func LoadServerConfig() (*ServerConfig, error) {
	if os.Getenv("AUTH_CODE_EXPIRY_MINUTES") != "" {
		return nil, ErrLegacyCodeTTL
	}

	codeTTL, err := envInt("AUTH_CODE_EXPIRY_SECONDS", 600)
	if err != nil {
		return nil, err
	}
	accessTTL, err := envInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := envInt("REFRESH_TOKEN_EXPIRE_MINUTES", 43200)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := envInt("SESSION_EXPIRE_MINUTES", 720)
	if err != nil {
		return nil, err
	}

	codeKey, err := DecodeAuthCodeKey(os.Getenv("AUTH_CODE_SECRET_KEY"))
	if err != nil {
		return nil, err
	}

	cfg := &ServerConfig{
		Issuer:            strings.TrimSpace(os.Getenv("ISSUER_NAME")),
		Audience:          strings.TrimSpace(os.Getenv("AUDIENCE")),
		AuthCodeKey:       codeKey,
		AuthCodeCipher:    GetEnvWithDefault("AUTH_CODE_CIPHER", CipherAESGCM),
		AuthCodeTTL:       time.Duration(codeTTL) * time.Second,
		JWTAlgorithm:      GetEnvWithDefault("JWT_ALGORITHM", "HS256"),
		AccessTokenSecret: []byte(os.Getenv("ACCESS_TOKEN_SECRET")),
		AccessTokenTTL:    time.Duration(accessTTL) * time.Minute,
		RefreshTokenTTL:   time.Duration(refreshTTL) * time.Minute,
		LoginURL:          GetEnvWithDefault("LOGIN_URL", ""),
		SessionCookieName: GetEnvWithDefault("SESSION_COOKIE_NAME", "authzilla_session"),
		SessionTTL:        time.Duration(sessionTTL) * time.Minute,
	}

	if path := os.Getenv("ACCESS_TOKEN_RSA_KEY_FILE"); path != "" {
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read ACCESS_TOKEN_RSA_KEY_FILE: %w", err)
		}
		cfg.RSAPrivateKey, err = jwt.ParseRSAPrivateKeyFromPEM(pem)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ACCESS_TOKEN_RSA_KEY_FILE: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants every component relies on
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return ErrMissingIssuer
	}
	if strings.TrimSpace(c.Audience) == "" {
		return ErrMissingAudience
	}
	if len(c.AuthCodeKey) != authCodeKeySize {
		return fmt.Errorf("AUTH_CODE_SECRET_KEY must be %d bytes, got %d", authCodeKeySize, len(c.AuthCodeKey))
	}
	if c.AuthCodeCipher != CipherAESGCM && c.AuthCodeCipher != CipherChaCha20Poly1305 {
		return fmt.Errorf("unsupported AUTH_CODE_CIPHER %q (supported: %s, %s)", c.AuthCodeCipher, CipherAESGCM, CipherChaCha20Poly1305)
	}
	if c.AuthCodeTTL <= 0 || c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.SessionTTL <= 0 {
		return errors.New("token and code lifetimes must be positive")
	}

	switch strings.ToUpper(c.JWTAlgorithm) {
	case "HS256", "HS384", "HS512":
		if len(c.AccessTokenSecret) < 32 {
			return fmt.Errorf("ACCESS_TOKEN_SECRET must be at least 32 bytes for %s", c.JWTAlgorithm)
		}
	case "RS256", "RS384", "RS512":
		if c.RSAPrivateKey == nil {
			return fmt.Errorf("ACCESS_TOKEN_RSA_KEY_FILE is required for %s", c.JWTAlgorithm)
		}
	default:
		return fmt.Errorf("unsupported JWT_ALGORITHM %q", c.JWTAlgorithm)
	}
	c.JWTAlgorithm = strings.ToUpper(c.JWTAlgorithm)
	return nil
}

// DecodeAuthCodeKey accepts a standard base64 encoding of a 32 byte key, or a
// raw 32 byte string.
func DecodeAuthCodeKey(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("AUTH_CODE_SECRET_KEY environment variable is required")
	}
	if key, err := base64.StdEncoding.DecodeString(value); err == nil && len(key) == authCodeKeySize {
		return key, nil
	}
	if len(value) == authCodeKeySize {
		return []byte(value), nil
	}
	return nil, fmt.Errorf("AUTH_CODE_SECRET_KEY must be %d bytes (raw or base64)", authCodeKeySize)
}

func envInt(key string, defaultValue int) (int, error) {
	value := GetEnvWithDefault(key, strconv.Itoa(defaultValue))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
