package tokens

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
)

// KeyID returns the kid placed in RSA signed token headers
func (i *Issuer) KeyID() string { return i.keyID }

// JWKS returns the public verification keys. HMAC secrets are never
// published, so the set is empty unless an RSA key is configured.
func (i *Issuer) JWKS() (jwk.Set, error) {
	set := jwk.NewSet()
	if i.rsaKey == nil {
		return set, nil
	}

	key, err := jwk.New(&i.rsaKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK: %w", err)
	}
	alg := jwa.RS256
	if _, ok := jwaRSA[i.algorithm]; ok {
		alg = jwaRSA[i.algorithm]
	}
	_ = key.Set(jwk.KeyIDKey, i.keyID)
	_ = key.Set(jwk.AlgorithmKey, alg)
	_ = key.Set(jwk.KeyUsageKey, jwk.ForSignature)
	set.Add(key)
	return set, nil
}

var jwaRSA = map[string]jwa.SignatureAlgorithm{
	"RS256": jwa.RS256,
	"RS384": jwa.RS384,
	"RS512": jwa.RS512,
}

// thumbprint computes the RFC 7638 SHA-256 thumbprint used as kid
func thumbprint(pub *rsa.PublicKey) (string, error) {
	key, err := jwk.New(pub)
	if err != nil {
		return "", fmt.Errorf("failed to create JWK: %w", err)
	}
	sum, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
