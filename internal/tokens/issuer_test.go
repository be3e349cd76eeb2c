package tokens

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/franciscosanchezn/authzilla/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://auth.example.com"
	testAudience = "https://api.example.com"
)

func testConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Issuer:            testIssuer,
		Audience:          testAudience,
		JWTAlgorithm:      "HS256",
		AccessTokenSecret: []byte("test-access-token-secret-32-bytes!!"),
	}
}

func newTestIssuer(t *testing.T, cfg *config.ServerConfig, opts ...IssuerOption) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(cfg, opts...)
	require.NoError(t, err)
	return issuer
}

func TestIssueAndVerify(t *testing.T) {
	issuer := newTestIssuer(t, testConfig())

	token, err := issuer.Issue(NewAccessTokenClaims("42", "cl-1", "read"), time.Hour, []string{testAudience})
	require.NoError(t, err)
	assert.Contains(t, token, ".")

	claims, err := issuer.Verify(token, testAudience)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "cl-1", claims.ClientID)
	assert.Equal(t, "read", claims.Scope)
	assert.Equal(t, TypeAccess, claims.TokenType)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, []string{testAudience}, claims.Audiences())
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.IssuedAt)
	require.NotNil(t, claims.ExpiresAt)
	assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestIssueAssignsUniqueTokenIDs(t *testing.T) {
	issuer := newTestIssuer(t, testConfig())
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		token, err := issuer.Issue(NewAccessTokenClaims("42", "cl-1", ""), time.Hour, []string{testAudience})
		require.NoError(t, err)
		claims, err := issuer.Verify(token, testAudience)
		require.NoError(t, err)
		assert.False(t, seen[claims.ID], "duplicate jti %s", claims.ID)
		seen[claims.ID] = true
	}
}

func TestIssueRejectsBlankIssuerOrAudience(t *testing.T) {
	t.Run("blank issuer", func(t *testing.T) {
		cfg := testConfig()
		cfg.Issuer = "   "
		issuer := newTestIssuer(t, cfg)
		_, err := issuer.Issue(NewAccessTokenClaims("42", "cl-1", ""), time.Hour, []string{testAudience})
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("blank audience", func(t *testing.T) {
		issuer := newTestIssuer(t, testConfig())
		_, err := issuer.Issue(NewAccessTokenClaims("42", "cl-1", ""), time.Hour, []string{" ", ""})
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("blank refresh audience", func(t *testing.T) {
		cfg := testConfig()
		cfg.Audience = ""
		issuer := newTestIssuer(t, cfg)
		_, err := issuer.IssueRefresh(NewRefreshTokenClaims("42", "cl-1", ""), time.Hour)
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestIssueRefreshForcesTypeAndAudience(t *testing.T) {
	issuer := newTestIssuer(t, testConfig())

	payload := NewRefreshTokenClaims("42", "cl-1", "read")
	payload.TokenType = TypeAccess
	token, err := issuer.IssueRefresh(payload, 24*time.Hour)
	require.NoError(t, err)

	claims, err := issuer.Verify(token, testAudience)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, claims.TokenType)
	assert.Equal(t, []string{testAudience}, claims.Audiences())
}

func TestVerifyFailures(t *testing.T) {
	now := time.Unix(1700000000, 0)
	issuer := newTestIssuer(t, testConfig(), WithClock(func() time.Time { return now }))

	otherCfg := testConfig()
	otherCfg.AccessTokenSecret = []byte("a-completely-different-secret-value")
	forger := newTestIssuer(t, otherCfg, WithClock(func() time.Time { return now }))

	pastIssuer := newTestIssuer(t, testConfig(), WithClock(func() time.Time { return now.Add(-2 * time.Hour) }))

	forged, err := forger.Issue(NewAccessTokenClaims("42", "cl-1", ""), time.Hour, []string{testAudience})
	require.NoError(t, err)
	expired, err := pastIssuer.Issue(NewAccessTokenClaims("42", "cl-1", ""), time.Hour, []string{testAudience})
	require.NoError(t, err)
	otherAudience, err := issuer.Issue(NewAccessTokenClaims("42", "cl-1", ""), time.Hour, []string{"https://elsewhere.example.com"})
	require.NoError(t, err)

	testCases := []struct {
		name     string
		token    string
		expected error
	}{
		{name: "different secret", token: forged, expected: ErrInvalidSignature},
		{name: "expired", token: expired, expected: ErrExpired},
		{name: "audience mismatch", token: otherAudience, expected: ErrAudienceMismatch},
		{name: "garbage", token: "not-a-jwt", expected: ErrInvalidToken},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token, testAudience)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestVerifyRejectsUnsignedTokens(t *testing.T) {
	issuer := newTestIssuer(t, testConfig())

	claims := NewAccessTokenClaims("42", "cl-1", "")
	claims.Issuer = testIssuer
	claims.Audience = jwt.ClaimStrings{testAudience}
	claims.IssuedAt = jwt.NewNumericDate(time.Now())
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Verify(unsigned, testAudience)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseIgnoresAudience(t *testing.T) {
	issuer := newTestIssuer(t, testConfig())
	token, err := issuer.Issue(NewAccessTokenClaims("42", "cl-1", ""), time.Hour, []string{"https://resource.example.com"})
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
}

func TestVerifyRequiresExpectedAudience(t *testing.T) {
	issuer := newTestIssuer(t, testConfig())
	token, err := issuer.Issue(NewAccessTokenClaims("42", "cl-1", ""), time.Hour, []string{testAudience})
	require.NoError(t, err)

	_, err = issuer.Verify(token, "")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRSASigningAndJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.JWTAlgorithm = "RS256"
	cfg.RSAPrivateKey = key
	issuer := newTestIssuer(t, cfg)

	token, err := issuer.Issue(NewAccessTokenClaims("42", "cl-1", ""), time.Hour, []string{testAudience})
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &BaseClaims{})
	require.NoError(t, err)
	assert.Equal(t, "RS256", parsed.Method.Alg())
	assert.Equal(t, issuer.KeyID(), parsed.Header["kid"])

	_, err = issuer.Verify(token, testAudience)
	require.NoError(t, err)

	set, err := issuer.JWKS()
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	raw, err := json.Marshal(set)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"d":`, "private exponent must not be published")

	reparsed, err := jwk.Parse(raw)
	require.NoError(t, err)
	published, ok := reparsed.LookupKeyID(issuer.KeyID())
	require.True(t, ok)
	assert.Equal(t, "RS256", published.Algorithm())
}

func TestJWKSEmptyForHMAC(t *testing.T) {
	issuer := newTestIssuer(t, testConfig())
	set, err := issuer.JWKS()
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestPerTokenAlgorithmFallsBackToDefault(t *testing.T) {
	issuer := newTestIssuer(t, testConfig())
	assert.True(t, issuer.Supports("HS512"))
	assert.False(t, issuer.Supports("RS256"))

	token, err := issuer.Issue(NewAccessTokenClaims("42", "cl-1", ""), time.Hour, []string{testAudience}, WithAlgorithm("RS256"))
	require.NoError(t, err)
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &BaseClaims{})
	require.NoError(t, err)
	assert.Equal(t, "HS256", parsed.Method.Alg())

	token, err = issuer.Issue(NewAccessTokenClaims("42", "cl-1", ""), time.Hour, []string{testAudience}, WithAlgorithm("hs512"))
	require.NoError(t, err)
	parsed, _, err = jwt.NewParser().ParseUnverified(token, &BaseClaims{})
	require.NoError(t, err)
	assert.Equal(t, "HS512", parsed.Method.Alg())

	_, err = issuer.Verify(token, testAudience)
	assert.NoError(t, err)
}

func TestNewIssuerRequiresKeyForDefaultAlgorithm(t *testing.T) {
	cfg := testConfig()
	cfg.JWTAlgorithm = "RS256"
	_, err := NewIssuer(cfg)
	assert.ErrorIs(t, err, ErrConfiguration)
}
