package models

import (
	"fmt"
	"hash/crc32"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientID(t *testing.T) {
	id := NewClientID()
	assert.True(t, strings.HasPrefix(id, "cl-"))
	assert.NotEqual(t, id, NewClientID())
}

func TestNewClientSecretFormat(t *testing.T) {
	secret, err := NewClientSecret()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(secret), 72)

	require.True(t, strings.HasPrefix(secret, "AZL-CS-"))
	lastDash := strings.LastIndex(secret, "-")
	random := secret[len("AZL-CS-"):lastDash]
	checksum := secret[lastDash+1:]
	assert.Equal(t, fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte("AZL-CS_"+random))), checksum)
}

func TestOAuthClientVerifyPassword(t *testing.T) {
	secret, err := NewClientSecret()
	require.NoError(t, err)
	hash, err := HashClientSecret(secret)
	require.NoError(t, err)

	confidential := &OAuthClient{ID: "cl-1", Secret: hash}
	assert.True(t, confidential.VerifyPassword(secret))
	assert.False(t, confidential.VerifyPassword("wrong"))
	assert.False(t, confidential.VerifyPassword(""))

	public := &OAuthClient{ID: "cl-2", Secret: hash, Public: true}
	assert.False(t, public.VerifyPassword(secret))
}

func TestOAuthClientInfo(t *testing.T) {
	client := &OAuthClient{ID: "cl-1", Domain: "https://app.example.com", UserID: 7}
	assert.Equal(t, "cl-1", client.GetID())
	assert.Equal(t, "7", client.GetUserID())
	assert.Equal(t, "https://app.example.com", client.GetDomain())
	assert.False(t, client.IsPublic())
}

func TestMaxRefreshLifetime(t *testing.T) {
	blob := DefaultConfigurationBlob()
	assert.Zero(t, blob.MaxRefreshLifetime())

	blob.Refresh.MaximumLifetimeEnabled = true
	blob.Refresh.MaximumLifetime = 3600
	assert.Equal(t, time.Hour, blob.MaxRefreshLifetime())
}

func TestUserPassword(t *testing.T) {
	user := &User{Email: "owner@example.com", Password: "s3cret-password"}
	require.NoError(t, user.HashPassword())
	assert.Empty(t, user.Password)
	assert.NotEqual(t, "s3cret-password", user.PasswordHash)
	assert.True(t, user.CheckPassword("s3cret-password"))
	assert.False(t, user.CheckPassword("other"))
}

func TestTokenRecordIsActive(t *testing.T) {
	now := time.Now()
	record := &TokenRecord{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, record.IsActive(now))
	assert.False(t, record.IsActive(now.Add(2*time.Minute)))

	record.RevokedAt = &now
	assert.False(t, record.IsActive(now))
}
