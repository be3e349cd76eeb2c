package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"strconv"
	"time"

	"github.com/go-oauth2/oauth2/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	clientIDPrefix     = "cl-"
	clientSecretPrefix = "AZL-CS"
)

var _ oauth2.ClientInfo = (*OAuthClient)(nil)

// OAuthClient is a registered client application. Secret holds a bcrypt hash
// and is empty for public clients.
type OAuthClient struct {
	ID        string `gorm:"primaryKey"`
	Secret    string
	Name      string `gorm:"default:'New Client'"`
	Domain    string // client_uri
	Public    bool   `gorm:"column:is_public;default:false"`
	AppType   string `gorm:"not null;default:'web'"`
	UserID    uint   `gorm:"index;not null"` // owner
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (OAuthClient) TableName() string {
	return "oauth_clients"
}

func (c *OAuthClient) GetID() string     { return c.ID }
func (c *OAuthClient) GetSecret() string { return c.Secret }
func (c *OAuthClient) GetDomain() string { return c.Domain }
func (c *OAuthClient) IsPublic() bool    { return c.Public }

func (c *OAuthClient) GetUserID() string {
	return strconv.FormatUint(uint64(c.UserID), 10)
}

// VerifyPassword checks a plain client secret against the stored bcrypt hash.
// Public clients never verify.
func (c *OAuthClient) VerifyPassword(secret string) bool {
	if c.Public || c.Secret == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.Secret), []byte(secret)) == nil
}

// NewClientID returns a public client identifier of the form cl-<uuid>
func NewClientID() string {
	return clientIDPrefix + uuid.NewString()
}

// NewClientSecret returns a high entropy secret of the form
// AZL-CS-<random>-<crc32 of prefix and random part>.
func NewClientSecret() (string, error) {
	// the whole secret must stay within the 72 byte bcrypt input limit
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	random := base64.RawURLEncoding.EncodeToString(buf)
	checksum := crc32.ChecksumIEEE([]byte(clientSecretPrefix + "_" + random))
	return fmt.Sprintf("%s-%s-%08x", clientSecretPrefix, random, checksum), nil
}

// HashClientSecret returns the bcrypt hash stored in place of a plain secret
func HashClientSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}
