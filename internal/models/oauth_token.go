package models

import (
	"time"
)

// TokenRecord tracks an issued access or refresh token by its jti.
// The token string itself is never stored.
type TokenRecord struct {
	JTI       string `gorm:"column:jti;primaryKey"`
	ClientID  string `gorm:"index;not null"`
	Subject   string `gorm:"index"`
	TokenType string `gorm:"not null;default:'access_token'"`
	Scope     string
	IssuedAt  time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TokenRecord) TableName() string {
	return "oauth_tokens"
}

// IsActive reports whether the token is neither revoked nor expired at now
func (t *TokenRecord) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
