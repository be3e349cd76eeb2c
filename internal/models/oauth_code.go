package models

import (
	"time"
)

// CodeRedemption marks an authorization code as consumed. Rows can be purged
// once ExpiresAt has passed since the code is rejected by expiry after that.
type CodeRedemption struct {
	CodeID     string    `gorm:"primaryKey"`
	ClientID   string    `gorm:"index;not null"`
	ExpiresAt  time.Time `gorm:"index;not null"`
	RedeemedAt time.Time `gorm:"not null"`
}

func (CodeRedemption) TableName() string {
	return "oauth_code_redemptions"
}
