package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is a resource owner. Users own confidential clients and authorize codes.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string
	PasswordHash string `gorm:"not null" json:"-"`
	Password     string `gorm:"-" json:"-"` // plain text, only set while registering
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HashPassword replaces the plain text Password with its bcrypt hash
func (u *User) HashPassword() error {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	u.Password = ""
	return nil
}

// CheckPassword reports whether password matches the stored hash
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
