package models

import (
	"time"
)

// ClientMetadata holds the descriptive details of a client shown to users.
// Each client has at most one row.
type ClientMetadata struct {
	ClientID  string       `gorm:"primaryKey"`
	Blob      MetadataBlob `gorm:"column:metadata_blob;serializer:json;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ClientMetadata) TableName() string {
	return "client_metadata"
}

// MetadataBlob is the JSON document stored as client metadata
type MetadataBlob struct {
	Description     string `json:"description,omitempty" binding:"max=1024"`
	Logo            string `json:"logo,omitempty" binding:"omitempty,url"`
	TOS             string `json:"tos,omitempty" binding:"omitempty,url"`
	PrivacyPolicy   string `json:"privacy_policy,omitempty" binding:"omitempty,url"`
	SecurityContact string `json:"security_contact,omitempty" binding:"max=255"`
	PrivacyContact  string `json:"privacy_contact,omitempty" binding:"max=255"`
}
