package models

import (
	"time"
)

// ClientConfiguration is a versioned protocol configuration for a client.
// The row with the highest Version for a client is the active one.
type ClientConfiguration struct {
	ID        uint              `gorm:"primaryKey"`
	ClientID  string            `gorm:"index;not null"`
	Version   int               `gorm:"not null"`
	Blob      ConfigurationBlob `gorm:"column:configuration_blob;serializer:json;not null"`
	CreatedAt time.Time
}

func (ClientConfiguration) TableName() string {
	return "client_configurations"
}

// ConfigurationBlob is the JSON document stored with each configuration version
type ConfigurationBlob struct {
	OIDCConformant          bool            `json:"oidc_conformant"`
	SenderConstrained       bool            `json:"sender_constrained"`
	TokenEndpointAuthMethod string          `json:"token_endpoint_auth_method"`
	URIs                    URISettings     `json:"uris"`
	CORS                    CORSSettings    `json:"cors"`
	Refresh                 RefreshSettings `json:"refresh"`
	JWT                     JWTSettings     `json:"jwt"`
}

type URISettings struct {
	AppLoginURI  string   `json:"app_login_uri,omitempty"`
	RedirectURIs []string `json:"redirect_uris"`
	LogoutURIs   []string `json:"logout_uris,omitempty"`
	WebOrigins   []string `json:"web_origins,omitempty"`
}

type CORSSettings struct {
	Enabled        bool     `json:"is_enabled"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	FallbackURL    string   `json:"fallback_url,omitempty"`
}

// RefreshSettings holds lifetimes in seconds
type RefreshSettings struct {
	RotationEnabled        bool `json:"refresh_token_rotation_enabled"`
	RotationOverlapPeriod  int  `json:"rotation_overlap_period"`
	IdleLifetimeEnabled    bool `json:"idle_refresh_token_lifetime_enabled"`
	IdleLifetime           int  `json:"idle_refresh_token_lifetime"`
	MaximumLifetimeEnabled bool `json:"maximum_refresh_token_lifetime_enabled"`
	MaximumLifetime        int  `json:"maximum_refresh_token_lifetime"`
}

type JWTSettings struct {
	Algorithm string `json:"algorithm"`
}

// DefaultConfigurationBlob returns the settings applied to a freshly created client
func DefaultConfigurationBlob() ConfigurationBlob {
	return ConfigurationBlob{
		OIDCConformant:          true,
		TokenEndpointAuthMethod: "client_secret_basic",
		URIs:                    URISettings{RedirectURIs: []string{}},
		Refresh: RefreshSettings{
			IdleLifetime:    1296000,
			MaximumLifetime: 2592000,
		},
		JWT: JWTSettings{Algorithm: "HS256"},
	}
}

// MaxRefreshLifetime returns the configured refresh token lifetime cap, or
// zero when the client does not cap it.
func (b ConfigurationBlob) MaxRefreshLifetime() time.Duration {
	if !b.Refresh.MaximumLifetimeEnabled || b.Refresh.MaximumLifetime <= 0 {
		return 0
	}
	return time.Duration(b.Refresh.MaximumLifetime) * time.Second
}
