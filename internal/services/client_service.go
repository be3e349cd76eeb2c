package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/franciscosanchezn/authzilla/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrClientNotFound        = errors.New("client_not_found")
	ErrConfigurationNotFound = errors.New("configuration_not_found")
	ErrInvalidRedirectURI    = errors.New("invalid_redirect_uri")
)

// CreateClientInput describes a client registration request
type CreateClientInput struct {
	Name         string
	Domain       string
	Public       bool
	AppType      string
	RedirectURIs []string
	Metadata     *models.MetadataBlob
}

// ClientDetails is a client together with its metadata and active configuration
type ClientDetails struct {
	Client        models.OAuthClient
	Metadata      models.MetadataBlob
	Configuration *models.ClientConfiguration
}

// ClientService manages registered clients and serves as the client registry
// for the authorization and token endpoints.
type ClientService interface {
	// CreateClient registers a client owned by userID together with configuration
	// version 1. The plain secret is returned once and only its hash is stored.
	CreateClient(ctx context.Context, userID uint, input CreateClientInput) (*models.OAuthClient, string, error)
	GetClientsByUserID(ctx context.Context, userID uint) ([]models.OAuthClient, error)
	GetClientByID(ctx context.Context, id string) (*models.OAuthClient, error)
	// GetClient returns a client owned by userID with its metadata and latest configuration
	GetClient(ctx context.Context, clientID string, userID uint) (*ClientDetails, error)
	// UpdateMetadata replaces the metadata of a client owned by userID
	UpdateMetadata(ctx context.Context, clientID string, userID uint, blob models.MetadataBlob) (*models.ClientMetadata, error)
	DeleteClient(ctx context.Context, clientID string, userID uint) error
	// PushConfiguration stores blob as the next configuration version
	PushConfiguration(ctx context.Context, clientID string, userID uint, blob models.ConfigurationBlob) (*models.ClientConfiguration, error)

	Lookup(ctx context.Context, clientID string) (*models.OAuthClient, error)
	LookupConfiguration(ctx context.Context, clientID string) (*models.ConfigurationBlob, error)
	VerifySecret(ctx context.Context, clientID, secret string) (bool, error)
}

type clientService struct {
	db *gorm.DB
}

func NewClientService(db *gorm.DB) ClientService {
	return &clientService{db: db}
}

func (s *clientService) CreateClient(ctx context.Context, userID uint, input CreateClientInput) (*models.OAuthClient, string, error) {
	if err := validateRedirectURIs(input.RedirectURIs); err != nil {
		return nil, "", err
	}

	client := &models.OAuthClient{
		ID:      models.NewClientID(),
		Name:    input.Name,
		Domain:  input.Domain,
		Public:  input.Public,
		AppType: input.AppType,
		UserID:  userID,
	}
	if client.Name == "" {
		client.Name = "New Client"
	}
	if client.AppType == "" {
		client.AppType = "web"
	}

	var plainSecret string
	if !client.Public {
		secret, err := models.NewClientSecret()
		if err != nil {
			return nil, "", err
		}
		hash, err := models.HashClientSecret(secret)
		if err != nil {
			return nil, "", err
		}
		plainSecret = secret
		client.Secret = hash
	}

	blob := models.DefaultConfigurationBlob()
	blob.URIs.RedirectURIs = append(blob.URIs.RedirectURIs, input.RedirectURIs...)
	if client.Public {
		blob.TokenEndpointAuthMethod = "none"
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(client).Error; err != nil {
			return err
		}
		if input.Metadata != nil {
			if err := tx.Create(&models.ClientMetadata{ClientID: client.ID, Blob: *input.Metadata}).Error; err != nil {
				return err
			}
		}
		return tx.Create(&models.ClientConfiguration{ClientID: client.ID, Version: 1, Blob: blob}).Error
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create client: %w", err)
	}
	return client, plainSecret, nil
}

func (s *clientService) GetClientsByUserID(ctx context.Context, userID uint) ([]models.OAuthClient, error) {
	var clients []models.OAuthClient
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *clientService) GetClientByID(ctx context.Context, id string) (*models.OAuthClient, error) {
	var client models.OAuthClient
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *clientService) GetClient(ctx context.Context, clientID string, userID uint) (*ClientDetails, error) {
	var details ClientDetails
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", clientID, userID).First(&details.Client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}

	var metadata models.ClientMetadata
	err = s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&metadata).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	details.Metadata = metadata.Blob

	var cfg models.ClientConfiguration
	err = s.db.WithContext(ctx).Where("client_id = ?", clientID).Order("version DESC").First(&cfg).Error
	switch {
	case err == nil:
		details.Configuration = &cfg
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return &details, nil
}

func (s *clientService) UpdateMetadata(ctx context.Context, clientID string, userID uint, blob models.MetadataBlob) (*models.ClientMetadata, error) {
	metadata := &models.ClientMetadata{ClientID: clientID, Blob: blob}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var client models.OAuthClient
		err := tx.Where("id = ? AND user_id = ?", clientID, userID).First(&client).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClientNotFound
		}
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"metadata_blob", "updated_at"}),
		}).Create(metadata).Error
	})
	if err != nil {
		return nil, err
	}
	return metadata, nil
}

// DeleteClient removes a client owned by userID along with its metadata
func (s *clientService) DeleteClient(ctx context.Context, clientID string, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", clientID, userID).Delete(&models.OAuthClient{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrClientNotFound
		}
		return tx.Where("client_id = ?", clientID).Delete(&models.ClientMetadata{}).Error
	})
}

func (s *clientService) PushConfiguration(ctx context.Context, clientID string, userID uint, blob models.ConfigurationBlob) (*models.ClientConfiguration, error) {
	if err := validateRedirectURIs(blob.URIs.RedirectURIs); err != nil {
		return nil, err
	}

	var pushed *models.ClientConfiguration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var client models.OAuthClient
		err := tx.Where("id = ? AND user_id = ?", clientID, userID).First(&client).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClientNotFound
		}
		if err != nil {
			return err
		}

		var latest int
		err = tx.Model(&models.ClientConfiguration{}).
			Where("client_id = ?", clientID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&latest).Error
		if err != nil {
			return err
		}

		pushed = &models.ClientConfiguration{ClientID: clientID, Version: latest + 1, Blob: blob}
		return tx.Create(pushed).Error
	})
	if err != nil {
		return nil, err
	}
	return pushed, nil
}

// Lookup returns the client or ErrClientNotFound
func (s *clientService) Lookup(ctx context.Context, clientID string) (*models.OAuthClient, error) {
	return s.GetClientByID(ctx, clientID)
}

// LookupConfiguration returns the latest configuration version of a client
func (s *clientService) LookupConfiguration(ctx context.Context, clientID string) (*models.ConfigurationBlob, error) {
	var cfg models.ClientConfiguration
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("version DESC").
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConfigurationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg.Blob, nil
}

func (s *clientService) VerifySecret(ctx context.Context, clientID, secret string) (bool, error) {
	client, err := s.Lookup(ctx, clientID)
	if errors.Is(err, ErrClientNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return client.VerifyPassword(secret), nil
}

// validateRedirectURIs requires absolute URIs without fragments (RFC 6749 §3.1.2)
func validateRedirectURIs(uris []string) error {
	for _, raw := range uris {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Scheme == "" || u.Host == "" || u.Fragment != "" {
			return fmt.Errorf("%w: %q", ErrInvalidRedirectURI, raw)
		}
	}
	return nil
}
