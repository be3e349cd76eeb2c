package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/franciscosanchezn/authzilla/internal/middleware"
	"github.com/franciscosanchezn/authzilla/internal/models"
	"github.com/franciscosanchezn/authzilla/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ClientController struct {
	clientService services.ClientService
}

func NewClientController(clientService services.ClientService) *ClientController {
	return &ClientController{clientService: clientService}
}

// clientView is the management API representation of a client. The secret
// hash is never returned.
type clientView struct {
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	Public    bool      `json:"is_public"`
	AppType   string    `json:"app_type"`
	CreatedAt time.Time `json:"created_at"`
}

func newClientView(client *models.OAuthClient) clientView {
	return clientView{
		ClientID:  client.ID,
		Name:      client.Name,
		Domain:    client.Domain,
		Public:    client.Public,
		AppType:   client.AppType,
		CreatedAt: client.CreatedAt,
	}
}

// CreateClient godoc
// @Summary Create OAuth2 client
// @Description Register a client application owned by the authenticated user. The secret is returned only once.
// @Tags OAuth2 Clients
// @Accept json
// @Produce json
// @Param client body object{name=string,domain=string,is_public=bool,app_type=string,redirect_uris=[]string,metadata=models.MetadataBlob} true "Client details"
// @Success 201 {object} map[string]interface{} "Client created with client_id and client_secret"
// @Failure 400 {object} models.APIError
// @Failure 401 {object} models.APIError
// @Failure 500 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/clients [post]
func (cc *ClientController) CreateClient(c *gin.Context) {
	var req struct {
		Name         string               `json:"name" binding:"required"`
		Domain       string               `json:"domain"`
		Public       bool                 `json:"is_public"`
		AppType      string               `json:"app_type"`
		RedirectURIs []string             `json:"redirect_uris"`
		Metadata     *models.MetadataBlob `json:"metadata"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	userID, _ := middleware.UserID(c)
	client, secret, err := cc.clientService.CreateClient(c.Request.Context(), userID, services.CreateClientInput{
		Name:         req.Name,
		Domain:       req.Domain,
		Public:       req.Public,
		AppType:      req.AppType,
		RedirectURIs: req.RedirectURIs,
		Metadata:     req.Metadata,
	})
	if errors.Is(err, services.ErrInvalidRedirectURI) {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to create client")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Client creation failed"))
		return
	}

	log.WithFields(logrus.Fields{"client_id": client.ID, "user_id": userID}).Info("Client created")
	body := gin.H{
		"client":        newClientView(client),
		"redirect_uris": req.RedirectURIs,
	}
	if req.Metadata != nil {
		body["metadata"] = req.Metadata
	}
	if secret != "" {
		body["client_secret"] = secret
	}
	c.JSON(http.StatusCreated, body)
}

// GetClient godoc
// @Summary Get OAuth2 client
// @Description Get a client owned by the authenticated user with its metadata and active configuration
// @Tags OAuth2 Clients
// @Produce json
// @Param id path string true "Client ID"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} models.APIError
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/clients/{id} [get]
func (cc *ClientController) GetClient(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	details, err := cc.clientService.GetClient(c.Request.Context(), c.Param("id"), userID)
	if errors.Is(err, services.ErrClientNotFound) {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrClientNotFound, "Client not found"))
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to load client")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to retrieve client"))
		return
	}

	body := gin.H{
		"client":   newClientView(&details.Client),
		"metadata": details.Metadata,
	}
	if details.Configuration != nil {
		body["version"] = details.Configuration.Version
		body["configuration"] = details.Configuration.Blob
	}
	c.JSON(http.StatusOK, body)
}

// UpdateMetadata godoc
// @Summary Replace client metadata
// @Description Replace the descriptive metadata of a client owned by the authenticated user
// @Tags OAuth2 Clients
// @Accept json
// @Produce json
// @Param id path string true "Client ID"
// @Param metadata body models.MetadataBlob true "Metadata document"
// @Success 200 {object} models.MetadataBlob
// @Failure 400 {object} models.APIError
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/clients/{id}/metadata [put]
func (cc *ClientController) UpdateMetadata(c *gin.Context) {
	var blob models.MetadataBlob
	if err := c.ShouldBindJSON(&blob); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	userID, _ := middleware.UserID(c)
	metadata, err := cc.clientService.UpdateMetadata(c.Request.Context(), c.Param("id"), userID, blob)
	if errors.Is(err, services.ErrClientNotFound) {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrClientNotFound, "Client not found"))
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to update client metadata")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Metadata update failed"))
		return
	}
	c.JSON(http.StatusOK, metadata.Blob)
}

// ListClients godoc
// @Summary List OAuth2 clients
// @Description Get all OAuth2 clients owned by the authenticated user
// @Tags OAuth2 Clients
// @Produce json
// @Success 200 {array} object "List of clients"
// @Failure 401 {object} models.APIError
// @Failure 500 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/clients [get]
func (cc *ClientController) ListClients(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	clients, err := cc.clientService.GetClientsByUserID(c.Request.Context(), userID)
	if err != nil {
		log.WithError(err).Error("Failed to list clients")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Failed to retrieve clients"))
		return
	}

	views := make([]clientView, 0, len(clients))
	for i := range clients {
		views = append(views, newClientView(&clients[i]))
	}
	c.JSON(http.StatusOK, views)
}

// DeleteClient godoc
// @Summary Delete OAuth2 client
// @Description Delete an OAuth2 client owned by the authenticated user
// @Tags OAuth2 Clients
// @Param id path string true "Client ID"
// @Success 204 "Client deleted successfully"
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/clients/{id} [delete]
func (cc *ClientController) DeleteClient(c *gin.Context) {
	clientID := c.Param("id")
	userID, _ := middleware.UserID(c)

	err := cc.clientService.DeleteClient(c.Request.Context(), clientID, userID)
	if errors.Is(err, services.ErrClientNotFound) {
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrClientNotFound, "Client not found"))
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to delete client")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Client deletion failed"))
		return
	}

	c.Status(http.StatusNoContent)
}

// PushConfiguration godoc
// @Summary Push client configuration
// @Description Store a new configuration version for a client. The latest version is the active one.
// @Tags OAuth2 Clients
// @Accept json
// @Produce json
// @Param id path string true "Client ID"
// @Param configuration body models.ConfigurationBlob true "Configuration document"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} models.APIError
// @Failure 404 {object} models.APIError
// @Security BearerAuth
// @Router /api/v1/protected/clients/{id}/configuration [put]
func (cc *ClientController) PushConfiguration(c *gin.Context) {
	blob := models.DefaultConfigurationBlob()
	if err := c.ShouldBindJSON(&blob); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	userID, _ := middleware.UserID(c)
	pushed, err := cc.clientService.PushConfiguration(c.Request.Context(), c.Param("id"), userID, blob)
	switch {
	case errors.Is(err, services.ErrClientNotFound):
		c.JSON(http.StatusNotFound, models.NewAPIError(models.ErrClientNotFound, "Client not found"))
		return
	case errors.Is(err, services.ErrInvalidRedirectURI):
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	case err != nil:
		log.WithError(err).Error("Failed to push client configuration")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Configuration update failed"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"client_id":     pushed.ClientID,
		"version":       pushed.Version,
		"configuration": pushed.Blob,
	})
}
