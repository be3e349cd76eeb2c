package controllers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/franciscosanchezn/authzilla/internal/auth"
	"github.com/franciscosanchezn/authzilla/internal/middleware"
	"github.com/franciscosanchezn/authzilla/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
}

// SetLogLevel sets the log level of the controllers logger
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// OAuthController exposes the protocol endpoints of the authorization server
type OAuthController struct {
	svc *auth.OAuthService
}

func NewOAuthController(svc *auth.OAuthService) *OAuthController {
	return &OAuthController{svc: svc}
}

// Authorize godoc
// @Summary Authorization endpoint
// @Description Issues an authorization code to the redirect URI of a registered client (RFC 6749 §4.1.1, RFC 8707)
// @Tags OAuth2
// @Param client_id query string true "Client ID"
// @Param response_type query string true "Must be code"
// @Param redirect_uri query string false "Registered redirect URI"
// @Param scope query string false "Requested scope"
// @Param state query string false "Opaque value returned with the code"
// @Param resource query []string false "Resource indicators" collectionFormat(multi)
// @Success 302 "Redirect carrying code and state, or error and error_description"
// @Failure 400 {object} models.OAuth2Error
// @Failure 401 {object} models.OAuth2Error
// @Failure 403 {object} models.OAuth2Error
// @Failure 404 {object} models.OAuth2Error
// @Router /oauth/authorize [get]
func (oc *OAuthController) Authorize(c *gin.Context) {
	req := auth.AuthorizeRequest{
		ClientID:     c.Query("client_id"),
		RedirectURI:  c.Query("redirect_uri"),
		ResponseType: c.Query("response_type"),
		State:        c.Query("state"),
		Scope:        c.QueryArray("scope"),
		Resources:    c.QueryArray("resource"),
		ReturnTo:     c.Request.URL.RequestURI(),
	}

	result := oc.svc.Authorize(c.Request.Context(), middleware.CurrentPrincipal(c), req)
	if result.RedirectURL != "" {
		c.Redirect(http.StatusFound, result.RedirectURL)
		return
	}
	c.JSON(result.Err.Status, result.Err.Body())
}

// Token godoc
// @Summary Token endpoint
// @Description Exchanges an authorization code, a refresh token or client credentials for tokens (RFC 6749 §3.2)
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param grant_type formData string true "authorization_code, refresh_token or client_credentials"
// @Param code formData string false "Authorization code"
// @Param redirect_uri formData string false "Redirect URI used at the authorization endpoint"
// @Param refresh_token formData string false "Refresh token"
// @Param scope formData string false "Scope for client_credentials"
// @Param resource formData []string false "Resource indicators" collectionFormat(multi)
// @Param client_id formData string false "Client ID when not using HTTP Basic"
// @Param client_secret formData string false "Client secret when not using HTTP Basic"
// @Success 200 {object} auth.TokenResponse
// @Failure 400 {object} models.OAuth2Error
// @Failure 401 {object} models.OAuth2Error
// @Router /oauth/token [post]
func (oc *OAuthController) Token(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")

	req := auth.TokenRequest{
		GrantType:    c.PostForm("grant_type"),
		ClientID:     c.PostForm("client_id"),
		ClientSecret: c.PostForm("client_secret"),
		Code:         c.PostForm("code"),
		RedirectURI:  c.PostForm("redirect_uri"),
		RefreshToken: c.PostForm("refresh_token"),
		Scope:        c.PostForm("scope"),
		Resources:    c.PostFormArray("resource"),
	}

	basic := false
	if id, secret, ok := c.Request.BasicAuth(); ok {
		// RFC 6749 §2.3.1: both parts are form-urlencoded before encoding
		clientID, idErr := url.QueryUnescape(id)
		clientSecret, secretErr := url.QueryUnescape(secret)
		if idErr != nil || secretErr != nil {
			c.JSON(http.StatusBadRequest, models.NewOAuth2Error("invalid_request", "Malformed HTTP Basic credentials"))
			return
		}
		// RFC 6749 §2.3: a client uses one authentication method per request
		if req.ClientSecret != "" || (req.ClientID != "" && req.ClientID != clientID) {
			c.JSON(http.StatusBadRequest, models.NewOAuth2Error("invalid_request", "Client credentials must be sent either in HTTP Basic or in the form, not both"))
			return
		}
		req.ClientID, req.ClientSecret, basic = clientID, clientSecret, true
	}

	resp, err := oc.svc.Token(c.Request.Context(), req)
	if err != nil {
		respondWithProtocolError(c, err, basic)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Revoke godoc
// @Summary Revocation endpoint
// @Description Revokes an access or refresh token (RFC 7009). Unknown tokens are accepted.
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Param token formData string true "Token to revoke"
// @Param token_type_hint formData string false "access_token or refresh_token"
// @Success 204 "Token revoked"
// @Failure 400 {object} models.OAuth2Error
// @Router /oauth/revoke [post]
func (oc *OAuthController) Revoke(c *gin.Context) {
	if err := oc.svc.Revoke(c.Request.Context(), c.PostForm("token"), c.PostForm("token_type_hint")); err != nil {
		respondWithProtocolError(c, err, false)
		return
	}
	c.Status(http.StatusNoContent)
}

// Introspect godoc
// @Summary Introspection endpoint
// @Description Reports whether a token is active and returns its claims (RFC 7662)
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param token formData string true "Token to inspect"
// @Param token_type_hint formData string false "access_token or refresh_token"
// @Success 200 {object} auth.IntrospectionResponse
// @Router /oauth/introspect [post]
func (oc *OAuthController) Introspect(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, oc.svc.Introspect(c.Request.Context(), c.PostForm("token"), c.PostForm("token_type_hint")))
}

// JWKS godoc
// @Summary JSON Web Key Set
// @Description Public keys that verify RS256 access tokens. Empty when tokens are HMAC signed.
// @Tags OAuth2
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /.well-known/jwks.json [get]
func (oc *OAuthController) JWKS(c *gin.Context) {
	set, err := oc.svc.Issuer().JWKS()
	if err != nil {
		log.WithError(err).Error("Failed to build JWKS")
		c.JSON(http.StatusInternalServerError, models.NewOAuth2Error("server_error", "The server could not publish its keys"))
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, set)
}

func respondWithProtocolError(c *gin.Context, err error, basic bool) {
	var perr *auth.Error
	if !errors.As(err, &perr) {
		log.WithError(err).Error("Unexpected error from the OAuth service")
		c.JSON(http.StatusInternalServerError, models.NewOAuth2Error("server_error", "The authorization server encountered an unexpected condition"))
		return
	}
	if perr.Status == http.StatusUnauthorized && basic {
		c.Header("WWW-Authenticate", `Basic realm="authzilla"`)
	}
	c.JSON(perr.Status, perr.Body())
}
