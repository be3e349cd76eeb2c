package controllers

import (
	"github.com/franciscosanchezn/authzilla/internal/auth"
	"github.com/franciscosanchezn/authzilla/internal/middleware"
	"github.com/franciscosanchezn/authzilla/internal/services"
	"github.com/gin-gonic/gin"
)

// Dependencies are the services the HTTP surface is built on
type Dependencies struct {
	OAuth   *auth.OAuthService
	Users   services.UserService
	Clients services.ClientService
	Cookie  CookieSettings
}

// SetupRoutes registers the protocol endpoints, login and the client
// management API on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	oauthController := NewOAuthController(deps.OAuth)
	authController := NewAuthController(deps.Users, deps.OAuth, deps.Cookie)
	clientController := NewClientController(deps.Clients)
	session := middleware.Session(deps.OAuth, deps.Cookie.Name)

	router.GET("/.well-known/jwks.json", oauthController.JWKS)

	oauth := router.Group("/oauth")
	{
		oauth.GET("/authorize", session, oauthController.Authorize)
		oauth.POST("/token", oauthController.Token)
		oauth.POST("/revoke", oauthController.Revoke)
		oauth.POST("/introspect", oauthController.Introspect)
	}

	v1 := router.Group("/api/v1")
	{
		authApi := v1.Group("/auth")
		{
			authApi.POST("/register", authController.Register)
			authApi.POST("/login", authController.Login)
			authApi.POST("/logout", authController.Logout)
		}

		// session cookie or bearer token, but always on behalf of a user
		protectedApi := v1.Group("/protected")
		protectedApi.Use(session, middleware.BearerAuth(deps.OAuth), middleware.RequireUser())
		{
			protectedApi.GET("/clients", clientController.ListClients)
			protectedApi.POST("/clients", clientController.CreateClient)
			protectedApi.GET("/clients/:id", clientController.GetClient)
			protectedApi.DELETE("/clients/:id", clientController.DeleteClient)
			protectedApi.PUT("/clients/:id/metadata", clientController.UpdateMetadata)
			protectedApi.PUT("/clients/:id/configuration", clientController.PushConfiguration)
		}
	}
}
