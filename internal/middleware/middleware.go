// Package middleware resolves who is calling: the logged in user from the
// session cookie, or the bearer of an access token.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/franciscosanchezn/authzilla/internal/auth"
	"github.com/franciscosanchezn/authzilla/internal/models"
	"github.com/franciscosanchezn/authzilla/internal/tokens"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
}

// SetLogLevel sets the log level of the middleware logger
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// Context keys set by the middleware
const (
	PrincipalKey = "principal"
	UserIDKey    = "userID"
	ClientIDKey  = "clientID"
	ScopesKey    = "scopes"
	AuthTypeKey  = "auth_type"
)

// TokenVerifier checks bearer tokens presented to the management API
type TokenVerifier interface {
	VerifyManagementToken(ctx context.Context, token string) (*tokens.BaseClaims, error)
}

// BearerAuth authenticates RFC 6750 bearer tokens. A request without an
// Authorization header passes through when a session principal is already
// present, so the management API is usable from a logged in browser.
func BearerAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if CurrentPrincipal(c).Authenticated {
				c.Next()
				return
			}
			respondWithBearerError(c, http.StatusUnauthorized, "invalid_request",
				"Missing Authorization header. A valid Bearer token is required.")
			return
		}

		scheme, tokenString, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			respondWithBearerError(c, http.StatusUnauthorized, "invalid_request",
				"Authorization header must use Bearer scheme. Format: 'Bearer <token>'")
			return
		}
		tokenString = strings.TrimSpace(tokenString)
		if tokenString == "" {
			respondWithBearerError(c, http.StatusUnauthorized, "invalid_token", "Bearer token is empty")
			return
		}

		claims, err := verifier.VerifyManagementToken(c.Request.Context(), tokenString)
		if err != nil {
			log.WithError(err).Debug("Rejected bearer token")
			respondWithBearerError(c, http.StatusUnauthorized, "invalid_token", bearerFailure(err))
			return
		}

		c.Set(ClientIDKey, claims.ClientID)
		c.Set(ScopesKey, claims.Scope)
		c.Set(AuthTypeKey, "bearer")
		// client credentials tokens carry the client id as subject
		if userID, err := parseUserID(claims.Subject); err == nil {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	}
}

// RequireUser aborts unless the request was authenticated as a user, either
// by session or by a bearer token issued on a user's behalf.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok {
			c.JSON(http.StatusUnauthorized, models.NewAPIError(models.ErrUnauthorized, "A user is required for this operation"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id stored in the context
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

func respondWithBearerError(c *gin.Context, status int, code, description string) {
	c.Header("WWW-Authenticate", fmt.Sprintf(`Bearer realm="authzilla", error=%q`, code))
	c.AbortWithStatusJSON(status, models.NewOAuth2Error(code, description))
}

func bearerFailure(err error) string {
	switch {
	case errors.Is(err, tokens.ErrExpired):
		return "The access token has expired"
	case errors.Is(err, auth.ErrTokenRevoked):
		return "The access token has been revoked"
	case errors.Is(err, auth.ErrForeignClient):
		return "The access token was issued to a client the user does not own"
	default:
		return "The access token is invalid"
	}
}

func parseUserID(subject string) (uint, error) {
	id, err := strconv.ParseUint(subject, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", subject, err)
	}
	if id == 0 {
		return 0, errors.New("invalid user id: cannot be zero")
	}
	return uint(id), nil
}
