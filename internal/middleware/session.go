package middleware

import (
	"github.com/franciscosanchezn/authzilla/internal/auth"
	"github.com/gin-gonic/gin"
)

// SessionVerifier resolves a session cookie value to a principal
type SessionVerifier interface {
	SessionPrincipal(cookie string) (auth.Principal, error)
}

// Session attaches the principal of a valid session cookie to the request.
// It never aborts; anonymous requests carry an unauthenticated principal.
func Session(verifier SessionVerifier, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(cookieName)
		if err != nil || cookie == "" {
			c.Next()
			return
		}

		principal, err := verifier.SessionPrincipal(cookie)
		if err != nil {
			log.WithError(err).Debug("Ignoring invalid session cookie")
			c.Next()
			return
		}

		c.Set(PrincipalKey, principal)
		c.Set(AuthTypeKey, "session")
		if userID, err := parseUserID(principal.UserID); err == nil {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	}
}

// CurrentPrincipal returns the session principal of the request
func CurrentPrincipal(c *gin.Context) auth.Principal {
	if v, ok := c.Get(PrincipalKey); ok {
		if p, ok := v.(auth.Principal); ok {
			return p
		}
	}
	return auth.Principal{}
}
