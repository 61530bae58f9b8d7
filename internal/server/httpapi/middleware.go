package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dsemenov/datavault/internal/common"
	"github.com/dsemenov/datavault/internal/server/auth"
)

const userIDKey = "userID"

// authRequired resolves the Authorization bearer token into the request
// context. Requests without a valid token are rejected before any handler
// runs.
func authRequired(authenticator auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		identity, err := authenticator.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(userIDKey, identity.UserID)
		c.Next()
	}
}

// actorID returns the authenticated user id placed by authRequired.
func actorID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
