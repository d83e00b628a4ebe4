package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ayushdsd/spotlight-sub000/internal/auth"
)

// AuthMiddleware validates JWT tokens and sets user info in context
func AuthMiddleware() gin.HandlerFunc {
	return authenticate(false)
}

// WebSocketAuthMiddleware also accepts the token as a ?token= query
// parameter, since browsers cannot set headers on a websocket handshake.
func WebSocketAuthMiddleware() gin.HandlerFunc {
	return authenticate(true)
}

func authenticate(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" && allowQuery {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "Authorization header required")
			return
		}

		claims, err := auth.ValidateToken(tokenString)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid token")
			return
		}

		userID, err := auth.GetUserIDFromToken(claims)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid user ID format in token")
			return
		}

		c.Set("userID", userID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// currentUserID returns the authenticated requester, aborting with 401 when
// the auth middleware did not run
func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
		return "", false
	}
	return userID, true
}

// pathID reads a UUID path parameter, aborting with 400 when it is malformed
func pathID(c *gin.Context, param, label string) (string, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		badRequest(c, "Invalid "+label)
		return "", false
	}
	return id.String(), true
}
