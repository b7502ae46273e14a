package authtoken

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GinMiddleware validates the bearer client-identity token on the control
// plane's HTTP surface and stashes clientId/role in the gin context for
// handlers.go's role checks, mirroring the identity check the hub applies
// at its WebSocket handshake.
func GinMiddleware(signer *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

		claims, err := signer.ValidateIdentity(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			return
		}

		c.Set("clientId", claims.ClientID)
		c.Set("role", string(claims.Role))
		c.Next()
	}
}
