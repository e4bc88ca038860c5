package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inventory-ledger/internal/models"
	"github.com/inventory-ledger/internal/service"
	"github.com/inventory-ledger/pkg/response"
)

const (
	// ContextKeyUser is the key for the authenticated user in gin context
	ContextKeyUser = "user"
	// ContextKeyToken is the key for the bearer token in gin context
	ContextKeyToken = "token"
)

// SessionAuth rejects requests without a valid session token. Websocket
// upgrades may pass the token as the "token" query parameter since browsers
// cannot set headers on them.
func SessionAuth(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "missing or malformed authorization header")
			c.Abort()
			return
		}

		// Validate token
		user, err := sessions.Validate(c.Request.Context(), token)
		if err != nil {
			if msg := service.Message(err); msg != "" {
				response.Unauthorized(c, msg)
			} else {
				_ = c.Error(err)
				response.InternalError(c, "internal server error")
			}
			c.Abort()
			return
		}

		// Set user info in context
		c.Set(ContextKeyUser, user)
		c.Set(ContextKeyToken, token)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if isWebsocketUpgrade(c) {
			if token := c.Query("token"); token != "" {
				return token, true
			}
		}
		return "", false
	}

	// Check Bearer prefix
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func isWebsocketUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// GetUser gets the authenticated user from the gin context
func GetUser(c *gin.Context) *models.User {
	user, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil
	}
	return user.(*models.User)
}

// GetToken gets the bearer token from the gin context
func GetToken(c *gin.Context) string {
	token, exists := c.Get(ContextKeyToken)
	if !exists {
		return ""
	}
	return token.(string)
}
