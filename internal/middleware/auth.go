package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rdychk/rdychk/internal/utils"
	"github.com/rdychk/rdychk/pkg/logger"
	"github.com/rdychk/rdychk/pkg/response"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
)

// OptionalUser reads the external auth provider's bearer token when one is
// sent. Requests without a token continue as guests; a malformed or expired
// token is rejected so a client never silently loses its identity.
func OptionalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if errors.Is(err, utils.ErrAuthDisabled) {
			logger.Debug().Msg("bearer token ignored: external auth not configured")
			c.Next()
			return
		}
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID())
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

// GetUserID returns the external user id, or "" for guests.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
