package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"social-realtime/internal/auth"
	"social-realtime/internal/observability"
	"social-realtime/internal/repositories"
)

// AuthMiddleware validates the Bearer token and requires the user to exist in the directory.
func AuthMiddleware(tokens *auth.Manager, userRepo repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			reject(c, auth.ReasonAbsent, "missing authorization")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			reject(c, auth.ReasonMalformed, "invalid authorization header")
			return
		}

		userID, err := tokens.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			reject(c, auth.Reason(err), "invalid token")
			return
		}

		user, err := userRepo.FindByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				reject(c, auth.ReasonInvalid, "user not found")
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}

		c.Set("userID", userID)
		c.Set("user", user)
		c.Next()
	}
}

func reject(c *gin.Context, reason, message string) {
	observability.IncAuthRejection("http", reason)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message, "reason": reason})
}
