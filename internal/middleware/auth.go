package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dispatch-engine/internal/common"
	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/jwt"
	"dispatch-engine/internal/pkg/apperrors"
)

// the websocket endpoint authenticates with its own query token
var skipAuth = map[string]bool{
	"/auth/token": true,
	"/health":     true,
	"/ws":         true,
}

func Auth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipAuth[c.Request.URL.Path] {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "missing authorization header")
			return
		}

		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			unauthorized(c, "invalid authorization format")
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "auth failed",
				slog.String("path", c.Request.URL.Path),
				slog.String("ip", c.ClientIP()),
				slog.String("error", err.Error()),
			)
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set("sub", claims.Sub)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// ActorFrom returns the authenticated caller stored by Auth.
func ActorFrom(c *gin.Context) common.Actor {
	return common.Actor{Role: common.Role(c.GetString("role")), ID: c.GetString("sub")}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.ErrorResponse{
		Error: apperrors.ErrorBody{
			Code:    domainerrors.ErrUnauthorized,
			Message: msg,
		},
	})
}
