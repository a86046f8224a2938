package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch-engine/internal/pkg/apperrors"
)

type rateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit throttles per authenticated subject, falling back to client IP
// for anonymous routes.
func RateLimit(limiter rateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if sub := c.GetString("sub"); sub != "" {
			key = "sub:" + sub
		}

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "rate limiter error",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			// fail open while redis is down
			c.Next()
			return
		}

		if !allowed {
			slog.WarnContext(c.Request.Context(), "rate limit exceeded",
				slog.String("key", key),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apperrors.ErrorResponse{
				Error: apperrors.ErrorBody{
					Code:    "RATE_LIMITED",
					Message: "too many requests, please try again later",
				},
			})
			return
		}

		c.Next()
	}
}
