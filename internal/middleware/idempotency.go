package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/pkg/apperrors"
	"dispatch-engine/internal/redis"
)

type idempotencyStore interface {
	Check(ctx context.Context, userID, scope, key string) (*redis.CachedResponse, error)
	Set(ctx context.Context, userID, scope, key string, resp redis.CachedResponse) error
}

// responseRecorder captures the response body so we can store it.
type responseRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays the stored response, status included, when a request
// repeats an Idempotency-Key on the same route with the same path parameters.
func Idempotency(store idempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			c.Next()
			return
		}

		userID := c.GetString("sub")
		scope := idempotencyScope(c)
		ctx := c.Request.Context()

		// Check for a cached response.
		cached, err := store.Check(ctx, userID, scope, key)
		if err != nil {
			slog.ErrorContext(ctx, "idempotency check failed",
				slog.String("error", err.Error()),
			)
			// fail open
			c.Next()
			return
		}

		if cached != nil {
			contentType := cached.ContentType
			if contentType == "" {
				contentType = "application/json; charset=utf-8"
			}
			c.Header("Idempotent-Replay", "true")
			c.Data(cached.Status, contentType, cached.Body)
			c.Abort()
			return
		}

		// Record the response body.
		rec := &responseRecorder{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()

		// Only cache successful responses.
		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			resp := redis.CachedResponse{
				Status:      status,
				ContentType: c.Writer.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}
			if err := store.Set(ctx, userID, scope, key, resp); err != nil {
				slog.ErrorContext(ctx, "idempotency store failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// idempotencyScope is "METHOD /route/:pattern" followed by the path parameter values.
func idempotencyScope(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	var b strings.Builder
	b.WriteString(c.Request.Method)
	b.WriteByte(' ')
	b.WriteString(route)
	for _, p := range c.Params {
		b.WriteByte('|')
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// RequireIdempotencyKey rejects mutations without an Idempotency-Key header.
func RequireIdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		if c.GetHeader("Idempotency-Key") == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, apperrors.ErrorResponse{
				Error: apperrors.ErrorBody{
					Code:    domainerrors.ErrValidation,
					Message: "Idempotency-Key header is required",
				},
			})
			return
		}

		c.Next()
	}
}
