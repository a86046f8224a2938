package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"dispatch-engine/internal/common"
	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/pkg/apperrors"
)

func RoleGuard(allowed ...common.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := common.Role(c.GetString("role"))
		if !slices.Contains(allowed, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, apperrors.ErrorResponse{
				Error: apperrors.ErrorBody{
					Code:    domainerrors.ErrForbidden,
					Message: "insufficient permissions",
				},
			})
			return
		}

		c.Next()
	}
}
