package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch-engine/internal/common"
	"dispatch-engine/internal/pkg/apperrors"
)

type Handler struct {
	authService Service
}

func NewHandler(authService Service) *Handler {
	return &Handler{authService: authService}
}

func (h *Handler) GenerateToken(c *gin.Context) {
	name := c.PostForm("name")
	role := common.Role(c.PostForm("role"))

	token, err := h.authService.GenerateToken(name, role)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
