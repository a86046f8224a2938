package manager

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch-engine/internal/pkg/apperrors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Locations(c *gin.Context) {
	records := h.service.Locations(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"locations": records, "total": len(records)})
}

func (h *Handler) DriverLocation(c *gin.Context) {
	loc, err := h.service.DriverLocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"location": loc})
}

func (h *Handler) Overview(c *gin.Context) {
	ov, err := h.service.Overview(c.Request.Context())
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (h *Handler) OpenIssues(c *gin.Context) {
	list, err := h.service.OpenIssues(c.Request.Context())
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": list, "total": len(list)})
}
