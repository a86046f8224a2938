package driver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/middleware"
	"dispatch-engine/internal/pkg/apperrors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToHTTPError(c, domainerrors.NewValidation(err.Error()))
		return
	}

	d, err := h.service.Register(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"driver": d})
}

func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var status *Status
	if s := c.Query("status"); s != "" {
		st := Status(s)
		status = &st
	}

	drivers, total, err := h.service.ListAll(c.Request.Context(), status, page, limit)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Drivers: drivers, Total: total, Page: page, Limit: limit})
}

func (h *Handler) Me(c *gin.Context) {
	d, err := h.service.GetByID(c.Request.Context(), middleware.ActorFrom(c).ID)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"driver": d})
}
