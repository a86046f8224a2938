package order

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/middleware"
	"dispatch-engine/internal/pkg/apperrors"
)

type Handler struct {
	service Service
	locator Locator
	routes  RouteEstimator
}

func NewHandler(service Service, locator Locator, routes RouteEstimator) *Handler {
	return &Handler{service: service, locator: locator, routes: routes}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, domainerrors.NewValidation("invalid order id"))
		return uuid.Nil, false
	}
	return id, true
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) Create(c *gin.Context) {
	var req CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToHTTPError(c, domainerrors.NewValidation(err.Error()))
		return
	}

	o, err := h.service.Create(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusCreated, OrderResponse{Order: o})
}

// -------------------------------------------------------------------------------------------------
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

	orders, total, err := h.service.List(c.Request.Context(), status, page, limit)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Orders: orders, Total: total, Page: page, Limit: limit})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) ListMine(c *gin.Context) {
	orders, err := h.service.ListByDriver(c.Request.Context(), middleware.ActorFrom(c).ID)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) Details(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	o, err := h.service.Get(ctx, middleware.ActorFrom(c), id)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}

	resp := OrderDetailResponse{Order: o}
	if o.AssignedDriverID != nil && h.locator != nil {
		if loc, found := h.locator.LatestLocation(ctx, *o.AssignedDriverID); found {
			resp.DriverLocation = &loc
			if stop, moving := o.NextStop(); moving {
				eta := EstimateETA(ctx, h.routes, loc, stop)
				resp.ETAMinutes = &eta
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) Transition(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req TransitionBody
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToHTTPError(c, domainerrors.NewValidation(err.Error()))
		return
	}

	o, err := h.service.Transition(c.Request.Context(), TransitionRequest{
		OrderID:  id,
		Actor:    middleware.ActorFrom(c),
		Target:   req.Status,
		DriverID: req.DriverID,
		Location: req.Location,
		Expected: req.ExpectedStatus,
	})
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrderResponse{Order: o})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) Rate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req RateBody
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToHTTPError(c, domainerrors.NewValidation(err.Error()))
		return
	}

	o, err := h.service.Rate(c.Request.Context(), middleware.ActorFrom(c), id, req.Rating)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrderResponse{Order: o})
}
