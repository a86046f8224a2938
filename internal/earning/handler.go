package earning

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/middleware"
	"dispatch-engine/internal/pkg/apperrors"
)

type Service interface {
	Summary(ctx context.Context, driverID string, since *time.Time) (*Summary, error)
}

type service struct {
	repo Repository
	db   sqlx.ExtContext
}

func NewEarningService(repo Repository, db sqlx.ExtContext) Service {
	return &service{repo: repo, db: db}
}

func (s *service) Summary(ctx context.Context, driverID string, since *time.Time) (*Summary, error) {
	list, err := s.repo.ListByDriver(ctx, s.db, driverID, since)
	if err != nil {
		return nil, domainerrors.NewUnavailable("failed to load earnings", err)
	}
	sum := &Summary{Earnings: list, Jobs: len(list)}
	if sum.Earnings == nil {
		sum.Earnings = []*Earning{}
	}
	for _, e := range list {
		sum.Total += e.Amount
	}
	return sum, nil
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Mine returns the calling driver's earnings, optionally from ?since=RFC3339.
func (h *Handler) Mine(c *gin.Context) {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apperrors.ToHTTPError(c, domainerrors.NewValidation("since must be an RFC 3339 timestamp"))
			return
		}
		since = &t
	}

	sum, err := h.service.Summary(c.Request.Context(), middleware.ActorFrom(c).ID, since)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
