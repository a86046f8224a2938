package driver

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"dispatch-engine/internal/common"
	domainerrors "dispatch-engine/internal/errors"
)

type Service interface {
	Register(ctx context.Context, actor common.Actor, in RegisterInput) (*Driver, error)
	GetByID(ctx context.Context, id string) (*Driver, error)
	ListAll(ctx context.Context, status *Status, page, limit int) ([]*Driver, int, error)
}

type service struct {
	repo Repository
	db   sqlx.ExtContext
	now  func() time.Time
}

func NewDriverService(repo Repository, db sqlx.ExtContext) Service {
	return &service{repo: repo, db: db, now: time.Now}
}

func (s *service) Register(ctx context.Context, actor common.Actor, in RegisterInput) (*Driver, error) {
	if !actor.IsManager() {
		return nil, domainerrors.NewForbidden("only managers may register drivers")
	}
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" || in.Name == "" {
		return nil, domainerrors.NewValidation("id and name are required")
	}

	d := New(in, s.now())
	if err := s.repo.Create(ctx, s.db, d); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, domainerrors.DriverAlreadyExists(in.ID)
		}
		var de *domainerrors.DomainError
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, domainerrors.NewUnavailable("failed to register driver", err)
	}
	return d, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Driver, error) {
	d, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, StoreError(id, err)
	}
	return d, nil
}

func (s *service) ListAll(ctx context.Context, status *Status, page, limit int) ([]*Driver, int, error) {
	if status != nil && !status.Valid() {
		return nil, 0, domainerrors.NewValidation("unknown status " + string(*status))
	}
	drivers, total, err := s.repo.ListAll(ctx, s.db, status, page, limit)
	if err != nil {
		return nil, 0, domainerrors.NewUnavailable("failed to list drivers", err)
	}
	return drivers, total, nil
}

// StoreError maps a repository failure for driver id onto the domain taxonomy.
func StoreError(id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domainerrors.DriverNotFound(id)
	}
	return domainerrors.NewUnavailable("driver store unavailable", err)
}
