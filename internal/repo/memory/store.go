// Package memory keeps every table in process memory. It backs the service
// tests and the server's database-less development mode.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"dispatch-engine/internal/driver"
	"dispatch-engine/internal/earning"
	"dispatch-engine/internal/issue"
	"dispatch-engine/internal/order"
)

type tables struct {
	orders   map[uuid.UUID]order.Order
	drivers  map[string]driver.Driver
	earnings []earning.Earning
	issues   []issue.Issue
}

func (t *tables) clone() *tables {
	return &tables{
		orders:   maps.Clone(t.orders),
		drivers:  maps.Clone(t.drivers),
		earnings: slices.Clone(t.earnings),
		issues:   slices.Clone(t.issues),
	}
}

// Store serializes transactions and restores the pre-transaction tables when
// fn fails. Writes made outside a transaction while one is rolling back are lost.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *tables

	Commits   int
	Rollbacks int
}

func NewStore() *Store {
	return &Store{data: &tables{
		orders:  make(map[uuid.UUID]order.Order),
		drivers: make(map[string]driver.Driver),
	}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx sqlx.ExtContext) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	before := s.data.clone()
	s.mu.Unlock()

	if err := fn(nil); err != nil {
		s.mu.Lock()
		s.data = before
		s.Rollbacks++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.Commits++
	s.mu.Unlock()
	return nil
}

func (s *Store) WithinSnapshot(ctx context.Context, fn func(tx sqlx.ExtContext) error) error {
	return s.WithinTx(ctx, fn)
}

func (s *Store) Orders() *OrderRepository     { return &OrderRepository{s: s} }
func (s *Store) Drivers() *DriverRepository   { return &DriverRepository{s: s} }
func (s *Store) Earnings() *EarningRepository { return &EarningRepository{s: s} }
func (s *Store) Issues() *IssueRepository     { return &IssueRepository{s: s} }
