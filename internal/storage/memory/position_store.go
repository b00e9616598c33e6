package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	st    *state
	store *Store
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

func (s *PositionStore) withState(fn func(st *state) error) error {
	if s.st != nil {
		return fn(s.st)
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return fn(s.store.st)
}

// Insert adds a new position. Returns ErrDuplicateKey if position_id exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.PoolPosition) error {
	if p == nil || p.PositionID == "" || p.PoolID == "" {
		return storage.ErrInvalidInput
	}
	return s.withState(func(st *state) error {
		if _, exists := st.positions[p.PositionID]; exists {
			return storage.ErrDuplicateKey
		}
		st.positions[p.PositionID] = clonePosition(p)
		return nil
	})
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, positionID string) (*domain.PoolPosition, error) {
	var out *domain.PoolPosition
	err := s.withState(func(st *state) error {
		p, exists := st.positions[positionID]
		if !exists {
			return storage.ErrNotFound
		}
		out = clonePosition(p)
		return nil
	})
	return out, err
}

// GetForUpdate retrieves a position; the memory transaction already holds
// the store mutex.
func (s *PositionStore) GetForUpdate(ctx context.Context, positionID string) (*domain.PoolPosition, error) {
	return s.GetByID(ctx, positionID)
}

// ListOpenByPool retrieves all open positions of a pool, ordered by open time ASC.
func (s *PositionStore) ListOpenByPool(_ context.Context, poolID string) ([]*domain.PoolPosition, error) {
	var open []*domain.PoolPosition
	err := s.withState(func(st *state) error {
		for _, p := range st.positions {
			if p.PoolID == poolID && p.ClosedAt == nil {
				open = append(open, clonePosition(p))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(open, func(i, j int) bool {
		if !open[i].OpenedAt.Equal(open[j].OpenedAt) {
			return open[i].OpenedAt.Before(open[j].OpenedAt)
		}
		return open[i].PositionID < open[j].PositionID
	})
	return open, nil
}

// UpdateValuation writes a position's mark-to-market state.
func (s *PositionStore) UpdateValuation(_ context.Context, positionID string, currentPrice, unrealizedPnL decimal.Decimal) error {
	return s.withState(func(st *state) error {
		p, exists := st.positions[positionID]
		if !exists {
			return storage.ErrNotFound
		}
		p.CurrentPrice = currentPrice
		p.UnrealizedPnL = unrealizedPnL
		return nil
	})
}

// Close marks a position terminal. Returns ErrNotFound if the position does
// not exist or is already closed, matching the Postgres guard.
func (s *PositionStore) Close(_ context.Context, positionID string, closingPrice, realizedPnL decimal.Decimal, closedAt time.Time) error {
	return s.withState(func(st *state) error {
		p, exists := st.positions[positionID]
		if !exists || p.ClosedAt != nil {
			return storage.ErrNotFound
		}
		t := closedAt
		r := realizedPnL
		p.ClosedAt = &t
		p.CurrentPrice = closingPrice
		p.UnrealizedPnL = decimal.Zero
		p.RealizedPnL = &r
		return nil
	})
}
