package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/storage"
)

// DepositStore is an in-memory implementation of storage.DepositStore.
type DepositStore struct {
	st    *state
	store *Store
}

// Compile-time interface check.
var _ storage.DepositStore = (*DepositStore)(nil)

func (s *DepositStore) withState(fn func(st *state) error) error {
	if s.st != nil {
		return fn(s.st)
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return fn(s.store.st)
}

// Insert adds a new deposit. Returns ErrDuplicateKey if deposit_id exists.
func (s *DepositStore) Insert(_ context.Context, d *domain.PoolDeposit) error {
	if d == nil || d.DepositID == "" || d.PoolID == "" {
		return storage.ErrInvalidInput
	}
	return s.withState(func(st *state) error {
		if _, exists := st.deposits[d.DepositID]; exists {
			return storage.ErrDuplicateKey
		}
		st.deposits[d.DepositID] = cloneDeposit(d)
		return nil
	})
}

// GetByID retrieves a deposit by its ID. Returns ErrNotFound if not exists.
func (s *DepositStore) GetByID(_ context.Context, depositID string) (*domain.PoolDeposit, error) {
	var out *domain.PoolDeposit
	err := s.withState(func(st *state) error {
		d, exists := st.deposits[depositID]
		if !exists {
			return storage.ErrNotFound
		}
		out = cloneDeposit(d)
		return nil
	})
	return out, err
}

// ListActiveByPool retrieves all non-withdrawn deposits of a pool, ordered
// by deposit time ASC.
func (s *DepositStore) ListActiveByPool(_ context.Context, poolID string) ([]*domain.PoolDeposit, error) {
	var active []*domain.PoolDeposit
	err := s.withState(func(st *state) error {
		for _, d := range st.deposits {
			if d.PoolID == poolID && d.WithdrawnAt == nil {
				active = append(active, cloneDeposit(d))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(active, func(i, j int) bool {
		if !active[i].DepositedAt.Equal(active[j].DepositedAt) {
			return active[i].DepositedAt.Before(active[j].DepositedAt)
		}
		return active[i].DepositID < active[j].DepositID
	})
	return active, nil
}

// UpdateValuation writes a deposit's share-price-derived state.
func (s *DepositStore) UpdateValuation(_ context.Context, depositID string, currentValue, unrealizedPnL decimal.Decimal) error {
	return s.withState(func(st *state) error {
		d, exists := st.deposits[depositID]
		if !exists {
			return storage.ErrNotFound
		}
		d.CurrentValue = currentValue
		d.UnrealizedPnL = unrealizedPnL
		return nil
	})
}
