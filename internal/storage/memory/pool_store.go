package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
//
// Either st (transaction-scoped, mutex already held) or store (standalone)
// is set.
type PoolStore struct {
	st    *state
	store *Store
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

func (s *PoolStore) withState(fn func(st *state) error) error {
	if s.st != nil {
		return fn(s.st)
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return fn(s.store.st)
}

// Insert adds a new pool. Returns ErrDuplicateKey if pool_id exists.
func (s *PoolStore) Insert(_ context.Context, p *domain.Pool) error {
	if p == nil || p.PoolID == "" {
		return storage.ErrInvalidInput
	}
	return s.withState(func(st *state) error {
		if _, exists := st.pools[p.PoolID]; exists {
			return storage.ErrDuplicateKey
		}
		st.pools[p.PoolID] = clonePool(p)
		return nil
	})
}

// GetByID retrieves a pool by its ID. Returns ErrNotFound if not exists.
func (s *PoolStore) GetByID(_ context.Context, poolID string) (*domain.Pool, error) {
	var out *domain.Pool
	err := s.withState(func(st *state) error {
		p, exists := st.pools[poolID]
		if !exists {
			return storage.ErrNotFound
		}
		out = clonePool(p)
		return nil
	})
	return out, err
}

// GetForUpdate retrieves a pool. In the memory implementation the whole
// transaction already holds the store mutex, so no extra lock is taken.
func (s *PoolStore) GetForUpdate(ctx context.Context, poolID string) (*domain.Pool, error) {
	return s.GetByID(ctx, poolID)
}

// ListActiveIDs retrieves the IDs of all active pools, ordered by creation time ASC.
func (s *PoolStore) ListActiveIDs(_ context.Context) ([]string, error) {
	var active []*domain.Pool
	err := s.withState(func(st *state) error {
		for _, p := range st.pools {
			if p.IsActive {
				active = append(active, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].PoolID < active[j].PoolID
	})

	ids := make([]string, 0, len(active))
	for _, p := range active {
		ids = append(ids, p.PoolID)
	}
	return ids, nil
}

// UpdateValuation writes the pool's cached projections.
func (s *PoolStore) UpdateValuation(_ context.Context, poolID string, totalValue, lifetimePnL decimal.Decimal) error {
	return s.withState(func(st *state) error {
		p, exists := st.pools[poolID]
		if !exists {
			return storage.ErrNotFound
		}
		p.TotalValue = totalValue
		p.LifetimePnL = lifetimePnL
		return nil
	})
}

// UpdateBalances writes availableBalance and lifetimePnL.
func (s *PoolStore) UpdateBalances(_ context.Context, poolID string, availableBalance, lifetimePnL decimal.Decimal) error {
	return s.withState(func(st *state) error {
		p, exists := st.pools[poolID]
		if !exists {
			return storage.ErrNotFound
		}
		p.AvailableBalance = availableBalance
		p.LifetimePnL = lifetimePnL
		return nil
	})
}
