// Package memory provides in-memory implementations of the fund stores,
// used by unit tests and by the daemon when no database is configured.
//
// A Store holds all relational state behind one mutex. WithinTx clones the
// state, runs the transaction body against the clone, and swaps the clone in
// only on success. That gives the same all-or-nothing and same-pool
// serialization guarantees the Postgres implementation gets from
// transactions and row locks.
package memory

import (
	"context"
	"sync"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/storage"
)

// Store is the shared in-memory state backing all fund stores.
type Store struct {
	mu sync.Mutex
	st *state
}

// state holds one consistent version of all rows.
type state struct {
	pools     map[string]*domain.Pool
	positions map[string]*domain.PoolPosition
	deposits  map[string]*domain.PoolDeposit
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{st: newState()}
}

func newState() *state {
	return &state{
		pools:     make(map[string]*domain.Pool),
		positions: make(map[string]*domain.PoolPosition),
		deposits:  make(map[string]*domain.PoolDeposit),
	}
}

// clone deep-copies the state. Pointer fields on the row structs are
// re-pointed so a transaction can never mutate committed rows.
func (s *state) clone() *state {
	c := &state{
		pools:     make(map[string]*domain.Pool, len(s.pools)),
		positions: make(map[string]*domain.PoolPosition, len(s.positions)),
		deposits:  make(map[string]*domain.PoolDeposit, len(s.deposits)),
	}
	for id, p := range s.pools {
		c.pools[id] = clonePool(p)
	}
	for id, p := range s.positions {
		c.positions[id] = clonePosition(p)
	}
	for id, d := range s.deposits {
		c.deposits[id] = cloneDeposit(d)
	}
	return c
}

func clonePool(p *domain.Pool) *domain.Pool {
	cp := *p
	return &cp
}

func clonePosition(p *domain.PoolPosition) *domain.PoolPosition {
	cp := *p
	if p.RealizedPnL != nil {
		v := *p.RealizedPnL
		cp.RealizedPnL = &v
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}

func cloneDeposit(d *domain.PoolDeposit) *domain.PoolDeposit {
	cd := *d
	if d.WithdrawnAt != nil {
		t := *d.WithdrawnAt
		cd.WithdrawnAt = &t
	}
	return &cd
}

// Compile-time interface check.
var _ storage.TxManager = (*Store)(nil)

// WithinTx runs fn against a private clone of the state and commits the
// clone only when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shadow := s.st.clone()
	tx := &fundTx{st: shadow}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.st = shadow
	return nil
}

// fundTx bundles transaction-scoped stores over the shadow state. The Store
// mutex is held for the duration of the transaction, so the stores access
// the state without further locking.
type fundTx struct {
	st *state
}

func (t *fundTx) Pools() storage.PoolStore         { return &PoolStore{st: t.st} }
func (t *fundTx) Positions() storage.PositionStore { return &PositionStore{st: t.st} }
func (t *fundTx) Deposits() storage.DepositStore   { return &DepositStore{st: t.st} }

// Pools returns a standalone pool store for non-transactional access.
func (s *Store) Pools() *PoolStore { return &PoolStore{st: nil, store: s} }

// Positions returns a standalone position store for non-transactional access.
func (s *Store) Positions() *PositionStore { return &PositionStore{st: nil, store: s} }

// Deposits returns a standalone deposit store for non-transactional access.
func (s *Store) Deposits() *DepositStore { return &DepositStore{st: nil, store: s} }
