package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
)

// TxManager runs a function inside one database transaction. Every read and
// write issued through the Tx belongs to that transaction; the transaction
// commits when fn returns nil and rolls back otherwise, so a pool update or
// a settlement is never partially applied.
//
// Transactions for different pools may run in parallel. Transactions
// touching the same pool are serialized by GetForUpdate row locks.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx bundles the transaction-scoped stores.
type Tx interface {
	Pools() PoolStore
	Positions() PositionStore
	Deposits() DepositStore
}

// PoolStore provides access to pools storage.
type PoolStore interface {
	// Insert adds a new pool. Returns ErrDuplicateKey if pool_id exists.
	Insert(ctx context.Context, p *domain.Pool) error

	// GetByID retrieves a pool by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, poolID string) (*domain.Pool, error)

	// GetForUpdate retrieves a pool and locks its row for the remainder of
	// the transaction. Returns ErrNotFound if not exists.
	GetForUpdate(ctx context.Context, poolID string) (*domain.Pool, error)

	// ListActiveIDs retrieves the IDs of all active pools, ordered by
	// creation time ASC.
	ListActiveIDs(ctx context.Context) ([]string, error)

	// UpdateValuation writes the pool's cached projections.
	UpdateValuation(ctx context.Context, poolID string, totalValue, lifetimePnL decimal.Decimal) error

	// UpdateBalances writes availableBalance and lifetimePnL, used by
	// settlement when realized P&L is credited to the pool.
	UpdateBalances(ctx context.Context, poolID string, availableBalance, lifetimePnL decimal.Decimal) error
}

// PositionStore provides access to pool_positions storage.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if position_id exists.
	Insert(ctx context.Context, p *domain.PoolPosition) error

	// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, positionID string) (*domain.PoolPosition, error)

	// GetForUpdate retrieves a position and locks its row for the remainder
	// of the transaction. Returns ErrNotFound if not exists.
	GetForUpdate(ctx context.Context, positionID string) (*domain.PoolPosition, error)

	// ListOpenByPool retrieves all open positions of a pool, ordered by
	// open time ASC.
	ListOpenByPool(ctx context.Context, poolID string) ([]*domain.PoolPosition, error)

	// UpdateValuation writes a position's mark-to-market state.
	UpdateValuation(ctx context.Context, positionID string, currentPrice, unrealizedPnL decimal.Decimal) error

	// Close marks a position terminal: sets closedAt and realizedPnL, writes
	// the closing price and zeroes unrealizedPnL. The caller must have
	// verified inside the same transaction that the position is still open.
	Close(ctx context.Context, positionID string, closingPrice, realizedPnL decimal.Decimal, closedAt time.Time) error
}

// DepositStore provides access to pool_deposits storage.
type DepositStore interface {
	// Insert adds a new deposit. Returns ErrDuplicateKey if deposit_id exists.
	Insert(ctx context.Context, d *domain.PoolDeposit) error

	// GetByID retrieves a deposit by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, depositID string) (*domain.PoolDeposit, error)

	// ListActiveByPool retrieves all non-withdrawn deposits of a pool,
	// ordered by deposit time ASC.
	ListActiveByPool(ctx context.Context, poolID string) ([]*domain.PoolDeposit, error)

	// UpdateValuation writes a deposit's share-price-derived state.
	UpdateValuation(ctx context.Context, depositID string, currentValue, unrealizedPnL decimal.Decimal) error
}

// SnapshotStore provides access to pool_value_snapshots storage. Snapshots
// are written outside the valuation transaction and are best-effort history.
type SnapshotStore interface {
	// Insert adds a snapshot point.
	Insert(ctx context.Context, s *domain.PoolValueSnapshot) error

	// GetByPoolID retrieves all snapshots for a pool, ordered by timestamp ASC.
	GetByPoolID(ctx context.Context, poolID string) ([]*domain.PoolValueSnapshot, error)

	// GetByTimeRange retrieves snapshots for a pool within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, poolID string, start, end int64) ([]*domain.PoolValueSnapshot, error)
}
