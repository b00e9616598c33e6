package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	db querier
}

// NewPoolStore creates a new PoolStore bound to the connection pool.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{db: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

const poolColumns = `
	pool_id, agent_id, name,
	available_balance, total_deposits, total_value, lifetime_pnl,
	is_active, created_at, updated_at
`

// Insert adds a new pool. Returns ErrDuplicateKey if pool_id exists.
func (s *PoolStore) Insert(ctx context.Context, p *domain.Pool) error {
	query := `
		INSERT INTO pools (` + poolColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.Exec(ctx, query,
		p.PoolID, p.AgentID, p.Name,
		p.AvailableBalance, p.TotalDeposits, p.TotalValue, p.LifetimePnL,
		p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

// GetByID retrieves a pool by its ID. Returns ErrNotFound if not exists.
func (s *PoolStore) GetByID(ctx context.Context, poolID string) (*domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools WHERE pool_id = $1`

	p, err := scanPool(s.db.QueryRow(ctx, query, poolID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool by id: %w", err)
	}
	return p, nil
}

// GetForUpdate retrieves a pool and locks its row for the remainder of the
// transaction. Concurrent valuation or settlement passes for the same pool
// queue here instead of interleaving writes.
func (s *PoolStore) GetForUpdate(ctx context.Context, poolID string) (*domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools WHERE pool_id = $1 FOR UPDATE`

	p, err := scanPool(s.db.QueryRow(ctx, query, poolID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool for update: %w", err)
	}
	return p, nil
}

// ListActiveIDs retrieves the IDs of all active pools, ordered by creation time ASC.
func (s *PoolStore) ListActiveIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT pool_id FROM pools
		WHERE is_active = TRUE
		ORDER BY created_at ASC, pool_id ASC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active pool ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pool id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool id rows: %w", err)
	}
	return ids, nil
}

// UpdateValuation writes the pool's cached projections.
func (s *PoolStore) UpdateValuation(ctx context.Context, poolID string, totalValue, lifetimePnL decimal.Decimal) error {
	query := `
		UPDATE pools
		SET total_value = $2, lifetime_pnl = $3, updated_at = now()
		WHERE pool_id = $1
	`

	tag, err := s.db.Exec(ctx, query, poolID, totalValue, lifetimePnL)
	if err != nil {
		return fmt.Errorf("update pool valuation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateBalances writes availableBalance and lifetimePnL.
func (s *PoolStore) UpdateBalances(ctx context.Context, poolID string, availableBalance, lifetimePnL decimal.Decimal) error {
	query := `
		UPDATE pools
		SET available_balance = $2, lifetime_pnl = $3, updated_at = now()
		WHERE pool_id = $1
	`

	tag, err := s.db.Exec(ctx, query, poolID, availableBalance, lifetimePnL)
	if err != nil {
		return fmt.Errorf("update pool balances: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanPool scans a single row into a Pool.
func scanPool(row pgx.Row) (*domain.Pool, error) {
	var p domain.Pool

	err := row.Scan(
		&p.PoolID, &p.AgentID, &p.Name,
		&p.AvailableBalance, &p.TotalDeposits, &p.TotalValue, &p.LifetimePnL,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}
