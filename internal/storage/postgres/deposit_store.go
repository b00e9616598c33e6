package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/storage"
)

// DepositStore implements storage.DepositStore using PostgreSQL.
type DepositStore struct {
	db querier
}

// NewDepositStore creates a new DepositStore bound to the connection pool.
func NewDepositStore(pool *Pool) *DepositStore {
	return &DepositStore{db: pool}
}

// Compile-time interface check.
var _ storage.DepositStore = (*DepositStore)(nil)

const depositColumns = `
	deposit_id, pool_id, user_id,
	amount, shares, current_value, unrealized_pnl,
	deposited_at, withdrawn_at
`

// Insert adds a new deposit. Returns ErrDuplicateKey if deposit_id exists.
func (s *DepositStore) Insert(ctx context.Context, d *domain.PoolDeposit) error {
	query := `
		INSERT INTO pool_deposits (` + depositColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.Exec(ctx, query,
		d.DepositID, d.PoolID, d.UserID,
		d.Amount, d.Shares, d.CurrentValue, d.UnrealizedPnL,
		d.DepositedAt, d.WithdrawnAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert deposit: %w", err)
	}
	return nil
}

// GetByID retrieves a deposit by its ID. Returns ErrNotFound if not exists.
func (s *DepositStore) GetByID(ctx context.Context, depositID string) (*domain.PoolDeposit, error) {
	query := `SELECT ` + depositColumns + ` FROM pool_deposits WHERE deposit_id = $1`

	d, err := scanDeposit(s.db.QueryRow(ctx, query, depositID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get deposit by id: %w", err)
	}
	return d, nil
}

// ListActiveByPool retrieves all non-withdrawn deposits of a pool, ordered
// by deposit time ASC.
func (s *DepositStore) ListActiveByPool(ctx context.Context, poolID string) ([]*domain.PoolDeposit, error) {
	query := `
		SELECT ` + depositColumns + `
		FROM pool_deposits
		WHERE pool_id = $1 AND withdrawn_at IS NULL
		ORDER BY deposited_at ASC, deposit_id ASC
	`

	rows, err := s.db.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("list active deposits: %w", err)
	}
	defer rows.Close()

	return scanDeposits(rows)
}

// UpdateValuation writes a deposit's share-price-derived state.
func (s *DepositStore) UpdateValuation(ctx context.Context, depositID string, currentValue, unrealizedPnL decimal.Decimal) error {
	query := `
		UPDATE pool_deposits
		SET current_value = $2, unrealized_pnl = $3
		WHERE deposit_id = $1
	`

	tag, err := s.db.Exec(ctx, query, depositID, currentValue, unrealizedPnL)
	if err != nil {
		return fmt.Errorf("update deposit valuation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanDeposit scans a single row into a PoolDeposit.
func scanDeposit(row pgx.Row) (*domain.PoolDeposit, error) {
	var d domain.PoolDeposit

	err := row.Scan(
		&d.DepositID, &d.PoolID, &d.UserID,
		&d.Amount, &d.Shares, &d.CurrentValue, &d.UnrealizedPnL,
		&d.DepositedAt, &d.WithdrawnAt,
	)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

// scanDeposits scans multiple rows into a slice of PoolDeposit.
func scanDeposits(rows pgx.Rows) ([]*domain.PoolDeposit, error) {
	var deposits []*domain.PoolDeposit

	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deposit row: %w", err)
		}
		deposits = append(deposits, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deposit rows: %w", err)
	}

	return deposits, nil
}
