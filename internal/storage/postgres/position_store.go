package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	db querier
}

// NewPositionStore creates a new PositionStore bound to the connection pool.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{db: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	position_id, pool_id, market_type, ticker, market_id, side,
	entry_price, size, shares,
	current_price, unrealized_pnl, realized_pnl,
	opened_at, closed_at
`

// Insert adds a new position. Returns ErrDuplicateKey if position_id exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.PoolPosition) error {
	query := `
		INSERT INTO pool_positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.db.Exec(ctx, query,
		p.PositionID, p.PoolID, p.MarketType, p.Ticker, p.MarketID, p.Side,
		p.EntryPrice, p.Size, p.Shares,
		p.CurrentPrice, p.UnrealizedPnL, nullDecimal(p.RealizedPnL),
		p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, positionID string) (*domain.PoolPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM pool_positions WHERE position_id = $1`

	p, err := scanPosition(s.db.QueryRow(ctx, query, positionID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// GetForUpdate retrieves a position and locks its row for the remainder of
// the transaction. Settlement relies on this so the open-position check and
// the close write cannot race with a concurrent closer.
func (s *PositionStore) GetForUpdate(ctx context.Context, positionID string) (*domain.PoolPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM pool_positions WHERE position_id = $1 FOR UPDATE`

	p, err := scanPosition(s.db.QueryRow(ctx, query, positionID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position for update: %w", err)
	}
	return p, nil
}

// ListOpenByPool retrieves all open positions of a pool, ordered by open time ASC.
func (s *PositionStore) ListOpenByPool(ctx context.Context, poolID string) ([]*domain.PoolPosition, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM pool_positions
		WHERE pool_id = $1 AND closed_at IS NULL
		ORDER BY opened_at ASC, position_id ASC
	`

	rows, err := s.db.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// UpdateValuation writes a position's mark-to-market state.
func (s *PositionStore) UpdateValuation(ctx context.Context, positionID string, currentPrice, unrealizedPnL decimal.Decimal) error {
	query := `
		UPDATE pool_positions
		SET current_price = $2, unrealized_pnl = $3
		WHERE position_id = $1
	`

	tag, err := s.db.Exec(ctx, query, positionID, currentPrice, unrealizedPnL)
	if err != nil {
		return fmt.Errorf("update position valuation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close marks a position terminal. The closed_at IS NULL guard is a second
// line of defense; the settlement engine checks under the row lock first.
func (s *PositionStore) Close(ctx context.Context, positionID string, closingPrice, realizedPnL decimal.Decimal, closedAt time.Time) error {
	query := `
		UPDATE pool_positions
		SET closed_at = $2, current_price = $3, unrealized_pnl = 0, realized_pnl = $4
		WHERE position_id = $1 AND closed_at IS NULL
	`

	tag, err := s.db.Exec(ctx, query, positionID, closedAt, closingPrice, realizedPnL)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// nullDecimal maps *decimal.Decimal to its SQL-nullable form.
func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// scanPosition scans a single row into a PoolPosition.
func scanPosition(row pgx.Row) (*domain.PoolPosition, error) {
	var (
		p        domain.PoolPosition
		realized decimal.NullDecimal
	)

	err := row.Scan(
		&p.PositionID, &p.PoolID, &p.MarketType, &p.Ticker, &p.MarketID, &p.Side,
		&p.EntryPrice, &p.Size, &p.Shares,
		&p.CurrentPrice, &p.UnrealizedPnL, &realized,
		&p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}

	if realized.Valid {
		p.RealizedPnL = &realized.Decimal
	}
	return &p, nil
}

// scanPositions scans multiple rows into a slice of PoolPosition.
func scanPositions(rows pgx.Rows) ([]*domain.PoolPosition, error) {
	var positions []*domain.PoolPosition

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}
