// Package settlement closes positions exactly once and realizes their P&L
// into the owning pool's balances.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/observability"
	"babylon-funds/internal/storage"
)

// ErrAlreadyClosed is returned when the position has already been settled.
// The caller's closing price is discarded; the persisted settlement stands.
var ErrAlreadyClosed = errors.New("position already closed")

var hundred = decimal.NewFromInt(100)

// Engine settles positions. Every close runs in one transaction so the
// position row and the pool's balances never diverge.
type Engine struct {
	txm     storage.TxManager
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Options for creating an Engine.
type Options struct {
	TxManager storage.TxManager

	Logger  *zap.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// New creates a settlement Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		txm:     opts.TxManager,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}
}

// ClosePosition settles one position at the given closing price.
//
// Realized P&L:
//
//	perp:       (closing − entry) / entry × size × direction
//	prediction: (closing − entry) / 100 × shares
//
// where direction is +1 for long and YES positions, −1 otherwise. On
// success the position carries closedAt, currentPrice = closing price,
// unrealizedPnL = 0 and the realized figure, while the pool's
// availableBalance grows by size + realized and lifetimePnL by realized.
// The pool's totalValue catches up on its next valuation pass.
//
// Returns ErrAlreadyClosed when the position was settled earlier and
// storage.ErrNotFound when it does not exist. A second call never moves
// money twice.
func (e *Engine) ClosePosition(ctx context.Context, positionID string, closingPrice decimal.Decimal) error {
	err := e.txm.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		pos, err := tx.Positions().GetForUpdate(ctx, positionID)
		if err != nil {
			return err
		}
		if pos.ClosedAt != nil {
			return ErrAlreadyClosed
		}

		realized, err := realizedPnL(pos, closingPrice)
		if err != nil {
			return err
		}

		closedAt := e.now()
		if err := tx.Positions().Close(ctx, positionID, closingPrice, realized, closedAt); err != nil {
			return fmt.Errorf("close position: %w", err)
		}

		pool, err := tx.Pools().GetForUpdate(ctx, pos.PoolID)
		if err != nil {
			return fmt.Errorf("lock pool %s: %w", pos.PoolID, err)
		}

		availableBalance := pool.AvailableBalance.Add(pos.Size).Add(realized)
		lifetimePnL := pool.LifetimePnL.Add(realized)
		if err := tx.Pools().UpdateBalances(ctx, pos.PoolID, availableBalance, lifetimePnL); err != nil {
			return fmt.Errorf("credit pool %s: %w", pos.PoolID, err)
		}

		e.logger.Info("position closed",
			zap.String("position_id", positionID),
			zap.String("pool_id", pos.PoolID),
			zap.String("market_type", string(pos.MarketType)),
			zap.String("closing_price", closingPrice.String()),
			zap.String("realized_pnl", realized.String()))
		if e.metrics != nil {
			e.metrics.PositionsClosed.WithLabelValues(string(pos.MarketType)).Inc()
		}
		return nil
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.SettlementErrors.WithLabelValues(settlementErrorReason(err)).Inc()
		}
		return err
	}
	return nil
}

// realizedPnL computes the realized figure for a close at the given price.
func realizedPnL(pos *domain.PoolPosition, closingPrice decimal.Decimal) (decimal.Decimal, error) {
	priceChange := closingPrice.Sub(pos.EntryPrice)

	switch pos.MarketType {
	case domain.MarketTypePerp:
		if pos.EntryPrice.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("position %s: zero entry price", pos.PositionID)
		}
		realized := priceChange.Div(pos.EntryPrice).Mul(pos.Size)
		if !pos.IsLong() {
			realized = realized.Neg()
		}
		return realized, nil
	case domain.MarketTypePrediction:
		// Prediction closes carry no direction multiplier: NO positions
		// settle against a closing price already expressed for their side.
		return priceChange.Div(hundred).Mul(pos.Shares), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("position %s: unknown market type %q", pos.PositionID, pos.MarketType)
	}
}

func settlementErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyClosed):
		return "already_closed"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	default:
		return "storage"
	}
}
