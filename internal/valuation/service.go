package valuation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/observability"
	"babylon-funds/internal/pricing"
	"babylon-funds/internal/storage"
)

// Service runs valuation passes over the pool fleet. It owns no background
// thread; an external scheduler (or a trade event) invokes it.
type Service struct {
	txm       storage.TxManager
	valuer    *PositionValuer
	engine    pricing.LivePricingEngine
	snapshots storage.SnapshotStore
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// Options for creating a Service.
type Options struct {
	// Required
	TxManager storage.TxManager
	Engine    pricing.LivePricingEngine
	Odds      pricing.MarketOddsSource

	// Optional
	Snapshots storage.SnapshotStore // NAV history, skipped when nil
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Now       func() time.Time
}

// New creates a new valuation Service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		txm:       opts.TxManager,
		valuer:    NewPositionValuer(opts.Engine, opts.Odds),
		engine:    opts.Engine,
		snapshots: opts.Snapshots,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       now,
	}
}

// UpdateAllPools runs a valuation pass over every active pool. One pool's
// failure is logged and skipped; the sweep is best-effort across the fleet,
// never all-or-nothing. The returned error reports only a failure to list
// the fleet itself.
func (s *Service) UpdateAllPools(ctx context.Context) error {
	start := s.now()

	var poolIDs []string
	err := s.txm.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		poolIDs, err = tx.Pools().ListActiveIDs(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("list active pools: %w", err)
	}

	failed := 0
	for _, poolID := range poolIDs {
		if err := s.UpdatePoolPerformance(ctx, poolID); err != nil {
			failed++
			s.logger.Error("pool update failed, skipping",
				zap.String("pool_id", poolID),
				zap.Error(err))
			if s.metrics != nil {
				s.metrics.SweepPoolFailures.Inc()
			}
		}
	}

	s.logger.Info("fleet sweep complete",
		zap.Int("pools", len(poolIDs)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", s.now().Sub(start)))
	if s.metrics != nil {
		s.metrics.SweepsTotal.Inc()
		s.metrics.SweepDuration.Observe(s.now().Sub(start).Seconds())
		s.metrics.LastSuccessfulSweep.SetToCurrentTime()
	}
	return nil
}

// UpdatePoolPerformance revalues one pool: every open position is marked to
// market, the pool's totalValue/lifetimePnL projections are recomputed, and
// every active deposit is revalued at the resulting share price. All reads
// and writes run in one transaction; concurrent passes for the same pool
// serialize on the pool row lock.
//
// Returns storage.ErrNotFound when the pool does not exist.
func (s *Service) UpdatePoolPerformance(ctx context.Context, poolID string) error {
	start := s.now()

	// Flush the live engine's freshest values before reading. Best-effort:
	// one tick of staleness is acceptable, aborting the pass is not.
	if err := s.engine.SyncDirtyPositions(ctx); err != nil {
		s.logger.Warn("live engine sync failed, continuing with stored values",
			zap.String("pool_id", poolID),
			zap.Error(err))
		if s.metrics != nil {
			s.metrics.EngineSyncFailures.Inc()
		}
	}

	var snap *domain.PoolValueSnapshot
	err := s.txm.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		pool, err := tx.Pools().GetForUpdate(ctx, poolID)
		if err != nil {
			return err
		}

		positions, err := tx.Positions().ListOpenByPool(ctx, poolID)
		if err != nil {
			return fmt.Errorf("list open positions: %w", err)
		}

		for _, pos := range positions {
			if err := s.revaluePosition(ctx, tx, pos); err != nil {
				// Isolated: siblings still value, the stale row still
				// contributes its prior values to the aggregate below.
				s.logger.Error("position valuation failed, keeping prior values",
					zap.String("pool_id", poolID),
					zap.String("position_id", pos.PositionID),
					zap.Error(err))
				if s.metrics != nil {
					s.metrics.PositionValuationErrors.WithLabelValues(string(pos.MarketType)).Inc()
				}
			}
		}

		totalValue, lifetimePnL := PoolTotals(pool.AvailableBalance, OpenPositionsValue(positions), pool.TotalDeposits)
		if err := tx.Pools().UpdateValuation(ctx, poolID, totalValue, lifetimePnL); err != nil {
			return fmt.Errorf("update pool valuation: %w", err)
		}

		deposits, err := tx.Deposits().ListActiveByPool(ctx, poolID)
		if err != nil {
			return fmt.Errorf("list active deposits: %w", err)
		}

		shares := ValueShares(totalValue, deposits)
		for _, dep := range deposits {
			currentValue, unrealizedPnL := shares.DepositValue(dep)
			if err := tx.Deposits().UpdateValuation(ctx, dep.DepositID, currentValue, unrealizedPnL); err != nil {
				return fmt.Errorf("update deposit %s valuation: %w", dep.DepositID, err)
			}
		}

		snap = &domain.PoolValueSnapshot{
			PoolID:           poolID,
			TimestampMs:      s.now().UnixMilli(),
			AvailableBalance: pool.AvailableBalance,
			TotalValue:       totalValue,
			LifetimePnL:      lifetimePnL,
			SharePrice:       shares.SharePrice,
			OpenPositions:    len(positions),
		}
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.PoolUpdateErrors.Inc()
		}
		return err
	}

	s.recordSnapshot(ctx, snap)

	if s.metrics != nil {
		s.metrics.PoolsUpdated.Inc()
		s.metrics.PoolUpdateDuration.Observe(s.now().Sub(start).Seconds())
	}
	return nil
}

// revaluePosition marks one position to market and persists the result.
// Stale valuations (engine has no record, market resolved) keep the prior
// persisted values and skip the write.
func (s *Service) revaluePosition(ctx context.Context, tx storage.Tx, pos *domain.PoolPosition) error {
	val, err := s.valuer.Value(ctx, pos)
	if err != nil {
		return err
	}
	if val.Stale {
		return nil
	}

	// Mutate the in-memory row too: the aggregate below reads it.
	pos.CurrentPrice = val.CurrentPrice
	pos.UnrealizedPnL = val.UnrealizedPnL

	if err := tx.Positions().UpdateValuation(ctx, pos.PositionID, val.CurrentPrice, val.UnrealizedPnL); err != nil {
		return fmt.Errorf("persist valuation: %w", err)
	}
	return nil
}

// recordSnapshot appends a NAV history point. Best-effort: history must
// never fail a committed valuation pass.
func (s *Service) recordSnapshot(ctx context.Context, snap *domain.PoolValueSnapshot) {
	if s.snapshots == nil || snap == nil {
		return
	}
	if err := s.snapshots.Insert(ctx, snap); err != nil {
		s.logger.Warn("NAV snapshot write failed",
			zap.String("pool_id", snap.PoolID),
			zap.Error(err))
		if s.metrics != nil {
			s.metrics.SnapshotWriteFailures.Inc()
		}
	}
}
