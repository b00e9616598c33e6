// Package valuation computes and persists pool NAV, per-position
// mark-to-market and per-deposit share valuation.
package valuation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/pricing"
)

var hundred = decimal.NewFromInt(100)

// Valuation is the result of marking one position to market. When Stale is
// true no fresh price was available and the position's prior persisted
// values must be kept as-is.
type Valuation struct {
	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Stale         bool
}

// PositionValuer prices a single open position.
//
// Perps are never priced locally: the live engine's record is copied forward
// verbatim so there is exactly one source of truth for perp P&L. Prediction
// positions are priced from the market's YES/NO share ratio.
type PositionValuer struct {
	engine pricing.LivePricingEngine
	odds   pricing.MarketOddsSource
}

// NewPositionValuer creates a PositionValuer over the given price sources.
func NewPositionValuer(engine pricing.LivePricingEngine, odds pricing.MarketOddsSource) *PositionValuer {
	return &PositionValuer{engine: engine, odds: odds}
}

// Value prices one open position. A Stale result means the caller should
// keep the prior persisted values: the engine has no record for the perp, or
// the prediction market is resolved/unknown.
func (v *PositionValuer) Value(ctx context.Context, pos *domain.PoolPosition) (Valuation, error) {
	switch pos.MarketType {
	case domain.MarketTypePerp:
		return v.valuePerp(ctx, pos)
	case domain.MarketTypePrediction:
		return v.valuePrediction(ctx, pos)
	default:
		return Valuation{}, fmt.Errorf("unknown market type %q", pos.MarketType)
	}
}

// valuePerp copies the live engine's price and unrealized P&L forward,
// falling back to the prior relational snapshot when the engine holds no
// record for the position.
func (v *PositionValuer) valuePerp(ctx context.Context, pos *domain.PoolPosition) (Valuation, error) {
	rec, err := v.engine.GetPosition(ctx, pos.PositionID)
	if err != nil {
		return Valuation{}, fmt.Errorf("engine lookup for position %s: %w", pos.PositionID, err)
	}
	if rec == nil {
		return Valuation{Stale: true}, nil
	}
	return Valuation{
		CurrentPrice:  rec.CurrentPrice,
		UnrealizedPnL: rec.UnrealizedPnL,
	}, nil
}

// valuePrediction prices the position from the market's outstanding share
// ratio:
//
//	currentPrice  = 100 × sideShares / (yesShares + noShares)
//	unrealizedPnL = (currentPrice − entryPrice) / 100 × shares
//
// Resolved or missing markets yield a Stale result; resolution is settled
// out of band.
func (v *PositionValuer) valuePrediction(ctx context.Context, pos *domain.PoolPosition) (Valuation, error) {
	odds, err := v.odds.GetOdds(ctx, pos.MarketID)
	if err != nil {
		return Valuation{}, fmt.Errorf("odds lookup for market %s: %w", pos.MarketID, err)
	}
	if odds == nil {
		return Valuation{Stale: true}, nil
	}

	total := odds.Total()
	if total.IsZero() {
		return Valuation{Stale: true}, nil
	}

	currentPrice := hundred.Mul(odds.SideShares(pos.Side)).Div(total)
	unrealizedPnL := currentPrice.Sub(pos.EntryPrice).Div(hundred).Mul(pos.Shares)

	return Valuation{
		CurrentPrice:  currentPrice,
		UnrealizedPnL: unrealizedPnL,
	}, nil
}
