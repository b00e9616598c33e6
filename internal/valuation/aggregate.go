package valuation

import (
	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
)

// OpenPositionsValue sums Size + UnrealizedPnL over the given positions.
// Positions whose price lookup failed this pass still contribute their prior
// persisted values, so one bad lookup never zeroes a pool.
func OpenPositionsValue(positions []*domain.PoolPosition) decimal.Decimal {
	sum := decimal.Zero
	for _, pos := range positions {
		sum = sum.Add(pos.Size).Add(pos.UnrealizedPnL)
	}
	return sum
}

// PoolTotals derives the pool's cached projections:
//
//	totalValue  = availableBalance + Σ open position (size + unrealizedPnL)
//	lifetimePnL = totalValue − totalDeposits
func PoolTotals(availableBalance, openPositionsValue, totalDeposits decimal.Decimal) (totalValue, lifetimePnL decimal.Decimal) {
	totalValue = availableBalance.Add(openPositionsValue)
	lifetimePnL = totalValue.Sub(totalDeposits)
	return totalValue, lifetimePnL
}

// ShareValuation carries one pool's share price for a single valuation
// pass; every deposit in the pass is valued at the same price.
type ShareValuation struct {
	TotalShares decimal.Decimal
	SharePrice  decimal.Decimal
}

// ValueShares computes the pool share price from totalValue and the active
// deposits. With no active deposits the share price defaults to 1 and the
// per-deposit loop is vacuous.
//
// Σ deposit currentValue can legitimately differ from totalValue when
// availableBalance holds capital not attributable to any deposit, such as
// residual fees; that gap is accepted, not reconciled.
func ValueShares(totalValue decimal.Decimal, deposits []*domain.PoolDeposit) ShareValuation {
	totalShares := decimal.Zero
	for _, d := range deposits {
		totalShares = totalShares.Add(d.Shares)
	}

	sharePrice := decimal.NewFromInt(1)
	if totalShares.IsPositive() {
		sharePrice = totalValue.Div(totalShares)
	}

	return ShareValuation{TotalShares: totalShares, SharePrice: sharePrice}
}

// DepositValue values one deposit at the pass's share price:
//
//	currentValue  = shares × sharePrice
//	unrealizedPnL = currentValue − amount
func (s ShareValuation) DepositValue(d *domain.PoolDeposit) (currentValue, unrealizedPnL decimal.Decimal) {
	currentValue = d.Shares.Mul(s.SharePrice)
	unrealizedPnL = currentValue.Sub(d.Amount)
	return currentValue, unrealizedPnL
}
