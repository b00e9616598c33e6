package domain

import "github.com/shopspring/decimal"

// EnginePosition is the live pricing engine's in-memory record for one perp
// position. The engine is the sole source of truth for perp price and
// unrealized P&L; the accounting engine only copies these values forward.
type EnginePosition struct {
	PositionID    string
	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// MarketOdds is the outstanding YES/NO share count of an open prediction
// market. A YES share of a market with odds {70, 30} trades at 70 (price is
// quoted 0..100).
type MarketOdds struct {
	YesShares decimal.Decimal
	NoShares  decimal.Decimal
}

// Total returns YesShares + NoShares.
func (o MarketOdds) Total() decimal.Decimal {
	return o.YesShares.Add(o.NoShares)
}

// SideShares returns the share count backing the given position side.
func (o MarketOdds) SideShares(side string) decimal.Decimal {
	if side == SideNo {
		return o.NoShares
	}
	return o.YesShares
}
