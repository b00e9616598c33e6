package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketType distinguishes the two pricing models a pool can hold.
type MarketType string

const (
	MarketTypePerp       MarketType = "perp"
	MarketTypePrediction MarketType = "prediction"
)

// Position sides. Perps are long/short; prediction positions hold YES or NO
// shares.
const (
	SideLong  = "long"
	SideShort = "short"
	SideYes   = "YES"
	SideNo    = "NO"
)

// PoolPosition is one market exposure held by a pool.
//
// Size and Shares are fixed at open. CurrentPrice and UnrealizedPnL are
// rewritten on every valuation pass until the position closes. RealizedPnL
// and ClosedAt are set exactly once by settlement; a position is never
// deleted.
type PoolPosition struct {
	PositionID string
	PoolID     string
	MarketType MarketType

	// Ticker identifies a perp market, MarketID a prediction market.
	Ticker   string
	MarketID string

	Side       string
	EntryPrice decimal.Decimal
	Size       decimal.Decimal

	// Shares is the prediction-market share count; zero for perps.
	Shares decimal.Decimal

	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   *decimal.Decimal

	OpenedAt time.Time
	ClosedAt *time.Time
}

// NewPositionID generates a random position identifier.
func NewPositionID() string {
	return uuid.NewString()
}

// IsOpen reports whether the position has not been settled.
func (p *PoolPosition) IsOpen() bool {
	return p.ClosedAt == nil
}

// IsLong reports whether the position gains when price rises: long perps and
// YES prediction shares.
func (p *PoolPosition) IsLong() bool {
	return p.Side == SideLong || p.Side == SideYes
}
