package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pool is a managed capital pool owned by one trading agent.
//
// AvailableBalance is liquid capital not committed to any open position.
// TotalDeposits is all-time deposited principal. TotalValue and LifetimePnL
// are cached projections recomputed on every valuation pass:
//
//	TotalValue  = AvailableBalance + Σ open position (Size + UnrealizedPnL)
//	LifetimePnL = TotalValue − TotalDeposits
type Pool struct {
	PoolID  string
	AgentID string
	Name    string

	AvailableBalance decimal.Decimal
	TotalDeposits    decimal.Decimal
	TotalValue       decimal.Decimal
	LifetimePnL      decimal.Decimal

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPoolID generates a random pool identifier.
func NewPoolID() string {
	return uuid.NewString()
}
