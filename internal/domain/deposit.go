package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PoolDeposit is one depositor's claim on a pool.
//
// Amount is the fixed principal. Shares is the proportional claim minted at
// the share price prevailing when the deposit was made; both never change.
// CurrentValue and UnrealizedPnL are rewritten on every valuation pass:
//
//	CurrentValue  = Shares × sharePrice
//	UnrealizedPnL = CurrentValue − Amount
//
// The sum of CurrentValue over a pool's deposits can differ from the pool's
// TotalValue when AvailableBalance holds capital not attributable to any
// deposit (residual fees). That gap is accepted, not reconciled.
type PoolDeposit struct {
	DepositID string
	PoolID    string
	UserID    string

	Amount decimal.Decimal
	Shares decimal.Decimal

	CurrentValue  decimal.Decimal
	UnrealizedPnL decimal.Decimal

	DepositedAt time.Time
	WithdrawnAt *time.Time
}

// NewDepositID generates a random deposit identifier.
func NewDepositID() string {
	return uuid.NewString()
}

// IsActive reports whether the deposit has not been withdrawn.
func (d *PoolDeposit) IsActive() bool {
	return d.WithdrawnAt == nil
}
