package domain

import "github.com/shopspring/decimal"

// PoolValueSnapshot is one point of a pool's NAV history, recorded after a
// successful valuation pass.
type PoolValueSnapshot struct {
	PoolID      string
	TimestampMs int64

	AvailableBalance decimal.Decimal
	TotalValue       decimal.Decimal
	LifetimePnL      decimal.Decimal
	SharePrice       decimal.Decimal
	OpenPositions    int
}
