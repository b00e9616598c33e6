// Package pricing defines the accounting engine's view of the live pricing
// engine and of prediction-market odds, plus clients for the Babylon engine
// API.
package pricing

import (
	"context"

	"babylon-funds/internal/domain"
)

// LivePricingEngine is the live margin/pricing engine that tracks perpetual
// positions in real time. It is the sole source of truth for perp price and
// unrealized P&L; valuation copies its values forward and never derives its
// own perp numbers.
type LivePricingEngine interface {
	// GetPosition returns the engine's in-memory record for a position, or
	// (nil, nil) when the engine holds no record for that id.
	GetPosition(ctx context.Context, positionID string) (*domain.EnginePosition, error)

	// SyncDirtyPositions asks the engine to flush its freshest computed
	// values into durable storage. Callers treat failure as non-fatal.
	SyncDirtyPositions(ctx context.Context) error
}

// MarketOddsSource exposes the outstanding YES/NO shares of prediction
// markets. A (nil, nil) return means the market is resolved or unknown and
// prior valuations should be left untouched.
type MarketOddsSource interface {
	GetOdds(ctx context.Context, marketID string) (*domain.MarketOdds, error)
}
