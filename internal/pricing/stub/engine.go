// Package stub provides settable in-memory fakes of the engine interfaces
// for tests.
package stub

import (
	"context"
	"sync"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/pricing"
)

// Engine is an in-memory LivePricingEngine and MarketOddsSource.
type Engine struct {
	mu           sync.Mutex
	positions    map[string]*domain.EnginePosition
	odds         map[string]*domain.MarketOdds
	positionErrs map[string]error
	oddsErrs     map[string]error
	syncErr      error
	syncCalls    int
}

// NewEngine creates an empty stub engine.
func NewEngine() *Engine {
	return &Engine{
		positions:    make(map[string]*domain.EnginePosition),
		odds:         make(map[string]*domain.MarketOdds),
		positionErrs: make(map[string]error),
		oddsErrs:     make(map[string]error),
	}
}

// Compile-time interface checks.
var (
	_ pricing.LivePricingEngine = (*Engine)(nil)
	_ pricing.MarketOddsSource  = (*Engine)(nil)
)

// SetPosition installs an engine record for a position id.
func (e *Engine) SetPosition(p domain.EnginePosition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := p
	e.positions[p.PositionID] = &cp
}

// RemovePosition deletes the engine record for a position id.
func (e *Engine) RemovePosition(positionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.positions, positionID)
}

// SetOdds installs odds for a market id.
func (e *Engine) SetOdds(marketID string, o domain.MarketOdds) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := o
	e.odds[marketID] = &cp
}

// RemoveOdds deletes the odds for a market id, simulating a resolved market.
func (e *Engine) RemoveOdds(marketID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.odds, marketID)
}

// FailPosition makes GetPosition return err for the given id.
func (e *Engine) FailPosition(positionID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positionErrs[positionID] = err
}

// FailOdds makes GetOdds return err for the given market id.
func (e *Engine) FailOdds(marketID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.oddsErrs[marketID] = err
}

// FailSync makes SyncDirtyPositions return err.
func (e *Engine) FailSync(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncErr = err
}

// SyncCalls reports how many times SyncDirtyPositions was called.
func (e *Engine) SyncCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncCalls
}

// GetPosition returns the installed record, or (nil, nil) when absent.
func (e *Engine) GetPosition(_ context.Context, positionID string) (*domain.EnginePosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.positionErrs[positionID]; err != nil {
		return nil, err
	}
	p, ok := e.positions[positionID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// SyncDirtyPositions counts the call and returns the installed error, if any.
func (e *Engine) SyncDirtyPositions(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncCalls++
	return e.syncErr
}

// GetOdds returns the installed odds, or (nil, nil) when absent.
func (e *Engine) GetOdds(_ context.Context, marketID string) (*domain.MarketOdds, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.oddsErrs[marketID]; err != nil {
		return nil, err
	}
	o, ok := e.odds[marketID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}
