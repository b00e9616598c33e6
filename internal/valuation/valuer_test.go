package valuation

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/pricing/stub"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestValuer_PerpCopiesEngineRecord(t *testing.T) {
	engine := stub.NewEngine()
	engine.SetPosition(domain.EnginePosition{
		PositionID:    "pos-1",
		CurrentPrice:  dec("110"),
		UnrealizedPnL: dec("50"),
	})
	valuer := NewPositionValuer(engine, engine)

	pos := &domain.PoolPosition{
		PositionID: "pos-1",
		MarketType: domain.MarketTypePerp,
		Side:       domain.SideLong,
		EntryPrice: dec("100"),
		Size:       dec("500"),
	}

	val, err := valuer.Value(context.Background(), pos)
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if val.Stale {
		t.Fatal("Expected fresh valuation")
	}
	if !val.CurrentPrice.Equal(dec("110")) {
		t.Errorf("Expected currentPrice 110, got %s", val.CurrentPrice)
	}
	if !val.UnrealizedPnL.Equal(dec("50")) {
		t.Errorf("Expected unrealizedPnL 50, got %s", val.UnrealizedPnL)
	}
}

func TestValuer_PerpMissingFromEngineIsStale(t *testing.T) {
	engine := stub.NewEngine()
	valuer := NewPositionValuer(engine, engine)

	pos := &domain.PoolPosition{
		PositionID: "pos-unknown",
		MarketType: domain.MarketTypePerp,
		Side:       domain.SideLong,
	}

	val, err := valuer.Value(context.Background(), pos)
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if !val.Stale {
		t.Error("Expected stale valuation when engine has no record")
	}
}

func TestValuer_PerpEngineErrorPropagates(t *testing.T) {
	engine := stub.NewEngine()
	engine.FailPosition("pos-1", errors.New("engine down"))
	valuer := NewPositionValuer(engine, engine)

	pos := &domain.PoolPosition{
		PositionID: "pos-1",
		MarketType: domain.MarketTypePerp,
	}

	if _, err := valuer.Value(context.Background(), pos); err == nil {
		t.Fatal("Expected error from engine lookup")
	}
}

func TestValuer_PredictionPricesFromOdds(t *testing.T) {
	engine := stub.NewEngine()
	engine.SetOdds("mkt-1", domain.MarketOdds{
		YesShares: dec("70"),
		NoShares:  dec("30"),
	})
	valuer := NewPositionValuer(engine, engine)

	pos := &domain.PoolPosition{
		PositionID: "pos-1",
		MarketType: domain.MarketTypePrediction,
		MarketID:   "mkt-1",
		Side:       domain.SideYes,
		EntryPrice: dec("40"),
		Shares:     dec("10"),
	}

	val, err := valuer.Value(context.Background(), pos)
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if val.Stale {
		t.Fatal("Expected fresh valuation")
	}
	// 100 * 70/100 = 70; (70-40)/100 * 10 = 3
	if !val.CurrentPrice.Equal(dec("70")) {
		t.Errorf("Expected currentPrice 70, got %s", val.CurrentPrice)
	}
	if !val.UnrealizedPnL.Equal(dec("3")) {
		t.Errorf("Expected unrealizedPnL 3, got %s", val.UnrealizedPnL)
	}
}

func TestValuer_PredictionNoSideUsesNoShares(t *testing.T) {
	engine := stub.NewEngine()
	engine.SetOdds("mkt-1", domain.MarketOdds{
		YesShares: dec("70"),
		NoShares:  dec("30"),
	})
	valuer := NewPositionValuer(engine, engine)

	pos := &domain.PoolPosition{
		PositionID: "pos-1",
		MarketType: domain.MarketTypePrediction,
		MarketID:   "mkt-1",
		Side:       domain.SideNo,
		EntryPrice: dec("50"),
		Shares:     dec("10"),
	}

	val, err := valuer.Value(context.Background(), pos)
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	// 100 * 30/100 = 30; (30-50)/100 * 10 = -2
	if !val.CurrentPrice.Equal(dec("30")) {
		t.Errorf("Expected currentPrice 30, got %s", val.CurrentPrice)
	}
	if !val.UnrealizedPnL.Equal(dec("-2")) {
		t.Errorf("Expected unrealizedPnL -2, got %s", val.UnrealizedPnL)
	}
}

func TestValuer_ResolvedMarketIsStale(t *testing.T) {
	engine := stub.NewEngine()
	valuer := NewPositionValuer(engine, engine)

	pos := &domain.PoolPosition{
		PositionID: "pos-1",
		MarketType: domain.MarketTypePrediction,
		MarketID:   "mkt-resolved",
		Side:       domain.SideYes,
	}

	val, err := valuer.Value(context.Background(), pos)
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if !val.Stale {
		t.Error("Expected stale valuation for resolved/unknown market")
	}
}

func TestValuer_EmptyMarketIsStale(t *testing.T) {
	engine := stub.NewEngine()
	engine.SetOdds("mkt-1", domain.MarketOdds{
		YesShares: decimal.Zero,
		NoShares:  decimal.Zero,
	})
	valuer := NewPositionValuer(engine, engine)

	pos := &domain.PoolPosition{
		PositionID: "pos-1",
		MarketType: domain.MarketTypePrediction,
		MarketID:   "mkt-1",
		Side:       domain.SideYes,
	}

	val, err := valuer.Value(context.Background(), pos)
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if !val.Stale {
		t.Error("Expected stale valuation when no shares are outstanding")
	}
}

func TestValuer_UnknownMarketType(t *testing.T) {
	engine := stub.NewEngine()
	valuer := NewPositionValuer(engine, engine)

	pos := &domain.PoolPosition{
		PositionID: "pos-1",
		MarketType: domain.MarketType("spot"),
	}

	if _, err := valuer.Value(context.Background(), pos); err == nil {
		t.Fatal("Expected error for unknown market type")
	}
}
