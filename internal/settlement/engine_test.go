package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/storage"
	"babylon-funds/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seed(t *testing.T, store *memory.Store, pool *domain.Pool, positions ...*domain.PoolPosition) {
	t.Helper()
	ctx := context.Background()
	if err := store.Pools().Insert(ctx, pool); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	for _, p := range positions {
		if err := store.Positions().Insert(ctx, p); err != nil {
			t.Fatalf("seed position: %v", err)
		}
	}
}

func TestEngine_ClosePerpLong(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	seed(t, store,
		&domain.Pool{
			PoolID:           "pool-1",
			AvailableBalance: dec("1000"),
			TotalDeposits:    dec("1000"),
			LifetimePnL:      dec("0"),
			IsActive:         true,
		},
		&domain.PoolPosition{
			PositionID:    "pos-1",
			PoolID:        "pool-1",
			MarketType:    domain.MarketTypePerp,
			Side:          domain.SideLong,
			EntryPrice:    dec("100"),
			Size:          dec("500"),
			CurrentPrice:  dec("108"),
			UnrealizedPnL: dec("40"),
		},
	)

	closedAt := time.Unix(1700000000, 0)
	eng := New(Options{TxManager: store, Now: func() time.Time { return closedAt }})

	if err := eng.ClosePosition(ctx, "pos-1", dec("110")); err != nil {
		t.Fatalf("ClosePosition failed: %v", err)
	}

	pos, err := store.Positions().GetByID(ctx, "pos-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if pos.ClosedAt == nil || !pos.ClosedAt.Equal(closedAt) {
		t.Errorf("Expected closedAt %v, got %v", closedAt, pos.ClosedAt)
	}
	if !pos.CurrentPrice.Equal(dec("110")) {
		t.Errorf("Expected currentPrice 110, got %s", pos.CurrentPrice)
	}
	if !pos.UnrealizedPnL.Equal(dec("0")) {
		t.Errorf("Expected unrealizedPnL zeroed, got %s", pos.UnrealizedPnL)
	}
	// (110-100)/100 * 500 = 50
	if pos.RealizedPnL == nil || !pos.RealizedPnL.Equal(dec("50")) {
		t.Errorf("Expected realizedPnL 50, got %v", pos.RealizedPnL)
	}

	pool, _ := store.Pools().GetByID(ctx, "pool-1")
	if !pool.AvailableBalance.Equal(dec("1550")) {
		t.Errorf("Expected availableBalance 1550, got %s", pool.AvailableBalance)
	}
	if !pool.LifetimePnL.Equal(dec("50")) {
		t.Errorf("Expected lifetimePnL 50, got %s", pool.LifetimePnL)
	}
}

func TestEngine_ClosePerpShort(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	seed(t, store,
		&domain.Pool{PoolID: "pool-1", AvailableBalance: dec("1000"), IsActive: true},
		&domain.PoolPosition{
			PositionID: "pos-1",
			PoolID:     "pool-1",
			MarketType: domain.MarketTypePerp,
			Side:       domain.SideShort,
			EntryPrice: dec("100"),
			Size:       dec("500"),
		},
	)

	eng := New(Options{TxManager: store})

	if err := eng.ClosePosition(ctx, "pos-1", dec("110")); err != nil {
		t.Fatalf("ClosePosition failed: %v", err)
	}

	// Short loses when price rises: realized -50.
	pos, _ := store.Positions().GetByID(ctx, "pos-1")
	if pos.RealizedPnL == nil || !pos.RealizedPnL.Equal(dec("-50")) {
		t.Errorf("Expected realizedPnL -50, got %v", pos.RealizedPnL)
	}

	pool, _ := store.Pools().GetByID(ctx, "pool-1")
	if !pool.AvailableBalance.Equal(dec("1450")) {
		t.Errorf("Expected availableBalance 1450, got %s", pool.AvailableBalance)
	}
}

func TestEngine_ClosePredictionYes(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	seed(t, store,
		&domain.Pool{PoolID: "pool-1", AvailableBalance: dec("1000"), IsActive: true},
		&domain.PoolPosition{
			PositionID: "pos-1",
			PoolID:     "pool-1",
			MarketType: domain.MarketTypePrediction,
			MarketID:   "mkt-1",
			Side:       domain.SideYes,
			EntryPrice: dec("40"),
			Size:       dec("4"),
			Shares:     dec("10"),
		},
	)

	eng := New(Options{TxManager: store})

	if err := eng.ClosePosition(ctx, "pos-1", dec("70")); err != nil {
		t.Fatalf("ClosePosition failed: %v", err)
	}

	// (70-40)/100 * 10 = 3
	pos, _ := store.Positions().GetByID(ctx, "pos-1")
	if pos.RealizedPnL == nil || !pos.RealizedPnL.Equal(dec("3")) {
		t.Errorf("Expected realizedPnL 3, got %v", pos.RealizedPnL)
	}

	pool, _ := store.Pools().GetByID(ctx, "pool-1")
	if !pool.AvailableBalance.Equal(dec("1007")) {
		t.Errorf("Expected availableBalance 1007, got %s", pool.AvailableBalance)
	}
}

func TestEngine_ClosePredictionNoSameFormula(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	seed(t, store,
		&domain.Pool{PoolID: "pool-1", AvailableBalance: dec("1000"), IsActive: true},
		&domain.PoolPosition{
			PositionID: "pos-1",
			PoolID:     "pool-1",
			MarketType: domain.MarketTypePrediction,
			MarketID:   "mkt-1",
			Side:       domain.SideNo,
			EntryPrice: dec("60"),
			Size:       dec("6"),
			Shares:     dec("10"),
		},
	)

	eng := New(Options{TxManager: store})

	if err := eng.ClosePosition(ctx, "pos-1", dec("40")); err != nil {
		t.Fatalf("ClosePosition failed: %v", err)
	}

	// Prediction closes never flip sign by side: (40-60)/100 * 10 = -2.
	pos, _ := store.Positions().GetByID(ctx, "pos-1")
	if pos.RealizedPnL == nil || !pos.RealizedPnL.Equal(dec("-2")) {
		t.Errorf("Expected realizedPnL -2, got %v", pos.RealizedPnL)
	}
}

func TestEngine_CloseTwiceMovesMoneyOnce(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	seed(t, store,
		&domain.Pool{PoolID: "pool-1", AvailableBalance: dec("1000"), IsActive: true},
		&domain.PoolPosition{
			PositionID: "pos-1",
			PoolID:     "pool-1",
			MarketType: domain.MarketTypePerp,
			Side:       domain.SideLong,
			EntryPrice: dec("100"),
			Size:       dec("500"),
		},
	)

	eng := New(Options{TxManager: store})

	if err := eng.ClosePosition(ctx, "pos-1", dec("110")); err != nil {
		t.Fatalf("first close failed: %v", err)
	}

	err := eng.ClosePosition(ctx, "pos-1", dec("200"))
	if !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("Expected ErrAlreadyClosed, got %v", err)
	}

	// The second price must be discarded entirely.
	pos, _ := store.Positions().GetByID(ctx, "pos-1")
	if !pos.CurrentPrice.Equal(dec("110")) {
		t.Errorf("Expected first closing price 110, got %s", pos.CurrentPrice)
	}
	if pos.RealizedPnL == nil || !pos.RealizedPnL.Equal(dec("50")) {
		t.Errorf("Expected realizedPnL 50, got %v", pos.RealizedPnL)
	}

	pool, _ := store.Pools().GetByID(ctx, "pool-1")
	if !pool.AvailableBalance.Equal(dec("1550")) {
		t.Errorf("Expected availableBalance 1550 after double close, got %s", pool.AvailableBalance)
	}
	if !pool.LifetimePnL.Equal(dec("50")) {
		t.Errorf("Expected lifetimePnL 50 after double close, got %s", pool.LifetimePnL)
	}
}

func TestEngine_CloseNotFound(t *testing.T) {
	store := memory.NewStore()
	eng := New(Options{TxManager: store})

	err := eng.ClosePosition(context.Background(), "missing", dec("100"))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestEngine_CloseZeroEntryPerp(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	seed(t, store,
		&domain.Pool{PoolID: "pool-1", AvailableBalance: dec("1000"), IsActive: true},
		&domain.PoolPosition{
			PositionID: "pos-1",
			PoolID:     "pool-1",
			MarketType: domain.MarketTypePerp,
			Side:       domain.SideLong,
			EntryPrice: dec("0"),
			Size:       dec("500"),
		},
	)

	eng := New(Options{TxManager: store})

	if err := eng.ClosePosition(ctx, "pos-1", dec("110")); err == nil {
		t.Fatal("Expected error for zero entry price")
	}

	// Nothing may have moved.
	pos, _ := store.Positions().GetByID(ctx, "pos-1")
	if pos.ClosedAt != nil {
		t.Error("Position must stay open after a failed close")
	}
	pool, _ := store.Pools().GetByID(ctx, "pool-1")
	if !pool.AvailableBalance.Equal(dec("1000")) {
		t.Errorf("Expected availableBalance unchanged, got %s", pool.AvailableBalance)
	}
}

func TestEngine_CloseRollsBackOnMissingPool(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	// Position references a pool that does not exist; the whole close must
	// roll back, leaving the position open.
	if err := store.Positions().Insert(ctx, &domain.PoolPosition{
		PositionID: "pos-orphan",
		PoolID:     "pool-gone",
		MarketType: domain.MarketTypePerp,
		Side:       domain.SideLong,
		EntryPrice: dec("100"),
		Size:       dec("500"),
	}); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	eng := New(Options{TxManager: store})

	if err := eng.ClosePosition(ctx, "pos-orphan", dec("110")); err == nil {
		t.Fatal("Expected error for missing pool")
	}

	pos, _ := store.Positions().GetByID(ctx, "pos-orphan")
	if pos.ClosedAt != nil || pos.RealizedPnL != nil {
		t.Error("Close must roll back atomically when the pool credit fails")
	}
}
