package valuation

import (
	"testing"

	"github.com/shopspring/decimal"

	"babylon-funds/internal/domain"
)

func TestOpenPositionsValue(t *testing.T) {
	positions := []*domain.PoolPosition{
		{Size: dec("500"), UnrealizedPnL: dec("50")},
		{Size: dec("200"), UnrealizedPnL: dec("-30")},
	}

	got := OpenPositionsValue(positions)
	if !got.Equal(dec("720")) {
		t.Errorf("Expected 720, got %s", got)
	}
}

func TestOpenPositionsValue_Empty(t *testing.T) {
	if got := OpenPositionsValue(nil); !got.Equal(decimal.Zero) {
		t.Errorf("Expected 0, got %s", got)
	}
}

func TestPoolTotals(t *testing.T) {
	// availableBalance 1000, one open position worth 500+50, deposits 1000
	totalValue, lifetimePnL := PoolTotals(dec("1000"), dec("550"), dec("1000"))

	if !totalValue.Equal(dec("1550")) {
		t.Errorf("Expected totalValue 1550, got %s", totalValue)
	}
	if !lifetimePnL.Equal(dec("550")) {
		t.Errorf("Expected lifetimePnL 550, got %s", lifetimePnL)
	}
}

func TestValueShares(t *testing.T) {
	deposits := []*domain.PoolDeposit{
		{DepositID: "d1", Amount: dec("1000"), Shares: dec("100")},
	}

	shares := ValueShares(dec("1100"), deposits)
	if !shares.TotalShares.Equal(dec("100")) {
		t.Errorf("Expected totalShares 100, got %s", shares.TotalShares)
	}
	if !shares.SharePrice.Equal(dec("11")) {
		t.Errorf("Expected sharePrice 11, got %s", shares.SharePrice)
	}

	currentValue, unrealizedPnL := shares.DepositValue(deposits[0])
	if !currentValue.Equal(dec("1100")) {
		t.Errorf("Expected currentValue 1100, got %s", currentValue)
	}
	if !unrealizedPnL.Equal(dec("100")) {
		t.Errorf("Expected unrealizedPnL 100, got %s", unrealizedPnL)
	}
}

func TestValueShares_SplitAcrossDepositors(t *testing.T) {
	deposits := []*domain.PoolDeposit{
		{DepositID: "d1", Amount: dec("600"), Shares: dec("60")},
		{DepositID: "d2", Amount: dec("400"), Shares: dec("40")},
	}

	shares := ValueShares(dec("1200"), deposits)
	if !shares.SharePrice.Equal(dec("12")) {
		t.Fatalf("Expected sharePrice 12, got %s", shares.SharePrice)
	}

	cv1, pnl1 := shares.DepositValue(deposits[0])
	cv2, pnl2 := shares.DepositValue(deposits[1])
	if !cv1.Equal(dec("720")) || !pnl1.Equal(dec("120")) {
		t.Errorf("d1: expected 720/120, got %s/%s", cv1, pnl1)
	}
	if !cv2.Equal(dec("480")) || !pnl2.Equal(dec("80")) {
		t.Errorf("d2: expected 480/80, got %s/%s", cv2, pnl2)
	}
}

func TestValueShares_NoDepositsDefaultsToOne(t *testing.T) {
	shares := ValueShares(dec("500"), nil)
	if !shares.SharePrice.Equal(dec("1")) {
		t.Errorf("Expected sharePrice 1 with no deposits, got %s", shares.SharePrice)
	}
	if !shares.TotalShares.Equal(decimal.Zero) {
		t.Errorf("Expected totalShares 0, got %s", shares.TotalShares)
	}
}

func TestDepositValue_Loss(t *testing.T) {
	shares := ShareValuation{TotalShares: dec("100"), SharePrice: dec("0.8")}
	d := &domain.PoolDeposit{Amount: dec("100"), Shares: dec("100")}

	currentValue, unrealizedPnL := shares.DepositValue(d)
	if !currentValue.Equal(dec("80")) {
		t.Errorf("Expected currentValue 80, got %s", currentValue)
	}
	if !unrealizedPnL.Equal(dec("-20")) {
		t.Errorf("Expected unrealizedPnL -20, got %s", unrealizedPnL)
	}
}
