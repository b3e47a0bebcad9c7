package usecase

import (
	"context"
	"testing"

	"github.com/vitos/crypto_trade_bot/internal/domain"
	"go.uber.org/zap"
)

func newReconcileFixture(exchange *MockExchange) (*ReconcileCycle, *PositionLedger, *MockStore) {
	ledger := NewPositionLedger()
	store := NewMockStore()
	cycle := NewReconcileCycle(DefaultReconcileConfig(), ledger, exchange, store, zap.NewNop())
	return cycle, ledger, store
}

func TestBaseAsset(t *testing.T) {
	tests := []struct {
		ticker string
		want   string
	}{
		{"BTCUSDT", "BTC"},
		{"ETHBUSD", "ETH"},
		{"SOLUSDC", "SOL"},
		{"DOGE", "DOGE"},
		{"USDT", "USDT"},
	}
	for _, tt := range tests {
		if got := BaseAsset(tt.ticker); got != tt.want {
			t.Errorf("BaseAsset(%s) = %s, want %s", tt.ticker, got, tt.want)
		}
	}
}

func TestReconcileDropsExternallyClosedPosition(t *testing.T) {
	exchange := NewMockExchange()
	// No BTC balance at all: sold manually on the exchange.
	cycle, ledger, store := newReconcileFixture(exchange)

	pos := testPosition(100.0)
	pos.CurrentPrice = 100.0
	if err := ledger.Insert(pos); err != nil {
		t.Fatal(err)
	}
	store.UpsertPosition(context.Background(), pos)

	if err := cycle.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if ledger.Len() != 0 {
		t.Error("externally closed position kept in ledger")
	}
	if _, ok := store.Positions["BTCUSDT"]; ok {
		t.Error("persisted position not deleted")
	}
}

func TestReconcileDustCountsAsClosed(t *testing.T) {
	exchange := NewMockExchange()
	// 0.000005 BTC at $100 reference price is $0.0005, under the $1
	// threshold.
	exchange.Balances["BTC"] = domain.Balance{Free: 0.000005, Total: 0.000005}
	cycle, ledger, _ := newReconcileFixture(exchange)

	pos := testPosition(100.0)
	pos.CurrentPrice = 100.0
	if err := ledger.Insert(pos); err != nil {
		t.Fatal(err)
	}

	if err := cycle.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if ledger.Len() != 0 {
		t.Error("dust balance kept as open position")
	}
}

func TestReconcileRefreshesDriftedQuantity(t *testing.T) {
	exchange := NewMockExchange()
	exchange.Balances["BTC"] = domain.Balance{Free: 0.6, Total: 0.6}
	cycle, ledger, store := newReconcileFixture(exchange)

	pos := testPosition(100.0)
	pos.CurrentPrice = 100.0 // tracked quantity 1.0, exchange says 0.6
	if err := ledger.Insert(pos); err != nil {
		t.Fatal(err)
	}

	if err := cycle.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	got, err := ledger.Get("BTCUSDT")
	if err != nil {
		t.Fatalf("position dropped: %v", err)
	}
	if got.RemainingQuantity != 0.6 {
		t.Errorf("RemainingQuantity = %f, want 0.6", got.RemainingQuantity)
	}
	persisted, ok := store.Positions["BTCUSDT"]
	if !ok || persisted.RemainingQuantity != 0.6 {
		t.Error("reconciled quantity not persisted")
	}
}

func TestReconcileRaisesTotalWhenExchangeHasMore(t *testing.T) {
	exchange := NewMockExchange()
	exchange.Balances["BTC"] = domain.Balance{Free: 1.5, Total: 1.5}
	cycle, ledger, _ := newReconcileFixture(exchange)

	pos := testPosition(100.0)
	pos.CurrentPrice = 100.0
	if err := ledger.Insert(pos); err != nil {
		t.Fatal(err)
	}

	if err := cycle.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	got, _ := ledger.Get("BTCUSDT")
	if got.RemainingQuantity != 1.5 || got.TotalQuantity != 1.5 {
		t.Errorf("quantities = %f/%f, want 1.5/1.5", got.RemainingQuantity, got.TotalQuantity)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	exchange := NewMockExchange()
	exchange.Balances["BTC"] = domain.Balance{Free: 1.0, Total: 1.0}
	cycle, ledger, _ := newReconcileFixture(exchange)

	pos := testPosition(100.0)
	pos.CurrentPrice = 100.0
	if err := ledger.Insert(pos); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := cycle.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := ledger.Get("BTCUSDT")

	if err := cycle.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	after, _ := ledger.Get("BTCUSDT")

	if before.RemainingQuantity != after.RemainingQuantity ||
		before.TotalQuantity != after.TotalQuantity ||
		before.StopLoss != after.StopLoss {
		t.Errorf("second run changed state: %+v vs %+v", before, after)
	}
}

func TestReconcileEmptyLedgerSkipsExchangeCall(t *testing.T) {
	exchange := NewMockExchange()
	cycle, _, _ := newReconcileFixture(exchange)
	if err := cycle.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
}
