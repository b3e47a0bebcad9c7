package usecase

import (
	"context"
	"testing"

	"github.com/vitos/crypto_trade_bot/internal/domain"
	"go.uber.org/zap"
)

func newScanFixture(cfg ScanConfig, exchange *MockExchange, predictor *MockPredictor) (*ScanCycle, *PositionLedger, *MockStore, *DailyLossTracker) {
	ledger := NewPositionLedger()
	store := NewMockStore()
	dailyLoss := NewDailyLossTracker()
	scan := NewScanCycle(cfg, NewRiskEngine(), ledger, exchange, predictor,
		&MockMacroSource{}, store, store, store, store, dailyLoss, zap.NewNop())
	return scan, ledger, store, dailyLoss
}

func TestScanOpensPositionForQualifiedSignal(t *testing.T) {
	exchange := NewMockExchange()
	exchange.Prices["BTCUSDT"] = 100.0
	exchange.USDT = 10000

	predictor := &MockPredictor{Signals: []domain.Signal{buySignal("BTCUSDT", 0.97)}}
	scan, ledger, store, _ := newScanFixture(DefaultScanConfig(), exchange, predictor)

	if err := scan.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	pos, err := ledger.Get("BTCUSDT")
	if err != nil {
		t.Fatalf("position not opened: %v", err)
	}
	// 10% of 10k is 1000, capped at $500: 5 units at 100.
	if pos.TotalQuantity != 5.0 {
		t.Errorf("TotalQuantity = %f, want 5", pos.TotalQuantity)
	}
	if pos.StopLoss >= pos.EntryPrice {
		t.Errorf("stop %f not below entry %f", pos.StopLoss, pos.EntryPrice)
	}
	if pos.SignalID == 0 {
		t.Errorf("position not linked to persisted signal")
	}

	if len(exchange.BuyCalls) != 1 {
		t.Fatalf("buy calls = %d, want 1", len(exchange.BuyCalls))
	}
	if len(store.Signals) != 1 || len(store.Trades) != 1 {
		t.Errorf("persisted signals/trades = %d/%d, want 1/1", len(store.Signals), len(store.Trades))
	}
	if _, ok := store.Positions["BTCUSDT"]; !ok {
		t.Errorf("position not persisted")
	}
	if store.Status == nil || store.Status.TotalSignals != 1 || store.Status.BuySignals != 1 {
		t.Errorf("bot status not updated: %+v", store.Status)
	}
}

func TestScanGates(t *testing.T) {
	t.Run("below probability threshold", func(t *testing.T) {
		exchange := NewMockExchange()
		exchange.Prices["BTCUSDT"] = 100.0
		predictor := &MockPredictor{Signals: []domain.Signal{buySignal("BTCUSDT", 0.90)}}
		scan, ledger, store, _ := newScanFixture(DefaultScanConfig(), exchange, predictor)

		if err := scan.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if ledger.Len() != 0 {
			t.Error("position opened below threshold")
		}
		// Signal is still persisted even when not traded.
		if len(store.Signals) != 1 {
			t.Errorf("signals persisted = %d, want 1", len(store.Signals))
		}
	})

	t.Run("max positions reached", func(t *testing.T) {
		exchange := NewMockExchange()
		exchange.Prices["BTCUSDT"] = 100.0
		cfg := DefaultScanConfig()
		cfg.MaxPositions = 1
		predictor := &MockPredictor{Signals: []domain.Signal{buySignal("BTCUSDT", 0.97)}}
		scan, ledger, _, _ := newScanFixture(cfg, exchange, predictor)

		full := testPosition(50.0)
		full.Ticker = "ETHUSDT"
		full.StopLoss = 47.5
		full.TakeProfits = [3]domain.TakeProfitLevel{
			{Tag: "TP1", Price: 55, SizeFraction: 0.3},
			{Tag: "TP2", Price: 60, SizeFraction: 0.4},
			{Tag: "TP3", Price: 70, SizeFraction: 0.3},
		}
		if err := ledger.Insert(full); err != nil {
			t.Fatal(err)
		}

		if err := scan.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if _, err := ledger.Get("BTCUSDT"); err == nil {
			t.Error("position opened past the max-positions cap")
		}
	})

	t.Run("daily loss limit", func(t *testing.T) {
		exchange := NewMockExchange()
		exchange.Prices["BTCUSDT"] = 100.0
		predictor := &MockPredictor{Signals: []domain.Signal{buySignal("BTCUSDT", 0.97)}}
		scan, ledger, _, dailyLoss := newScanFixture(DefaultScanConfig(), exchange, predictor)

		dailyLoss.AddRealized(-250.0)

		if err := scan.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if ledger.Len() != 0 {
			t.Error("position opened past the daily loss limit")
		}
	})

	t.Run("manual approval required", func(t *testing.T) {
		exchange := NewMockExchange()
		exchange.Prices["BTCUSDT"] = 100.0
		cfg := DefaultScanConfig()
		cfg.RequireManualApproval = true
		predictor := &MockPredictor{Signals: []domain.Signal{buySignal("BTCUSDT", 0.97)}}
		scan, ledger, _, _ := newScanFixture(cfg, exchange, predictor)

		if err := scan.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if ledger.Len() != 0 {
			t.Error("position opened despite manual approval gate")
		}
	})

	t.Run("existing position on ticker", func(t *testing.T) {
		exchange := NewMockExchange()
		exchange.Prices["BTCUSDT"] = 100.0
		predictor := &MockPredictor{Signals: []domain.Signal{buySignal("BTCUSDT", 0.97)}}
		scan, ledger, _, _ := newScanFixture(DefaultScanConfig(), exchange, predictor)

		if err := ledger.Insert(testPosition(90.0)); err != nil {
			t.Fatal(err)
		}

		if err := scan.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if len(exchange.BuyCalls) != 0 {
			t.Error("duplicate position bought")
		}
	})
}

func TestScanSkipsNonBuySignals(t *testing.T) {
	exchange := NewMockExchange()
	exchange.Prices["BTCUSDT"] = 100.0
	sell := buySignal("BTCUSDT", 0.97)
	sell.SignalType = "SELL"
	predictor := &MockPredictor{Signals: []domain.Signal{sell}}
	scan, ledger, store, _ := newScanFixture(DefaultScanConfig(), exchange, predictor)

	if err := scan.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if ledger.Len() != 0 || len(exchange.BuyCalls) != 0 {
		t.Error("traded a non-BUY signal")
	}
	if len(store.Signals) != 1 {
		t.Errorf("signal not persisted")
	}
}

func TestScanOneTickerFailureDoesNotAbortOthers(t *testing.T) {
	exchange := NewMockExchange()
	exchange.Prices["ETHUSDT"] = 50.0
	// BTCUSDT has no price: its entry fails, ETHUSDT still opens.
	predictor := &MockPredictor{Signals: []domain.Signal{
		buySignal("BTCUSDT", 0.97),
		buySignal("ETHUSDT", 0.96),
	}}
	scan, ledger, _, _ := newScanFixture(DefaultScanConfig(), exchange, predictor)

	if err := scan.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if _, err := ledger.Get("ETHUSDT"); err != nil {
		t.Errorf("surviving ticker not opened: %v", err)
	}
	if _, err := ledger.Get("BTCUSDT"); err == nil {
		t.Errorf("failed ticker opened anyway")
	}
}

func TestScanPropagatesPredictorFailure(t *testing.T) {
	exchange := NewMockExchange()
	predictor := &MockPredictor{Err: context.DeadlineExceeded}
	scan, _, _, _ := newScanFixture(DefaultScanConfig(), exchange, predictor)

	if err := scan.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce swallowed predictor failure")
	}
}
