package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vitos/crypto_trade_bot/internal/domain"
	"github.com/vitos/crypto_trade_bot/internal/metrics"
	"go.uber.org/zap"
)

// ReconcileConfig holds the exchange-truth reconciliation parameters.
type ReconcileConfig struct {
	Interval time.Duration
	// DustThresholdUSD: a balance worth less than this is treated as an
	// externally closed position.
	DustThresholdUSD float64
}

func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Interval:         30 * time.Minute,
		DustThresholdUSD: 1.0,
	}
}

// ReconcileCycle aligns the ledger with authoritative exchange balances.
// Positions closed outside the bot (OCO fills, manual sells) are dropped;
// surviving positions have their quantity refreshed from exchange truth.
type ReconcileCycle struct {
	cfg       ReconcileConfig
	ledger    *PositionLedger
	exchange  domain.Exchange
	positions domain.PositionRepository
	logger    *zap.Logger
}

func NewReconcileCycle(
	cfg ReconcileConfig,
	ledger *PositionLedger,
	exchange domain.Exchange,
	positions domain.PositionRepository,
	logger *zap.Logger,
) *ReconcileCycle {
	return &ReconcileCycle{
		cfg:       cfg,
		ledger:    ledger,
		exchange:  exchange,
		positions: positions,
		logger:    logger,
	}
}

func (r *ReconcileCycle) Name() string            { return "reconcile" }
func (r *ReconcileCycle) Interval() time.Duration { return r.cfg.Interval }

// RunOnce fetches balances once per run (one call, not one per ticker)
// and reconciles every ledger entry against them. Idempotent: a second
// run with no exchange activity changes nothing.
func (r *ReconcileCycle) RunOnce(ctx context.Context) error {
	snapshot := r.ledger.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	balances, err := r.exchange.GetAccountBalances(ctx)
	if err != nil {
		return fmt.Errorf("fetch balances: %w", err)
	}

	for _, pos := range snapshot {
		r.reconcileOne(ctx, pos, balances)
	}

	metrics.PositionsOpen.Set(float64(r.ledger.Len()))
	return nil
}

func (r *ReconcileCycle) reconcileOne(ctx context.Context, pos *domain.Position, balances map[string]domain.Balance) {
	ticker := pos.Ticker
	asset := BaseAsset(ticker)
	bal := balances[asset] // zero value when the asset vanished entirely

	refPrice := pos.CurrentPrice
	if refPrice <= 0 {
		refPrice = pos.EntryPrice
	}

	if bal.Total <= domain.QuantityEpsilon || bal.Total*refPrice < r.cfg.DustThresholdUSD {
		r.logger.Info("Position closed externally, dropping from ledger",
			zap.String("ticker", ticker),
			zap.String("asset", asset),
			zap.Float64("balance", bal.Total))
		r.ledger.Remove(ticker)
		if err := r.positions.DeletePosition(ctx, ticker); err != nil {
			r.logger.Error("Failed to delete persisted position",
				zap.String("ticker", ticker), zap.Error(err))
		}
		return
	}

	// Exchange truth wins: refresh the tracked quantity when it drifted
	// (partial OCO fill, manual trim outside the bot).
	if diff := bal.Total - pos.RemainingQuantity; diff > domain.QuantityEpsilon || diff < -domain.QuantityEpsilon {
		var after *domain.Position
		if err := r.ledger.Update(ticker, func(p *domain.Position) bool {
			p.RemainingQuantity = bal.Total
			if p.RemainingQuantity > p.TotalQuantity {
				p.TotalQuantity = p.RemainingQuantity
			}
			after = p.Clone()
			return true
		}); err != nil {
			return
		}
		r.logger.Info("Position quantity reconciled",
			zap.String("ticker", ticker),
			zap.Float64("tracked", pos.RemainingQuantity),
			zap.Float64("exchange", bal.Total))
		if err := r.positions.UpsertPosition(ctx, after); err != nil {
			r.logger.Error("Failed to persist reconciled position",
				zap.String("ticker", ticker), zap.Error(err))
		}
	}
}

// BaseAsset strips the quote currency from a ticker: BTCUSDT -> BTC.
func BaseAsset(ticker string) string {
	for _, quote := range []string{"USDT", "BUSD", "USDC"} {
		if strings.HasSuffix(ticker, quote) && len(ticker) > len(quote) {
			return strings.TrimSuffix(ticker, quote)
		}
	}
	return ticker
}
