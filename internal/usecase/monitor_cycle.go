package usecase

import (
	"context"
	"time"

	"github.com/vitos/crypto_trade_bot/internal/domain"
	"github.com/vitos/crypto_trade_bot/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MonitorConfig holds the position-supervision parameters.
type MonitorConfig struct {
	Interval time.Duration
	// Concurrency bounds how many tickers are re-priced and evaluated in
	// parallel within one run.
	Concurrency int
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:    5 * time.Minute,
		Concurrency: 4,
	}
}

// MonitorCycle re-prices every open position, advances trailing stops and
// executes the exit engine's decisions. Each ticker is handled
// independently: any failure is logged and that ticker retried next tick.
type MonitorCycle struct {
	cfg       MonitorConfig
	engine    *RiskEngine
	ledger    *PositionLedger
	exchange  domain.Exchange
	features  domain.FeatureSource
	trades    domain.TradeRepository
	positions domain.PositionRepository
	dailyLoss *DailyLossTracker
	logger    *zap.Logger
}

func NewMonitorCycle(
	cfg MonitorConfig,
	engine *RiskEngine,
	ledger *PositionLedger,
	exchange domain.Exchange,
	features domain.FeatureSource,
	trades domain.TradeRepository,
	positions domain.PositionRepository,
	dailyLoss *DailyLossTracker,
	logger *zap.Logger,
) *MonitorCycle {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &MonitorCycle{
		cfg:       cfg,
		engine:    engine,
		ledger:    ledger,
		exchange:  exchange,
		features:  features,
		trades:    trades,
		positions: positions,
		dailyLoss: dailyLoss,
		logger:    logger,
	}
}

func (m *MonitorCycle) Name() string            { return "position_monitor" }
func (m *MonitorCycle) Interval() time.Duration { return m.cfg.Interval }

// RunOnce evaluates all open positions against a point-in-time snapshot
// of the ledger. Cross-ticker work runs with bounded concurrency; all
// per-ticker mutation serializes through the ledger.
func (m *MonitorCycle) RunOnce(ctx context.Context) error {
	snapshot := m.ledger.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	m.logger.Debug("Monitoring positions", zap.Int("count", len(snapshot)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for _, pos := range snapshot {
		pos := pos
		g.Go(func() error {
			m.monitorOne(gctx, pos)
			return nil
		})
	}
	g.Wait()

	metrics.PositionsOpen.Set(float64(m.ledger.Len()))
	return nil
}

func (m *MonitorCycle) monitorOne(ctx context.Context, snap *domain.Position) {
	ticker := snap.Ticker

	price, err := m.exchange.GetCurrentPrice(ctx, ticker)
	if err != nil {
		// Transient: skip this ticker, retry next tick.
		m.logger.Warn("Price fetch failed, skipping ticker",
			zap.String("ticker", ticker), zap.Error(err))
		return
	}

	// Advance the trailing stop before asking for a decision, so a stop
	// raised on this tick protects this tick's evaluation.
	trail := m.engine.Trail(snap, price)
	if trail.Moved || (trail.Activated && !snap.TrailingActive) {
		if err := m.ledger.Update(ticker, func(pos *domain.Position) bool {
			if trail.NewStop > pos.StopLoss {
				pos.StopLoss = trail.NewStop
			}
			pos.TrailingActive = pos.TrailingActive || trail.Activated
			return true
		}); err != nil {
			// Removed by another cycle mid-flight; nothing to monitor.
			return
		}
		if trail.Moved {
			m.logger.Info("Trailing stop advanced",
				zap.String("ticker", ticker),
				zap.Float64("old_stop", snap.StopLoss),
				zap.Float64("new_stop", trail.NewStop),
				zap.Float64("profit_pct", snap.ProfitPct(price)*100))
		}
		snap.StopLoss = trail.NewStop
		snap.TrailingActive = true
	}

	// Best-effort feature snapshot: neutral defaults beat aborting the pass.
	features, err := m.features.CurrentFeatures(ctx, ticker)
	if err != nil {
		m.logger.Debug("Feature refresh failed, using neutral defaults",
			zap.String("ticker", ticker), zap.Error(err))
		features = domain.FeatureVector{}
	}

	decision := m.engine.Evaluate(snap, price, features)

	switch decision.Action {
	case domain.ActionExitFull:
		m.executeFullExit(ctx, snap, price, decision)
	case domain.ActionExitPartial:
		m.executePartialExit(ctx, snap, price, decision)
	default:
		m.persistHold(ctx, ticker, price)
	}
}

func (m *MonitorCycle) executeFullExit(ctx context.Context, snap *domain.Position, price float64, decision domain.ExitDecision) {
	ticker := snap.Ticker
	quantity := m.exchange.RoundQuantity(ticker, snap.RemainingQuantity)
	if quantity <= 0 {
		quantity = snap.RemainingQuantity
	}

	fill, err := m.exchange.MarketSell(ctx, ticker, quantity)
	if err != nil {
		// Execution failure: position state unchanged, retried next tick.
		m.logger.Error("Full exit order failed",
			zap.String("ticker", ticker),
			zap.String("reason", decision.Reason),
			zap.Error(err))
		return
	}

	m.ledger.Remove(ticker)
	realized := (fill.Price - snap.EntryPrice) * fill.Quantity
	m.dailyLoss.AddRealized(realized)

	metrics.TradesTotal.WithLabelValues("sell").Inc()
	metrics.ExitDecisionsTotal.WithLabelValues(decision.Reason).Inc()
	m.logger.Info("Position closed",
		zap.String("ticker", ticker),
		zap.String("reason", decision.Reason),
		zap.Float64("exit_price", fill.Price),
		zap.Float64("quantity", fill.Quantity),
		zap.Float64("realized_pnl", realized))

	m.recordSell(ctx, snap, fill, decision.Reason)
	if err := m.positions.DeletePosition(ctx, ticker); err != nil {
		m.logger.Error("Failed to delete persisted position",
			zap.String("ticker", ticker), zap.Error(err))
	}
}

func (m *MonitorCycle) executePartialExit(ctx context.Context, snap *domain.Position, price float64, decision domain.ExitDecision) {
	ticker := snap.Ticker

	// Ladder fractions are planned against the entry quantity; feature
	// partials take a share of whatever is left.
	base := snap.RemainingQuantity
	if decision.Level != "" {
		base = snap.TotalQuantity
	}
	quantity := m.exchange.RoundQuantity(ticker, base*decision.Fraction)
	if quantity > snap.RemainingQuantity {
		quantity = snap.RemainingQuantity
	}
	if quantity <= 0 {
		m.logger.Warn("Partial exit rounds to zero, holding",
			zap.String("ticker", ticker),
			zap.String("reason", decision.Reason))
		return
	}

	fill, err := m.exchange.MarketSell(ctx, ticker, quantity)
	if err != nil {
		m.logger.Error("Partial exit order failed",
			zap.String("ticker", ticker),
			zap.String("reason", decision.Reason),
			zap.Error(err))
		return
	}

	var after *domain.Position
	err = m.ledger.Update(ticker, func(pos *domain.Position) bool {
		pos.RemainingQuantity -= fill.Quantity
		if pos.RemainingQuantity < 0 {
			pos.RemainingQuantity = 0
		}
		pos.CurrentPrice = price
		if decision.Level != "" {
			for i := range pos.TakeProfits {
				if pos.TakeProfits[i].Tag == decision.Level {
					pos.TakeProfits[i].Hit = true
				}
			}
		}
		after = pos.Clone()
		return !pos.Exhausted()
	})
	if err != nil {
		m.logger.Warn("Position vanished during partial exit",
			zap.String("ticker", ticker), zap.Error(err))
	}

	realized := (fill.Price - snap.EntryPrice) * fill.Quantity
	m.dailyLoss.AddRealized(realized)

	metrics.TradesTotal.WithLabelValues("sell").Inc()
	metrics.ExitDecisionsTotal.WithLabelValues(decision.Reason).Inc()
	m.logger.Info("Partial exit executed",
		zap.String("ticker", ticker),
		zap.String("reason", decision.Reason),
		zap.String("level", decision.Level),
		zap.Float64("fraction", decision.Fraction),
		zap.Float64("exit_price", fill.Price),
		zap.Float64("quantity", fill.Quantity),
		zap.Float64("realized_pnl", realized))

	m.recordSell(ctx, snap, fill, decision.Reason)

	switch {
	case after == nil || after.Exhausted():
		if err := m.positions.DeletePosition(ctx, ticker); err != nil {
			m.logger.Error("Failed to delete persisted position",
				zap.String("ticker", ticker), zap.Error(err))
		}
	default:
		if err := m.positions.UpsertPosition(ctx, after); err != nil {
			m.logger.Error("Failed to persist position",
				zap.String("ticker", ticker), zap.Error(err))
		}
	}
}

func (m *MonitorCycle) persistHold(ctx context.Context, ticker string, price float64) {
	var after *domain.Position
	if err := m.ledger.Update(ticker, func(pos *domain.Position) bool {
		pos.CurrentPrice = price
		after = pos.Clone()
		return true
	}); err != nil {
		return
	}
	if err := m.positions.UpsertPosition(ctx, after); err != nil {
		m.logger.Error("Failed to persist position snapshot",
			zap.String("ticker", ticker), zap.Error(err))
	}
}

func (m *MonitorCycle) recordSell(ctx context.Context, snap *domain.Position, fill *domain.Fill, reason string) {
	if _, err := m.trades.SaveTrade(ctx, &domain.Trade{
		SignalID:   snap.SignalID,
		Ticker:     snap.Ticker,
		Action:     "SELL",
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		TotalValue: fill.Price * fill.Quantity,
		Status:     "executed",
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		m.logger.Error("Failed to persist trade",
			zap.String("ticker", snap.Ticker), zap.Error(err))
	}
}
