package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_trade_bot/internal/domain"
	"github.com/vitos/crypto_trade_bot/internal/metrics"
	"go.uber.org/zap"
)

// ScanConfig holds the entry-side trading parameters.
type ScanConfig struct {
	Interval              time.Duration
	TopN                  int
	MinProbability        float64
	MaxPositions          int
	MaxDailyLossUSD       float64
	PositionSizePct       float64
	MaxPositionUSD        float64
	MaxPositionPct        float64
	RequireManualApproval bool
}

// DefaultScanConfig mirrors the production defaults: conservative 95%
// threshold, 10% of capital per position capped at $500 / 15%.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Interval:        12 * time.Hour,
		TopN:            10,
		MinProbability:  0.95,
		MaxPositions:    10,
		MaxDailyLossUSD: 200,
		PositionSizePct: 0.10,
		MaxPositionUSD:  500,
		MaxPositionPct:  0.15,
	}
}

// ScanCycle pulls ranked model signals, applies the entry gates, sizes
// and opens new positions. One run per interval; a failure on one ticker
// never aborts the others.
type ScanCycle struct {
	cfg       ScanConfig
	engine    *RiskEngine
	ledger    *PositionLedger
	exchange  domain.Exchange
	predictor domain.Predictor
	macro     domain.MacroSource
	signals   domain.SignalRepository
	trades    domain.TradeRepository
	positions domain.PositionRepository
	status    domain.StatusRepository
	dailyLoss *DailyLossTracker
	logger    *zap.Logger

	cycleNumber atomic.Int64
}

func NewScanCycle(
	cfg ScanConfig,
	engine *RiskEngine,
	ledger *PositionLedger,
	exchange domain.Exchange,
	predictor domain.Predictor,
	macro domain.MacroSource,
	signals domain.SignalRepository,
	trades domain.TradeRepository,
	positions domain.PositionRepository,
	status domain.StatusRepository,
	dailyLoss *DailyLossTracker,
	logger *zap.Logger,
) *ScanCycle {
	return &ScanCycle{
		cfg:       cfg,
		engine:    engine,
		ledger:    ledger,
		exchange:  exchange,
		predictor: predictor,
		macro:     macro,
		signals:   signals,
		trades:    trades,
		positions: positions,
		status:    status,
		dailyLoss: dailyLoss,
		logger:    logger,
	}
}

func (s *ScanCycle) Name() string            { return "market_scan" }
func (s *ScanCycle) Interval() time.Duration { return s.cfg.Interval }

// CycleNumber returns the number of completed scans.
func (s *ScanCycle) CycleNumber() int64 { return s.cycleNumber.Load() }

// RunOnce executes one full market scan.
func (s *ScanCycle) RunOnce(ctx context.Context) error {
	cycle := s.cycleNumber.Add(1)
	s.logger.Info("Market scan started", zap.Int64("cycle", cycle))

	market := s.macro.Conditions(ctx)

	candidates, err := s.predictor.TopSignals(ctx, s.cfg.TopN, s.cfg.MinProbability)
	if err != nil {
		return fmt.Errorf("fetch signals: %w", err)
	}

	buySignals := 0
	for i := range candidates {
		sig := &candidates[i]
		if sig.SignalType == "BUY" {
			buySignals++
		}
		metrics.SignalsTotal.WithLabelValues(sig.SignalType).Inc()
		id, err := s.signals.SaveSignal(ctx, sig)
		if err != nil {
			s.logger.Error("Failed to persist signal",
				zap.String("ticker", sig.Ticker), zap.Error(err))
			continue
		}
		sig.ID = id
	}

	s.updateStatus(ctx, len(candidates), buySignals, int(cycle))

	opened := 0
	for i := range candidates {
		sig := &candidates[i]
		if sig.SignalType != "BUY" {
			continue
		}
		if err := s.openPosition(ctx, sig, market); err != nil {
			s.logger.Warn("Entry skipped",
				zap.String("ticker", sig.Ticker),
				zap.Float64("probability", sig.Probability),
				zap.Error(err))
			continue
		}
		opened++
	}

	metrics.ScansTotal.Inc()
	metrics.PositionsOpen.Set(float64(s.ledger.Len()))
	s.logger.Info("Market scan complete",
		zap.Int64("cycle", cycle),
		zap.Int("signals", len(candidates)),
		zap.Int("buy_signals", buySignals),
		zap.Int("opened", opened))
	return nil
}

// shouldTrade applies the entry risk gates in order and returns the
// blocking reason when a gate refuses the candidate.
func (s *ScanCycle) shouldTrade(sig *domain.Signal) error {
	if sig.Probability < s.cfg.MinProbability {
		return fmt.Errorf("probability %.4f below threshold %.2f", sig.Probability, s.cfg.MinProbability)
	}
	if s.ledger.Len() >= s.cfg.MaxPositions {
		return fmt.Errorf("max positions reached (%d)", s.cfg.MaxPositions)
	}
	if loss := s.dailyLoss.Current(); loss >= s.cfg.MaxDailyLossUSD {
		return fmt.Errorf("daily loss limit reached ($%.2f)", loss)
	}
	if s.cfg.RequireManualApproval {
		return fmt.Errorf("manual approval required")
	}
	if _, err := s.ledger.Get(sig.Ticker); err == nil {
		return domain.ErrPositionExists
	}
	return nil
}

func (s *ScanCycle) openPosition(ctx context.Context, sig *domain.Signal, market domain.MarketConditions) error {
	if err := s.shouldTrade(sig); err != nil {
		return err
	}

	price, err := s.exchange.GetCurrentPrice(ctx, sig.Ticker)
	if err != nil {
		return fmt.Errorf("price fetch: %w", err)
	}

	portfolioValue, err := s.exchange.GetUSDTBalance(ctx)
	if err != nil {
		return fmt.Errorf("balance fetch: %w", err)
	}

	usdValue := portfolioValue * s.cfg.PositionSizePct
	if usdValue > s.cfg.MaxPositionUSD {
		usdValue = s.cfg.MaxPositionUSD
	}
	if pctCap := portfolioValue * s.cfg.MaxPositionPct; usdValue > pctCap {
		usdValue = pctCap
	}

	quantity := s.exchange.RoundQuantity(sig.Ticker, usdValue/price)
	if quantity <= 0 {
		return fmt.Errorf("position size rounds to zero (value $%.2f at %.6f)", usdValue, price)
	}

	fill, err := s.exchange.MarketBuy(ctx, sig.Ticker, quantity)
	if err != nil {
		return fmt.Errorf("buy order: %w", err)
	}

	plan := s.engine.PlanEntry(fill.Price, sig.Features, market)

	pos := &domain.Position{
		ID:                uuid.NewString(),
		Ticker:            sig.Ticker,
		SignalID:          sig.ID,
		Probability:       sig.Probability,
		EntryPrice:        fill.Price,
		CurrentPrice:      fill.Price,
		TotalQuantity:     fill.Quantity,
		RemainingQuantity: fill.Quantity,
		StopLoss:          plan.StopLoss,
		TakeProfits:       plan.TakeProfits,
		TrailingEnabled:   true,
		ATRPct:            plan.ATRPct,
		EntryFeatures:     sig.Features,
		EntryTime:         time.Now().UTC(),
	}
	if err := s.ledger.Insert(pos); err != nil {
		// The fill already happened; this is a bookkeeping failure, not a
		// trade failure. Surface it loudly.
		return fmt.Errorf("ledger insert after fill: %w", err)
	}

	metrics.TradesTotal.WithLabelValues("buy").Inc()
	s.logger.Info("Position opened",
		zap.String("ticker", sig.Ticker),
		zap.Float64("entry", fill.Price),
		zap.Float64("quantity", fill.Quantity),
		zap.Float64("stop_loss", plan.StopLoss),
		zap.Float64("tp1", plan.TakeProfits[0].Price),
		zap.Float64("tp2", plan.TakeProfits[1].Price),
		zap.Float64("tp3", plan.TakeProfits[2].Price),
		zap.Float64("vol_mult", plan.VolatilityMult),
		zap.Float64("mom_mult", plan.MomentumMult),
		zap.Float64("mkt_mult", plan.MarketMult))

	if _, err := s.trades.SaveTrade(ctx, &domain.Trade{
		SignalID:   sig.ID,
		Ticker:     sig.Ticker,
		Action:     "BUY",
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		TotalValue: fill.Price * fill.Quantity,
		Status:     "executed",
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		s.logger.Error("Failed to persist trade", zap.String("ticker", sig.Ticker), zap.Error(err))
	}
	if err := s.positions.UpsertPosition(ctx, pos); err != nil {
		s.logger.Error("Failed to persist position", zap.String("ticker", sig.Ticker), zap.Error(err))
	}
	return nil
}

func (s *ScanCycle) updateStatus(ctx context.Context, total, buys, cycle int) {
	if err := s.status.UpdateBotStatus(ctx, &domain.BotStatus{
		Status:       "running",
		TotalSignals: total,
		BuySignals:   buys,
		CycleNumber:  cycle,
		UpdatedAt:    time.Now().UTC(),
	}); err != nil {
		s.logger.Error("Failed to update bot status", zap.Error(err))
	}
}
