package domain

import (
	"fmt"
	"time"
)

// QuantityEpsilon is the remaining quantity below which a position is
// considered fully exited.
const QuantityEpsilon = 1e-8

// TakeProfitLevel is one rung of the take-profit ladder.
type TakeProfitLevel struct {
	Tag          string // "TP1", "TP2", "TP3"
	Price        float64
	SizeFraction float64 // fraction of TotalQuantity to sell at this level
	Hit          bool    // set by the monitor after the partial exit executed
}

// Position is an open position tracked by the ledger. It is owned
// exclusively by the PositionLedger while open; other components operate
// on copies.
type Position struct {
	ID           string
	Ticker       string
	SignalID     int64
	Probability  float64
	EntryPrice   float64
	CurrentPrice float64

	TotalQuantity     float64
	RemainingQuantity float64

	StopLoss    float64
	TakeProfits [3]TakeProfitLevel

	TrailingEnabled bool
	TrailingActive  bool

	// ATRPct is the volatility snapshot taken at entry, reused for
	// trailing-distance sizing.
	ATRPct float64

	// EntryFeatures is the feature snapshot at entry time. Never mutated;
	// the exit engine compares current features against it.
	EntryFeatures FeatureVector

	EntryTime time.Time
}

// Validate checks the construction invariants: positive prices and
// quantities, stopLoss < entry < tp1 < tp2 < tp3, ladder fractions <= 1.
func (p *Position) Validate() error {
	if p.Ticker == "" {
		return fmt.Errorf("position: empty ticker")
	}
	if p.EntryPrice <= 0 {
		return fmt.Errorf("position %s: entry price must be positive, got %f", p.Ticker, p.EntryPrice)
	}
	if p.TotalQuantity <= 0 || p.RemainingQuantity <= 0 {
		return fmt.Errorf("position %s: quantities must be positive", p.Ticker)
	}
	if p.RemainingQuantity > p.TotalQuantity+QuantityEpsilon {
		return fmt.Errorf("position %s: remaining %f exceeds total %f", p.Ticker, p.RemainingQuantity, p.TotalQuantity)
	}
	if p.StopLoss <= 0 || p.StopLoss >= p.EntryPrice {
		return fmt.Errorf("position %s: stop loss %f must be below entry %f", p.Ticker, p.StopLoss, p.EntryPrice)
	}
	prev := p.EntryPrice
	sum := 0.0
	for i, tp := range p.TakeProfits {
		if tp.Price <= prev {
			return fmt.Errorf("position %s: TP%d price %f not above %f", p.Ticker, i+1, tp.Price, prev)
		}
		if tp.SizeFraction <= 0 || tp.SizeFraction > 1 {
			return fmt.Errorf("position %s: TP%d fraction %f out of range", p.Ticker, i+1, tp.SizeFraction)
		}
		sum += tp.SizeFraction
		prev = tp.Price
	}
	if sum > 1.0+1e-9 {
		return fmt.Errorf("position %s: TP fractions sum to %f (> 1.0)", p.Ticker, sum)
	}
	return nil
}

// ProfitPct is the unrealized gain relative to entry at the given price.
func (p *Position) ProfitPct(currentPrice float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (currentPrice - p.EntryPrice) / p.EntryPrice
}

// UnrealizedPnL is the open PnL of the remaining quantity at the given price.
func (p *Position) UnrealizedPnL(currentPrice float64) float64 {
	return (currentPrice - p.EntryPrice) * p.RemainingQuantity
}

// Exhausted reports whether the remaining quantity is effectively zero.
func (p *Position) Exhausted() bool {
	return p.RemainingQuantity <= QuantityEpsilon
}

// Clone returns a deep copy, including the entry feature snapshot, so
// callers can hand positions across goroutines without sharing state.
func (p *Position) Clone() *Position {
	cp := *p
	if p.EntryFeatures != nil {
		cp.EntryFeatures = make(FeatureVector, len(p.EntryFeatures))
		for k, v := range p.EntryFeatures {
			cp.EntryFeatures[k] = v
		}
	}
	return &cp
}
