package usecase

import (
	"github.com/vitos/crypto_trade_bot/internal/domain"
)

// Base TP/SL percentages before dynamic adjustment. The ladder sells 30%
// at +10%, 40% at +20% and 30% at +40% of entry.
const (
	baseStopLossPct = 0.05

	baseTP1Pct  = 0.10
	baseTP2Pct  = 0.20
	baseTP3Pct  = 0.40
	tp1Fraction = 0.30
	tp2Fraction = 0.40
	tp3Fraction = 0.30

	trailingActivationPct = 0.05 // engage trailing once gain > 5%
	trailingATRMult       = 1.5
	trailingMinDistance   = 0.02
	trailingMaxDistance   = 0.08
	trailingLockInPct     = 1.01 // stop never below entry*1.01 once active
)

// EntryPlan is the dynamic TP/SL plan computed once at entry.
type EntryPlan struct {
	StopLoss    float64
	StopLossPct float64
	TakeProfits [3]domain.TakeProfitLevel
	ATRPct      float64

	VolatilityMult float64
	MomentumMult   float64
	MarketMult     float64
}

// TrailResult is the outcome of one trailing-stop recompute.
type TrailResult struct {
	NewStop   float64
	Activated bool // trailing threshold reached on this evaluation
	Moved     bool // stop actually advanced, exchange-side order needs update
}

// RiskEngine is the exit decision engine. All methods are pure functions
// of their inputs: no I/O, no clock, no mutation of the position.
type RiskEngine struct{}

func NewRiskEngine() *RiskEngine {
	return &RiskEngine{}
}

// PlanEntry computes the dynamic stop-loss and take-profit ladder for a
// fill at entryPrice. The base percentages are scaled by volatility,
// momentum and market-regime multipliers, then clamped to sane bands
// before conversion to absolute prices.
func (e *RiskEngine) PlanEntry(entryPrice float64, features domain.FeatureVector, market domain.MarketConditions) EntryPlan {
	atrPct := features.Get(domain.FeatureATRPct, 0.03)
	momentum := features.Get(domain.FeatureMomentum3d, 0)
	strength := features.Get(domain.FeatureMomentumStrength, 0)

	volMult := volatilityMultiplier(atrPct)
	momMult := momentumMultiplier(momentum, strength)
	mktMult := marketMultiplier(market)

	// Higher volatility widens the stop so normal noise does not stop
	// the position out prematurely.
	slPct := clamp(baseStopLossPct*volMult, 0.03, 0.10)

	tpMult := volMult * momMult * mktMult
	tp1Pct := clamp(baseTP1Pct*tpMult, 0.08, 0.20)
	tp2Pct := clamp(baseTP2Pct*tpMult, 0.15, 0.35)
	tp3Pct := clamp(baseTP3Pct*tpMult, 0.30, 0.60)

	return EntryPlan{
		StopLoss:    entryPrice * (1 - slPct),
		StopLossPct: slPct,
		TakeProfits: [3]domain.TakeProfitLevel{
			{Tag: "TP1", Price: entryPrice * (1 + tp1Pct), SizeFraction: tp1Fraction},
			{Tag: "TP2", Price: entryPrice * (1 + tp2Pct), SizeFraction: tp2Fraction},
			{Tag: "TP3", Price: entryPrice * (1 + tp3Pct), SizeFraction: tp3Fraction},
		},
		ATRPct:         atrPct,
		VolatilityMult: volMult,
		MomentumMult:   momMult,
		MarketMult:     mktMult,
	}
}

// Trail recomputes the trailing stop for a position at currentPrice. The
// stop only engages once unrealized gain exceeds the activation threshold
// and never moves down; once active it locks in at least 1% profit.
func (e *RiskEngine) Trail(pos *domain.Position, currentPrice float64) TrailResult {
	if !pos.TrailingEnabled {
		return TrailResult{NewStop: pos.StopLoss}
	}

	profitPct := pos.ProfitPct(currentPrice)
	if profitPct < trailingActivationPct && !pos.TrailingActive {
		return TrailResult{NewStop: pos.StopLoss}
	}

	distance := clamp(pos.ATRPct*trailingATRMult, trailingMinDistance, trailingMaxDistance)
	candidate := currentPrice * (1 - distance)

	newStop := pos.StopLoss
	if candidate > newStop {
		newStop = candidate
	}
	if lock := pos.EntryPrice * trailingLockInPct; newStop < lock {
		newStop = lock
	}
	// Monotonic: never regress below the current stop.
	if newStop < pos.StopLoss {
		newStop = pos.StopLoss
	}

	return TrailResult{
		NewStop:   newStop,
		Activated: true,
		Moved:     newStop > pos.StopLoss,
	}
}

// Evaluate produces the exit decision for one position at currentPrice
// with the current feature snapshot. Evaluation order is fixed and
// first-match-wins: stop loss, TP ladder, momentum reversal, volume
// collapse, bearish patterns, hold.
func (e *RiskEngine) Evaluate(pos *domain.Position, currentPrice float64, features domain.FeatureVector) domain.ExitDecision {
	// 1. Stop-loss breach always wins, regardless of TP state or features.
	if currentPrice <= pos.StopLoss {
		return domain.FullExit(domain.ReasonStopLoss)
	}

	// 2. Take-profit ladder: first unhit level reached fires. Only one
	// level per evaluation; the caller marks Hit after execution.
	reasons := [3]string{domain.ReasonTP1, domain.ReasonTP2, domain.ReasonTP3}
	for i, tp := range pos.TakeProfits {
		if currentPrice >= tp.Price && !tp.Hit {
			return domain.PartialExit(tp.SizeFraction, tp.Tag, reasons[i])
		}
	}

	profitPct := pos.ProfitPct(currentPrice)

	// 3. Momentum reversal: entry momentum meaningfully positive flipped
	// meaningfully negative while in profit.
	entryMomentum := pos.EntryFeatures.Get(domain.FeatureMomentum3d, 0)
	currMomentum := features.Get(domain.FeatureMomentum3d, 0)
	if entryMomentum > 0.02 && currMomentum < -0.02 && profitPct > 0.03 {
		return domain.FullExit(domain.ReasonMomentumReversal)
	}

	entryStrength := pos.EntryFeatures.Get(domain.FeatureMomentumStrength, 0)
	currStrength := features.Get(domain.FeatureMomentumStrength, 0)
	if entryStrength > 0.5 && currStrength < 0.2 && profitPct > 0.05 {
		return domain.PartialExit(0.5, "", domain.ReasonMomentumWeakening)
	}

	// 4. Volume collapse: elevated entry volume fell off a cliff.
	entryVolume := pos.EntryFeatures.Get(domain.FeatureVolumeRatio20, 1.0)
	currVolume := features.Get(domain.FeatureVolumeRatio20, 1.0)
	if entryVolume > 1.5 && currVolume < 0.5 {
		return domain.PartialExit(0.5, "", domain.ReasonVolumeCollapse)
	}

	// 5. Bearish patterns over the last 5 bars.
	greenRatio := features.Get(domain.FeatureGreenCandles5d, 0.5)
	if greenRatio < 0.2 && profitPct > 0.02 {
		return domain.PartialExit(0.3, "", domain.ReasonBearishCandles)
	}
	higherLows := features.Get(domain.FeatureHigherLows5d, 0.5)
	if higherLows < 0.2 && profitPct > 0.03 {
		return domain.PartialExit(0.3, "", domain.ReasonLowerLows)
	}

	return domain.Hold()
}

func volatilityMultiplier(atrPct float64) float64 {
	switch {
	case atrPct < 0.02:
		return 0.8
	case atrPct < 0.03:
		return 0.9
	case atrPct < 0.05:
		return 1.0
	case atrPct < 0.08:
		return 1.2
	default:
		return 1.5
	}
}

func momentumMultiplier(momentum3d, strength float64) float64 {
	switch {
	case momentum3d > 0.05 && strength > 0.5:
		return 1.3
	case momentum3d > 0.02 && strength > 0.3:
		return 1.15
	case momentum3d > 0:
		return 1.0
	case momentum3d > -0.02:
		return 0.9
	default:
		return 0.8
	}
}

func marketMultiplier(market domain.MarketConditions) float64 {
	mult := 1.0

	switch {
	case market.FearGreed > 75: // extreme greed: take profits sooner
		mult *= 0.85
	case market.FearGreed > 60:
		mult *= 0.95
	case market.FearGreed < 25: // extreme fear: room for the rebound
		mult *= 1.15
	case market.FearGreed < 40:
		mult *= 1.05
	}

	switch {
	case market.VIX > 30:
		mult *= 0.9
	case market.VIX > 25:
		mult *= 0.95
	}

	return mult
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
