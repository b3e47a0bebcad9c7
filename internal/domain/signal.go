package domain

import "time"

// Feature keys the exit engine reads. The feature pipeline may produce
// more; anything absent falls back to a neutral default.
const (
	FeatureATRPct           = "atr_pct"
	FeatureMomentum3d       = "momentum_3d"
	FeatureMomentumStrength = "momentum_strength"
	FeatureVolumeRatio20    = "volume_ratio_20"
	FeatureGreenCandles5d   = "green_candles_5d"
	FeatureHigherLows5d     = "higher_lows_5d"
)

// FeatureVector is a named numeric feature snapshot for one ticker.
// A nil map is valid and yields defaults for every key.
type FeatureVector map[string]float64

// Get returns the feature value or def when the key is missing. Missing
// inputs never error; the engine runs on neutral defaults instead.
func (f FeatureVector) Get(key string, def float64) float64 {
	if f == nil {
		return def
	}
	if v, ok := f[key]; ok {
		return v
	}
	return def
}

// MarketConditions is the macro snapshot used for entry risk sizing.
type MarketConditions struct {
	FearGreed float64 // 0-100, 50 neutral
	VIX       float64 // 20 neutral
}

// NeutralMarket is used when the macro fetch fails.
func NeutralMarket() MarketConditions {
	return MarketConditions{FearGreed: 50, VIX: 20}
}

// Signal is one ranked prediction candidate from the model collaborator.
type Signal struct {
	ID          int64
	Ticker      string
	SignalType  string // "BUY", "SELL", "HOLD"
	Probability float64
	Features    FeatureVector
	CreatedAt   time.Time
}

// Trade is a buy or sell executed (or attempted) by the bot.
type Trade struct {
	ID         int64
	SignalID   int64
	Ticker     string
	Action     string // "BUY" or "SELL"
	Quantity   float64
	Price      float64
	TotalValue float64
	Status     string // "executed", "failed"
	Reason     string // exit reason for sells, "" for buys
	CreatedAt  time.Time
}

// Fill is the confirmed execution of a market order.
type Fill struct {
	Price    float64
	Quantity float64
}

// Balance is one asset's balance on the exchange.
type Balance struct {
	Free   float64
	Locked float64
	Total  float64
}

// BotStatus is the user-visible status record kept in storage.
type BotStatus struct {
	Status       string // "running", "stopped", "error"
	TotalSignals int
	BuySignals   int
	CycleNumber  int
	LastError    string
	UpdatedAt    time.Time
}

// Candle is one OHLCV bar, oldest-first when returned in a slice.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}
