package domain

import "context"

// Exchange defines the interface for interacting with a crypto exchange.
// Every call may fail; callers treat failures as transient and retry on
// the next cycle instead of crashing.
type Exchange interface {
	GetCurrentPrice(ctx context.Context, ticker string) (float64, error)
	GetUSDTBalance(ctx context.Context) (float64, error)
	GetAccountBalances(ctx context.Context) (map[string]Balance, error)
	MarketBuy(ctx context.Context, ticker string, quantity float64) (*Fill, error)
	MarketSell(ctx context.Context, ticker string, quantity float64) (*Fill, error)
	GetCandles(ctx context.Context, ticker, interval string, limit int) ([]Candle, error)
	RoundQuantity(ticker string, quantity float64) float64
	RoundPrice(ticker string, price float64) float64
	TestConnectivity(ctx context.Context) bool
}

// Predictor is the model collaborator producing ranked entry candidates.
type Predictor interface {
	TopSignals(ctx context.Context, topN int, minProbability float64) ([]Signal, error)
}

// FeatureSource recomputes the current feature snapshot for a ticker.
// Best-effort: implementations return an empty vector rather than failing
// the monitoring pass.
type FeatureSource interface {
	CurrentFeatures(ctx context.Context, ticker string) (FeatureVector, error)
}

// MacroSource fetches market-wide conditions (fear & greed, VIX).
type MacroSource interface {
	Conditions(ctx context.Context) MarketConditions
}

// SignalRepository persists model signals. Fire-and-log: a persistence
// failure never blocks a trading decision.
type SignalRepository interface {
	SaveSignal(ctx context.Context, signal *Signal) (int64, error)
	ListSignals(ctx context.Context, limit int) ([]*Signal, error)
}

// TradeRepository persists executed trades.
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade *Trade) (int64, error)
	ListTrades(ctx context.Context, limit int) ([]*Trade, error)
}

// PositionRepository mirrors the in-memory ledger so open positions
// survive a restart.
type PositionRepository interface {
	UpsertPosition(ctx context.Context, pos *Position) error
	DeletePosition(ctx context.Context, ticker string) error
	ListPositions(ctx context.Context) ([]*Position, error)
}

// StatusRepository keeps the single user-visible bot status row.
type StatusRepository interface {
	UpdateBotStatus(ctx context.Context, status *BotStatus) error
	GetBotStatus(ctx context.Context) (*BotStatus, error)
}
