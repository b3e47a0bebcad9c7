package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/crypto_trade_bot/internal/domain"
)

// MockExchange is a configurable in-memory exchange. Safe for the
// monitor's concurrent access.
type MockExchange struct {
	mu sync.Mutex

	Prices      map[string]float64
	PriceErrors map[string]error
	Balances    map[string]domain.Balance
	USDT        float64
	Connectable bool

	BuyCalls  []MockOrder
	SellCalls []MockOrder
	SellErr   error
	BuyErr    error
}

type MockOrder struct {
	Ticker   string
	Quantity float64
	Price    float64
}

func NewMockExchange() *MockExchange {
	return &MockExchange{
		Prices:      make(map[string]float64),
		PriceErrors: make(map[string]error),
		Balances:    make(map[string]domain.Balance),
		USDT:        10000,
		Connectable: true,
	}
}

func (m *MockExchange) GetCurrentPrice(ctx context.Context, ticker string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.PriceErrors[ticker]; err != nil {
		return 0, err
	}
	price, ok := m.Prices[ticker]
	if !ok {
		return 0, fmt.Errorf("no price for %s", ticker)
	}
	return price, nil
}

func (m *MockExchange) GetUSDTBalance(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.USDT, nil
}

func (m *MockExchange) GetAccountBalances(ctx context.Context) (map[string]domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.Balance, len(m.Balances))
	for k, v := range m.Balances {
		out[k] = v
	}
	return out, nil
}

func (m *MockExchange) MarketBuy(ctx context.Context, ticker string, quantity float64) (*domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BuyErr != nil {
		return nil, m.BuyErr
	}
	price := m.Prices[ticker]
	m.BuyCalls = append(m.BuyCalls, MockOrder{Ticker: ticker, Quantity: quantity, Price: price})
	return &domain.Fill{Price: price, Quantity: quantity}, nil
}

func (m *MockExchange) MarketSell(ctx context.Context, ticker string, quantity float64) (*domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SellErr != nil {
		return nil, m.SellErr
	}
	price := m.Prices[ticker]
	m.SellCalls = append(m.SellCalls, MockOrder{Ticker: ticker, Quantity: quantity, Price: price})
	return &domain.Fill{Price: price, Quantity: quantity}, nil
}

func (m *MockExchange) GetCandles(ctx context.Context, ticker, interval string, limit int) ([]domain.Candle, error) {
	return nil, fmt.Errorf("no candles in mock")
}

func (m *MockExchange) RoundQuantity(ticker string, quantity float64) float64 { return quantity }
func (m *MockExchange) RoundPrice(ticker string, price float64) float64      { return price }

func (m *MockExchange) TestConnectivity(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Connectable
}

func (m *MockExchange) sellCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SellCalls)
}

// MockPredictor returns a fixed signal set.
type MockPredictor struct {
	Signals []domain.Signal
	Err     error
}

func (m *MockPredictor) TopSignals(ctx context.Context, topN int, minProbability float64) ([]domain.Signal, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Signals, nil
}

// MockFeatureSource serves a fixed vector per ticker.
type MockFeatureSource struct {
	mu       sync.Mutex
	Features map[string]domain.FeatureVector
	Err      error
}

func (m *MockFeatureSource) CurrentFeatures(ctx context.Context, ticker string) (domain.FeatureVector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if f, ok := m.Features[ticker]; ok {
		return f, nil
	}
	return domain.FeatureVector{}, nil
}

// MockMacroSource returns fixed market conditions.
type MockMacroSource struct {
	Market domain.MarketConditions
}

func (m *MockMacroSource) Conditions(ctx context.Context) domain.MarketConditions {
	if m.Market.FearGreed == 0 && m.Market.VIX == 0 {
		return domain.NeutralMarket()
	}
	return m.Market
}

// MockStore implements all four repositories in memory.
type MockStore struct {
	mu        sync.Mutex
	Signals   []*domain.Signal
	Trades    []*domain.Trade
	Positions map[string]*domain.Position
	Status    *domain.BotStatus
}

func NewMockStore() *MockStore {
	return &MockStore{Positions: make(map[string]*domain.Position)}
}

func (m *MockStore) SaveSignal(ctx context.Context, sig *domain.Signal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sig
	cp.ID = int64(len(m.Signals) + 1)
	m.Signals = append(m.Signals, &cp)
	return cp.ID, nil
}

func (m *MockStore) ListSignals(ctx context.Context, limit int) ([]*domain.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Signal(nil), m.Signals...), nil
}

func (m *MockStore) SaveTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *trade
	cp.ID = int64(len(m.Trades) + 1)
	m.Trades = append(m.Trades, &cp)
	return cp.ID, nil
}

func (m *MockStore) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Trade(nil), m.Trades...), nil
}

func (m *MockStore) UpsertPosition(ctx context.Context, pos *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Positions[pos.Ticker] = pos.Clone()
	return nil
}

func (m *MockStore) DeletePosition(ctx context.Context, ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Positions, ticker)
	return nil
}

func (m *MockStore) ListPositions(ctx context.Context) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Position
	for _, p := range m.Positions {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *MockStore) UpdateBotStatus(ctx context.Context, status *domain.BotStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *status
	m.Status = &cp
	return nil
}

func (m *MockStore) GetBotStatus(ctx context.Context) (*domain.BotStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Status == nil {
		return &domain.BotStatus{Status: "stopped"}, nil
	}
	cp := *m.Status
	return &cp, nil
}

func (m *MockStore) tradeActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, t := range m.Trades {
		out = append(out, t.Action)
	}
	return out
}

func buySignal(ticker string, probability float64) domain.Signal {
	return domain.Signal{
		Ticker:      ticker,
		SignalType:  "BUY",
		Probability: probability,
		Features: domain.FeatureVector{
			domain.FeatureATRPct:     0.03,
			domain.FeatureMomentum3d: 0.01,
		},
		CreatedAt: time.Now().UTC(),
	}
}
