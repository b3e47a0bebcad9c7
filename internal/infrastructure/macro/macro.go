// Package macro fetches market-wide sentiment inputs for exit planning.
package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/vitos/crypto_trade_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	FearGreedURL = "https://api.alternative.me/fng/?limit=1"

	// No free realtime VIX feed, so a calm-market default is used and
	// can be overridden from config.
	DefaultVIX = 20.0
)

// AlternativeMeSource fetches the crypto Fear & Greed index from
// alternative.me. Results are cached; on fetch failure the neutral
// defaults are returned so exit planning never blocks on sentiment.
type AlternativeMeSource struct {
	url    string
	vix    float64
	ttl    time.Duration
	client *http.Client
	logger *zap.Logger

	mu        sync.Mutex
	cached    domain.MarketConditions
	fetchedAt time.Time
}

func NewAlternativeMeSource(url string, vix float64, ttl time.Duration, logger *zap.Logger) *AlternativeMeSource {
	if url == "" {
		url = FearGreedURL
	}
	if vix <= 0 {
		vix = DefaultVIX
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AlternativeMeSource{
		url:    url,
		vix:    vix,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (s *AlternativeMeSource) Conditions(ctx context.Context) domain.MarketConditions {
	s.mu.Lock()
	if !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < s.ttl {
		cached := s.cached
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	fearGreed, err := s.fetchFearGreed(ctx)
	if err != nil {
		s.logger.Warn("Fear & greed fetch failed, using neutral defaults", zap.Error(err))
		market := domain.NeutralMarket()
		market.VIX = s.vix
		return market
	}

	market := domain.MarketConditions{FearGreed: fearGreed, VIX: s.vix}

	s.mu.Lock()
	s.cached = market
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	return market
}

func (s *AlternativeMeSource) fetchFearGreed(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("fear & greed api error: %s", string(body))
	}

	var result struct {
		Data []struct {
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	if len(result.Data) == 0 {
		return 0, fmt.Errorf("fear & greed api returned no data")
	}

	value, err := strconv.ParseFloat(result.Data[0].Value, 64)
	if err != nil {
		return 0, fmt.Errorf("bad fear & greed value: %w", err)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("fear & greed value out of range: %f", value)
	}

	return value, nil
}
