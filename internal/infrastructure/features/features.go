// Package features derives the per-ticker indicator vector used for
// exit evaluation from daily candles.
package features

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/crypto_trade_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	candleInterval = "1d"
	candleLimit    = 30
	atrPeriod      = 14
)

type cachedVector struct {
	features  domain.FeatureVector
	fetchedAt time.Time
}

// CandleFeatureSource computes features from exchange candles and
// caches them per ticker. Monitor iterations within the TTL reuse the
// cached vector instead of refetching candles.
type CandleFeatureSource struct {
	exchange domain.Exchange
	ttl      time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedVector
}

func NewCandleFeatureSource(exchange domain.Exchange, ttl time.Duration, logger *zap.Logger) *CandleFeatureSource {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CandleFeatureSource{
		exchange: exchange,
		ttl:      ttl,
		logger:   logger,
		cache:    make(map[string]cachedVector),
	}
}

func (s *CandleFeatureSource) CurrentFeatures(ctx context.Context, ticker string) (domain.FeatureVector, error) {
	s.mu.Lock()
	cached, ok := s.cache[ticker]
	s.mu.Unlock()
	if ok && time.Since(cached.fetchedAt) < s.ttl {
		return cached.features, nil
	}

	candles, err := s.exchange.GetCandles(ctx, ticker, candleInterval, candleLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch candles for %s: %w", ticker, err)
	}
	if len(candles) < atrPeriod+1 {
		return nil, fmt.Errorf("not enough candles for %s: got %d", ticker, len(candles))
	}

	features := Compute(candles)

	s.mu.Lock()
	s.cache[ticker] = cachedVector{features: features, fetchedAt: time.Now()}
	s.mu.Unlock()

	s.logger.Debug("Computed feature vector",
		zap.String("ticker", ticker),
		zap.Float64("atr_pct", features.Get(domain.FeatureATRPct, 0)),
		zap.Float64("momentum_3d", features.Get(domain.FeatureMomentum3d, 0)))

	return features, nil
}

// Compute derives the indicator vector from chronological daily
// candles. The last candle is treated as the current day.
func Compute(candles []domain.Candle) domain.FeatureVector {
	n := len(candles)
	features := domain.FeatureVector{}

	last := candles[n-1]
	if last.Close > 0 {
		features[domain.FeatureATRPct] = atr(candles, atrPeriod) / last.Close
	}

	// 3-day momentum: percent change of close over the last 3 candles.
	if n >= 4 && candles[n-4].Close > 0 {
		momentum := (last.Close - candles[n-4].Close) / candles[n-4].Close
		features[domain.FeatureMomentum3d] = momentum
		features[domain.FeatureMomentumStrength] = momentumStrength(candles)
	}

	if n >= 21 {
		features[domain.FeatureVolumeRatio20] = volumeRatio(candles, 20)
	}

	if n >= 5 {
		features[domain.FeatureGreenCandles5d] = greenFraction(candles, 5)
		features[domain.FeatureHigherLows5d] = higherLowsFraction(candles, 5)
	}

	return features
}

// atr is the Wilder true range averaged over the trailing period.
func atr(candles []domain.Candle, period int) float64 {
	n := len(candles)
	if n < period+1 {
		return 0
	}

	var sum float64
	for i := n - period; i < n; i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := high - low
		if d := abs(high - prevClose); d > tr {
			tr = d
		}
		if d := abs(low - prevClose); d > tr {
			tr = d
		}
		sum += tr
	}
	return sum / float64(period)
}

// momentumStrength is the fraction of the last 3 candles closing up.
func momentumStrength(candles []domain.Candle) float64 {
	n := len(candles)
	up := 0
	for i := n - 3; i < n; i++ {
		if candles[i].Close > candles[i-1].Close {
			up++
		}
	}
	return float64(up) / 3
}

// volumeRatio compares the latest volume against the trailing average.
func volumeRatio(candles []domain.Candle, period int) float64 {
	n := len(candles)
	var sum float64
	for i := n - 1 - period; i < n-1; i++ {
		sum += candles[i].Volume
	}
	avg := sum / float64(period)
	if avg <= 0 {
		return 1.0
	}
	return candles[n-1].Volume / avg
}

func greenFraction(candles []domain.Candle, period int) float64 {
	n := len(candles)
	green := 0
	for i := n - period; i < n; i++ {
		if candles[i].Close > candles[i].Open {
			green++
		}
	}
	return float64(green) / float64(period)
}

func higherLowsFraction(candles []domain.Candle, period int) float64 {
	n := len(candles)
	higher := 0
	for i := n - period; i < n; i++ {
		if candles[i].Low > candles[i-1].Low {
			higher++
		}
	}
	return float64(higher) / float64(period)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
