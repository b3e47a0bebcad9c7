// Package predictor talks to the external model service that ranks
// entry candidates. Inference itself lives outside this process.
package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/crypto_trade_bot/internal/domain"
	"go.uber.org/zap"
)

type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// TopSignals fetches the model's ranked candidates. The service already
// sorts by probability descending; ordering is preserved here.
func (c *HTTPClient) TopSignals(ctx context.Context, topN int, minProbability float64) ([]domain.Signal, error) {
	url := c.baseURL + "/signals?top_n=" + strconv.Itoa(topN) +
		"&min_probability=" + strconv.FormatFloat(minProbability, 'f', -1, 64)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predictor request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("predictor api error: %s", string(body))
	}

	var result struct {
		Signals []struct {
			Ticker      string               `json:"ticker"`
			SignalType  string               `json:"signal_type"`
			Probability float64              `json:"probability"`
			Features    domain.FeatureVector `json:"features"`
		} `json:"signals"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	signals := make([]domain.Signal, 0, len(result.Signals))
	for _, raw := range result.Signals {
		if raw.Ticker == "" {
			continue
		}
		if raw.Probability < 0 || raw.Probability > 1 {
			c.logger.Warn("Dropping signal with bad probability",
				zap.String("ticker", raw.Ticker),
				zap.Float64("probability", raw.Probability))
			continue
		}
		signals = append(signals, domain.Signal{
			Ticker:      raw.Ticker,
			SignalType:  raw.SignalType,
			Probability: raw.Probability,
			Features:    raw.Features,
			CreatedAt:   now,
		})
	}

	return signals, nil
}
