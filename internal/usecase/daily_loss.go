package usecase

import (
	"sync"
	"time"

	"github.com/vitos/crypto_trade_bot/internal/metrics"
)

// DailyLossTracker accumulates realized losses for the current UTC day.
// The monitor cycle feeds it on every exit; the scan cycle reads it as an
// entry gate. Rolls over automatically on date change.
type DailyLossTracker struct {
	mu   sync.Mutex
	day  string
	loss float64
}

func NewDailyLossTracker() *DailyLossTracker {
	return &DailyLossTracker{day: utcDay()}
}

// AddRealized records the PnL of an executed exit. Gains do not offset
// the loss counter; the gate is about capping downside, not net PnL.
func (t *DailyLossTracker) AddRealized(pnl float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()
	if pnl < 0 {
		t.loss += -pnl
	}
	metrics.DailyRealizedLoss.Set(t.loss)
}

// Current returns today's accumulated realized loss in USD.
func (t *DailyLossTracker) Current() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()
	return t.loss
}

func (t *DailyLossTracker) roll() {
	if day := utcDay(); day != t.day {
		t.day = day
		t.loss = 0
	}
}

func utcDay() string {
	return time.Now().UTC().Format("2006-01-02")
}
