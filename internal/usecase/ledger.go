package usecase

import (
	"sort"
	"sync"

	"github.com/vitos/crypto_trade_bot/internal/domain"
)

// PositionLedger owns the in-memory map of open positions. All mutation
// goes through it, so a read-modify-write on one ticker (partial exit
// decrementing quantity) is atomic with respect to another cycle removing
// the same ticker.
type PositionLedger struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
}

func NewPositionLedger() *PositionLedger {
	return &PositionLedger{
		positions: make(map[string]*domain.Position),
	}
}

// Insert adds a freshly opened position. At most one open position per
// ticker: inserting a duplicate fails instead of silently replacing.
func (l *PositionLedger) Insert(pos *domain.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.positions[pos.Ticker]; ok {
		return domain.ErrPositionExists
	}
	l.positions[pos.Ticker] = pos.Clone()
	return nil
}

// Get returns a copy of the position for ticker.
func (l *PositionLedger) Get(ticker string) (*domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[ticker]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	return pos.Clone(), nil
}

// Update applies fn to the live position under the ledger lock. fn sees
// the owned record and may mutate it; returning false removes the
// position (exit executed, quantity exhausted). Returns
// ErrPositionNotFound if the ticker was removed by another cycle in the
// meantime.
func (l *PositionLedger) Update(ticker string, fn func(pos *domain.Position) (keep bool)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[ticker]
	if !ok {
		return domain.ErrPositionNotFound
	}
	if keep := fn(pos); !keep {
		delete(l.positions, ticker)
	}
	return nil
}

// Remove deletes the position for ticker, if present.
func (l *PositionLedger) Remove(ticker string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, ticker)
}

// Snapshot returns point-in-time copies of all open positions, sorted by
// ticker, for iteration by the cycles. Mutation during iteration is never
// observed through a snapshot.
func (l *PositionLedger) Snapshot() []*domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Len is the number of open positions.
func (l *PositionLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Tickers lists the tickers with open positions, sorted.
func (l *PositionLedger) Tickers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.positions))
	for t := range l.positions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
