package market

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoTick is returned by a TickStore that has never seen the symbol.
var ErrNoTick = errors.New("tick not found")

type TickSource interface {
	GetTick(ctx context.Context, symbol string) (Tick, error)
}

// Tick is a top-of-book quote.
type Tick struct {
	Symbol string
	Time   time.Time
	Bid    float64
	Ask    float64
}

func (t Tick) Mid() float64 {
	if t.Bid == 0 && t.Ask == 0 {
		return 0
	}
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// Open returns the price a new position in direction d is filled at.
func (t Tick) Open(d Direction) float64 {
	if d == Sell {
		return t.Bid
	}
	return t.Ask
}

// Close returns the price a position in direction d is closed at.
// Longs close on the bid, shorts on the ask.
func (t Tick) Close(d Direction) float64 {
	if d == Sell {
		return t.Ask
	}
	return t.Bid
}

// Valid reports whether both sides are quoted and not crossed.
func (t Tick) Valid() bool {
	return t.Bid > 0 && t.Ask > 0 && t.Ask >= t.Bid
}

type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Symbol] = t
}

func (ts *TickStore) Get(symbol string) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[symbol]
	if !ok {
		return Tick{}, ErrNoTick
	}
	return t, nil
}
