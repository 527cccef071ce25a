package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
	"github.com/rustyeddy/botcore/sim"
)

type failingCandles struct{}

func (failingCandles) Candles(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Candle, error) {
	return nil, errors.New("feed down")
}

func paper(t *testing.T) *sim.Engine {
	t.Helper()
	e := sim.NewEngine(broker.Account{Balance: 5_000}, market.Instruments["EURUSD"])
	require.NoError(t, e.UpdatePrice(market.Tick{Symbol: "EURUSD", Bid: 1.1, Ask: 1.1001}))

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	var cs []market.Candle
	for i := 0; i < 10; i++ {
		cs = append(cs, market.Candle{Time: start.Add(time.Duration(i) * time.Hour), Open: 1.1, High: 1.11, Low: 1.09, Close: 1.1})
	}
	e.SetCandles("EURUSD", market.H1, cs)
	e.SetCandles("EURUSD", market.H4, cs[:3])
	return e
}

func TestBuild(t *testing.T) {
	t.Parallel()
	e := paper(t)
	_, err := e.PlaceOrder(context.Background(), broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderBuy, Volume: 0.1})
	require.NoError(t, err)

	s, err := NewBuilder(e, e, "EURUSD", 5).Build(context.Background(), []market.Timeframe{market.H1, market.H4, market.H1})
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", s.Symbol)
	assert.Equal(t, []market.Timeframe{market.H1, market.H4}, s.Timeframes)
	assert.Len(t, s.Candles[market.H1], 5)
	assert.Len(t, s.Candles[market.H4], 3)
	assert.Len(t, s.Positions, 1)
	assert.Equal(t, 5_000.0, s.Account.Balance)
	assert.InDelta(t, 1.1001, s.Tick.Ask, 1e-9)
	assert.False(t, s.Time.IsZero())
}

func TestBuild_NoCandleSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tfs  []market.Timeframe
	}{
		{"no timeframes", nil},
		{"timeframes requested", []market.Timeframe{market.H1, market.H4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := NewBuilder(paper(t), nil, "EURUSD", 5).Build(context.Background(), tt.tfs)
			require.NoError(t, err)
			assert.Empty(t, s.Timeframes)
			assert.Empty(t, s.Candles)
			assert.InDelta(t, 1.1, s.Tick.Bid, 1e-9)
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	e := sim.NewEngine(broker.Account{Balance: 5_000}, market.Instruments["EURUSD"])
	_, err := NewBuilder(e, e, "EURUSD", 0).Build(context.Background(), []market.Timeframe{market.H1})
	assert.ErrorIs(t, err, sim.ErrNoPrice)

	e = paper(t)
	_, err = NewBuilder(e, failingCandles{}, "EURUSD", 0).Build(context.Background(), []market.Timeframe{market.M15})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot candles M15")
}
