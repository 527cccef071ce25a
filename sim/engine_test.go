package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
)

type closedListener struct {
	tickets []broker.Ticket
	reasons []string
}

func (l *closedListener) OnTradeClosed(ticket broker.Ticket, reason string) {
	l.tickets = append(l.tickets, ticket)
	l.reasons = append(l.reasons, reason)
}

func newEngine(t *testing.T, balance float64) *Engine {
	t.Helper()
	acct := broker.Account{
		ID:       "paper-1",
		Currency: "USD",
		Balance:  balance,
		Equity:   balance,
	}
	return NewEngine(acct, market.Instruments["EURUSD"])
}

func setPrice(t *testing.T, e *Engine, bid, ask float64) {
	t.Helper()
	require.NoError(t, e.UpdatePrice(market.Tick{
		Symbol: "EURUSD",
		Bid:    bid,
		Ask:    ask,
		Time:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}))
}

func TestEngine_MarketOrderFillsAtAsk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, 10_000)
	setPrice(t, e, 1.10000, 1.10010)

	res, err := e.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   "EURUSD",
		Type:     broker.OrderBuy,
		Volume:   0.10,
		StopLoss: 1.09500,
		Comment:  "setup-1",
	})
	require.NoError(t, err)
	assert.Equal(t, broker.RetcodeDone, res.Retcode)
	assert.InDelta(t, 1.10010, res.Price, 1e-9)

	positions, err := e.Positions(ctx, "EURUSD")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	p := positions[0]
	assert.Equal(t, res.Ticket, p.Ticket)
	assert.Equal(t, market.Buy, p.Direction)
	assert.InDelta(t, 1.10000, p.CurrentPrice, 1e-9)
	assert.Equal(t, "setup-1", p.Comment)

	// Spread cost shows up in equity straight away.
	acct, err := e.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10_000-1.0, acct.Equity, 1e-6)
}

func TestEngine_PlaceOrderRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  broker.OrderRequest
		want uint32
	}{
		{
			name: "volume below minimum",
			req:  broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderBuy, Volume: 0.001},
			want: broker.RetcodeInvalidVolume,
		},
		{
			name: "volume off step",
			req:  broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderBuy, Volume: 0.015},
			want: broker.RetcodeInvalidVolume,
		},
		{
			name: "stop loss above buy price",
			req:  broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderBuy, Volume: 0.1, StopLoss: 1.2},
			want: broker.RetcodeInvalidStops,
		},
		{
			name: "stop loss inside stops level",
			req:  broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderBuy, Volume: 0.1, StopLoss: 1.10005},
			want: broker.RetcodeInvalidStops,
		},
		{
			name: "buy limit above ask",
			req:  broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderBuyLimit, Volume: 0.1, Price: 1.2},
			want: broker.RetcodeInvalidPrice,
		},
		{
			name: "sell stop above bid",
			req:  broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderSellStop, Volume: 0.1, Price: 1.2},
			want: broker.RetcodeInvalidPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEngine(t, 10_000)
			setPrice(t, e, 1.10000, 1.10010)

			res, err := e.PlaceOrder(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Retcode)
			assert.False(t, res.OK())
		})
	}
}

func TestEngine_UnknownSymbol(t *testing.T) {
	t.Parallel()
	e := newEngine(t, 10_000)

	_, err := e.PlaceOrder(context.Background(), broker.OrderRequest{Symbol: "BTCUSD", Type: broker.OrderBuy, Volume: 1})
	assert.ErrorIs(t, err, broker.ErrUnknownSymbol)

	_, err = e.GetInstrument(context.Background(), "BTCUSD")
	assert.ErrorIs(t, err, broker.ErrUnknownSymbol)
}

func TestEngine_RejectNext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, 10_000)
	setPrice(t, e, 1.10000, 1.10010)
	e.RejectNext(broker.RetcodeNoMoney)

	res, err := e.PlaceOrder(ctx, broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderBuy, Volume: 0.1})
	require.NoError(t, err)
	assert.Equal(t, broker.RetcodeNoMoney, res.Retcode)

	res, err = e.PlaceOrder(ctx, broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderBuy, Volume: 0.1})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 2, e.MutationCalls())
}

func TestEngine_PendingOrderFillsAndKeepsTicket(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, 10_000)
	setPrice(t, e, 1.10000, 1.10010)

	res, err := e.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   "EURUSD",
		Type:     broker.OrderBuyLimit,
		Volume:   0.2,
		Price:    1.09800,
		StopLoss: 1.09500,
	})
	require.NoError(t, err)
	assert.Equal(t, broker.RetcodePlaced, res.Retcode)
	require.Len(t, e.PendingOrders(), 1)

	positions, _ := e.Positions(ctx, "")
	assert.Empty(t, positions)

	setPrice(t, e, 1.09790, 1.09800)

	assert.Empty(t, e.PendingOrders())
	positions, _ = e.Positions(ctx, "")
	require.Len(t, positions, 1)
	assert.Equal(t, res.Ticket, positions[0].Ticket)
	assert.InDelta(t, 1.09800, positions[0].EntryPrice, 1e-9)
}

func TestEngine_CancelOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, 10_000)
	setPrice(t, e, 1.10000, 1.10010)

	res, err := e.PlaceOrder(ctx, broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderSellLimit, Volume: 0.1, Price: 1.105})
	require.NoError(t, err)

	require.NoError(t, e.CancelOrder(ctx, res.Ticket))
	assert.ErrorIs(t, e.CancelOrder(ctx, res.Ticket), ErrOrderNotFound)
}

func TestEngine_PartialAndFullClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, 10_000)
	setPrice(t, e, 1.10000, 1.10000)

	res, err := e.PlaceOrder(ctx, broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderBuy, Volume: 1.0})
	require.NoError(t, err)

	setPrice(t, e, 1.10100, 1.10100)

	closeRes, err := e.ClosePosition(ctx, broker.CloseRequest{Ticket: res.Ticket, Symbol: "EURUSD", Volume: 0.4})
	require.NoError(t, err)
	assert.True(t, closeRes.OK())

	acct, _ := e.GetAccount(ctx)
	// 100 points * $1 * 0.4 lots
	assert.InDelta(t, 10_040, acct.Balance, 1e-6)

	positions, _ := e.Positions(ctx, "EURUSD")
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.6, positions[0].Volume, 1e-9)

	closeRes, err = e.ClosePosition(ctx, broker.CloseRequest{Ticket: res.Ticket, Volume: 0.7})
	require.NoError(t, err)
	assert.Equal(t, broker.RetcodeInvalidVolume, closeRes.Retcode)

	closeRes, err = e.ClosePosition(ctx, broker.CloseRequest{Ticket: res.Ticket, Volume: 0.6})
	require.NoError(t, err)
	assert.True(t, closeRes.OK())

	positions, _ = e.Positions(ctx, "EURUSD")
	assert.Empty(t, positions)
	acct, _ = e.GetAccount(ctx)
	assert.InDelta(t, 10_100, acct.Balance, 1e-6)
	assert.InDelta(t, acct.Balance, acct.Equity, 1e-9)

	_, err = e.ClosePosition(ctx, broker.CloseRequest{Ticket: res.Ticket, Volume: 0.1})
	assert.ErrorIs(t, err, broker.ErrPositionNotFound)
}

func TestEngine_ModifyPosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, 10_000)
	setPrice(t, e, 1.10000, 1.10010)

	res, err := e.PlaceOrder(ctx, broker.OrderRequest{Symbol: "EURUSD", Type: broker.OrderSell, Volume: 0.1})
	require.NoError(t, err)

	// Stop below the ask on a short is invalid.
	mod, err := e.ModifyPosition(ctx, broker.ModifyRequest{Ticket: res.Ticket, StopLoss: 1.09900})
	require.NoError(t, err)
	assert.Equal(t, broker.RetcodeInvalidStops, mod.Retcode)

	mod, err = e.ModifyPosition(ctx, broker.ModifyRequest{Ticket: res.Ticket, StopLoss: 1.10300, TakeProfit: 1.09500})
	require.NoError(t, err)
	assert.True(t, mod.OK())

	positions, _ := e.Positions(ctx, "EURUSD")
	require.Len(t, positions, 1)
	assert.InDelta(t, 1.10300, positions[0].StopLoss, 1e-9)
	assert.InDelta(t, 1.09500, positions[0].TakeProfit, 1e-9)
}

func TestEngine_StopLossClosesAndNotifies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, 10_000)
	l := &closedListener{}
	e.SetTradeClosedListener(l)
	setPrice(t, e, 1.10000, 1.10000)

	res, err := e.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     "EURUSD",
		Type:       broker.OrderBuy,
		Volume:     0.5,
		StopLoss:   1.09800,
		TakeProfit: 1.10400,
	})
	require.NoError(t, err)

	setPrice(t, e, 1.09790, 1.09800)

	positions, _ := e.Positions(ctx, "EURUSD")
	assert.Empty(t, positions)
	require.Len(t, l.tickets, 1)
	assert.Equal(t, res.Ticket, l.tickets[0])
	assert.Equal(t, "StopLoss", l.reasons[0])

	acct, _ := e.GetAccount(ctx)
	// closed at bid 1.09790: -210 points * $1 * 0.5
	assert.InDelta(t, 10_000-105, acct.Balance, 1e-6)
}

func TestEngine_InvalidTick(t *testing.T) {
	t.Parallel()
	e := newEngine(t, 10_000)
	assert.Error(t, e.UpdatePrice(market.Tick{Symbol: "EURUSD", Bid: 1.1, Ask: 1.0}))

	_, err := e.GetTick(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestEngine_Candles(t *testing.T) {
	t.Parallel()
	e := newEngine(t, 10_000)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	var cs []market.Candle
	for i := 0; i < 5; i++ {
		cs = append(cs, market.Candle{Time: start.Add(time.Duration(i) * time.Hour), Close: 1.1 + float64(i)/1000})
	}
	e.SetCandles("EURUSD", market.H1, cs)

	got, err := e.Candles(context.Background(), "EURUSD", market.H1, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, cs[2].Time, got[0].Time)

	got, err = e.Candles(context.Background(), "EURUSD", market.D1, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProfitLoss(t *testing.T) {
	t.Parallel()
	in := market.Instruments["EURUSD"]

	tests := []struct {
		name  string
		dir   market.Direction
		entry float64
		exit  float64
		want  float64
	}{
		{"long win", market.Buy, 1.1000, 1.1010, 100},
		{"long loss", market.Buy, 1.1000, 1.0990, -100},
		{"short win", market.Sell, 1.1000, 1.0990, 100},
		{"short loss", market.Sell, 1.1000, 1.1010, -100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, ProfitLoss(in, tt.dir, 1.0, tt.entry, tt.exit), 1e-6)
		})
	}
}
