package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
)

// Engine is an in-memory broker. It fills pending orders and closes
// positions on SL/TP as prices are pushed through UpdatePrice.
type Engine struct {
	mu          sync.Mutex
	acct        broker.Account
	ticks       *market.TickStore
	instruments map[string]market.Instrument
	candles     map[string]map[market.Timeframe][]market.Candle
	orders      map[broker.Ticket]*Order
	positions   map[broker.Ticket]*Position
	nextTicket  broker.Ticket
	rejects     []uint32
	calls       int
	listener    tradeClosedListener // optional callback for auto-closed positions
}

// tradeClosedListener is notified when the engine closes a position on
// its own (stop loss or take profit).
type tradeClosedListener interface {
	OnTradeClosed(ticket broker.Ticket, reason string)
}

var _ broker.Broker = (*Engine)(nil)

var (
	ErrNoPrice        = errors.New("no price for symbol")
	ErrOrderNotFound  = errors.New("order not found")
	errVolumeMismatch = errors.New("volume not tradable")
)

func NewEngine(acct broker.Account, instruments ...market.Instrument) *Engine {
	if acct.Equity == 0 {
		acct.Equity = acct.Balance
	}
	e := &Engine{
		acct:        acct,
		ticks:       market.NewTickStore(),
		instruments: make(map[string]market.Instrument),
		candles:     make(map[string]map[market.Timeframe][]market.Candle),
		orders:      make(map[broker.Ticket]*Order),
		positions:   make(map[broker.Ticket]*Position),
		nextTicket:  1000,
	}
	for _, in := range instruments {
		e.instruments[in.Symbol] = in
	}
	return e
}

// SetTradeClosedListener sets an optional listener for positions closed
// by SL/TP. It is called after the engine lock is released.
func (e *Engine) SetTradeClosedListener(listener tradeClosedListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = listener
}

// RejectNext makes the next mutating call answer with retcode code.
func (e *Engine) RejectNext(code uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejects = append(e.rejects, code)
}

// MutationCalls counts PlaceOrder, ClosePosition and ModifyPosition calls.
func (e *Engine) MutationCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Engine) SetCandles(symbol string, tf market.Timeframe, cs []market.Candle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.candles[symbol] == nil {
		e.candles[symbol] = make(map[market.Timeframe][]market.Candle)
	}
	e.candles[symbol][tf] = append([]market.Candle(nil), cs...)
}

func (e *Engine) Candles(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Candle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cs := e.candles[symbol][tf]
	if count > 0 && len(cs) > count {
		cs = cs[len(cs)-count:]
	}
	return append([]market.Candle(nil), cs...), nil
}

func (e *Engine) GetAccount(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct, nil
}

func (e *Engine) GetTick(ctx context.Context, symbol string) (market.Tick, error) {
	t, err := e.ticks.Get(symbol)
	if err != nil {
		return market.Tick{}, fmt.Errorf("get tick %s: %w", symbol, ErrNoPrice)
	}
	return t, nil
}

func (e *Engine) GetInstrument(ctx context.Context, symbol string) (market.Instrument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	in, ok := e.instruments[symbol]
	if !ok {
		return market.Instrument{}, fmt.Errorf("get instrument: %w: %q", broker.ErrUnknownSymbol, symbol)
	}
	return in, nil
}

// Positions lists open positions ordered by ticket. An empty symbol
// lists every symbol.
func (e *Engine) Positions(ctx context.Context, symbol string) ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]broker.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		t, _ := e.ticks.Get(p.Symbol)
		out = append(out, p.view(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

// PendingOrders lists resting orders ordered by ticket.
func (e *Engine) PendingOrders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

// CancelOrder removes a resting order.
func (e *Engine) CancelOrder(ctx context.Context, ticket broker.Ticket) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.orders[ticket]; !ok {
		return fmt.Errorf("cancel order: %w: %d", ErrOrderNotFound, ticket)
	}
	delete(e.orders, ticket)
	return nil
}

func (e *Engine) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	if code, ok := e.popRejectLocked(); ok {
		return broker.Result{Retcode: code, Comment: "rejected by simulator"}, nil
	}

	in, ok := e.instruments[req.Symbol]
	if !ok {
		return broker.Result{}, fmt.Errorf("place order: %w: %q", broker.ErrUnknownSymbol, req.Symbol)
	}
	t, err := e.ticks.Get(req.Symbol)
	if err != nil {
		return broker.Result{}, fmt.Errorf("place order: %w: %q", ErrNoPrice, req.Symbol)
	}

	if err := checkVolume(in, req.Volume); err != nil {
		return broker.Result{Retcode: broker.RetcodeInvalidVolume, Comment: err.Error()}, nil
	}

	price := req.Price
	if !req.Type.Pending() {
		price = t.Open(req.Type.Direction())
	} else if !pendingPriceValid(req.Type, price, t) {
		return broker.Result{Retcode: broker.RetcodeInvalidPrice, Comment: "pending price on wrong side of market"}, nil
	}
	if !stopsValid(in, req.Type.Direction(), price, req.StopLoss, req.TakeProfit) {
		return broker.Result{Retcode: broker.RetcodeInvalidStops, Comment: "invalid stops"}, nil
	}

	ticket := e.newTicketLocked()
	now := tickTime(t)

	if req.Type.Pending() {
		e.orders[ticket] = &Order{
			Ticket:     ticket,
			Symbol:     req.Symbol,
			Type:       req.Type,
			Volume:     req.Volume,
			Price:      price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
			Comment:    req.Comment,
			PlacedAt:   now,
		}
		return broker.Result{Retcode: broker.RetcodePlaced, Ticket: ticket, Price: price, Volume: req.Volume}, nil
	}

	e.positions[ticket] = &Position{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Direction:  req.Type.Direction(),
		Volume:     req.Volume,
		EntryPrice: price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Comment:    req.Comment,
		OpenTime:   now,
	}
	e.revalueLocked()
	return broker.Result{Retcode: broker.RetcodeDone, Ticket: ticket, Price: price, Volume: req.Volume}, nil
}

// ClosePosition closes req.Volume of the position at the current
// market price. Longs close on BID, shorts on ASK; req.Price is only
// informational.
func (e *Engine) ClosePosition(ctx context.Context, req broker.CloseRequest) (broker.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	if code, ok := e.popRejectLocked(); ok {
		return broker.Result{Retcode: code, Comment: "rejected by simulator"}, nil
	}

	p, ok := e.positions[req.Ticket]
	if !ok {
		return broker.Result{}, fmt.Errorf("close position: %w: %d", broker.ErrPositionNotFound, req.Ticket)
	}
	in := e.instruments[p.Symbol]
	t, err := e.ticks.Get(p.Symbol)
	if err != nil {
		return broker.Result{}, fmt.Errorf("close position: %w: %q", ErrNoPrice, p.Symbol)
	}

	vol := req.Volume
	if vol <= 0 || vol > p.Volume+1e-9 {
		return broker.Result{Retcode: broker.RetcodeInvalidVolume, Comment: "close volume exceeds position"}, nil
	}
	if err := checkVolume(in, vol); err != nil {
		return broker.Result{Retcode: broker.RetcodeInvalidVolume, Comment: err.Error()}, nil
	}

	price := t.Close(p.Direction)
	e.closeLocked(p, vol, price)
	e.revalueLocked()

	return broker.Result{Retcode: broker.RetcodeDone, Ticket: req.Ticket, Price: price, Volume: vol}, nil
}

func (e *Engine) ModifyPosition(ctx context.Context, req broker.ModifyRequest) (broker.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	if code, ok := e.popRejectLocked(); ok {
		return broker.Result{Retcode: code, Comment: "rejected by simulator"}, nil
	}

	p, ok := e.positions[req.Ticket]
	if !ok {
		return broker.Result{}, fmt.Errorf("modify position: %w: %d", broker.ErrPositionNotFound, req.Ticket)
	}
	in := e.instruments[p.Symbol]
	t, err := e.ticks.Get(p.Symbol)
	if err != nil {
		return broker.Result{}, fmt.Errorf("modify position: %w: %q", ErrNoPrice, p.Symbol)
	}

	// Stops of an open position are measured from the closing price.
	if !stopsValid(in, p.Direction, t.Close(p.Direction), req.StopLoss, req.TakeProfit) {
		return broker.Result{Retcode: broker.RetcodeInvalidStops, Comment: "invalid stops"}, nil
	}

	p.StopLoss = req.StopLoss
	p.TakeProfit = req.TakeProfit
	return broker.Result{Retcode: broker.RetcodeDone, Ticket: p.Ticket}, nil
}

// UpdatePrice sets the latest tick, fills triggered pending orders and
// closes positions whose SL or TP was hit.
func (e *Engine) UpdatePrice(t market.Tick) error {
	if !t.Valid() {
		return fmt.Errorf("update price %s: invalid tick bid=%g ask=%g", t.Symbol, t.Bid, t.Ask)
	}

	e.mu.Lock()

	e.ticks.Set(t)
	now := tickTime(t)

	for _, tk := range sortedOrderTickets(e.orders) {
		o := e.orders[tk]
		if o.Symbol != t.Symbol || !triggered(o, t) {
			continue
		}
		delete(e.orders, tk)
		e.positions[tk] = &Position{
			Ticket:     tk,
			Symbol:     o.Symbol,
			Direction:  o.Type.Direction(),
			Volume:     o.Volume,
			EntryPrice: o.Price,
			StopLoss:   o.StopLoss,
			TakeProfit: o.TakeProfit,
			Comment:    o.Comment,
			OpenTime:   now,
		}
	}

	type closed struct {
		ticket broker.Ticket
		reason string
	}
	var closedTrades []closed

	for _, tk := range sortedPositionTickets(e.positions) {
		p := e.positions[tk]
		if p.Symbol != t.Symbol {
			continue
		}
		mark := t.Close(p.Direction)

		reason := ""
		switch {
		case hitStopLoss(p, mark):
			reason = "StopLoss"
		case hitTakeProfit(p, mark):
			reason = "TakeProfit"
		}
		if reason != "" {
			e.closeLocked(p, p.Volume, mark)
			closedTrades = append(closedTrades, closed{tk, reason})
		}
	}

	e.revalueLocked()

	// Capture listener before releasing lock to avoid race
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		for _, c := range closedTrades {
			listener.OnTradeClosed(c.ticket, c.reason)
		}
	}
	return nil
}

func (e *Engine) closeLocked(p *Position, volume, price float64) {
	in := e.instruments[p.Symbol]
	pl := ProfitLoss(in, p.Direction, volume, p.EntryPrice, price)
	e.acct.Balance += pl
	p.RealizedPL += pl

	p.Volume = roundVolume(in, p.Volume-volume)
	if p.Volume <= 0 {
		delete(e.positions, p.Ticket)
	}
}

func (e *Engine) revalueLocked() {
	equity := e.acct.Balance
	for _, p := range e.positions {
		t, err := e.ticks.Get(p.Symbol)
		if err != nil {
			continue
		}
		equity += ProfitLoss(e.instruments[p.Symbol], p.Direction, p.Volume, p.EntryPrice, t.Close(p.Direction))
	}
	e.acct.Equity = equity
}

func (e *Engine) newTicketLocked() broker.Ticket {
	e.nextTicket++
	return e.nextTicket
}

func (e *Engine) popRejectLocked() (uint32, bool) {
	if len(e.rejects) == 0 {
		return 0, false
	}
	code := e.rejects[0]
	e.rejects = e.rejects[1:]
	return code, true
}

func checkVolume(in market.Instrument, v float64) error {
	if v < in.VolumeMin-1e-9 || v > in.VolumeMax+1e-9 {
		return fmt.Errorf("%w: %g outside [%g, %g]", errVolumeMismatch, v, in.VolumeMin, in.VolumeMax)
	}
	steps := v / in.VolumeStep
	if math.Abs(steps-math.Round(steps)) > 1e-6 {
		return fmt.Errorf("%w: %g not a multiple of %g", errVolumeMismatch, v, in.VolumeStep)
	}
	return nil
}

func roundVolume(in market.Instrument, v float64) float64 {
	if in.VolumeStep <= 0 {
		return v
	}
	return math.Round(v/in.VolumeStep) * in.VolumeStep
}

// stopsValid checks side and minimum distance of SL/TP against ref.
// Zero means "no stop".
func stopsValid(in market.Instrument, dir market.Direction, ref, sl, tp float64) bool {
	minDist := in.MinStopDistance() - in.Point/2
	if sl > 0 {
		if dir == market.Buy && ref-sl < minDist {
			return false
		}
		if dir == market.Sell && sl-ref < minDist {
			return false
		}
	}
	if tp > 0 {
		if dir == market.Buy && tp-ref < minDist {
			return false
		}
		if dir == market.Sell && ref-tp < minDist {
			return false
		}
	}
	return true
}

func tickTime(t market.Tick) time.Time {
	if t.Time.IsZero() {
		return time.Now().UTC()
	}
	return t.Time
}

func sortedOrderTickets(m map[broker.Ticket]*Order) []broker.Ticket {
	out := make([]broker.Ticket, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedPositionTickets(m map[broker.Ticket]*Position) []broker.Ticket {
	out := make([]broker.Ticket, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
