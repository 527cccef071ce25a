package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
	"github.com/rustyeddy/botcore/risk"
)

var ErrNothingToModify = errors.New("nothing to modify")

// Op names used in logs, journal rows and metrics.
const (
	OpPlace   = "place_order"
	OpPartial = "partial_close"
	OpModify  = "modify_stops"
	OpClose   = "close_position"
)

// Executor is the only code that mutates broker state. Every call is
// a single attempt.
type Executor struct {
	b     broker.Broker
	log   zerolog.Logger
	newID func() string
}

func New(b broker.Broker) *Executor {
	return &Executor{
		b:     b,
		log:   log.With().Str("component", "executor").Logger(),
		newID: uuid.NewString,
	}
}

// Fill describes one broker call and its acknowledgment. It is filled in
// even when the broker rejected the request.
type Fill struct {
	Op         string
	Ticket     broker.Ticket
	Symbol     string
	Type       broker.OrderType
	ClientID   string
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Result     broker.Result
}

type OrderRequest struct {
	Symbol     string
	Direction  market.Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Volume     float64
	SetupID    string
}

// OrderTypeFor picks market, stop or limit by where entry sits against
// the side of the book the order would fill on.
func OrderTypeFor(dir market.Direction, entry float64, t market.Tick, in market.Instrument) broker.OrderType {
	ref := in.Normalize(t.Open(dir))
	e := in.Normalize(entry)
	if dir == market.Buy {
		switch {
		case e > ref:
			return broker.OrderBuyStop
		case e < ref:
			return broker.OrderBuyLimit
		}
		return broker.OrderBuy
	}
	switch {
	case e < ref:
		return broker.OrderSellStop
	case e > ref:
		return broker.OrderSellLimit
	}
	return broker.OrderSell
}

func (x *Executor) PlaceOrder(ctx context.Context, req OrderRequest) (Fill, error) {
	fill := Fill{Op: OpPlace, Symbol: req.Symbol, Volume: req.Volume, StopLoss: req.StopLoss, TakeProfit: req.TakeProfit}

	t, err := x.b.GetTick(ctx, req.Symbol)
	if err != nil {
		return fill, fmt.Errorf("%s: %w", OpPlace, err)
	}
	in, err := x.b.GetInstrument(ctx, req.Symbol)
	if err != nil {
		return fill, fmt.Errorf("%s: %w", OpPlace, err)
	}

	fill.Type = OrderTypeFor(req.Direction, req.Entry, t, in)
	fill.Price = in.Normalize(req.Entry)
	if !fill.Type.Pending() {
		fill.Price = t.Open(req.Direction)
	}
	fill.ClientID = x.newID()

	res, err := x.b.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     req.Symbol,
		Type:       fill.Type,
		Volume:     req.Volume,
		Price:      fill.Price,
		StopLoss:   in.Normalize(req.StopLoss),
		TakeProfit: in.Normalize(req.TakeProfit),
		ClientID:   fill.ClientID,
		Comment:    req.SetupID,
	})
	fill.Result = res
	if err != nil {
		return fill, fmt.Errorf("%s: %w", OpPlace, err)
	}
	fill.Ticket = res.Ticket
	if err := broker.Check(OpPlace, res); err != nil {
		x.logFill(fill, err)
		return fill, err
	}
	x.logFill(fill, nil)
	return fill, nil
}

// PartialClose closes pct percent of the position's volume, rounded
// down to the volume step and kept within [volume_min, position volume].
func (x *Executor) PartialClose(ctx context.Context, ticket broker.Ticket, pct float64) (Fill, error) {
	pos, in, err := x.position(ctx, ticket)
	if err != nil {
		return Fill{Op: OpPartial, Ticket: ticket}, fmt.Errorf("%s: %w", OpPartial, err)
	}
	return x.close(ctx, OpPartial, pos, in, PartialVolume(pos.Volume, pct, in))
}

// ClosePosition closes the full remaining volume.
func (x *Executor) ClosePosition(ctx context.Context, ticket broker.Ticket) (Fill, error) {
	pos, in, err := x.position(ctx, ticket)
	if err != nil {
		return Fill{Op: OpClose, Ticket: ticket}, fmt.Errorf("%s: %w", OpClose, err)
	}
	return x.close(ctx, OpClose, pos, in, pos.Volume)
}

// ModifyStops changes the levels given as > 0 and keeps the live value
// of the other.
func (x *Executor) ModifyStops(ctx context.Context, ticket broker.Ticket, sl, tp float64) (Fill, error) {
	fill := Fill{Op: OpModify, Ticket: ticket}
	if sl <= 0 && tp <= 0 {
		return fill, fmt.Errorf("%s %d: %w", OpModify, ticket, ErrNothingToModify)
	}

	pos, in, err := x.position(ctx, ticket)
	if err != nil {
		return fill, fmt.Errorf("%s: %w", OpModify, err)
	}
	fill.Symbol = pos.Symbol
	fill.Volume = pos.Volume
	fill.StopLoss = pos.StopLoss
	fill.TakeProfit = pos.TakeProfit
	if sl > 0 {
		fill.StopLoss = in.Normalize(sl)
	}
	if tp > 0 {
		fill.TakeProfit = in.Normalize(tp)
	}

	res, err := x.b.ModifyPosition(ctx, broker.ModifyRequest{
		Ticket:     ticket,
		Symbol:     pos.Symbol,
		StopLoss:   fill.StopLoss,
		TakeProfit: fill.TakeProfit,
	})
	fill.Result = res
	if err != nil {
		return fill, fmt.Errorf("%s: %w", OpModify, err)
	}
	if err := broker.Check(OpModify, res); err != nil {
		x.logFill(fill, err)
		return fill, err
	}
	x.logFill(fill, nil)
	return fill, nil
}

func (x *Executor) close(ctx context.Context, op string, pos broker.Position, in market.Instrument, volume float64) (Fill, error) {
	fill := Fill{
		Op:         op,
		Ticket:     pos.Ticket,
		Symbol:     pos.Symbol,
		Volume:     volume,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		ClientID:   x.newID(),
	}
	// closing deal is on the opposite side
	if pos.Direction == market.Buy {
		fill.Type = broker.OrderSell
	} else {
		fill.Type = broker.OrderBuy
	}

	t, err := x.b.GetTick(ctx, pos.Symbol)
	if err != nil {
		return fill, fmt.Errorf("%s: %w", op, err)
	}
	fill.Price = t.Close(pos.Direction)

	res, err := x.b.ClosePosition(ctx, broker.CloseRequest{
		Ticket:   pos.Ticket,
		Symbol:   pos.Symbol,
		Volume:   volume,
		Price:    fill.Price,
		ClientID: fill.ClientID,
	})
	fill.Result = res
	if err != nil {
		return fill, fmt.Errorf("%s: %w", op, err)
	}
	if err := broker.Check(op, res); err != nil {
		x.logFill(fill, err)
		return fill, err
	}
	x.logFill(fill, nil)
	return fill, nil
}

func (x *Executor) position(ctx context.Context, ticket broker.Ticket) (broker.Position, market.Instrument, error) {
	positions, err := x.b.Positions(ctx, "")
	if err != nil {
		return broker.Position{}, market.Instrument{}, err
	}
	pos, ok := broker.FindPosition(positions, ticket)
	if !ok {
		return broker.Position{}, market.Instrument{}, fmt.Errorf("%w: %d", broker.ErrPositionNotFound, ticket)
	}
	in, err := x.b.GetInstrument(ctx, pos.Symbol)
	if err != nil {
		return broker.Position{}, market.Instrument{}, err
	}
	return pos, in, nil
}

// PartialVolume is volume*pct/100 floored to the step, raised to the
// broker minimum and capped at volume.
func PartialVolume(volume, pct float64, in market.Instrument) float64 {
	v := decimal.NewFromFloat(volume)
	part := v.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	part = risk.FloorToStep(part, decimal.NewFromFloat(in.VolumeStep))

	if minVol := decimal.NewFromFloat(in.VolumeMin); part.LessThan(minVol) {
		part = minVol
	}
	if part.GreaterThan(v) {
		part = v
	}
	return part.InexactFloat64()
}

func (x *Executor) logFill(f Fill, err error) {
	ev := x.log.Info()
	if err != nil {
		ev = x.log.Error().Err(err)
	}
	ev.Str("op", f.Op).
		Uint64("ticket", uint64(f.Ticket)).
		Str("symbol", f.Symbol).
		Str("type", f.Type.String()).
		Str("client_id", f.ClientID).
		Float64("volume", f.Volume).
		Float64("price", f.Price).
		Float64("sl", f.StopLoss).
		Float64("tp", f.TakeProfit).
		Uint32("retcode", f.Result.Retcode).
		Msg("broker call")
}
