package sim

import (
	"time"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
)

// Order is a resting pending order.
type Order struct {
	Ticket     broker.Ticket
	Symbol     string
	Type       broker.OrderType
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Comment    string
	PlacedAt   time.Time
}

// Position is an open position. A position opened from a pending order
// keeps the order's ticket, as MT5 does.
type Position struct {
	Ticket     broker.Ticket
	Symbol     string
	Direction  market.Direction
	Volume     float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Comment    string
	OpenTime   time.Time

	RealizedPL float64 // account currency, from partial closes
}

func (p *Position) view(t market.Tick) broker.Position {
	return broker.Position{
		Ticket:       p.Ticket,
		Symbol:       p.Symbol,
		Direction:    p.Direction,
		EntryPrice:   p.EntryPrice,
		CurrentPrice: t.Close(p.Direction),
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		Volume:       p.Volume,
		OpenedAt:     p.OpenTime,
		Comment:      p.Comment,
	}
}
