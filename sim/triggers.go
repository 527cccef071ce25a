package sim

import (
	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
)

func hitStopLoss(p *Position, price float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Direction == market.Buy {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

func hitTakeProfit(p *Position, price float64) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	if p.Direction == market.Buy {
		return price >= p.TakeProfit
	}
	return price <= p.TakeProfit
}

// triggered reports whether a pending order fills at tick t.
// Buy orders trigger on the ask, sell orders on the bid.
func triggered(o *Order, t market.Tick) bool {
	switch o.Type {
	case broker.OrderBuyLimit:
		return t.Ask <= o.Price
	case broker.OrderBuyStop:
		return t.Ask >= o.Price
	case broker.OrderSellLimit:
		return t.Bid >= o.Price
	case broker.OrderSellStop:
		return t.Bid <= o.Price
	}
	return false
}

// pendingPriceValid mirrors the trade server's check that a pending
// order is on the correct side of the market.
func pendingPriceValid(typ broker.OrderType, price float64, t market.Tick) bool {
	switch typ {
	case broker.OrderBuyLimit:
		return price < t.Ask
	case broker.OrderBuyStop:
		return price > t.Ask
	case broker.OrderSellLimit:
		return price > t.Bid
	case broker.OrderSellStop:
		return price < t.Bid
	}
	return true
}
