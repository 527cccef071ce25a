package safety

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/botcore/directive"
	"github.com/rustyeddy/botcore/market"
	"github.com/rustyeddy/botcore/risk"
)

// EnterPlan is a validated ENTER with every field resolved.
type EnterPlan struct {
	Asset      string
	Direction  market.Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	RiskPct    float64
}

// ValidateEnter checks a new order against the live tick, instrument and
// account. The plan is only meaningful when the decision is allowed.
func (v *Validator) ValidateEnter(o directive.EnterOrder, m Market) (EnterPlan, Decision) {
	d := Decision{Allowed: true}
	var plan EnterPlan

	switch {
	case o.OrderType == nil:
		d.add("INVALID_ORDER_TYPE", "order_type missing")
	case *o.OrderType == string(market.Buy) || *o.OrderType == string(market.Sell):
		plan.Direction = market.Direction(*o.OrderType)
	default:
		d.addf("INVALID_ORDER_TYPE", "order_type %q is not BUY or SELL", *o.OrderType)
	}

	for _, f := range []struct {
		name string
		val  *float64
		dst  *float64
	}{
		{"entry_price", o.EntryPrice, &plan.Entry},
		{"stop_loss", o.StopLoss, &plan.StopLoss},
		{"take_profit", o.TakeProfit, &plan.TakeProfit},
	} {
		if f.val == nil || *f.val <= 0 {
			d.addf("INVALID_PRICE", "%s must be a positive number", f.name)
			continue
		}
		*f.dst = *f.val
	}

	if o.RiskPercentage == nil || *o.RiskPercentage <= 0 || *o.RiskPercentage > MaxRiskPct {
		d.addf("INVALID_RISK", "risk_percentage must be in (0, %d]", MaxRiskPct)
	} else {
		plan.RiskPct = *o.RiskPercentage
	}

	if o.Asset != nil {
		plan.Asset = *o.Asset
	}
	if v.cfg.Symbol != "" && o.Asset != nil && *o.Asset != v.cfg.Symbol {
		d.addf("SYMBOL_MISMATCH", "asset %s is not the traded symbol %s", *o.Asset, v.cfg.Symbol)
	}

	if !d.Allowed {
		v.reject("ENTER", d)
		return plan, d
	}

	if !m.Tick.Valid() {
		d.addf("NO_PRICE", "no valid quote for %s", m.Tick.Symbol)
		v.reject("ENTER", d)
		return plan, d
	}
	if err := m.Instrument.Validate(); err != nil {
		d.add("INVALID_INSTRUMENT", err.Error())
		v.reject("ENTER", d)
		return plan, d
	}

	ref := m.Tick.Open(plan.Direction)
	if pts := points(plan.Entry, ref, m.Instrument.Point); pts.GreaterThan(decimal.NewFromInt(MaxEntryDistancePts)) {
		d.addf("ENTRY_TOO_FAR", "entry %g is %s points from market %g, max %d",
			plan.Entry, pts.StringFixed(1), ref, MaxEntryDistancePts)
	}

	if !bracketOK(plan.Direction, plan.Entry, plan.StopLoss, plan.TakeProfit) {
		if plan.Direction == market.Buy {
			d.addf("INVALID_BRACKET", "BUY needs stop_loss < entry < take_profit, got %g / %g / %g",
				plan.StopLoss, plan.Entry, plan.TakeProfit)
		} else {
			d.addf("INVALID_BRACKET", "SELL needs take_profit < entry < stop_loss, got %g / %g / %g",
				plan.TakeProfit, plan.Entry, plan.StopLoss)
		}
	}

	minDist := minStopDistance(m.Instrument)
	if dist := distance(plan.Entry, plan.StopLoss); dist.LessThan(minDist) {
		d.addf("STOP_TOO_CLOSE", "stop distance %s below broker minimum %s (%d points)",
			dist.String(), minDist.String(), m.Instrument.StopsLevel)
	}

	if v.cfg.MaxOpenPositions > 0 {
		if n := countOpen(m, v.cfg.Symbol); n >= v.cfg.MaxOpenPositions {
			d.addf("MAX_POSITIONS_REACHED", "open positions %d >= max %d", n, v.cfg.MaxOpenPositions)
		}
	}
	if v.cfg.MaxDrawdown > 0 {
		if dd := m.Account.Drawdown(); dd > v.cfg.MaxDrawdown {
			d.addf("DRAWDOWN_LIMIT", "drawdown %.2f%% exceeds max %.2f%%", 100*dd, 100*v.cfg.MaxDrawdown)
		}
	}

	d.PlannedRR = risk.RR(plan.Entry, plan.StopLoss, plan.TakeProfit)

	if !d.Allowed {
		v.reject("ENTER", d)
	}
	return plan, d
}

func bracketOK(dir market.Direction, entry, sl, tp float64) bool {
	if dir == market.Buy {
		return sl < entry && entry < tp
	}
	return tp < entry && entry < sl
}

func countOpen(m Market, symbol string) int {
	n := 0
	for _, p := range m.Positions {
		if symbol == "" || p.Symbol == symbol {
			n++
		}
	}
	return n
}

func (v *Validator) reject(action string, d Decision) {
	ev := v.log.Warn().Str("action", action).Strs("violations", d.Codes())
	if len(d.Violations) > 0 {
		ev = ev.Str("reason", d.Violations[0].Msg)
	}
	ev.Msg("action rejected")
}
