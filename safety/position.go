package safety

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/directive"
	"github.com/rustyeddy/botcore/market"
)

// ManagePlan lists the MANAGE sub-actions that passed validation.
// StopLoss and TakeProfit are 0 when that level was not requested.
type ManagePlan struct {
	Position broker.Position

	Stops      bool
	StopLoss   float64
	TakeProfit float64

	PartialClose bool
	PartialPct   float64
}

// ValidateManage confirms the position identity, then checks the stops
// update and the partial close independently. The action is allowed when
// at least one sub-action survives.
func (v *Validator) ValidateManage(o directive.ManageOrder, m Market) (ManagePlan, Decision) {
	pos, d := v.identity(o.Ticket, o.Expected, m)
	plan := ManagePlan{Position: pos}
	if !d.Allowed {
		v.reject("MANAGE", d)
		return plan, d
	}

	if o.HasStops() {
		price := livePrice(pos, m.Tick)
		ok := true
		if o.UpdateStopLoss != nil {
			if sl := *o.UpdateStopLoss; !stopSideOK(pos.Direction, price, sl, true) {
				d.notef("INVALID_STOP_UPDATE", "stop_loss %g on wrong side of %s price %g", sl, pos.Direction, price)
				ok = false
			}
		}
		if o.UpdateTakeProfit != nil {
			if tp := *o.UpdateTakeProfit; !stopSideOK(pos.Direction, price, tp, false) {
				d.notef("INVALID_STOP_UPDATE", "take_profit %g on wrong side of %s price %g", tp, pos.Direction, price)
				ok = false
			}
		}
		if ok {
			plan.Stops = true
			if o.UpdateStopLoss != nil {
				plan.StopLoss = *o.UpdateStopLoss
			}
			if o.UpdateTakeProfit != nil {
				plan.TakeProfit = *o.UpdateTakeProfit
			}
		}
	}

	if pct := o.PartialClosePercentage; pct != nil {
		if *pct >= MinPartialClosePct && *pct <= MaxPartialClosePct {
			plan.PartialClose = true
			plan.PartialPct = *pct
		} else {
			d.notef("INVALID_PARTIAL_CLOSE", "partial_close_percentage %g outside [%d, %d]",
				*pct, MinPartialClosePct, MaxPartialClosePct)
		}
	}

	if !plan.Stops && !plan.PartialClose {
		d.add("NO_SUBACTION", "no permitted manage sub-action")
		v.reject("MANAGE", d)
		return plan, d
	}
	if len(d.Violations) > 0 {
		v.log.Warn().Strs("violations", d.Codes()).Bool("stops", plan.Stops).
			Bool("partial_close", plan.PartialClose).Msg("manage sub-action skipped")
	}
	return plan, d
}

// ValidateExit confirms the position identity and returns the live
// position to close.
func (v *Validator) ValidateExit(o directive.ExitOrder, m Market) (broker.Position, Decision) {
	pos, d := v.identity(o.Ticket, o.Expected, m)
	if !d.Allowed {
		v.reject("EXIT", d)
	}
	return pos, d
}

// identity checks that the ticket is open now and is the position the
// directive believes it is.
func (v *Validator) identity(ticket *broker.Ticket, exp directive.ExpectedPosition, m Market) (broker.Position, Decision) {
	d := Decision{Allowed: true}
	if ticket == nil {
		d.add("NO_TICKET", "ticket missing")
		return broker.Position{}, d
	}
	pos, ok := broker.FindPosition(m.Positions, *ticket)
	if !ok {
		d.addf("POSITION_NOT_FOUND", "ticket %d is not open at the broker", *ticket)
		return broker.Position{}, d
	}

	switch {
	case exp.Asset == nil:
		d.add("SYMBOL_MISMATCH", "expected asset missing")
	case *exp.Asset != pos.Symbol:
		d.addf("SYMBOL_MISMATCH", "ticket %d is %s, directive expects %s", *ticket, pos.Symbol, *exp.Asset)
	}

	if exp.Direction == nil {
		d.add("DIRECTION_MISMATCH", "expected direction missing")
	} else if dir, err := market.ParseDirection(*exp.Direction); err != nil || dir != pos.Direction {
		d.addf("DIRECTION_MISMATCH", "ticket %d is %s, directive expects %s", *ticket, pos.Direction, *exp.Direction)
	}

	point := m.Instrument.Point
	switch {
	case exp.EntryPrice == nil:
		d.add("ENTRY_MISMATCH", "expected entry_price missing")
	case point <= 0:
		d.add("INVALID_INSTRUMENT", "instrument point must be positive")
	default:
		if pts := points(*exp.EntryPrice, pos.EntryPrice, point); pts.GreaterThan(decimal.NewFromInt(MaxEntryDeviationPts)) {
			d.addf("ENTRY_MISMATCH", "expected entry %g is %s points from live entry %g, max %d",
				*exp.EntryPrice, pts.StringFixed(1), pos.EntryPrice, MaxEntryDeviationPts)
		}
	}
	return pos, d
}

func livePrice(p broker.Position, t market.Tick) float64 {
	if p.CurrentPrice > 0 {
		return p.CurrentPrice
	}
	return t.Close(p.Direction)
}

// stopSideOK reports whether level sits on the protective (stop) or
// profit side of price for the direction.
func stopSideOK(dir market.Direction, price, level float64, stop bool) bool {
	if level <= 0 {
		return false
	}
	below := level < price
	above := level > price
	if dir == market.Buy {
		if stop {
			return below
		}
		return above
	}
	if stop {
		return above
	}
	return below
}
