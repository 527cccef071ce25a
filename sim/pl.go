package sim

import "github.com/rustyeddy/botcore/market"

// ProfitLoss is the account-currency P/L of volume lots moved from entry
// to exit: price ticks times tick value per lot.
func ProfitLoss(in market.Instrument, dir market.Direction, volume, entry, exit float64) float64 {
	if in.TickSize <= 0 {
		return 0
	}
	move := exit - entry
	if dir == market.Sell {
		move = -move
	}
	return move / in.TickSize * in.TickValue * volume
}
