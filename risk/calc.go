package risk

import (
	"math"

	"github.com/rustyeddy/botcore/market"
)

// PlannedRisk is the account-currency loss of volume lots if the stop is
// hit, using the instrument's tick value.
func PlannedRisk(in market.Instrument, volume, entry, stop float64) float64 {
	if in.TickSize <= 0 {
		return 0
	}
	return math.Abs(entry-stop) / in.TickSize * in.TickValue * volume
}

// RR is the reward:risk ratio of a bracket, 0 when the stop is at entry.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	reward := math.Abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

// RiskPct is plannedRisk as a percentage of balance.
func RiskPct(plannedRisk, balance float64) float64 {
	if balance <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / balance * 100
}
