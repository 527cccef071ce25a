package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/botcore/market"
)

var (
	ErrInvalidStopDistance = errors.New("invalid stop distance")
	ErrInvalidVolume       = errors.New("invalid volume")
	ErrInvalidInstrument   = errors.New("invalid instrument metadata")
	ErrInvalidRisk         = errors.New("invalid risk input")
)

// SizeInputs is everything Size needs; Instrument comes from the broker
// in the same cycle.
type SizeInputs struct {
	Balance    float64
	RiskPct    float64 // percent of balance, 2 = 2%
	Entry      float64
	StopLoss   float64
	Instrument market.Instrument
}

type Sizing struct {
	Volume     float64 // lots, a multiple of the volume step
	RawVolume  float64
	RiskAmount float64 // account currency
	StopPoints float64
	PointValue float64 // account currency per point per lot
}

// Size converts a risk percentage into a lot size. The raw volume is
// floored to the volume step and capped at the maximum; a result under the
// broker minimum fails rather than being rounded up.
func Size(in SizeInputs) (Sizing, error) {
	inst := in.Instrument
	if inst.Point <= 0 || inst.TickSize <= 0 || inst.TickValue <= 0 || inst.VolumeStep <= 0 {
		return Sizing{}, fmt.Errorf("size %s: %w: point=%g tick_size=%g tick_value=%g step=%g",
			inst.Symbol, ErrInvalidInstrument, inst.Point, inst.TickSize, inst.TickValue, inst.VolumeStep)
	}
	if in.Balance <= 0 || in.RiskPct <= 0 {
		return Sizing{}, fmt.Errorf("size %s: %w: balance=%g risk=%g%%", inst.Symbol, ErrInvalidRisk, in.Balance, in.RiskPct)
	}

	point := decimal.NewFromFloat(inst.Point)
	step := decimal.NewFromFloat(inst.VolumeStep)

	riskAmount := decimal.NewFromFloat(in.Balance).
		Mul(decimal.NewFromFloat(in.RiskPct)).
		Div(decimal.NewFromInt(100))

	slPoints := decimal.NewFromFloat(in.Entry).Sub(decimal.NewFromFloat(in.StopLoss)).Abs().Div(point)
	if !slPoints.IsPositive() {
		return Sizing{}, fmt.Errorf("size %s: %w: entry=%g stop=%g", inst.Symbol, ErrInvalidStopDistance, in.Entry, in.StopLoss)
	}

	pointValue := decimal.NewFromFloat(inst.TickValue).Mul(point).Div(decimal.NewFromFloat(inst.TickSize))
	raw := riskAmount.Div(slPoints.Mul(pointValue))

	vol := FloorToStep(raw, step)
	if inst.VolumeMax > 0 {
		maxVol := FloorToStep(decimal.NewFromFloat(inst.VolumeMax), step)
		if vol.GreaterThan(maxVol) {
			vol = maxVol
		}
	}

	s := Sizing{
		Volume:     vol.InexactFloat64(),
		RawVolume:  raw.InexactFloat64(),
		RiskAmount: riskAmount.InexactFloat64(),
		StopPoints: slPoints.InexactFloat64(),
		PointValue: pointValue.InexactFloat64(),
	}

	if vol.LessThan(decimal.NewFromFloat(inst.VolumeMin)) || !vol.IsPositive() {
		return s, fmt.Errorf("size %s: %w: %s lots below minimum %g (raw %s)",
			inst.Symbol, ErrInvalidVolume, vol.String(), inst.VolumeMin, raw.StringFixed(6))
	}
	return s, nil
}

// FloorToStep rounds v down to a whole number of steps.
func FloorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}
