package market

import (
	"fmt"
	"math"
)

// Instrument is the broker's contract specification for a symbol.
// All fields are read live from the broker; the Instruments table below
// only seeds the paper broker.
type Instrument struct {
	Symbol     string  `json:"symbol" yaml:"symbol"`
	Digits     int     `json:"digits" yaml:"digits"`
	Point      float64 `json:"point" yaml:"point"`
	TickSize   float64 `json:"tick_size" yaml:"tick_size"`
	TickValue  float64 `json:"tick_value" yaml:"tick_value"` // account currency per tick per lot
	VolumeMin  float64 `json:"volume_min" yaml:"volume_min"`
	VolumeMax  float64 `json:"volume_max" yaml:"volume_max"`
	VolumeStep float64 `json:"volume_step" yaml:"volume_step"`
	StopsLevel int     `json:"stops_level" yaml:"stops_level"` // minimum stop distance, points
}

// MinStopDistance is the minimum price distance between an order price
// and its stop.
func (in Instrument) MinStopDistance() float64 {
	return float64(in.StopsLevel) * in.Point
}

// Normalize rounds a price to the instrument's digits.
func (in Instrument) Normalize(price float64) float64 {
	if in.Digits <= 0 {
		return price
	}
	p := math.Pow(10, float64(in.Digits))
	return math.Round(price*p) / p
}

func (in Instrument) Validate() error {
	switch {
	case in.Symbol == "":
		return fmt.Errorf("instrument: missing symbol")
	case in.Point <= 0:
		return fmt.Errorf("instrument %s: point must be positive", in.Symbol)
	case in.TickSize <= 0:
		return fmt.Errorf("instrument %s: tick_size must be positive", in.Symbol)
	case in.TickValue <= 0:
		return fmt.Errorf("instrument %s: tick_value must be positive", in.Symbol)
	case in.VolumeStep <= 0:
		return fmt.Errorf("instrument %s: volume_step must be positive", in.Symbol)
	case in.VolumeMin <= 0 || in.VolumeMax < in.VolumeMin:
		return fmt.Errorf("instrument %s: volume range [%g, %g] invalid", in.Symbol, in.VolumeMin, in.VolumeMax)
	case in.StopsLevel < 0:
		return fmt.Errorf("instrument %s: stops_level must not be negative", in.Symbol)
	}
	return nil
}

// Instruments holds typical retail FX specifications for a USD account.
var Instruments = map[string]Instrument{
	"EURUSD": {
		Symbol:     "EURUSD",
		Digits:     5,
		Point:      0.00001,
		TickSize:   0.00001,
		TickValue:  1,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
		StopsLevel: 10,
	},
	"GBPUSD": {
		Symbol:     "GBPUSD",
		Digits:     5,
		Point:      0.00001,
		TickSize:   0.00001,
		TickValue:  1,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
		StopsLevel: 10,
	},
	"USDJPY": {
		Symbol:     "USDJPY",
		Digits:     3,
		Point:      0.001,
		TickSize:   0.001,
		TickValue:  0.67,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
		StopsLevel: 10,
	},
	"XAUUSD": {
		Symbol:     "XAUUSD",
		Digits:     2,
		Point:      0.01,
		TickSize:   0.01,
		TickValue:  1,
		VolumeMin:  0.01,
		VolumeMax:  50,
		VolumeStep: 0.01,
		StopsLevel: 20,
	},
}
