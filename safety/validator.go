package safety

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
)

// Hard limits.
const (
	MaxRiskPct           = 10
	MaxEntryDistancePts  = 10_000
	MaxEntryDeviationPts = 10
	MinPartialClosePct   = 1
	MaxPartialClosePct   = 99
)

// Config holds the optional guards. A zero value disables the guard.
type Config struct {
	Symbol           string  // traded symbol; ENTER asset must match
	MaxOpenPositions int     // open positions for Symbol must stay below this
	MaxDrawdown      float64 // fraction of balance, 0.2 = 20%
}

// Market is the broker state read in the current cycle. Validation never
// looks at anything older.
type Market struct {
	Tick       market.Tick
	Instrument market.Instrument
	Account    broker.Account
	Positions  []broker.Position
}

type Validator struct {
	cfg Config
	log zerolog.Logger
}

func NewValidator(cfg Config) *Validator {
	return &Validator{
		cfg: cfg,
		log: log.With().Str("component", "safety").Logger(),
	}
}

func (v *Validator) Config() Config { return v.cfg }

// points is |a-b| in instrument points, computed in decimal so that a
// boundary distance compares exactly.
func points(a, b, point float64) decimal.Decimal {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs().Div(decimal.NewFromFloat(point))
}

func minStopDistance(in market.Instrument) decimal.Decimal {
	return decimal.NewFromInt(int64(in.StopsLevel)).Mul(decimal.NewFromFloat(in.Point))
}

func distance(a, b float64) decimal.Decimal {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
}
