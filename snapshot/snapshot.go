package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
)

// DefaultCandles is the number of candles sent per timeframe.
const DefaultCandles = 100

// Snapshot is the market and account state sent to the decision service.
type Snapshot struct {
	Symbol    string
	Time      time.Time
	Tick      market.Tick
	Account   broker.Account
	Positions []broker.Position
	Candles   map[market.Timeframe][]market.Candle

	// Timeframes preserves the requested order of Candles keys.
	Timeframes []market.Timeframe
}

type Builder struct {
	b       broker.Broker
	candles market.CandleSource
	symbol  string
	count   int
	now     func() time.Time
	log     zerolog.Logger
}

func NewBuilder(b broker.Broker, candles market.CandleSource, symbol string, count int) *Builder {
	if count <= 0 {
		count = DefaultCandles
	}
	return &Builder{
		b:       b,
		candles: candles,
		symbol:  symbol,
		count:   count,
		now:     time.Now,
		log:     log.With().Str("component", "snapshot").Str("symbol", symbol).Logger(),
	}
}

// Build reads the tick, account, open positions and candles for each of
// tfs. Any broker failure fails the whole snapshot. Without a candle
// source the snapshot carries no candles.
func (sb *Builder) Build(ctx context.Context, tfs []market.Timeframe) (Snapshot, error) {
	s := Snapshot{
		Symbol:  sb.symbol,
		Time:    sb.now().UTC(),
		Candles: make(map[market.Timeframe][]market.Candle),
	}

	var err error
	if s.Tick, err = sb.b.GetTick(ctx, sb.symbol); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot tick: %w", err)
	}
	if s.Account, err = sb.b.GetAccount(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot account: %w", err)
	}
	if s.Positions, err = sb.b.Positions(ctx, sb.symbol); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot positions: %w", err)
	}

	if sb.candles == nil {
		if len(tfs) > 0 {
			sb.log.Debug().Msg("no candle source, skipping candles")
		}
		tfs = nil
	}
	s.Timeframes = market.UniqueTimeframes(tfs)
	for _, tf := range s.Timeframes {
		cs, err := sb.candles.Candles(ctx, sb.symbol, tf, sb.count)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot candles %s: %w", tf, err)
		}
		s.Candles[tf] = cs
	}

	sb.log.Debug().
		Strs("timeframes", tfNames(s.Timeframes)).
		Int("positions", len(s.Positions)).
		Float64("bid", s.Tick.Bid).
		Float64("ask", s.Tick.Ask).
		Msg("snapshot built")
	return s, nil
}

func tfNames(tfs []market.Timeframe) []string {
	out := make([]string, len(tfs))
	for i, tf := range tfs {
		out[i] = string(tf)
	}
	return out
}
