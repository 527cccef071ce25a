package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/decision"
)

// Poster sends a JSON body to a decision service path.
type Poster interface {
	Post(ctx context.Context, path string, body any) ([]byte, error)
}

type Position struct {
	Ticket       uint64  `json:"ticket"`
	Asset        string  `json:"asset"`
	Direction    string  `json:"direction"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	LotSize      float64 `json:"lot_size"`
	EntryTime    string  `json:"entry_time"`
}

type Payload struct {
	Symbol    string     `json:"symbol"`
	Positions []Position `json:"positions"`
}

func NewPayload(symbol string, positions []broker.Position) Payload {
	p := Payload{Symbol: symbol, Positions: make([]Position, 0, len(positions))}
	for _, bp := range positions {
		entry := ""
		if !bp.OpenedAt.IsZero() {
			entry = bp.OpenedAt.UTC().Format(time.RFC3339)
		}
		p.Positions = append(p.Positions, Position{
			Ticket:       uint64(bp.Ticket),
			Asset:        bp.Symbol,
			Direction:    bp.Direction.String(),
			EntryPrice:   bp.EntryPrice,
			CurrentPrice: bp.CurrentPrice,
			StopLoss:     bp.StopLoss,
			TakeProfit:   bp.TakeProfit,
			LotSize:      bp.Volume,
			EntryTime:    entry,
		})
	}
	return p
}

// Reporter pushes the broker's open positions back to the decision
// service after every cycle.
type Reporter struct {
	poster     Poster
	symbol     string
	maxElapsed time.Duration
	log        zerolog.Logger
}

func New(p Poster, symbol string, maxElapsed time.Duration) *Reporter {
	if maxElapsed <= 0 {
		maxElapsed = 10 * time.Second
	}
	return &Reporter{
		poster:     p,
		symbol:     symbol,
		maxElapsed: maxElapsed,
		log:        log.With().Str("component", "report").Logger(),
	}
}

// Report sends positions, retrying transport failures and 5xx answers
// with exponential backoff. Any 2xx answer is success.
func (r *Reporter) Report(ctx context.Context, positions []broker.Position) error {
	payload := NewPayload(r.symbol, positions)

	attempts := 0
	operation := func() error {
		attempts++
		_, err := r.poster.Post(ctx, decision.PathStorePositions, payload)
		if err == nil {
			return nil
		}
		var se *decision.StatusError
		if errors.As(err, &se) && se.Code < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = r.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		r.log.Warn().Err(err).Int("attempts", attempts).Int("positions", len(positions)).Msg("position report failed")
		return fmt.Errorf("report positions: %w", err)
	}
	r.log.Debug().Int("attempts", attempts).Int("positions", len(positions)).Msg("positions reported")
	return nil
}
