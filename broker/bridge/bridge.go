// Package bridge implements broker.Broker against an HTTP gateway that
// fronts an MT5 terminal.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
)

type Broker struct {
	c   *Client
	log zerolog.Logger
}

var (
	_ broker.Broker       = (*Broker)(nil)
	_ market.CandleSource = (*Broker)(nil)
)

func New(baseURL, token string, timeout time.Duration) *Broker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewWithClient(&Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	})
}

func NewWithClient(c *Client) *Broker {
	return &Broker{c: c, log: log.With().Str("component", "bridge").Logger()}
}

type accountDTO struct {
	Login    string  `json:"login"`
	Currency string  `json:"currency"`
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
}

type tickDTO struct {
	Symbol string  `json:"symbol"`
	Time   int64   `json:"time"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

type symbolDTO struct {
	Symbol     string  `json:"symbol"`
	Digits     int     `json:"digits"`
	Point      float64 `json:"point"`
	TickSize   float64 `json:"trade_tick_size"`
	TickValue  float64 `json:"trade_tick_value"`
	VolumeMin  float64 `json:"volume_min"`
	VolumeMax  float64 `json:"volume_max"`
	VolumeStep float64 `json:"volume_step"`
	StopsLevel int     `json:"trade_stops_level"`
}

type positionDTO struct {
	Ticket       uint64  `json:"ticket"`
	Symbol       string  `json:"symbol"`
	Type         string  `json:"type"` // BUY or SELL
	PriceOpen    float64 `json:"price_open"`
	PriceCurrent float64 `json:"price_current"`
	SL           float64 `json:"sl"`
	TP           float64 `json:"tp"`
	Volume       float64 `json:"volume"`
	Time         int64   `json:"time"`
	Comment      string  `json:"comment"`
}

type candleDTO struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	TickVolume float64 `json:"tick_volume"`
}

type orderDTO struct {
	Symbol   string  `json:"symbol"`
	Type     string  `json:"type"`
	Volume   float64 `json:"volume"`
	Price    float64 `json:"price,omitempty"`
	SL       float64 `json:"sl,omitempty"`
	TP       float64 `json:"tp,omitempty"`
	ClientID string  `json:"client_id,omitempty"`
	Comment  string  `json:"comment,omitempty"`
}

type closeDTO struct {
	Symbol   string  `json:"symbol"`
	Volume   float64 `json:"volume"`
	Price    float64 `json:"price,omitempty"`
	ClientID string  `json:"client_id,omitempty"`
}

type modifyDTO struct {
	Symbol string  `json:"symbol"`
	SL     float64 `json:"sl"`
	TP     float64 `json:"tp"`
}

type resultDTO struct {
	Retcode uint32  `json:"retcode"`
	Ticket  uint64  `json:"ticket"`
	Price   float64 `json:"price"`
	Volume  float64 `json:"volume"`
	Comment string  `json:"comment"`
}

func (r resultDTO) result() broker.Result {
	return broker.Result{
		Retcode: r.Retcode,
		Ticket:  broker.Ticket(r.Ticket),
		Price:   r.Price,
		Volume:  r.Volume,
		Comment: r.Comment,
	}
}

func (b *Broker) GetAccount(ctx context.Context) (broker.Account, error) {
	var a accountDTO
	if err := b.c.get(ctx, "/account", nil, &a); err != nil {
		return broker.Account{}, fmt.Errorf("get account: %w", err)
	}
	return broker.Account{ID: a.Login, Currency: a.Currency, Balance: a.Balance, Equity: a.Equity}, nil
}

func (b *Broker) GetTick(ctx context.Context, symbol string) (market.Tick, error) {
	var t tickDTO
	if err := b.c.get(ctx, "/tick/"+symbol, nil, &t); err != nil {
		return market.Tick{}, fmt.Errorf("get tick %s: %w", symbol, mapNotFound(err, broker.ErrUnknownSymbol))
	}
	tick := market.Tick{Symbol: symbol, Time: unix(t.Time), Bid: t.Bid, Ask: t.Ask}
	if !tick.Valid() {
		return market.Tick{}, fmt.Errorf("get tick %s: %w", symbol, market.ErrNoTick)
	}
	return tick, nil
}

func (b *Broker) GetInstrument(ctx context.Context, symbol string) (market.Instrument, error) {
	var s symbolDTO
	if err := b.c.get(ctx, "/symbol/"+symbol, nil, &s); err != nil {
		return market.Instrument{}, fmt.Errorf("get instrument: %w", mapNotFound(err, broker.ErrUnknownSymbol))
	}
	in := market.Instrument{
		Symbol:     s.Symbol,
		Digits:     s.Digits,
		Point:      s.Point,
		TickSize:   s.TickSize,
		TickValue:  s.TickValue,
		VolumeMin:  s.VolumeMin,
		VolumeMax:  s.VolumeMax,
		VolumeStep: s.VolumeStep,
		StopsLevel: s.StopsLevel,
	}
	if in.Symbol == "" {
		in.Symbol = symbol
	}
	return in, nil
}

func (b *Broker) Positions(ctx context.Context, symbol string) ([]broker.Position, error) {
	var opts map[string]string
	if symbol != "" {
		opts = map[string]string{"symbol": symbol}
	}
	var ps []positionDTO
	if err := b.c.get(ctx, "/positions", opts, &ps); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	out := make([]broker.Position, 0, len(ps))
	for _, p := range ps {
		dir, err := market.ParseDirection(p.Type)
		if err != nil {
			return nil, fmt.Errorf("positions: ticket %d: %w", p.Ticket, err)
		}
		out = append(out, broker.Position{
			Ticket:       broker.Ticket(p.Ticket),
			Symbol:       p.Symbol,
			Direction:    dir,
			EntryPrice:   p.PriceOpen,
			CurrentPrice: p.PriceCurrent,
			StopLoss:     p.SL,
			TakeProfit:   p.TP,
			Volume:       p.Volume,
			OpenedAt:     unix(p.Time),
			Comment:      p.Comment,
		})
	}
	return out, nil
}

func (b *Broker) Candles(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Candle, error) {
	opts := map[string]string{
		"symbol":    symbol,
		"timeframe": string(tf),
		"count":     strconv.Itoa(count),
	}
	var cs []candleDTO
	if err := b.c.get(ctx, "/candles", opts, &cs); err != nil {
		return nil, fmt.Errorf("candles %s %s: %w", symbol, tf, err)
	}

	out := make([]market.Candle, 0, len(cs))
	for _, c := range cs {
		out = append(out, market.Candle{
			Time:   unix(c.Time),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.TickVolume,
		})
	}
	return out, nil
}

func (b *Broker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.Result, error) {
	body := orderDTO{
		Symbol:   req.Symbol,
		Type:     req.Type.String(),
		Volume:   req.Volume,
		Price:    req.Price,
		SL:       req.StopLoss,
		TP:       req.TakeProfit,
		ClientID: req.ClientID,
		Comment:  req.Comment,
	}
	var r resultDTO
	if err := b.c.post(ctx, "/orders", body, &r); err != nil {
		return broker.Result{}, fmt.Errorf("place order: %w", err)
	}
	b.log.Debug().Str("client_id", req.ClientID).Uint32("retcode", r.Retcode).Uint64("ticket", r.Ticket).Msg("order sent")
	return r.result(), nil
}

func (b *Broker) ClosePosition(ctx context.Context, req broker.CloseRequest) (broker.Result, error) {
	body := closeDTO{Symbol: req.Symbol, Volume: req.Volume, Price: req.Price, ClientID: req.ClientID}
	var r resultDTO
	path := fmt.Sprintf("/positions/%d/close", req.Ticket)
	if err := b.c.post(ctx, path, body, &r); err != nil {
		return broker.Result{}, fmt.Errorf("close position %d: %w", req.Ticket, mapNotFound(err, broker.ErrPositionNotFound))
	}
	return r.result(), nil
}

func (b *Broker) ModifyPosition(ctx context.Context, req broker.ModifyRequest) (broker.Result, error) {
	body := modifyDTO{Symbol: req.Symbol, SL: req.StopLoss, TP: req.TakeProfit}
	var r resultDTO
	path := fmt.Sprintf("/positions/%d/modify", req.Ticket)
	if err := b.c.post(ctx, path, body, &r); err != nil {
		return broker.Result{}, fmt.Errorf("modify position %d: %w", req.Ticket, mapNotFound(err, broker.ErrPositionNotFound))
	}
	return r.result(), nil
}

// mapNotFound turns a 404 into sentinel while keeping the status detail.
func mapNotFound(err error, sentinel error) error {
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", sentinel, se.Body)
	}
	return err
}

func unix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
