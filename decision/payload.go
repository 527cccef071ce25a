package decision

import (
	"encoding/json"
	"time"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
	"github.com/rustyeddy/botcore/snapshot"
)

// Kind is the type of analysis cycle.
type Kind string

const (
	StartOfSession Kind = "start_of_session"
	Intraday       Kind = "intraday"
)

// Endpoints relative to the decision service base URL.
const (
	PathStartOfSession = "/api/trading/sod"
	PathIntraday       = "/api/trading/intraday"
	PathStorePositions = "/api/trading/store_positions"
	PathExecute        = "/api/trading/execute"
)

func (k Kind) Path() string {
	if k == StartOfSession {
		return PathStartOfSession
	}
	return PathIntraday
}

// SessionTimeframes is the fixed set sent at the start of a session.
var SessionTimeframes = []market.Timeframe{market.H1, market.H4, market.D1, market.W1}

// sessionKeys are the payload keys the service expects for the
// start-of-session timeframes.
var sessionKeys = map[market.Timeframe]string{
	market.H1: "1h_DATA",
	market.H4: "4h_DATA",
	market.D1: "1D_DATA",
	market.W1: "1W_DATA",
}

// DataKey is the payload key carrying candles for tf.
func DataKey(kind Kind, tf market.Timeframe) string {
	if kind == StartOfSession {
		if k, ok := sessionKeys[tf]; ok {
			return k
		}
	}
	return string(tf) + "_DATA"
}

type Candle struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Position is an open position in the analysis request.
type Position struct {
	Ticket       uint64  `json:"ticket"`
	Type         string  `json:"type"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	EntryTime    string  `json:"entry_time"`
	LotSize      float64 `json:"lot_size"`
}

type AccountState struct {
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Drawdown float64 `json:"drawdown"`
}

// Request is an analysis request. Candles are flattened into one
// "<TF>_DATA" key per timeframe when marshaled.
type Request struct {
	Kind         Kind
	Symbol       string
	Candles      map[string][]Candle
	Positions    []Position
	AccountState AccountState
}

func NewRequest(kind Kind, s snapshot.Snapshot) Request {
	r := Request{
		Kind:    kind,
		Symbol:  s.Symbol,
		Candles: make(map[string][]Candle, len(s.Candles)),
		AccountState: AccountState{
			Balance:  s.Account.Balance,
			Equity:   s.Account.Equity,
			Drawdown: s.Account.Drawdown(),
		},
		Positions: make([]Position, 0, len(s.Positions)),
	}
	for tf, cs := range s.Candles {
		out := make([]Candle, len(cs))
		for i, c := range cs {
			out[i] = Candle{
				Time:   c.Time.UTC().Format(time.RFC3339),
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			}
		}
		r.Candles[DataKey(kind, tf)] = out
	}
	for _, p := range s.Positions {
		r.Positions = append(r.Positions, Position{
			Ticket:       uint64(p.Ticket),
			Type:         p.Direction.String(),
			EntryPrice:   p.EntryPrice,
			CurrentPrice: p.CurrentPrice,
			StopLoss:     p.StopLoss,
			TakeProfit:   p.TakeProfit,
			EntryTime:    formatTime(p.OpenedAt),
			LotSize:      p.Volume,
		})
	}
	return r
}

func (r Request) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Candles)+3)
	for k, v := range r.Candles {
		m[k] = v
	}
	m["symbol"] = r.Symbol
	m["positions"] = r.Positions
	m["account_state"] = r.AccountState
	return json.Marshal(m)
}

// Execution confirms a filled or placed ENTER back to the service.
type Execution struct {
	SetupID       string  `json:"setup_id"`
	Symbol        string  `json:"symbol"`
	OrderType     string  `json:"order_type"`
	Price         float64 `json:"price"`
	StopLoss      float64 `json:"stop_loss"`
	TakeProfit    float64 `json:"take_profit"`
	LotSize       float64 `json:"lot_size"`
	ExecutionTime string  `json:"execution_time"`
	Ticket        uint64  `json:"ticket"`
}

func NewExecution(setupID string, order broker.OrderType, symbol string, ticket broker.Ticket,
	price, sl, tp, volume float64, at time.Time) Execution {
	return Execution{
		SetupID:       setupID,
		Symbol:        symbol,
		OrderType:     order.String(),
		Price:         price,
		StopLoss:      sl,
		TakeProfit:    tp,
		LotSize:       volume,
		ExecutionTime: formatTime(at),
		Ticket:        uint64(ticket),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
