package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/botcore/market"
)

// Broker is the surface the engine needs from a trading account. Only
// PlaceOrder, ClosePosition and ModifyPosition mutate broker state.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	GetTick(ctx context.Context, symbol string) (market.Tick, error)
	GetInstrument(ctx context.Context, symbol string) (market.Instrument, error)
	Positions(ctx context.Context, symbol string) ([]Position, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (Result, error)
	ClosePosition(ctx context.Context, req CloseRequest) (Result, error)
	ModifyPosition(ctx context.Context, req ModifyRequest) (Result, error)
}

// Ticket is the broker-assigned identifier of an order or position.
type Ticket uint64

type Account struct {
	ID       string
	Currency string
	Balance  float64
	Equity   float64
}

// Drawdown is (balance-equity)/balance, 0 for an empty account.
func (a Account) Drawdown() float64 {
	if a.Balance <= 0 {
		return 0
	}
	return (a.Balance - a.Equity) / a.Balance
}

// Position is an open position as the broker reports it.
type Position struct {
	Ticket       Ticket
	Symbol       string
	Direction    market.Direction
	EntryPrice   float64
	CurrentPrice float64
	StopLoss     float64
	TakeProfit   float64
	Volume       float64
	OpenedAt     time.Time
	Comment      string
}

// FindPosition returns the position with the given ticket.
func FindPosition(positions []Position, ticket Ticket) (Position, bool) {
	for _, p := range positions {
		if p.Ticket == ticket {
			return p, true
		}
	}
	return Position{}, false
}

type OrderType int

const (
	OrderBuy OrderType = iota
	OrderSell
	OrderBuyLimit
	OrderSellLimit
	OrderBuyStop
	OrderSellStop
)

var orderTypeNames = [...]string{"BUY", "SELL", "BUY_LIMIT", "SELL_LIMIT", "BUY_STOP", "SELL_STOP"}

func (t OrderType) String() string {
	if int(t) < 0 || int(t) >= len(orderTypeNames) {
		return fmt.Sprintf("OrderType(%d)", int(t))
	}
	return orderTypeNames[t]
}

// ParseOrderType is the inverse of String.
func ParseOrderType(s string) (OrderType, error) {
	for i, n := range orderTypeNames {
		if n == s {
			return OrderType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

// Direction is the side the order opens.
func (t OrderType) Direction() market.Direction {
	switch t {
	case OrderSell, OrderSellLimit, OrderSellStop:
		return market.Sell
	default:
		return market.Buy
	}
}

// Pending reports whether the order rests on the book until triggered.
func (t OrderType) Pending() bool {
	return t >= OrderBuyLimit
}

type OrderRequest struct {
	Symbol     string
	Type       OrderType
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	ClientID   string // dedupe key for the gateway
	Comment    string
}

// CloseRequest is a closing deal against an open position.
type CloseRequest struct {
	Ticket   Ticket
	Symbol   string
	Volume   float64
	Price    float64
	ClientID string
}

// ModifyRequest carries the complete new SL/TP pair for a position.
type ModifyRequest struct {
	Ticket     Ticket
	Symbol     string
	StopLoss   float64
	TakeProfit float64
}

// MT5 trade server return codes that mean the request was accepted.
const (
	RetcodePlaced      uint32 = 10008
	RetcodeDone        uint32 = 10009
	RetcodeDonePartial uint32 = 10010

	RetcodeRequote       uint32 = 10004
	RetcodeReject        uint32 = 10006
	RetcodeInvalidStops  uint32 = 10016
	RetcodeInvalidVolume uint32 = 10014
	RetcodeMarketClosed  uint32 = 10018
	RetcodeNoMoney       uint32 = 10019
	RetcodeInvalidPrice  uint32 = 10015
)

// Result is the broker's synchronous acknowledgment.
type Result struct {
	Retcode uint32
	Ticket  Ticket
	Price   float64
	Volume  float64
	Comment string
}

func (r Result) OK() bool {
	switch r.Retcode {
	case RetcodePlaced, RetcodeDone, RetcodeDonePartial:
		return true
	}
	return false
}

var (
	ErrRejected         = errors.New("broker rejected request")
	ErrPositionNotFound = errors.New("position not found")
	ErrUnknownSymbol    = errors.New("unknown symbol")
)

// RejectedError is returned when the broker answered with a non-success
// retcode.
type RejectedError struct {
	Op      string
	Code    uint32
	Comment string
}

func (e *RejectedError) Error() string {
	if e.Comment != "" {
		return fmt.Sprintf("%s: broker rejected (retcode %d): %s", e.Op, e.Code, e.Comment)
	}
	return fmt.Sprintf("%s: broker rejected (retcode %d)", e.Op, e.Code)
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Check converts a non-success result into a *RejectedError.
func Check(op string, r Result) error {
	if r.OK() {
		return nil
	}
	return &RejectedError{Op: op, Code: r.Retcode, Comment: r.Comment}
}
