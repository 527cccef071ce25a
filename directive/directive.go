package directive

import (
	"time"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
)

// Action is what the decision service asks the engine to do.
type Action string

const (
	Wait    Action = "WAIT"
	Watch   Action = "WATCH"
	HotZone Action = "HOTZONE"
	Enter   Action = "ENTER"
	Manage  Action = "MANAGE"
	Exit    Action = "EXIT"
)

var actions = []Action{Wait, Watch, HotZone, Enter, Manage, Exit}

// Directive is one decoded decision-service response. Exactly one of
// Enter, Manage or Exit is set for the matching action.
type Directive struct {
	Action               Action
	SetupID              string
	NextReviewTime       *time.Time
	MonitoringTimeframes []market.Timeframe

	Enter  *EnterOrder
	Manage *ManageOrder
	Exit   *ExitOrder
}

// Nil pointer fields were absent or malformed in the input.

type EnterOrder struct {
	Asset          *string
	OrderType      *string
	EntryPrice     *float64
	StopLoss       *float64
	TakeProfit     *float64
	RiskPercentage *float64
}

// ExpectedPosition is the decision service's view of an open position,
// cross-checked against the broker before MANAGE or EXIT.
type ExpectedPosition struct {
	Asset      *string
	Direction  *string
	EntryPrice *float64
}

type ManageOrder struct {
	Ticket   *broker.Ticket
	Expected ExpectedPosition

	UpdateStopLoss         *float64
	UpdateTakeProfit       *float64
	PartialClosePercentage *float64
}

// HasStops reports whether any stop update was requested.
func (m ManageOrder) HasStops() bool {
	return m.UpdateStopLoss != nil || m.UpdateTakeProfit != nil
}

type ExitOrder struct {
	Ticket   *broker.Ticket
	Expected ExpectedPosition
	Reason   *string
}

// Visitor handles each action. Adding an action adds a method here, so
// every handler has to deal with it.
type Visitor interface {
	VisitWait(d Directive) error
	VisitWatch(d Directive) error
	VisitHotZone(d Directive) error
	VisitEnter(d Directive, o EnterOrder) error
	VisitManage(d Directive, o ManageOrder) error
	VisitExit(d Directive, o ExitOrder) error
}

// Accept dispatches d to the visitor method for its action.
func (d Directive) Accept(v Visitor) error {
	switch d.Action {
	case Wait:
		return v.VisitWait(d)
	case Watch:
		return v.VisitWatch(d)
	case HotZone:
		return v.VisitHotZone(d)
	case Enter:
		if d.Enter == nil {
			return malformed("enter_order missing")
		}
		return v.VisitEnter(d, *d.Enter)
	case Manage:
		if d.Manage == nil {
			return malformed("manage_order missing")
		}
		return v.VisitManage(d, *d.Manage)
	case Exit:
		if d.Exit == nil {
			return malformed("exit_order missing")
		}
		return v.VisitExit(d, *d.Exit)
	}
	return malformed("unknown action %q", d.Action)
}

func ptr[T any](v T) *T { return &v }
