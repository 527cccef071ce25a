package directive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/market"
)

var ErrMalformed = errors.New("malformed directive")

// MalformedError describes why a response could not be decoded into a
// directive at all.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return "malformed directive: " + e.Reason }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

type object map[string]json.RawMessage

// Parse decodes a decision-service response. The shape (a JSON object,
// a known action and its payload object) is strict; every field inside
// is decoded on its own and left nil when absent or unusable.
func Parse(data []byte) (Directive, error) {
	top, ok := decodeObject(data)
	if !ok {
		return Directive{}, malformed("not a JSON object")
	}

	raw, ok := top.str("action")
	if !ok {
		return Directive{}, malformed("action missing")
	}
	action, err := ParseAction(raw)
	if err != nil {
		return Directive{}, err
	}

	d := Directive{Action: action}
	if s, ok := top.str("setup_id"); ok {
		d.SetupID = s
	}
	d.NextReviewTime = top.timestamp("next_review_time", "next_run_at_utc")
	d.MonitoringTimeframes = top.timeframes("monitoring_timeframes", "next_requested_timeframes")

	switch action {
	case Enter:
		p, ok := top.child("enter_order")
		if !ok {
			return Directive{}, malformed("enter_order missing or not an object")
		}
		d.Enter = &EnterOrder{
			Asset:          p.strPtr("asset", "symbol"),
			OrderType:      upper(p.strPtr("order_type", "direction")),
			EntryPrice:     p.num("entry_price"),
			StopLoss:       p.num("stop_loss"),
			TakeProfit:     p.num("take_profit"),
			RiskPercentage: p.num("risk_percentage"),
		}
	case Manage:
		p, ok := top.child("manage_order")
		if !ok {
			return Directive{}, malformed("manage_order missing or not an object")
		}
		d.Manage = &ManageOrder{
			Ticket:                 p.ticket("ticket"),
			Expected:               p.expected(),
			UpdateStopLoss:         p.num("update_stop_loss"),
			UpdateTakeProfit:       p.num("update_take_profit"),
			PartialClosePercentage: p.num("partial_close_percentage"),
		}
	case Exit:
		p, ok := top.child("exit_order")
		if !ok {
			return Directive{}, malformed("exit_order missing or not an object")
		}
		d.Exit = &ExitOrder{
			Ticket:   p.ticket("ticket"),
			Expected: p.expected(),
			Reason:   p.strPtr("reason"),
		}
	}
	return d, nil
}

// ParseAction accepts the six actions in any case; HOT_ZONE is an alias
// of HOTZONE.
func ParseAction(s string) (Action, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	if u == "HOT_ZONE" {
		u = string(HotZone)
	}
	for _, a := range actions {
		if string(a) == u {
			return a, nil
		}
	}
	return "", malformed("unknown action %q", s)
}

func decodeObject(data []byte) (object, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}
	var o object
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, false
	}
	return o, true
}

func (o object) first(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if raw, ok := o[k]; ok && !isNull(raw) {
			return raw, true
		}
	}
	return nil, false
}

func (o object) child(key string) (object, bool) {
	raw, ok := o.first(key)
	if !ok {
		return nil, false
	}
	return decodeObject(raw)
}

func (o object) str(keys ...string) (string, bool) {
	raw, ok := o.first(keys...)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func (o object) strPtr(keys ...string) *string {
	s, ok := o.str(keys...)
	if !ok {
		return nil
	}
	return &s
}

// num reads a JSON number or a numeric string.
func (o object) num(keys ...string) *float64 {
	raw, ok := o.first(keys...)
	if !ok {
		return nil
	}
	f, ok := number(raw)
	if !ok {
		return nil
	}
	return &f
}

func (o object) ticket(key string) *broker.Ticket {
	raw, ok := o.first(key)
	if !ok {
		return nil
	}
	f, ok := number(raw)
	if !ok || f <= 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return nil
	}
	return ptr(broker.Ticket(f))
}

func (o object) timestamp(keys ...string) *time.Time {
	raw, ok := o.first(keys...)
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return ptr(t.UTC())
			}
		}
	}
	if f, ok := number(raw); ok && f > 0 {
		return ptr(time.Unix(int64(f), 0).UTC())
	}
	return nil
}

func (o object) timeframes(keys ...string) []market.Timeframe {
	raw, ok := o.first(keys...)
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	tfs := make([]market.Timeframe, 0, len(items))
	for _, it := range items {
		var s string
		if err := json.Unmarshal(it, &s); err != nil {
			continue
		}
		if tf, err := market.ParseTimeframe(s); err == nil {
			tfs = append(tfs, tf)
		}
	}
	return market.UniqueTimeframes(tfs)
}

// expected reads the position snapshot either flat in the payload or
// nested under "position".
func (o object) expected() ExpectedPosition {
	src := o
	if nested, ok := o.child("position"); ok {
		src = nested
	}
	return ExpectedPosition{
		Asset:      src.strPtr("asset", "symbol"),
		Direction:  upper(src.strPtr("direction", "type", "order_type")),
		EntryPrice: src.num("entry_price"),
	}
}

func number(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, isFinite(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, isFinite(f)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func upper(s *string) *string {
	if s == nil {
		return nil
	}
	return ptr(strings.ToUpper(*s))
}
