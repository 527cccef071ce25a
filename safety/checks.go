package safety

import (
	"errors"
	"fmt"
	"strings"
)

var ErrValidationFailed = errors.New("validation failed")

type Violation struct {
	Code string
	Msg  string
}

// Decision is the outcome of one validation. Allowed is false as soon as
// any violation that blocks the whole action is added.
type Decision struct {
	Allowed    bool
	Violations []Violation

	PlannedRR float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

func (d *Decision) addf(code, format string, args ...any) {
	d.add(code, fmt.Sprintf(format, args...))
}

// note records a violation that only disabled a sub-action.
func (d *Decision) note(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
}

// Codes lists the violation codes in order.
func (d Decision) Codes() []string {
	out := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		out[i] = v.Code
	}
	return out
}

// Err returns nil when the action may proceed.
func (d Decision) Err(action string) error {
	if d.Allowed {
		return nil
	}
	return &ValidationError{Action: action, Violations: d.Violations}
}

type ValidationError struct {
	Action     string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Code+": "+v.Msg)
	}
	return fmt.Sprintf("%s validation failed: %s", e.Action, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

func (d *Decision) notef(code, format string, args ...any) {
	d.note(code, fmt.Sprintf(format, args...))
}
