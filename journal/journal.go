package journal

import (
	"errors"
	"time"
)

// CycleRecord is one pass of the pipeline, successful or not.
type CycleRecord struct {
	CycleID      string
	Kind         string
	Symbol       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Action       string
	SetupID      string
	PhaseBefore  string
	PhaseAfter   string
	Outcome      string
	Violations   string // comma separated codes
	Error        string
	NextReviewAt time.Time // zero when none
}

// ExecutionRecord is one broker mutation and its acknowledgment.
type ExecutionRecord struct {
	CycleID    string
	Time       time.Time
	Op         string
	Ticket     uint64
	Symbol     string
	OrderType  string
	ClientID   string
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Retcode    uint32
	Comment    string
	Error      string
}

type Journal interface {
	RecordCycle(CycleRecord) error
	RecordExecution(ExecutionRecord) error
	Close() error
}

// Multi fans records out to several journals.
type Multi []Journal

func (m Multi) RecordCycle(r CycleRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordCycle(r))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordExecution(r ExecutionRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordExecution(r))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordCycle(CycleRecord) error         { return nil }
func (Nop) RecordExecution(ExecutionRecord) error { return nil }
func (Nop) Close() error                          { return nil }
