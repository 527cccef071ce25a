package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

type CSVJournal struct {
	cycles     *csv.Writer
	executions *csv.Writer
	cf, ef     *os.File
}

var (
	cycleHeader     = []string{"cycle_id", "kind", "symbol", "started_at", "finished_at", "action", "setup_id", "phase_before", "phase_after", "outcome", "violations", "error", "next_review_at"}
	executionHeader = []string{"cycle_id", "time", "op", "ticket", "symbol", "order_type", "client_id", "volume", "price", "stop_loss", "take_profit", "retcode", "comment", "error"}
)

func NewCSV(cyclesPath, executionsPath string) (*CSVJournal, error) {
	cf, err := os.Create(cyclesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(executionsPath)
	if err != nil {
		cf.Close()
		return nil, err
	}

	j := &CSVJournal{cycles: csv.NewWriter(cf), executions: csv.NewWriter(ef), cf: cf, ef: ef}
	if err := j.write(j.cycles, cycleHeader); err != nil {
		j.Close()
		return nil, err
	}
	if err := j.write(j.executions, executionHeader); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordCycle(c CycleRecord) error {
	return j.write(j.cycles, []string{
		c.CycleID,
		c.Kind,
		c.Symbol,
		ts(c.StartedAt),
		ts(c.FinishedAt),
		c.Action,
		c.SetupID,
		c.PhaseBefore,
		c.PhaseAfter,
		c.Outcome,
		c.Violations,
		c.Error,
		ts(c.NextReviewAt),
	})
}

func (j *CSVJournal) RecordExecution(e ExecutionRecord) error {
	return j.write(j.executions, []string{
		e.CycleID,
		ts(e.Time),
		e.Op,
		strconv.FormatUint(e.Ticket, 10),
		e.Symbol,
		e.OrderType,
		e.ClientID,
		f(e.Volume),
		f(e.Price),
		f(e.StopLoss),
		f(e.TakeProfit),
		strconv.FormatUint(uint64(e.Retcode), 10),
		e.Comment,
		e.Error,
	})
}

func (j *CSVJournal) write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) Close() error {
	j.cycles.Flush()
	if err := j.cycles.Error(); err != nil {
		return err
	}
	j.executions.Flush()
	if err := j.executions.Error(); err != nil {
		return err
	}

	if err := j.cf.Close(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
