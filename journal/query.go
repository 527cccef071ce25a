package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

const cycleColumns = `cycle_id, kind, symbol, started_at, finished_at, action, setup_id,
	phase_before, phase_after, outcome, violations, error, next_review_at`

const executionColumns = `cycle_id, time, op, ticket, symbol, order_type, client_id,
	volume, price, stop_loss, take_profit, retcode, comment, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(s scanner) (CycleRecord, error) {
	var (
		rec  CycleRecord
		next sql.NullTime
	)
	err := s.Scan(
		&rec.CycleID,
		&rec.Kind,
		&rec.Symbol,
		&rec.StartedAt,
		&rec.FinishedAt,
		&rec.Action,
		&rec.SetupID,
		&rec.PhaseBefore,
		&rec.PhaseAfter,
		&rec.Outcome,
		&rec.Violations,
		&rec.Error,
		&next,
	)
	if next.Valid {
		rec.NextReviewAt = next.Time
	}
	return rec, err
}

func scanExecution(s scanner) (ExecutionRecord, error) {
	var (
		rec     ExecutionRecord
		ticket  int64
		retcode int64
	)
	err := s.Scan(
		&rec.CycleID,
		&rec.Time,
		&rec.Op,
		&ticket,
		&rec.Symbol,
		&rec.OrderType,
		&rec.ClientID,
		&rec.Volume,
		&rec.Price,
		&rec.StopLoss,
		&rec.TakeProfit,
		&retcode,
		&rec.Comment,
		&rec.Error,
	)
	rec.Ticket = uint64(ticket)
	rec.Retcode = uint32(retcode)
	return rec, err
}

// GetCycle returns a single cycle by id.
func (j *DB) GetCycle(cycleID string) (CycleRecord, error) {
	row := j.db.QueryRow(j.rebind(`SELECT `+cycleColumns+` FROM cycles WHERE cycle_id = ?`), cycleID)
	rec, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CycleRecord{}, fmt.Errorf("cycle %q %w", cycleID, ErrNotFound)
		}
		return CycleRecord{}, err
	}
	return rec, nil
}

// ListCyclesBetween returns cycles started within [start, end).
func (j *DB) ListCyclesBetween(start, end time.Time) ([]CycleRecord, error) {
	rows, err := j.db.Query(j.rebind(`
		SELECT `+cycleColumns+`
		FROM cycles
		WHERE started_at >= ? AND started_at < ?
		ORDER BY started_at ASC, cycle_id ASC`), start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListExecutionsByTicket returns every broker call made for a ticket,
// oldest first.
func (j *DB) ListExecutionsByTicket(ticket uint64) ([]ExecutionRecord, error) {
	return j.listExecutions(`WHERE ticket = ? ORDER BY time ASC, id ASC`, int64(ticket))
}

// ListExecutionsByCycle returns the broker calls made in one cycle.
func (j *DB) ListExecutionsByCycle(cycleID string) ([]ExecutionRecord, error) {
	return j.listExecutions(`WHERE cycle_id = ? ORDER BY time ASC, id ASC`, cycleID)
}

func (j *DB) listExecutions(where string, arg any) ([]ExecutionRecord, error) {
	rows, err := j.db.Query(j.rebind(`SELECT `+executionColumns+` FROM executions `+where), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DayBounds returns [start, end) of day (YYYY-MM-DD) in loc.
func DayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
