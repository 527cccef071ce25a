package journal

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB is a journal backed by SQLite or PostgreSQL.
type DB struct {
	db       *sql.DB
	postgres bool
}

func NewSQLite(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(SchemaSQLite); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func NewPostgres(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(SchemaPostgres); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, postgres: true}, nil
}

// Open picks the backend from the DSN: postgres:// and postgresql://
// URLs go to PostgreSQL, anything else is a SQLite path.
func Open(dsn string) (*DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgres(dsn)
	}
	return NewSQLite(dsn)
}

func (j *DB) RecordCycle(c CycleRecord) error {
	_, err := j.db.Exec(j.rebind(`
		INSERT INTO cycles
		(cycle_id, kind, symbol, started_at, finished_at, action, setup_id,
		 phase_before, phase_after, outcome, violations, error, next_review_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.CycleID, c.Kind, c.Symbol, c.StartedAt.UTC(), c.FinishedAt.UTC(), c.Action, c.SetupID,
		c.PhaseBefore, c.PhaseAfter, c.Outcome, c.Violations, c.Error, nullTime(c.NextReviewAt),
	)
	if err != nil {
		return fmt.Errorf("record cycle %s: %w", c.CycleID, err)
	}
	return nil
}

func (j *DB) RecordExecution(e ExecutionRecord) error {
	_, err := j.db.Exec(j.rebind(`
		INSERT INTO executions
		(cycle_id, time, op, ticket, symbol, order_type, client_id,
		 volume, price, stop_loss, take_profit, retcode, comment, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.CycleID, e.Time.UTC(), e.Op, int64(e.Ticket), e.Symbol, e.OrderType, e.ClientID,
		e.Volume, e.Price, e.StopLoss, e.TakeProfit, int64(e.Retcode), e.Comment, e.Error,
	)
	if err != nil {
		return fmt.Errorf("record execution %s: %w", e.Op, err)
	}
	return nil
}

func (j *DB) Close() error {
	return j.db.Close()
}

// rebind rewrites ? placeholders as $1, $2... for PostgreSQL.
func (j *DB) rebind(q string) string {
	if !j.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
