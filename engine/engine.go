// Package engine runs the decision cycle: snapshot, decide, parse,
// validate, size, execute, then update the session and report back.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/decision"
	"github.com/rustyeddy/botcore/executor"
	"github.com/rustyeddy/botcore/journal"
	"github.com/rustyeddy/botcore/market"
	"github.com/rustyeddy/botcore/metrics"
	"github.com/rustyeddy/botcore/safety"
	"github.com/rustyeddy/botcore/schedule"
	"github.com/rustyeddy/botcore/session"
	"github.com/rustyeddy/botcore/snapshot"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultReview       = 15 * time.Minute
	DefaultCycleTimeout = 2 * time.Minute
)

// Decider is the decision service.
type Decider interface {
	Decide(ctx context.Context, kind decision.Kind, s snapshot.Snapshot) ([]byte, error)
	ConfirmExecution(ctx context.Context, e decision.Execution) error
}

// Reporter pushes open positions back to the decision service.
type Reporter interface {
	Report(ctx context.Context, positions []broker.Position) error
}

type Config struct {
	Symbol        string
	PollInterval  time.Duration
	DefaultReview time.Duration
	CycleTimeout  time.Duration
	Candles       int
}

// Deps are the collaborators of an Engine. Reporter and Journal may be
// nil.
type Deps struct {
	Broker    broker.Broker
	Candles   market.CandleSource
	Decider   Decider
	Reporter  Reporter
	Journal   journal.Journal
	Validator *safety.Validator
	Scheduler *schedule.Scheduler
}

// Engine owns the session. Only the goroutine running Run (or a caller
// of RunCycle) touches it; readers go through Store.
type Engine struct {
	cfg       Config
	broker    broker.Broker
	snap      *snapshot.Builder
	decider   Decider
	reporter  Reporter
	journal   journal.Journal
	validator *safety.Validator
	exec      *executor.Executor
	sched     *schedule.Scheduler

	sess  *session.Session
	store *session.Store

	now func() time.Time
	log zerolog.Logger
}

func New(cfg Config, deps Deps) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DefaultReview <= 0 {
		cfg.DefaultReview = DefaultReview
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	if deps.Validator == nil {
		deps.Validator = safety.NewValidator(safety.Config{Symbol: cfg.Symbol})
	}
	if deps.Scheduler == nil {
		deps.Scheduler = schedule.New(schedule.Config{})
	}
	candles := deps.Candles
	if candles == nil {
		if cs, ok := deps.Broker.(market.CandleSource); ok {
			candles = cs
		}
	}

	sess := session.New()
	e := &Engine{
		cfg:       cfg,
		broker:    deps.Broker,
		snap:      snapshot.NewBuilder(deps.Broker, candles, cfg.Symbol, cfg.Candles),
		decider:   deps.Decider,
		reporter:  deps.Reporter,
		journal:   deps.Journal,
		validator: deps.Validator,
		exec:      executor.New(deps.Broker),
		sched:     deps.Scheduler,
		sess:      sess,
		store:     session.NewStore(sess),
		now:       time.Now,
		log:       log.With().Str("component", "engine").Str("symbol", cfg.Symbol).Logger(),
	}
	metrics.SetPhase(string(sess.Phase))
	return e
}

// Store exposes published session copies to concurrent readers.
func (e *Engine) Store() *session.Store { return e.store }

// Session returns a copy of the current session.
func (e *Engine) Session() session.Session { return e.sess.Snapshot() }

// Run polls the scheduler and runs due cycles one at a time until ctx is
// cancelled. A cycle always completes before the next poll.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().Dur("poll", e.cfg.PollInterval).Msg("engine started")

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		e.Poll(ctx)

		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs the due cycle, if any, and reports whether one ran.
func (e *Engine) Poll(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	ev, ok := e.sched.Next(e.now(), e.sess.Snapshot())
	if !ok {
		return false
	}
	e.sched.Fired(ev)
	e.RunCycle(ctx, ev)
	return true
}

// OnTradeClosed is called by the paper broker when a stop or target
// closes a position. The session notices on the next cycle.
func (e *Engine) OnTradeClosed(ticket broker.Ticket, reason string) {
	e.log.Info().Uint64("ticket", uint64(ticket)).Str("reason", reason).Msg("position closed by broker")
}
