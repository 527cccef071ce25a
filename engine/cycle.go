package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/decision"
	"github.com/rustyeddy/botcore/directive"
	"github.com/rustyeddy/botcore/executor"
	"github.com/rustyeddy/botcore/id"
	"github.com/rustyeddy/botcore/journal"
	"github.com/rustyeddy/botcore/metrics"
	"github.com/rustyeddy/botcore/risk"
	"github.com/rustyeddy/botcore/safety"
	"github.com/rustyeddy/botcore/schedule"
	"github.com/rustyeddy/botcore/session"
)

// Result summarizes one cycle.
type Result struct {
	CycleID   string
	Kind      decision.Kind
	Directive *directive.Directive // nil when none was decoded
	Outcome   session.Outcome
	Decision  safety.Decision
	Sizing    *risk.Sizing
	Fills     []executor.Fill
	Err       error
}

type fillErr struct {
	fill executor.Fill
	err  error
}

// cycle carries one pass of the pipeline and implements
// directive.Visitor.
type cycle struct {
	e      *Engine
	ctx    context.Context
	res    Result
	fills  []fillErr
	ticket broker.Ticket
	log    zerolog.Logger
}

var _ directive.Visitor = (*cycle)(nil)

// RunCycle runs the pipeline for ev. Failures never escape: they end up
// in the Result, the journal and the metrics.
func (e *Engine) RunCycle(ctx context.Context, ev schedule.Event) Result {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CycleTimeout)
	defer cancel()

	started := e.now()
	c := &cycle{
		e:   e,
		ctx: ctx,
		res: Result{CycleID: id.NewAt(started), Kind: ev.Kind},
	}
	c.log = e.log.With().Str("cycle_id", c.res.CycleID).Str("kind", string(ev.Kind)).Logger()
	before := e.sess.Phase

	c.run(ev)

	now := e.now()
	e.sess.EnsureReview(now, e.cfg.DefaultReview)
	e.store.Publish(e.sess)

	if c.res.Directive != nil {
		c.report()
	}
	c.finish(before, started, now)
	return c.res
}

func (c *cycle) run(ev schedule.Event) {
	e := c.e

	snap, err := e.snap.Build(c.ctx, ev.Timeframes)
	if err != nil {
		c.fail(session.NetworkError, err)
		return
	}
	metrics.SetEquity(snap.Account.Equity)

	start := time.Now()
	raw, err := e.decider.Decide(c.ctx, ev.Kind, snap)
	metrics.ObserveDecisionLatency(string(ev.Kind), time.Since(start))
	if err != nil {
		c.fail(session.NetworkError, err)
		return
	}

	d, err := directive.Parse(raw)
	if err != nil {
		c.fail(session.Malformed, err)
		return
	}
	c.res.Directive = &d
	c.log = c.log.With().Str("action", string(d.Action)).Str("setup_id", d.SetupID).Logger()

	c.res.Outcome = session.Confirmed
	if err := d.Accept(c); err != nil {
		if errors.Is(err, directive.ErrMalformed) {
			c.fail(session.Malformed, err)
			return
		}
		c.res.Err = err
	}
	e.sess.Apply(d, c.res.Outcome, c.ticket, e.now())
}

func (c *cycle) fail(out session.Outcome, err error) {
	c.res.Outcome = out
	c.res.Err = err
	c.log.Warn().Err(err).Str("outcome", out.String()).Msg("cycle aborted")
}

func (c *cycle) VisitWait(d directive.Directive) error    { return nil }
func (c *cycle) VisitWatch(d directive.Directive) error   { return nil }
func (c *cycle) VisitHotZone(d directive.Directive) error { return nil }

func (c *cycle) VisitEnter(d directive.Directive, o directive.EnterOrder) error {
	m, err := c.market()
	if err != nil {
		c.res.Outcome = session.NetworkError
		return err
	}

	plan, dec := c.e.validator.ValidateEnter(o, m)
	c.res.Decision = dec
	if !dec.Allowed {
		c.res.Outcome = session.ValidationFailed
		return dec.Err(string(d.Action))
	}

	sz, err := risk.Size(risk.SizeInputs{
		Balance:    m.Account.Balance,
		RiskPct:    plan.RiskPct,
		Entry:      plan.Entry,
		StopLoss:   plan.StopLoss,
		Instrument: m.Instrument,
	})
	if err != nil {
		c.res.Outcome = session.ValidationFailed
		c.log.Warn().Err(err).
			Float64("balance", m.Account.Balance).
			Float64("risk_pct", plan.RiskPct).
			Float64("entry", plan.Entry).
			Float64("sl", plan.StopLoss).
			Float64("volume_min", m.Instrument.VolumeMin).
			Msg("sizing failed")
		return err
	}
	c.res.Sizing = &sz
	planned := risk.PlannedRisk(m.Instrument, sz.Volume, plan.Entry, plan.StopLoss)
	c.log.Info().
		Float64("risk_amount", sz.RiskAmount).
		Float64("planned_risk", planned).
		Float64("planned_risk_pct", risk.RiskPct(planned, m.Account.Balance)).
		Float64("stop_points", sz.StopPoints).
		Float64("raw_volume", sz.RawVolume).
		Float64("volume", sz.Volume).
		Float64("rr", dec.PlannedRR).
		Msg("position sized")

	fill, err := c.e.exec.PlaceOrder(c.ctx, executor.OrderRequest{
		Symbol:     c.e.cfg.Symbol,
		Direction:  plan.Direction,
		Entry:      plan.Entry,
		StopLoss:   plan.StopLoss,
		TakeProfit: plan.TakeProfit,
		Volume:     sz.Volume,
		SetupID:    d.SetupID,
	})
	c.record(fill, err)
	if err != nil {
		c.res.Outcome = brokerOutcome(err)
		return err
	}
	c.ticket = fill.Ticket
	c.confirm(d, fill)
	return nil
}

func (c *cycle) VisitManage(d directive.Directive, o directive.ManageOrder) error {
	m, err := c.market()
	if err != nil {
		c.res.Outcome = session.NetworkError
		return err
	}

	plan, dec := c.e.validator.ValidateManage(o, m)
	c.res.Decision = dec
	if !dec.Allowed {
		c.res.Outcome = session.ValidationFailed
		return dec.Err(string(d.Action))
	}

	var errs []error
	if plan.Stops {
		fill, err := c.e.exec.ModifyStops(c.ctx, plan.Position.Ticket, plan.StopLoss, plan.TakeProfit)
		c.record(fill, err)
		errs = append(errs, err)
	}
	if plan.PartialClose {
		fill, err := c.e.exec.PartialClose(c.ctx, plan.Position.Ticket, plan.PartialPct)
		c.record(fill, err)
		errs = append(errs, err)
	}

	// any failed sub-action leaves the phase where it was
	if err := errors.Join(errs...); err != nil {
		c.res.Outcome = brokerOutcome(err)
		return err
	}
	return nil
}

func (c *cycle) VisitExit(d directive.Directive, o directive.ExitOrder) error {
	m, err := c.market()
	if err != nil {
		c.res.Outcome = session.NetworkError
		return err
	}

	pos, dec := c.e.validator.ValidateExit(o, m)
	c.res.Decision = dec
	if !dec.Allowed {
		c.res.Outcome = session.ValidationFailed
		return dec.Err(string(d.Action))
	}

	c.e.sess.BeginExit()
	reason := ""
	if o.Reason != nil {
		reason = *o.Reason
	}
	c.log.Info().Uint64("ticket", uint64(pos.Ticket)).Str("reason", reason).Msg("closing position")

	fill, err := c.e.exec.ClosePosition(c.ctx, pos.Ticket)
	c.record(fill, err)
	if err != nil {
		c.res.Outcome = brokerOutcome(err)
		return err
	}
	return nil
}

// market reads the live broker state the validator checks against.
func (c *cycle) market() (safety.Market, error) {
	b := c.e.broker
	symbol := c.e.cfg.Symbol

	var (
		m   safety.Market
		err error
	)
	if m.Tick, err = b.GetTick(c.ctx, symbol); err != nil {
		return m, fmt.Errorf("market tick: %w", err)
	}
	if m.Instrument, err = b.GetInstrument(c.ctx, symbol); err != nil {
		return m, fmt.Errorf("market instrument: %w", err)
	}
	if m.Account, err = b.GetAccount(c.ctx); err != nil {
		return m, fmt.Errorf("market account: %w", err)
	}
	if m.Positions, err = b.Positions(c.ctx, ""); err != nil {
		return m, fmt.Errorf("market positions: %w", err)
	}
	return m, nil
}

func (c *cycle) record(f executor.Fill, err error) {
	c.fills = append(c.fills, fillErr{fill: f, err: err})
	c.res.Fills = append(c.res.Fills, f)
}

// confirm tells the decision service about a placed ENTER. Failure is
// logged only; the order stands.
func (c *cycle) confirm(d directive.Directive, f executor.Fill) {
	price := f.Result.Price
	if price == 0 {
		price = f.Price
	}
	exec := decision.NewExecution(d.SetupID, f.Type, f.Symbol, f.Ticket, price, f.StopLoss, f.TakeProfit, f.Volume, c.e.now())
	if err := c.e.decider.ConfirmExecution(c.ctx, exec); err != nil {
		c.log.Warn().Err(err).Uint64("ticket", uint64(f.Ticket)).Msg("execution confirmation failed")
	}
}

func (c *cycle) report() {
	if c.e.reporter == nil {
		return
	}
	positions, err := c.e.broker.Positions(c.ctx, c.e.cfg.Symbol)
	if err == nil {
		err = c.e.reporter.Report(c.ctx, positions)
	}
	metrics.IncReport(err)
	if err != nil {
		c.log.Warn().Err(err).Msg("position report failed")
	}
}

func (c *cycle) finish(before session.Phase, started, finished time.Time) {
	e := c.e
	res := c.res
	after := e.sess.Phase

	rec := journal.CycleRecord{
		CycleID:      res.CycleID,
		Kind:         string(res.Kind),
		Symbol:       e.cfg.Symbol,
		StartedAt:    started,
		FinishedAt:   finished,
		PhaseBefore:  string(before),
		PhaseAfter:   string(after),
		Outcome:      res.Outcome.String(),
		Violations:   strings.Join(res.Decision.Codes(), ","),
		NextReviewAt: e.sess.NextReviewAt,
	}
	if res.Directive != nil {
		rec.Action = string(res.Directive.Action)
		rec.SetupID = res.Directive.SetupID
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := e.journal.RecordCycle(rec); err != nil {
		c.log.Error().Err(err).Msg("journal cycle")
	}

	for _, fe := range c.fills {
		f := fe.fill
		er := journal.ExecutionRecord{
			CycleID:    res.CycleID,
			Time:       finished,
			Op:         f.Op,
			Ticket:     uint64(f.Ticket),
			Symbol:     f.Symbol,
			OrderType:  f.Type.String(),
			ClientID:   f.ClientID,
			Volume:     f.Volume,
			Price:      f.Price,
			StopLoss:   f.StopLoss,
			TakeProfit: f.TakeProfit,
			Retcode:    f.Result.Retcode,
			Comment:    f.Result.Comment,
		}
		if fe.err != nil {
			er.Error = fe.err.Error()
		}
		if err := e.journal.RecordExecution(er); err != nil {
			c.log.Error().Err(err).Msg("journal execution")
		}
		metrics.IncBrokerCall(f.Op, f.Result.Retcode)
	}

	metrics.IncCycle(string(res.Kind), res.Outcome.String())
	for _, code := range res.Decision.Codes() {
		metrics.IncViolation(code)
	}
	metrics.SetPhase(string(after))

	ev := c.log.Info()
	if res.Outcome != session.Confirmed {
		ev = c.log.Warn().AnErr("error", res.Err)
	}
	ev.Str("outcome", res.Outcome.String()).
		Str("phase_before", string(before)).
		Str("phase_after", string(after)).
		Time("next_review_at", e.sess.NextReviewAt).
		Dur("took", finished.Sub(started)).
		Msg("cycle finished")
}

// brokerOutcome maps an executor error onto a session outcome.
func brokerOutcome(err error) session.Outcome {
	switch {
	case errors.Is(err, broker.ErrRejected):
		return session.Rejected
	case errors.Is(err, broker.ErrPositionNotFound), errors.Is(err, executor.ErrNothingToModify):
		return session.ValidationFailed
	}
	return session.NetworkError
}
