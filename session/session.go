package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/botcore/broker"
	"github.com/rustyeddy/botcore/directive"
	"github.com/rustyeddy/botcore/market"
)

// Phase is where the engine is in the trade lifecycle.
type Phase string

const (
	Init     Phase = "INIT"
	Wait     Phase = "WAIT"
	Watch    Phase = "WATCH"
	HotZone  Phase = "HOTZONE"
	InTrade  Phase = "IN_TRADE"
	Managing Phase = "MANAGING"
	Exiting  Phase = "EXITING"
)

func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case Init, Wait, Watch, HotZone, InTrade, Managing, Exiting:
		return p, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// Outcome is how far a directive got through the pipeline.
type Outcome int

const (
	Confirmed        Outcome = iota // broker acknowledged, or nothing to execute
	Rejected                        // broker answered with a failure retcode
	ValidationFailed                // safety or sizing refused the action
	Malformed                       // directive could not be decoded
	NetworkError                    // decision or broker unreachable
)

var outcomeNames = [...]string{"confirmed", "rejected", "validation_failed", "malformed", "network_error"}

func (o Outcome) String() string {
	if int(o) < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// Next is the phase transition function. It has no side effects.
func Next(cur Phase, action directive.Action, out Outcome) Phase {
	switch action {
	case directive.Wait:
		return Wait
	case directive.Watch:
		return Watch
	case directive.HotZone:
		return HotZone
	}

	switch out {
	case Confirmed:
		switch action {
		case directive.Enter:
			return InTrade
		case directive.Manage:
			return Managing
		case directive.Exit:
			return Wait
		}
	case Rejected:
		if action == directive.Enter {
			return Watch
		}
	}
	return cur
}

// Session is the engine's single owned state. It is mutated only through
// Apply and BeginExit, and only by the dispatcher goroutine.
type Session struct {
	Phase                Phase
	NextReviewAt         time.Time
	MonitoringTimeframes []market.Timeframe
	ActivePosition       broker.Ticket
	SetupID              string
	LastCycleAt          time.Time

	// phase replaced by BeginExit, restored when the close fails
	beforeExit Phase
}

func New() *Session {
	return &Session{Phase: Init}
}

// Apply records the result of one processed directive. Scheduling data
// is taken from every decoded directive; the phase follows Next.
func (s *Session) Apply(d directive.Directive, out Outcome, ticket broker.Ticket, now time.Time) {
	s.LastCycleAt = now
	if d.SetupID != "" {
		s.SetupID = d.SetupID
	}
	if d.NextReviewTime != nil {
		s.NextReviewAt = *d.NextReviewTime
	}
	if len(d.MonitoringTimeframes) > 0 {
		s.MonitoringTimeframes = append([]market.Timeframe(nil), d.MonitoringTimeframes...)
	}

	prev := s.Phase
	if prev == Exiting {
		// a close that did not complete leaves the phase where it was
		prev = s.beforeExit
		if prev == "" {
			prev = InTrade
		}
		s.beforeExit = ""
	}
	s.Phase = Next(prev, d.Action, out)

	if out != Confirmed {
		return
	}
	switch d.Action {
	case directive.Enter:
		if ticket != 0 {
			s.ActivePosition = ticket
		}
	case directive.Exit:
		s.ActivePosition = 0
	}
}

// BeginExit marks a close in flight. Apply always moves the session out
// of Exiting again within the same cycle.
func (s *Session) BeginExit() {
	if s.Phase != Exiting {
		s.beforeExit = s.Phase
	}
	s.Phase = Exiting
}

// Snapshot returns a copy that shares nothing with s.
func (s *Session) Snapshot() Session {
	cp := *s
	cp.MonitoringTimeframes = append([]market.Timeframe(nil), s.MonitoringTimeframes...)
	return cp
}

// Store publishes session copies to concurrent readers.
type Store struct {
	mu  sync.RWMutex
	cur Session
}

func NewStore(s *Session) *Store {
	st := &Store{}
	st.Publish(s)
	return st
}

func (st *Store) Publish(s *Session) {
	cp := s.Snapshot()
	st.mu.Lock()
	st.cur = cp
	st.mu.Unlock()
}

func (st *Store) Load() Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	cp := st.cur
	cp.MonitoringTimeframes = append([]market.Timeframe(nil), st.cur.MonitoringTimeframes...)
	return cp
}

// EnsureReview pushes NextReviewAt to now+d when no future review is
// scheduled, so a cycle that produced no review time is not repeated on
// every poll.
func (s *Session) EnsureReview(now time.Time, d time.Duration) {
	if s.NextReviewAt.After(now) {
		return
	}
	s.NextReviewAt = now.Add(d)
}
