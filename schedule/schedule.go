package schedule

import (
	"fmt"
	"time"

	"github.com/rustyeddy/botcore/decision"
	"github.com/rustyeddy/botcore/market"
	"github.com/rustyeddy/botcore/session"
)

// Event is one analysis cycle that is due.
type Event struct {
	Kind       decision.Kind
	Due        time.Time
	Timeframes []market.Timeframe
}

func (e Event) String() string {
	return fmt.Sprintf("%s due %s %v", e.Kind, e.Due.Format(time.RFC3339), e.Timeframes)
}

type Config struct {
	SessionHour   int
	Location      *time.Location
	BaseTimeframe market.Timeframe
}

// Scheduler decides which cycle, if any, is due. It keeps only the day
// of the last start-of-session cycle; review times live in the session.
type Scheduler struct {
	cfg         Config
	lastSession string // YYYY-MM-DD in cfg.Location
}

func New(cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if !cfg.BaseTimeframe.Valid() {
		cfg.BaseTimeframe = market.M15
	}
	return &Scheduler{cfg: cfg}
}

// Next returns the cycle due at now. Start-of-session wins when both
// are due.
func (s *Scheduler) Next(now time.Time, sess session.Session) (Event, bool) {
	local := now.In(s.cfg.Location)
	day := local.Format(time.DateOnly)
	start := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.SessionHour, 0, 0, 0, s.cfg.Location)

	if day != s.lastSession && !local.Before(start) {
		return Event{
			Kind:       decision.StartOfSession,
			Due:        start,
			Timeframes: append([]market.Timeframe(nil), decision.SessionTimeframes...),
		}, true
	}

	if !sess.NextReviewAt.IsZero() && !now.Before(sess.NextReviewAt) {
		tfs := market.UniqueTimeframes(sess.MonitoringTimeframes)
		if len(tfs) == 0 {
			tfs = []market.Timeframe{s.cfg.BaseTimeframe}
		}
		return Event{Kind: decision.Intraday, Due: sess.NextReviewAt, Timeframes: tfs}, true
	}
	return Event{}, false
}

// Fired records that ev was dispatched.
func (s *Scheduler) Fired(ev Event) {
	if ev.Kind == decision.StartOfSession {
		s.lastSession = ev.Due.In(s.cfg.Location).Format(time.DateOnly)
	}
}

// LastSession is the day of the last start-of-session cycle, empty
// before the first.
func (s *Scheduler) LastSession() string {
	return s.lastSession
}
