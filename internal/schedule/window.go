package schedule

import (
	"time"

	"classwatch/internal/timeday"
)

// Phase tracks where a session sits in its daily lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseArmed
	PhaseDetecting
	PhaseClosing
)

func (p Phase) String() string {
	switch p {
	case PhaseArmed:
		return "armed"
	case PhaseDetecting:
		return "detecting"
	case PhaseClosing:
		return "closing"
	default:
		return "idle"
	}
}

// sessionState remembers which triggers already fired for a session today.
// Re-evaluating the same minute many times must not re-fire them.
type sessionState struct {
	date   string
	phase  Phase
	opened bool
	closed bool
}

// Result is the outcome of one evaluation tick.
type Result struct {
	// ActiveSessionID is the selected session, 0 when none matches.
	ActiveSessionID int64
	// DetectionActive tells the perception side whether to keep matching faces.
	DetectionActive bool
	// OpenedSessionID / ClosedSessionID are non-zero when the corresponding
	// trigger fired on this tick. Each fires at most once per session per day.
	OpenedSessionID int64
	ClosedSessionID int64
}

// Calculator evaluates the day's schedule against the clock on every tick.
// It is driven from a single goroutine, so its state needs no locking.
type Calculator struct {
	minutesBefore int
	minutesAfter  int
	states        map[int64]*sessionState
}

// NewCalculator builds a calculator with the configured pre-roll and
// post-roll margins in minutes.
func NewCalculator(minutesBefore, minutesAfter int) *Calculator {
	if minutesBefore < 0 {
		minutesBefore = 0
	}
	if minutesAfter < 0 {
		minutesAfter = 0
	}
	return &Calculator{
		minutesBefore: minutesBefore,
		minutesAfter:  minutesAfter,
		states:        make(map[int64]*sessionState),
	}
}

// Phase returns the current lifecycle phase for a session.
func (c *Calculator) Phase(sessionID int64) Phase {
	if st, ok := c.states[sessionID]; ok {
		return st.phase
	}
	return PhaseIdle
}

// Evaluate selects the best-matching entry for now and fires any due
// transition. Among entries whose widened window contains now, the earliest
// start wins, ties broken by lowest session id. A malformed entry is skipped
// and surfaced as a *FormatError while the remaining entries still evaluate.
func (c *Calculator) Evaluate(now time.Time, entries []Entry) (Result, error) {
	day := now.Format("2006-01-02")
	nowOff := timeday.FromTime(now)
	c.resetStale(day)

	var res Result
	var firstErr error

	selected := -1
	var selStart, selEnd time.Duration
	for i, e := range entries {
		start, end, wStart, wEnd, err := e.window(c.minutesBefore, c.minutesAfter)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if nowOff < wStart || nowOff > wEnd {
			continue
		}
		if selected < 0 || start < selStart ||
			(start == selStart && e.SessionID < entries[selected].SessionID) {
			selected = i
			selStart, selEnd = start, end
		}
	}

	if selected >= 0 {
		e := entries[selected]
		res.ActiveSessionID = e.SessionID
		st := c.state(e.SessionID, day)

		if !st.opened {
			st.opened = true
			st.phase = PhaseArmed
			res.OpenedSessionID = e.SessionID
		}

		switch {
		case nowOff <= selEnd && !st.closed:
			// Pre-roll and in-class both keep detection running; the first
			// sightings routinely land a couple of minutes before start.
			res.DetectionActive = true
			if nowOff >= selStart {
				st.phase = PhaseDetecting
			}
		case nowOff > selEnd && !st.closed:
			st.closed = true
			st.phase = PhaseIdle
			res.ClosedSessionID = e.SessionID
		}
	}

	// A gap in ticks can skip a post-roll entirely. Retire at most one such
	// session per tick; the close must still fire exactly once.
	if res.ClosedSessionID == 0 {
		res.ClosedSessionID = c.catchUpClose(nowOff, entries)
	}

	return res, firstErr
}

// state returns the tracked state for a session, resetting it on a new day.
func (c *Calculator) state(sessionID int64, day string) *sessionState {
	st, ok := c.states[sessionID]
	if !ok || st.date != day {
		st = &sessionState{date: day}
		c.states[sessionID] = st
	}
	return st
}

// resetStale drops state carried over from a previous day so every trigger
// can fire again.
func (c *Calculator) resetStale(day string) {
	for id, st := range c.states {
		if st.date != day {
			delete(c.states, id)
		}
	}
}

// catchUpClose fires the close trigger for the opened-but-never-closed
// session whose post-roll lies furthest in the past.
func (c *Calculator) catchUpClose(nowOff time.Duration, entries []Entry) int64 {
	var pick *sessionState
	var pickID int64
	var pickEnd time.Duration
	for _, e := range entries {
		st, ok := c.states[e.SessionID]
		if !ok || !st.opened || st.closed {
			continue
		}
		_, _, _, wEnd, err := e.window(c.minutesBefore, c.minutesAfter)
		if err != nil {
			continue
		}
		if nowOff > wEnd && (pick == nil || wEnd < pickEnd) {
			pick, pickID, pickEnd = st, e.SessionID, wEnd
		}
	}
	if pick == nil {
		return 0
	}
	pick.closed = true
	pick.phase = PhaseIdle
	return pickID
}
