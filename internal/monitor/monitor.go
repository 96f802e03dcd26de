// Package monitor runs the classroom loop: a clock tick drives the session
// window calculator, queued sightings feed the session log, and a closing
// session flows through accounting into dispatch.
package monitor

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"classwatch/internal/accounting"
	"classwatch/internal/dispatch"
	"classwatch/internal/queue"
	"classwatch/internal/schedule"
	"classwatch/internal/sighting"
)

// ScheduleSource provides today's entries for a room.
type ScheduleSource interface {
	TodaySchedule(ctx context.Context, room string) ([]schedule.Entry, error)
}

// RosterSource provides the enrolled people for a session.
type RosterSource interface {
	Roster(ctx context.Context, sessionID int64) ([]accounting.RosterMember, error)
}

// Config wires a monitor.
type Config struct {
	Room          string
	MinutesBefore int
	MinutesAfter  int
	Policy        accounting.Policy
	Schedules     ScheduleSource
	Rosters       RosterSource
	Dispatcher    *dispatch.Dispatcher
	Queue         queue.Queue
	Tick          time.Duration
	Now           func() time.Time
}

// Monitor owns one room's session lifecycle. All state is touched from the
// Run goroutine only; the sighting log does its own locking.
type Monitor struct {
	room       string
	calc       *schedule.Calculator
	log        *sighting.Log
	policy     accounting.Policy
	schedules  ScheduleSource
	rosters    RosterSource
	dispatcher *dispatch.Dispatcher
	q          queue.Queue
	tick       time.Duration
	now        func() time.Time

	entries    []schedule.Entry
	entriesDay string
	roster     []accounting.RosterMember

	wg sync.WaitGroup
}

// New builds a monitor from config.
func New(cfg Config) *Monitor {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Monitor{
		room:       cfg.Room,
		calc:       schedule.NewCalculator(cfg.MinutesBefore, cfg.MinutesAfter),
		log:        sighting.NewLog(),
		policy:     cfg.Policy,
		schedules:  cfg.Schedules,
		rosters:    cfg.Rosters,
		dispatcher: cfg.Dispatcher,
		q:          cfg.Queue,
		tick:       cfg.Tick,
		now:        cfg.Now,
	}
}

// Run drives the loop until the context is canceled, then waits for any
// in-flight dispatch to settle.
func (m *Monitor) Run(ctx context.Context) error {
	msgs, err := m.q.Consume(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	log.Printf("monitor started for room %s", m.room)
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			log.Printf("monitor stopped for room %s", m.room)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			m.handleMessage(msg)
		case <-ticker.C:
			m.Step(ctx, m.now())
		}
	}
}

// Step evaluates one tick. Exposed so the loop can be driven with an
// injected clock.
func (m *Monitor) Step(ctx context.Context, now time.Time) {
	day := now.Format("2006-01-02")
	if day != m.entriesDay {
		entries, err := m.schedules.TodaySchedule(ctx, m.room)
		if err != nil {
			log.Printf("schedule fetch for room %s failed: %v", m.room, err)
			return
		}
		m.entries = entries
		m.entriesDay = day
		log.Printf("room %s: %d schedule entries for %s", m.room, len(entries), day)
	}

	res, err := m.calc.Evaluate(now, m.entries)
	if err != nil {
		log.Printf("schedule evaluation: %v", err)
	}

	// Close before open: a catch-up close and the next session's open can
	// land on the same tick, and the closing session must drain its log
	// before the new one claims it.
	if res.ClosedSessionID != 0 {
		m.closeSession(ctx, res.ClosedSessionID, now)
	}
	if res.OpenedSessionID != 0 {
		m.openSession(ctx, res.OpenedSessionID)
	}
}

func (m *Monitor) openSession(ctx context.Context, sessionID int64) {
	roster, err := m.rosters.Roster(ctx, sessionID)
	if err != nil {
		// Not fatal: close retries before synthesizing absentees.
		log.Printf("roster fetch for session %d failed: %v", sessionID, err)
	}
	m.roster = roster
	m.log.Open(sessionID)
	sessionsOpened.Inc()
	log.Printf("session %d open, detection armed (%d on roster)", sessionID, len(roster))
}

func (m *Monitor) closeSession(ctx context.Context, sessionID int64, now time.Time) {
	sightings, unknowns, drained := m.log.DrainSession(sessionID)
	if !drained {
		log.Printf("session %d close: log not scoped to it, nothing drained", sessionID)
	}
	roster := m.roster
	m.roster = nil
	sessionsClosed.Inc()
	log.Printf("session %d closing: %d sightings, %d unknowns", sessionID, len(sightings), len(unknowns))

	y, mo, d := now.Date()
	date := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)

	// Accounting is in-memory and quick; the dispatch legs hit the network,
	// so the whole close runs off the tick goroutine.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		verdicts, err := accounting.Account(sightings, m.policy)
		if err != nil {
			accountingFailures.Inc()
			log.Printf("session %d accounting failed: %v", sessionID, err)
			return
		}
		if roster == nil {
			if fetched, err := m.rosters.Roster(ctx, sessionID); err == nil {
				roster = fetched
			} else {
				log.Printf("roster re-fetch for session %d failed: %v", sessionID, err)
			}
		}
		verdicts = accounting.CompleteWithRoster(verdicts, roster)

		for _, derr := range m.dispatcher.Dispatch(ctx, sessionID, date, verdicts, unknowns) {
			dispatchFailures.WithLabelValues(string(derr.Action)).Inc()
			log.Printf("session %d: %v", sessionID, derr)
		}
		log.Printf("session %d closed: %d verdicts dispatched", sessionID, len(verdicts))
	}()
}

// sightingMessage matches the api's queued payload.
type sightingMessage struct {
	Room     string        `json:"room"`
	PersonID string        `json:"person_id"`
	Role     sighting.Role `json:"role"`
	SeenAt   string        `json:"seen_at"`
}

type unknownMessage struct {
	Room       string    `json:"room"`
	ImageURL   string    `json:"image_url"`
	CapturedAt time.Time `json:"captured_at"`
}

func (m *Monitor) handleMessage(msg queue.Message) {
	switch msg.Type {
	case queue.TypeSighting:
		var sm sightingMessage
		if err := json.Unmarshal(msg.Body, &sm); err != nil {
			log.Printf("bad sighting message: %v", err)
			return
		}
		if sm.Room != m.room {
			return
		}
		err := m.log.Append(sighting.Sighting{PersonID: sm.PersonID, Role: sm.Role, SeenAt: sm.SeenAt})
		if err != nil {
			sightingsDropped.Inc()
			log.Printf("sighting for %s dropped: %v", sm.PersonID, err)
			return
		}
		sightingsAppended.Inc()
	case queue.TypeUnknown:
		var um unknownMessage
		if err := json.Unmarshal(msg.Body, &um); err != nil {
			log.Printf("bad unknown message: %v", err)
			return
		}
		if um.Room != m.room {
			return
		}
		if err := m.log.AddUnknown(sighting.UnknownRef{ImageURL: um.ImageURL, CapturedAt: um.CapturedAt}); err != nil {
			log.Printf("unknown capture dropped: %v", err)
		}
	}
}
