package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"classwatch/internal/accounting"
	"classwatch/internal/dispatch"
	"classwatch/internal/queue"
	"classwatch/internal/schedule"
	"classwatch/internal/sighting"
)

type stubSchedule struct {
	entries []schedule.Entry
	calls   int
}

func (s *stubSchedule) TodaySchedule(ctx context.Context, room string) ([]schedule.Entry, error) {
	s.calls++
	return s.entries, nil
}

type stubRoster struct {
	members []accounting.RosterMember
}

func (s *stubRoster) Roster(ctx context.Context, sessionID int64) ([]accounting.RosterMember, error) {
	return s.members, nil
}

// captureSinks records dispatched output. Dispatch runs off the tick
// goroutine, so the fields are guarded.
type captureSinks struct {
	mu       sync.Mutex
	verdicts []accounting.Verdict
	unknowns []sighting.UnknownRef
	reports  int
	notifies int
}

func (c *captureSinks) RecordAttendance(ctx context.Context, sessionID int64, date time.Time, verdicts []accounting.Verdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts = verdicts
	return nil
}

func (c *captureSinks) RecordUnknowns(ctx context.Context, sessionID int64, refs []sighting.UnknownRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unknowns = refs
	return nil
}

func (c *captureSinks) SendSessionReport(ctx context.Context, sessionID int64, room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports++
	return nil
}

func (c *captureSinks) NotifyAbsentees(ctx context.Context, sessionID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifies++
	return nil
}

func testMonitor(t *testing.T, sinks *captureSinks) (*Monitor, *stubSchedule) {
	t.Helper()
	sched := &stubSchedule{entries: []schedule.Entry{{
		SessionID: 7,
		Weekday:   time.Monday,
		Start:     "09:00",
		End:       "10:00",
		Course:    "algorithms",
		Room:      "B-204",
	}}}
	roster := &stubRoster{members: []accounting.RosterMember{
		{PersonID: "S1"},
		{PersonID: "S2"},
	}}
	m := New(Config{
		Room:          "B-204",
		MinutesBefore: 5,
		MinutesAfter:  2,
		Policy:        accounting.Policy{PresenceThresholdMinutes: 5},
		Schedules:     sched,
		Rosters:       roster,
		Dispatcher:    &dispatch.Dispatcher{Recorder: sinks, Unknowns: sinks, Reports: sinks, Notifier: sinks, Room: "B-204"},
		Queue:         queue.NewInMemory(16),
	})
	return m, sched
}

// clock returns the fixed test Monday at the given time.
func clock(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func TestSessionLifecycle(t *testing.T) {
	sinks := &captureSinks{}
	m, sched := testMonitor(t, sinks)
	ctx := context.Background()

	// Pre-roll opens the session and arms the log.
	m.Step(ctx, clock(8, 56))
	if !m.log.Active() {
		t.Fatal("log not active after pre-roll tick")
	}
	if got := m.log.SessionID(); got != 7 {
		t.Fatalf("log scoped to session %d, want 7", got)
	}

	m.handleMessage(queue.Message{Type: queue.TypeSighting, Body: []byte(`{"room":"B-204","person_id":"S1","role":0,"seen_at":"08:58"}`)})
	m.handleMessage(queue.Message{Type: queue.TypeSighting, Body: []byte(`{"room":"B-204","person_id":"S1","role":0,"seen_at":"09:30"}`)})
	m.handleMessage(queue.Message{Type: queue.TypeUnknown, Body: []byte(`{"room":"B-204","image_url":"http://x/1.jpg"}`)})

	// Ticks inside the class must not re-open or close.
	m.Step(ctx, clock(9, 30))
	if !m.log.Active() {
		t.Fatal("log closed mid-class")
	}

	// Post-roll closes and dispatches.
	m.Step(ctx, clock(10, 1))
	m.wg.Wait()

	if m.log.Active() {
		t.Fatal("log still active after close")
	}
	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	if sinks.reports != 1 || sinks.notifies != 1 {
		t.Fatalf("reports = %d, notifies = %d, want 1 each", sinks.reports, sinks.notifies)
	}
	if len(sinks.unknowns) != 1 {
		t.Fatalf("dispatched %d unknowns, want 1", len(sinks.unknowns))
	}
	if len(sinks.verdicts) != 2 {
		t.Fatalf("dispatched %d verdicts, want 2 (sighted plus synthesized)", len(sinks.verdicts))
	}
	if sinks.verdicts[0].PersonID != "S1" || sinks.verdicts[0].MinutesPresent != 32 || sinks.verdicts[0].State != accounting.StatePresent {
		t.Fatalf("sighted verdict = %+v", sinks.verdicts[0])
	}
	if sinks.verdicts[1].PersonID != "S2" || sinks.verdicts[1].State != accounting.StateAbsent {
		t.Fatalf("synthesized verdict = %+v", sinks.verdicts[1])
	}
	if sched.calls != 1 {
		t.Fatalf("schedule fetched %d times in one day, want 1", sched.calls)
	}
}

func TestBackToBackSessionsAcrossTickGap(t *testing.T) {
	sinks := &captureSinks{}
	sched := &stubSchedule{entries: []schedule.Entry{
		{SessionID: 1, Weekday: time.Monday, Start: "08:00", End: "09:00", Course: "algorithms", Room: "B-204"},
		{SessionID: 2, Weekday: time.Monday, Start: "09:10", End: "10:00", Course: "compilers", Room: "B-204"},
	}}
	roster := &stubRoster{members: []accounting.RosterMember{{PersonID: "S1"}}}
	m := New(Config{
		Room:          "B-204",
		MinutesBefore: 5,
		MinutesAfter:  2,
		Policy:        accounting.Policy{PresenceThresholdMinutes: 5},
		Schedules:     sched,
		Rosters:       roster,
		Dispatcher:    &dispatch.Dispatcher{Recorder: sinks, Unknowns: sinks, Reports: sinks, Notifier: sinks, Room: "B-204"},
		Queue:         queue.NewInMemory(16),
	})
	ctx := context.Background()

	m.Step(ctx, clock(8, 30))
	if got := m.log.SessionID(); got != 1 {
		t.Fatalf("log scoped to session %d, want 1", got)
	}
	m.handleMessage(queue.Message{Type: queue.TypeSighting, Body: []byte(`{"room":"B-204","person_id":"S1","role":0,"seen_at":"08:20"}`)})
	m.handleMessage(queue.Message{Type: queue.TypeSighting, Body: []byte(`{"room":"B-204","person_id":"S1","role":0,"seen_at":"09:00"}`)})

	// A tick gap lands the next evaluation inside the second session: the
	// first session's catch-up close and the second session's open fire on
	// the same tick. The close must drain the first session's sightings
	// before the log is rescoped.
	m.Step(ctx, clock(9, 12))
	m.wg.Wait()

	if !m.log.Active() {
		t.Fatal("log not active for the second session")
	}
	if got := m.log.SessionID(); got != 2 {
		t.Fatalf("log scoped to session %d, want 2", got)
	}
	if err := m.log.Append(sighting.Sighting{PersonID: "S1", SeenAt: "09:15"}); err != nil {
		t.Fatalf("append for second session failed: %v", err)
	}

	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	if len(sinks.verdicts) != 1 {
		t.Fatalf("dispatched %d verdicts, want 1", len(sinks.verdicts))
	}
	if v := sinks.verdicts[0]; v.PersonID != "S1" || v.MinutesPresent != 40 || v.State != accounting.StatePresent {
		t.Fatalf("first-session verdict = %+v, want S1 40 present", v)
	}
}

func TestMessagesForOtherRoomsIgnored(t *testing.T) {
	sinks := &captureSinks{}
	m, _ := testMonitor(t, sinks)
	ctx := context.Background()

	m.Step(ctx, clock(8, 56))
	m.handleMessage(queue.Message{Type: queue.TypeSighting, Body: []byte(`{"room":"C-101","person_id":"S9","role":0,"seen_at":"09:00"}`)})

	sightings, _ := m.log.Drain()
	if len(sightings) != 0 {
		t.Fatalf("foreign-room sighting appended: %+v", sightings)
	}
}

func TestSightingsDroppedWhileIdle(t *testing.T) {
	sinks := &captureSinks{}
	m, _ := testMonitor(t, sinks)

	// No Step yet: no session is open, the append must be dropped whole.
	m.handleMessage(queue.Message{Type: queue.TypeSighting, Body: []byte(`{"room":"B-204","person_id":"S1","role":0,"seen_at":"08:58"}`)})
	if m.log.Active() {
		t.Fatal("log unexpectedly active")
	}
	sightings, _ := m.log.Drain()
	if len(sightings) != 0 {
		t.Fatalf("idle log kept %d sightings", len(sightings))
	}
}

func TestScheduleRefreshOnNewDay(t *testing.T) {
	sinks := &captureSinks{}
	m, sched := testMonitor(t, sinks)
	ctx := context.Background()

	m.Step(ctx, clock(8, 0))
	m.Step(ctx, clock(8, 1))
	if sched.calls != 1 {
		t.Fatalf("schedule fetched %d times, want 1", sched.calls)
	}

	m.Step(ctx, clock(8, 0).AddDate(0, 0, 1))
	if sched.calls != 2 {
		t.Fatalf("schedule fetched %d times after day change, want 2", sched.calls)
	}
}
