// Package sighting holds the per-session recognition log. The perception
// side appends whenever a known face is matched while detection is active;
// the close path drains the whole log for accounting in one atomic step.
package sighting

import (
	"errors"
	"sync"
	"time"
)

// Role distinguishes students from teachers. The numeric values match the
// record format the persistence layer stores (0 = student, 1 = teacher).
type Role int

const (
	RoleStudent Role = 0
	RoleTeacher Role = 1
)

// String returns the role name used on the wire and in reports.
func (r Role) String() string {
	if r == RoleTeacher {
		return "teacher"
	}
	return "student"
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// Sighting is one recognition event: a known person seen at a session-local
// time of day ("HH:MM" or "HH:MM:SS").
type Sighting struct {
	PersonID string `json:"person_id"`
	Role     Role   `json:"role"`
	SeenAt   string `json:"seen_at"`
}

// UnknownRef points at an uploaded capture that matched nobody.
type UnknownRef struct {
	ImageURL   string    `json:"image_url"`
	CapturedAt time.Time `json:"captured_at"`
}

// ErrNoActiveSession is returned when an append arrives while no session is
// open. That is a contract violation on the producer side, not data to keep.
var ErrNoActiveSession = errors.New("sighting: no active session")

// Log accumulates sightings for exactly one session at a time. Producers and
// the close path share it, so every access goes through one mutex.
type Log struct {
	mu        sync.Mutex
	sessionID int64
	active    bool
	sightings []Sighting
	unknowns  []UnknownRef
}

// NewLog returns an idle log. Open arms it for a session.
func NewLog() *Log {
	return &Log{}
}

// Open scopes the log to a session and starts accepting appends. Any
// leftovers from a previous session are discarded; the close path drains
// before the next open.
func (l *Log) Open(sessionID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessionID = sessionID
	l.active = true
	l.sightings = nil
	l.unknowns = nil
}

// SessionID returns the session the log is scoped to, 0 when idle.
func (l *Log) SessionID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return 0
	}
	return l.sessionID
}

// Active reports whether a session is open.
func (l *Log) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Append adds a sighting at the tail, preserving arrival order.
func (l *Log) Append(s Sighting) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return ErrNoActiveSession
	}
	l.sightings = append(l.sightings, s)
	return nil
}

// AddUnknown records an unmatched capture alongside the sightings.
func (l *Log) AddUnknown(ref UnknownRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return ErrNoActiveSession
	}
	l.unknowns = append(l.unknowns, ref)
	return nil
}

// Drain returns the full ordered contents, clears the log and closes the
// session, all under one lock so a concurrent Append can neither be lost nor
// double-counted. Draining an idle log yields empty slices.
func (l *Log) Drain() ([]Sighting, []UnknownRef) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drainLocked()
}

// DrainSession drains only when the log is scoped to sessionID, so a late
// close can never consume another session's log. The bool reports whether
// the drain happened.
func (l *Log) DrainSession(sessionID int64) ([]Sighting, []UnknownRef, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active || l.sessionID != sessionID {
		return nil, nil, false
	}
	sightings, unknowns := l.drainLocked()
	return sightings, unknowns, true
}

func (l *Log) drainLocked() ([]Sighting, []UnknownRef) {
	sightings := l.sightings
	unknowns := l.unknowns
	l.sightings = nil
	l.unknowns = nil
	l.active = false
	l.sessionID = 0
	return sightings, unknowns
}
