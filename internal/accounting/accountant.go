// Package accounting turns a session's sighting log into per-person
// attendance verdicts using the alternating enter/exit interval model.
package accounting

import (
	"fmt"
	"time"

	"classwatch/internal/sighting"
	"classwatch/internal/timeday"
)

// State is the attendance verdict for one person in one session.
type State string

const (
	StatePresent State = "present"
	StateLate    State = "late"
	StateAbsent  State = "absent"
)

// Verdict is the accounting outcome for one person.
type Verdict struct {
	PersonID       string        `json:"person_id"`
	Role           sighting.Role `json:"role"`
	MinutesPresent int           `json:"minutes_present"`
	State          State         `json:"state"`
}

// Policy carries the thresholds that classify accumulated minutes. Both come
// from configuration; LateThresholdMinutes of 0 disables the late tier and
// collapses the policy to present/absent.
type Policy struct {
	PresenceThresholdMinutes int
	LateThresholdMinutes     int
}

// SightingFormatError reports a malformed timestamp in the log. One bad
// record fails the whole pass: dropping it silently would flip the
// enter/exit parity for that person and corrupt every later interval.
type SightingFormatError struct {
	PersonID string
	Value    string
	Err      error
}

func (e *SightingFormatError) Error() string {
	return fmt.Sprintf("accounting: person %s has malformed sighting time %q: %v", e.PersonID, e.Value, e.Err)
}

func (e *SightingFormatError) Unwrap() error { return e.Err }

// RosterMember is one enrolled person, used to synthesize verdicts for
// people who were never sighted.
type RosterMember struct {
	PersonID string        `json:"person_id"`
	Role     sighting.Role `json:"role"`
}

// Account groups the log by person and pairs each person's sightings in
// arrival order: 1st/3rd/5th are entries, 2nd/4th/6th are exits. Minutes
// present is the rounded sum over completed pairs. A trailing unpaired entry
// forces the verdict to absent no matter how many minutes accumulated; the
// minutes are still reported for the record.
func Account(log []sighting.Sighting, policy Policy) ([]Verdict, error) {
	type personLog struct {
		role  sighting.Role
		times []time.Duration
	}
	byPerson := make(map[string]*personLog)
	var order []string

	for _, s := range log {
		at, err := timeday.Parse(s.SeenAt)
		if err != nil {
			return nil, &SightingFormatError{PersonID: s.PersonID, Value: s.SeenAt, Err: err}
		}
		p, ok := byPerson[s.PersonID]
		if !ok {
			p = &personLog{role: s.Role}
			byPerson[s.PersonID] = p
			order = append(order, s.PersonID)
		}
		p.times = append(p.times, at)
	}

	verdicts := make([]Verdict, 0, len(order))
	for _, id := range order {
		p := byPerson[id]
		var total time.Duration
		for i := 1; i < len(p.times); i += 2 {
			total += p.times[i] - p.times[i-1]
		}
		minutes := timeday.Minutes(total)

		state := policy.classify(minutes)
		if len(p.times)%2 != 0 {
			state = StateAbsent
		}

		verdicts = append(verdicts, Verdict{
			PersonID:       id,
			Role:           p.role,
			MinutesPresent: minutes,
			State:          state,
		})
	}
	return verdicts, nil
}

func (p Policy) classify(minutes int) State {
	switch {
	case minutes >= p.PresenceThresholdMinutes:
		return StatePresent
	case p.LateThresholdMinutes > 0 && minutes >= p.LateThresholdMinutes:
		return StateLate
	default:
		return StateAbsent
	}
}

// CompleteWithRoster appends a zero-minute absent verdict for every roster
// member without a sighting, so the final set has exactly one verdict per
// enrolled person. Sighted verdicts keep their order; synthesized ones
// follow in roster order.
func CompleteWithRoster(verdicts []Verdict, roster []RosterMember) []Verdict {
	seen := make(map[string]bool, len(verdicts))
	for _, v := range verdicts {
		seen[v.PersonID] = true
	}
	out := append([]Verdict(nil), verdicts...)
	for _, m := range roster {
		if seen[m.PersonID] {
			continue
		}
		seen[m.PersonID] = true
		out = append(out, Verdict{
			PersonID:       m.PersonID,
			Role:           m.Role,
			MinutesPresent: 0,
			State:          StateAbsent,
		})
	}
	return out
}
