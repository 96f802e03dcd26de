// Package schedule decides which class slot is active at a given instant and
// when the open/close triggers for a session fire.
package schedule

import (
	"fmt"
	"time"

	"classwatch/internal/timeday"
)

// Entry is one recurring class slot for a room. Start and End are clock
// strings; both "HH:MM" and "HH:MM:SS" are accepted wherever they are read.
type Entry struct {
	SessionID int64        `json:"session_id"`
	Weekday   time.Weekday `json:"weekday"`
	Start     string       `json:"start"`
	End       string       `json:"end"`
	Course    string       `json:"course"`
	Room      string       `json:"room"`
}

// FormatError reports a malformed clock string in a schedule entry. Only the
// offending entry's evaluation is aborted; the rest of the schedule still
// gets evaluated.
type FormatError struct {
	SessionID int64
	Field     string
	Value     string
	Err       error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("schedule: session %d has malformed %s %q: %v", e.SessionID, e.Field, e.Value, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// window returns the entry bounds widened by the pre/post-roll margins,
// as offsets from midnight.
func (e Entry) window(before, after int) (start, end, wStart, wEnd time.Duration, err error) {
	start, err = timeday.Parse(e.Start)
	if err != nil {
		return 0, 0, 0, 0, &FormatError{SessionID: e.SessionID, Field: "start", Value: e.Start, Err: err}
	}
	end, err = timeday.Parse(e.End)
	if err != nil {
		return 0, 0, 0, 0, &FormatError{SessionID: e.SessionID, Field: "end", Value: e.End, Err: err}
	}
	wStart = start - time.Duration(before)*time.Minute
	wEnd = end + time.Duration(after)*time.Minute
	return start, end, wStart, wEnd, nil
}
