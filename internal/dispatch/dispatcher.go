// Package dispatch pushes a closed session's accounting output to the
// surrounding collaborators: attendance persistence, unknown-capture
// persistence, the session report and absentee notifications.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"classwatch/internal/accounting"
	"classwatch/internal/sighting"
)

// Action names one of the four dispatch calls, so a failure says which leg
// broke.
type Action string

const (
	ActionRecordAttendance Action = "record_attendance"
	ActionRecordUnknowns   Action = "record_unknowns"
	ActionSendReport       Action = "send_report"
	ActionNotifyAbsentees  Action = "notify_absentees"
)

// Error wraps a single collaborator failure.
type Error struct {
	Action Action
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch: %s failed: %v", e.Action, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AttendanceRecorder persists the final verdict set for a session.
type AttendanceRecorder interface {
	RecordAttendance(ctx context.Context, sessionID int64, date time.Time, verdicts []accounting.Verdict) error
}

// UnknownRecorder persists references to captures that matched nobody.
type UnknownRecorder interface {
	RecordUnknowns(ctx context.Context, sessionID int64, refs []sighting.UnknownRef) error
}

// ReportSender triggers the session report for a room.
type ReportSender interface {
	SendSessionReport(ctx context.Context, sessionID int64, room string) error
}

// AbsenceNotifier messages the contact of every absent student.
type AbsenceNotifier interface {
	NotifyAbsentees(ctx context.Context, sessionID int64) error
}

// Dispatcher fans the close-of-session output out to the collaborators.
// The window calculator guarantees close fires once per session per day; if
// a manual retry invokes Dispatch again anyway, de-duplication is the
// collaborators' job, not this one's.
type Dispatcher struct {
	Recorder AttendanceRecorder
	Unknowns UnknownRecorder
	Reports  ReportSender
	Notifier AbsenceNotifier
	Room     string
}

// Dispatch runs all four actions independently and returns every failure.
// One leg failing never stops the others, and nothing committed by a
// collaborator is rolled back.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID int64, date time.Time, verdicts []accounting.Verdict, unknowns []sighting.UnknownRef) []*Error {
	var errs []*Error
	fail := func(action Action, err error) {
		errs = append(errs, &Error{Action: action, Err: err})
	}

	if err := d.Recorder.RecordAttendance(ctx, sessionID, date, verdicts); err != nil {
		fail(ActionRecordAttendance, err)
	}
	if len(unknowns) > 0 {
		if err := d.Unknowns.RecordUnknowns(ctx, sessionID, unknowns); err != nil {
			fail(ActionRecordUnknowns, err)
		}
	}
	if err := d.Reports.SendSessionReport(ctx, sessionID, d.Room); err != nil {
		fail(ActionSendReport, err)
	}
	if err := d.Notifier.NotifyAbsentees(ctx, sessionID); err != nil {
		fail(ActionNotifyAbsentees, err)
	}
	return errs
}
