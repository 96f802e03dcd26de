// Package report builds and emails the end-of-class attendance report: one
// CSV with the student, teacher and unknown-capture sections attached to a
// summary email.
package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"classwatch/internal/attendance"
	"classwatch/internal/sighting"
)

const reportBody = `Good afternoon,

Attached is the list of students and teachers that attended today's class,
including the time each person spent in the room, and any unmatched captures.

Kind regards,
classwatch
`

// Mailer sends session reports through SendGrid.
type Mailer struct {
	key  string
	from *sgmail.Email
	to   *sgmail.Email
}

// NewMailer creates a mailer. from and to are plain addresses.
func NewMailer(key, fromAddr, toAddr string) *Mailer {
	return &Mailer{
		key:  key,
		from: sgmail.NewEmail("classwatch", fromAddr),
		to:   sgmail.NewEmail("", toAddr),
	}
}

// SendSessionReport emails the report for one closed session.
func (m *Mailer) SendSessionReport(ctx context.Context, room string, sessionID int64, records []attendance.Record, unknowns []attendance.Unknown) error {
	csvBytes, err := BuildCSV(records, unknowns)
	if err != nil {
		return fmt.Errorf("report: build csv: %w", err)
	}

	p := sgmail.NewPersonalization()
	p.Subject = fmt.Sprintf("Attendance report - room %s, session %d", room, sessionID)
	p.AddTos(m.to)

	msg := sgmail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.AddPersonalizations(p)
	msg.AddContent(sgmail.NewContent("text/plain", reportBody))
	msg.AddAttachment(&sgmail.Attachment{
		Content:     base64.StdEncoding.EncodeToString(csvBytes),
		Type:        "text/csv",
		Filename:    "attendance_report.csv",
		Disposition: "attachment",
	})

	resp, err := sendgrid.NewSendClient(m.key).SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("report: sendgrid: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("report: sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// BuildCSV renders the three report sections. Records are split by role the
// way the report template expects them.
func BuildCSV(records []attendance.Record, unknowns []attendance.Unknown) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	write := func(row ...string) {
		_ = w.Write(row)
	}

	write("Students")
	write("ID", "Session", "Code", "State", "Minutes", "Date")
	for _, r := range records {
		if r.Role != sighting.RoleStudent {
			continue
		}
		write(r.ID, strconv.FormatInt(r.SessionID, 10), r.PersonID, string(r.State), strconv.Itoa(r.Minutes), r.Date.Format("2006-01-02"))
	}

	write()
	write("Teachers")
	write("ID", "Session", "Code", "State", "Minutes", "Date")
	for _, r := range records {
		if r.Role != sighting.RoleTeacher {
			continue
		}
		write(r.ID, strconv.FormatInt(r.SessionID, 10), r.PersonID, string(r.State), strconv.Itoa(r.Minutes), r.Date.Format("2006-01-02"))
	}

	write()
	write("Unknowns")
	write("Session", "Image", "Date")
	for _, u := range unknowns {
		write(strconv.FormatInt(u.SessionID, 10), u.ImageURL, u.Date.Format("2006-01-02"))
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}
