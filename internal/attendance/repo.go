package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"classwatch/internal/accounting"
	"classwatch/internal/schedule"
	"classwatch/internal/sighting"
)

// Record is one persisted attendance row.
type Record struct {
	ID        string           `json:"id"`
	SessionID int64            `json:"session_id"`
	PersonID  string           `json:"person_id"`
	Role      sighting.Role    `json:"role"`
	Date      time.Time        `json:"date"`
	Minutes   int              `json:"minutes"`
	State     accounting.State `json:"state"`
	CreatedAt time.Time        `json:"created_at"`
}

// Unknown is one persisted unknown-capture row.
type Unknown struct {
	ID        string    `json:"id"`
	SessionID int64     `json:"session_id"`
	ImageURL  string    `json:"image_url"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// Person is a registered student or teacher.
type Person struct {
	ID        string        `json:"id"`
	Role      sighting.Role `json:"role"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Code      string        `json:"code"`
	Contact   string        `json:"contact,omitempty"`
}

// Repository persists classwatch data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RoomExists reports whether a room label is registered.
func (r *Repository) RoomExists(ctx context.Context, label string) (bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM rooms WHERE label = $1`, label).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SessionExists reports whether a schedule entry is registered.
func (r *Repository) SessionExists(ctx context.Context, sessionID int64) (bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM schedule_entries WHERE id = $1`, sessionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ScheduleForDay returns a room's schedule entries for one weekday, start
// times normalized to HH:MM:SS.
func (r *Repository) ScheduleForDay(ctx context.Context, roomLabel string, weekday time.Weekday) ([]schedule.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT se.id, se.weekday, to_char(se.start_time, 'HH24:MI:SS'), to_char(se.end_time, 'HH24:MI:SS'), c.name, rm.label
		FROM schedule_entries se
		JOIN rooms rm ON rm.id = se.room_id
		JOIN courses c ON c.id = se.course_id
		WHERE rm.label = $1 AND se.weekday = $2
		ORDER BY se.start_time, se.id
	`, roomLabel, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []schedule.Entry
	for rows.Next() {
		var e schedule.Entry
		var wd int
		if err := rows.Scan(&e.SessionID, &wd, &e.Start, &e.End, &e.Course, &e.Room); err != nil {
			return nil, err
		}
		e.Weekday = time.Weekday(wd)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Roster returns every person enrolled in a session, teachers included.
func (r *Repository) Roster(ctx context.Context, sessionID int64) ([]accounting.RosterMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.role
		FROM enrollments e
		JOIN people p ON p.id = e.person_id
		WHERE e.session_id = $1
		ORDER BY p.role, p.id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []accounting.RosterMember
	for rows.Next() {
		var m accounting.RosterMember
		var role int
		if err := rows.Scan(&m.PersonID, &role); err != nil {
			return nil, err
		}
		m.Role = sighting.Role(role)
		roster = append(roster, m)
	}
	return roster, rows.Err()
}

// InsertRecords writes a session's verdict batch in one transaction, like
// the close-of-session path produces it: all rows or none.
func (r *Repository) InsertRecords(ctx context.Context, records []Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_records (id, session_id, person_id, role, record_date, minutes, state)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, rec.ID, rec.SessionID, rec.PersonID, int(rec.Role), rec.Date, rec.Minutes, string(rec.State))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertUnknowns writes unknown-capture references for a session.
func (r *Repository) InsertUnknowns(ctx context.Context, sessionID int64, date time.Time, imageURLs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, url := range imageURLs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO unknown_sightings (id, session_id, image_url, record_date)
			VALUES ($1, $2, $3, $4)
		`, uuid.NewString(), sessionID, url, date)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordsForSession lists attendance rows for a session, newest first.
// A zero date means all dates.
func (r *Repository) RecordsForSession(ctx context.Context, sessionID int64, date time.Time) ([]Record, error) {
	query := `
		SELECT id, session_id, person_id, role, record_date, minutes, state, created_at
		FROM attendance_records
		WHERE session_id = $1`
	args := []any{sessionID}
	if !date.IsZero() {
		query += ` AND record_date = $2`
		args = append(args, date)
	}
	query += ` ORDER BY created_at DESC, person_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var role int
		var state string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.PersonID, &role, &rec.Date, &rec.Minutes, &state, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Role = sighting.Role(role)
		rec.State = accounting.State(state)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UnknownsForSession lists unknown captures recorded against a session.
func (r *Repository) UnknownsForSession(ctx context.Context, sessionID int64, date time.Time) ([]Unknown, error) {
	query := `
		SELECT id, session_id, image_url, record_date, created_at
		FROM unknown_sightings
		WHERE session_id = $1`
	args := []any{sessionID}
	if !date.IsZero() {
		query += ` AND record_date = $2`
		args = append(args, date)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var unknowns []Unknown
	for rows.Next() {
		var u Unknown
		if err := rows.Scan(&u.ID, &u.SessionID, &u.ImageURL, &u.Date, &u.CreatedAt); err != nil {
			return nil, err
		}
		unknowns = append(unknowns, u)
	}
	return unknowns, rows.Err()
}

// AbsentStudents returns students marked absent for a session on a date,
// with whatever contact is on file. Teachers never get absence messages.
func (r *Repository) AbsentStudents(ctx context.Context, sessionID int64, date time.Time) ([]Person, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.role, p.first_name, p.last_name, p.code, COALESCE(p.contact, '')
		FROM attendance_records ar
		JOIN people p ON p.id = ar.person_id
		WHERE ar.session_id = $1 AND ar.record_date = $2 AND ar.state = 'absent' AND ar.role = 0
		ORDER BY p.last_name, p.first_name
	`, sessionID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var people []Person
	for rows.Next() {
		var p Person
		var role int
		if err := rows.Scan(&p.ID, &role, &p.FirstName, &p.LastName, &p.Code, &p.Contact); err != nil {
			return nil, err
		}
		p.Role = sighting.Role(role)
		people = append(people, p)
	}
	return people, rows.Err()
}

// UpsertDevice ensures a camera/monitor device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (device_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, deviceID, token, expiresAt)
	return err
}
