package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classwatch/internal/accounting"
	"classwatch/internal/attendance"
	"classwatch/internal/sighting"
)

func TestBuildCSV(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	records := []attendance.Record{
		{ID: "a1", SessionID: 7, PersonID: "S1", Role: sighting.RoleStudent, Date: date, Minutes: 32, State: accounting.StatePresent},
		{ID: "a2", SessionID: 7, PersonID: "S2", Role: sighting.RoleStudent, Date: date, Minutes: 0, State: accounting.StateAbsent},
		{ID: "a3", SessionID: 7, PersonID: "T1", Role: sighting.RoleTeacher, Date: date, Minutes: 65, State: accounting.StatePresent},
	}
	unknowns := []attendance.Unknown{
		{ID: "u1", SessionID: 7, ImageURL: "http://x/1.jpg", Date: date},
	}

	out, err := BuildCSV(records, unknowns)
	require.NoError(t, err)

	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)

	// The reader drops the blank separator lines, leaving ten rows. Teachers
	// stay out of the student section.
	require.Len(t, rows, 10)
	assert.Equal(t, []string{"Students"}, rows[0])
	assert.Equal(t, []string{"ID", "Session", "Code", "State", "Minutes", "Date"}, rows[1])
	assert.Equal(t, []string{"a1", "7", "S1", "present", "32", "2026-03-02"}, rows[2])
	assert.Equal(t, []string{"a2", "7", "S2", "absent", "0", "2026-03-02"}, rows[3])

	assert.Equal(t, []string{"Teachers"}, rows[4])
	assert.Equal(t, []string{"a3", "7", "T1", "present", "65", "2026-03-02"}, rows[6])

	assert.Equal(t, []string{"Unknowns"}, rows[7])
	assert.Equal(t, []string{"7", "http://x/1.jpg", "2026-03-02"}, rows[9])
}

func TestBuildCSVEmpty(t *testing.T) {
	out, err := BuildCSV(nil, nil)
	require.NoError(t, err)

	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)

	var sections []string
	for _, row := range rows {
		if len(row) == 1 {
			sections = append(sections, row[0])
		}
	}
	assert.Equal(t, []string{"Students", "Teachers", "Unknowns"}, sections)
}
