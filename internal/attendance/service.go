// Package attendance is the api-side persistence surface: rooms, schedules,
// rosters, attendance records and unknown captures.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classwatch/internal/accounting"
	"classwatch/internal/schedule"
	"classwatch/internal/sighting"
	"classwatch/internal/timeday"
)

var (
	// ErrRoomNotFound is returned for an unregistered room label.
	ErrRoomNotFound = errors.New("attendance: room not found")
	// ErrSessionNotFound is returned for an unregistered schedule entry.
	ErrSessionNotFound = errors.New("attendance: session not found")
)

// Service validates and coordinates attendance persistence.
type Service struct {
	repo *Repository
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// RegisterDevice validates and persists device metadata.
func (s *Service) RegisterDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	return s.repo.UpsertDevice(ctx, deviceID)
}

// TodaySchedule returns a room's entries for the given day.
func (s *Service) TodaySchedule(ctx context.Context, roomLabel string, weekday time.Weekday) ([]schedule.Entry, error) {
	ok, err := s.repo.RoomExists(ctx, roomLabel)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s.repo.ScheduleForDay(ctx, roomLabel, weekday)
}

// Roster returns everyone enrolled in a session.
func (s *Service) Roster(ctx context.Context, sessionID int64) ([]accounting.RosterMember, error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.Roster(ctx, sessionID)
}

// ValidateSighting rejects malformed sighting payloads at the ingestion
// edge, before they can poison a session's pairing parity.
func (s *Service) ValidateSighting(sg sighting.Sighting) error {
	if sg.PersonID == "" {
		return errors.New("person id required")
	}
	if !sg.Role.Valid() {
		return fmt.Errorf("invalid role %d", sg.Role)
	}
	if _, err := timeday.Parse(sg.SeenAt); err != nil {
		return err
	}
	return nil
}

// RecordVerdicts persists a session's verdict batch for a date and returns
// how many student and teacher rows were written.
func (s *Service) RecordVerdicts(ctx context.Context, sessionID int64, date time.Time, verdicts []accounting.Verdict) (students, teachers int, err error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return 0, 0, err
	}

	records := make([]Record, 0, len(verdicts))
	for _, v := range verdicts {
		if v.PersonID == "" {
			return 0, 0, errors.New("verdict without person id")
		}
		records = append(records, Record{
			SessionID: sessionID,
			PersonID:  v.PersonID,
			Role:      v.Role,
			Date:      date,
			Minutes:   v.MinutesPresent,
			State:     v.State,
		})
		if v.Role == sighting.RoleTeacher {
			teachers++
		} else {
			students++
		}
	}
	if err := s.repo.InsertRecords(ctx, records); err != nil {
		return 0, 0, err
	}
	return students, teachers, nil
}

// RecordUnknowns persists unknown-capture references for a session.
func (s *Service) RecordUnknowns(ctx context.Context, sessionID int64, date time.Time, imageURLs []string) error {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return err
	}
	if len(imageURLs) == 0 {
		return nil
	}
	return s.repo.InsertUnknowns(ctx, sessionID, date, imageURLs)
}

func (s *Service) requireSession(ctx context.Context, sessionID int64) error {
	ok, err := s.repo.SessionExists(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}
