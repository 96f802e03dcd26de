package schedule

import (
	"errors"
	"testing"
	"time"
)

// at returns a fixed Monday at the given clock time.
func at(t *testing.T, hour, min int) time.Time {
	t.Helper()
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func entry(id int64, start, end string) Entry {
	return Entry{SessionID: id, Weekday: time.Monday, Start: start, End: end, Course: "algorithms", Room: "B-204"}
}

func TestEvaluateSelection(t *testing.T) {
	entries := []Entry{entry(1, "08:00", "09:00")}

	t.Run("inside class selects entry with detection active", func(t *testing.T) {
		c := NewCalculator(5, 2)
		res, err := c.Evaluate(at(t, 8, 59), entries)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.ActiveSessionID != 1 {
			t.Fatalf("ActiveSessionID = %d, want 1", res.ActiveSessionID)
		}
		if !res.DetectionActive {
			t.Fatal("expected detection active inside class")
		}
	})

	t.Run("outside widened window selects nothing", func(t *testing.T) {
		c := NewCalculator(5, 2)
		res, err := c.Evaluate(at(t, 7, 30), entries)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.ActiveSessionID != 0 || res.DetectionActive {
			t.Fatalf("expected idle result, got %+v", res)
		}
	})

	t.Run("pre-roll selects entry and fires open", func(t *testing.T) {
		c := NewCalculator(5, 2)
		res, err := c.Evaluate(at(t, 7, 55), entries)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.OpenedSessionID != 1 {
			t.Fatalf("OpenedSessionID = %d, want 1", res.OpenedSessionID)
		}
		if !res.DetectionActive {
			t.Fatal("expected detection active during pre-roll")
		}
		if c.Phase(1) != PhaseArmed {
			t.Fatalf("phase = %s, want armed", c.Phase(1))
		}
	})

	t.Run("earliest start wins with low id breaking ties", func(t *testing.T) {
		overlapping := []Entry{
			entry(4, "08:30", "10:00"),
			entry(3, "08:00", "09:30"),
			entry(2, "08:00", "09:00"),
		}
		c := NewCalculator(5, 2)
		res, err := c.Evaluate(at(t, 8, 45), overlapping)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.ActiveSessionID != 2 {
			t.Fatalf("ActiveSessionID = %d, want 2", res.ActiveSessionID)
		}
	})
}

func TestEvaluateTriggersFireOnce(t *testing.T) {
	entries := []Entry{entry(1, "08:00", "09:00")}

	t.Run("open fires once across repeated ticks", func(t *testing.T) {
		c := NewCalculator(5, 2)
		opens := 0
		for min := 55; min < 60; min++ {
			res, err := c.Evaluate(at(t, 7, min), entries)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if res.OpenedSessionID != 0 {
				opens++
			}
		}
		if opens != 1 {
			t.Fatalf("open fired %d times, want 1", opens)
		}
	})

	t.Run("close fires once in post-roll and never again", func(t *testing.T) {
		c := NewCalculator(5, 2)
		if _, err := c.Evaluate(at(t, 8, 30), entries); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}

		res, err := c.Evaluate(at(t, 9, 1), entries)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.ClosedSessionID != 1 {
			t.Fatalf("ClosedSessionID = %d, want 1", res.ClosedSessionID)
		}
		if res.DetectionActive {
			t.Fatal("detection must stop once close fires")
		}

		res, err = c.Evaluate(at(t, 9, 2), entries)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.ClosedSessionID != 0 {
			t.Fatal("close fired twice")
		}
	})

	t.Run("missed post-roll closes as catch-up exactly once", func(t *testing.T) {
		c := NewCalculator(5, 2)
		if _, err := c.Evaluate(at(t, 8, 30), entries); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}

		// Tick gap: next evaluation lands well past end + post-roll.
		res, err := c.Evaluate(at(t, 9, 30), entries)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.ClosedSessionID != 1 {
			t.Fatalf("catch-up ClosedSessionID = %d, want 1", res.ClosedSessionID)
		}
		if res.ActiveSessionID != 0 {
			t.Fatalf("no entry should be active at 09:30, got %d", res.ActiveSessionID)
		}

		res, err = c.Evaluate(at(t, 9, 31), entries)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.ClosedSessionID != 0 {
			t.Fatal("catch-up close fired twice")
		}
	})

	t.Run("never-opened session gets no catch-up close", func(t *testing.T) {
		c := NewCalculator(5, 2)
		res, err := c.Evaluate(at(t, 9, 30), entries)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.ClosedSessionID != 0 {
			t.Fatal("close fired for a session that never opened")
		}
	})
}

func TestEvaluateDayReset(t *testing.T) {
	entries := []Entry{entry(1, "08:00", "09:00")}
	c := NewCalculator(5, 2)

	if _, err := c.Evaluate(at(t, 8, 30), entries); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if _, err := c.Evaluate(at(t, 9, 1), entries); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	// Same clock times the next day fire the triggers again.
	nextDay := time.Date(2026, 3, 3, 8, 30, 0, 0, time.UTC)
	res, err := c.Evaluate(nextDay, entries)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.OpenedSessionID != 1 {
		t.Fatalf("open did not re-fire on a new day, got %+v", res)
	}
}

func TestEvaluateMalformedEntry(t *testing.T) {
	entries := []Entry{
		{SessionID: 9, Weekday: time.Monday, Start: "8h00", End: "09:00"},
		entry(1, "08:00", "09:00"),
	}
	c := NewCalculator(5, 2)
	res, err := c.Evaluate(at(t, 8, 30), entries)

	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FormatError, got %v", err)
	}
	if fe.SessionID != 9 || fe.Field != "start" {
		t.Fatalf("FormatError = %+v, want session 9 start", fe)
	}
	// The well-formed entry still evaluates.
	if res.ActiveSessionID != 1 {
		t.Fatalf("ActiveSessionID = %d, want 1", res.ActiveSessionID)
	}
}
