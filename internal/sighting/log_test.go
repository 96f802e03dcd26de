package sighting

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAppendRequiresOpenSession(t *testing.T) {
	l := NewLog()
	if err := l.Append(Sighting{PersonID: "S1", SeenAt: "08:58"}); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Append on idle log = %v, want ErrNoActiveSession", err)
	}
	if err := l.AddUnknown(UnknownRef{ImageURL: "http://x/1.jpg"}); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("AddUnknown on idle log = %v, want ErrNoActiveSession", err)
	}
}

func TestLogPreservesArrivalOrder(t *testing.T) {
	l := NewLog()
	l.Open(7)
	if got := l.SessionID(); got != 7 {
		t.Fatalf("SessionID = %d, want 7", got)
	}

	in := []Sighting{
		{PersonID: "S1", SeenAt: "08:58"},
		{PersonID: "S2", SeenAt: "09:00"},
		{PersonID: "S1", SeenAt: "09:30"},
	}
	for _, s := range in {
		if err := l.Append(s); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := l.AddUnknown(UnknownRef{ImageURL: "http://x/1.jpg", CapturedAt: time.Now()}); err != nil {
		t.Fatalf("AddUnknown failed: %v", err)
	}

	sightings, unknowns := l.Drain()
	if len(sightings) != len(in) {
		t.Fatalf("drained %d sightings, want %d", len(sightings), len(in))
	}
	for i, s := range sightings {
		if s != in[i] {
			t.Fatalf("sightings[%d] = %+v, want %+v", i, s, in[i])
		}
	}
	if len(unknowns) != 1 {
		t.Fatalf("drained %d unknowns, want 1", len(unknowns))
	}
}

func TestDrainClosesAndIsIdempotent(t *testing.T) {
	l := NewLog()
	l.Open(3)
	if err := l.Append(Sighting{PersonID: "S1", SeenAt: "10:00"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	first, _ := l.Drain()
	if len(first) != 1 {
		t.Fatalf("first drain returned %d sightings, want 1", len(first))
	}
	if l.Active() {
		t.Fatal("log still active after Drain")
	}
	if got := l.SessionID(); got != 0 {
		t.Fatalf("SessionID after Drain = %d, want 0", got)
	}

	second, unknowns := l.Drain()
	if len(second) != 0 || len(unknowns) != 0 {
		t.Fatalf("second drain returned %d/%d, want empty", len(second), len(unknowns))
	}
	if err := l.Append(Sighting{PersonID: "S2", SeenAt: "10:01"}); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Append after Drain = %v, want ErrNoActiveSession", err)
	}
}

func TestDrainSessionChecksScope(t *testing.T) {
	l := NewLog()
	l.Open(1)
	if err := l.Append(Sighting{PersonID: "S1", SeenAt: "08:20"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if _, _, ok := l.DrainSession(2); ok {
		t.Fatal("DrainSession drained a log scoped to another session")
	}
	if !l.Active() {
		t.Fatal("mismatched DrainSession deactivated the log")
	}

	sightings, _, ok := l.DrainSession(1)
	if !ok {
		t.Fatal("DrainSession refused the matching session")
	}
	if len(sightings) != 1 {
		t.Fatalf("drained %d sightings, want 1", len(sightings))
	}
	if l.Active() {
		t.Fatal("log still active after matching drain")
	}
	if _, _, ok := l.DrainSession(1); ok {
		t.Fatal("DrainSession drained an idle log")
	}
}

func TestOpenDiscardsLeftovers(t *testing.T) {
	l := NewLog()
	l.Open(1)
	if err := l.Append(Sighting{PersonID: "S1", SeenAt: "08:00"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	l.Open(2)
	sightings, _ := l.Drain()
	if len(sightings) != 0 {
		t.Fatalf("reopen kept %d stale sightings, want 0", len(sightings))
	}
}

func TestConcurrentAppends(t *testing.T) {
	l := NewLog()
	l.Open(5)

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s := Sighting{PersonID: fmt.Sprintf("P%d", w), SeenAt: "09:00"}
				if err := l.Append(s); err != nil {
					t.Errorf("Append failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	sightings, _ := l.Drain()
	if len(sightings) != writers*perWriter {
		t.Fatalf("drained %d sightings, want %d", len(sightings), writers*perWriter)
	}
}
