package timeday

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "08:58", want: 8*time.Hour + 58*time.Minute},
		{in: "08:58:30", want: 8*time.Hour + 58*time.Minute + 30*time.Second},
		{in: "00:00", want: 0},
		{in: "23:59:59", want: 23*time.Hour + 59*time.Minute + 59*time.Second},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:00:60", wantErr: true},
		{in: "12", wantErr: true},
		{in: "12:00:00:00", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %v", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestFormatNormalizes(t *testing.T) {
	got := Format(9*time.Hour + 5*time.Minute)
	if got != "09:05:00" {
		t.Fatalf("Format = %q, want 09:05:00", got)
	}
}

func TestFromTime(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 58, 30, 0, time.UTC)
	want := 8*time.Hour + 58*time.Minute + 30*time.Second
	if got := FromTime(at); got != want {
		t.Fatalf("FromTime = %v, want %v", got, want)
	}
}

func TestMinutes(t *testing.T) {
	if got := Minutes(32 * time.Minute); got != 32 {
		t.Fatalf("Minutes = %d, want 32", got)
	}
	if got := Minutes(90 * time.Second); got != 2 {
		t.Fatalf("Minutes rounds half up, got %d", got)
	}
	if got := Minutes(-5 * time.Minute); got != 0 {
		t.Fatalf("Minutes clamps negatives, got %d", got)
	}
}
