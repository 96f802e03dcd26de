// Package timeday handles session-local time-of-day values. Schedules and
// sightings carry clock strings with no date component since a class never
// spans midnight.
package timeday

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse accepts "HH:MM" or "HH:MM:SS" and returns the offset from midnight.
// Both forms appear in schedule data depending on how the entry was loaded.
func Parse(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		nums[i] = n
	}
	h, m, sec := nums[0], nums[1], nums[2]
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// Format renders an offset as "HH:MM:SS", the normalized form.
func Format(d time.Duration) string {
	d = d % (24 * time.Hour)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FromTime extracts the time-of-day offset of a wall-clock instant.
func FromTime(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// Minutes rounds a duration to whole minutes, never negative.
func Minutes(d time.Duration) int {
	m := int(d.Round(time.Minute) / time.Minute)
	if m < 0 {
		return 0
	}
	return m
}
