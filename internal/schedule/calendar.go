package schedule

import (
	"fmt"
	"strings"
	"time"
)

// ParseWeekday accepts English day names in any case.
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.TrimSpace(name)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(n, d.String()) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

// ParseWeekdays parses every name and rejects duplicates.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no days requested")
	}
	seen := make(map[time.Weekday]bool, len(names))
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, err := ParseWeekday(n)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			return nil, fmt.Errorf("day %s requested twice", d)
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

// Column is the 1-based grid column of a weekday; the grid starts on Sunday.
func Column(d time.Weekday) int { return int(d) + 1 }

// DayOf returns the date of weekday d in the week starting at weekStart.
func DayOf(weekStart time.Time, d time.Weekday) time.Time {
	offset := (int(d) - int(weekStart.Weekday()) + 7) % 7
	return startOfDay(weekStart).AddDate(0, 0, offset)
}

// WeekStart is the Sunday opening t's week on the portal grid.
func WeekStart(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, -int(t.Weekday()))
}

// WeeksUntil counts the "next week" clicks from from's week to target's week.
// Weeks run Sunday to Saturday; a target in an earlier week gives a negative count.
func WeeksUntil(from, target time.Time) int {
	return (dayNumber(WeekStart(target)) - dayNumber(WeekStart(from))) / 7
}

// dayNumber counts calendar days since the epoch, ignoring the time zone offset.
func dayNumber(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
