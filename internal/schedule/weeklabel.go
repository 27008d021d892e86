package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrWeekLabel is returned for week labels that match neither layout.
var ErrWeekLabel = errors.New("unrecognized week label")

var frenchMonths = map[string]time.Month{
	"janv": time.January, "janvier": time.January,
	"févr": time.February, "fevr": time.February, "fév": time.February, "février": time.February, "fevrier": time.February,
	"mars": time.March,
	"avr":  time.April, "avril": time.April,
	"mai":  time.May,
	"juin": time.June,
	"juil": time.July, "juillet": time.July,
	"août": time.August, "aout": time.August,
	"sept": time.September, "septembre": time.September,
	"oct": time.October, "octobre": time.October,
	"nov": time.November, "novembre": time.November,
	"déc": time.December, "dec": time.December, "décembre": time.December, "decembre": time.December,
}

var (
	// "17 au 23 août 2025"
	sameMonthLabel = regexp.MustCompile(`(?i)^(\d{1,2})\s+au\s+(\d{1,2})\s+([\p{L}.]+)(?:\s+(\d{4}))?$`)
	// "31 août au 6 sept. 2025"
	crossMonthLabel = regexp.MustCompile(`(?i)^(\d{1,2})\s+([\p{L}.]+)(?:\s+(\d{4}))?\s+au\s+(\d{1,2})\s+([\p{L}.]+)(?:\s+(\d{4}))?$`)
)

// NormalizeWeekLabel strips the "Sem. du" prefix and collapses whitespace,
// giving the key under which a week is stored.
func NormalizeWeekLabel(label string) string {
	s := strings.Join(strings.Fields(label), " ")
	lower := strings.ToLower(s)
	for _, prefix := range []string{"sem. du ", "semaine du "} {
		if strings.HasPrefix(lower, prefix) {
			return s[len(prefix):]
		}
	}
	return s
}

func parseMonth(s string) (time.Month, bool) {
	m, ok := frenchMonths[strings.TrimSuffix(strings.ToLower(s), ".")]
	return m, ok
}

// ParseWeekLabel returns the first and last day of a French week label, in
// now's location. When the label has no year the one putting the week
// closest to now is used; a week spanning New Year gets the end year.
func ParseWeekLabel(label string, now time.Time) (time.Time, time.Time, error) {
	s := NormalizeWeekLabel(label)
	var (
		startDay, endDay     int
		startMonth, endMonth time.Month
		year                 string
		yearOfStart          bool
	)
	if m := sameMonthLabel.FindStringSubmatch(s); m != nil {
		month, ok := parseMonth(m[3])
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: month %q in %q", ErrWeekLabel, m[3], label)
		}
		startDay, _ = strconv.Atoi(m[1])
		endDay, _ = strconv.Atoi(m[2])
		startMonth, endMonth, year = month, month, m[4]
	} else if m := crossMonthLabel.FindStringSubmatch(s); m != nil {
		sm, ok1 := parseMonth(m[2])
		em, ok2 := parseMonth(m[5])
		if !ok1 || !ok2 {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: month in %q", ErrWeekLabel, label)
		}
		startDay, _ = strconv.Atoi(m[1])
		endDay, _ = strconv.Atoi(m[4])
		startMonth, endMonth, year = sm, em, m[6]
		if year == "" && m[3] != "" {
			year, yearOfStart = m[3], true
		}
	} else {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrWeekLabel, label)
	}

	loc := now.Location()
	var endYear int
	if year != "" {
		endYear, _ = strconv.Atoi(year)
	} else {
		endYear = nearestYear(now, endMonth, endDay)
	}
	startYear := endYear
	if startMonth > endMonth {
		if yearOfStart {
			endYear++
		} else {
			startYear--
		}
	}

	start := time.Date(startYear, startMonth, startDay, 0, 0, 0, 0, loc)
	end := time.Date(endYear, endMonth, endDay, 0, 0, 0, 0, loc)
	if start.Day() != startDay || end.Day() != endDay || end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: impossible dates in %q", ErrWeekLabel, label)
	}
	return start, end, nil
}

// nearestYear picks the year that puts month/day closest to now.
func nearestYear(now time.Time, month time.Month, day int) int {
	best, bestDist := now.Year(), time.Duration(1<<63-1)
	for _, y := range []int{now.Year() - 1, now.Year(), now.Year() + 1} {
		d := time.Date(y, month, day, 0, 0, 0, 0, now.Location()).Sub(now)
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = y, d
		}
	}
	return best
}
