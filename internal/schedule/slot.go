// Package schedule maps wall-clock times onto the portal's appointment grid
// and folds per-slot availability into contiguous timeframes.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Grid geometry. The grid opens at 06:45 and its last cell starts at 21:45.
const (
	SlotMinutes = 15
	Opens       = Clock(6*60 + 45)
	Closes      = Clock(22 * 60)
	noon        = Clock(12 * 60)
)

var (
	// ErrMalformedTime is returned for anything that is not H:MM or HH:MM.
	ErrMalformedTime = errors.New("malformed time")
	// ErrOutOfWindow is returned for times outside [06:45, 22:00).
	ErrOutOfWindow = errors.New("time outside the appointment grid")
)

// Clock is a time of day in minutes after midnight.
type Clock int

// ParseClock parses "H:MM" or "HH:MM".
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	return Clock(hh*60 + mm), nil
}

// MustClock is ParseClock for constants; it panics on bad input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String renders HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns the clock n slots later.
func (c Clock) Add(slots int) Clock {
	return c + Clock(slots*SlotMinutes)
}

// FormatTime zero-pads the hour of an H:MM label as shown in grid tiles.
// Text that is not a time is returned trimmed and otherwise untouched.
func FormatTime(s string) string {
	s = strings.TrimSpace(s)
	if h, _, ok := strings.Cut(s, ":"); ok && len(h) == 1 {
		return "0" + s
	}
	return s
}

// Convention is how one grid rendering numbers its rows. The lookup grid
// and the booking grid have different header rows, so each keeps its own
// offset and they must not be interchanged.
type Convention struct {
	Name      string
	Offset    int
	Afternoon int
}

var (
	// LookupConvention numbers the availability grid.
	LookupConvention = Convention{Name: "lookup", Offset: 2}
	// BookingConvention numbers the booking grid, which has one extra row
	// from noon on.
	BookingConvention = Convention{Name: "booking", Offset: 1, Afternoon: 1}
)

// IndexOf returns the data-index of the grid row holding c.
func IndexOf(c Clock, conv Convention) (int, error) {
	if c < Opens || c >= Closes {
		return 0, fmt.Errorf("%w: %s", ErrOutOfWindow, c)
	}
	idx := int(c-Opens)/SlotMinutes + conv.Offset
	if c >= noon {
		idx += conv.Afternoon
	}
	return idx, nil
}

// IndexOfString parses s and returns its row index.
func IndexOfString(s string, conv Convention) (int, error) {
	c, err := ParseClock(s)
	if err != nil {
		return 0, err
	}
	return IndexOf(c, conv)
}

// Range is an inclusive span of grid times.
type Range struct {
	Start Clock
	End   Clock
}

// ParseRange parses "HH:MM-HH:MM". Both ends must lie on the grid and the
// start may not follow the end.
func ParseRange(s string) (Range, error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return Range{}, fmt.Errorf("%w: range %q needs HH:MM-HH:MM", ErrMalformedTime, s)
	}
	start, err := ParseClock(a)
	if err != nil {
		return Range{}, err
	}
	end, err := ParseClock(b)
	if err != nil {
		return Range{}, err
	}
	for _, c := range []Clock{start, end} {
		if c < Opens || c >= Closes {
			return Range{}, fmt.Errorf("%w: %s", ErrOutOfWindow, c)
		}
	}
	if start > end {
		return Range{}, fmt.Errorf("%w: range %q ends before it starts", ErrMalformedTime, s)
	}
	return Range{Start: start, End: end}, nil
}

// Contains reports whether c lies within the range, ends included.
func (r Range) Contains(c Clock) bool { return c >= r.Start && c <= r.End }

func (r Range) String() string { return r.Start.String() + "-" + r.End.String() }

// TimeframeIndices returns the first and last row indices of a range string.
func TimeframeIndices(s string, conv Convention) (int, int, error) {
	r, err := ParseRange(s)
	if err != nil {
		return 0, 0, err
	}
	start, err := IndexOf(r.Start, conv)
	if err != nil {
		return 0, 0, err
	}
	end, err := IndexOf(r.End, conv)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
