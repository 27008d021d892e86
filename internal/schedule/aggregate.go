package schedule

import (
	"sort"
	"time"
)

// Timeframe is a maximal run of contiguous available slots on one day.
// End is the start of the run's last slot.
type Timeframe struct {
	Day   time.Weekday
	Week  string
	Date  time.Time
	Start Clock
	End   Clock
}

// Time renders the run as "HH:MM to HH:MM".
func (t Timeframe) Time() string {
	return t.Start.String() + " to " + t.End.String()
}

// DaySlots is the availability read for one day column of one week.
type DaySlots struct {
	Day   time.Weekday
	Week  string
	Date  time.Time
	Slots map[Clock]bool
}

// Aggregate folds the available slots of d into timeframes in time order.
// Two slots belong to the same run only when exactly one slot apart.
func Aggregate(d DaySlots) []Timeframe {
	times := make([]Clock, 0, len(d.Slots))
	for c, ok := range d.Slots {
		if ok {
			times = append(times, c)
		}
	}
	if len(times) == 0 {
		return nil
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	var out []Timeframe
	emit := func(start, end Clock) {
		out = append(out, Timeframe{Day: d.Day, Week: d.Week, Date: d.Date, Start: start, End: end})
	}
	start, end := times[0], times[0]
	for _, c := range times[1:] {
		if c == end.Add(1) {
			end = c
			continue
		}
		emit(start, end)
		start, end = c, c
	}
	emit(start, end)
	return out
}

// FilterPast drops timeframes dated before now's calendar day. Undated
// timeframes are kept.
func FilterPast(tfs []Timeframe, now time.Time) []Timeframe {
	today := startOfDay(now)
	out := tfs[:0:0]
	for _, tf := range tfs {
		if !tf.Date.IsZero() && startOfDay(tf.Date.In(now.Location())).Before(today) {
			continue
		}
		out = append(out, tf)
	}
	return out
}

// Week is one week of the grid as read from the portal.
type Week struct {
	Label string
	Start time.Time
	Days  map[time.Weekday]map[Clock]bool
}

// AggregateWeeks aggregates every requested day of every week, week by week
// and in the order days were requested.
func AggregateWeeks(weeks []Week, days []time.Weekday) []Timeframe {
	var out []Timeframe
	for _, w := range weeks {
		for _, day := range days {
			slots, ok := w.Days[day]
			if !ok {
				continue
			}
			ds := DaySlots{Day: day, Week: w.Label, Slots: slots}
			if !w.Start.IsZero() {
				ds.Date = DayOf(w.Start, day)
			}
			out = append(out, Aggregate(ds)...)
		}
	}
	return out
}
