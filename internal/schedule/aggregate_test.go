package schedule

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func slots(avail map[string]bool) map[Clock]bool {
	out := make(map[Clock]bool, len(avail))
	for k, v := range avail {
		out[MustClock(k)] = v
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name  string
		avail map[string]bool
		want  []string
	}{
		{
			name:  "contiguous hour is one run",
			avail: map[string]bool{"09:00": true, "09:15": true, "09:30": true, "09:45": true, "10:00": true},
			want:  []string{"09:00 to 10:00"},
		},
		{
			name: "alternating gives one run per true slot",
			avail: map[string]bool{
				"14:00": true, "14:15": false, "14:30": true, "14:45": false, "15:00": true,
			},
			want: []string{"14:00 to 14:00", "14:30 to 14:30", "15:00 to 15:00"},
		},
		{
			name:  "gap of thirty minutes splits",
			avail: map[string]bool{"08:00": true, "08:30": true, "08:45": true},
			want:  []string{"08:00 to 08:00", "08:30 to 08:45"},
		},
		{
			name:  "nothing available",
			avail: map[string]bool{"08:00": false},
			want:  nil,
		},
		{
			name:  "half hour in a two hour window",
			avail: map[string]bool{"14:00": true, "14:15": true, "14:30": false, "14:45": false, "15:00": false},
			want:  []string{"14:00 to 14:15"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tfs := Aggregate(DaySlots{Day: time.Monday, Week: "17 au 23 août 2025", Slots: slots(tt.avail)})
			var got []string
			for _, tf := range tfs {
				got = append(got, tf.Time())
				assert.Equal(t, time.Monday, tf.Day)
				assert.Equal(t, "17 au 23 août 2025", tf.Week)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAggregate_NeverMergesUnevenGaps(t *testing.T) {
	avail := map[Clock]bool{}
	for c := Opens; c < Closes; c = c.Add(2) {
		avail[c] = true
	}
	tfs := Aggregate(DaySlots{Day: time.Tuesday, Slots: avail})
	assert.Len(t, tfs, len(avail))
	for _, tf := range tfs {
		assert.Equal(t, tf.Start, tf.End)
	}
}

func TestAggregateWeeks(t *testing.T) {
	start := time.Date(2025, 8, 17, 0, 0, 0, 0, time.UTC)
	weeks := []Week{{
		Label: "17 au 23 août 2025",
		Start: start,
		Days: map[time.Weekday]map[Clock]bool{
			time.Monday:  slots(map[string]bool{"14:00": true, "14:15": true, "14:30": false}),
			time.Tuesday: slots(map[string]bool{"14:00": false}),
		},
	}}

	got := AggregateWeeks(weeks, []time.Weekday{time.Monday, time.Tuesday})
	want := []Timeframe{{
		Day:   time.Monday,
		Week:  "17 au 23 août 2025",
		Date:  time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC),
		Start: MustClock("14:00"),
		End:   MustClock("14:15"),
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AggregateWeeks() mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterPast(t *testing.T) {
	now := time.Date(2025, 8, 19, 15, 30, 0, 0, time.UTC)
	tfs := []Timeframe{
		{Day: time.Monday, Date: time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC)},
		{Day: time.Tuesday, Date: time.Date(2025, 8, 19, 0, 0, 0, 0, time.UTC)},
		{Day: time.Wednesday, Date: time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)},
		{Day: time.Friday},
	}
	got := FilterPast(tfs, now)
	var days []time.Weekday
	for _, tf := range got {
		days = append(days, tf.Day)
	}
	assert.Equal(t, []time.Weekday{time.Tuesday, time.Wednesday, time.Friday}, days)
	assert.Len(t, tfs, 4, "input is not modified")
}
