package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/browser/browsertest"
	"github.com/xkilldash9x/sdsbook/internal/config"
	"github.com/xkilldash9x/sdsbook/internal/engine"
	"github.com/xkilldash9x/sdsbook/internal/mocks"
	"github.com/xkilldash9x/sdsbook/internal/schedule"
)

const (
	testWeekLabel = "Sem. du 17 au 23 août 2025"
	testWeekKey   = "17 au 23 août 2025"
)

// gridPortal arranges a single-vehicle customer whose grid renders rows
// first..last for Monday and Tuesday, with the given Monday slots open.
func gridPortal(cfg *config.Config, first, last int, open ...schedule.Clock) *portal {
	p := newPortal(cfg)
	sel := p.sel
	p.onSearch = func(d *browsertest.Driver) { p.showVehicle(d, "TOYOTA RAV4 2022", "") }
	p.wizard()
	p.d.SetText(sel.WeekLabel, testWeekLabel)

	list := (&browsertest.VirtualList{
		Container: sel.TimeTable,
		Scroller:  sel.TimeScroller,
		Min:       1,
		Max:       63,
		Window:    63,
	}).Attach(p.d)

	available := map[schedule.Clock]bool{}
	for _, c := range open {
		available[c] = true
	}
	for idx := first; idx <= last; idx++ {
		clock := schedule.Opens.Add(idx - schedule.LookupConvention.Offset)
		row := list.Row(idx)
		for _, day := range []time.Weekday{time.Monday, time.Tuesday} {
			col := schedule.Column(day)
			p.d.SetText(row.Find(sel.DayTile(col, false)).String(), clock.String())
			if day == time.Monday && available[clock] {
				p.d.SetCount(row.Find(sel.DayTile(col, true)).String(), 1)
			}
		}
	}
	return p
}

func TestAvailability_MondayAfternoon(t *testing.T) {
	cfg := testConfig()
	p := gridPortal(cfg, 31, 39, schedule.MustClock("14:00"), schedule.MustClock("14:15"))

	snapshots := new(mocks.MockAvailabilityStore)
	r, _ := newTestRunner(t, cfg, p.d, WithAvailabilityStore(snapshots))

	res, err := r.Availability(context.Background(), AvailabilityRequest{
		Phone:     testPhone,
		Days:      []string{"Monday", "Tuesday"},
		Timeframe: "14:00-16:00",
		Weeks:     1,
	})
	require.NoError(t, err)

	require.Len(t, res.Timeframes, 1)
	tf := res.Timeframes[0]
	assert.Equal(t, time.Monday, tf.Day)
	assert.Equal(t, testWeekKey, tf.Week)
	assert.Equal(t, "14:00 to 14:15", tf.Time())
	assert.Equal(t, 18, tf.Date.Day(), "dated on the Monday of the labelled week")

	require.Len(t, res.Weeks, 1)
	assert.Len(t, res.Weeks[0].Days[time.Tuesday], 9, "every row of the range is read")

	sel := p.sel
	assert.Equal(t, cfg.Portal().ProbeServiceCode, p.d.Value(sel.OperationInput))
	assert.Equal(t, 1, p.d.Actions("click body"))
	assert.Zero(t, p.d.Actions("click "+sel.CalendarNext), "a single week never advances")
	assert.True(t, p.d.Closed())
	snapshots.AssertNotCalled(t, "SaveSnapshot", mock.Anything, mock.Anything)
}

func TestAvailability_PersistsSnapshot(t *testing.T) {
	cfg := testConfig()
	p := gridPortal(cfg, 31, 33, schedule.MustClock("14:30"))
	p.d.OnClick(p.sel.CalendarNext, func(d *browsertest.Driver) {
		d.SetText(p.sel.WeekLabel, "Sem. du 24 au 30 août 2025")
	})

	snapshots := new(mocks.MockAvailabilityStore)
	snapshots.On("SaveSnapshot", mock.Anything, mock.MatchedBy(func(weeks []schedule.Week) bool {
		return len(weeks) == 2 && weeks[0].Label == testWeekKey && weeks[1].Label == "24 au 30 août 2025"
	})).Return(nil).Once()
	snapshots.On("PruneWeeks", mock.Anything, []string{testWeekKey, "24 au 30 août 2025"}).Return(int64(1), nil).Once()

	r, _ := newTestRunner(t, cfg, p.d, WithAvailabilityStore(snapshots))
	res, err := r.Availability(context.Background(), AvailabilityRequest{
		Phone:     testPhone,
		Days:      []string{"monday"},
		Timeframe: "14:00-14:30",
		Weeks:     2,
		Persist:   true,
	})
	require.NoError(t, err)

	require.Len(t, res.Timeframes, 2, "the open slot shows in both weeks")
	assert.Equal(t, testWeekKey, res.Timeframes[0].Week)
	assert.Equal(t, "24 au 30 août 2025", res.Timeframes[1].Week)
	assert.Equal(t, "14:30 to 14:30", res.Timeframes[1].Time())
	assert.Equal(t, 1, p.d.Actions("click "+p.sel.CalendarNext))
	snapshots.AssertExpectations(t)
}

func TestAvailability_StoreFailureKeepsResult(t *testing.T) {
	cfg := testConfig()
	p := gridPortal(cfg, 31, 31, schedule.MustClock("14:00"))

	snapshots := new(mocks.MockAvailabilityStore)
	snapshots.On("SaveSnapshot", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	r, _ := newTestRunner(t, cfg, p.d, WithAvailabilityStore(snapshots))
	res, err := r.Availability(context.Background(), AvailabilityRequest{
		Phone: testPhone, Days: []string{"Monday"}, Timeframe: "14:00-14:00", Weeks: 1, Persist: true,
	})
	require.NoError(t, err)
	assert.Len(t, res.Timeframes, 1)
	snapshots.AssertNotCalled(t, "PruneWeeks", mock.Anything, mock.Anything)
}

func TestAvailability_MultipleVehiclesUsesFirst(t *testing.T) {
	cfg := testConfig()
	p := gridPortal(cfg, 31, 31, schedule.MustClock("14:00"))
	cars := browser.Query(p.sel.CarsList)
	p.onSearch = func(d *browsertest.Driver) { p.showPopup(d, engine.TitleMultipleVehicles) }
	p.d.Show(cars.String())
	p.d.OnClick(cars.String(), func(d *browsertest.Driver) {
		p.hidePopup(d)
		p.showVehicle(d, "HONDA CIVIC 2019", "")
	})

	r, _ := newTestRunner(t, cfg, p.d)
	res, err := r.Availability(context.Background(), AvailabilityRequest{
		Phone: testPhone, Days: []string{"Monday"}, Timeframe: "14:00-14:00",
	})
	require.NoError(t, err)
	assert.Len(t, res.Timeframes, 1)
	assert.Equal(t, 1, p.d.Actions("click "+cars.String()))
}

func TestAvailability_InvalidRequestNeverLaunches(t *testing.T) {
	tests := []struct {
		name string
		req  AvailabilityRequest
		op   string
	}{
		{"bad day", AvailabilityRequest{Phone: testPhone, Days: []string{"Funday"}, Timeframe: "14:00-16:00"}, "days"},
		{"reversed range", AvailabilityRequest{Phone: testPhone, Days: []string{"Monday"}, Timeframe: "16:00-14:00"}, "timeframe"},
		{"before opening", AvailabilityRequest{Phone: testPhone, Days: []string{"Monday"}, Timeframe: "06:00-08:00"}, "timeframe"},
		{"too many weeks", AvailabilityRequest{Phone: testPhone, Days: []string{"Monday"}, Timeframe: "14:00-16:00", Weeks: 60}, "number_of_weeks"},
		{"bad phone", AvailabilityRequest{Phone: "12", Days: []string{"Monday"}, Timeframe: "14:00-16:00"}, "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, launcher := newTestRunner(t, testConfig(), nil)
			_, err := r.Availability(context.Background(), tt.req)

			var verr *engine.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.op, verr.Op)
			assert.Equal(t, engine.KindValidation, AsFailure(err).Kind)
			launcher.AssertNotCalled(t, "NewDriver", mock.Anything)
		})
	}
}
