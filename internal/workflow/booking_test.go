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
	"github.com/xkilldash9x/sdsbook/internal/store"
)

// Wednesday of the week after testNow, 15:00.
const testBookingDate = "2025-08-27T15:00:00"

// bookingWeeks are the week labels the grid steps through from testNow.
var bookingWeeks = []string{
	"Sem. du 17 au 23 août 2025",
	"Sem. du 24 au 30 août 2025",
	"Sem. du 31 août au 6 sept. 2025",
}

// bookingPortal arranges the wizard and the booking grid. When confirm is set
// finalizing moves the page to the post-booking URL.
func bookingPortal(cfg *config.Config, confirm bool) (*portal, string) {
	p := newPortal(cfg)
	sel := p.sel
	p.onSearch = func(d *browsertest.Driver) { p.showVehicle(d, "TOYOTA RAV4 2022", "") }
	p.wizard()

	week := 0
	p.d.Show(sel.WeekLabel)
	p.d.SetText(sel.WeekLabel, bookingWeeks[week])
	p.d.OnClick(sel.CalendarNext, func(d *browsertest.Driver) {
		week = min(week+1, len(bookingWeeks)-1)
		d.SetText(sel.WeekLabel, bookingWeeks[week])
	})

	row := mustIndex("15:00")
	cell := sel.BookingCell(row, schedule.Column(time.Wednesday))
	p.d.Show(browser.Query(sel.TransportInput).Nth(2).String(), cell, sel.TakenBy, sel.Finalize)
	p.d.SetCount(sel.Row(row), 1)
	if confirm {
		p.d.OnClick(sel.Finalize, func(d *browsertest.Driver) { d.SetURL(testBaseURL + "t1/appointments-qab/1") })
	}
	return p, cell
}

func mustIndex(hhmm string) int {
	idx, err := schedule.IndexOfString(hhmm, schedule.BookingConvention)
	if err != nil {
		panic(err)
	}
	return idx
}

func TestBook_Success(t *testing.T) {
	cfg := testConfig()
	p, cell := bookingPortal(cfg, true)
	sel := p.sel

	want := time.Date(2025, time.August, 27, 15, 0, 0, 0, cfg.Schedule().LoadLocation())
	appointments := new(mocks.MockAppointmentStore)
	appointments.On("InsertAppointment", mock.Anything, mock.MatchedBy(func(a store.Appointment) bool {
		return a.Phone == testPhone &&
			a.Vehicle == "2022 Toyota RAV4" &&
			a.ServiceCode == "01TZZ1S16Z" &&
			a.Transport == "attente" &&
			a.DateTime.Equal(want)
	})).Return(int64(42), nil).Once()

	r, _ := newTestRunner(t, cfg, p.d, WithAppointmentStore(appointments))
	out, err := r.Book(context.Background(), AppointmentRequest{
		ServiceCode: "01TZZ1S16Z",
		Vehicle:     "2022 Toyota RAV4",
		Phone:       "514-555-0100",
		DateTime:    testBookingDate,
		Transport:   "Attente",
	})
	require.NoError(t, err)
	assert.Equal(t, &AppointmentOutcome{Message: bookedMessage, ID: 42}, out)

	assert.Equal(t, "01TZZ1S16Z", p.d.Value(sel.OperationInput))
	assert.Equal(t, cfg.Portal().OperatorCode, p.d.Value(sel.TakenBy))
	assert.Equal(t, 1, p.d.Actions("click "+sel.CalendarNext), "one week ahead")
	assert.Contains(t, p.d.Journal(), "click "+cell)
	assert.Contains(t, p.d.Journal(), "click "+browser.Query(sel.TransportInput).Nth(2).String())
	assert.Zero(t, p.d.Actions("click body"), "booking does not blur the operation field")
	assert.True(t, p.d.Closed())
	appointments.AssertExpectations(t)
}

func TestBook_SundayTarget(t *testing.T) {
	cfg := testConfig()
	p, _ := bookingPortal(cfg, true)
	sel := p.sel
	sunday := sel.BookingCell(mustIndex("15:00"), schedule.Column(time.Sunday))
	p.d.Show(sunday)

	r, _ := newTestRunner(t, cfg, p.d)
	_, err := r.Book(context.Background(), AppointmentRequest{
		Vehicle:  "2022 Toyota RAV4",
		Phone:    testPhone,
		DateTime: "2025-08-24T15:00:00",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, p.d.Actions("click "+sel.CalendarNext), "Sunday opens the next grid week")
	assert.Contains(t, p.d.Journal(), "click "+sunday)
}

func TestBook_GridOpensOnLaterWeek(t *testing.T) {
	cfg := testConfig()
	p, cell := bookingPortal(cfg, true)
	sel := p.sel
	p.d.SetText(sel.WeekLabel, "Sem. du 24 au 30 août 2025")

	r, _ := newTestRunner(t, cfg, p.d)
	_, err := r.Book(context.Background(), AppointmentRequest{
		Vehicle:  "2022 Toyota RAV4",
		Phone:    testPhone,
		DateTime: testBookingDate,
	})
	require.NoError(t, err)

	assert.Zero(t, p.d.Actions("click "+sel.CalendarNext), "clicks are counted from the visible week")
	assert.Contains(t, p.d.Journal(), "click "+cell)
}

func TestBook_WeekNotReached(t *testing.T) {
	cfg := testConfig()
	p, cell := bookingPortal(cfg, true)
	sel := p.sel
	p.d.OnClick(sel.CalendarNext, func(*browsertest.Driver) {})

	r, _ := newTestRunner(t, cfg, p.d)
	_, err := r.Book(context.Background(), AppointmentRequest{
		Vehicle:  "2022 Toyota RAV4",
		Phone:    testPhone,
		DateTime: testBookingDate,
	})

	var nav *engine.NavigationError
	require.ErrorAs(t, err, &nav)
	assert.Equal(t, "choose_week", nav.Op)
	assert.Equal(t, engine.KindNavigation, AsFailure(err).Kind)
	assert.NotContains(t, p.d.Journal(), "click "+cell)
	assert.Zero(t, p.d.Actions("click "+sel.Finalize))
}

func TestBook_WeekLabelMissingUsesClock(t *testing.T) {
	cfg := testConfig()
	p, cell := bookingPortal(cfg, true)
	sel := p.sel
	p.d.Remove(sel.WeekLabel)
	p.d.OnClick(sel.CalendarNext, func(*browsertest.Driver) {})

	r, _ := newTestRunner(t, cfg, p.d)
	_, err := r.Book(context.Background(), AppointmentRequest{
		Vehicle:  "2022 Toyota RAV4",
		Phone:    testPhone,
		DateTime: testBookingDate,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, p.d.Actions("click "+sel.CalendarNext))
	assert.Contains(t, p.d.Journal(), "click "+cell)
}

func TestBook_NotConfirmedWritesNothing(t *testing.T) {
	cfg := testConfig()
	p, _ := bookingPortal(cfg, false)

	appointments := new(mocks.MockAppointmentStore)
	r, _ := newTestRunner(t, cfg, p.d, WithAppointmentStore(appointments))
	out, err := r.Book(context.Background(), AppointmentRequest{
		ServiceCode: "01TZZ1S16Z",
		Vehicle:     "2022 Toyota RAV4",
		Phone:       testPhone,
		DateTime:    testBookingDate,
		Transport:   "aucun",
	})
	assert.Nil(t, out)

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindNotConfirmed, f.Kind)
	appointments.AssertNotCalled(t, "InsertAppointment", mock.Anything, mock.Anything)
	assert.True(t, p.d.Closed())
}

func TestBook_RecordFailureStillConfirms(t *testing.T) {
	cfg := testConfig()
	p, _ := bookingPortal(cfg, true)

	appointments := new(mocks.MockAppointmentStore)
	appointments.On("InsertAppointment", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down")).Once()

	r, _ := newTestRunner(t, cfg, p.d, WithAppointmentStore(appointments))
	out, err := r.Book(context.Background(), AppointmentRequest{
		Vehicle:   "2022 Toyota RAV4",
		Phone:     testPhone,
		DateTime:  testBookingDate,
		Transport: "attente",
	})
	require.NoError(t, err)
	assert.Equal(t, bookedMessage, out.Message)
	assert.Zero(t, out.ID)
	assert.Equal(t, cfg.Portal().DefaultServiceCode, p.d.Value(p.sel.OperationInput))
}

func TestBook_InvalidRequestNeverLaunches(t *testing.T) {
	valid := AppointmentRequest{
		ServiceCode: "01TZZ1S16Z",
		Vehicle:     "2022 Toyota RAV4",
		Phone:       testPhone,
		DateTime:    testBookingDate,
		Transport:   "attente",
	}
	tests := []struct {
		name   string
		modify func(*AppointmentRequest)
		op     string
	}{
		{"past date", func(r *AppointmentRequest) { r.DateTime = "2025-08-18T08:45:00" }, "date"},
		{"malformed date", func(r *AppointmentRequest) { r.DateTime = "2025-08-27 15:00" }, "date"},
		{"off the slot grid", func(r *AppointmentRequest) { r.DateTime = "2025-08-27T15:10:00" }, "date"},
		{"after closing", func(r *AppointmentRequest) { r.DateTime = "2025-08-27T22:00:00" }, "date"},
		{"unknown transport", func(r *AppointmentRequest) { r.Transport = "taxi" }, "transport_mode"},
		{"bad vehicle", func(r *AppointmentRequest) { r.Vehicle = "Toyota" }, "vehicle"},
		{"bad phone", func(r *AppointmentRequest) { r.Phone = "911" }, "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.modify(&req)
			r, launcher := newTestRunner(t, testConfig(), nil)

			_, err := r.Book(context.Background(), req)
			var verr *engine.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.op, verr.Op)
			assert.Equal(t, engine.KindValidation, AsFailure(err).Kind)
			launcher.AssertNotCalled(t, "NewDriver", mock.Anything)
		})
	}
}

func TestPlanBooking(t *testing.T) {
	cfg := testConfig()
	r := NewRunner(cfg, new(mocks.MockLauncher), nil)
	now := testNow(t)

	plan, err := r.planBooking(AppointmentRequest{
		Vehicle: "2022 Toyota RAV4", Phone: testPhone, DateTime: "2025-09-05T12:00:00",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, cfg.Portal().DefaultServiceCode, plan.service)
	assert.Equal(t, 0, plan.transport, "empty transport is aucun")
	assert.Equal(t, 2, plan.weekClicks)
	assert.Equal(t, schedule.Column(time.Friday), plan.column)
	assert.Equal(t, 23, plan.row, "noon takes the afternoon adjustment")
	assert.True(t, plan.booked.MatchString(testBaseURL+"t1/appointments-qab/1"))
}

func TestTransportIndex(t *testing.T) {
	for i, mode := range Transports {
		got, err := transportIndex(" " + mode + " ")
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
	_, err := transportIndex("bus")
	assert.Error(t, err)
}
