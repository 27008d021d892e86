package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/engine"
	"github.com/xkilldash9x/sdsbook/internal/phone"
	"github.com/xkilldash9x/sdsbook/internal/schedule"
	"github.com/xkilldash9x/sdsbook/internal/store"
	"github.com/xkilldash9x/sdsbook/internal/vehicle"
)

// DateTimeLayout is the layout of AppointmentRequest.DateTime.
const DateTimeLayout = "2006-01-02T15:04:05"

// bookedMessage is returned on a confirmed booking.
const bookedMessage = "Appointment made successfully"

// Transports lists the transport modes in the order of the portal's radio buttons.
var Transports = []string{"aucun", "courtoisie", "attente", "reconduire", "laisser"}

// AppointmentRequest books one service for a customer's vehicle.
type AppointmentRequest struct {
	ServiceCode string
	Vehicle     string
	Phone       string
	DateTime    string
	Transport   string
}

// AppointmentOutcome is a confirmed booking. ID is the stored appointment id,
// zero when the booking was confirmed but could not be recorded.
type AppointmentOutcome struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

type bookingPlan struct {
	phone      string
	desc       vehicle.Descriptor
	service    string
	transport  int
	now        time.Time
	when       time.Time
	clock      schedule.Clock
	row        int
	column     int
	weekClicks int
	booked     *regexp.Regexp
}

func transportIndex(mode string) (int, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		return 0, nil
	}
	for i, t := range Transports {
		if t == mode {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown transport mode %q (want one of %s)", mode, strings.Join(Transports, ", "))
}

// planBooking validates req against now. Nothing here touches a browser.
func (r *Runner) planBooking(req AppointmentRequest, now time.Time) (bookingPlan, error) {
	var (
		plan bookingPlan
		err  error
	)
	if plan.phone, err = phone.Normalize(req.Phone); err != nil {
		return plan, &engine.ValidationError{Op: "phone", Err: err}
	}
	if plan.desc, err = vehicle.ParseDescriptor(req.Vehicle); err != nil {
		return plan, &engine.ValidationError{Op: "vehicle", Err: err}
	}
	if plan.transport, err = transportIndex(req.Transport); err != nil {
		return plan, &engine.ValidationError{Op: "transport_mode", Err: err}
	}
	plan.service = strings.TrimSpace(req.ServiceCode)
	if plan.service == "" {
		plan.service = r.cfg.Portal().DefaultServiceCode
	}

	plan.when, err = time.ParseInLocation(DateTimeLayout, strings.TrimSpace(req.DateTime), now.Location())
	if err != nil {
		return plan, engine.Invalid("date", "want YYYY-MM-DDTHH:MM:SS: %v", err)
	}
	if plan.when.Before(now) {
		return plan, engine.Invalid("date", "%s is in the past", plan.when.Format(DateTimeLayout))
	}
	plan.clock = schedule.Clock(plan.when.Hour()*60 + plan.when.Minute())
	if plan.when.Second() != 0 || int(plan.clock)%schedule.SlotMinutes != 0 {
		return plan, engine.Invalid("date", "%s is not on a %d-minute slot", plan.clock, schedule.SlotMinutes)
	}
	if plan.row, err = schedule.IndexOf(plan.clock, schedule.BookingConvention); err != nil {
		return plan, &engine.ValidationError{Op: "date", Err: err}
	}
	plan.now = now
	plan.column = schedule.Column(plan.when.Weekday())
	plan.weekClicks = schedule.WeeksUntil(now, plan.when)

	pattern := r.cfg.Portal().BookedURLPattern
	if plan.booked, err = regexp.Compile(pattern); err != nil {
		return plan, fmt.Errorf("booked url pattern %q: %w", pattern, err)
	}
	return plan, nil
}

// Book books an appointment and records it. The request, including the
// date, is validated before any browser is launched, and nothing is recorded
// unless the portal confirmed the booking.
func (r *Runner) Book(ctx context.Context, req AppointmentRequest) (*AppointmentOutcome, error) {
	const name = "booking"

	plan, err := r.planBooking(req, r.clock())
	if err != nil {
		return nil, r.finish(name, err)
	}

	err = r.withSession(ctx, name, func(s *engine.Session) error {
		if err := s.Start(ctx, plan.phone); err != nil {
			return err
		}
		choose := func(ctx context.Context, s *engine.Session) error {
			return pickVehicle(ctx, s, plan.desc)
		}
		if err := reachVehicle(ctx, s, choose); err != nil {
			return err
		}
		if err := openCalendar(ctx, s, plan.service, false); err != nil {
			return err
		}
		return book(ctx, s, plan)
	})
	if err != nil {
		return nil, r.finish(name, err)
	}

	out := &AppointmentOutcome{Message: bookedMessage}
	if r.appointments != nil {
		id, err := r.appointments.InsertAppointment(ctx, store.Appointment{
			Phone:       plan.phone,
			Vehicle:     plan.desc.String(),
			ServiceCode: plan.service,
			DateTime:    plan.when,
			Transport:   Transports[plan.transport],
		})
		if err != nil {
			r.logger.Error("Appointment booked but not recorded.",
				zap.String("phone", plan.phone), zap.Time("date", plan.when), zap.Error(err))
		} else {
			out.ID = id
		}
	}
	return out, r.finish(name, nil)
}

// book fills the schedule step of the wizard and finalizes it.
func book(ctx context.Context, s *engine.Session, plan bookingPlan) error {
	sel := s.Selectors()
	t := s.Timeouts()

	if err := s.Click(ctx, "choose_transport", browser.Query(sel.TransportInput).Nth(plan.transport), t.Default); err != nil {
		return err
	}

	err := s.Executor().Track("choose_week", func() error {
		return chooseWeek(ctx, s, plan)
	})
	if err != nil {
		return err
	}

	err = s.Executor().Track("choose_time", func() error {
		row := browser.Query(sel.Row(plan.row))
		if err := s.FixedScroller(sel.TimeScroller).ScrollUntilPresent(ctx, row); err != nil {
			return err
		}
		return s.Click(ctx, "click_time_cell", browser.Query(sel.BookingCell(plan.row, plan.column)), t.Default)
	})
	if err != nil {
		return err
	}

	if err := s.Fill(ctx, "fill_taken_by", browser.Query(sel.TakenBy), s.Config().Portal().OperatorCode, t.Default); err != nil {
		return err
	}
	if err := s.Click(ctx, "finalize_appointment", browser.Query(sel.Finalize), t.Default); err != nil {
		return err
	}

	if err := s.Driver().WaitForURL(ctx, plan.booked.MatchString, t.Navigation); err != nil {
		url, _ := s.Driver().CurrentURL(ctx)
		s.Logger().Warn("Booking not confirmed.", zap.String("url", url), zap.Error(err))
		return fail(KindNotConfirmed, "portal did not confirm the booking (at %s)", url)
	}
	s.Logger().Info("Appointment booked.", zap.Time("date", plan.when), zap.Int("row", plan.row), zap.Int("column", plan.column))
	return nil
}

// chooseWeek advances the grid to the week holding plan.when. The click count
// comes from the visible week label; the count planned from the clock is used
// only when the label cannot be read.
func chooseWeek(ctx context.Context, s *engine.Session, plan bookingPlan) error {
	sel := s.Selectors()
	target := schedule.WeekStart(plan.when)

	clicks := plan.weekClicks
	start, ok, err := visibleWeek(ctx, s, plan.now)
	if err != nil {
		return err
	}
	if ok {
		clicks = schedule.WeeksUntil(start, plan.when)
		if clicks < 0 {
			return &engine.NavigationError{Op: "choose_week",
				Err: fmt.Errorf("grid opened on the week of %s, after %s", start.Format(time.DateOnly), plan.when.Format(time.DateOnly))}
		}
	}
	s.Logger().Debug("Advancing schedule grid.", zap.Int("clicks", clicks), zap.Bool("from_label", ok))

	for i := 0; i < clicks; i++ {
		if err := s.Pause(ctx, s.Config().Schedule().WeekAdvanceWait); err != nil {
			return err
		}
		if err := s.Click(ctx, "next_week", browser.Query(sel.CalendarNext), s.Timeouts().Default); err != nil {
			return err
		}
	}

	shown, ok, err := visibleWeek(ctx, s, plan.now)
	if err != nil || !ok {
		return err
	}
	if !sameDay(schedule.WeekStart(shown), target) {
		return &engine.NavigationError{Op: "choose_week",
			Err: fmt.Errorf("grid shows the week of %s, want %s", shown.Format(time.DateOnly), target.Format(time.DateOnly))}
	}
	return nil
}

// visibleWeek reads the first day of the week the grid shows. ok is false
// when the label is missing or not understood.
func visibleWeek(ctx context.Context, s *engine.Session, now time.Time) (start time.Time, ok bool, err error) {
	label, err := s.Text(ctx, "read_week_label", browser.Query(s.Selectors().WeekLabel))
	if err != nil {
		if isMissing(err) && ctx.Err() == nil {
			s.Logger().Warn("Week label not found.", zap.Error(err))
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	start, _, err = schedule.ParseWeekLabel(label, now)
	if err != nil {
		s.Logger().Warn("Week label not understood.", zap.String("label", label), zap.Error(err))
		return time.Time{}, false, nil
	}
	return start, true, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
