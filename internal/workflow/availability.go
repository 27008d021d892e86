package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/engine"
	"github.com/xkilldash9x/sdsbook/internal/phone"
	"github.com/xkilldash9x/sdsbook/internal/schedule"
)

// maxWeeks bounds how far ahead availability can be read.
const maxWeeks = 26

// AvailabilityRequest reads the free slots of the given days within
// Timeframe ("HH:MM-HH:MM") over Weeks weeks, starting with the current one.
type AvailabilityRequest struct {
	Phone     string
	Days      []string
	Timeframe string
	Weeks     int
	Persist   bool
}

// AvailabilityResult holds the aggregated timeframes and the raw grid read.
type AvailabilityResult struct {
	Timeframes []schedule.Timeframe
	Weeks      []schedule.Week
}

type availabilityPlan struct {
	phone      string
	days       []time.Weekday
	first      int
	last       int
	weeks      int
	persist    bool
	probeCode  string
	settleWait time.Duration
}

func (r *Runner) planAvailability(req AvailabilityRequest) (availabilityPlan, error) {
	digits, err := phone.Normalize(req.Phone)
	if err != nil {
		return availabilityPlan{}, &engine.ValidationError{Op: "phone", Err: err}
	}
	days, err := schedule.ParseWeekdays(req.Days)
	if err != nil {
		return availabilityPlan{}, &engine.ValidationError{Op: "days", Err: err}
	}
	first, last, err := schedule.TimeframeIndices(req.Timeframe, schedule.LookupConvention)
	if err != nil {
		return availabilityPlan{}, &engine.ValidationError{Op: "timeframe", Err: err}
	}
	weeks := req.Weeks
	if weeks == 0 {
		weeks = r.cfg.Schedule().DefaultWeeks
	}
	if weeks < 1 || weeks > maxWeeks {
		return availabilityPlan{}, engine.Invalid("number_of_weeks", "must be between 1 and %d, got %d", maxWeeks, weeks)
	}
	return availabilityPlan{
		phone:      digits,
		days:       days,
		first:      first,
		last:       last,
		weeks:      weeks,
		persist:    req.Persist || r.cfg.Schedule().PersistSnapshots,
		probeCode:  r.cfg.Portal().ProbeServiceCode,
		settleWait: r.cfg.Schedule().WeekAdvanceWait,
	}, nil
}

// Availability reads the schedule grid of the customer's vehicle. The
// request is validated before any browser work.
func (r *Runner) Availability(ctx context.Context, req AvailabilityRequest) (*AvailabilityResult, error) {
	const name = "availability"

	plan, err := r.planAvailability(req)
	if err != nil {
		return nil, r.finish(name, err)
	}

	now := r.clock()
	var weeks []schedule.Week
	err = r.withSession(ctx, name, func(s *engine.Session) error {
		if err := s.Start(ctx, plan.phone); err != nil {
			return err
		}
		// Any vehicle of the customer shows the same grid.
		if err := reachVehicle(ctx, s, pickFirstVehicle); err != nil {
			return err
		}
		if err := openCalendar(ctx, s, plan.probeCode, true); err != nil {
			return err
		}
		weeks, err = readWeeks(ctx, s, plan, now)
		return err
	})
	if err != nil {
		return nil, r.finish(name, err)
	}

	res := &AvailabilityResult{
		Timeframes: schedule.FilterPast(schedule.AggregateWeeks(weeks, plan.days), now),
		Weeks:      weeks,
	}
	if plan.persist {
		r.persistSnapshot(ctx, weeks)
	}
	return res, r.finish(name, nil)
}

func pickFirstVehicle(ctx context.Context, s *engine.Session) error {
	return s.Click(ctx, "click_vehicle", browser.Query(s.Selectors().CarsList).Nth(0), s.Timeouts().Default)
}

// readWeeks reads plan.weeks weeks of the grid, advancing one week at a time.
func readWeeks(ctx context.Context, s *engine.Session, plan availabilityPlan, now time.Time) ([]schedule.Week, error) {
	sel := s.Selectors()
	t := s.Timeouts()
	weeks := make([]schedule.Week, 0, plan.weeks)

	for i := 0; i < plan.weeks; i++ {
		label, err := s.Text(ctx, "read_week_label", browser.Query(sel.WeekLabel))
		if err != nil {
			return weeks, err
		}
		week := schedule.Week{
			Label: schedule.NormalizeWeekLabel(label),
			Days:  make(map[time.Weekday]map[schedule.Clock]bool, len(plan.days)),
		}
		if start, _, err := schedule.ParseWeekLabel(label, now); err == nil {
			week.Start = start
		} else {
			s.Logger().Warn("Week label not understood; past-day filtering is off for it.", zap.String("label", label), zap.Error(err))
		}
		for _, d := range plan.days {
			week.Days[d] = map[schedule.Clock]bool{}
		}

		err = s.Executor().Track(fmt.Sprintf("read_week_%d", i+1), func() error {
			return readWeek(ctx, s, plan, week)
		})
		if err != nil {
			return weeks, err
		}
		weeks = append(weeks, week)

		if i == plan.weeks-1 {
			break
		}
		if err := s.Pause(ctx, plan.settleWait); err != nil {
			return weeks, err
		}
		if err := s.Click(ctx, "next_week", browser.Query(sel.CalendarNext), t.Default); err != nil {
			return weeks, err
		}
	}
	return weeks, nil
}

// readWeek fills week.Days with the tiles of rows plan.first..plan.last.
func readWeek(ctx context.Context, s *engine.Session, plan availabilityPlan, week schedule.Week) error {
	sel := s.Selectors()
	list := s.WindowedList(sel.TimeTable, sel.TimeScroller)
	fallback := s.FixedScroller(sel.TimeScroller)

	for idx := plan.first; idx <= plan.last; idx++ {
		row := list.Row(idx)
		if _, _, err := list.ScrollToIndex(ctx, idx); err != nil {
			if !isMissing(err) {
				return err
			}
			s.Logger().Debug("Windowed scroll missed the row; trying fixed steps.", zap.Int("index", idx))
			if err := fallback.ScrollUntilPresent(ctx, row); err != nil {
				if !isMissing(err) {
					return err
				}
				s.Logger().Warn("Time slot row not found; skipping it.", zap.Int("index", idx), zap.String("week", week.Label))
				continue
			}
		}

		for _, d := range plan.days {
			col := schedule.Column(d)
			text, err := s.Text(ctx, "read_tile", row.Find(sel.DayTile(col, false)))
			if err != nil {
				if !isMissing(err) {
					return err
				}
				s.Logger().Warn("Day tile missing.", zap.Int("index", idx), zap.Stringer("day", d))
				continue
			}
			c, err := schedule.ParseClock(schedule.FormatTime(strings.TrimSpace(text)))
			if err != nil {
				s.Logger().Warn("Day tile has no time.", zap.Int("index", idx), zap.Stringer("day", d), zap.String("text", text))
				continue
			}
			n, err := s.Driver().Count(ctx, row.Find(sel.DayTile(col, true)))
			if err != nil {
				return err
			}
			week.Days[d][c] = n > 0
		}
	}
	return nil
}

// persistSnapshot stores the grid and drops weeks that are no longer shown.
// Storage failures are logged; the read itself succeeded.
func (r *Runner) persistSnapshot(ctx context.Context, weeks []schedule.Week) {
	if r.availability == nil || len(weeks) == 0 {
		return
	}
	if err := r.availability.SaveSnapshot(ctx, weeks); err != nil {
		r.logger.Error("Failed to store availability snapshot.", zap.Error(err))
		return
	}
	labels := make([]string, len(weeks))
	for i, w := range weeks {
		labels[i] = w.Label
	}
	if _, err := r.availability.PruneWeeks(ctx, labels); err != nil {
		r.logger.Error("Failed to prune availability weeks.", zap.Error(err))
	}
}
