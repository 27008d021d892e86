package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/engine"
	"github.com/xkilldash9x/sdsbook/internal/vehicle"
)

// stateFailure turns a page state no workflow can continue from into a Failure.
func stateFailure(state engine.PageState) *Failure {
	switch st := state.(type) {
	case engine.StateNotFound:
		msg := st.Message
		if msg == "" {
			msg = "customer not found"
		}
		return fail(KindCustomerNotFound, "%s", msg)
	case engine.StateUnknown:
		return fail(KindUnknownPage, "no definitive page state (at %s)", st.URL)
	case engine.StatePopup:
		if u, ok := st.Popup.(engine.Unrecognized); ok {
			return fail(KindUnrecognizedPopup, "unrecognized popup %q", u.Title)
		}
		return fail(engine.KindPopupHandling, "unexpected popup %s", st.Popup.Kind())
	default:
		return fail(engine.KindInternal, "unexpected page state %s", state.Name())
	}
}

// pickVehicle clicks the entry of the vehicles popup matching desc. Entries
// with the same label are treated as one vehicle; distinct labels matching
// desc make the choice ambiguous.
func pickVehicle(ctx context.Context, s *engine.Session, desc vehicle.Descriptor) error {
	list := browser.Query(s.Selectors().CarsList)
	n, err := s.Driver().Count(ctx, list)
	if err != nil {
		return err
	}
	pick := -1
	var labels []string
	for i := 0; i < n; i++ {
		label, err := s.Text(ctx, "read_vehicle_entry", list.Nth(i))
		if err != nil {
			return err
		}
		label = strings.Join(strings.Fields(label), " ")
		if !desc.Matches(label) {
			continue
		}
		if pick < 0 {
			pick = i
		}
		labels = append(labels, label)
	}
	switch {
	case pick < 0:
		return fail(KindVehicleNotFound, "no vehicle matching %q among %d", desc.String(), n)
	case len(labels) > 1:
		for _, l := range labels[1:] {
			if !strings.EqualFold(l, labels[0]) {
				return fail(engine.KindValidation, "vehicle %q is ambiguous: matches %q", desc.String(), labels)
			}
		}
		s.Logger().Warn("Several identical vehicle entries match, picking the first.",
			zap.String("vehicle", labels[0]), zap.Int("matches", len(labels)))
	}
	s.Logger().Info("Picking vehicle.", zap.String("vehicle", labels[0]), zap.Int("index", pick))
	return s.Click(ctx, "click_vehicle", list.Nth(pick), s.Timeouts().Default)
}

// reachVehicle settles the page after the phone search onto a single vehicle
// page. A vehicles popup is answered with choose; every other non-single
// state ends the workflow.
func reachVehicle(ctx context.Context, s *engine.Session, choose func(context.Context, *engine.Session) error) error {
	rounds := s.Config().Schedule().PopupDrainRounds
	if rounds <= 0 {
		rounds = 3
	}
	for round := 0; round <= rounds; round++ {
		state, err := s.Settle(ctx)
		if err != nil {
			return err
		}
		switch st := state.(type) {
		case engine.StateSingleResult:
			return nil
		case engine.StatePopup:
			if _, ok := st.Popup.(engine.MultipleVehicles); ok && choose != nil {
				if err := choose(ctx, s); err != nil {
					return err
				}
				if err := s.Pause(ctx, 500*time.Millisecond); err != nil {
					return err
				}
				continue
			}
		}
		return stateFailure(state)
	}
	return fail(engine.KindPopupHandling, "vehicle page not reached after %d popups", rounds)
}

// extractVehicle reads the vehicle shown on the single vehicle page.
func extractVehicle(ctx context.Context, s *engine.Session) (vehicle.Record, error) {
	sel := s.Selectors()
	t := s.Timeouts()

	var rec vehicle.Record
	err := s.Executor().Track("extract_vehicle", func() error {
		info := browser.Query(sel.VehicleInfo)
		if err := s.WaitAttached(ctx, "vehicle_info", info, t.Medium); err != nil {
			return err
		}
		summary, err := s.Text(ctx, "read_vehicle_summary", info.Nth(sel.VehicleSummaryNth))
		if err != nil {
			return err
		}
		maker, model, year, err := vehicle.ParseSummary(summary)
		if err != nil {
			return fmt.Errorf("read_vehicle_summary: %w", err)
		}
		rec = vehicle.Record{Maker: maker, Model: model, Year: year}

		if cyl, err := s.Text(ctx, "read_cylinders", browser.Query(sel.Cylinders)); err == nil {
			rec.Cylinders = strings.TrimSpace(cyl)
		} else if !isMissing(err) {
			return err
		}

		hybrid, err := s.Driver().Count(ctx, browser.Query(sel.HybridMarker))
		if err != nil {
			return err
		}
		rec.IsHybrid = hybrid > 0
		return nil
	})
	if err != nil {
		return vehicle.Record{}, err
	}

	history, err := readHistory(ctx, s)
	switch {
	case err == nil:
		rec.History = history
	case ctx.Err() != nil || errors.Is(err, browser.ErrClosed):
		return vehicle.Record{}, err
	default:
		s.Logger().Warn("Service history unavailable.", zap.Error(err))
	}
	return rec, nil
}

// readHistory opens the service-history dialog, reads its windowed list
// and closes it. A page without a history button has no history.
func readHistory(ctx context.Context, s *engine.Session) (map[string]vehicle.HistoryEntry, error) {
	sel := s.Selectors()
	t := s.Timeouts()
	button := browser.Query(sel.HistoryButton)
	n, err := s.Driver().Count(ctx, button)
	if err != nil || n == 0 {
		return nil, err
	}

	var history map[string]vehicle.HistoryEntry
	err = s.Executor().Track("read_service_history", func() error {
		if err := s.Click(ctx, "open_service_history", button, t.Default); err != nil {
			return err
		}
		dialog := browser.Query(sel.HistoryDialog)
		if err := s.WaitVisible(ctx, "service_history_dialog", dialog, t.Default); err != nil {
			return err
		}
		rows, err := collectHistoryRows(ctx, s, dialog)
		if err != nil {
			return err
		}
		history = vehicle.GroupHistory(rows)
		return closeHistory(ctx, s, dialog)
	})
	return history, err
}

// collectHistoryRows scrolls the history list one step at a time and merges
// the rendered rows by data-index until a step renders nothing new.
func collectHistoryRows(ctx context.Context, s *engine.Session, dialog browser.Locator) ([]vehicle.HistoryRow, error) {
	nav := s.Config().Navigator()
	seen := make(map[int]bool)
	var rows []vehicle.HistoryRow
	for step := 0; ; step++ {
		html, err := s.Driver().OuterHTML(ctx, dialog)
		if err != nil {
			return nil, err
		}
		window, err := vehicle.ParseHistoryRows(html)
		if err != nil {
			return nil, err
		}
		added := 0
		for _, row := range window {
			if row.Index < 0 {
				// Not windowed: the snapshot is the whole list.
				return window, nil
			}
			if !seen[row.Index] {
				seen[row.Index] = true
				rows = append(rows, row)
				added++
			}
		}
		if added == 0 || step >= nav.MaxAttempts {
			s.Logger().Debug("Service history read.", zap.Int("rows", len(rows)), zap.Int("steps", step))
			return rows, nil
		}
		if err := s.Driver().ScrollBy(ctx, s.Selectors().HistoryScroller, nav.Step); err != nil {
			if isMissing(err) {
				return rows, nil
			}
			return nil, err
		}
		if err := s.Pause(ctx, nav.Settle); err != nil {
			return nil, err
		}
	}
}

// closeHistory dismisses the dialog with Escape, falling back to its close
// button when Escape leaves it open.
func closeHistory(ctx context.Context, s *engine.Session, dialog browser.Locator) error {
	t := s.Timeouts()
	if err := s.Driver().PressKey(ctx, browser.KeyEscape); err != nil {
		return err
	}
	err := s.Driver().WaitFor(ctx, dialog, browser.StateHidden, t.Quick)
	if err == nil || !isMissing(err) {
		return err
	}
	closeButton := browser.Query(s.Selectors().DialogClose)
	if n, cerr := s.Driver().Count(ctx, closeButton); cerr != nil || n == 0 {
		return cerr
	}
	if err := s.Click(ctx, "close_service_history", closeButton, t.Quick); err != nil {
		return err
	}
	if err := s.Driver().WaitFor(ctx, dialog, browser.StateHidden, t.Quick); err != nil && !isMissing(err) {
		return err
	}
	return nil
}

// openCalendar walks the booking wizard from the vehicle page to the
// schedule grid with serviceCode as the only operation.
func openCalendar(ctx context.Context, s *engine.Session, serviceCode string, clickBody bool) error {
	sel := s.Selectors()
	t := s.Timeouts()
	return s.Executor().Track("open_calendar", func() error {
		if err := s.WaitVisible(ctx, "car_page", browser.Query(sel.CarPage), t.Medium); err != nil {
			return err
		}
		if err := s.Click(ctx, "next_step_vehicle", browser.Query(sel.NextStep), t.Medium); err != nil {
			return err
		}
		if err := s.Click(ctx, "add_operation", browser.Query(sel.AddOperation), t.Medium); err != nil {
			return err
		}
		if err := s.Fill(ctx, "fill_operation", browser.Query(sel.OperationInput), serviceCode, t.Medium); err != nil {
			return err
		}
		if err := s.Driver().PressKey(ctx, browser.KeyEnter); err != nil {
			return err
		}
		if clickBody {
			if err := s.Click(ctx, "blur_operation", browser.Query("body"), t.Quick); err != nil {
				return err
			}
		}
		if err := s.Click(ctx, "next_step_operations", browser.Query(sel.NextStep), t.Medium); err != nil {
			return err
		}
		if err := s.WaitVisible(ctx, "calendar", browser.Query(sel.CalendarNext), t.Navigation); err != nil {
			return err
		}
		return s.Pause(ctx, time.Second)
	})
}

// isMissing reports a driver timeout or missing element.
func isMissing(err error) bool {
	var nf *engine.ElementNotFoundError
	return errors.As(err, &nf) || errors.Is(err, browser.ErrTimeout) || errors.Is(err, browser.ErrNotFound)
}
