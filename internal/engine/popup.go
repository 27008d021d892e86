// internal/engine/popup.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/browser"
)

// Popup is a modal dialog recognized by the classifier. The set is closed;
// Unrecognized carries any title that matched no known kind.
type Popup interface {
	Kind() string
	popup()
}

type (
	// AppointmentConflict: the customer already has open appointments.
	AppointmentConflict struct{}
	// RevisionAlert: the vehicle page opened a service-campaign notice.
	RevisionAlert struct{}
	// MultipleVehicles: the phone matches one customer with several vehicles.
	MultipleVehicles struct{}
	// MultipleAccounts: the phone matches several customer accounts.
	MultipleAccounts struct{}
	// Unrecognized is any other dialog.
	Unrecognized struct{ Title string }
)

func (AppointmentConflict) Kind() string { return "appointment_conflict" }
func (RevisionAlert) Kind() string       { return "revision_alert" }
func (MultipleVehicles) Kind() string    { return "multiple_vehicles" }
func (MultipleAccounts) Kind() string    { return "multiple_accounts" }
func (Unrecognized) Kind() string        { return "unrecognized" }

func (AppointmentConflict) popup() {}
func (RevisionAlert) popup()       {}
func (MultipleVehicles) popup()    {}
func (MultipleAccounts) popup()    {}
func (Unrecognized) popup()        {}

// Titles the portal shows on its dialogs.
const (
	TitleAppointmentConflict = "Rendez-vous existants"
	TitleMultipleVehicles    = "Véhicules"
	TitleMultipleAccounts    = "Clients"
)

var (
	// ErrTerminalPopup is returned for dialogs that need a business decision.
	ErrTerminalPopup = errors.New("popup requires a caller decision")
	// ErrUnrecognizedPopup is the cause carried for unknown dialogs.
	ErrUnrecognizedPopup = errors.New("unrecognized popup")
)

func popupForTitle(title string) Popup {
	title = strings.TrimSpace(title)
	switch {
	case strings.Contains(title, TitleAppointmentConflict):
		return AppointmentConflict{}
	case strings.Contains(title, TitleMultipleVehicles):
		return MultipleVehicles{}
	case strings.Contains(title, TitleMultipleAccounts):
		return MultipleAccounts{}
	default:
		return Unrecognized{Title: title}
	}
}

// IsTransient reports whether the engine resolves p on its own.
func IsTransient(p Popup) bool {
	switch p.(type) {
	case AppointmentConflict, RevisionAlert:
		return true
	default:
		return false
	}
}

const (
	conflictDetachWait = 2 * time.Second
	conflictPause      = 500 * time.Millisecond
	revisionSettle     = 300 * time.Millisecond
	revisionCheck      = 500 * time.Millisecond
)

// Resolve runs the handler for p.
func (s *Session) Resolve(ctx context.Context, p Popup) error {
	switch p := p.(type) {
	case AppointmentConflict:
		return s.resolveConflict(ctx)
	case RevisionAlert:
		_, err := s.resolveRevision(ctx)
		return err
	case MultipleVehicles, MultipleAccounts:
		return fmt.Errorf("%w: %s", ErrTerminalPopup, p.Kind())
	case Unrecognized:
		return &PopupHandlingError{Op: "resolve_popup", Title: p.Title, Err: ErrUnrecognizedPopup}
	default:
		return &PopupHandlingError{Op: "resolve_popup", Err: fmt.Errorf("unhandled popup kind %T", p)}
	}
}

// resolveConflict keeps the existing appointments and continues with a new one.
func (s *Session) resolveConflict(ctx context.Context) error {
	const op = "resolve_appointment_conflict"
	return s.ex.Track(op, func() error {
		add := browser.Query(s.sel.AddAppointmentIcon).Ancestor("button")
		if err := s.Click(ctx, "click_add_appointment", add, s.Timeouts().Default); err != nil {
			return &PopupHandlingError{Op: op, Title: TitleAppointmentConflict, Err: err}
		}
		if err := s.Pause(ctx, conflictPause); err != nil {
			return err
		}

		title := browser.Query(s.sel.PopupTitle)
		werr := s.driver.WaitFor(ctx, title, browser.StateDetached, conflictDetachWait)
		if werr == nil {
			return nil
		}
		if !errors.Is(werr, browser.ErrTimeout) {
			return werr
		}
		// The next dialog may reuse the title element.
		text, err := s.driver.TextContent(ctx, title)
		if err == nil && !strings.Contains(text, TitleAppointmentConflict) {
			return nil
		}
		return &PopupHandlingError{Op: op, Title: TitleAppointmentConflict, Err: werr}
	})
}

type dismissStrategy struct {
	name string
	run  func(ctx context.Context) error
}

// resolveRevision tries each dismissal in turn until the alert is hidden and
// reports whether one worked. An alert that survives every strategy is
// logged and left in place; it is not an error.
func (s *Session) resolveRevision(ctx context.Context) (bool, error) {
	alert := browser.Query(s.sel.RevisionAlert)
	strategies := []dismissStrategy{
		{"escape", func(ctx context.Context) error { return s.driver.PressKey(ctx, browser.KeyEscape) }},
		{"aria_close", func(ctx context.Context) error { return s.driver.Click(ctx, alert.Find(s.sel.RevisionCloseAria)) }},
		{"close_class", func(ctx context.Context) error { return s.driver.Click(ctx, alert.Find(s.sel.RevisionCloseClass)) }},
		{"outside_click", func(ctx context.Context) error { return s.driver.ClickAt(ctx, 10, 10) }},
	}

	dismissed := false
	err := s.ex.Track("resolve_revision_alert", func() error {
		for _, st := range strategies {
			if err := st.run(ctx); err != nil {
				if ctx.Err() != nil || errors.Is(err, browser.ErrClosed) {
					return err
				}
				s.logger.Debug("Revision alert strategy failed.", zap.String("strategy", st.name), zap.Error(err))
				continue
			}
			if err := s.Pause(ctx, revisionSettle); err != nil {
				return err
			}
			ok, err := probe(s.driver.WaitFor(ctx, alert, browser.StateHidden, revisionCheck))
			if err != nil {
				return err
			}
			if ok {
				s.logger.Info("Dismissed revision alert.", zap.String("strategy", st.name))
				dismissed = true
				return nil
			}
		}
		s.logger.Warn("Revision alert could not be dismissed; continuing.")
		return nil
	})
	return dismissed, err
}
