package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/browser/browsertest"
)

func TestPopupForTitle(t *testing.T) {
	assert.Equal(t, AppointmentConflict{}, popupForTitle("Rendez-vous existants (2)"))
	assert.Equal(t, MultipleVehicles{}, popupForTitle("Véhicules"))
	assert.Equal(t, MultipleAccounts{}, popupForTitle("\nClients\n"))
	assert.Equal(t, Unrecognized{Title: "Campagne"}, popupForTitle("Campagne"))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(AppointmentConflict{}))
	assert.True(t, IsTransient(RevisionAlert{}))
	assert.False(t, IsTransient(MultipleVehicles{}))
	assert.False(t, IsTransient(MultipleAccounts{}))
	assert.False(t, IsTransient(Unrecognized{Title: "x"}))
}

func TestResolve_TerminalKinds(t *testing.T) {
	s, _ := newTestSession(t, browsertest.New())

	err := s.Resolve(context.Background(), MultipleVehicles{})
	assert.ErrorIs(t, err, ErrTerminalPopup)
	assert.Contains(t, err.Error(), "multiple_vehicles")

	err = s.Resolve(context.Background(), Unrecognized{Title: "Campagne"})
	var perr *PopupHandlingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Campagne", perr.Title)
	assert.ErrorIs(t, err, ErrUnrecognizedPopup)
	assert.Equal(t, KindPopupHandling, Kind(err))
}

func TestResolveConflict_MissingButton(t *testing.T) {
	sel := DefaultSelectors()
	d := browsertest.New()
	d.Show(sel.PopupTitle).SetText(sel.PopupTitle, TitleAppointmentConflict)
	s, rec := newTestSession(t, d)

	err := s.Resolve(context.Background(), AppointmentConflict{})
	var perr *PopupHandlingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, TitleAppointmentConflict, perr.Title)

	var enf *ElementNotFoundError
	assert.ErrorAs(t, err, &enf)
	// Two click attempts, one backoff between them.
	assert.Equal(t, 1, rec.Count(s.RetryPolicy().Delay(0)))
}

func TestResolveConflict_TitleReplacedByNextDialog(t *testing.T) {
	sel := DefaultSelectors()
	add := browser.Query(sel.AddAppointmentIcon).Ancestor("button").String()
	d := browsertest.New()
	d.Show(sel.PopupTitle).SetText(sel.PopupTitle, TitleAppointmentConflict)
	d.Show(add).OnClick(add, func(d *browsertest.Driver) {
		d.SetText(sel.PopupTitle, TitleMultipleVehicles)
	})
	s, _ := newTestSession(t, d)

	require.NoError(t, s.Resolve(context.Background(), AppointmentConflict{}))
}

func TestResolveConflict_TitleStays(t *testing.T) {
	sel := DefaultSelectors()
	add := browser.Query(sel.AddAppointmentIcon).Ancestor("button").String()
	d := browsertest.New()
	d.Show(sel.PopupTitle).SetText(sel.PopupTitle, TitleAppointmentConflict)
	d.Show(add)
	s, _ := newTestSession(t, d)

	err := s.Resolve(context.Background(), AppointmentConflict{})
	assert.ErrorIs(t, err, browser.ErrTimeout)
	assert.Equal(t, KindPopupHandling, Kind(err))
}

func TestResolveRevision_StrategyOrder(t *testing.T) {
	sel := DefaultSelectors()
	alert := browser.Query(sel.RevisionAlert)
	aria := alert.Find(sel.RevisionCloseAria).String()
	class := alert.Find(sel.RevisionCloseClass).String()

	tests := []struct {
		name      string
		arrange   func(d *browsertest.Driver)
		wantLast  string
		wantSteps int
	}{
		{
			name: "escape",
			arrange: func(d *browsertest.Driver) {
				d.OnKey(browser.KeyEscape, func(d *browsertest.Driver) { d.Hide(sel.RevisionAlert) })
			},
			wantLast:  "key Escape",
			wantSteps: 1,
		},
		{
			name: "aria close button",
			arrange: func(d *browsertest.Driver) {
				d.Show(aria).OnClick(aria, func(d *browsertest.Driver) { d.Hide(sel.RevisionAlert) })
			},
			wantLast:  "click " + aria,
			wantSteps: 2,
		},
		{
			name: "close class button",
			arrange: func(d *browsertest.Driver) {
				d.Show(class).OnClick(class, func(d *browsertest.Driver) { d.Hide(sel.RevisionAlert) })
			},
			wantLast:  "click " + class,
			wantSteps: 2,
		},
		{
			name: "outside click",
			arrange: func(d *browsertest.Driver) {
				d.OnClick("@10,10", func(d *browsertest.Driver) { d.Hide(sel.RevisionAlert) })
			},
			wantLast:  "click @10,10",
			wantSteps: 2,
		},
		{
			name:      "nothing works",
			arrange:   func(d *browsertest.Driver) {},
			wantLast:  "click @10,10",
			wantSteps: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := browsertest.New().Show(sel.RevisionAlert)
			tt.arrange(d)
			s, rec := newTestSession(t, d)

			require.NoError(t, s.Resolve(context.Background(), RevisionAlert{}))
			journal := d.Journal()
			require.Len(t, journal, tt.wantSteps)
			assert.Equal(t, tt.wantLast, journal[len(journal)-1])
			assert.Equal(t, "key Escape", journal[0])
			assert.NotZero(t, rec.Count(revisionSettle))
		})
	}
}

func TestResolveRevision_ClosedDriver(t *testing.T) {
	d := browsertest.New()
	require.NoError(t, d.Close(context.Background()))
	s, _ := newTestSession(t, d)

	err := s.Resolve(context.Background(), RevisionAlert{})
	assert.True(t, errors.Is(err, browser.ErrClosed))
}
