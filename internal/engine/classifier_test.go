package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/browser/browsertest"
)

const singleResultURL = testBaseURL + "t1/appointments-qab/2"

func TestClassify_Precedence(t *testing.T) {
	defer goleak.VerifyNone(t)
	sel := DefaultSelectors()

	tests := []struct {
		name    string
		arrange func(d *browsertest.Driver)
		want    PageState
	}{
		{
			name: "banner wins over a stray modal",
			arrange: func(d *browsertest.Driver) {
				d.Show(sel.NotFoundBanner).SetText(sel.NotFoundBanner, "  Aucun client trouvé ")
				d.Show(sel.PopupTitle).SetText(sel.PopupTitle, "Véhicules")
				d.SetURL(singleResultURL).SetCount(sel.LastService, 1)
			},
			want: StateNotFound{Message: "Aucun client trouvé"},
		},
		{
			name: "modal wins over the url",
			arrange: func(d *browsertest.Driver) {
				d.Show(sel.PopupTitle).SetText(sel.PopupTitle, "Clients")
				d.SetURL(singleResultURL).SetCount(sel.LastService, 1)
			},
			want: StatePopup{Popup: MultipleAccounts{}},
		},
		{
			name: "conflict title",
			arrange: func(d *browsertest.Driver) {
				d.Show(sel.PopupTitle).SetText(sel.PopupTitle, "Rendez-vous existants")
			},
			want: StatePopup{Popup: AppointmentConflict{}},
		},
		{
			name: "vehicles title",
			arrange: func(d *browsertest.Driver) {
				d.Show(sel.PopupTitle).SetText(sel.PopupTitle, "Véhicules")
			},
			want: StatePopup{Popup: MultipleVehicles{}},
		},
		{
			name: "unknown title",
			arrange: func(d *browsertest.Driver) {
				d.Show(sel.PopupTitle).SetText(sel.PopupTitle, " Rappel de sécurité ")
			},
			want: StatePopup{Popup: Unrecognized{Title: "Rappel de sécurité"}},
		},
		{
			name: "revision alert without title",
			arrange: func(d *browsertest.Driver) {
				d.Show(sel.RevisionAlert)
			},
			want: StatePopup{Popup: RevisionAlert{}},
		},
		{
			name: "single result by selector",
			arrange: func(d *browsertest.Driver) {
				d.SetURL(singleResultURL).SetCount(sel.LastService, 1)
			},
			want: StateSingleResult{URL: singleResultURL},
		},
		{
			name: "single result url without marker",
			arrange: func(d *browsertest.Driver) {
				d.SetURL(singleResultURL)
			},
			want: StateUnknown{URL: singleResultURL},
		},
		{
			name: "nothing matches",
			arrange: func(d *browsertest.Driver) {
				d.SetURL(testBaseURL + "t1/appointments-qab/1")
			},
			want: StateUnknown{URL: testBaseURL + "t1/appointments-qab/1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := browsertest.New()
			tt.arrange(d)
			s, _ := newTestSession(t, d)

			got, err := s.Classify(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_MarkerStrategies(t *testing.T) {
	for _, strategy := range []string{markerExactText, markerFuzzyText, markerPageScan} {
		t.Run(strategy, func(t *testing.T) {
			d := browsertest.New().SetURL(singleResultURL)
			var asked []string
			d.OnEvaluate(func(script string) (any, error) {
				for _, s := range []string{markerExactText, markerFuzzyText, markerPageScan} {
					if strings.HasPrefix(script, "/* "+s+" */") {
						asked = append(asked, s)
						return s == strategy, nil
					}
				}
				return nil, errors.New("unexpected script")
			})
			s, _ := newTestSession(t, d)

			got, err := s.Classify(context.Background())
			require.NoError(t, err)
			assert.Equal(t, StateSingleResult{URL: singleResultURL}, got)
			assert.Equal(t, strategy, asked[len(asked)-1], "stops at the first strategy that matches")
		})
	}
}

func TestMarkerScript_QuotesText(t *testing.T) {
	script := markerScript(markerFuzzyText, `Dernier "service"`)
	assert.Contains(t, script, `"Dernier \"service\""`)
	assert.Contains(t, script, "normalize(\"NFD\")")
}

func TestClassify_WaitsForRouting(t *testing.T) {
	sel := DefaultSelectors()
	d := browsertest.New().SetURL(testBaseURL + "t1/appointments-qab")
	d.SetCount(sel.LastService, 1)
	s, _ := newTestSession(t, d)

	got, err := s.Classify(context.Background())
	require.NoError(t, err)
	assert.IsType(t, StateUnknown{}, got)

	d.SetURL(singleResultURL + "?vehicle=1")
	got, err = s.Classify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSingleResult{URL: singleResultURL + "?vehicle=1"}, got)
}

func TestClassify_ClosedDriver(t *testing.T) {
	d := browsertest.New()
	require.NoError(t, d.Close(context.Background()))
	s, _ := newTestSession(t, d)

	_, err := s.Classify(context.Background())
	assert.ErrorIs(t, err, browser.ErrClosed)
}

func TestSettle_ResolvesConflictThenLandsOnVehicle(t *testing.T) {
	defer goleak.VerifyNone(t)
	sel := DefaultSelectors()
	add := browser.Query(sel.AddAppointmentIcon).Ancestor("button").String()

	d := browsertest.New().SetURL(testBaseURL + "t1/appointments-qab/1")
	d.Show(sel.PopupTitle).SetText(sel.PopupTitle, TitleAppointmentConflict)
	d.Show(add).OnClick(add, func(d *browsertest.Driver) {
		d.Remove(sel.PopupTitle)
		d.SetURL(singleResultURL).SetCount(sel.LastService, 1)
	})
	s, _ := newTestSession(t, d)

	got, err := s.Settle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSingleResult{URL: singleResultURL}, got)
	assert.Equal(t, 1, d.Actions("click "+add))
}

func TestSettle_ReturnsTerminalPopups(t *testing.T) {
	sel := DefaultSelectors()
	d := browsertest.New()
	d.Show(sel.PopupTitle).SetText(sel.PopupTitle, TitleMultipleVehicles)
	s, _ := newTestSession(t, d)

	got, err := s.Settle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePopup{Popup: MultipleVehicles{}}, got)
	assert.Zero(t, d.Actions("click"))
}

func TestSettle_StuckRevisionAlertFallsThroughToPage(t *testing.T) {
	sel := DefaultSelectors()
	// An alert that nothing dismisses, over a vehicle page.
	d := browsertest.New().SetURL(singleResultURL).SetCount(sel.LastService, 1)
	d.Show(sel.RevisionAlert)
	s, _ := newTestSession(t, d)

	got, err := s.Settle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSingleResult{URL: singleResultURL}, got)
	assert.Equal(t, 1, d.Actions("key Escape"), "every strategy is tried once, then the alert is ignored")
	assert.Equal(t, 1, d.Actions("click @10,10"))
}

func TestSettle_StuckRevisionAlertElsewhereIsUnknown(t *testing.T) {
	sel := DefaultSelectors()
	d := browsertest.New().SetURL(testBaseURL + "t1/somewhere")
	d.Show(sel.RevisionAlert)
	s, _ := newTestSession(t, d)

	got, err := s.Settle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateUnknown{URL: testBaseURL + "t1/somewhere"}, got)
}

func TestSettle_DismissedRevisionAlert(t *testing.T) {
	sel := DefaultSelectors()
	d := browsertest.New().SetURL(singleResultURL).SetCount(sel.LastService, 1)
	d.Show(sel.RevisionAlert).OnKey(browser.KeyEscape, func(d *browsertest.Driver) { d.Hide(sel.RevisionAlert) })
	s, _ := newTestSession(t, d)

	got, err := s.Settle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSingleResult{URL: singleResultURL}, got)
	assert.Equal(t, 1, d.Actions("key Escape"))
	assert.Zero(t, d.Actions("click @10,10"))
}
