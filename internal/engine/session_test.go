package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/browser/browsertest"
)

// portalHome arranges a page where every step of the login skeleton succeeds.
func portalHome(d *browsertest.Driver) *browsertest.Driver {
	sel := DefaultSelectors()
	advisor := testConfig().Portal().AdvisorSelector
	d.Show(sel.Username, sel.Password, sel.PhoneInput, sel.AdvisorPopup, advisor)
	d.OnKey(browser.KeyEnter, func(d *browsertest.Driver) { d.Show(sel.AppointmentsButton) })
	return d
}

func TestSession_Start(t *testing.T) {
	defer goleak.VerifyNone(t)
	sel := DefaultSelectors()
	d := portalHome(browsertest.New())
	s, rec := newTestSession(t, d)

	require.NoError(t, s.Start(context.Background(), "5145550100"))

	advisor := testConfig().Portal().AdvisorSelector
	assert.Equal(t, []string{
		"navigate " + testBaseURL + "login",
		"fill " + sel.Username + "=advisor",
		"fill " + sel.Password + "=secret",
		"key Enter",
		"click " + sel.AppointmentsButton,
		"click " + advisor,
		"fill " + sel.PhoneInput + "=5145550100",
		"key Enter",
	}, d.Journal())
	assert.Equal(t, "5145550100", d.Value(sel.PhoneInput))
	assert.Equal(t, 1, rec.Count(time.Second), "settles after the phone search")

	report := s.Executor().Report()
	for _, op := range []string{"navigate_login", "login", "open_appointments", "select_advisor", "insert_phone_number"} {
		assert.Contains(t, report, op)
	}
}

func TestSession_LoginFailureIsNavigationError(t *testing.T) {
	sel := DefaultSelectors()
	d := browsertest.New().Show(sel.Username, sel.Password)
	s, _ := newTestSession(t, d)

	err := s.Start(context.Background(), "5145550100")
	var nav *NavigationError
	require.ErrorAs(t, err, &nav)
	assert.Equal(t, "login", nav.Op)
	assert.Equal(t, testBaseURL+"login", nav.URL)
	assert.ErrorIs(t, err, browser.ErrTimeout)
}

func TestSession_MissingFieldIsRetriedThenReported(t *testing.T) {
	sel := DefaultSelectors()
	d := browsertest.New()
	s, rec := newTestSession(t, d)

	err := s.Start(context.Background(), "5145550100")
	var enf *ElementNotFoundError
	require.ErrorAs(t, err, &enf)
	assert.Equal(t, sel.Username, enf.Selector)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, rec.Waits())
}

func TestSession_ClickUsesClickPolicy(t *testing.T) {
	d := browsertest.New()
	s, rec := newTestSession(t, d)

	err := s.Click(context.Background(), "click_missing", browser.Query("#missing"), time.Second)
	require.Error(t, err)
	assert.Len(t, rec.Waits(), 1, "two attempts, one backoff")
}

func TestSession_CloseSurvivesCanceledContext(t *testing.T) {
	d := browsertest.New()
	s, _ := newTestSession(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Close(ctx, context.Canceled))
	assert.True(t, d.Closed())
}

func TestSession_Options(t *testing.T) {
	sel := DefaultSelectors()
	sel.PhoneInput = "#phone"
	s := NewSession(browsertest.New(), testConfig(), nil, WithSelectors(sel), WithID("abc"))
	assert.Equal(t, "abc", s.ID())
	assert.Equal(t, "#phone", s.Selectors().PhoneInput)

	other := NewSession(browsertest.New(), testConfig(), nil)
	assert.NotEmpty(t, other.ID())
	assert.NotEqual(t, other.ID(), NewSession(browsertest.New(), testConfig(), nil).ID())
}
