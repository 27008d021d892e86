// internal/engine/session.go
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/config"
)

// Session is one driven portal tab plus the primitives every workflow step
// is built from. A session is owned by exactly one workflow and is not safe
// for concurrent use.
type Session struct {
	id     string
	driver browser.Driver
	cfg    config.Interface
	ex     *Executor
	sel    Selectors
	logger *zap.Logger
	retry  RetryConfig
	start  time.Time
}

// Option customizes a Session.
type Option func(*Session)

// WithSleeper replaces the wall-clock sleeper, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(sess *Session) { sess.ex.sleep = s }
}

// WithSelectors overrides the selector table.
func WithSelectors(sel Selectors) Option {
	return func(sess *Session) { sess.sel = sel }
}

// WithID sets the session identifier used in logs.
func WithID(id string) Option {
	return func(sess *Session) { sess.id = id }
}

// NewSession wraps a driver. Closing the session closes the driver.
func NewSession(driver browser.Driver, cfg config.Interface, logger *zap.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		id:     uuid.NewString(),
		driver: driver,
		cfg:    cfg,
		sel:    DefaultSelectors(),
		retry:  RetryFromConfig(cfg.Retry()),
		start:  time.Now(),
	}
	s.ex = NewExecutor(logger, nil)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Named("session").With(zap.String("session_id", s.id))
	s.ex.logger = s.logger.Named("executor")
	return s
}

func (s *Session) ID() string                     { return s.id }
func (s *Session) Driver() browser.Driver         { return s.driver }
func (s *Session) Executor() *Executor            { return s.ex }
func (s *Session) Selectors() Selectors           { return s.sel }
func (s *Session) Config() config.Interface       { return s.cfg }
func (s *Session) Logger() *zap.Logger            { return s.logger }
func (s *Session) RetryPolicy() RetryConfig       { return s.retry }
func (s *Session) Timeouts() config.TimeoutConfig { return s.cfg.Timeouts() }

// Pause waits for d through the executor's sleeper.
func (s *Session) Pause(ctx context.Context, d time.Duration) error {
	return s.ex.Sleep(ctx, d)
}

// notFound converts a driver timeout into an ElementNotFoundError.
func notFound(op string, loc browser.Locator, err error) error {
	if errors.Is(err, browser.ErrTimeout) || errors.Is(err, browser.ErrNotFound) {
		return &ElementNotFoundError{Op: op, Selector: loc.String(), Err: err}
	}
	return err
}

// WaitVisible waits for loc to become visible.
func (s *Session) WaitVisible(ctx context.Context, op string, loc browser.Locator, timeout time.Duration) error {
	if err := s.driver.WaitFor(ctx, loc, browser.StateVisible, timeout); err != nil {
		return notFound(op, loc, err)
	}
	return nil
}

// WaitAttached waits for loc to be present in the DOM.
func (s *Session) WaitAttached(ctx context.Context, op string, loc browser.Locator, timeout time.Duration) error {
	if err := s.driver.WaitFor(ctx, loc, browser.StateAttached, timeout); err != nil {
		return notFound(op, loc, err)
	}
	return nil
}

// Click waits for loc and clicks it, retried with the click policy.
func (s *Session) Click(ctx context.Context, op string, loc browser.Locator, timeout time.Duration) error {
	cfg := s.retry.WithAttempts(s.cfg.Retry().ClickAttempts)
	return s.ex.Do(ctx, op, cfg, func(ctx context.Context) error {
		if err := s.driver.WaitFor(ctx, loc, browser.StateVisible, timeout); err != nil {
			return notFound(op, loc, err)
		}
		return notFound(op, loc, s.driver.Click(ctx, loc))
	})
}

// Fill waits for loc and types text into it, retried with the default policy.
func (s *Session) Fill(ctx context.Context, op string, loc browser.Locator, text string, timeout time.Duration) error {
	return s.ex.Do(ctx, op, s.retry, func(ctx context.Context) error {
		if err := s.driver.WaitFor(ctx, loc, browser.StateVisible, timeout); err != nil {
			return notFound(op, loc, err)
		}
		return notFound(op, loc, s.driver.Fill(ctx, loc, text))
	})
}

// Text reads the text content of loc.
func (s *Session) Text(ctx context.Context, op string, loc browser.Locator) (string, error) {
	text, err := s.driver.TextContent(ctx, loc)
	if err != nil {
		return "", notFound(op, loc, err)
	}
	return text, nil
}

// Open navigates to the portal login page.
func (s *Session) Open(ctx context.Context) error {
	url := s.cfg.Portal().LoginURL()
	return s.ex.Track("navigate_login", func() error {
		if err := s.driver.Navigate(ctx, url); err != nil {
			return &NavigationError{Op: "navigate_login", URL: url, Err: err}
		}
		return nil
	})
}

// Login submits the configured credentials and waits for the home page.
func (s *Session) Login(ctx context.Context) error {
	p := s.cfg.Portal()
	t := s.Timeouts()
	return s.ex.Track("login", func() error {
		if err := s.Fill(ctx, "fill_username", browser.Query(s.sel.Username), p.Username, t.Default); err != nil {
			return err
		}
		if err := s.Fill(ctx, "fill_password", browser.Query(s.sel.Password), p.Password, t.Default); err != nil {
			return err
		}
		if err := s.driver.PressKey(ctx, browser.KeyEnter); err != nil {
			return err
		}
		if err := s.driver.WaitFor(ctx, browser.Query(s.sel.AppointmentsButton), browser.StateVisible, t.Long); err != nil {
			url, _ := s.driver.CurrentURL(ctx)
			return &NavigationError{Op: "login", URL: url, Err: err}
		}
		return nil
	})
}

// OpenAppointments opens the appointment search.
func (s *Session) OpenAppointments(ctx context.Context) error {
	t := s.Timeouts()
	return s.ex.Track("open_appointments", func() error {
		if err := s.Click(ctx, "click_appointments", browser.Query(s.sel.AppointmentsButton), t.Long); err != nil {
			return err
		}
		return s.Pause(ctx, 500*time.Millisecond)
	})
}

// SelectAdvisor picks the configured advisor from the advisor popup.
func (s *Session) SelectAdvisor(ctx context.Context) error {
	t := s.Timeouts()
	return s.ex.Track("select_advisor", func() error {
		if err := s.WaitVisible(ctx, "advisor_popup", browser.Query(s.sel.AdvisorPopup), t.Default); err != nil {
			return err
		}
		return s.Click(ctx, "click_advisor", browser.Query(s.cfg.Portal().AdvisorSelector), t.Default)
	})
}

// EnterPhone searches the customer by an already normalized phone number.
func (s *Session) EnterPhone(ctx context.Context, phone string) error {
	t := s.Timeouts()
	return s.ex.Track("insert_phone_number", func() error {
		if err := s.Fill(ctx, "fill_phone", browser.Query(s.sel.PhoneInput), phone, t.Default); err != nil {
			return err
		}
		if err := s.driver.PressKey(ctx, browser.KeyEnter); err != nil {
			return err
		}
		return s.Pause(ctx, time.Second)
	})
}

// Start runs the shared prefix of every workflow: login, appointment search,
// advisor selection and phone search.
func (s *Session) Start(ctx context.Context, phone string) error {
	steps := []func(context.Context) error{s.Open, s.Login, s.OpenAppointments, s.SelectAdvisor}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return s.EnterPhone(ctx, phone)
}

// WindowedList returns the navigator for a windowed list using the configured tuning.
func (s *Session) WindowedList(container, scroller string) *WindowedList {
	n := s.cfg.Navigator()
	return &WindowedList{
		Container:    container,
		Scroller:     scroller,
		Step:         n.Step,
		MaxAttempts:  n.MaxAttempts,
		Settle:       n.Settle,
		BoundaryPoll: n.BoundaryPoll,
		driver:       s.driver,
		ex:           s.ex,
		logger:       s.logger,
	}
}

// FixedScroller returns the fixed-pixel scroller using the configured tuning.
func (s *Session) FixedScroller(scroller string) *FixedScroller {
	n := s.cfg.Navigator()
	return &FixedScroller{
		Scroller:   scroller,
		Step:       n.FallbackStep,
		MaxRetries: n.FallbackRetries,
		Wait:       n.FallbackWait,
		driver:     s.driver,
		ex:         s.ex,
		logger:     s.logger,
	}
}

// Close closes the driver on a context detached from ctx, so a canceled
// workflow still releases its tab, and logs the duration report.
func (s *Session) Close(ctx context.Context, runErr error) error {
	timeout := s.cfg.Browser().CloseTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	closeCtx, cancel := context.WithTimeout(browser.Detach(ctx), timeout)
	defer cancel()

	s.ex.LogReport(time.Since(s.start), runErr)
	if err := s.driver.Close(closeCtx); err != nil {
		s.logger.Warn("Failed to close browser session.", zap.Error(err))
		return err
	}
	return nil
}
