// Package workflow drives the three portal workflows (vehicle lookup,
// availability check and appointment booking) on top of engine sessions.
//
// Every call launches its own browser session, never shares it, and always
// closes it. Errors leave this package as *Failure values only.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/config"
	"github.com/xkilldash9x/sdsbook/internal/engine"
	"github.com/xkilldash9x/sdsbook/internal/schedule"
	"github.com/xkilldash9x/sdsbook/internal/store"
	"github.com/xkilldash9x/sdsbook/internal/vehicle"
)

// ServiceCatalog maps vehicles onto bookable service codes.
type ServiceCatalog interface {
	OilTypes(ctx context.Context, model string, year int, hybrid bool, cylinders int) ([]store.OilType, error)
	ServiceFor(ctx context.Context, oil string, suv bool, cylinders int) (vehicle.Service, error)
	TierServices(ctx context.Context, model string, cylinders, year int, tier string) ([]vehicle.Service, error)
}

// AppointmentStore records confirmed bookings.
type AppointmentStore interface {
	InsertAppointment(ctx context.Context, a store.Appointment) (int64, error)
}

// AvailabilityStore records availability snapshots.
type AvailabilityStore interface {
	SaveSnapshot(ctx context.Context, weeks []schedule.Week) error
	PruneWeeks(ctx context.Context, keep []string) (int64, error)
}

// Runner runs workflows, each in its own browser session, capping how many
// sessions are open at once.
type Runner struct {
	cfg      config.Interface
	launcher browser.Launcher
	logger   *zap.Logger

	catalog      ServiceCatalog
	appointments AppointmentStore
	availability AvailabilityStore

	sem         *semaphore.Weighted
	now         func() time.Time
	sessionOpts []engine.Option
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithCatalog enables service enrichment of lookups.
func WithCatalog(c ServiceCatalog) RunnerOption {
	return func(r *Runner) { r.catalog = c }
}

// WithAppointmentStore persists confirmed bookings.
func WithAppointmentStore(s AppointmentStore) RunnerOption {
	return func(r *Runner) { r.appointments = s }
}

// WithAvailabilityStore persists availability snapshots.
func WithAvailabilityStore(s AvailabilityStore) RunnerOption {
	return func(r *Runner) { r.availability = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithSessionOptions is applied to every session the runner creates.
func WithSessionOptions(opts ...engine.Option) RunnerOption {
	return func(r *Runner) { r.sessionOpts = append(r.sessionOpts, opts...) }
}

// NewRunner creates a runner that launches sessions through launcher.
func NewRunner(cfg config.Interface, launcher browser.Launcher, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := int64(cfg.Browser().MaxSessions)
	if limit < 1 {
		limit = 1
	}
	r := &Runner{
		cfg:      cfg,
		launcher: launcher,
		logger:   logger.Named("workflow"),
		sem:      semaphore.NewWeighted(limit),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// clock returns the current time in the portal's time zone.
func (r *Runner) clock() time.Time {
	return r.now().In(r.cfg.Schedule().LoadLocation())
}

// withSession launches a session, runs fn on it and closes it on every path.
func (r *Runner) withSession(ctx context.Context, workflow string, fn func(*engine.Session) error) (err error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)

	logger := r.logger.With(zap.String("workflow", workflow))
	driver, err := r.launcher.NewDriver(ctx)
	if err != nil {
		logger.Error("Browser launch failed.", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	sess := engine.NewSession(driver, r.cfg, logger, r.sessionOpts...)
	metricActiveSessions.Inc()
	defer func() {
		metricActiveSessions.Dec()
		if cerr := sess.Close(ctx, err); cerr != nil && err == nil && !errors.Is(cerr, browser.ErrClosed) {
			logger.Warn("Session did not close cleanly.", zap.Error(cerr))
		}
	}()

	return fn(sess)
}

// finish converts err into a Failure and records the outcome.
func (r *Runner) finish(workflow string, err error) error {
	if err == nil {
		recordRun(workflow, "ok")
		return nil
	}
	f := AsFailure(err)
	recordRun(workflow, f.Kind)
	r.logger.Warn("Workflow failed.", zap.String("workflow", workflow), zap.String("error", f.Kind), zap.String("message", f.Message))
	return f
}
