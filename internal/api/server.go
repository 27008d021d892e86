// Package api exposes the portal workflows and the stored bookings and
// availability snapshots over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/sdsbook/internal/config"
	"github.com/xkilldash9x/sdsbook/internal/schedule"
	"github.com/xkilldash9x/sdsbook/internal/store"
	"github.com/xkilldash9x/sdsbook/internal/workflow"
)

// Workflows runs the browser-driven workflows. Implemented by *workflow.Runner.
type Workflows interface {
	Lookup(ctx context.Context, req workflow.LookupRequest) (*workflow.LookupResult, error)
	Availability(ctx context.Context, req workflow.AvailabilityRequest) (*workflow.AvailabilityResult, error)
	Book(ctx context.Context, req workflow.AppointmentRequest) (*workflow.AppointmentOutcome, error)
}

// Appointments reads and deletes recorded bookings. Implemented by *store.Store.
type Appointments interface {
	AppointmentByID(ctx context.Context, id int64) (store.Appointment, error)
	AppointmentsByPhone(ctx context.Context, phone string) ([]store.Appointment, error)
	DeleteAppointmentsByPhone(ctx context.Context, phone string) (int64, error)
	DeleteAppointmentsByPhoneAndDate(ctx context.Context, phone string, date time.Time) (int64, error)
}

// Snapshots answers availability queries from stored snapshots. Implemented by *store.Store.
type Snapshots interface {
	AvailableTimeframes(ctx context.Context, days []time.Weekday, r schedule.Range, now time.Time) ([]schedule.Timeframe, error)
}

// Server is the HTTP front of the service.
type Server struct {
	cfg          config.Interface
	logger       *zap.Logger
	workflows    Workflows
	appointments Appointments
	snapshots    Snapshots
	limiter      *rate.Limiter
	now          func() time.Time

	httpServer *http.Server
}

// Option customizes a Server.
type Option func(*Server)

// WithAppointments enables the /appointments routes.
func WithAppointments(a Appointments) Option {
	return func(s *Server) { s.appointments = a }
}

// WithSnapshots enables the /availability route.
func WithSnapshots(sn Snapshots) Option {
	return func(s *Server) { s.snapshots = sn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates the API server. Routes whose backing store is not
// configured answer 503.
func NewServer(cfg config.Interface, wf Workflows, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := cfg.Server()
	limit := rate.Limit(sc.RateLimit)
	if sc.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := sc.RateBurst
	if burst < 1 {
		burst = 1
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger.Named("api"),
		workflows: wf,
		limiter:   rate.NewLimiter(limit, burst),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestIDMiddleware)
	r.Use(s.accessLogMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.rateLimitMiddleware)

		r.Route("/scraper", func(r chi.Router) {
			r.Get("/get_cars", s.handleGetCars)
			r.Post("/availability", s.handleAvailability)
			r.Post("/make_appointment", s.handleMakeAppointment)
		})
		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", s.handleListAppointments)
			r.Delete("/", s.handleDeleteAppointments)
			r.Get("/{id}", s.handleGetAppointment)
		})
		r.Get("/availability", s.handleStoredAvailability)
	})
	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	sc := s.cfg.Server()
	s.httpServer = &http.Server{
		Addr:              sc.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       sc.ReadTimeout,
		ReadHeaderTimeout: sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info("API server starting.", zap.String("address", sc.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err, failed := <-errCh:
		if failed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error.", zap.Error(err))
		return err
	}
	<-errCh
	s.logger.Info("API server stopped.")
	return nil
}
