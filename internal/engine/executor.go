// internal/engine/executor.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/config"
)

// RetryConfig bounds how a flaky operation is retried.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Exponential bool
}

// Delay is the wait after the failed attempt n (0-indexed).
func (c RetryConfig) Delay(n int) time.Duration {
	if !c.Exponential {
		return c.BaseDelay
	}
	return c.BaseDelay * time.Duration(1<<uint(n))
}

// WithAttempts returns a copy with a different attempt ceiling.
func (c RetryConfig) WithAttempts(n int) RetryConfig {
	c.MaxAttempts = n
	return c
}

// RetryFromConfig converts the configured policy.
func RetryFromConfig(rc config.RetryConfig) RetryConfig {
	return RetryConfig{MaxAttempts: rc.MaxAttempts, BaseDelay: rc.BaseDelay, Exponential: rc.Exponential}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real-time Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Executor runs operations with bounded retry and records how long each took.
// One Executor belongs to one session.
type Executor struct {
	logger *zap.Logger
	sleep  Sleeper
	now    func() time.Time

	mu     sync.Mutex
	report map[string]time.Duration
	order  []string
}

// NewExecutor returns an executor; a nil sleeper means real time.
func NewExecutor(logger *zap.Logger, sleep Sleeper) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sleep == nil {
		sleep = SleepContext
	}
	return &Executor{
		logger: logger.Named("executor"),
		sleep:  sleep,
		now:    time.Now,
		report: make(map[string]time.Duration),
	}
}

// Sleep waits through the executor's sleeper.
func (e *Executor) Sleep(ctx context.Context, d time.Duration) error {
	return e.sleep(ctx, d)
}

func (e *Executor) record(name string, d time.Duration, err error) {
	e.mu.Lock()
	if _, seen := e.report[name]; !seen {
		e.order = append(e.order, name)
	}
	e.report[name] = d
	e.mu.Unlock()
	recordOperation(name, d.Seconds(), err)
}

// Track runs fn once and records its duration under name.
func (e *Executor) Track(name string, fn func() error) error {
	e.logger.Info("Starting operation.", zap.String("operation", name))
	start := e.now()
	err := fn()
	d := e.now().Sub(start)
	e.record(name, d, err)
	if err != nil {
		e.logger.Error("Operation failed.", zap.String("operation", name), zap.Duration("duration", d), zap.Error(err))
		return err
	}
	e.logger.Info("Operation completed.", zap.String("operation", name), zap.Duration("duration", d))
	return nil
}

// Retry runs op up to cfg.MaxAttempts times and returns the first success.
// After a failed attempt n it waits cfg.Delay(n). On exhaustion the last error
// is returned wrapped with name. Cancellation and a closed driver stop it early.
func Retry[T any](ctx context.Context, ex *Executor, name string, cfg RetryConfig, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	start := ex.now()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		ex.logger.Debug("Attempting operation.",
			zap.String("operation", name), zap.Int("attempt", attempt+1), zap.Int("max_attempts", attempts))

		result, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				ex.logger.Info("Operation succeeded after retry.", zap.String("operation", name), zap.Int("attempt", attempt+1))
			}
			ex.record(name, ex.now().Sub(start), nil)
			return result, nil
		}

		lastErr = err
		recordFailedAttempt(name)
		ex.logger.Warn("Operation attempt failed.",
			zap.String("operation", name), zap.Int("attempt", attempt+1), zap.Error(err))

		if ctx.Err() != nil || errors.Is(err, browser.ErrClosed) {
			break
		}
		if attempt < attempts-1 {
			if serr := ex.sleep(ctx, cfg.Delay(attempt)); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	ex.logger.Error("All attempts failed.", zap.String("operation", name), zap.Int("max_attempts", attempts))
	wrapped := fmt.Errorf("%s: %w", name, lastErr)
	ex.record(name, ex.now().Sub(start), wrapped)
	return zero, wrapped
}

// Do is Retry for operations without a result.
func (e *Executor) Do(ctx context.Context, name string, cfg RetryConfig, op func(context.Context) error) error {
	_, err := Retry(ctx, e, name, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Report returns a copy of the recorded durations.
func (e *Executor) Report() map[string]time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]time.Duration, len(e.report))
	for k, v := range e.report {
		out[k] = v
	}
	return out
}

// LogReport logs the per-operation breakdown in first-seen order.
func (e *Executor) LogReport(total time.Duration, err error) {
	e.mu.Lock()
	names := append([]string(nil), e.order...)
	report := make(map[string]time.Duration, len(e.report))
	for k, v := range e.report {
		report[k] = v
	}
	e.mu.Unlock()

	fields := make([]zap.Field, 0, len(names)+2)
	fields = append(fields, zap.Duration("total", total))
	for _, n := range names {
		fields = append(fields, zap.Duration("op."+n, report[n]))
	}
	if err != nil {
		e.logger.Error("Run failed.", append(fields, zap.Error(err))...)
		return
	}
	e.logger.Info("Run completed.", fields...)
}
