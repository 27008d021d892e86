// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/config"
)

// Launcher hands out isolated drivers, one per automation session.
type Launcher interface {
	NewDriver(ctx context.Context) (Driver, error)
	Shutdown(ctx context.Context) error
}

// Manager owns the browser process for the configured backend and tracks
// every driver it has handed out so Shutdown can wait for them.
type Manager struct {
	cfg    config.Interface
	logger *zap.Logger

	// chromedp backend
	allocCtx    context.Context
	allocCancel context.CancelFunc

	// playwright backend
	pw      *playwright.Playwright
	browser playwright.Browser

	drivers map[string]Driver
	mu      sync.RWMutex
	wg      sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

const playwrightInstallTimeout = 5 * time.Minute

var _ Launcher = (*Manager)(nil)

// NewManager creates a browser manager. The browser itself is started lazily
// when the first driver is requested.
func NewManager(cfg config.Interface, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		logger:  logger.Named("browser_manager"),
		drivers: make(map[string]Driver),
	}
	m.logger.Info("Browser manager created (initialization deferred).", zap.String("backend", cfg.Browser().Backend))
	return m
}

// AllocatorOptions translates the browser config into chromedp allocator options.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		key, value, hasValue := strings.Cut(arg, "=")
		if !hasValue {
			opts = append(opts, chromedp.Flag(key, true))
			continue
		}
		opts = append(opts, chromedp.Flag(key, value))
	}
	return opts
}

func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		switch m.cfg.Browser().Backend {
		case config.BackendPlaywright:
			m.initErr = m.initPlaywright(ctx)
		default:
			// The allocator is detached from ctx so a canceled request
			// does not take the shared browser down with it.
			m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(Detach(ctx), AllocatorOptions(m.cfg.Browser())...)
			m.logger.Info("Chrome allocator ready.")
		}
	})
	return m.initErr
}

func (m *Manager) initPlaywright(ctx context.Context) error {
	m.logger.Info("Initializing Playwright and launching browser...")
	if m.cfg.Browser().InstallBrowsers {
		if err := m.ensureInstallation(ctx); err != nil {
			return err
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright driver: %w", err)
	}

	browser, err := pw.Chromium.Launch(m.prepareLaunchOptions())
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser instance: %w", err)
	}
	m.pw = pw
	m.browser = browser

	m.logger.Info("Browser manager initialized successfully.", zap.String("browser_version", browser.Version()))
	return nil
}

func (m *Manager) ensureInstallation(ctx context.Context) error {
	m.logger.Info("Verifying Playwright browser installation...")
	installCtx, installCancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer installCancel()

	installErrChan := make(chan error, 1)
	go func() {
		options := &playwright.RunOptions{Browsers: []string{"chromium"}}
		if err := playwright.Install(options); err != nil {
			installErrChan <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		installErrChan <- nil
	}()

	select {
	case err := <-installErrChan:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

func (m *Manager) prepareLaunchOptions() playwright.BrowserTypeLaunchOptions {
	bc := m.cfg.Browser()
	args := []string{"--no-sandbox", "--disable-dev-shm-usage"}
	if bc.DisableGPU {
		args = append(args, "--disable-gpu")
	}
	if bc.IgnoreTLSErrors {
		args = append(args, "--ignore-certificate-errors")
	}
	for _, a := range bc.Args {
		if !strings.HasPrefix(a, "--") {
			a = "--" + a
		}
		args = append(args, a)
	}
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(bc.Headless),
		Args:     args,
		Timeout:  playwright.Float(float64(launchTimeout(bc).Milliseconds())),
	}
}

// NewDriver starts the browser if needed and returns a fresh, isolated page.
func (m *Manager) NewDriver(ctx context.Context) (Driver, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	var (
		drv     Driver
		onClose *func()
	)
	switch m.cfg.Browser().Backend {
	case config.BackendPlaywright:
		bc := m.cfg.Browser()
		d, err := newPlaywrightDriver(m.browser, bc.ViewportWidth, bc.ViewportHeight, m.cfg.Timeouts().Navigation, m.logger)
		if err != nil {
			return nil, err
		}
		drv, onClose = d, &d.onClose
	default:
		d, err := NewChromeDriver(m.allocCtx, m.cfg, m.logger)
		if err != nil {
			return nil, err
		}
		drv, onClose = d, &d.onClose
	}

	m.wg.Add(1)
	id := drv.ID()
	*onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.drivers, id)
		m.wg.Done()
		m.logger.Debug("Driver removed from manager.", zap.String("driver_id", id))
	}

	m.mu.Lock()
	m.drivers[id] = drv
	m.mu.Unlock()

	m.logger.Debug("New driver created.", zap.String("driver_id", id))
	return drv, nil
}

// Active returns the number of drivers that have not been closed yet.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.drivers)
}

// Shutdown closes every open driver, then the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	m.mu.RLock()
	toClose := make([]Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		toClose = append(toClose, d)
	}
	m.mu.RUnlock()

	for _, d := range toClose {
		go func(d Driver) {
			if err := d.Close(ctx); err != nil {
				m.logger.Warn("Error during driver close in shutdown.", zap.String("driver_id", d.ID()), zap.Error(err))
			}
		}(d)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All drivers closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for drivers to close. Proceeding with forceful shutdown.", zap.Error(ctx.Err()))
	}

	if m.allocCancel != nil {
		m.allocCancel()
	}

	var shutdownErr error
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Error("Failed to close browser instance.", zap.Error(err))
			shutdownErr = fmt.Errorf("failed to close browser: %w", err)
		}
	}
	if m.pw != nil {
		if err := m.pw.Stop(); err != nil {
			m.logger.Error("Failed to stop Playwright driver.", zap.Error(err))
			if shutdownErr == nil {
				shutdownErr = fmt.Errorf("failed to stop playwright driver: %w", err)
			}
		}
	}

	m.logger.Info("Browser manager shutdown complete.")
	return shutdownErr
}
