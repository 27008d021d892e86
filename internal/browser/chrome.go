// internal/browser/chrome.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/config"
)

// pollInterval is how often page-side conditions are re-evaluated while waiting.
const pollInterval = 100 * time.Millisecond

// ChromeDriver drives a single Chrome tab over the DevTools protocol.
type ChromeDriver struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig

	navTimeout time.Duration
	onClose    func()

	mu       sync.Mutex
	isClosed bool
}

// NewChromeDriver opens a new browser target under the given allocator context.
// The first action run on the returned context starts the browser process.
func NewChromeDriver(allocCtx context.Context, appCfg config.Interface, logger *zap.Logger) (*ChromeDriver, error) {
	cfg := appCfg.Browser()
	id := uuid.NewString()
	log := logger.Named("chrome").With(zap.String("driver_id", id))

	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			log.Debug("cdp error", zap.String("detail", fmt.Sprintf(format, args...)))
		}),
	)

	d := &ChromeDriver{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		logger: log,
		cfg:    cfg,

		navTimeout: appCfg.Timeouts().Navigation,
	}

	startCtx, startCancel := context.WithTimeout(ctx, launchTimeout(cfg))
	defer startCancel()
	if err := chromedp.Run(startCtx, chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight))); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start chrome target: %w", err)
	}

	log.Debug("Chrome target ready.")
	return d, nil
}

func launchTimeout(cfg config.BrowserConfig) time.Duration {
	if cfg.LaunchTimeout > 0 {
		return cfg.LaunchTimeout
	}
	return 60 * time.Second
}

func (d *ChromeDriver) ID() string { return d.id }

// runActions executes chromedp actions against the tab, bounded by both the
// tab lifetime and the caller's context.
func (d *ChromeDriver) runActions(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	closed := d.isClosed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}

	opCtx, opCancel := CombineContext(d.ctx, ctx)
	defer opCancel()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.ctx.Err() != nil {
			return ErrClosed
		}
		return err
	}
	return nil
}

// evalJSON evaluates a page-side expression and decodes its JSON result.
func (d *ChromeDriver) evalJSON(ctx context.Context, expr string, out any) error {
	return d.runActions(ctx, chromedp.Evaluate(expr, out))
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	d.logger.Debug("Navigating to URL", zap.String("url", url))

	navTimeout := d.navTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(ctx, navTimeout)
	defer navCancel()

	if err := d.runActions(navCtx, chromedp.Navigate(url)); err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, ErrTimeout)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := d.runActions(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (d *ChromeDriver) Count(ctx context.Context, loc Locator) (int, error) {
	var n int
	if err := d.evalJSON(ctx, loc.countJS(), &n); err != nil {
		return 0, fmt.Errorf("count %s: %w", loc, err)
	}
	return n, nil
}

// visibleJS mirrors the usual visibility rule: rendered, not hidden, non-empty box.
func visibleJS(elementExpr string) string {
	return `((e) => {
		if (!e) return false;
		const s = window.getComputedStyle(e);
		if (s.visibility === 'hidden' || s.display === 'none') return false;
		const r = e.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	})(` + elementExpr + `)`
}

func (d *ChromeDriver) IsVisible(ctx context.Context, loc Locator) (bool, error) {
	var visible bool
	if err := d.evalJSON(ctx, visibleJS(loc.elementJS()), &visible); err != nil {
		return false, fmt.Errorf("visibility of %s: %w", loc, err)
	}
	return visible, nil
}

// conditionJS builds the boolean expression for a wait state.
func conditionJS(loc Locator, state WaitState) (string, error) {
	switch state {
	case StateAttached:
		return `(` + loc.elementJS() + `) !== null`, nil
	case StateDetached:
		return `(` + loc.elementJS() + `) === null`, nil
	case StateVisible:
		return visibleJS(loc.elementJS()), nil
	case StateHidden:
		return `!` + visibleJS(loc.elementJS()), nil
	default:
		return "", fmt.Errorf("unknown wait state %q", state)
	}
}

func (d *ChromeDriver) WaitFor(ctx context.Context, loc Locator, state WaitState, timeout time.Duration) error {
	expr, err := conditionJS(loc, state)
	if err != nil {
		return err
	}
	err = d.poll(ctx, timeout, func(pollCtx context.Context) (bool, error) {
		var ok bool
		if err := d.evalJSON(pollCtx, expr, &ok); err != nil {
			return false, err
		}
		return ok, nil
	})
	if err != nil {
		return fmt.Errorf("waiting for %s to be %s: %w", loc, state, err)
	}
	return nil
}

func (d *ChromeDriver) WaitForURL(ctx context.Context, match func(string) bool, timeout time.Duration) error {
	return d.poll(ctx, timeout, func(pollCtx context.Context) (bool, error) {
		u, err := d.CurrentURL(pollCtx)
		if err != nil {
			return false, err
		}
		return match(u), nil
	})
}

// poll re-evaluates cond until it holds, the timeout elapses (ErrTimeout) or ctx ends.
func (d *ChromeDriver) poll(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	waitCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := cond(waitCtx)
		if err == nil && ok {
			return nil
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return err
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrTimeout
		}
	}
}

func (d *ChromeDriver) Click(ctx context.Context, loc Locator) error {
	d.logger.Debug("Attempting to click element", zap.Stringer("locator", loc))

	if loc.IsSimple() {
		sel := loc.Selector
		action := chromedp.Tasks{
			chromedp.ScrollIntoView(sel, chromedp.ByQuery),
			chromedp.WaitVisible(sel, chromedp.ByQuery),
			chromedp.Click(sel, chromedp.ByQuery),
		}
		if err := d.runActions(ctx, action); err != nil {
			return fmt.Errorf("click action failed for selector '%s': %w", sel, err)
		}
		return nil
	}

	var found bool
	expr := `((e) => { if (!e) return false; e.scrollIntoView({block: 'center'}); e.click(); return true; })(` + loc.elementJS() + `)`
	if err := d.evalJSON(ctx, expr, &found); err != nil {
		return fmt.Errorf("click action failed for %s: %w", loc, err)
	}
	if !found {
		return fmt.Errorf("click %s: %w", loc, ErrNotFound)
	}
	return nil
}

func (d *ChromeDriver) ClickAt(ctx context.Context, x, y float64) error {
	if err := d.runActions(ctx, chromedp.MouseClickXY(x, y)); err != nil {
		return fmt.Errorf("click at (%.0f, %.0f) failed: %w", x, y, err)
	}
	return nil
}

func (d *ChromeDriver) Fill(ctx context.Context, loc Locator, text string) error {
	d.logger.Debug("Attempting to fill element", zap.Stringer("locator", loc), zap.Int("text_length", len(text)))

	if loc.IsSimple() {
		sel := loc.Selector
		action := chromedp.Tasks{
			chromedp.WaitVisible(sel, chromedp.ByQuery),
			chromedp.Clear(sel, chromedp.ByQuery),
			chromedp.SendKeys(sel, text, chromedp.ByQuery),
		}
		if err := d.runActions(ctx, action); err != nil {
			return fmt.Errorf("fill action failed for selector '%s': %w", sel, err)
		}
		return nil
	}

	var found bool
	expr := `((e) => { if (!e) return false; e.focus(); if ('value' in e) e.value = ''; return true; })(` + loc.elementJS() + `)`
	if err := d.evalJSON(ctx, expr, &found); err != nil {
		return fmt.Errorf("fill action failed for %s: %w", loc, err)
	}
	if !found {
		return fmt.Errorf("fill %s: %w", loc, ErrNotFound)
	}
	return d.runActions(ctx, chromedp.KeyEvent(text))
}

// keyAliases maps portable key names to chromedp key sequences.
var keyAliases = map[string]string{
	KeyEnter:  kb.Enter,
	KeyEscape: kb.Escape,
	"Tab":     kb.Tab,
}

func (d *ChromeDriver) PressKey(ctx context.Context, key string) error {
	seq, ok := keyAliases[key]
	if !ok {
		seq = key
	}
	if err := d.runActions(ctx, chromedp.KeyEvent(seq)); err != nil {
		return fmt.Errorf("key press %q failed: %w", key, err)
	}
	return nil
}

func (d *ChromeDriver) Evaluate(ctx context.Context, script string, out any) error {
	if out == nil {
		var discard *runtime.RemoteObject
		return d.runActions(ctx, chromedp.Evaluate(script, &discard))
	}
	return d.runActions(ctx, chromedp.Evaluate(script, out))
}

func (d *ChromeDriver) ScrollBy(ctx context.Context, containerSelector string, px int) error {
	var found bool
	expr := `((el) => { if (!el) return false; el.scrollBy(0, ` + strconv.Itoa(px) + `); return true; })(document.querySelector(` + strconv.Quote(containerSelector) + `))`
	if err := d.evalJSON(ctx, expr, &found); err != nil {
		return fmt.Errorf("scroll %s: %w", containerSelector, err)
	}
	if !found {
		return fmt.Errorf("scroll container %s: %w", containerSelector, ErrNotFound)
	}
	return nil
}

type textResult struct {
	Found bool   `json:"found"`
	Has   bool   `json:"has"`
	Value string `json:"value"`
}

func (d *ChromeDriver) TextContent(ctx context.Context, loc Locator) (string, error) {
	var res textResult
	expr := `((e) => e ? {found: true, has: true, value: e.textContent || ''} : {found: false})(` + loc.elementJS() + `)`
	if err := d.evalJSON(ctx, expr, &res); err != nil {
		return "", fmt.Errorf("text of %s: %w", loc, err)
	}
	if !res.Found {
		return "", fmt.Errorf("text of %s: %w", loc, ErrNotFound)
	}
	return res.Value, nil
}

func (d *ChromeDriver) Attribute(ctx context.Context, loc Locator, name string) (string, bool, error) {
	var res textResult
	expr := `((e) => e ? {found: true, has: e.hasAttribute(` + strconv.Quote(name) + `), value: e.getAttribute(` +
		strconv.Quote(name) + `) || ''} : {found: false})(` + loc.elementJS() + `)`
	if err := d.evalJSON(ctx, expr, &res); err != nil {
		return "", false, fmt.Errorf("attribute %q of %s: %w", name, loc, err)
	}
	if !res.Found {
		return "", false, fmt.Errorf("attribute %q of %s: %w", name, loc, ErrNotFound)
	}
	return res.Value, res.Has, nil
}

func (d *ChromeDriver) OuterHTML(ctx context.Context, loc Locator) (string, error) {
	var res textResult
	expr := `((e) => e ? {found: true, has: true, value: e.outerHTML} : {found: false})(` + loc.elementJS() + `)`
	if err := d.evalJSON(ctx, expr, &res); err != nil {
		return "", fmt.Errorf("outer html of %s: %w", loc, err)
	}
	if !res.Found {
		return "", fmt.Errorf("outer html of %s: %w", loc, ErrNotFound)
	}
	return res.Value, nil
}

// Close shuts the tab down. It is idempotent.
func (d *ChromeDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.isClosed {
		d.mu.Unlock()
		return nil
	}
	d.isClosed = true
	d.mu.Unlock()

	d.logger.Debug("Closing chrome target.")

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(d.ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	d.cancel()

	if d.onClose != nil {
		d.onClose()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close chrome target: %w", err)
	}
	return nil
}
