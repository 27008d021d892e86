// internal/browser/playwright.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PlaywrightDriver drives one page inside an isolated Playwright browser context.
// Playwright calls are not context aware, so ctx is checked before each call
// and waits are bounded by explicit timeouts.
type PlaywrightDriver struct {
	id      string
	bctx    playwright.BrowserContext
	page    playwright.Page
	logger  *zap.Logger
	navWait time.Duration

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

func newPlaywrightDriver(browser playwright.Browser, width, height int, navWait time.Duration, logger *zap.Logger) (*PlaywrightDriver, error) {
	id := uuid.NewString()
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: width, Height: height},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &PlaywrightDriver{
		id:      id,
		bctx:    bctx,
		page:    page,
		logger:  logger.Named("playwright").With(zap.String("driver_id", id)),
		navWait: navWait,
	}, nil
}

func (d *PlaywrightDriver) ID() string { return d.id }

// ready reports ErrClosed or the context error before a blocking call.
func (d *PlaywrightDriver) ready(ctx context.Context) error {
	d.mu.Lock()
	closed := d.isClosed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return ctx.Err()
}

// selector renders loc as a chained Playwright selector.
func selector(loc Locator) string {
	return strings.Join(loc.playwrightChain(), " >> ")
}

// countSelector is selector without the trailing index, so Count sees every match.
func countSelector(loc Locator) string {
	if loc.Closest != "" {
		return selector(loc)
	}
	var chain []string
	if loc.Scope != nil {
		chain = loc.Scope.playwrightChain()
	}
	return strings.Join(append(chain, loc.Selector), " >> ")
}

// remaining converts what is left of ctx's deadline, capped by timeout, to milliseconds.
func remaining(ctx context.Context, timeout time.Duration) *float64 {
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return playwright.Float(float64(timeout.Milliseconds()))
}

// translate maps Playwright errors onto the driver sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return fmt.Errorf("%w: %v", ErrClosed, err)
	default:
		return err
	}
}

func (d *PlaywrightDriver) Navigate(ctx context.Context, url string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	d.logger.Debug("Navigating to URL", zap.String("url", url))
	if _, err := d.page.Goto(url, playwright.PageGotoOptions{Timeout: remaining(ctx, d.navWait)}); err != nil {
		return fmt.Errorf("navigation failed: %w", translate(err))
	}
	return nil
}

func (d *PlaywrightDriver) CurrentURL(ctx context.Context) (string, error) {
	if err := d.ready(ctx); err != nil {
		return "", err
	}
	return d.page.URL(), nil
}

func (d *PlaywrightDriver) Count(ctx context.Context, loc Locator) (int, error) {
	if err := d.ready(ctx); err != nil {
		return 0, err
	}
	n, err := d.page.Locator(countSelector(loc)).Count()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", loc, translate(err))
	}
	return n, nil
}

func (d *PlaywrightDriver) IsVisible(ctx context.Context, loc Locator) (bool, error) {
	if err := d.ready(ctx); err != nil {
		return false, err
	}
	visible, err := d.page.Locator(selector(loc)).IsVisible()
	if err != nil {
		return false, fmt.Errorf("visibility of %s: %w", loc, translate(err))
	}
	return visible, nil
}

var waitStates = map[WaitState]*playwright.WaitForSelectorState{
	StateAttached: playwright.WaitForSelectorStateAttached,
	StateVisible:  playwright.WaitForSelectorStateVisible,
	StateHidden:   playwright.WaitForSelectorStateHidden,
	StateDetached: playwright.WaitForSelectorStateDetached,
}

func (d *PlaywrightDriver) WaitFor(ctx context.Context, loc Locator, state WaitState, timeout time.Duration) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	pwState, ok := waitStates[state]
	if !ok {
		return fmt.Errorf("unknown wait state %q", state)
	}
	err := d.page.Locator(selector(loc)).WaitFor(playwright.LocatorWaitForOptions{
		State:   pwState,
		Timeout: remaining(ctx, timeout),
	})
	if err != nil {
		return fmt.Errorf("waiting for %s to be %s: %w", loc, state, translate(err))
	}
	return nil
}

func (d *PlaywrightDriver) WaitForURL(ctx context.Context, match func(string) bool, timeout time.Duration) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	err := d.page.WaitForURL(match, playwright.PageWaitForURLOptions{
		Timeout:   remaining(ctx, timeout),
		WaitUntil: playwright.WaitUntilStateCommit,
	})
	return translate(err)
}

func (d *PlaywrightDriver) Click(ctx context.Context, loc Locator) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	d.logger.Debug("Attempting to click element", zap.Stringer("locator", loc))
	if err := d.page.Locator(selector(loc)).Click(playwright.LocatorClickOptions{Timeout: remaining(ctx, 30*time.Second)}); err != nil {
		return fmt.Errorf("click action failed for %s: %w", loc, translate(err))
	}
	return nil
}

func (d *PlaywrightDriver) ClickAt(ctx context.Context, x, y float64) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	if err := d.page.Mouse().Click(x, y); err != nil {
		return fmt.Errorf("click at (%.0f, %.0f) failed: %w", x, y, translate(err))
	}
	return nil
}

func (d *PlaywrightDriver) Fill(ctx context.Context, loc Locator, text string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	if err := d.page.Locator(selector(loc)).Fill(text, playwright.LocatorFillOptions{Timeout: remaining(ctx, 30*time.Second)}); err != nil {
		return fmt.Errorf("fill action failed for %s: %w", loc, translate(err))
	}
	return nil
}

func (d *PlaywrightDriver) PressKey(ctx context.Context, key string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	if err := d.page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("key press %q failed: %w", key, translate(err))
	}
	return nil
}

// Evaluate runs script and round-trips the result through JSON into out.
func (d *PlaywrightDriver) Evaluate(ctx context.Context, script string, out any) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	res, err := d.page.Evaluate(script)
	if err != nil {
		return translate(err)
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (d *PlaywrightDriver) ScrollBy(ctx context.Context, containerSelector string, px int) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	found, err := d.page.Evaluate(`([sel, px]) => { const el = document.querySelector(sel); if (!el) return false; el.scrollBy(0, px); return true; }`,
		[]any{containerSelector, px})
	if err != nil {
		return fmt.Errorf("scroll %s: %w", containerSelector, translate(err))
	}
	if ok, _ := found.(bool); !ok {
		return fmt.Errorf("scroll container %s: %w", containerSelector, ErrNotFound)
	}
	return nil
}

// present fails with ErrNotFound when loc has no match, so reads never block.
func (d *PlaywrightDriver) present(ctx context.Context, loc Locator) (playwright.Locator, error) {
	if err := d.ready(ctx); err != nil {
		return nil, err
	}
	l := d.page.Locator(selector(loc))
	n, err := l.Count()
	if err != nil {
		return nil, translate(err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return l, nil
}

func (d *PlaywrightDriver) TextContent(ctx context.Context, loc Locator) (string, error) {
	l, err := d.present(ctx, loc)
	if err != nil {
		return "", fmt.Errorf("text of %s: %w", loc, err)
	}
	text, err := l.TextContent()
	if err != nil {
		return "", fmt.Errorf("text of %s: %w", loc, translate(err))
	}
	return text, nil
}

func (d *PlaywrightDriver) Attribute(ctx context.Context, loc Locator, name string) (string, bool, error) {
	l, err := d.present(ctx, loc)
	if err != nil {
		return "", false, fmt.Errorf("attribute %q of %s: %w", name, loc, err)
	}
	res, err := l.Evaluate(`(e, n) => e.hasAttribute(n) ? e.getAttribute(n) : null`, name)
	if err != nil {
		return "", false, fmt.Errorf("attribute %q of %s: %w", name, loc, translate(err))
	}
	if res == nil {
		return "", false, nil
	}
	value, _ := res.(string)
	return value, true, nil
}

func (d *PlaywrightDriver) OuterHTML(ctx context.Context, loc Locator) (string, error) {
	l, err := d.present(ctx, loc)
	if err != nil {
		return "", fmt.Errorf("outer html of %s: %w", loc, err)
	}
	res, err := l.Evaluate(`(e) => e.outerHTML`, nil)
	if err != nil {
		return "", fmt.Errorf("outer html of %s: %w", loc, translate(err))
	}
	html, _ := res.(string)
	return html, nil
}

// Close closes the page and its browser context. It is idempotent.
func (d *PlaywrightDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.isClosed {
		d.mu.Unlock()
		return nil
	}
	d.isClosed = true
	d.mu.Unlock()

	d.logger.Debug("Closing playwright context.")
	err := d.bctx.Close()

	if d.onClose != nil {
		d.onClose()
	}
	if err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("failed to close browser context: %w", err)
	}
	return nil
}
