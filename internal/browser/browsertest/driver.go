// Package browsertest provides a scriptable in-memory browser.Driver.
//
// Elements are addressed by browser.Locator.String(). Waits never sleep: a
// condition that does not already hold fails with browser.ErrTimeout, so tests
// arrange page changes through hooks that fire synchronously on clicks, key
// presses, navigation and scrolling.
package browsertest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/sdsbook/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hook reacts to a driver action by mutating the page.
type Hook func(d *Driver)

// Driver is a fake page. Hooks run with the page lock held, so they may use the
// arrangement helpers (Show, SetText, ...) but must not call driver methods.
type Driver struct {
	mu sync.Mutex

	id     string
	url    string
	closed bool

	visible map[string]bool
	counts  map[string]int
	texts   map[string]string
	attrs   map[string]map[string]string
	html    map[string]string
	values  map[string]string
	fail    map[string]error

	onClick    map[string]Hook
	onKey      map[string]Hook
	onNavigate Hook
	onScroll   func(d *Driver, selector string, px int)
	evalFunc   func(script string) (any, error)

	journal []string
}

var _ browser.Driver = (*Driver)(nil)

// New returns an empty page at about:blank.
func New() *Driver {
	return &Driver{
		id:      "fake",
		url:     "about:blank",
		visible: map[string]bool{},
		counts:  map[string]int{},
		texts:   map[string]string{},
		attrs:   map[string]map[string]string{},
		html:    map[string]string{},
		values:  map[string]string{},
		fail:    map[string]error{},
		onClick: map[string]Hook{},
		onKey:   map[string]Hook{},
	}
}

// -- Page arrangement --

// Show marks elements visible (and therefore present).
func (d *Driver) Show(keys ...string) *Driver {
	for _, k := range keys {
		d.visible[k] = true
	}
	return d
}

// Hide marks elements invisible. Hidden elements stay present if a count was set.
func (d *Driver) Hide(keys ...string) *Driver {
	for _, k := range keys {
		delete(d.visible, k)
	}
	return d
}

// Remove takes elements off the page entirely.
func (d *Driver) Remove(keys ...string) *Driver {
	for _, k := range keys {
		delete(d.visible, k)
		delete(d.counts, k)
		delete(d.texts, k)
		delete(d.attrs, k)
		delete(d.html, k)
	}
	return d
}

// SetCount declares how many elements match a selector key (index ignored).
func (d *Driver) SetCount(key string, n int) *Driver {
	if n <= 0 {
		delete(d.counts, key)
		return d
	}
	d.counts[key] = n
	return d
}

// SetText sets the text content of an element and makes it present.
func (d *Driver) SetText(key, text string) *Driver {
	d.texts[key] = text
	return d
}

// SetAttr sets an attribute on an element.
func (d *Driver) SetAttr(key, name, value string) *Driver {
	if d.attrs[key] == nil {
		d.attrs[key] = map[string]string{}
	}
	d.attrs[key][name] = value
	return d
}

// SetHTML sets the outer HTML of an element.
func (d *Driver) SetHTML(key, html string) *Driver {
	d.html[key] = html
	return d
}

// SetURL moves the page without recording a navigation.
func (d *Driver) SetURL(u string) *Driver {
	d.url = u
	return d
}

// Fail makes every action on key return err.
func (d *Driver) Fail(key string, err error) *Driver {
	if err == nil {
		delete(d.fail, key)
		return d
	}
	d.fail[key] = err
	return d
}

// OnClick registers a hook for clicks on key.
func (d *Driver) OnClick(key string, h Hook) *Driver {
	d.onClick[key] = h
	return d
}

// OnKey registers a hook for a key press.
func (d *Driver) OnKey(key string, h Hook) *Driver {
	d.onKey[key] = h
	return d
}

// OnNavigate registers a hook run after every navigation.
func (d *Driver) OnNavigate(h Hook) *Driver {
	d.onNavigate = h
	return d
}

// OnScroll registers a hook run on ScrollBy.
func (d *Driver) OnScroll(h func(d *Driver, selector string, px int)) *Driver {
	d.onScroll = h
	return d
}

// OnEvaluate answers Evaluate calls.
func (d *Driver) OnEvaluate(f func(script string) (any, error)) *Driver {
	d.evalFunc = f
	return d
}

// Value returns what was last filled into key.
func (d *Driver) Value(key string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.values[key]
}

// Journal returns the recorded actions, e.g. "click #submit" or "key Enter".
func (d *Driver) Journal() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.journal...)
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// -- browser.Driver --

func (d *Driver) ID() string { return d.id }

func (d *Driver) record(format string, args ...any) {
	d.journal = append(d.journal, fmt.Sprintf(format, args...))
}

// check runs under d.mu.
func (d *Driver) check(ctx context.Context, key string) error {
	if d.closed {
		return browser.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if key != "" {
		if err := d.fail[key]; err != nil {
			return err
		}
	}
	return nil
}

// countKey strips the index so Count sees every match.
func countKey(loc browser.Locator) string {
	if loc.Closest != "" {
		return loc.String()
	}
	return loc.Nth(0).String()
}

// presentLocked runs under d.mu.
func (d *Driver) presentLocked(loc browser.Locator) bool {
	key := loc.String()
	if d.visible[key] {
		return true
	}
	if _, ok := d.texts[key]; ok {
		return true
	}
	if _, ok := d.attrs[key]; ok {
		return true
	}
	if _, ok := d.html[key]; ok {
		return true
	}
	return loc.Index < d.counts[countKey(loc)]
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	if err := d.check(ctx, ""); err != nil {
		d.mu.Unlock()
		return err
	}
	d.record("navigate %s", url)
	d.url = url
	hook := d.onNavigate
	d.mu.Unlock()

	if hook != nil {
		d.runHook(hook)
	}
	return nil
}

func (d *Driver) runHook(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h(d)
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, ""); err != nil {
		return "", err
	}
	return d.url, nil
}

func (d *Driver) Count(ctx context.Context, loc browser.Locator) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, countKey(loc)); err != nil {
		return 0, err
	}
	if n, ok := d.counts[countKey(loc)]; ok {
		return n, nil
	}
	if d.presentLocked(loc) {
		return 1, nil
	}
	return 0, nil
}

func (d *Driver) IsVisible(ctx context.Context, loc browser.Locator) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, loc.String()); err != nil {
		return false, err
	}
	return d.visible[loc.String()], nil
}

func (d *Driver) WaitFor(ctx context.Context, loc browser.Locator, state browser.WaitState, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, loc.String()); err != nil {
		return err
	}
	var ok bool
	switch state {
	case browser.StateAttached:
		ok = d.presentLocked(loc)
	case browser.StateDetached:
		ok = !d.presentLocked(loc)
	case browser.StateVisible:
		ok = d.visible[loc.String()]
	case browser.StateHidden:
		ok = !d.visible[loc.String()]
	default:
		return fmt.Errorf("unknown wait state %q", state)
	}
	if !ok {
		return fmt.Errorf("waiting for %s to be %s: %w", loc, state, browser.ErrTimeout)
	}
	return nil
}

func (d *Driver) WaitForURL(ctx context.Context, match func(string) bool, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, ""); err != nil {
		return err
	}
	if !match(d.url) {
		return fmt.Errorf("waiting for url (at %s): %w", d.url, browser.ErrTimeout)
	}
	return nil
}

func (d *Driver) Click(ctx context.Context, loc browser.Locator) error {
	key := loc.String()
	d.mu.Lock()
	if err := d.check(ctx, key); err != nil {
		d.mu.Unlock()
		return err
	}
	if !d.presentLocked(loc) {
		d.mu.Unlock()
		return fmt.Errorf("click %s: %w", loc, browser.ErrNotFound)
	}
	d.record("click %s", key)
	hook := d.onClick[key]
	d.mu.Unlock()

	if hook != nil {
		d.runHook(hook)
	}
	return nil
}

func (d *Driver) ClickAt(ctx context.Context, x, y float64) error {
	key := "@" + strconv.FormatFloat(x, 'f', -1, 64) + "," + strconv.FormatFloat(y, 'f', -1, 64)
	d.mu.Lock()
	if err := d.check(ctx, key); err != nil {
		d.mu.Unlock()
		return err
	}
	d.record("click %s", key)
	hook := d.onClick[key]
	d.mu.Unlock()

	if hook != nil {
		d.runHook(hook)
	}
	return nil
}

func (d *Driver) Fill(ctx context.Context, loc browser.Locator, text string) error {
	key := loc.String()
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, key); err != nil {
		return err
	}
	if !d.presentLocked(loc) {
		return fmt.Errorf("fill %s: %w", loc, browser.ErrNotFound)
	}
	d.record("fill %s=%s", key, text)
	d.values[key] = text
	return nil
}

func (d *Driver) PressKey(ctx context.Context, key string) error {
	d.mu.Lock()
	if err := d.check(ctx, ""); err != nil {
		d.mu.Unlock()
		return err
	}
	d.record("key %s", key)
	hook := d.onKey[key]
	d.mu.Unlock()

	if hook != nil {
		d.runHook(hook)
	}
	return nil
}

func (d *Driver) Evaluate(ctx context.Context, script string, out any) error {
	d.mu.Lock()
	if err := d.check(ctx, ""); err != nil {
		d.mu.Unlock()
		return err
	}
	f := d.evalFunc
	d.mu.Unlock()

	if f == nil {
		return fmt.Errorf("evaluate: no script handler installed")
	}
	res, err := f(script)
	if err != nil || out == nil {
		return err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (d *Driver) ScrollBy(ctx context.Context, selector string, px int) error {
	d.mu.Lock()
	if err := d.check(ctx, selector); err != nil {
		d.mu.Unlock()
		return err
	}
	d.record("scroll %s %d", selector, px)
	hook := d.onScroll
	d.mu.Unlock()

	if hook != nil {
		d.mu.Lock()
		hook(d, selector, px)
		d.mu.Unlock()
	}
	return nil
}

func (d *Driver) TextContent(ctx context.Context, loc browser.Locator) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, loc.String()); err != nil {
		return "", err
	}
	if text, ok := d.texts[loc.String()]; ok {
		return text, nil
	}
	if d.presentLocked(loc) {
		return "", nil
	}
	return "", fmt.Errorf("text of %s: %w", loc, browser.ErrNotFound)
}

func (d *Driver) Attribute(ctx context.Context, loc browser.Locator, name string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, loc.String()); err != nil {
		return "", false, err
	}
	if !d.presentLocked(loc) {
		return "", false, fmt.Errorf("attribute %q of %s: %w", name, loc, browser.ErrNotFound)
	}
	v, ok := d.attrs[loc.String()][name]
	return v, ok, nil
}

func (d *Driver) OuterHTML(ctx context.Context, loc browser.Locator) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, loc.String()); err != nil {
		return "", err
	}
	if h, ok := d.html[loc.String()]; ok {
		return h, nil
	}
	return "", fmt.Errorf("outer html of %s: %w", loc, browser.ErrNotFound)
}

func (d *Driver) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.record("close")
	}
	d.closed = true
	return nil
}

// Actions counts journal entries starting with prefix.
func (d *Driver) Actions(prefix string) int {
	n := 0
	for _, e := range d.Journal() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}
