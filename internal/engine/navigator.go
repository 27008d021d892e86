// internal/engine/navigator.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/browser"
)

// WindowedList scrolls a virtualized list, where only a window of rows is in
// the DOM at any time and each row carries its logical position in data-index.
type WindowedList struct {
	Container    string
	Scroller     string
	Step         int
	MaxAttempts  int
	Settle       time.Duration
	BoundaryPoll time.Duration

	driver browser.Driver
	ex     *Executor
	logger *zap.Logger
}

// Row returns the locator of the row with data-index i.
func (w *WindowedList) Row(i int) browser.Locator {
	return browser.Query(fmt.Sprintf("%s > div[data-index='%d']", w.Container, i))
}

func (w *WindowedList) children() browser.Locator {
	return browser.Query(w.Container).Find(":scope > *")
}

// errNoBounds means the window's first or last row had no readable index.
var errNoBounds = errors.New("rendered window has no data-index bounds")

// bounds reads the data-index of the first and last rendered rows.
func (w *WindowedList) bounds(ctx context.Context) (int, int, error) {
	n, err := w.driver.Count(ctx, w.children())
	if err != nil {
		return 0, 0, err
	}
	if n == 0 {
		return 0, 0, errNoBounds
	}
	read := func(i int) (int, error) {
		v, ok, err := w.driver.Attribute(ctx, w.children().Nth(i), "data-index")
		if err != nil {
			if errors.Is(err, browser.ErrNotFound) {
				return 0, errNoBounds
			}
			return 0, err
		}
		if !ok {
			return 0, errNoBounds
		}
		idx, err := strconv.Atoi(v)
		if err != nil {
			return 0, errNoBounds
		}
		return idx, nil
	}
	first, err := read(0)
	if err != nil {
		return 0, 0, err
	}
	last, err := read(n - 1)
	if err != nil {
		return 0, 0, err
	}
	return first, last, nil
}

// ScrollToIndex scrolls until the row with data-index target is rendered and
// returns the first and last rendered indices. A target on the window's edge
// that is not yet rendered forces one extra forward step so the renderer
// refreshes the window.
func (w *WindowedList) ScrollToIndex(ctx context.Context, target int) (int, int, error) {
	row := w.Row(target)
	for attempt := 0; attempt < w.MaxAttempts; attempt++ {
		n, err := w.driver.Count(ctx, row)
		if err != nil {
			return 0, 0, err
		}
		if n > 0 {
			first, last, err := w.bounds(ctx)
			if err != nil && !errors.Is(err, errNoBounds) {
				return 0, 0, err
			}
			w.logger.Debug("Row rendered.", zap.Int("target", target), zap.Int("attempt", attempt+1))
			return first, last, nil
		}

		first, last, err := w.bounds(ctx)
		if errors.Is(err, errNoBounds) {
			if err := w.ex.Sleep(ctx, w.BoundaryPoll); err != nil {
				return 0, 0, err
			}
			continue
		}
		if err != nil {
			return 0, 0, err
		}

		if target == first || target == last {
			w.logger.Debug("Target on window edge, forcing a scroll.", zap.Int("target", target))
			if err := w.scroll(ctx, w.Step); err != nil {
				return 0, 0, err
			}
		}
		switch {
		case target > last:
			err = w.scroll(ctx, w.Step)
		case target < first:
			err = w.scroll(ctx, -w.Step)
		}
		if err != nil {
			return 0, 0, err
		}
		w.logger.Debug("Windowed list position.",
			zap.Int("attempt", attempt+1), zap.Int("target", target), zap.Int("first", first), zap.Int("last", last))
		if err := w.ex.Sleep(ctx, w.Settle); err != nil {
			return 0, 0, err
		}
	}
	return 0, 0, &ElementNotFoundError{
		Op:       "scroll_to_index",
		Selector: row.String(),
		Err:      fmt.Errorf("not rendered after %d attempts", w.MaxAttempts),
	}
}

func (w *WindowedList) scroll(ctx context.Context, px int) error {
	if err := w.driver.ScrollBy(ctx, w.Scroller, px); err != nil {
		return notFound("scroll_windowed_list", browser.Query(w.Scroller), err)
	}
	return nil
}

// FixedScroller scrolls a plain scroll container by a fixed amount until an
// element shows up. It has no notion of windows or indices.
type FixedScroller struct {
	Scroller   string
	Step       int
	MaxRetries int
	Wait       time.Duration

	driver browser.Driver
	ex     *Executor
	logger *zap.Logger
}

// ScrollUntilPresent scrolls until loc is in the DOM.
func (f *FixedScroller) ScrollUntilPresent(ctx context.Context, loc browser.Locator) error {
	for retry := 0; retry <= f.MaxRetries; retry++ {
		n, err := f.driver.Count(ctx, loc)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if retry == f.MaxRetries {
			break
		}
		f.logger.Debug("Element not present, scrolling.", zap.String("selector", loc.String()), zap.Int("retry", retry+1))
		if err := f.driver.ScrollBy(ctx, f.Scroller, f.Step); err != nil {
			return notFound("scroll_fixed", browser.Query(f.Scroller), err)
		}
		if err := f.ex.Sleep(ctx, f.Wait); err != nil {
			return err
		}
	}
	return &ElementNotFoundError{
		Op:       "scroll_until_present",
		Selector: loc.String(),
		Err:      fmt.Errorf("not present after %d scrolls", f.MaxRetries),
	}
}
