// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a wait expires before its condition holds.
	ErrTimeout = errors.New("browser: wait timed out")
	// ErrNotFound is returned when a locator resolves to no element.
	ErrNotFound = errors.New("browser: element not found")
	// ErrClosed is returned by any call made after Close.
	ErrClosed = errors.New("browser: driver closed")
)

// WaitState is the element condition awaited by Driver.WaitFor.
type WaitState string

const (
	StateAttached WaitState = "attached"
	StateVisible  WaitState = "visible"
	StateHidden   WaitState = "hidden"
	StateDetached WaitState = "detached"
)

// Driver is the page-level capability the automation engine builds on.
// A Driver controls exactly one page and is not safe for concurrent use;
// callers issue one action at a time.
type Driver interface {
	// ID identifies the underlying browser page for logging.
	ID() string

	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)

	// Count returns the number of elements matching loc (ignoring loc.Index).
	Count(ctx context.Context, loc Locator) (int, error)
	// IsVisible checks visibility right now, without waiting.
	IsVisible(ctx context.Context, loc Locator) (bool, error)
	// WaitFor blocks until loc reaches state or the timeout elapses (ErrTimeout).
	WaitFor(ctx context.Context, loc Locator, state WaitState, timeout time.Duration) error
	// WaitForURL blocks until the page URL satisfies match or the timeout elapses (ErrTimeout).
	WaitForURL(ctx context.Context, match func(string) bool, timeout time.Duration) error

	Click(ctx context.Context, loc Locator) error
	ClickAt(ctx context.Context, x, y float64) error
	Fill(ctx context.Context, loc Locator, text string) error
	PressKey(ctx context.Context, key string) error

	// Evaluate runs a script expression and decodes its result into out (which may be nil).
	Evaluate(ctx context.Context, script string, out any) error
	// ScrollBy scrolls the first element matching containerSelector vertically by px.
	ScrollBy(ctx context.Context, containerSelector string, px int) error

	TextContent(ctx context.Context, loc Locator) (string, error)
	// Attribute returns the attribute value and whether it was present.
	Attribute(ctx context.Context, loc Locator, name string) (string, bool, error)
	OuterHTML(ctx context.Context, loc Locator) (string, error)

	Close(ctx context.Context) error
}

// Keys understood by PressKey on every backend.
const (
	KeyEnter  = "Enter"
	KeyEscape = "Escape"
)

// withTimeout derives a bounded context for a single wait; a non-positive
// timeout leaves ctx untouched.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
