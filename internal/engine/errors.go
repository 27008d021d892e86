// internal/engine/errors.go
package engine

import (
	"context"
	"errors"
	"fmt"
)

// NavigationError reports an expected page transition that never happened.
type NavigationError struct {
	Op  string
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("navigation failed during %s (at %s): %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("navigation failed during %s: %v", e.Op, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ElementNotFoundError reports a selector that never materialized within its bound.
type ElementNotFoundError struct {
	Op       string
	Selector string
	Err      error
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("%s: element %q not found: %v", e.Op, e.Selector, e.Err)
}

func (e *ElementNotFoundError) Unwrap() error { return e.Err }

// PopupHandlingError reports a dialog that could not be resolved.
type PopupHandlingError struct {
	Op    string
	Title string
	Err   error
}

func (e *PopupHandlingError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("%s: popup %q: %v", e.Op, e.Title, e.Err)
	}
	return fmt.Sprintf("%s: popup: %v", e.Op, e.Err)
}

func (e *PopupHandlingError) Unwrap() error { return e.Err }

// ValidationError reports caller input that was rejected before any browser work.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid is shorthand for a ValidationError with a formatted cause.
func Invalid(op, format string, args ...any) error {
	return &ValidationError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Error kinds reported by Kind.
const (
	KindNavigation      = "navigation"
	KindElementNotFound = "element_not_found"
	KindPopupHandling   = "popup_handling"
	KindValidation      = "validation"
	KindCanceled        = "canceled"
	KindInternal        = "internal"
)

// Kind maps any error onto a stable kind string.
func Kind(err error) string {
	var (
		nav   *NavigationError
		elem  *ElementNotFoundError
		popup *PopupHandlingError
		val   *ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &val):
		return KindValidation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &popup):
		return KindPopupHandling
	case errors.As(err, &elem):
		return KindElementNotFound
	case errors.As(err, &nav):
		return KindNavigation
	default:
		return KindInternal
	}
}
