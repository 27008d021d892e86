package workflow

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/sdsbook/internal/engine"
)

// Failure kinds produced by the workflows in addition to engine.Kind values.
const (
	KindCustomerNotFound  = "not_found"
	KindVehicleNotFound   = "vehicle_not_found"
	KindUnknownPage       = "unknown_page"
	KindUnrecognizedPopup = "unrecognized_popup"
	KindNotConfirmed      = "not_confirmed"
	KindBrowserLaunch     = "browser_launch"
)

// ErrLaunch marks a browser that could not be started. It is never retried.
var ErrLaunch = errors.New("browser launch failed")

// Failure is the user-visible outcome of a failed workflow.
type Failure struct {
	Kind    string `json:"error"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (f *Failure) Error() string { return f.Kind + ": " + f.Message }

func (f *Failure) Unwrap() error { return f.Err }

func fail(kind, format string, args ...any) *Failure {
	msg := fmt.Sprintf(format, args...)
	return &Failure{Kind: kind, Message: msg, Err: errors.New(msg)}
}

// AsFailure returns err as a *Failure, classifying it when it is not one yet.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, ErrLaunch) {
		return &Failure{Kind: KindBrowserLaunch, Message: err.Error(), Err: err}
	}
	if errors.Is(err, engine.ErrUnrecognizedPopup) {
		return &Failure{Kind: KindUnrecognizedPopup, Message: err.Error(), Err: err}
	}
	return &Failure{Kind: engine.Kind(err), Message: err.Error(), Err: err}
}
