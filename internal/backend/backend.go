// Package backend defines the contract between the dispatch bridge and the runtime that
// actually transforms text, plus the runtimes this repository ships.
//
// A Runtime is started at most once per process by the bridge; Start yields the Channel
// every later call goes through. Runtimes report failures with two shapes:
//
//   - ErrNotImplemented: the runtime is up but its processText handler is not registered yet.
//     Transient; the bridge retries on a short schedule.
//   - *Error: an explicit failure with a code and optional message. Transient only when
//     Retryable is set.
//
// Anything else is treated as a fatal failure for that call.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_backend.go -package=mocks github.com/bekaIva/instant-ai-translator/internal/backend Runtime,Channel

// Request is a single processing request.
type Request struct {
	Text      string
	Operation string
}

// Channel delivers requests to a started runtime.
type Channel interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// Runtime is a processing backend that must be started before use.
type Runtime interface {
	Name() string
	Start(ctx context.Context) (Channel, error)
}

// ErrNotImplemented reports that the runtime has no handler registered for processText yet.
var ErrNotImplemented = errors.New("method not implemented")

// legacyNotReadyMarker is the exception name older embedders put in the error message when
// the handler is not registered yet.
const legacyNotReadyMarker = "MissingPluginException"

// Error is an explicit backend failure.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// IsTransient reports whether err is a "not ready yet" failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotImplemented) {
		return true
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Retryable || strings.Contains(be.Message, legacyNotReadyMarker)
	}
	return false
}
