// Package present turns a processing Outcome into what a host shows the user: the text
// to display and the actions offered on it.
package present

import (
	"errors"

	"github.com/bekaIva/instant-ai-translator/internal/bridge"
)

// Action is a choice offered on the result screen.
type Action string

const (
	// Apply replaces the selection in the source application. Offered for editable
	// sources only.
	Apply Action = "apply"
	Copy  Action = "copy"
	// Reprocess returns to the action menu and runs again on the original selection.
	Reprocess Action = "reprocess"
	Close     Action = "close"
)

const errorPrefix = "ERROR: "

// ErrNoText is reported when a host receives an empty selection.
var ErrNoText = errors.New("no text received")

// Result is the presentation of one outcome.
type Result struct {
	Text    string
	IsError bool
	Actions []Action

	// Original is the selection every Reprocess starts from.
	Original string
}

// CheckSelection rejects an empty selection before any processing starts.
func CheckSelection(text string) error {
	if text == "" {
		return ErrNoText
	}
	return nil
}

// Resolve builds the result for an outcome of processing original. readOnly reports
// whether the source can accept a replacement.
func Resolve(o bridge.Outcome, original string, readOnly bool) Result {
	if !o.OK() {
		msg := o.Failure.Message
		if msg == "" {
			msg = "Processing failed"
		}
		return Result{
			Text:     errorPrefix + msg,
			IsError:  true,
			Actions:  []Action{Copy, Reprocess, Close},
			Original: original,
		}
	}

	text := o.Result
	if text == "" {
		text = original
	}
	actions := []Action{Copy, Reprocess, Close}
	if !readOnly {
		actions = append([]Action{Apply}, actions...)
	}
	return Result{Text: text, Actions: actions, Original: original}
}

// Allows reports whether a is offered on r.
func (r Result) Allows(a Action) bool {
	for _, have := range r.Actions {
		if have == a {
			return true
		}
	}
	return false
}

// ReprocessInput returns the text a Reprocess runs on. Results are never chained.
func (r Result) ReprocessInput() string {
	return r.Original
}
