package bridge

import "fmt"

// State is the lifecycle state of the shared backend channel.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FailureKind classifies a failed call.
type FailureKind int

const (
	InitializationError FailureKind = iota + 1
	// TransientNotReady never reaches callers; exhausted retries surface as BackendError.
	TransientNotReady
	BackendError
	ChannelUnavailable
)

func (k FailureKind) String() string {
	switch k {
	case InitializationError:
		return "initialization_error"
	case TransientNotReady:
		return "transient_not_ready"
	case BackendError:
		return "backend_error"
	case ChannelUnavailable:
		return "channel_unavailable"
	default:
		return "none"
	}
}

// Outcome is the terminal result of one Process call: either a result or a failure.
type Outcome struct {
	Result  string
	Failure *Failure

	// Attempts is the number of backend invocations made, retries included.
	Attempts int
}

// Failure carries the human-readable message shown to the user.
type Failure struct {
	Kind    FailureKind
	Message string
}

func Success(result string) Outcome {
	return Outcome{Result: result}
}

func Fail(kind FailureKind, message string) Outcome {
	return Outcome{Failure: &Failure{Kind: kind, Message: message}}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

func (o Outcome) String() string {
	if o.OK() {
		return fmt.Sprintf("Success(%q)", o.Result)
	}
	return fmt.Sprintf("Failure(%s, %q)", o.Failure.Kind, o.Failure.Message)
}

// InitializationFailed wraps the error returned by the runtime's Start.
type InitializationFailed struct {
	Runtime string
	Err     error
}

func (e *InitializationFailed) Error() string {
	return fmt.Sprintf("backend %s failed to start: %v", e.Runtime, e.Err)
}

func (e *InitializationFailed) Unwrap() error { return e.Err }
