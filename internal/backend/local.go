package backend

import (
	"context"
	"strings"
	"sync/atomic"
)

// Operations served by LocalRuntime.
const (
	OpUppercase = "uppercase"
	OpPrefix    = "prefix"
	OpEcho      = "echo"
)

// LocalRuntime serves the built-in demo operations in-process. It needs no network or
// credentials and backs the fallback menu.
type LocalRuntime struct {
	warmup int64
}

type LocalOption func(*LocalRuntime)

// WithWarmup makes the first n invocations report ErrNotImplemented, reproducing a runtime
// whose handler registers shortly after start.
func WithWarmup(n int) LocalOption {
	return func(r *LocalRuntime) {
		r.warmup = int64(n)
	}
}

func NewLocalRuntime(opts ...LocalOption) *LocalRuntime {
	r := &LocalRuntime{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *LocalRuntime) Name() string { return "local" }

func (r *LocalRuntime) Start(context.Context) (Channel, error) {
	ch := &localChannel{}
	ch.warmup.Store(r.warmup)
	return ch, nil
}

type localChannel struct {
	warmup atomic.Int64
}

func (c *localChannel) Invoke(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.warmup.Load() > 0 && c.warmup.Add(-1) >= 0 {
		return "", ErrNotImplemented
	}

	switch req.Operation {
	case OpUppercase:
		return strings.ToUpper(req.Text), nil
	case OpPrefix:
		return "[AI] " + req.Text, nil
	case OpEcho:
		return req.Text, nil
	default:
		return "", &Error{Code: "unknown_operation", Message: "operation " + req.Operation + " is not supported by the local runtime"}
	}
}
