// Package bridge dispatches text processing requests to the backend runtime.
//
// The bridge owns the single backend channel for the process. It starts the runtime
// lazily on first use, retries calls while the runtime reports it is not ready yet, and
// delivers exactly one Outcome per call on the host's designated executor.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/bekaIva/instant-ai-translator/internal/backend"
	"github.com/bekaIva/instant-ai-translator/internal/config"
	"github.com/bekaIva/instant-ai-translator/internal/log"
)

// ErrChannelUnavailable is returned when the runtime started but produced no channel.
var ErrChannelUnavailable = errors.New("backend not available")

// Executor is the designated context outcomes are delivered on. *loop.Looper satisfies it.
type Executor interface {
	Post(fn func()) bool
	PostDelayed(d time.Duration, fn func()) bool
	// Done is closed once the executor stops running tasks.
	Done() <-chan struct{}
}

// Call describes a finished Process call. Observers receive one per call.
type Call struct {
	Text      string
	Operation string
	Outcome   Outcome
	Duration  time.Duration
}

type Option func(*Bridge)

func WithRetry(rc config.RetryConfig) Option {
	return func(b *Bridge) {
		b.retry = rc
	}
}

// WithCallTimeout bounds each backend invocation. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.callTimeout = d
	}
}

// WithRegisterer registers the bridge metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *Bridge) {
		b.registerer = reg
	}
}

// WithObserver adds fn to the functions told about every finished call. Observers run off
// the executor before the outcome is delivered.
func WithObserver(fn func(Call)) Option {
	return func(b *Bridge) {
		b.observers = append(b.observers, fn)
	}
}

// Bridge is safe for concurrent use.
type Bridge struct {
	runtime     backend.Runtime
	exec        Executor
	retry       config.RetryConfig
	callTimeout time.Duration
	registerer  prometheus.Registerer
	observers   []func(Call)
	metrics     *metrics
	logger      *slog.Logger

	mu      sync.Mutex
	state   State
	channel backend.Channel
	starts  singleflight.Group
}

func New(rt backend.Runtime, exec Executor, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		runtime: rt,
		exec:    exec,
		retry:   config.DefaultRetry(),
		logger:  log.WithComponent("bridge").With("runtime", rt.Name()),
	}
	for _, opt := range opts {
		opt(b)
	}
	m, err := newMetrics(b.registerer)
	if err != nil {
		return nil, err
	}
	b.metrics = m
	return b, nil
}

// State returns the current channel state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// EnsureReady returns the shared channel, starting the runtime if needed. Concurrent
// callers during the first start share a single Runtime.Start. A failed start leaves the
// bridge Uninitialized; the next call tries again.
func (b *Bridge) EnsureReady(ctx context.Context) (backend.Channel, error) {
	b.mu.Lock()
	if b.state == Ready {
		ch := b.channel
		b.mu.Unlock()
		return ch, nil
	}
	b.mu.Unlock()

	// The start is shared, so one caller's cancellation must not abort it for the others.
	startCtx := context.WithoutCancel(ctx)
	v, err, _ := b.starts.Do("start", func() (any, error) {
		b.mu.Lock()
		if b.state == Ready {
			ch := b.channel
			b.mu.Unlock()
			return ch, nil
		}
		b.state = Initializing
		b.mu.Unlock()

		b.logger.Info("starting backend")
		ch, err := b.runtime.Start(startCtx)
		if err == nil && ch == nil {
			err = ErrChannelUnavailable
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if err != nil {
			b.state = Uninitialized
			b.metrics.inits.WithLabelValues("failure").Inc()
			b.logger.Error("backend failed to start", "error", err)
			if errors.Is(err, ErrChannelUnavailable) {
				return nil, err
			}
			return nil, &InitializationFailed{Runtime: b.runtime.Name(), Err: err}
		}
		b.state = Ready
		b.channel = ch
		b.metrics.inits.WithLabelValues("success").Inc()
		b.logger.Info("backend ready")
		return ch, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(backend.Channel), nil
}

// Process runs operation on text and delivers exactly one Outcome via deliver on the
// executor. It returns immediately. Cancelling ctx does not stop an accepted call.
func (b *Bridge) Process(ctx context.Context, text, operation string, deliver func(Outcome)) {
	c := &call{
		bridge:  b,
		ctx:     context.WithoutCancel(ctx),
		req:     backend.Request{Text: text, Operation: operation},
		deliver: deliver,
		started: time.Now(),
		logger:  b.logger.With("operation", operation),
	}
	go c.begin()
}

// ProcessSync is Process for request/response hosts. It waits for the outcome or ctx.
// When ctx ends first the call keeps running and its outcome is discarded.
func (b *Bridge) ProcessSync(ctx context.Context, text, operation string) (Outcome, error) {
	done := make(chan Outcome, 1)
	b.Process(ctx, text, operation, func(o Outcome) {
		done <- o
	})
	select {
	case o := <-done:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// retryDelay returns the wait before retry number attempt (0-based).
func (b *Bridge) retryDelay(attempt int) time.Duration {
	d := b.retry.BaseDelay * time.Duration(attempt+1)
	if b.retry.MaxDelay > 0 && d > b.retry.MaxDelay {
		d = b.retry.MaxDelay
	}
	return d
}

type call struct {
	bridge   *Bridge
	ctx      context.Context
	req      backend.Request
	deliver  func(Outcome)
	started  time.Time
	attempts int
	logger   *slog.Logger
}

func (c *call) begin() {
	ch, err := c.bridge.EnsureReady(c.ctx)
	if err != nil {
		if errors.Is(err, ErrChannelUnavailable) {
			c.finish(Fail(ChannelUnavailable, ErrChannelUnavailable.Error()))
			return
		}
		c.finish(Fail(InitializationError, err.Error()))
		return
	}
	c.invoke(ch)
}

func (c *call) invoke(ch backend.Channel) {
	if ch == nil {
		c.finish(Fail(ChannelUnavailable, ErrChannelUnavailable.Error()))
		return
	}

	for {
		retryN := c.attempts
		c.attempts++
		result, err := c.attempt(ch)
		if err == nil {
			c.finish(Success(result))
			return
		}

		if !backend.IsTransient(err) {
			c.finish(Fail(BackendError, err.Error()))
			return
		}
		if retryN >= c.bridge.retry.MaxRetries {
			c.logger.Warn("backend still not ready, giving up", "attempts", c.attempts, "error", err)
			c.finish(Fail(BackendError, err.Error()))
			return
		}

		if !c.waitRetry(retryN) {
			c.finish(Fail(BackendError, "executor closed before retry"))
			return
		}
	}
}

func (c *call) attempt(ch backend.Channel) (string, error) {
	ctx := c.ctx
	if c.bridge.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.bridge.callTimeout)
		defer cancel()
	}
	return ch.Invoke(ctx, c.req)
}

// waitRetry waits for the executor to run the retry timer for attempt retryN. It reports
// false when the executor closed first.
func (c *call) waitRetry(retryN int) bool {
	b := c.bridge
	delay := b.retryDelay(retryN)
	c.logger.Debug("backend not ready, retrying", "attempt", retryN, "delay", delay)
	b.metrics.retries.Inc()

	due := make(chan struct{})
	if !b.exec.PostDelayed(delay, func() { close(due) }) {
		return false
	}
	select {
	case <-due:
		return true
	case <-b.exec.Done():
		return false
	}
}

func (c *call) finish(o Outcome) {
	b := c.bridge
	o.Attempts = c.attempts
	elapsed := time.Since(c.started)
	b.metrics.observe(o, elapsed.Seconds())

	if o.OK() {
		c.logger.Debug("call succeeded", "attempts", o.Attempts, "duration", elapsed)
	} else {
		c.logger.Warn("call failed", "kind", o.Failure.Kind.String(), "error", o.Failure.Message, "attempts", o.Attempts)
	}

	for _, fn := range b.observers {
		fn(Call{Text: c.req.Text, Operation: c.req.Operation, Outcome: o, Duration: elapsed})
	}

	if !b.exec.Post(func() { c.deliver(o) }) {
		c.logger.Warn("executor closed, outcome dropped")
	}
}
