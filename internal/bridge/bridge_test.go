package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bekaIva/instant-ai-translator/internal/backend"
	"github.com/bekaIva/instant-ai-translator/internal/backend/mocks"
	"github.com/bekaIva/instant-ai-translator/internal/config"
	"github.com/bekaIva/instant-ai-translator/internal/log"
	"github.com/bekaIva/instant-ai-translator/internal/loop"
	"github.com/bekaIva/instant-ai-translator/internal/loop/looptest"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	// genai pulls in opencensus, whose view worker starts in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type delivery struct {
	outcome Outcome
	onLoop  bool
}

type harness struct {
	t       *testing.T
	ctrl    *gomock.Controller
	runtime *mocks.MockRuntime
	channel *mocks.MockChannel
	timers  *looptest.Timers
	looper  *loop.Looper
	reg     *prometheus.Registry
	bridge  *Bridge
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	ctrl := gomock.NewController(t)
	h := &harness{
		t:       t,
		ctrl:    ctrl,
		runtime: mocks.NewMockRuntime(ctrl),
		channel: mocks.NewMockChannel(ctrl),
		timers:  looptest.New(),
		reg:     prometheus.NewRegistry(),
	}
	h.runtime.EXPECT().Name().Return("mock").AnyTimes()
	h.looper = loop.New(loop.WithAfterFunc(h.timers.AfterFunc))
	t.Cleanup(h.looper.Close)

	opts = append([]Option{WithRegisterer(h.reg)}, opts...)
	b, err := New(h.runtime, h.looper, opts...)
	require.NoError(t, err)
	h.bridge = b
	return h
}

func (h *harness) process(text, op string) <-chan delivery {
	out := make(chan delivery, 1)
	h.bridge.Process(context.Background(), text, op, func(o Outcome) {
		out <- delivery{outcome: o, onLoop: h.looper.OnLoop()}
	})
	return out
}

func (h *harness) await(ch <-chan delivery) delivery {
	h.t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		h.t.Fatal("no outcome delivered")
		return delivery{}
	}
}

// fireRetries fires n scheduled retry timers in order.
func (h *harness) fireRetries(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		require.True(h.t, h.timers.WaitArmed(2*time.Second), "retry %d was not scheduled", i)
		_, ok := h.timers.FireNext()
		require.True(h.t, ok)
	}
}

func (h *harness) counter(name string, labels map[string]string) float64 {
	h.t.Helper()
	families, err := h.reg.Gather()
	require.NoError(h.t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestProcess_Success(t *testing.T) {
	h := newHarness(t)
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	h.channel.EXPECT().
		Invoke(gomock.Any(), backend.Request{Text: "hello", Operation: "uppercase"}).
		Return("HELLO", nil)

	d := h.await(h.process("hello", "uppercase"))
	require.True(t, d.outcome.OK(), d.outcome.String())
	assert.Equal(t, "HELLO", d.outcome.Result)
	assert.Equal(t, 1, d.outcome.Attempts)
	assert.True(t, d.onLoop, "outcome must be delivered on the executor")
	assert.Equal(t, Ready, h.bridge.State())
	assert.Empty(t, h.timers.Delays())
	assert.Equal(t, 1.0, h.counter("instant_ai_bridge_calls_total", map[string]string{"outcome": "success", "kind": ""}))
}

func TestProcess_EmptyResultPassesThrough(t *testing.T) {
	h := newHarness(t)
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("", nil)

	d := h.await(h.process("hello", "summarize"))
	require.True(t, d.outcome.OK())
	assert.Equal(t, "", d.outcome.Result)
}

func TestProcess_RetriesUntilReady(t *testing.T) {
	h := newHarness(t)
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	gomock.InOrder(
		h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("", backend.ErrNotImplemented).Times(3),
		h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("done", nil),
	)

	out := h.process("hello", "translate")
	h.fireRetries(3)
	d := h.await(out)

	require.True(t, d.outcome.OK(), d.outcome.String())
	assert.Equal(t, "done", d.outcome.Result)
	assert.Equal(t, 4, d.outcome.Attempts)
	assert.True(t, d.onLoop)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 600 * time.Millisecond, 900 * time.Millisecond}, h.timers.Delays())
	assert.Equal(t, 3.0, h.counter("instant_ai_bridge_retries_total", nil))

	select {
	case extra := <-out:
		t.Fatalf("second outcome delivered: %v", extra.outcome)
	default:
	}
}

func TestProcess_RetriesExhausted(t *testing.T) {
	h := newHarness(t)
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("", backend.ErrNotImplemented).Times(4)

	out := h.process("hello", "translate")
	h.fireRetries(3)
	d := h.await(out)

	require.False(t, d.outcome.OK())
	assert.Equal(t, BackendError, d.outcome.Failure.Kind)
	assert.Equal(t, backend.ErrNotImplemented.Error(), d.outcome.Failure.Message)
	assert.Equal(t, 4, d.outcome.Attempts)
	assert.Len(t, h.timers.Delays(), 3)
	assert.Equal(t, 0, h.timers.Pending())
	assert.Equal(t, 1.0, h.counter("instant_ai_bridge_calls_total", map[string]string{"outcome": "failure", "kind": "backend_error"}))
}

func TestProcess_ExecutorClosedDuringRetryWait(t *testing.T) {
	calls := make(chan Call, 2)
	h := newHarness(t, WithObserver(func(c Call) { calls <- c }))
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("", backend.ErrNotImplemented).Times(1)

	out := h.process("hello", "translate")
	require.True(t, h.timers.WaitArmed(2*time.Second), "retry was not scheduled")
	h.looper.Close()

	select {
	case c := <-calls:
		require.False(t, c.Outcome.OK())
		assert.Equal(t, BackendError, c.Outcome.Failure.Kind)
		assert.Equal(t, "executor closed before retry", c.Outcome.Failure.Message)
		assert.Equal(t, 1, c.Outcome.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("call never finished")
	}
	assert.Equal(t, 1.0, h.counter("instant_ai_bridge_calls_total", map[string]string{"outcome": "failure", "kind": "backend_error"}))

	select {
	case d := <-out:
		t.Fatalf("outcome delivered on a closed executor: %v", d.outcome)
	case c := <-calls:
		t.Fatalf("second call recorded: %v", c.Outcome)
	default:
	}
}

func TestProcess_RetryScheduleFollowsConfig(t *testing.T) {
	h := newHarness(t, WithRetry(config.RetryConfig{MaxRetries: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond}))
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("", &backend.Error{Code: "warming_up", Retryable: true}).Times(5)

	out := h.process("hello", "translate")
	h.fireRetries(4)
	d := h.await(out)

	require.False(t, d.outcome.OK())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}, h.timers.Delays())
}

func TestProcess_FatalErrorIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return("", &backend.Error{Code: "quota", Message: "quota exceeded"}).Times(1)

	d := h.await(h.process("hello", "translate"))

	require.False(t, d.outcome.OK())
	assert.Equal(t, BackendError, d.outcome.Failure.Kind)
	assert.Equal(t, "quota: quota exceeded", d.outcome.Failure.Message)
	assert.Equal(t, 1, d.outcome.Attempts)
	assert.Empty(t, h.timers.Delays())
}

func TestProcess_LegacyNotReadyMessageIsRetried(t *testing.T) {
	h := newHarness(t)
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	gomock.InOrder(
		h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).
			Return("", &backend.Error{Code: "error", Message: "MissingPluginException(No implementation found)"}),
		h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("ok", nil),
	)

	out := h.process("hello", "translate")
	h.fireRetries(1)
	d := h.await(out)
	require.True(t, d.outcome.OK())
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, h.timers.Delays())
}

func TestProcess_InitializationFailure(t *testing.T) {
	h := newHarness(t)
	h.runtime.EXPECT().Start(gomock.Any()).Return(nil, errors.New("model missing")).Times(2)

	d := h.await(h.process("hello", "translate"))
	require.False(t, d.outcome.OK())
	assert.Equal(t, InitializationError, d.outcome.Failure.Kind)
	assert.Contains(t, d.outcome.Failure.Message, "model missing")
	assert.Equal(t, 0, d.outcome.Attempts)
	assert.True(t, d.onLoop)
	assert.Equal(t, Uninitialized, h.bridge.State())

	// Not retried automatically, but the next call starts again.
	d = h.await(h.process("hello", "translate"))
	assert.Equal(t, InitializationError, d.outcome.Failure.Kind)
	assert.Equal(t, 2.0, h.counter("instant_ai_bridge_initializations_total", map[string]string{"result": "failure"}))
}

func TestProcess_ChannelUnavailable(t *testing.T) {
	h := newHarness(t)
	h.runtime.EXPECT().Start(gomock.Any()).Return(nil, nil)

	d := h.await(h.process("hello", "translate"))
	require.False(t, d.outcome.OK())
	assert.Equal(t, ChannelUnavailable, d.outcome.Failure.Kind)
	assert.Equal(t, "backend not available", d.outcome.Failure.Message)
	assert.Equal(t, Uninitialized, h.bridge.State())
}

func TestEnsureReady_ConcurrentFirstCallsStartOnce(t *testing.T) {
	h := newHarness(t)
	var starts atomic.Int32
	h.runtime.EXPECT().Start(gomock.Any()).DoAndReturn(func(context.Context) (backend.Channel, error) {
		starts.Add(1)
		time.Sleep(50 * time.Millisecond)
		return h.channel, nil
	}).Times(1)
	h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("ok", nil).Times(20)

	const n = 20
	outs := make([]<-chan delivery, n)
	for i := range outs {
		outs[i] = h.process("hello", "echo")
	}
	for _, out := range outs {
		d := h.await(out)
		assert.True(t, d.outcome.OK())
		assert.True(t, d.onLoop)
	}
	assert.Equal(t, int32(1), starts.Load())
	assert.Equal(t, 1.0, h.counter("instant_ai_bridge_initializations_total", map[string]string{"result": "success"}))
}

func TestEnsureReady_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil).Times(1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := h.bridge.EnsureReady(context.Background())
			assert.NoError(t, err)
			assert.Same(t, h.channel, ch)
		}()
	}
	wg.Wait()

	ch, err := h.bridge.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.Same(t, h.channel, ch)
}

func TestEnsureReady_ReportsInitializationFailed(t *testing.T) {
	h := newHarness(t)
	cause := errors.New("no credentials")
	h.runtime.EXPECT().Start(gomock.Any()).Return(nil, cause)

	_, err := h.bridge.EnsureReady(context.Background())
	var initErr *InitializationFailed
	require.ErrorAs(t, err, &initErr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "mock", initErr.Runtime)
}

func TestProcessSync(t *testing.T) {
	h := newHarness(t)
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("HELLO", nil)

	o, err := h.bridge.ProcessSync(context.Background(), "hello", "uppercase")
	require.NoError(t, err)
	assert.Equal(t, Success("HELLO").Result, o.Result)
}

func TestProcessSync_ContextEndsFirst(t *testing.T) {
	h := newHarness(t)
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("", backend.ErrNotImplemented).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		h.timers.WaitArmed(2 * time.Second)
		cancel()
	}()
	_, err := h.bridge.ProcessSync(ctx, "hello", "translate")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcess_CallTimeoutBoundsEachAttempt(t *testing.T) {
	h := newHarness(t, WithCallTimeout(20*time.Millisecond))
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ backend.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	d := h.await(h.process("hello", "translate"))
	require.False(t, d.outcome.OK())
	assert.Equal(t, BackendError, d.outcome.Failure.Kind)
	assert.Equal(t, context.DeadlineExceeded.Error(), d.outcome.Failure.Message)
}

func TestProcess_Observers(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []Call
	)
	h := newHarness(t, WithObserver(func(c Call) {
		mu.Lock()
		calls = append(calls, c)
		mu.Unlock()
	}))
	h.runtime.EXPECT().Start(gomock.Any()).Return(h.channel, nil)
	h.channel.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return("HELLO", nil)

	h.await(h.process("hello", "uppercase"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.Equal(t, "hello", calls[0].Text)
	assert.Equal(t, "uppercase", calls[0].Operation)
	assert.True(t, calls[0].Outcome.OK())
}

func TestNew_SharedRegistry(t *testing.T) {
	ctrl := gomock.NewController(t)
	rt := mocks.NewMockRuntime(ctrl)
	rt.EXPECT().Name().Return("mock").AnyTimes()
	l := loop.New()
	defer l.Close()

	reg := prometheus.NewRegistry()
	_, err := New(rt, l, WithRegisterer(reg))
	require.NoError(t, err)
	_, err = New(rt, l, WithRegisterer(reg))
	require.NoError(t, err, "a second bridge reuses the registered collectors")
}

func TestRetryDelay(t *testing.T) {
	b := &Bridge{retry: config.DefaultRetry()}
	want := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond, 900 * time.Millisecond, 900 * time.Millisecond}
	for n, w := range want {
		assert.Equal(t, w, b.retryDelay(n), "attempt %d", n)
	}
}
