package loop_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bekaIva/instant-ai-translator/internal/loop"
	"github.com/bekaIva/instant-ai-translator/internal/loop/looptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLooper_RunsTasksInOrder(t *testing.T) {
	l := loop.New()
	defer l.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLooper_OnLoop(t *testing.T) {
	l := loop.New()
	defer l.Close()

	assert.False(t, l.OnLoop())
	seen := make(chan bool, 1)
	l.Post(func() { seen <- l.OnLoop() })
	assert.True(t, <-seen)
}

func TestLooper_PostDelayed(t *testing.T) {
	timers := looptest.New()
	l := loop.New(loop.WithAfterFunc(timers.AfterFunc))
	defer l.Close()

	ran := make(chan bool, 1)
	require.True(t, l.PostDelayed(300*time.Millisecond, func() { ran <- l.OnLoop() }))
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, timers.Delays())

	select {
	case <-ran:
		t.Fatal("delayed task ran before its timer fired")
	default:
	}

	d, ok := timers.FireNext()
	require.True(t, ok)
	assert.Equal(t, 300*time.Millisecond, d)
	select {
	case onLoop := <-ran:
		assert.True(t, onLoop)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task did not run")
	}
}

func TestLooper_PostDelayedRealTimer(t *testing.T) {
	l := loop.New()
	defer l.Close()

	start := time.Now()
	ran := make(chan time.Duration, 1)
	l.PostDelayed(20*time.Millisecond, func() { ran <- time.Since(start) })
	select {
	case elapsed := <-ran:
		assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task did not run")
	}
}

func TestLooper_CloseStopsPending(t *testing.T) {
	timers := looptest.New()
	l := loop.New(loop.WithAfterFunc(timers.AfterFunc))

	ran := false
	l.PostDelayed(time.Second, func() { ran = true })
	require.Equal(t, 1, timers.Pending())

	l.Close()
	assert.Equal(t, 0, timers.Pending())
	_, fired := timers.FireNext()
	assert.False(t, fired)
	assert.False(t, ran)

	assert.False(t, l.Post(func() {}))
	assert.False(t, l.PostDelayed(time.Millisecond, func() {}))
	l.Close()
}

func TestLooper_DoneClosesOnClose(t *testing.T) {
	l := loop.New()
	select {
	case <-l.Done():
		t.Fatal("done before Close")
	default:
	}

	l.Close()
	select {
	case <-l.Done():
	default:
		t.Fatal("done not closed after Close")
	}
}

func TestLooper_SurvivesPanickingTask(t *testing.T) {
	l := loop.New()
	defer l.Close()

	l.Post(func() { panic("boom") })
	done := make(chan struct{})
	l.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("looper stopped after panic")
	}
}
