// Package looptest provides a manual timer source for deterministic Looper tests.
package looptest

import (
	"sync"
	"time"

	"github.com/bekaIva/instant-ai-translator/internal/loop"
)

// Timers records scheduled delays and fires them on demand.
type Timers struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []*timer
	armed   chan struct{}
}

type timer struct {
	owner   *Timers
	d       time.Duration
	f       func()
	stopped bool
}

func (t *timer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func New() *Timers {
	return &Timers{armed: make(chan struct{}, 64)}
}

// AfterFunc satisfies loop.AfterFunc.
func (ts *Timers) AfterFunc(d time.Duration, f func()) loop.Timer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &timer{owner: ts, d: d, f: f}
	ts.delays = append(ts.delays, d)
	ts.pending = append(ts.pending, t)
	select {
	case ts.armed <- struct{}{}:
	default:
	}
	return t
}

// Delays returns every delay scheduled so far, in order.
func (ts *Timers) Delays() []time.Duration {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]time.Duration(nil), ts.delays...)
}

// Pending returns the number of timers neither fired nor stopped.
func (ts *Timers) Pending() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for _, t := range ts.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

// WaitArmed blocks until a timer is scheduled or timeout elapses.
func (ts *Timers) WaitArmed(timeout time.Duration) bool {
	select {
	case <-ts.armed:
		return true
	case <-time.After(timeout):
		return false
	}
}

// FireNext runs the oldest live timer on the calling goroutine and returns its delay.
func (ts *Timers) FireNext() (time.Duration, bool) {
	ts.mu.Lock()
	var next *timer
	for len(ts.pending) > 0 {
		t := ts.pending[0]
		ts.pending = ts.pending[1:]
		if !t.stopped {
			next = t
			break
		}
	}
	if next != nil {
		next.stopped = true
	}
	ts.mu.Unlock()

	if next == nil {
		return 0, false
	}
	next.f()
	return next.d, true
}
