// Package loop provides Looper, a single goroutine that runs posted tasks one at a time.
// Hosts use it as the designated context on which processing outcomes are delivered.
package loop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bekaIva/instant-ai-translator/internal/log"
)

// Timer is a pending delayed task.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run on its own goroutine after d. f must not run before
// AfterFunc returns.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Option func(*Looper)

// WithAfterFunc replaces the timer source used by PostDelayed.
func WithAfterFunc(fn AfterFunc) Option {
	return func(l *Looper) {
		l.afterFunc = fn
	}
}

// Looper runs tasks sequentially on one goroutine in the order they were posted.
type Looper struct {
	afterFunc AfterFunc

	mu      sync.Mutex
	queue   []func()
	pending map[*delayed]struct{}
	closed  bool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	onLoop  atomic.Bool
}

type delayed struct {
	timer Timer
}

// New starts a Looper. Close must be called to release its goroutine.
func New(opts ...Option) *Looper {
	l := &Looper{
		afterFunc: stdAfterFunc,
		pending:   make(map[*delayed]struct{}),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.run()
	return l
}

// Post queues fn. It reports false when the looper is closed and fn will never run.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// PostDelayed queues fn once d has elapsed. The wait happens off the loop.
func (l *Looper) PostDelayed(d time.Duration, fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}

	task := &delayed{}
	l.pending[task] = struct{}{}
	// Held lock keeps the callback from observing task before timer is set.
	task.timer = l.afterFunc(d, func() {
		l.mu.Lock()
		_, ok := l.pending[task]
		delete(l.pending, task)
		l.mu.Unlock()
		if ok {
			l.Post(fn)
		}
	})
	return true
}

// Done returns a channel that is closed when Close is called. Tasks not yet started by
// then never run.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

// OnLoop reports whether a loop task is currently executing.
func (l *Looper) OnLoop() bool {
	return l.onLoop.Load()
}

// Close stops the looper. Queued and delayed tasks that have not started are dropped.
// Close waits for a running task to finish and must not be called from a loop task.
func (l *Looper) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.stopped
		return
	}
	l.closed = true
	for task := range l.pending {
		task.timer.Stop()
	}
	clear(l.pending)
	dropped := len(l.queue)
	l.queue = nil
	close(l.done)
	close(l.wake)
	l.mu.Unlock()

	if dropped > 0 {
		log.WithComponent("loop").Debug("dropping queued tasks on close", "count", dropped)
	}
	<-l.stopped
}

func (l *Looper) run() {
	defer close(l.stopped)
	for range l.wake {
		for {
			l.mu.Lock()
			if l.closed || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.exec(fn)
		}
	}
}

func (l *Looper) exec(fn func()) {
	l.onLoop.Store(true)
	defer l.onLoop.Store(false)
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("loop").Error("loop task panicked", "panic", r)
		}
	}()
	fn()
}
