// Package dispatch delivers results and notifications onto the execution
// context of the caller that asked for them, never onto a session worker.
package dispatch

import (
	"context"
	"sync"
)

// Context is an execution context able to run scheduled functions, such as
// an event loop or a UI program. Post must not block and must not run fn
// before returning; functions posted from one goroutine run in order.
type Context interface {
	Post(fn func())
}

// Dispatch schedules fn(v) on c.
func Dispatch[T any](c Context, fn func(T), v T) {
	if c == nil || fn == nil {
		return
	}

	c.Post(func() { fn(v) })
}

// Func adapts a function to a Context. The function is responsible for
// running fn on its own context.
type Func func(fn func())

// Post calls f.
func (f Func) Post(fn func()) {
	f(fn)
}

// Loop is a FIFO event loop. Functions posted to it run on the goroutine
// calling Run or RunPending.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	closed  bool
}

// NewLoop returns an empty loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post appends fn to the loop. Functions posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes posted functions until ctx is done or the loop is closed.
// Functions still pending when the loop is closed are run before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()

		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			l.RunPending()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-l.wake:
		}
	}
}

// RunPending executes the functions posted so far, including those posted
// by the functions it runs, and returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}

		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Close stops the loop. Run returns after draining what was already posted.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}
