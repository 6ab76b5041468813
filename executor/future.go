package executor

import "sync"

// Waker is handed to every poll. A future that returns pending must arrange
// for Wake to be called once progress is possible.
type Waker interface {
	Wake()
}

// WakerFunc adapts a function to Waker.
type WakerFunc func()

// Wake implements Waker.
func (f WakerFunc) Wake() { f() }

// NoopWaker ignores wake-ups.
var NoopWaker Waker = WakerFunc(func() {})

// Future is a host-side asynchronous value. Poll returns the value and true
// once ready. Ready futures must keep returning the same value.
type Future interface {
	Poll(w Waker) (any, bool)
}

type readyFuture struct{ v any }

// Ready returns a future that is complete from the start.
func Ready(v any) Future { return readyFuture{v: v} }

func (f readyFuture) Poll(Waker) (any, bool) { return f.v, true }

// Countdown is pending for its first n polls and ready afterwards. Each
// pending poll wakes the waker right away.
type Countdown struct {
	value any
	left  int
	mu    sync.Mutex
}

// NewCountdown returns a future that becomes ready with v after n polls.
func NewCountdown(n int, v any) *Countdown {
	return &Countdown{left: n, value: v}
}

// Poll implements Future.
func (c *Countdown) Poll(w Waker) (any, bool) {
	c.mu.Lock()
	if c.left <= 0 {
		c.mu.Unlock()
		return c.value, true
	}
	c.left--
	c.mu.Unlock()
	w.Wake()
	return nil, false
}

// Deferred is completed from outside, possibly from another goroutine.
type Deferred struct {
	value any
	waker Waker
	mu    sync.Mutex
	done  bool
}

// NewDeferred returns an incomplete future.
func NewDeferred() *Deferred { return &Deferred{} }

// Complete sets the value and wakes the last poller. Later calls are ignored.
func (d *Deferred) Complete(v any) {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return
	}
	d.done = true
	d.value = v
	w := d.waker
	d.waker = nil
	d.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

// Poll implements Future.
func (d *Deferred) Poll(w Waker) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return d.value, true
	}
	d.waker = w
	return nil, false
}
