package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
	"go.uber.org/zap"
)

// ErrorKind categorizes step errors for integration with external error
// handling.
type ErrorKind string

const (
	KindUnknown  ErrorKind = "Unknown"
	KindCanceled ErrorKind = "Canceled"
	KindTimeout  ErrorKind = "Timeout"
	KindInternal ErrorKind = "Internal"
	KindInvalid  ErrorKind = "Invalid"
	KindRuntime  ErrorKind = "Runtime"
)

// ClassifyError maps err to an ErrorKind.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if stderrors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	switch errors.KindOf(err) {
	case "":
		return KindUnknown
	case errors.KindInternal:
		return KindInternal
	case errors.KindInvalidState:
		return KindInvalid
	}
	return KindRuntime
}

// StepStatus is the outcome of polling a task once.
type StepStatus int

const (
	StepPending StepStatus = iota // not ready, waiting for a wake-up
	StepDone                      // completed with a value
	StepFailed                    // stopped with an error
)

func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepDone:
		return "done"
	}
	return "failed"
}

// StepResult describes one poll of a task. Yielded is set on a pending step
// that left no future holding the task's waker; the task is re-queued.
type StepResult struct {
	Value     any
	Error     error
	ErrorKind ErrorKind
	Status    StepStatus
	Yielded   bool
}

// Options configures an Executor.
type Options struct {
	Logger *zap.Logger
	// Hosts resolves external functions by name. Builtins are added unless
	// a host of the same name is given.
	Hosts    map[string]HostFunc
	MaxSteps int
}

// Executor drives lowered async functions to completion on a single
// goroutine. Wake-ups may come from any goroutine.
type Executor struct {
	interp *Interpreter
	log    *zap.Logger
	notify chan struct{}
	queue  []*Task
	tasks  []*Task
	mu     sync.Mutex
	nextID uint64
}

// New returns an executor for m.
func New(m *ir.Module, opts Options) *Executor {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	hosts := Builtins()
	for name, h := range opts.Hosts {
		hosts[name] = h
	}
	return &Executor{
		interp: NewInterpreter(m, hosts, log, opts.MaxSteps),
		log:    log,
		notify: make(chan struct{}, 1),
	}
}

// Interpreter returns the executor's interpreter.
func (e *Executor) Interpreter() *Interpreter { return e.interp }

// Call runs the named function synchronously. For a lowered async function
// this returns its state record without polling it.
func (e *Executor) Call(ctx context.Context, name string, args ...any) (any, error) {
	fn := e.interp.m.FunctionByName(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	vals := make([]any, len(args))
	for i, a := range args {
		v, err := ToValue(a)
		if err != nil {
			return nil, err
		}
		if i < len(fn.Params) && isInt(fn.Params[i].Type) {
			if n, ok := v.(int64); ok {
				v = normalizeInt(fn.Params[i].Type, n)
			}
		}
		vals[i] = v
	}
	e.log.Debug("call", zap.String("function", name), zap.Int("args", len(vals)))
	return e.interp.Call(ctx, fn, vals)
}

// Task is a spawned future. A Task is itself a Future, so one task can await
// another.
type Task struct {
	value   any
	err     error
	fut     any
	exec    *Executor
	waiters []Waker
	mu      sync.Mutex
	ID      uint64
	polls   int
	queued  bool
	done    bool
}

// Spawn schedules f, a state record or a Future, and returns its task.
func (e *Executor) Spawn(f any) (*Task, error) {
	switch f.(type) {
	case *Record, Future:
	default:
		return nil, errors.TypeMismatch(errors.PhaseRuntime, []string{"spawn"}, "future", f)
	}
	e.mu.Lock()
	e.nextID++
	t := &Task{ID: e.nextID, fut: f, exec: e}
	e.tasks = append(e.tasks, t)
	e.mu.Unlock()
	e.schedule(t)
	e.log.Debug("task spawned", zap.Uint64("task", t.ID))
	return t, nil
}

// Go calls the named function and spawns the result.
func (e *Executor) Go(ctx context.Context, name string, args ...any) (*Task, error) {
	f, err := e.Call(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	return e.Spawn(f)
}

// Result returns the task's value and error. done is false while the task
// is still running.
func (t *Task) Result() (v any, done bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.done, t.err
}

// Polls returns how often the task has been polled.
func (t *Task) Polls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.polls
}

// Poll implements Future. A failed task reads as ready with a nil value.
func (t *Task) Poll(w Waker) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return t.value, true
	}
	t.waiters = append(t.waiters, w)
	return nil, false
}

func (t *Task) Wake() { t.exec.schedule(t) }

func (t *Task) finish(v any, err error) {
	t.mu.Lock()
	t.value, t.err, t.done = v, err, true
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()
	for _, w := range waiters {
		w.Wake()
	}
}

func (e *Executor) schedule(t *Task) {
	e.mu.Lock()
	t.mu.Lock()
	skip := t.done || t.queued
	if !skip {
		t.queued = true
	}
	t.mu.Unlock()
	if !skip {
		e.queue = append(e.queue, t)
	}
	e.mu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// PollOnce polls t a single time, whether or not it was woken.
func (e *Executor) PollOnce(ctx context.Context, t *Task) StepResult {
	if err := ctx.Err(); err != nil {
		return StepResult{Status: StepFailed, Error: err, ErrorKind: ClassifyError(err)}
	}
	t.mu.Lock()
	if t.done {
		v, err := t.value, t.err
		t.mu.Unlock()
		if err != nil {
			return StepResult{Status: StepFailed, Error: err, ErrorKind: ClassifyError(err)}
		}
		return StepResult{Status: StepDone, Value: v}
	}
	t.queued = false
	t.polls++
	t.mu.Unlock()

	v, ready, yielded, err := e.interp.Poll(ctx, t.fut, t)
	if err != nil {
		e.log.Debug("task failed", zap.Uint64("task", t.ID), zap.Error(err))
		t.finish(nil, err)
		return StepResult{Status: StepFailed, Error: err, ErrorKind: ClassifyError(err)}
	}
	if !ready {
		if yielded {
			e.schedule(t)
		}
		return StepResult{Status: StepPending, Yielded: yielded}
	}
	e.log.Debug("task completed", zap.Uint64("task", t.ID), zap.Any("value", v))
	t.finish(v, nil)
	return StepResult{Status: StepDone, Value: v}
}

// Step polls the next woken task. ok is false when no task is queued.
func (e *Executor) Step(ctx context.Context) (t *Task, res StepResult, ok bool) {
	t = e.pop()
	if t == nil {
		return nil, StepResult{}, false
	}
	return t, e.PollOnce(ctx, t), true
}

func (e *Executor) pop() *Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil
	}
	t := e.queue[0]
	e.queue = e.queue[1:]
	return t
}

func (e *Executor) live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, t := range e.tasks {
		if _, done, _ := t.Result(); !done {
			n++
		}
	}
	return n
}

// Run polls woken tasks until every spawned task is done or ctx ends. It
// returns the first task error, if any.
func (e *Executor) Run(ctx context.Context) error {
	var first error
	for {
		t, res, ok := e.Step(ctx)
		if !ok {
			if e.live() == 0 {
				return first
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.notify:
			}
			continue
		}
		if res.Status == StepFailed && first == nil {
			first = fmt.Errorf("task %d: %w", t.ID, res.Error)
			if res.ErrorKind == KindCanceled || res.ErrorKind == KindTimeout {
				return first
			}
		}
	}
}

// BlockOn calls the named function, runs the executor until its task is done
// and returns the task's value. A function that returns neither a state
// record nor a Future is not spawned; its value is returned as is.
func (e *Executor) BlockOn(ctx context.Context, name string, args ...any) (any, error) {
	f, err := e.Call(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	switch f.(type) {
	case *Record, Future:
	default:
		return f, nil
	}
	t, err := e.Spawn(f)
	if err != nil {
		return nil, err
	}
	runErr := e.Run(ctx)
	v, done, err := t.Result()
	if !done {
		if runErr != nil {
			return nil, runErr
		}
		return nil, errors.InvalidState([]string{"task"}, "task did not complete")
	}
	return v, err
}

// ToValue converts a Go value to its runtime representation.
func ToValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, int64, float64, string:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case *Cell, *Struct, *Enum, *Record, Future, Waker:
		return x, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseRuntime, []string{"argument"}, "runtime value", v)
}
