package testbed

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/moikas-code/script-sub002/asyncify"
	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/executor"
	"github.com/moikas-code/script-sub002/ir"
	"github.com/moikas-code/script-sub002/irfile"
	"go.uber.org/zap"
)

// FetchHost answers fetch(key) with key*10, completing each future from its
// own goroutine.
type FetchHost struct {
	keys []int64
	mu   sync.Mutex
}

func (h *FetchHost) Fetch(args []any) (any, error) {
	key, ok := args[0].(int64)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseRuntime, []string{"fetch"}, "i32", args[0])
	}
	h.mu.Lock()
	h.keys = append(h.keys, key)
	h.mu.Unlock()

	d := executor.NewDeferred()
	go d.Complete(key * 10)
	return d, nil
}

func (h *FetchHost) Keys() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.keys...)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func load(t *testing.T, file string, cfg asyncify.Config) *ir.Module {
	t.Helper()
	m, err := irfile.Load(file)
	if err != nil {
		t.Fatalf("load %s: %v", file, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.Verify = true
	if _, err := asyncify.TransformAll(m, cfg); err != nil {
		t.Fatalf("lower %s: %v", file, err)
	}
	return m
}

func TestFetch_Total(t *testing.T) {
	m := load(t, "fetch.yaml", asyncify.Config{})
	host := &FetchHost{}
	ex := executor.New(m, executor.Options{
		Logger: zap.NewNop(),
		Hosts:  map[string]executor.HostFunc{"fetch": host.Fetch},
	})

	v, err := ex.BlockOn(testContext(t), "total", 5, 3)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if v != int64(80) {
		t.Errorf("total(5, 3) = %v, want 80", v)
	}
	keys := host.Keys()
	if len(keys) != 2 || keys[0] != 5 || keys[1] != 3 {
		t.Errorf("fetched %v, want [5 3]", keys)
	}
}

func TestFetch_ConcurrentTasks(t *testing.T) {
	m := load(t, "fetch.yaml", asyncify.Config{})
	host := &FetchHost{}
	ex := executor.New(m, executor.Options{
		Logger: zap.NewNop(),
		Hosts:  map[string]executor.HostFunc{"fetch": host.Fetch},
	})
	ctx := testContext(t)

	const n = 8
	tasks := make([]*executor.Task, n)
	for i := range tasks {
		task, err := ex.Go(ctx, "total", i, i+1)
		if err != nil {
			t.Fatal(err)
		}
		tasks[i] = task
	}
	if err := ex.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, task := range tasks {
		v, done, err := task.Result()
		if !done || err != nil {
			t.Fatalf("task %d: done=%v err=%v", i, done, err)
		}
		if want := int64((2*i + 1) * 10); v != want {
			t.Errorf("task %d = %v, want %d", i, v, want)
		}
	}
	if got := len(host.Keys()); got != 2*n {
		t.Errorf("host saw %d fetches, want %d", got, 2*n)
	}
}

func TestFetch_HostError(t *testing.T) {
	m := load(t, "fetch.yaml", asyncify.Config{})
	host := &FetchHost{}
	ex := executor.New(m, executor.Options{
		Logger: zap.NewNop(),
		Hosts:  map[string]executor.HostFunc{"fetch": host.Fetch},
	})
	_, err := ex.BlockOn(testContext(t), "total", "five", 3)
	if err == nil {
		t.Fatal("expected the host to reject a string key")
	}
	// Host failures surface as internal errors wrapping the host's error.
	if executor.ClassifyError(err) != executor.KindInternal {
		t.Errorf("ClassifyError = %v (%v)", executor.ClassifyError(err), err)
	}
	var cause *errors.Error
	if !stderrors.As(stderrors.Unwrap(err), &cause) || cause.Kind != errors.KindTypeMismatch {
		t.Errorf("cause = %v, want the host's type mismatch", stderrors.Unwrap(err))
	}
}

func TestFetch_MissingHost(t *testing.T) {
	m := load(t, "fetch.yaml", asyncify.Config{})
	ex := executor.New(m, executor.Options{Logger: zap.NewNop()})
	_, err := ex.BlockOn(testContext(t), "total", 1, 2)
	if errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("err = %v, want not found", err)
	}
}
