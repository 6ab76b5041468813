package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/moikas-code/script-sub002/asyncify"
	"github.com/moikas-code/script-sub002/executor"
	"github.com/moikas-code/script-sub002/ir"
	"github.com/moikas-code/script-sub002/irfile"
	"go.uber.org/zap"
)

const programs = "../../irfile/testdata"

func TestParseArgs(t *testing.T) {
	params := []ir.Param{
		{Name: "a", Type: ir.I32},
		{Name: "b", Type: ir.U8},
		{Name: "c", Type: ir.F64},
		{Name: "d", Type: ir.Bool},
		{Name: "e", Type: ir.String},
	}
	got, err := parseArgs(" -3, 0x10,2.5,true, \"x y\"", params)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{int64(-3), int64(16), 2.5, true, "x y"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %v (%T), want %v", i, got[i], got[i], want[i])
		}
	}

	tests := []struct {
		name   string
		args   string
		params []ir.Param
	}{
		{"too few", "1", params[:2]},
		{"too many", "1,2", params[:1]},
		{"bad int", "one", params[:1]},
		{"bad bool", "maybe", params[3:4]},
		{"unsupported type", "1", []ir.Param{{Name: "p", Type: ir.Ptr(ir.I32)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseArgs(tt.args, tt.params); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if got, err := parseArgs("", nil); err != nil || len(got) != 0 {
		t.Errorf("no args = %v, %v", got, err)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "()"},
		{"hi", `"hi"`},
		{int64(4), "4"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func loadLowered(t *testing.T, file string) (*ir.Module, []*asyncify.Info) {
	t.Helper()
	m, err := irfile.Load(filepath.Join(programs, file))
	if err != nil {
		t.Fatal(err)
	}
	infos, err := lower(m, "", asyncify.Config{Verify: true, Logger: zap.NewNop()})
	if err != nil {
		t.Fatal(err)
	}
	return m, infos
}

func TestLower(t *testing.T) {
	m, err := irfile.Load(filepath.Join(programs, "sum.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lower(m, "missing", asyncify.Config{}); err == nil {
		t.Error("lowering an unknown function succeeded")
	}
	infos, err := lower(m, "sum", asyncify.Config{Verify: true, Logger: zap.NewNop()})
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || len(infos[0].SuspendPoints) != 2 {
		t.Fatalf("infos = %+v", infos)
	}
	if infoFor(infos, m.FunctionByName("sum").ID) != infos[0] {
		t.Error("infoFor did not find the lowered function")
	}
	if infoFor(infos, m.FunctionByName("ready").ID) != nil {
		t.Error("infoFor matched an external")
	}
}

func TestPrinter(t *testing.T) {
	m, infos := loadLowered(t, "sum.yaml")
	var buf bytes.Buffer
	p := &printer{w: &buf, width: 60}

	p.summary(m, infos)
	if !strings.Contains(buf.String(), "lowered sum -> sum_poll") {
		t.Errorf("summary = %q", buf.String())
	}

	buf.Reset()
	p.layout(m, infos[0])
	out := buf.String()
	for _, want := range []string{"sum state record", "__state", "__future_1", "state 1 resumes at", "state 2 resumes at"} {
		if !strings.Contains(out, want) {
			t.Errorf("layout missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	p.module(m)
	for _, line := range strings.Split(buf.String(), "\n") {
		if n := len([]rune(line)); n > 60 {
			t.Errorf("line of %d runes exceeds width: %q", n, line)
		}
	}
	if !strings.Contains(buf.String(), "sum_poll") {
		t.Error("dump does not include the poll function")
	}

	buf.Reset()
	p.summary(ir.NewModule("empty"), nil)
	if buf.String() != "no async functions\n" {
		t.Errorf("empty summary = %q", buf.String())
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "asyncc.yaml")
	if err := os.WriteFile(cfg, []byte("log:\n  level: error\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	emitted := filepath.Join(dir, "lowered.yaml")

	o := options{
		file:       filepath.Join(programs, "sum.yaml"),
		configPath: cfg,
		emit:       emitted,
		runName:    "sum",
		args:       "4,5",
		timeout:    5 * time.Second,
	}
	if err := run(o); err != nil {
		t.Fatalf("run: %v", err)
	}
	m, err := irfile.Load(emitted)
	if err != nil {
		t.Fatalf("emitted program does not load: %v", err)
	}
	if m.FunctionByName("sum_poll") == nil {
		t.Error("emitted program lacks the poll function")
	}

	bad := o
	bad.args = "4"
	if err := run(bad); err == nil {
		t.Error("run with a missing argument succeeded")
	}
	bad = o
	bad.runName = "nope"
	if err := run(bad); err == nil {
		t.Error("run of an unknown function succeeded")
	}
}

func TestStepModel(t *testing.T) {
	m, infos := loadLowered(t, "sum.yaml")
	ex := executor.New(m, executor.Options{Logger: zap.NewNop()})
	fn := m.FunctionByName("sum")
	sm := newStepModel(context.Background(), ex, fn, []any{int64(1), int64(2)}, infoFor(infos, fn.ID))

	sm.Update(sm.start())
	if sm.task == nil || sm.rec == nil {
		t.Fatalf("not started: err = %v", sm.err)
	}
	if s, _ := sm.rec.State(); sm.stateName(s) != "start" {
		t.Errorf("initial state = %s", sm.stateName(s))
	}

	sm.Update(sm.step(false)())
	if sm.finished() {
		t.Fatal("finished after one poll")
	}
	if s, _ := sm.rec.State(); !strings.HasPrefix(sm.stateName(s), "suspended") {
		t.Errorf("after one poll state = %s", sm.stateName(s))
	}

	sm.Update(sm.step(true)())
	v, done, err := sm.task.Result()
	if !done || err != nil || v != int64(3) {
		t.Fatalf("result = %v, done %v, err %v", v, done, err)
	}
	if s, _ := sm.rec.State(); sm.stateName(s) != "completed" {
		t.Errorf("final state = %s", sm.stateName(s))
	}
	if body := sm.body(); !strings.Contains(body, "__future_result_2") {
		t.Errorf("slot table missing from body:\n%s", body)
	}
	view := sm.View()
	for _, want := range []string{"ready after", "Async Stepper"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestStepModel_Synchronous(t *testing.T) {
	m, err := irfile.Load(filepath.Join(programs, "count.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	ex := executor.New(m, executor.Options{Logger: zap.NewNop()})
	sm := newStepModel(context.Background(), ex, m.FunctionByName("count"), []any{int64(2)}, nil)
	sm.Update(sm.start())
	if sm.task != nil {
		t.Fatal("synchronous function was spawned")
	}
	if !strings.Contains(sm.body(), "returned without suspending: 2") {
		t.Errorf("body = %q", sm.body())
	}
}
