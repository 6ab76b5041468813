package irfile

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/moikas-code/script-sub002/asyncify"
	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/executor"
	"github.com/moikas-code/script-sub002/ir"
	"go.uber.org/zap"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func loadLowered(t *testing.T, name string) *ir.Module {
	t.Helper()
	m, err := Load(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("Load(%s): %v", name, err)
	}
	if _, err := asyncify.TransformAll(m, asyncify.Config{Verify: true}); err != nil {
		t.Fatalf("TransformAll: %v", err)
	}
	return m
}

func TestLoad_Programs(t *testing.T) {
	tests := []struct {
		file string
		fn   string
		args []any
		want any
	}{
		{"sum.yaml", "sum", []any{2, 3}, int64(5)},
		{"sum.yaml", "sum", []any{-10, 4}, int64(-6)},
		{"count.yaml", "count", []any{4}, int64(4)},
		{"count.yaml", "count", []any{0}, int64(0)},
		{"greet.yaml", "greet", []any{"bob", true}, "hello, bob!"},
		{"greet.yaml", "greet", []any{"bob", false}, "hello, bob"},
	}
	for _, tt := range tests {
		t.Run(tt.file+"/"+tt.fn, func(t *testing.T) {
			m := loadLowered(t, tt.file)
			ex := executor.New(m, executor.Options{Logger: zap.NewNop()})
			got, err := ex.BlockOn(testContext(t), tt.fn, tt.args...)
			if err != nil {
				t.Fatalf("BlockOn: %v", err)
			}
			if got != tt.want {
				t.Errorf("%s%v = %v, want %v", tt.fn, tt.args, got, tt.want)
			}
		})
	}
}

func TestLoad_Shape(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "sum.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "sum" {
		t.Errorf("module name = %q", m.Name)
	}
	ready := m.FunctionByName("ready")
	if ready == nil || !ready.External {
		t.Fatalf("ready = %v, want external", ready)
	}
	sum := m.FunctionByName("sum")
	if sum == nil || !sum.Async {
		t.Fatalf("sum = %v, want async", sum)
	}
	if !sum.Return.Equal(ir.I32) || len(sum.Params) != 2 {
		t.Errorf("sum signature = %s", sum.Signature())
	}
	if err := ir.Verify(sum); err != nil {
		t.Errorf("Verify: %v", err)
	}
	// Calls without an explicit type take the callee's return type.
	entry := sum.Entry()
	call, ok := entry.Instrs[0].Imm.(ir.CallImm)
	if !ok || !call.Type.Equal(ir.Future(ir.I32)) {
		t.Errorf("first instruction = %s", entry.Instrs[0])
	}
}

func TestParse_ForwardReference(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "count.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	fn := m.FunctionByName("count")
	loop := fn.BlockByName("loop")
	body := fn.BlockByName("body")
	phi, ok := loop.Instrs[0].Imm.(ir.PhiImm)
	if !ok || len(phi.Incoming) != 2 {
		t.Fatalf("loop starts with %s", loop.Instrs[0])
	}
	next := body.Instrs[1].Result
	if phi.Incoming[1].Value != next || phi.Incoming[1].Block != body.ID {
		t.Errorf("phi edge = %+v, want %s from %s", phi.Incoming[1], next, body.ID)
	}
}

func TestParse_RawValueIDs(t *testing.T) {
	src := `
module: raw
functions:
  - name: double
    params: [{name: x, type: i64}]
    returns: i64
    blocks:
      - name: entry
        instrs:
          - {op: binary, kind: add, type: i64, args: ["%0", "%0"]}
          - {op: return, args: ["%1"]}
`
	m, err := Parse([]byte(src), "raw.yaml")
	if err != nil {
		t.Fatal(err)
	}
	ex := executor.New(m, executor.Options{Logger: zap.NewNop()})
	v, err := ex.Call(testContext(t), "double", int64(21))
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(42) {
		t.Errorf("double(21) = %v", v)
	}
}

func TestParse_Errors(t *testing.T) {
	fn := func(instrs string) string {
		return `
module: bad
functions:
  - name: f
    params: [{name: a, type: i32}]
    returns: i32
    blocks:
      - name: entry
        instrs:
` + instrs
	}
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", "", "empty program"},
		{"unknown key", "module: x\nfunctoins: []\n", "parsing program"},
		{"no blocks", "functions:\n  - name: f\n", "no blocks"},
		{"unknown op", fn("          - {op: frobnicate}\n"), "unknown op"},
		{"undefined value", fn("          - {op: return, args: [b]}\n"), `undefined value "b"`},
		{"raw id out of range", fn("          - {op: return, args: [\"%7\"]}\n"), `undefined value "%7"`},
		{"undefined block", fn("          - {op: branch, target: nowhere}\n"), `undefined block "nowhere"`},
		{"undefined function", fn("          - {let: r, op: call, func: g, args: [a], type: i32}\n          - {op: return, args: [r]}\n"), `undefined function "g"`},
		{"duplicate let", fn("          - {let: a, op: const, type: i32, value: \"1\"}\n          - {op: return, args: [a]}\n"), "already defined"},
		{"let without value", fn("          - {let: s, op: return, args: [a]}\n"), "defines no value"},
		{"operand count", fn("          - {let: s, op: binary, kind: add, type: i32, args: [a]}\n          - {op: return, args: [s]}\n"), "takes 2 operands"},
		{"bad constant", fn("          - {let: c, op: const, type: i32, value: seven}\n          - {op: return, args: [c]}\n"), "bad constant"},
		{"bad operator", fn("          - {let: s, op: binary, kind: pow, type: i32, args: [a, a]}\n          - {op: return, args: [s]}\n"), "unknown binary operator"},
		{"bad comparison", fn("          - {let: s, op: compare, kind: near, args: [a, a]}\n          - {op: return, args: [a]}\n"), "unknown comparison"},
		{"duplicate block", fn("          - {op: return, args: [a]}\n      - name: entry\n        instrs:\n          - {op: return, args: [a]}\n"), "duplicate block"},
		{"duplicate function", "functions:\n  - {name: f, blocks: [{name: e, instrs: [{op: return}]}]}\n  - {name: f, blocks: [{name: e, instrs: [{op: return}]}]}\n", "declare function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.yaml")
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.KindOf(err) != errors.KindInvalidInput {
				t.Errorf("kind = %q, want invalid input (%v)", errors.KindOf(err), err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("err = %v", err)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		file string
		fn   string
		args []any
		want any
	}{
		{"sum.yaml", "sum", []any{20, 22}, int64(42)},
		{"count.yaml", "count", []any{3}, int64(3)},
		{"greet.yaml", "greet", []any{"ann", true}, "hello, ann!"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			lowered := loadLowered(t, tt.file)
			data, err := Encode(lowered)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			m, err := Parse(data, tt.file)
			if err != nil {
				t.Fatalf("Parse(Encode(m)): %v\n%s", err, data)
			}
			for _, fn := range m.Functions() {
				if fn.Async {
					t.Errorf("%s is still async after lowering", fn.Name)
				}
				if !fn.External {
					if err := ir.Verify(fn); err != nil {
						t.Errorf("Verify(%s): %v", fn.Name, err)
					}
				}
			}
			if len(m.Functions()) != len(lowered.Functions()) {
				t.Errorf("round trip has %d functions, want %d", len(m.Functions()), len(lowered.Functions()))
			}

			ex := executor.New(m, executor.Options{Logger: zap.NewNop()})
			got, err := ex.BlockOn(testContext(t), tt.fn, tt.args...)
			if err != nil {
				t.Fatalf("BlockOn: %v", err)
			}
			if got != tt.want {
				t.Errorf("%s%v = %v, want %v", tt.fn, tt.args, got, tt.want)
			}
		})
	}
}

func TestEncode_DuplicateBlockNames(t *testing.T) {
	m := ir.NewModule("dups")
	fn, err := m.CreateFunction("f", nil, ir.Void, false)
	if err != nil {
		t.Fatal(err)
	}
	b := ir.NewBuilder(m)
	if err := b.SetFunction(fn.ID); err != nil {
		t.Fatal(err)
	}
	first, _ := b.CreateBlock("x")
	second, _ := b.CreateBlock("x")
	_ = b.SetBlock(first)
	_ = b.Branch(second)
	_ = b.SetBlock(second)
	_ = b.ReturnVoid()

	f, err := FromModule(m)
	if err != nil {
		t.Fatal(err)
	}
	blocks := f.Functions[0].Blocks
	if blocks[0].Name == blocks[1].Name {
		t.Fatalf("block names not made unique: %q", blocks[0].Name)
	}
	if blocks[0].Instrs[0].Target != blocks[1].Name {
		t.Errorf("branch target = %q, want %q", blocks[0].Instrs[0].Target, blocks[1].Name)
	}
	data, err := Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(data, "dups.yaml"); err != nil {
		t.Errorf("Parse: %v", err)
	}
}
