package handler

import (
	"testing"

	"github.com/moikas-code/script-sub002/ir"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	called := false
	h := Func(func(ctx *Context, instr ir.Instruction) error {
		called = true
		return nil
	})

	r.Register(ir.OpConst, h, "const")

	if !r.Has(ir.OpConst) {
		t.Error("Has should return true for registered op")
	}
	if r.Has(ir.OpReturn) {
		t.Error("Has should return false for unregistered op")
	}

	got := r.Get(ir.OpConst)
	if got == nil {
		t.Fatal("Get should return handler for registered op")
	}

	_ = got.Handle(&Context{}, ir.Instruction{Op: ir.OpConst})

	if !called {
		t.Error("handler should have been called")
	}
}

func TestRegistry_Name(t *testing.T) {
	r := NewRegistry()

	r.Register(ir.OpConst, Func(nil), "const_handler")

	if r.Name(ir.OpConst) != "const_handler" {
		t.Errorf("Name = %q, want %q", r.Name(ir.OpConst), "const_handler")
	}
	if r.Name(ir.OpReturn) != "" {
		t.Errorf("Name for unregistered should be empty, got %q", r.Name(ir.OpReturn))
	}
}

func TestRegistry_RegisterFunc(t *testing.T) {
	r := NewRegistry()

	called := false
	r.RegisterFunc(ir.OpBinary, func(ctx *Context, instr ir.Instruction) error {
		called = true
		return nil
	}, "binary")

	got := r.Get(ir.OpBinary)
	if got == nil {
		t.Fatal("RegisterFunc should register handler")
	}

	_ = got.Handle(&Context{}, ir.Instruction{})

	if !called {
		t.Error("handler should have been called")
	}
}

func TestRegistry_RegisterBulk(t *testing.T) {
	r := NewRegistry()

	h := Func(func(ctx *Context, instr ir.Instruction) error {
		return nil
	})
	ops := []ir.Op{ir.OpBranch, ir.OpCondBranch}
	r.RegisterBulk(ops, h, "branch")

	for _, op := range ops {
		if !r.Has(op) {
			t.Errorf("op %s should be registered", op)
		}
		if r.Name(op) != "branch" {
			t.Errorf("Name(%s) = %q, want %q", op, r.Name(op), "branch")
		}
	}
	if r.Has(ir.OpReturn) {
		t.Error("return should not be registered")
	}
}

func TestRegistry_MissingHandlers(t *testing.T) {
	r := NewRegistry()
	r.Register(ir.OpConst, PassthroughHandler{}, "passthrough")

	missing := r.MissingHandlers([]ir.Op{ir.OpConst, ir.OpAwait, ir.OpPhi})
	if len(missing) != 2 || missing[0] != ir.OpAwait || missing[1] != ir.OpPhi {
		t.Errorf("MissingHandlers = %v, want [await phi]", missing)
	}
}

func TestDefault_CoversEveryOp(t *testing.T) {
	r := Default()
	if missing := r.MissingHandlers(ir.AllOps()); len(missing) != 0 {
		t.Fatalf("default registry missing handlers for %v", missing)
	}

	tests := []struct {
		op   ir.Op
		want string
	}{
		{ir.OpAwait, "await"},
		{ir.OpReturn, "return"},
		{ir.OpBranch, "branch"},
		{ir.OpCondBranch, "branch"},
		{ir.OpPhi, "phi"},
		{ir.OpCall, "passthrough"},
		{ir.OpPollFuture, "passthrough"},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			if got := r.Name(tt.op); got != tt.want {
				t.Errorf("Name(%s) = %q, want %q", tt.op, got, tt.want)
			}
		})
	}
}
