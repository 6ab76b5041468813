package asyncify

import (
	"testing"

	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
	"github.com/moikas-code/script-sub002/ir/irtest"
)

func TestEdgeCase_ZeroSizeParam(t *testing.T) {
	m := ir.NewModule("test")
	b := irtest.NewFunction(t, m, "unit", []ir.Param{
		{Name: "nothing", Type: ir.Void},
		{Name: "x", Type: ir.I32},
	}, ir.I32, true)
	b.Must(b.Return(b.AwaitReady(b.Fn.ParamValue(1))))

	info, err := Transform(m, b.Fn.ID, Config{Verify: true})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if info.StateOffsets["nothing"] != info.StateOffsets["x"] {
		t.Errorf("zero-size param advanced the layout: %v", info.StateOffsets)
	}
	// create_async_state, one store for x, return.
	if n := len(b.Fn.Blocks[0].Instrs); n != 3 {
		t.Errorf("wrapper has %d instructions, want 3:\n%s", n, b.Fn)
	}
}

func TestEdgeCase_NeverReturn(t *testing.T) {
	m := ir.NewModule("test")
	b := irtest.NewFunction(t, m, "spin", []ir.Param{{Name: "f", Type: ir.Future(ir.I32)}}, ir.Never, true)
	b.V(b.Await(b.Fn.ParamValue(0), ir.I32))
	b.Must(b.ReturnVoid())

	info, err := Transform(m, b.Fn.ID, Config{Verify: true})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	poll := m.Function(info.PollFn)
	done := poll.BlockByName("completed")
	if len(done.Instrs) != 2 || done.Instrs[0].Op != ir.OpConstructEnum {
		t.Errorf("completed block:\n%s", done)
	}
}

func TestEdgeCase_NestedAwaitOrder(t *testing.T) {
	m := ir.NewModule("test")
	b := irtest.NewFunction(t, m, "nest", []ir.Param{{Name: "x", Type: ir.I32}}, ir.I32, true)
	inner := b.AwaitReady(b.Fn.ParamValue(0))
	outer := b.AwaitReady(inner)
	b.Must(b.Return(outer))

	info, err := Transform(m, b.Fn.ID, Config{Verify: true})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(info.SuspendPoints) != 2 {
		t.Fatalf("got %d suspend points", len(info.SuspendPoints))
	}

	// The outer await is state 1, so its future slot comes first.
	poll := m.Function(info.PollFn)
	state0 := poll.BlockByName("state_0")
	var selectors []uint32
	for _, in := range state0.Instrs {
		if s, ok := in.Imm.(ir.SetAsyncStateImm); ok {
			selectors = append(selectors, s.Value)
		}
	}
	if len(selectors) != 1 || selectors[0] != 2 {
		t.Errorf("first suspension sets selector %v, want [2]", selectors)
	}
	if info.StateOffsets["__future_1"] >= info.StateOffsets["__future_2"] {
		t.Errorf("future slots out of state order: %v", info.StateOffsets)
	}
}

func TestEdgeCase_LoopWithAwait(t *testing.T) {
	// async fn count(n: i32) -> i32 {
	//     let i = alloc i32; store i, 0
	//     loop: if load(i) < n { store i, await ready(load(i)) + 1; goto loop }
	//     load(i)
	// }
	m := ir.NewModule("test")
	b := irtest.NewFunction(t, m, "count", []ir.Param{{Name: "n", Type: ir.I32}}, ir.I32, true)
	cell := b.V(b.Alloc(ir.I32))
	b.Must(b.Store(cell, b.I32(0)))
	head := b.Block("head")
	body := b.Block("body")
	exit := b.Block("exit")
	b.Must(b.Branch(head))

	b.Enter(head)
	cur := b.V(b.Load(cell, ir.I32))
	lt := b.V(b.Compare(ir.Lt, cur, b.Fn.ParamValue(0)))
	b.Must(b.CondBranch(lt, body, exit))

	b.Enter(body)
	r := b.AwaitReady(b.V(b.Load(cell, ir.I32)))
	b.Must(b.Store(cell, b.V(b.Binary(ir.Add, r, b.I32(1), ir.I32))))
	b.Must(b.Branch(head))

	b.Enter(exit)
	b.Must(b.Return(b.V(b.Load(cell, ir.I32))))

	info, err := Transform(m, b.Fn.ID, Config{Verify: true})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(info.SuspendPoints) != 1 {
		t.Errorf("got %d suspend points, want 1", len(info.SuspendPoints))
	}
}

func TestEdgeCase_ControlSlotNameClash(t *testing.T) {
	m := ir.NewModule("test")
	b := irtest.NewFunction(t, m, "clash", []ir.Param{{Name: "__waker", Type: ir.I32}}, ir.I32, true)
	b.Must(b.Return(b.Fn.ParamValue(0)))

	_, err := Transform(m, b.Fn.ID, Config{})
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("err = %v, want invalid input", err)
	}
	if m.FunctionByName("clash"+PollSuffix) != nil {
		t.Error("poll function created for rejected function")
	}
}

func TestEdgeCase_StateOverflow(t *testing.T) {
	m := ir.NewModule("test")
	big := make([]ir.Type, 1<<17)
	for i := range big {
		big[i] = ir.I64
	}
	b := irtest.NewFunction(t, m, "huge", []ir.Param{{Name: "blob", Type: ir.Tuple(big...)}}, ir.Void, true)
	b.Must(b.ReturnVoid())

	_, err := Transform(m, b.Fn.ID, Config{})
	if errors.KindOf(err) != errors.KindOverflow {
		t.Fatalf("err = %v, want overflow", err)
	}
	if !b.Fn.Async {
		t.Error("overflowing function was modified")
	}
}

func TestEdgeCase_RecursionPolicy(t *testing.T) {
	m := ir.NewModule("test")
	b := irtest.NewFunction(t, m, "again", []ir.Param{{Name: "x", Type: ir.I32}}, ir.I32, true)
	f := b.V(b.Call(b.Fn.ID, []ir.ValueID{b.Fn.ParamValue(0)}, ir.Future(ir.I32)))
	b.Must(b.Return(b.V(b.Await(f, ir.I32))))

	if _, err := Transform(m, b.Fn.ID, Config{}); errors.KindOf(err) != errors.KindSecurityViolation {
		t.Fatalf("default config err = %v, want security violation", err)
	}
	if _, err := Transform(m, b.Fn.ID, Config{AllowRecursion: true, Verify: true}); err != nil {
		t.Fatalf("AllowRecursion: %v", err)
	}
}

func TestEdgeCase_UnreachableBlock(t *testing.T) {
	m := ir.NewModule("test")
	b := irtest.NewFunction(t, m, "dead", []ir.Param{{Name: "x", Type: ir.I32}}, ir.I32, true)
	b.Must(b.Return(b.Fn.ParamValue(0)))
	orphan := b.Block("orphan")
	b.Enter(orphan)
	b.Must(b.Return(b.AwaitReady(b.I32(5))))

	info, err := Transform(m, b.Fn.ID, Config{Verify: true})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(info.SuspendPoints) != 1 {
		t.Errorf("got %d suspend points, want 1", len(info.SuspendPoints))
	}
	if m.Function(info.PollFn).BlockByName("orphan") == nil {
		t.Error("unreachable block was dropped")
	}
}
