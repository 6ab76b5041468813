// Package irtest builds small IR programs for tests.
package irtest

import (
	"testing"

	"github.com/moikas-code/script-sub002/ir"
)

// ReadyName is the host function that turns an i32 into an already
// completed Future<i32>.
const ReadyName = "ready"

// Ready returns the ready host function of m, declaring it on first use.
func Ready(tb testing.TB, m *ir.Module) *ir.Function {
	tb.Helper()
	if f := m.FunctionByName(ReadyName); f != nil {
		return f
	}
	f, err := m.DeclareExternal(ReadyName, []ir.Param{{Name: "v", Type: ir.I32}}, ir.Future(ir.I32))
	if err != nil {
		tb.Fatalf("declare %s: %v", ReadyName, err)
	}
	return f
}

// Builder wraps ir.Builder and fails the test on any error.
type Builder struct {
	tb testing.TB
	*ir.Builder
	Fn *ir.Function
}

// NewFunction creates fn in m and selects a fresh "entry" block.
func NewFunction(tb testing.TB, m *ir.Module, name string, params []ir.Param, ret ir.Type, async bool) *Builder {
	tb.Helper()
	fn, err := m.CreateFunction(name, params, ret, async)
	if err != nil {
		tb.Fatalf("create %s: %v", name, err)
	}
	b := &Builder{tb: tb, Builder: ir.NewBuilder(m), Fn: fn}
	b.Must(b.SetFunction(fn.ID))
	b.Enter(b.Block("entry"))
	return b
}

// Must fails the test when err is non-nil.
func (b *Builder) Must(err error) {
	b.tb.Helper()
	if err != nil {
		b.tb.Fatalf("%s: %v", b.Fn.Name, err)
	}
}

// V unwraps a value-producing builder call.
func (b *Builder) V(v ir.ValueID, err error) ir.ValueID {
	b.tb.Helper()
	b.Must(err)
	return v
}

// Block creates a block.
func (b *Builder) Block(name string) ir.BlockID {
	b.tb.Helper()
	return b.V2(b.CreateBlock(name))
}

// V2 unwraps a block-producing builder call.
func (b *Builder) V2(id ir.BlockID, err error) ir.BlockID {
	b.tb.Helper()
	b.Must(err)
	return id
}

// Enter selects a block.
func (b *Builder) Enter(id ir.BlockID) {
	b.tb.Helper()
	b.Must(b.SetBlock(id))
}

// I32 emits an i32 constant.
func (b *Builder) I32(v int32) ir.ValueID {
	b.tb.Helper()
	return b.V(b.Const(ir.ConstI32(v)))
}

// AwaitReady emits call ready(v) followed by an await of the result.
func (b *Builder) AwaitReady(v ir.ValueID) ir.ValueID {
	b.tb.Helper()
	ready := Ready(b.tb, b.Module())
	f := b.V(b.Call(ready.ID, []ir.ValueID{v}, ready.Return))
	return b.V(b.Await(f, ir.I32))
}

// AwaitChain builds async fn name(x: i32) -> i32 that awaits n times, adding
// one after each await. It returns x+n when run.
func AwaitChain(tb testing.TB, m *ir.Module, name string, n int) *ir.Function {
	tb.Helper()
	b := NewFunction(tb, m, name, []ir.Param{{Name: "x", Type: ir.I32}}, ir.I32, true)
	acc := b.Fn.ParamValue(0)
	for i := 0; i < n; i++ {
		r := b.AwaitReady(acc)
		one := b.I32(1)
		acc = b.V(b.Binary(ir.Add, r, one, ir.I32))
	}
	b.Must(b.Return(acc))
	return b.Fn
}

// TwoAwaits builds the two-suspension scenario:
//
//	async fn fetch(a: i32, b: i64) -> i32 {
//	    let slot = alloc i32
//	    store slot, a
//	    let x = await ready(a)
//	    let y = await ready(x + a)
//	    y + x
//	}
func TwoAwaits(tb testing.TB, m *ir.Module) *ir.Function {
	tb.Helper()
	b := NewFunction(tb, m, "fetch", []ir.Param{{Name: "a", Type: ir.I32}, {Name: "b", Type: ir.I64}}, ir.I32, true)
	a := b.Fn.ParamValue(0)
	slot := b.V(b.Alloc(ir.I32))
	b.Must(b.Store(slot, a))
	x := b.AwaitReady(a)
	sum := b.V(b.Binary(ir.Add, x, a, ir.I32))
	y := b.AwaitReady(sum)
	res := b.V(b.Binary(ir.Add, y, x, ir.I32))
	b.Must(b.Return(res))
	return b.Fn
}

// Padded builds an async function with exactly instrs instructions, awaits of
// them being awaits of the Future<i32> parameter. The rest are constants and
// a final return.
func Padded(tb testing.TB, m *ir.Module, name string, instrs, awaits int) *ir.Function {
	tb.Helper()
	if instrs < awaits+1 {
		tb.Fatalf("Padded: %d instructions cannot hold %d awaits and a return", instrs, awaits)
	}
	b := NewFunction(tb, m, name, []ir.Param{{Name: "f", Type: ir.Future(ir.I32)}}, ir.Void, true)
	for i := 0; i < awaits; i++ {
		b.V(b.Await(b.Fn.ParamValue(0), ir.I32))
	}
	for i := 0; i < instrs-awaits-1; i++ {
		b.I32(int32(i))
	}
	b.Must(b.ReturnVoid())
	return b.Fn
}

// Branchy builds async fn pick(c: bool, x: i32) -> i32 with an await in
// each arm of a conditional and a phi joining them:
//
//	if c { await ready(x) + 10 } else { await ready(x) * 2 }
func Branchy(tb testing.TB, m *ir.Module) *ir.Function {
	tb.Helper()
	b := NewFunction(tb, m, "pick", []ir.Param{{Name: "c", Type: ir.Bool}, {Name: "x", Type: ir.I32}}, ir.I32, true)
	then := b.Block("then")
	els := b.Block("else")
	join := b.Block("join")
	b.Must(b.CondBranch(b.Fn.ParamValue(0), then, els))

	b.Enter(then)
	r1 := b.AwaitReady(b.Fn.ParamValue(1))
	ten := b.I32(10)
	v1 := b.V(b.Binary(ir.Add, r1, ten, ir.I32))
	b.Must(b.Branch(join))

	b.Enter(els)
	r2 := b.AwaitReady(b.Fn.ParamValue(1))
	two := b.I32(2)
	v2 := b.V(b.Binary(ir.Mul, r2, two, ir.I32))
	b.Must(b.Branch(join))

	b.Enter(join)
	phi := b.V(b.Phi(ir.I32, []ir.PhiEdge{{Value: v1, Block: then}, {Value: v2, Block: els}}))
	b.Must(b.Return(phi))
	return b.Fn
}

// CastAcross builds async fn widen(x: i32) -> i64 that reads a cast made
// before an await after it. It returns 2x when run.
//
//	let w = x as i64
//	let r = await ready(x)
//	w + (r as i64)
func CastAcross(tb testing.TB, m *ir.Module) *ir.Function {
	tb.Helper()
	b := NewFunction(tb, m, "widen", []ir.Param{{Name: "x", Type: ir.I32}}, ir.I64, true)
	x := b.Fn.ParamValue(0)
	w := b.V(b.Cast(x, ir.I64))
	r := b.AwaitReady(x)
	rw := b.V(b.Cast(r, ir.I64))
	b.Must(b.Return(b.V(b.Binary(ir.Add, w, rw, ir.I64))))
	return b.Fn
}

// LoadAcross builds async fn reread(x: i32) -> i32 that reads a loaded value
// after an await, with the cell overwritten in between. It returns 2x.
//
//	let cell = alloc i32
//	store cell, x
//	let v = load cell
//	store cell, 0
//	let r = await ready(x)
//	v + r
func LoadAcross(tb testing.TB, m *ir.Module) *ir.Function {
	tb.Helper()
	b := NewFunction(tb, m, "reread", []ir.Param{{Name: "x", Type: ir.I32}}, ir.I32, true)
	x := b.Fn.ParamValue(0)
	cell := b.V(b.Alloc(ir.I32))
	b.Must(b.Store(cell, x))
	v := b.V(b.Load(cell, ir.I32))
	b.Must(b.Store(cell, b.I32(0)))
	r := b.AwaitReady(x)
	b.Must(b.Return(b.V(b.Binary(ir.Add, v, r, ir.I32))))
	return b.Fn
}

// PhiAcross builds async fn choose(c: bool, x: i32) -> i32 that reads a phi
// after an await in the same block. It returns 2x when c holds, else 4x.
//
//	let p = if c { x } else { x * 2 }
//	let r = await ready(p)
//	p + r
func PhiAcross(tb testing.TB, m *ir.Module) *ir.Function {
	tb.Helper()
	b := NewFunction(tb, m, "choose", []ir.Param{{Name: "c", Type: ir.Bool}, {Name: "x", Type: ir.I32}}, ir.I32, true)
	x := b.Fn.ParamValue(1)
	then := b.Block("then")
	els := b.Block("else")
	join := b.Block("join")
	b.Must(b.CondBranch(b.Fn.ParamValue(0), then, els))

	b.Enter(then)
	b.Must(b.Branch(join))

	b.Enter(els)
	d := b.V(b.Binary(ir.Mul, x, b.I32(2), ir.I32))
	b.Must(b.Branch(join))

	b.Enter(join)
	p := b.V(b.Phi(ir.I32, []ir.PhiEdge{{Value: x, Block: then}, {Value: d, Block: els}}))
	r := b.AwaitReady(p)
	b.Must(b.Return(b.V(b.Binary(ir.Add, p, r, ir.I32))))
	return b.Fn
}
