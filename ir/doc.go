// Package ir provides the typed, SSA-style intermediate representation consumed
// and produced by the async lowering pass.
//
// A Module owns Functions. A Function owns BasicBlocks in creation order; the
// first block created is the entry block. Every instruction is identified by the
// ValueID it defines, and parameters occupy ValueIDs 0..len(Params)-1.
//
// Instructions are an opcode plus a typed immediate, in the same way a wire
// instruction is an opcode plus its immediate:
//
//	m := ir.NewModule("demo")
//	b := ir.NewBuilder(m)
//	fn, _ := m.CreateFunction("answer", nil, ir.I32, false)
//	b.SetFunction(fn.ID)
//	entry, _ := b.CreateBlock("entry")
//	b.SetBlock(entry)
//	x, _ := b.Const(ir.ConstI32(40))
//	y, _ := b.Binary(ir.Add, x, x, ir.I32)
//	b.Return(y)
//
// The async-specific operations (Await, PollFuture, CreateAsyncState,
// Load/StoreAsyncState, Get/SetAsyncState) describe suspension points and the
// packed state record of a lowered async function.
package ir
