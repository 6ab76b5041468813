package handler

import "github.com/moikas-code/script-sub002/ir"

// PassthroughHandler copies an instruction one-to-one.
//
// Operands and block references are remapped into the poll function. When
// the instruction owns a local slot its result is stored into the state
// record immediately, so a later resume can reload it.
type PassthroughHandler struct{}

func (h PassthroughHandler) Handle(ctx *Context, instr ir.Instruction) error {
	return ctx.Copy(instr)
}

// passthroughOps are copied without any rewriting.
var passthroughOps = []ir.Op{
	ir.OpConst, ir.OpBinary, ir.OpUnary, ir.OpCompare, ir.OpCast, ir.OpCall,
	ir.OpAlloc, ir.OpLoad, ir.OpStore, ir.OpLoadField, ir.OpStoreField,
	ir.OpConstructStruct, ir.OpConstructEnum, ir.OpGetEnumTag, ir.OpExtractEnumData,
	ir.OpPollFuture, ir.OpCreateAsyncState, ir.OpStoreAsyncState,
	ir.OpLoadAsyncState, ir.OpGetAsyncState, ir.OpSetAsyncState,
}

// RegisterPassthroughHandlers adds the one-to-one copy for every ordinary op.
func RegisterPassthroughHandlers(r *Registry) {
	r.RegisterBulk(passthroughOps, PassthroughHandler{}, "passthrough")
}
