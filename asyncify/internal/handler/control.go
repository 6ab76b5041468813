package handler

import (
	"github.com/moikas-code/script-sub002/asyncify/internal/layout"
	"github.com/moikas-code/script-sub002/ir"
)

// ReturnHandler turns a return into completion: the value is stored in the
// result slot, the selector moves to the done state and control goes to the
// completed block, which produces Poll::Ready.
type ReturnHandler struct{}

func (h ReturnHandler) Handle(ctx *Context, instr ir.Instruction) error {
	ret := instr.Imm.(ir.ReturnImm)
	e := emitter{ctx: ctx, what: "complete"}
	if ret.HasValue && ctx.Orig.Return.Kind != ir.KindNever {
		off, ok := ctx.Plan.Offsets[layout.ResultSlot]
		if !ok {
			return ctx.Fail("result slot missing", nil)
		}
		v, err := ctx.Lookup(ret.Value)
		if err != nil {
			return err
		}
		e.do(ctx.B.StoreAsyncState(ctx.StatePtr, off, v))
	}
	e.do(ctx.B.SetAsyncState(ctx.StatePtr, ctx.DoneState))
	e.do(ctx.B.Branch(ctx.Completed))
	return e.err
}

// BranchHandler records the values flowing into successor phis and copies
// the branch with remapped targets.
type BranchHandler struct{}

func (h BranchHandler) Handle(ctx *Context, instr ir.Instruction) error {
	if err := ctx.RecordEdges(ctx.Block); err != nil {
		return err
	}
	return ctx.Copy(instr)
}

// PhiHandler emits a phi whose edges are filled in once every predecessor
// has been copied.
type PhiHandler struct{}

func (h PhiHandler) Handle(ctx *Context, instr ir.Instruction) error {
	return ctx.DeferPhi(instr)
}

// RegisterControlHandlers adds the control-flow rewrites.
func RegisterControlHandlers(r *Registry) {
	r.Register(ir.OpReturn, ReturnHandler{}, "return")
	r.RegisterBulk([]ir.Op{ir.OpBranch, ir.OpCondBranch}, BranchHandler{}, "branch")
	r.Register(ir.OpPhi, PhiHandler{}, "phi")
}
