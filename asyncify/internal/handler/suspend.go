package handler

import (
	"fmt"

	"github.com/moikas-code/script-sub002/asyncify/internal/layout"
	"github.com/moikas-code/script-sub002/ir"
)

// AwaitHandler rewrites a suspension.
//
// In the current block the awaited future is saved, the selector is set to
// the suspension's state id and Pending is returned. The resume block for
// that state reloads the future, polls it with the waker and either returns
// Pending again or falls into continue_<id>, where the ready value is stored
// in its result slot and copying of the original block carries on.
type AwaitHandler struct{}

func (h AwaitHandler) Handle(ctx *Context, instr ir.Instruction) error {
	aw := instr.Imm.(ir.AwaitImm)
	susp, ok := ctx.Analysis.Suspension(instr.Result)
	if !ok {
		return ctx.Fail(fmt.Sprintf("await %s was not discovered", instr.Result), nil)
	}
	id := susp.StateID
	resume, ok := ctx.Resume[id]
	if !ok {
		return ctx.Fail(fmt.Sprintf("no resume block for state %d", id), nil)
	}
	futOff, ok := ctx.Plan.Offsets[layout.FutureSlot(id)]
	if !ok {
		return ctx.Fail(fmt.Sprintf("future slot missing for state %d", id), nil)
	}
	resultSlot, ok := ctx.SlotOf(instr.Result)
	if !ok {
		return ctx.Fail(fmt.Sprintf("future result slot missing for state %d", id), nil)
	}
	futType, ok := ctx.Orig.ValueType(aw.Future)
	if !ok {
		futType = ir.Future(aw.Type)
	}

	fut, err := ctx.Lookup(aw.Future)
	if err != nil {
		return err
	}

	e := emitter{ctx: ctx, what: fmt.Sprintf("suspend state %d", id)}
	e.do(ctx.B.StoreAsyncState(ctx.StatePtr, futOff, fut))
	e.do(ctx.B.SetAsyncState(ctx.StatePtr, id))
	if e.err != nil {
		return e.err
	}
	if err := ctx.Pending(); err != nil {
		return err
	}

	e.what = fmt.Sprintf("resume state %d", id)
	e.do(ctx.B.SetBlock(resume))
	saved := e.v(ctx.B.LoadAsyncState(ctx.StatePtr, futOff, futType))
	polled := e.v(ctx.B.PollFuture(saved, ctx.Waker, aw.Type))
	tag := e.v(ctx.B.GetEnumTag(polled))
	ready := e.v(ctx.B.Const(ir.ConstU32(ir.PollReady)))
	isReady := e.v(ctx.B.Compare(ir.Eq, tag, ready))
	cont := e.b(ctx.B.CreateBlock(fmt.Sprintf("continue_%d", id)))
	pending := e.b(ctx.B.CreateBlock(fmt.Sprintf("still_pending_%d", id)))
	e.do(ctx.B.CondBranch(isReady, cont, pending))
	e.do(ctx.B.SetBlock(pending))
	if e.err != nil {
		return e.err
	}
	if err := ctx.Pending(); err != nil {
		return err
	}

	e.what = fmt.Sprintf("continue state %d", id)
	e.do(ctx.B.SetBlock(cont))
	ctx.BeginSegment()
	val := e.v(ctx.B.ExtractEnumData(polled, 0, aw.Type))
	e.do(ctx.B.StoreAsyncState(ctx.StatePtr, resultSlot.Offset, val))
	if e.err != nil {
		return e.err
	}
	ctx.Define(instr.Result, val)

	ctx.SuspendPoints = append(ctx.SuspendPoints, SuspendPoint{
		StateID:     id,
		ResumeBlock: resume,
		FutureValue: fut,
	})

	return ctx.MaterializeResumed(ctx.Block.Instrs[ctx.Index+1:], ctx.SuccessorPhiInputs(ctx.Block))
}

// RegisterSuspendHandlers adds the await rewrite.
func RegisterSuspendHandlers(r *Registry) {
	r.Register(ir.OpAwait, AwaitHandler{}, "await")
}

// emitter keeps the first builder failure of a sequence.
type emitter struct {
	ctx  *Context
	err  error
	what string
}

func (e *emitter) do(err error) {
	if e.err == nil && err != nil {
		e.err = e.ctx.Fail(e.what, err)
	}
}

func (e *emitter) v(v ir.ValueID, err error) ir.ValueID {
	e.do(err)
	return v
}

func (e *emitter) b(id ir.BlockID, err error) ir.BlockID {
	e.do(err)
	return id
}
