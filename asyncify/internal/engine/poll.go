package engine

import (
	"fmt"

	"github.com/moikas-code/script-sub002/asyncify/internal/analysis"
	"github.com/moikas-code/script-sub002/asyncify/internal/handler"
	"github.com/moikas-code/script-sub002/asyncify/internal/layout"
	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
)

// pollBuilder emits the state machine for one function.
type pollBuilder struct {
	ctx      *handler.Context
	b        *ir.Builder
	registry *handler.Registry
	err      error
	dispatch ir.BlockID
	invalid  ir.BlockID
	checks   []ir.BlockID
	selector ir.ValueID
}

// buildPoll fills poll with the state machine of orig:
//
//	entry          save waker, read selector
//	dispatch       selector == 0 ? state_0 : check_state_1
//	check_state_N  selector == N ? resume_N : next check or invalid_state
//	state_0        original entry, params loaded from the record
//	resume_N       poll the saved future, continue_N or still_pending_N
//	completed      Poll::Ready(result)
func (e *Engine) buildPoll(m *ir.Module, orig, poll *ir.Function, plan *layout.Plan, a *analysis.Result) (*handler.Context, error) {
	b := ir.NewBuilder(m)
	if err := b.SetFunction(poll.ID); err != nil {
		return nil, errors.Internal(errors.PhaseLower, []string{poll.Name}, "select poll function", err)
	}
	ctx, err := handler.NewContext(b, orig, poll, plan, a)
	if err != nil {
		return nil, err
	}
	pb := &pollBuilder{ctx: ctx, b: b, registry: e.registry}

	entry := pb.createBlocks(orig, a)
	pb.emitEntry(entry)
	pb.emitDispatch(a)
	pb.emitPoll(pb.invalid, ir.PollInvalidRef, ir.PollInvalid)
	if pb.err != nil {
		return nil, pb.err
	}
	if err := pb.copyBody(orig); err != nil {
		return nil, err
	}
	if err := ctx.FinishPhis(); err != nil {
		return nil, err
	}
	pb.emitCompleted(orig)
	if pb.err != nil {
		return nil, pb.err
	}
	return ctx, nil
}

func (pb *pollBuilder) fail(what string, err error) {
	if pb.err == nil && err != nil {
		pb.err = errors.Internal(errors.PhaseLower, []string{pb.ctx.Poll.Name}, what, err)
	}
}

func (pb *pollBuilder) missing(slot string) {
	if pb.err == nil {
		pb.err = errors.Internal(errors.PhaseLower, []string{pb.ctx.Poll.Name, slot}, "slot missing from layout", nil)
	}
}

func (pb *pollBuilder) block(name string) ir.BlockID {
	id, err := pb.b.CreateBlock(name)
	pb.fail("create block "+name, err)
	return id
}

// createBlocks creates every fixed block up front, so branches can target
// them before they are filled. It returns the entry block.
func (pb *pollBuilder) createBlocks(orig *ir.Function, a *analysis.Result) ir.BlockID {
	ctx := pb.ctx
	entry := pb.block("entry")
	pb.dispatch = pb.block("dispatch")

	state0 := pb.block("state_0")
	for _, s := range a.Suspensions {
		ctx.Resume[s.StateID] = pb.block(fmt.Sprintf("resume_%d", s.StateID))
	}
	for _, s := range a.Suspensions {
		pb.checks = append(pb.checks, pb.block(fmt.Sprintf("check_state_%d", s.StateID)))
	}
	pb.invalid = pb.block("invalid_state")

	for i, ob := range orig.Blocks {
		if i == 0 {
			ctx.Blocks[ob.ID] = state0
			continue
		}
		ctx.Blocks[ob.ID] = pb.block(ob.Name)
	}
	ctx.Completed = pb.block("completed")
	return entry
}

func (pb *pollBuilder) emitEntry(entry ir.BlockID) {
	if pb.err != nil {
		return
	}
	ctx := pb.ctx
	wakerOff, ok := ctx.Plan.Offsets[layout.WakerSlot]
	if !ok {
		pb.missing(layout.WakerSlot)
		return
	}
	pb.fail("enter entry", pb.b.SetBlock(entry))
	pb.fail("save waker", pb.b.StoreAsyncState(ctx.StatePtr, wakerOff, ctx.Waker))
	sel, err := pb.b.GetAsyncState(ctx.StatePtr)
	pb.fail("read selector", err)
	pb.selector = sel
	pb.fail("branch to dispatch", pb.b.Branch(pb.dispatch))
}

// emitDispatch emits the linear comparison chain. State 0 is tested in the
// dispatch block itself, state N in check_state_N. The first match wins and
// a selector matching no state falls through to invalid_state.
func (pb *pollBuilder) emitDispatch(a *analysis.Result) {
	if pb.err != nil {
		return
	}
	ctx := pb.ctx
	tests := append([]ir.BlockID{pb.dispatch}, pb.checks...)
	targets := []ir.BlockID{ctx.Blocks[ctx.Orig.Entry().ID]}
	ids := []uint32{0}
	for _, s := range a.Suspensions {
		targets = append(targets, ctx.Resume[s.StateID])
		ids = append(ids, s.StateID)
	}

	for i, test := range tests {
		next := pb.invalid
		if i+1 < len(tests) {
			next = tests[i+1]
		}
		pb.fail("enter dispatch", pb.b.SetBlock(test))
		id, err := pb.b.Const(ir.ConstU32(ids[i]))
		pb.fail("state id", err)
		eq, err := pb.b.Compare(ir.Eq, pb.selector, id)
		pb.fail("compare state", err)
		pb.fail("dispatch branch", pb.b.CondBranch(eq, targets[i], next))
	}
}

// emitPoll fills blk with "return Poll::<variant>".
func (pb *pollBuilder) emitPoll(blk ir.BlockID, variant string, tag uint32, args ...ir.ValueID) {
	if pb.err != nil {
		return
	}
	pb.fail("enter "+variant, pb.b.SetBlock(blk))
	v, err := pb.b.ConstructEnum(ir.PollEnum, variant, tag, args, pb.ctx.PollResult)
	pb.fail("construct "+variant, err)
	pb.fail("return "+variant, pb.b.Return(v))
}

// copyBody copies the original blocks in reverse postorder so definitions
// are copied before their uses.
func (pb *pollBuilder) copyBody(orig *ir.Function) error {
	ctx := pb.ctx
	entry := orig.Entry()
	for _, ob := range blockOrder(orig) {
		ctx.Block = ob
		ctx.Index = 0
		ctx.BeginSegment()
		if err := pb.b.SetBlock(ctx.Blocks[ob.ID]); err != nil {
			return ctx.Fail("enter block", err)
		}
		if ob == entry {
			if err := ctx.LoadParams(); err != nil {
				return err
			}
		}

		i := 0
		for ; i < len(ob.Instrs) && ob.Instrs[i].Op == ir.OpPhi; i++ {
			ctx.Index = i
			if err := pb.handle(ob.Instrs[i]); err != nil {
				return err
			}
		}
		for j := 0; j < i; j++ {
			if err := ctx.Spill(ob.Instrs[j].Result); err != nil {
				return err
			}
		}
		if err := ctx.Materialize(ob.Instrs[i:], ctx.SuccessorPhiInputs(ob)); err != nil {
			return err
		}
		for ; i < len(ob.Instrs); i++ {
			ctx.Index = i
			if err := pb.handle(ob.Instrs[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (pb *pollBuilder) handle(in ir.Instruction) error {
	h := pb.registry.Get(in.Op)
	if h == nil {
		return errors.Unsupported(errors.PhaseLower, "no handler for op "+in.Op.String())
	}
	return h.Handle(pb.ctx, in)
}

// emitCompleted fills the completed block: the stored result wrapped in
// Poll::Ready, or a bare Ready for functions without a value.
func (pb *pollBuilder) emitCompleted(orig *ir.Function) {
	ctx := pb.ctx
	ret := orig.Return
	if ret.IsVoid() || ret.Kind == ir.KindNever {
		pb.emitPoll(ctx.Completed, ir.PollReadyName, ir.PollReady)
		return
	}
	off, ok := ctx.Plan.Offsets[layout.ResultSlot]
	if !ok {
		pb.missing(layout.ResultSlot)
		return
	}
	pb.fail("enter completed", pb.b.SetBlock(ctx.Completed))
	res, err := pb.b.LoadAsyncState(ctx.StatePtr, off, ret)
	pb.fail("load result", err)
	pb.emitPoll(ctx.Completed, ir.PollReadyName, ir.PollReady, res)
}
