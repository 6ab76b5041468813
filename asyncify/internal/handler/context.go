package handler

import (
	"fmt"
	"sort"

	"github.com/moikas-code/script-sub002/asyncify/internal/analysis"
	"github.com/moikas-code/script-sub002/asyncify/internal/layout"
	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
)

// SuspendPoint ties a state id to the block that resumes it and to the value
// holding the awaited future in the poll function.
type SuspendPoint struct {
	StateID     uint32
	ResumeBlock ir.BlockID
	FutureValue ir.ValueID
}

// Slot is the state record storage of one original value.
type Slot struct {
	Type   ir.Type
	Offset uint32
	Size   uint32
	// Spill is set for locals, whose value is stored right after definition.
	// Params are stored by the wrapper, await results by the resume path.
	Spill bool
}

type edgeKey struct {
	succ ir.BlockID
	phi  ir.ValueID
	pred ir.BlockID
}

type pendingPhi struct {
	imm   ir.PhiImm
	succ  ir.BlockID
	phi   ir.ValueID
	block ir.BlockID
	index int
}

// Context is the working state of one function lowering.
type Context struct {
	B        *ir.Builder
	Orig     *ir.Function
	Poll     *ir.Function
	Plan     *layout.Plan
	Analysis *analysis.Result

	// Values maps original values to their current poll function values.
	Values map[ir.ValueID]ir.ValueID
	// Blocks maps original blocks to their poll function blocks.
	Blocks map[ir.BlockID]ir.BlockID
	// Resume maps state ids to their resume blocks.
	Resume map[uint32]ir.BlockID

	slots  map[ir.ValueID]Slot
	consts map[ir.ValueID]ir.Constant
	fresh  map[ir.ValueID]bool
	edges  map[edgeKey]ir.PhiEdge
	phis   []pendingPhi

	// Block and Index locate the original instruction being copied.
	Block *ir.BasicBlock

	SuspendPoints []SuspendPoint
	PollResult    ir.Type
	Index         int

	// StatePtr and Waker are the poll function's parameters.
	StatePtr  ir.ValueID
	Waker     ir.ValueID
	Completed ir.BlockID
	DoneState uint32
}

// NewContext prepares a lowering of orig into poll. The poll function's
// first two parameters are the state pointer and the waker.
func NewContext(b *ir.Builder, orig, poll *ir.Function, plan *layout.Plan, a *analysis.Result) (*Context, error) {
	c := &Context{
		B:          b,
		Orig:       orig,
		Poll:       poll,
		Plan:       plan,
		Analysis:   a,
		Values:     make(map[ir.ValueID]ir.ValueID),
		Blocks:     make(map[ir.BlockID]ir.BlockID),
		Resume:     make(map[uint32]ir.BlockID),
		slots:      make(map[ir.ValueID]Slot),
		consts:     make(map[ir.ValueID]ir.Constant),
		fresh:      make(map[ir.ValueID]bool),
		edges:      make(map[edgeKey]ir.PhiEdge),
		PollResult: ir.PollType(orig.Return),
		StatePtr:   poll.ParamValue(0),
		Waker:      poll.ParamValue(1),
		DoneState:  a.MaxStateID() + 1,
	}

	offset := func(name string) (uint32, error) {
		off, ok := plan.Offsets[name]
		if !ok {
			return 0, errors.Internal(errors.PhaseLower, []string{orig.Name, name}, "slot missing from layout", nil)
		}
		return off, nil
	}

	for i, p := range orig.Params {
		off, err := offset(p.Name)
		if err != nil {
			return nil, err
		}
		c.slots[orig.ParamValue(i)] = Slot{Type: p.Type, Offset: off, Size: layout.SizeOf(p.Type)}
	}

	defs := make(map[ir.ValueID]ir.Instruction)
	orig.Walk(func(_ *ir.BasicBlock, _ int, in ir.Instruction) bool {
		if in.HasResult() {
			defs[in.Result] = in
		}
		if k, ok := in.Imm.(ir.ConstImm); ok {
			c.consts[in.Result] = k.Value
		}
		return true
	})

	for _, l := range a.Locals {
		off, err := offset(l.Name)
		if err != nil {
			return nil, err
		}
		c.slots[l.Value] = Slot{
			Type:   ir.ResultType(defs[l.Value]),
			Offset: off,
			Size:   layout.SizeOf(l.Type),
			Spill:  true,
		}
	}
	for _, l := range a.Live {
		off, err := offset(l.Name)
		if err != nil {
			return nil, err
		}
		c.slots[l.Value] = Slot{Type: l.Type, Offset: off, Size: layout.SpillSize(l.Type), Spill: true}
	}
	for _, s := range a.Suspensions {
		off, err := offset(layout.FutureResultSlot(s.StateID))
		if err != nil {
			return nil, err
		}
		c.slots[s.Result] = Slot{Type: s.Type, Offset: off, Size: 8}
	}
	return c, nil
}

// SlotOf returns the storage of an original value.
func (c *Context) SlotOf(v ir.ValueID) (Slot, bool) {
	s, ok := c.slots[v]
	return s, ok
}

// Fail builds an internal lowering error at the current location.
func (c *Context) Fail(detail string, cause error) error {
	path := []string{c.Poll.Name}
	if c.Block != nil {
		path = append(path, c.Block.Name)
	}
	return errors.Internal(errors.PhaseLower, path, detail, cause)
}

// Lookup returns the poll function value currently bound to v.
func (c *Context) Lookup(v ir.ValueID) (ir.ValueID, error) {
	nv, ok := c.Values[v]
	if !ok {
		return ir.NoValue, c.Fail(fmt.Sprintf("value %s used before definition", v), nil)
	}
	return nv, nil
}

// Define binds an original value to a poll function value for the rest of
// the current segment.
func (c *Context) Define(orig, nv ir.ValueID) {
	c.Values[orig] = nv
	c.fresh[orig] = true
}

// BeginSegment starts a straight-line run of code that may be entered from a
// fresh poll call. Slot values and constants defined earlier are no longer
// assumed to be available.
func (c *Context) BeginSegment() {
	clear(c.fresh)
}

// Remap rewrites an instruction's operands and blocks into the poll function.
func (c *Context) Remap(in ir.Instruction) (any, error) {
	var firstErr error
	imm := ir.MapOperands(in.Imm, func(v ir.ValueID) ir.ValueID {
		nv, err := c.Lookup(v)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return nv
	})
	imm = ir.MapBlocks(imm, func(b ir.BlockID) ir.BlockID {
		nb, ok := c.Blocks[b]
		if !ok && firstErr == nil {
			firstErr = c.Fail(fmt.Sprintf("branch to unmapped block %s", b), nil)
		}
		return nb
	})
	return imm, firstErr
}

// Copy emits in with remapped operands, binds its result, and spills it
// when it owns a local slot.
func (c *Context) Copy(in ir.Instruction) error {
	imm, err := c.Remap(in)
	if err != nil {
		return err
	}
	nv, err := c.B.Emit(in.Op, imm)
	if err != nil {
		return c.Fail("emit "+in.Op.String(), err)
	}
	if !in.HasResult() {
		return nil
	}
	c.Define(in.Result, nv)
	return c.Spill(in.Result)
}

// Spill stores v into its local slot. Values without a spilled slot and
// zero-size slots are left alone.
func (c *Context) Spill(v ir.ValueID) error {
	s, ok := c.slots[v]
	if !ok || !s.Spill || s.Size == 0 {
		return nil
	}
	nv, err := c.Lookup(v)
	if err != nil {
		return err
	}
	if err := c.B.StoreAsyncState(c.StatePtr, s.Offset, nv); err != nil {
		return c.Fail("spill "+v.String(), err)
	}
	return nil
}

// LoadParams loads every original parameter from its slot.
func (c *Context) LoadParams() error {
	for i := range c.Orig.Params {
		if err := c.reload(c.Orig.ParamValue(i)); err != nil {
			return err
		}
	}
	return nil
}

// Materialize makes every slot value and constant that rest reads, and that
// rest does not define first, available in the current block. tail lists
// extra values read at the end of the segment, such as phi inputs of
// successors.
func (c *Context) Materialize(rest []ir.Instruction, tail []ir.ValueID) error {
	return c.materialize(rest, tail, false)
}

// MaterializeResumed is Materialize for a segment entered from a resume
// block. Nothing from before the suspension is in scope there, so every
// value read must have a slot or be a constant.
func (c *Context) MaterializeResumed(rest []ir.Instruction, tail []ir.ValueID) error {
	return c.materialize(rest, tail, true)
}

func (c *Context) materialize(rest []ir.Instruction, tail []ir.ValueID, resumed bool) error {
	defined := make(map[ir.ValueID]bool)
	var need []ir.ValueID
	var lost []ir.ValueID
	want := func(v ir.ValueID) {
		if defined[v] || c.fresh[v] {
			return
		}
		_, isSlot := c.slots[v]
		_, isConst := c.consts[v]
		if !isSlot && !isConst {
			if resumed {
				defined[v] = true
				lost = append(lost, v)
			}
			return
		}
		defined[v] = true
		need = append(need, v)
	}
	for _, in := range rest {
		if in.Op != ir.OpPhi {
			for _, v := range ir.Operands(in.Imm) {
				want(v)
			}
		}
		if in.HasResult() {
			defined[in.Result] = true
		}
	}
	for _, v := range tail {
		want(v)
	}
	if len(lost) > 0 {
		return c.Fail(fmt.Sprintf("value %s is read after a suspension but has no state slot", lost[0]), nil)
	}
	for _, v := range need {
		if err := c.reload(v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) reload(v ir.ValueID) error {
	if k, ok := c.consts[v]; ok {
		nv, err := c.B.Const(k)
		if err != nil {
			return c.Fail("rematerialize "+v.String(), err)
		}
		c.Define(v, nv)
		return nil
	}
	s, ok := c.slots[v]
	if !ok {
		return c.Fail(fmt.Sprintf("value %s has no slot", v), nil)
	}
	if s.Size == 0 {
		nv, err := c.B.Const(ir.ConstVoid())
		if err != nil {
			return c.Fail("rematerialize "+v.String(), err)
		}
		c.Define(v, nv)
		return nil
	}
	nv, err := c.B.LoadAsyncState(c.StatePtr, s.Offset, s.Type)
	if err != nil {
		return c.Fail("reload "+v.String(), err)
	}
	c.Define(v, nv)
	return nil
}

// SuccessorPhiInputs returns the values that phis of blk's successors read
// along edges leaving blk.
func (c *Context) SuccessorPhiInputs(blk *ir.BasicBlock) []ir.ValueID {
	var out []ir.ValueID
	for _, succ := range blk.Successors() {
		sb := c.Orig.Block(succ)
		if sb == nil {
			continue
		}
		for _, in := range sb.Instrs {
			phi, ok := in.Imm.(ir.PhiImm)
			if !ok {
				continue
			}
			for _, e := range phi.Incoming {
				if e.Block == blk.ID {
					out = append(out, e.Value)
				}
			}
		}
	}
	return out
}

// RecordEdges remembers, for every phi in blk's successors, the poll
// function value and block that flow along the edge from blk. It must be
// called right before blk's terminator is emitted.
func (c *Context) RecordEdges(blk *ir.BasicBlock) error {
	cur, ok := c.B.CurrentBlock()
	if !ok {
		return c.Fail("no current block for edge", ir.ErrNoBlock)
	}
	for _, succ := range blk.Successors() {
		sb := c.Orig.Block(succ)
		if sb == nil {
			continue
		}
		for _, in := range sb.Instrs {
			phi, ok := in.Imm.(ir.PhiImm)
			if !ok {
				continue
			}
			for _, e := range phi.Incoming {
				if e.Block != blk.ID {
					continue
				}
				nv, err := c.Lookup(e.Value)
				if err != nil {
					return err
				}
				c.edges[edgeKey{succ: succ, phi: in.Result, pred: blk.ID}] = ir.PhiEdge{Value: nv, Block: cur}
			}
		}
	}
	return nil
}

// DeferPhi emits a phi with no incoming edges and queues it for FinishPhis.
func (c *Context) DeferPhi(in ir.Instruction) error {
	imm := in.Imm.(ir.PhiImm)
	cur, ok := c.B.CurrentBlock()
	if !ok {
		return c.Fail("no current block for phi", ir.ErrNoBlock)
	}
	nv, err := c.B.Phi(imm.Type, nil)
	if err != nil {
		return c.Fail("emit phi", err)
	}
	blk := c.Poll.Block(cur)
	c.phis = append(c.phis, pendingPhi{
		imm:   imm,
		succ:  c.Block.ID,
		phi:   in.Result,
		block: cur,
		index: len(blk.Instrs) - 1,
	})
	c.Define(in.Result, nv)
	return nil
}

// FinishPhis fills in the incoming edges of every deferred phi.
func (c *Context) FinishPhis() error {
	for _, p := range c.phis {
		incoming := make([]ir.PhiEdge, 0, len(p.imm.Incoming))
		for _, e := range p.imm.Incoming {
			edge, ok := c.edges[edgeKey{succ: p.succ, phi: p.phi, pred: e.Block}]
			if !ok {
				return errors.Internal(errors.PhaseLower, []string{c.Poll.Name, p.phi.String()},
					fmt.Sprintf("phi edge from %s has no matching branch", e.Block), nil)
			}
			incoming = append(incoming, edge)
		}
		blk := c.Poll.Block(p.block)
		blk.Instrs[p.index].Imm = ir.PhiImm{Type: p.imm.Type, Incoming: incoming}
	}
	return nil
}

// SortedSuspendPoints returns the suspend points ordered by state id.
func (c *Context) SortedSuspendPoints() []SuspendPoint {
	out := make([]SuspendPoint, len(c.SuspendPoints))
	copy(out, c.SuspendPoints)
	sort.Slice(out, func(i, j int) bool { return out[i].StateID < out[j].StateID })
	return out
}

// Pending emits "return Poll::Pending" in the current block.
func (c *Context) Pending() error {
	p, err := c.B.ConstructEnum(ir.PollEnum, ir.PollPendingRef, ir.PollPending, nil, c.PollResult)
	if err != nil {
		return c.Fail("construct pending", err)
	}
	if err := c.B.Return(p); err != nil {
		return c.Fail("return pending", err)
	}
	return nil
}
