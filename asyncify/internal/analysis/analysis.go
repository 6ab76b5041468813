// Package analysis discovers the locals and suspension points of an async
// function. It never mutates the function.
package analysis

import (
	"fmt"
	"slices"

	"github.com/moikas-code/script-sub002/ir"
)

// Local is a value that needs a slot in the state record.
type Local struct {
	Name  string
	Type  ir.Type
	Value ir.ValueID
}

// Suspension is one await instruction.
type Suspension struct {
	Type    ir.Type
	StateID uint32
	Block   ir.BlockID
	Index   int
	Result  ir.ValueID
	Future  ir.ValueID
}

// Result is the output of Analyze.
type Result struct {
	// Locals in discovery order.
	Locals []Local
	// Live holds the remaining values that are read after a suspension
	// without being recomputed. They are spilled like locals.
	Live []Local
	// Suspensions ordered by StateID.
	Suspensions  []Suspension
	Instructions int
}

// Local returns the local bound to v.
func (r *Result) Local(v ir.ValueID) (Local, bool) {
	for _, l := range r.Locals {
		if l.Value == v {
			return l, true
		}
	}
	return Local{}, false
}

// Suspension returns the suspension whose await defines v.
func (r *Result) Suspension(v ir.ValueID) (Suspension, bool) {
	for _, s := range r.Suspensions {
		if s.Result == v {
			return s, true
		}
	}
	return Suspension{}, false
}

// MaxStateID returns the highest assigned state id, or 0 without suspensions.
func (r *Result) MaxStateID() uint32 {
	if len(r.Suspensions) == 0 {
		return 0
	}
	return r.Suspensions[len(r.Suspensions)-1].StateID
}

// IsSignificant reports whether op produces a value that gets its own
// temporary slot.
func IsSignificant(op ir.Op) bool {
	switch op {
	case ir.OpCall, ir.OpBinary, ir.OpUnary, ir.OpCompare,
		ir.OpLoadField, ir.OpConstructStruct, ir.OpConstructEnum:
		return true
	}
	return false
}

// LocalName returns the synthesized slot name for an instruction, or "" when
// the instruction does not own a slot.
func LocalName(in ir.Instruction) string {
	switch {
	case !in.HasResult():
		return ""
	case in.Op == ir.OpAlloc:
		return fmt.Sprintf("__local_%d", in.Result)
	case IsSignificant(in.Op):
		return fmt.Sprintf("__temp_%d", in.Result)
	}
	return ""
}

// CountInstructions returns the number of instructions in fn.
func CountInstructions(fn *ir.Function) int { return fn.InstructionCount() }

// CountSuspensions returns the number of await instructions in fn.
func CountSuspensions(fn *ir.Function) int {
	n := 0
	fn.Walk(func(_ *ir.BasicBlock, _ int, in ir.Instruction) bool {
		if in.Op == ir.OpAwait {
			n++
		}
		return true
	})
	return n
}

// Analyze walks fn in block creation order. Alloc results become __local_N
// slots typed by the allocated type; significant results become __temp_N
// slots of unknown type. Loads and stores reuse storage that was already
// discovered and are never locals themselves.
func Analyze(fn *ir.Function) *Result {
	res := &Result{}
	seen := NewBitSet(fn.NumValues())

	var awaits []Suspension
	fn.Walk(func(b *ir.BasicBlock, idx int, in ir.Instruction) bool {
		res.Instructions++
		if name := LocalName(in); name != "" && seen.Set(uint32(in.Result)) {
			typ := ir.Unknown
			if a, ok := in.Imm.(ir.AllocImm); ok {
				typ = a.Type
			}
			res.Locals = append(res.Locals, Local{Name: name, Type: typ, Value: in.Result})
		}
		if aw, ok := in.Imm.(ir.AwaitImm); ok {
			awaits = append(awaits, Suspension{
				Type:   aw.Type,
				Block:  b.ID,
				Index:  idx,
				Result: in.Result,
				Future: aw.Future,
			})
		}
		return true
	})

	res.Suspensions = assignStateIDs(fn, awaits)
	if len(awaits) > 0 {
		res.Live = liveLocals(fn, seen)
	}
	return res
}

// liveLocals picks the values live across an await that have no storage
// yet. Parameters, constants, locals and await results are reloaded or
// recomputed already.
func liveLocals(fn *ir.Function, seen *BitSet) []Local {
	defs := make(map[ir.ValueID]ir.Instruction, fn.NumValues())
	fn.Walk(func(_ *ir.BasicBlock, _ int, in ir.Instruction) bool {
		if in.HasResult() {
			defs[in.Result] = in
		}
		return true
	})
	var out []Local
	for _, v := range LiveAcrossAwaits(fn) {
		def, ok := defs[v]
		if !ok || seen.Has(uint32(v)) {
			continue
		}
		switch def.Op {
		case ir.OpConst, ir.OpAwait:
			continue
		}
		out = append(out, Local{Name: fmt.Sprintf("__live_%d", v), Type: ir.ResultType(def), Value: v})
	}
	return out
}

// assignStateIDs numbers awaits from 1 by a depth-first walk of the await
// nesting forest. An await is nested in another when its result flows into
// the other's future operand. Parents are numbered before their children,
// siblings and roots in instruction order. Without nesting this is plain
// instruction order.
func assignStateIDs(fn *ir.Function, awaits []Suspension) []Suspension {
	if len(awaits) == 0 {
		return nil
	}

	defs := make(map[ir.ValueID]ir.Instruction, fn.NumValues())
	fn.Walk(func(_ *ir.BasicBlock, _ int, in ir.Instruction) bool {
		if in.HasResult() {
			defs[in.Result] = in
		}
		return true
	})
	pos := make(map[ir.ValueID]int, len(awaits))
	for i, a := range awaits {
		pos[a.Result] = i
	}

	children := make([][]int, len(awaits))
	nested := make([]bool, len(awaits))
	for i, a := range awaits {
		visited := NewBitSet(fn.NumValues())
		var inner []int
		var walk func(v ir.ValueID)
		walk = func(v ir.ValueID) {
			if !visited.Set(uint32(v)) {
				return
			}
			if j, ok := pos[v]; ok {
				inner = append(inner, j)
				return
			}
			def, ok := defs[v]
			if !ok {
				return
			}
			for _, op := range ir.Operands(def.Imm) {
				walk(op)
			}
		}
		walk(a.Future)
		slices.Sort(inner)
		children[i] = inner
		for _, j := range inner {
			nested[j] = true
		}
	}

	out := make([]Suspension, 0, len(awaits))
	done := make([]bool, len(awaits))
	next := uint32(1)
	var visit func(i int)
	visit = func(i int) {
		if done[i] {
			return
		}
		done[i] = true
		s := awaits[i]
		s.StateID = next
		next++
		out = append(out, s)
		for _, c := range children[i] {
			visit(c)
		}
	}
	for i := range awaits {
		if !nested[i] {
			visit(i)
		}
	}
	// Awaits that only nest inside each other through a loop have no root.
	for i := range awaits {
		visit(i)
	}
	return out
}
