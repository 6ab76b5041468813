package analysis

import "github.com/moikas-code/script-sub002/ir"

// A value is live at a point if some path from that point reaches a use of
// it. Phi operands are uses at the end of the incoming block, phi results
// are definitions at the top of their block.

type blockFlow struct {
	use, def *BitSet
	// phiUse holds the values this block passes to successor phis.
	phiUse *BitSet
	in     *BitSet
	out    *BitSet
}

// LiveAcrossAwaits returns, in ascending id order, every value that is live
// right after some await other than that await's own result.
func LiveAcrossAwaits(fn *ir.Function) []ir.ValueID {
	n := fn.NumValues()
	flows := make(map[ir.BlockID]*blockFlow, len(fn.Blocks))
	for _, b := range fn.Blocks {
		f := &blockFlow{use: NewBitSet(n), def: NewBitSet(n), phiUse: NewBitSet(n), in: NewBitSet(n), out: NewBitSet(n)}
		for _, in := range b.Instrs {
			if in.Op != ir.OpPhi {
				for _, v := range ir.Operands(in.Imm) {
					if !f.def.Has(uint32(v)) {
						f.use.Set(uint32(v))
					}
				}
			}
			if in.HasResult() {
				f.def.Set(uint32(in.Result))
			}
		}
		flows[b.ID] = f
	}
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			phi, ok := in.Imm.(ir.PhiImm)
			if !ok {
				continue
			}
			for _, e := range phi.Incoming {
				if pred, ok := flows[e.Block]; ok {
					pred.phiUse.Set(uint32(e.Value))
				}
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]
			f := flows[b.ID]
			out := f.phiUse.Clone()
			for _, s := range b.Successors() {
				if sf, ok := flows[s]; ok {
					out.Union(sf.in)
				}
			}
			f.out = out
			in := out.Clone()
			for _, v := range f.def.ToSlice() {
				in.Clear(v)
			}
			in.Union(f.use)
			if f.in.Union(in) {
				changed = true
			}
		}
	}

	across := NewBitSet(n)
	for _, b := range fn.Blocks {
		live := flows[b.ID].out.Clone()
		for i := len(b.Instrs) - 1; i >= 0; i-- {
			in := b.Instrs[i]
			if in.HasResult() {
				live.Clear(uint32(in.Result))
			}
			if in.Op == ir.OpAwait {
				across.Union(live)
			}
			if in.Op != ir.OpPhi {
				for _, v := range ir.Operands(in.Imm) {
					live.Set(uint32(v))
				}
			}
		}
	}

	members := across.ToSlice()
	out := make([]ir.ValueID, len(members))
	for i, v := range members {
		out[i] = ir.ValueID(v)
	}
	return out
}
