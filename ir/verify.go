package ir

import (
	"fmt"
	"strings"
)

// VerifyError describes one structural problem in a function.
type VerifyError struct {
	Function string
	Block    string
	Message  string
}

func (e VerifyError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("%s: %s", e.Function, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s", e.Function, e.Block, e.Message)
}

// VerifyErrors collects every problem found by Verify.
type VerifyErrors []VerifyError

func (es VerifyErrors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Verify checks the structural shape of a function body: an entry block
// exists, every block ends in exactly one terminator, every branch target
// exists, every operand is defined in the function, and every definition
// dominates its uses. Phi inputs must dominate the end of their incoming
// block. Unreachable blocks are not checked for dominance.
func Verify(fn *Function) error {
	if fn.External {
		return nil
	}
	var errs VerifyErrors
	add := func(block, format string, args ...any) {
		errs = append(errs, VerifyError{Function: fn.Name, Block: block, Message: fmt.Sprintf(format, args...)})
	}

	if fn.Entry() == nil {
		add("", "no entry block")
		return errs
	}

	defined := make(map[ValueID]bool, fn.NumValues())
	for i := range fn.Params {
		defined[ValueID(i)] = true
	}
	fn.Walk(func(_ *BasicBlock, _ int, in Instruction) bool {
		if in.HasResult() {
			if defined[in.Result] {
				add("", "value %s defined twice", in.Result)
			}
			defined[in.Result] = true
		}
		return true
	})

	for _, b := range fn.Blocks {
		if !b.Terminated() {
			add(b.Name, "block is not terminated")
		}
		for i, in := range b.Instrs {
			if in.IsTerminator() && i != len(b.Instrs)-1 {
				add(b.Name, "terminator %s is not last", in.Op)
			}
			for _, v := range Operands(in.Imm) {
				if !defined[v] {
					add(b.Name, "%s uses undefined value %s", in.Op, v)
				}
			}
			for _, t := range Targets(in.Imm) {
				if fn.Block(t) == nil {
					add(b.Name, "%s targets unknown block %s", in.Op, t)
				}
			}
			if phi, ok := in.Imm.(PhiImm); ok {
				for _, e := range phi.Incoming {
					if fn.Block(e.Block) == nil {
						add(b.Name, "phi edge from unknown block %s", e.Block)
					}
				}
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	errs = append(errs, checkDominance(fn)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

type defSite struct {
	block BlockID
	index int
}

func checkDominance(fn *Function) []VerifyError {
	dom := newDominators(fn)
	defs := make(map[ValueID]defSite, fn.NumValues())
	fn.Walk(func(b *BasicBlock, i int, in Instruction) bool {
		if in.HasResult() {
			defs[in.Result] = defSite{block: b.ID, index: i}
		}
		return true
	})

	var errs []VerifyError
	report := func(b *BasicBlock, in Instruction, v ValueID) {
		errs = append(errs, VerifyError{
			Function: fn.Name,
			Block:    b.Name,
			Message:  fmt.Sprintf("%s uses %s, whose definition does not dominate it", in.Op, v),
		})
	}
	for _, b := range fn.Blocks {
		if !dom.reachable(b.ID) {
			continue
		}
		for i, in := range b.Instrs {
			if phi, ok := in.Imm.(PhiImm); ok {
				for _, e := range phi.Incoming {
					d, ok := defs[e.Value]
					if !ok || !dom.reachable(e.Block) {
						continue
					}
					if !dom.dominates(d.block, e.Block) {
						report(b, in, e.Value)
					}
				}
				continue
			}
			for _, v := range Operands(in.Imm) {
				d, ok := defs[v]
				if !ok {
					continue
				}
				if d.block == b.ID {
					if d.index >= i {
						report(b, in, v)
					}
					continue
				}
				if !dom.dominates(d.block, b.ID) {
					report(b, in, v)
				}
			}
		}
	}
	return errs
}

// dominators is the immediate dominator tree of the blocks reachable from
// the entry, computed with the iterative Cooper, Harvey and Kennedy scheme.
type dominators struct {
	idom  map[BlockID]BlockID
	order map[BlockID]int
}

func newDominators(fn *Function) *dominators {
	entry := fn.Entry()
	var post []BlockID
	seen := make(map[BlockID]bool)
	var visit func(id BlockID)
	visit = func(id BlockID) {
		seen[id] = true
		b := fn.Block(id)
		if b == nil {
			return
		}
		for _, s := range b.Successors() {
			if !seen[s] && fn.Block(s) != nil {
				visit(s)
			}
		}
		post = append(post, id)
	}
	visit(entry.ID)

	d := &dominators{idom: make(map[BlockID]BlockID), order: make(map[BlockID]int, len(post))}
	for i, id := range post {
		d.order[id] = i
	}
	preds := make(map[BlockID][]BlockID)
	for _, id := range post {
		for _, s := range fn.Block(id).Successors() {
			preds[s] = append(preds[s], id)
		}
	}

	d.idom[entry.ID] = entry.ID
	for changed := true; changed; {
		changed = false
		for i := len(post) - 1; i >= 0; i-- {
			id := post[i]
			if id == entry.ID {
				continue
			}
			var next BlockID
			found := false
			for _, p := range preds[id] {
				if _, ok := d.idom[p]; !ok {
					continue
				}
				if !found {
					next, found = p, true
					continue
				}
				next = d.intersect(p, next)
			}
			if found {
				if cur, ok := d.idom[id]; !ok || cur != next {
					d.idom[id] = next
					changed = true
				}
			}
		}
	}
	return d
}

func (d *dominators) intersect(a, b BlockID) BlockID {
	for a != b {
		for d.order[a] < d.order[b] {
			a = d.idom[a]
		}
		for d.order[b] < d.order[a] {
			b = d.idom[b]
		}
	}
	return a
}

func (d *dominators) reachable(id BlockID) bool {
	_, ok := d.order[id]
	return ok
}

// dominates reports whether a dominates b. Both must be reachable.
func (d *dominators) dominates(a, b BlockID) bool {
	if !d.reachable(a) || !d.reachable(b) {
		return false
	}
	for {
		if a == b {
			return true
		}
		up := d.idom[b]
		if up == b {
			return false
		}
		b = up
	}
}
