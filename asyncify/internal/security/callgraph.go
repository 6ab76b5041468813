package security

import "github.com/moikas-code/script-sub002/ir"

// CallGraph maps each function to the functions it calls directly.
type CallGraph map[ir.FunctionID][]ir.FunctionID

// BuildCallGraph records every direct call in m.
func BuildCallGraph(m *ir.Module) CallGraph {
	cg := make(CallGraph)
	for _, fn := range m.Functions() {
		fn.Walk(func(_ *ir.BasicBlock, _ int, in ir.Instruction) bool {
			if call, ok := in.Imm.(ir.CallImm); ok {
				cg[fn.ID] = appendUnique(cg[fn.ID], call.Func)
			}
			return true
		})
	}
	return cg
}

// TransitiveCallers finds all functions that transitively call any of the targets.
func (cg CallGraph) TransitiveCallers(targets map[ir.FunctionID]bool) map[ir.FunctionID]bool {
	result := make(map[ir.FunctionID]bool)
	for t := range targets {
		result[t] = true
	}

	changed := true
	for changed {
		changed = false
		for caller, callees := range cg {
			if result[caller] {
				continue
			}
			for _, callee := range callees {
				if result[callee] {
					result[caller] = true
					changed = true
					break
				}
			}
		}
	}
	return result
}

// TransitiveCallees finds all functions reachable from any of the sources.
func (cg CallGraph) TransitiveCallees(sources map[ir.FunctionID]bool) map[ir.FunctionID]bool {
	result := make(map[ir.FunctionID]bool)
	for s := range sources {
		result[s] = true
	}

	changed := true
	for changed {
		changed = false
		for caller := range result {
			for _, callee := range cg[caller] {
				if !result[callee] {
					result[callee] = true
					changed = true
				}
			}
		}
	}
	return result
}

// Recursive reports whether fn can reach itself through one or more calls.
func (cg CallGraph) Recursive(fn ir.FunctionID) bool {
	direct := make(map[ir.FunctionID]bool, len(cg[fn]))
	for _, callee := range cg[fn] {
		direct[callee] = true
	}
	return cg.TransitiveCallees(direct)[fn]
}

func appendUnique(slice []ir.FunctionID, val ir.FunctionID) []ir.FunctionID {
	for _, v := range slice {
		if v == val {
			return slice
		}
	}
	return append(slice, val)
}
