package engine

import "github.com/moikas-code/script-sub002/ir"

// blockOrder returns the blocks of fn in reverse postorder from the entry,
// followed by unreachable blocks in creation order.
func blockOrder(fn *ir.Function) []*ir.BasicBlock {
	entry := fn.Entry()
	if entry == nil {
		return nil
	}
	visited := make(map[ir.BlockID]bool, len(fn.Blocks))
	post := make([]*ir.BasicBlock, 0, len(fn.Blocks))

	type frame struct {
		blk  *ir.BasicBlock
		next int
	}
	stack := []frame{{blk: entry}}
	visited[entry.ID] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := top.blk.Successors()
		if top.next < len(succs) {
			id := succs[top.next]
			top.next++
			if s := fn.Block(id); s != nil && !visited[id] {
				visited[id] = true
				stack = append(stack, frame{blk: s})
			}
			continue
		}
		post = append(post, top.blk)
		stack = stack[:len(stack)-1]
	}

	order := make([]*ir.BasicBlock, 0, len(fn.Blocks))
	for i := len(post) - 1; i >= 0; i-- {
		order = append(order, post[i])
	}
	for _, b := range fn.Blocks {
		if !visited[b.ID] {
			order = append(order, b)
		}
	}
	return order
}
