package ir

// BasicBlock is a straight-line instruction sequence ending in a terminator.
type BasicBlock struct {
	Name   string
	Instrs []Instruction
	ID     BlockID
}

// Terminator returns the block's final instruction if it is a terminator.
func (b *BasicBlock) Terminator() (Instruction, bool) {
	if len(b.Instrs) == 0 {
		return Instruction{}, false
	}
	last := b.Instrs[len(b.Instrs)-1]
	return last, last.IsTerminator()
}

// Terminated reports whether the block already ends in a terminator.
func (b *BasicBlock) Terminated() bool {
	_, ok := b.Terminator()
	return ok
}

// Successors returns the blocks reachable from this block's terminator.
func (b *BasicBlock) Successors() []BlockID {
	term, ok := b.Terminator()
	if !ok {
		return nil
	}
	return Targets(term.Imm)
}

// Param is a named function parameter.
type Param struct {
	Name string
	Type Type
}

// Function is a named, typed computation. Blocks are kept in creation order
// and the first one is the entry block.
type Function struct {
	Return    Type
	blockIdx  map[BlockID]int
	Name      string
	Params    []Param
	Blocks    []*BasicBlock
	ID        FunctionID
	nextValue ValueID
	nextBlock BlockID
	Async     bool
	External  bool
}

func newFunction(id FunctionID, name string, params []Param, ret Type) *Function {
	return &Function{
		ID:        id,
		Name:      name,
		Params:    params,
		Return:    ret,
		blockIdx:  make(map[BlockID]int),
		nextValue: ValueID(len(params)),
	}
}

// ParamValue returns the value id bound to the i-th parameter.
func (f *Function) ParamValue(i int) ValueID { return ValueID(i) }

// ParamTypes returns the parameter types in declaration order.
func (f *Function) ParamTypes() []Type {
	out := make([]Type, len(f.Params))
	for i, p := range f.Params {
		out[i] = p.Type
	}
	return out
}

// Signature returns the function type.
func (f *Function) Signature() Type { return Func(f.ParamTypes(), f.Return) }

// Entry returns the entry block, or nil for a function without a body.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Block returns the block with the given id, or nil.
func (f *Function) Block(id BlockID) *BasicBlock {
	i, ok := f.blockIdx[id]
	if !ok {
		return nil
	}
	return f.Blocks[i]
}

// BlockByName returns the first block with the given name, or nil.
func (f *Function) BlockByName(name string) *BasicBlock {
	for _, b := range f.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// NewBlock appends an empty block.
func (f *Function) NewBlock(name string) *BasicBlock {
	b := &BasicBlock{ID: f.nextBlock, Name: name}
	f.nextBlock++
	f.blockIdx[b.ID] = len(f.Blocks)
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewValue reserves the next value id.
func (f *Function) NewValue() ValueID {
	v := f.nextValue
	f.nextValue++
	return v
}

// NumValues returns one past the highest value id defined so far.
func (f *Function) NumValues() int { return int(f.nextValue) }

// InstructionCount returns the total number of instructions in the body.
func (f *Function) InstructionCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instrs)
	}
	return n
}

// ResetBody discards every block. Value numbering restarts after the params.
func (f *Function) ResetBody() {
	f.Blocks = nil
	f.blockIdx = make(map[BlockID]int)
	f.nextBlock = 0
	f.nextValue = ValueID(len(f.Params))
}

// ValueType returns the type of v, searching params and then instructions.
func (f *Function) ValueType(v ValueID) (Type, bool) {
	if int(v) < len(f.Params) {
		return f.Params[v].Type, true
	}
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Result == v {
				return ResultType(in), true
			}
		}
	}
	return Type{}, false
}

// Walk calls fn for every instruction in block order. It stops early when fn
// returns false.
func (f *Function) Walk(fn func(b *BasicBlock, idx int, in Instruction) bool) {
	for _, b := range f.Blocks {
		for i, in := range b.Instrs {
			if !fn(b, i, in) {
				return
			}
		}
	}
}
