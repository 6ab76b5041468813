package ir

import (
	"errors"
	"fmt"
)

// Builder errors.
var (
	ErrNoFunction    = errors.New("no function selected")
	ErrNoBlock       = errors.New("no block selected")
	ErrTerminated    = errors.New("block already terminated")
	ErrUnknownBlock  = errors.New("unknown block")
	ErrUnknownFunc   = errors.New("unknown function")
	ErrExternalFunc  = errors.New("external function has no body")
	ErrResultlessOp  = errors.New("op produces no value")
	ErrValueProducer = errors.New("op produces a value")
)

// Builder appends instructions to a selected block of a selected function.
type Builder struct {
	module *Module
	fn     *Function
	block  *BasicBlock
}

// NewBuilder creates a builder over m with nothing selected.
func NewBuilder(m *Module) *Builder {
	return &Builder{module: m}
}

// Module returns the module being built.
func (b *Builder) Module() *Module { return b.module }

// Function returns the selected function, or nil.
func (b *Builder) Function() *Function { return b.fn }

// SetFunction selects a function and clears the block selection.
func (b *Builder) SetFunction(id FunctionID) error {
	f := b.module.Function(id)
	if f == nil {
		return fmt.Errorf("%w: %s", ErrUnknownFunc, id)
	}
	if f.External {
		return fmt.Errorf("%w: %s", ErrExternalFunc, f.Name)
	}
	b.fn = f
	b.block = nil
	return nil
}

// CreateBlock appends a block to the selected function.
func (b *Builder) CreateBlock(name string) (BlockID, error) {
	if b.fn == nil {
		return 0, ErrNoFunction
	}
	return b.fn.NewBlock(name).ID, nil
}

// SetBlock selects the block to append to.
func (b *Builder) SetBlock(id BlockID) error {
	if b.fn == nil {
		return ErrNoFunction
	}
	blk := b.fn.Block(id)
	if blk == nil {
		return fmt.Errorf("%w: %s in %s", ErrUnknownBlock, id, b.fn.Name)
	}
	b.block = blk
	return nil
}

// CurrentBlock returns the selected block id.
func (b *Builder) CurrentBlock() (BlockID, bool) {
	if b.block == nil {
		return 0, false
	}
	return b.block.ID, true
}

// Emit appends an instruction and returns the value it defines, or NoValue.
func (b *Builder) Emit(op Op, imm any) (ValueID, error) {
	if b.fn == nil {
		return NoValue, ErrNoFunction
	}
	if b.block == nil {
		return NoValue, ErrNoBlock
	}
	if b.block.Terminated() {
		return NoValue, fmt.Errorf("%w: %s", ErrTerminated, b.block.Name)
	}
	for _, t := range Targets(imm) {
		if b.fn.Block(t) == nil {
			return NoValue, fmt.Errorf("%w: %s in %s", ErrUnknownBlock, t, b.fn.Name)
		}
	}
	result := NoValue
	if op.ProducesValue() {
		result = b.fn.NewValue()
	}
	b.block.Instrs = append(b.block.Instrs, Instruction{Result: result, Op: op, Imm: imm})
	return result, nil
}

func (b *Builder) value(op Op, imm any) (ValueID, error) {
	if !op.ProducesValue() {
		return NoValue, fmt.Errorf("%w: %s", ErrResultlessOp, op)
	}
	return b.Emit(op, imm)
}

func (b *Builder) effect(op Op, imm any) error {
	if op.ProducesValue() {
		return fmt.Errorf("%w: %s", ErrValueProducer, op)
	}
	_, err := b.Emit(op, imm)
	return err
}

func (b *Builder) Const(c Constant) (ValueID, error) {
	return b.value(OpConst, ConstImm{Value: c})
}

func (b *Builder) Binary(op BinaryOp, lhs, rhs ValueID, t Type) (ValueID, error) {
	return b.value(OpBinary, BinaryImm{Op: op, LHS: lhs, RHS: rhs, Type: t})
}

func (b *Builder) Unary(op UnaryOp, v ValueID, t Type) (ValueID, error) {
	return b.value(OpUnary, UnaryImm{Op: op, Operand: v, Type: t})
}

func (b *Builder) Compare(op CompareOp, lhs, rhs ValueID) (ValueID, error) {
	return b.value(OpCompare, CompareImm{Op: op, LHS: lhs, RHS: rhs})
}

func (b *Builder) Cast(v ValueID, to Type) (ValueID, error) {
	return b.value(OpCast, CastImm{Value: v, To: to})
}

func (b *Builder) Call(fn FunctionID, args []ValueID, ret Type) (ValueID, error) {
	return b.value(OpCall, CallImm{Func: fn, Args: args, Type: ret})
}

func (b *Builder) Alloc(t Type) (ValueID, error) {
	return b.value(OpAlloc, AllocImm{Type: t})
}

func (b *Builder) Load(ptr ValueID, t Type) (ValueID, error) {
	return b.value(OpLoad, LoadImm{Ptr: ptr, Type: t})
}

func (b *Builder) Store(ptr, v ValueID) error {
	return b.effect(OpStore, StoreImm{Ptr: ptr, Value: v})
}

func (b *Builder) LoadField(obj ValueID, field string, t Type) (ValueID, error) {
	return b.value(OpLoadField, LoadFieldImm{Object: obj, Field: field, Type: t})
}

func (b *Builder) StoreField(obj ValueID, field string, v ValueID) error {
	return b.effect(OpStoreField, StoreFieldImm{Object: obj, Field: field, Value: v})
}

func (b *Builder) ConstructStruct(name string, fields []FieldValue, t Type) (ValueID, error) {
	return b.value(OpConstructStruct, ConstructStructImm{Name: name, Fields: fields, Type: t})
}

func (b *Builder) ConstructEnum(name, variant string, tag uint32, args []ValueID, t Type) (ValueID, error) {
	return b.value(OpConstructEnum, ConstructEnumImm{Name: name, Variant: variant, Tag: tag, Args: args, Type: t})
}

func (b *Builder) GetEnumTag(v ValueID) (ValueID, error) {
	return b.value(OpGetEnumTag, GetEnumTagImm{Value: v})
}

func (b *Builder) ExtractEnumData(v ValueID, index uint32, t Type) (ValueID, error) {
	return b.value(OpExtractEnumData, ExtractEnumDataImm{Value: v, Index: index, Type: t})
}

func (b *Builder) Phi(t Type, incoming []PhiEdge) (ValueID, error) {
	return b.value(OpPhi, PhiImm{Type: t, Incoming: incoming})
}

func (b *Builder) Return(v ValueID) error {
	return b.effect(OpReturn, ReturnImm{Value: v, HasValue: true})
}

func (b *Builder) ReturnVoid() error {
	return b.effect(OpReturn, ReturnImm{})
}

func (b *Builder) Branch(target BlockID) error {
	return b.effect(OpBranch, BranchImm{Target: target})
}

func (b *Builder) CondBranch(cond ValueID, then, els BlockID) error {
	return b.effect(OpCondBranch, CondBranchImm{Cond: cond, Then: then, Else: els})
}

func (b *Builder) Await(future ValueID, output Type) (ValueID, error) {
	return b.value(OpAwait, AwaitImm{Future: future, Type: output})
}

func (b *Builder) PollFuture(future, waker ValueID, output Type) (ValueID, error) {
	return b.value(OpPollFuture, PollFutureImm{Future: future, Waker: waker, Type: output})
}

func (b *Builder) CreateAsyncState(initial, size uint32, output Type, pollFn FunctionID) (ValueID, error) {
	return b.value(OpCreateAsyncState, CreateAsyncStateImm{InitialState: initial, Size: size, Output: output, PollFn: pollFn})
}

func (b *Builder) StoreAsyncState(state ValueID, offset uint32, v ValueID) error {
	return b.effect(OpStoreAsyncState, StoreAsyncStateImm{State: state, Offset: offset, Value: v})
}

func (b *Builder) LoadAsyncState(state ValueID, offset uint32, t Type) (ValueID, error) {
	return b.value(OpLoadAsyncState, LoadAsyncStateImm{State: state, Offset: offset, Type: t})
}

func (b *Builder) GetAsyncState(state ValueID) (ValueID, error) {
	return b.value(OpGetAsyncState, GetAsyncStateImm{State: state})
}

func (b *Builder) SetAsyncState(state ValueID, id uint32) error {
	return b.effect(OpSetAsyncState, SetAsyncStateImm{State: state, Value: id})
}
