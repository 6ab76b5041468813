package ir

import (
	"math"
	"slices"
)

// Op identifies an instruction kind.
type Op uint8

const (
	OpConst Op = iota
	OpBinary
	OpUnary
	OpCompare
	OpCast
	OpCall
	OpAlloc
	OpLoad
	OpStore
	OpLoadField
	OpStoreField
	OpConstructStruct
	OpConstructEnum
	OpGetEnumTag
	OpExtractEnumData
	OpPhi
	OpReturn
	OpBranch
	OpCondBranch
	OpAwait
	OpPollFuture
	OpCreateAsyncState
	OpStoreAsyncState
	OpLoadAsyncState
	OpGetAsyncState
	OpSetAsyncState

	numOps
)

var opNames = [numOps]string{
	OpConst:            "const",
	OpBinary:           "binary",
	OpUnary:            "unary",
	OpCompare:          "compare",
	OpCast:             "cast",
	OpCall:             "call",
	OpAlloc:            "alloc",
	OpLoad:             "load",
	OpStore:            "store",
	OpLoadField:        "load_field",
	OpStoreField:       "store_field",
	OpConstructStruct:  "construct_struct",
	OpConstructEnum:    "construct_enum",
	OpGetEnumTag:       "get_enum_tag",
	OpExtractEnumData:  "extract_enum_data",
	OpPhi:              "phi",
	OpReturn:           "return",
	OpBranch:           "branch",
	OpCondBranch:       "cond_branch",
	OpAwait:            "await",
	OpPollFuture:       "poll_future",
	OpCreateAsyncState: "create_async_state",
	OpStoreAsyncState:  "store_async_state",
	OpLoadAsyncState:   "load_async_state",
	OpGetAsyncState:    "get_async_state",
	OpSetAsyncState:    "set_async_state",
}

func (o Op) String() string {
	if o < numOps {
		return opNames[o]
	}
	return "invalid"
}

// ParseOp returns the op with the given name.
func ParseOp(name string) (Op, bool) {
	for i, n := range opNames {
		if n == name {
			return Op(i), true
		}
	}
	return 0, false
}

// AllOps lists every op in declaration order.
func AllOps() []Op {
	ops := make([]Op, numOps)
	for i := range ops {
		ops[i] = Op(i)
	}
	return ops
}

// ProducesValue reports whether instructions of this op define a value.
func (o Op) ProducesValue() bool {
	switch o {
	case OpStore, OpStoreField, OpStoreAsyncState, OpSetAsyncState,
		OpReturn, OpBranch, OpCondBranch:
		return false
	}
	return true
}

// IsTerminator reports whether the op ends a basic block.
func (o Op) IsTerminator() bool {
	return o == OpReturn || o == OpBranch || o == OpCondBranch
}

// NoValue is the Result of instructions that define nothing.
const NoValue ValueID = math.MaxUint32

// Instruction is one IR operation. Imm holds the op-specific immediate.
type Instruction struct {
	Imm    any
	Result ValueID
	Op     Op
}

// HasResult reports whether the instruction defines a value.
func (i Instruction) HasResult() bool { return i.Result != NoValue }

// IsTerminator reports whether the instruction ends its block.
func (i Instruction) IsTerminator() bool { return i.Op.IsTerminator() }

// BinaryOp is an arithmetic or bitwise operator.
type BinaryOp uint8

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Rem
	And
	Or
	Xor
	Shl
	Shr
)

var binaryNames = [...]string{"add", "sub", "mul", "div", "rem", "and", "or", "xor", "shl", "shr"}

func (o BinaryOp) String() string {
	if int(o) < len(binaryNames) {
		return binaryNames[o]
	}
	return "invalid"
}

// ParseBinaryOp returns the operator with the given name.
func ParseBinaryOp(name string) (BinaryOp, bool) {
	i := slices.Index(binaryNames[:], name)
	return BinaryOp(i), i >= 0
}

// UnaryOp is a unary operator.
type UnaryOp uint8

const (
	Neg UnaryOp = iota
	Not
)

func (o UnaryOp) String() string {
	if o == Neg {
		return "neg"
	}
	return "not"
}

// ParseUnaryOp returns the operator with the given name.
func ParseUnaryOp(name string) (UnaryOp, bool) {
	switch name {
	case "neg":
		return Neg, true
	case "not":
		return Not, true
	}
	return 0, false
}

// CompareOp is a comparison operator.
type CompareOp uint8

const (
	Eq CompareOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

var compareNames = [...]string{"eq", "ne", "lt", "le", "gt", "ge"}

func (o CompareOp) String() string {
	if int(o) < len(compareNames) {
		return compareNames[o]
	}
	return "invalid"
}

// ParseCompareOp returns the operator with the given name.
func ParseCompareOp(name string) (CompareOp, bool) {
	i := slices.Index(compareNames[:], name)
	return CompareOp(i), i >= 0
}

// Immediates. One per op.

type ConstImm struct {
	Value Constant
}

type BinaryImm struct {
	Type     Type
	LHS, RHS ValueID
	Op       BinaryOp
}

type UnaryImm struct {
	Type    Type
	Operand ValueID
	Op      UnaryOp
}

type CompareImm struct {
	LHS, RHS ValueID
	Op       CompareOp
}

type CastImm struct {
	To    Type
	Value ValueID
}

type CallImm struct {
	Type Type
	Args []ValueID
	Func FunctionID
}

type AllocImm struct {
	Type Type
}

type LoadImm struct {
	Type Type
	Ptr  ValueID
}

type StoreImm struct {
	Ptr, Value ValueID
}

type LoadFieldImm struct {
	Type   Type
	Field  string
	Object ValueID
}

type StoreFieldImm struct {
	Field         string
	Object, Value ValueID
}

// FieldValue pairs a struct field with the value stored in it.
type FieldValue struct {
	Name  string
	Value ValueID
}

type ConstructStructImm struct {
	Type   Type
	Name   string
	Fields []FieldValue
}

type ConstructEnumImm struct {
	Type    Type
	Name    string
	Variant string
	Args    []ValueID
	Tag     uint32
}

type GetEnumTagImm struct {
	Value ValueID
}

type ExtractEnumDataImm struct {
	Type  Type
	Value ValueID
	Index uint32
}

// PhiEdge is one incoming value of a phi.
type PhiEdge struct {
	Value ValueID
	Block BlockID
}

type PhiImm struct {
	Type     Type
	Incoming []PhiEdge
}

type ReturnImm struct {
	Value    ValueID
	HasValue bool
}

type BranchImm struct {
	Target BlockID
}

type CondBranchImm struct {
	Cond       ValueID
	Then, Else BlockID
}

// AwaitImm is the suspend instruction: Future is awaited and the instruction
// yields a value of Type once it is ready.
type AwaitImm struct {
	Type   Type
	Future ValueID
}

type PollFutureImm struct {
	Type          Type
	Future, Waker ValueID
}

type CreateAsyncStateImm struct {
	Output       Type
	InitialState uint32
	Size         uint32
	PollFn       FunctionID
}

type StoreAsyncStateImm struct {
	State  ValueID
	Value  ValueID
	Offset uint32
}

type LoadAsyncStateImm struct {
	Type   Type
	State  ValueID
	Offset uint32
}

type GetAsyncStateImm struct {
	State ValueID
}

type SetAsyncStateImm struct {
	State ValueID
	Value uint32
}

// Operands returns the values read by an immediate, in a fixed order.
func Operands(imm any) []ValueID {
	switch x := imm.(type) {
	case BinaryImm:
		return []ValueID{x.LHS, x.RHS}
	case UnaryImm:
		return []ValueID{x.Operand}
	case CompareImm:
		return []ValueID{x.LHS, x.RHS}
	case CastImm:
		return []ValueID{x.Value}
	case CallImm:
		return slices.Clone(x.Args)
	case LoadImm:
		return []ValueID{x.Ptr}
	case StoreImm:
		return []ValueID{x.Ptr, x.Value}
	case LoadFieldImm:
		return []ValueID{x.Object}
	case StoreFieldImm:
		return []ValueID{x.Object, x.Value}
	case ConstructStructImm:
		out := make([]ValueID, len(x.Fields))
		for i, f := range x.Fields {
			out[i] = f.Value
		}
		return out
	case ConstructEnumImm:
		return slices.Clone(x.Args)
	case GetEnumTagImm:
		return []ValueID{x.Value}
	case ExtractEnumDataImm:
		return []ValueID{x.Value}
	case PhiImm:
		out := make([]ValueID, len(x.Incoming))
		for i, e := range x.Incoming {
			out[i] = e.Value
		}
		return out
	case ReturnImm:
		if x.HasValue {
			return []ValueID{x.Value}
		}
	case CondBranchImm:
		return []ValueID{x.Cond}
	case AwaitImm:
		return []ValueID{x.Future}
	case PollFutureImm:
		return []ValueID{x.Future, x.Waker}
	case StoreAsyncStateImm:
		return []ValueID{x.State, x.Value}
	case LoadAsyncStateImm:
		return []ValueID{x.State}
	case GetAsyncStateImm:
		return []ValueID{x.State}
	case SetAsyncStateImm:
		return []ValueID{x.State}
	}
	return nil
}

// MapOperands returns a copy of imm with every operand replaced by f(operand).
// Slices are copied, so the original immediate is left untouched.
func MapOperands(imm any, f func(ValueID) ValueID) any {
	switch x := imm.(type) {
	case BinaryImm:
		x.LHS, x.RHS = f(x.LHS), f(x.RHS)
		return x
	case UnaryImm:
		x.Operand = f(x.Operand)
		return x
	case CompareImm:
		x.LHS, x.RHS = f(x.LHS), f(x.RHS)
		return x
	case CastImm:
		x.Value = f(x.Value)
		return x
	case CallImm:
		x.Args = mapValues(x.Args, f)
		return x
	case LoadImm:
		x.Ptr = f(x.Ptr)
		return x
	case StoreImm:
		x.Ptr, x.Value = f(x.Ptr), f(x.Value)
		return x
	case LoadFieldImm:
		x.Object = f(x.Object)
		return x
	case StoreFieldImm:
		x.Object, x.Value = f(x.Object), f(x.Value)
		return x
	case ConstructStructImm:
		fields := make([]FieldValue, len(x.Fields))
		for i, fv := range x.Fields {
			fields[i] = FieldValue{Name: fv.Name, Value: f(fv.Value)}
		}
		x.Fields = fields
		return x
	case ConstructEnumImm:
		x.Args = mapValues(x.Args, f)
		return x
	case GetEnumTagImm:
		x.Value = f(x.Value)
		return x
	case ExtractEnumDataImm:
		x.Value = f(x.Value)
		return x
	case PhiImm:
		edges := make([]PhiEdge, len(x.Incoming))
		for i, e := range x.Incoming {
			edges[i] = PhiEdge{Value: f(e.Value), Block: e.Block}
		}
		x.Incoming = edges
		return x
	case ReturnImm:
		if x.HasValue {
			x.Value = f(x.Value)
		}
		return x
	case CondBranchImm:
		x.Cond = f(x.Cond)
		return x
	case AwaitImm:
		x.Future = f(x.Future)
		return x
	case PollFutureImm:
		x.Future, x.Waker = f(x.Future), f(x.Waker)
		return x
	case StoreAsyncStateImm:
		x.State, x.Value = f(x.State), f(x.Value)
		return x
	case LoadAsyncStateImm:
		x.State = f(x.State)
		return x
	case GetAsyncStateImm:
		x.State = f(x.State)
		return x
	case SetAsyncStateImm:
		x.State = f(x.State)
		return x
	}
	return imm
}

// MapBlocks returns a copy of imm with every block reference replaced by f(block).
func MapBlocks(imm any, f func(BlockID) BlockID) any {
	switch x := imm.(type) {
	case BranchImm:
		x.Target = f(x.Target)
		return x
	case CondBranchImm:
		x.Then, x.Else = f(x.Then), f(x.Else)
		return x
	case PhiImm:
		edges := make([]PhiEdge, len(x.Incoming))
		for i, e := range x.Incoming {
			edges[i] = PhiEdge{Value: e.Value, Block: f(e.Block)}
		}
		x.Incoming = edges
		return x
	}
	return imm
}

// Targets returns the blocks a terminator may transfer control to.
func Targets(imm any) []BlockID {
	switch x := imm.(type) {
	case BranchImm:
		return []BlockID{x.Target}
	case CondBranchImm:
		return []BlockID{x.Then, x.Else}
	}
	return nil
}

// ResultType returns the type of the value an instruction defines.
func ResultType(instr Instruction) Type {
	switch x := instr.Imm.(type) {
	case ConstImm:
		return x.Value.Type
	case BinaryImm:
		return x.Type
	case UnaryImm:
		return x.Type
	case CompareImm:
		return Bool
	case CastImm:
		return x.To
	case CallImm:
		return x.Type
	case AllocImm:
		return Ptr(x.Type)
	case LoadImm:
		return x.Type
	case LoadFieldImm:
		return x.Type
	case ConstructStructImm:
		return x.Type
	case ConstructEnumImm:
		return x.Type
	case GetEnumTagImm:
		return U32
	case ExtractEnumDataImm:
		return x.Type
	case PhiImm:
		return x.Type
	case AwaitImm:
		return x.Type
	case PollFutureImm:
		return PollType(x.Type)
	case CreateAsyncStateImm:
		return Ptr(Named("AsyncState"))
	case LoadAsyncStateImm:
		return x.Type
	case GetAsyncStateImm:
		return U32
	}
	return Void
}

func mapValues(vs []ValueID, f func(ValueID) ValueID) []ValueID {
	out := make([]ValueID, len(vs))
	for i, v := range vs {
		out[i] = f(v)
	}
	return out
}
