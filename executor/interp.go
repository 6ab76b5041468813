package executor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
	"go.uber.org/zap"
)

// HostFunc implements an external function. Async host functions return a
// Future.
type HostFunc func(args []any) (any, error)

// DefaultMaxSteps bounds the instructions one top-level call may execute.
const DefaultMaxSteps = 1_000_000

// Interpreter evaluates IR functions. The module must not be mutated while
// an interpreter is using it.
type Interpreter struct {
	m        *ir.Module
	hosts    map[string]HostFunc
	log      *zap.Logger
	types    map[ir.FunctionID][]ir.Type
	mu       sync.Mutex
	maxSteps int
}

// NewInterpreter returns an interpreter for m.
func NewInterpreter(m *ir.Module, hosts map[string]HostFunc, log *zap.Logger, maxSteps int) *Interpreter {
	if log == nil {
		log = zap.NewNop()
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	h := make(map[string]HostFunc, len(hosts))
	for name, f := range hosts {
		h[name] = f
	}
	return &Interpreter{m: m, hosts: h, log: log, types: make(map[ir.FunctionID][]ir.Type), maxSteps: maxSteps}
}

// Module returns the interpreted module.
func (in *Interpreter) Module() *ir.Module { return in.m }

// run tracks one top-level call or poll.
type run struct {
	steps int
	// pending counts poll_future instructions that found their future not
	// ready. Such futures hold the waker.
	pending int
	// yielded is set when a poll function returned Pending without polling
	// anything, which happens right after it saved a new future. Nothing
	// holds the waker then, so the caller must poll again.
	yielded bool
}

// Call runs fn with args and returns its result.
func (in *Interpreter) Call(ctx context.Context, fn *ir.Function, args []any) (any, error) {
	return in.call(ctx, fn, args, &run{steps: in.maxSteps})
}

// Poll polls f once with waker w. Records are driven through their poll
// function; anything else must implement Future. When ready is false and
// yielded is true no future holds w, and f should be polled again without
// waiting for a wake-up.
func (in *Interpreter) Poll(ctx context.Context, f any, w Waker) (v any, ready, yielded bool, err error) {
	r := &run{steps: in.maxSteps}
	v, ready, err = in.poll(ctx, f, w, r)
	return v, ready, r.yielded, err
}

func (in *Interpreter) poll(ctx context.Context, f any, w Waker, r *run) (any, bool, error) {
	switch x := f.(type) {
	case *Record:
		pollFn := in.m.Function(x.PollFn)
		if pollFn == nil {
			return nil, false, errors.NotFound(errors.PhaseRuntime, "poll function", x.PollFn.String())
		}
		before := r.pending
		res, err := in.call(ctx, pollFn, []any{x, w}, r)
		if err != nil {
			return nil, false, err
		}
		e, ok := IsPoll(res)
		if !ok {
			return nil, false, errors.TypeMismatch(errors.PhaseRuntime, []string{pollFn.Name}, ir.PollEnum, res)
		}
		switch e.Tag {
		case ir.PollReady:
			if len(e.Args) > 0 {
				return e.Args[0], true, nil
			}
			return nil, true, nil
		case ir.PollPending:
			if r.pending == before {
				r.yielded = true
			}
			return nil, false, nil
		}
		state, _ := x.State()
		return nil, false, errors.InvalidState([]string{pollFn.Name}, fmt.Sprintf("polled in state %d", state))
	case Future:
		v, ok := x.Poll(w)
		return v, ok, nil
	}
	return nil, false, errors.TypeMismatch(errors.PhaseRuntime, []string{"poll"}, "future", f)
}

// valueTypes returns the type of every value of fn, indexed by value id.
func (in *Interpreter) valueTypes(fn *ir.Function) []ir.Type {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.types[fn.ID]; ok && len(t) == fn.NumValues() {
		return t
	}
	t := make([]ir.Type, fn.NumValues())
	for i, p := range fn.Params {
		t[i] = p.Type
	}
	fn.Walk(func(_ *ir.BasicBlock, _ int, instr ir.Instruction) bool {
		if instr.HasResult() && int(instr.Result) < len(t) {
			t[instr.Result] = ir.ResultType(instr)
		}
		return true
	})
	in.types[fn.ID] = t
	return t
}

// frame is one activation of a function.
type frame struct {
	fn    *ir.Function
	types []ir.Type
	vals  []any
	set   []bool
}

func (f *frame) get(v ir.ValueID) (any, error) {
	if int(v) >= len(f.vals) || !f.set[v] {
		return nil, errors.Internal(errors.PhaseRuntime, []string{f.fn.Name, v.String()}, "use of undefined value", nil)
	}
	return f.vals[v], nil
}

func (f *frame) put(v ir.ValueID, x any) {
	if int(v) < len(f.vals) {
		f.vals[v] = x
		f.set[v] = true
	}
}

func (f *frame) typeOf(v ir.ValueID) ir.Type {
	if int(v) < len(f.types) {
		return f.types[v]
	}
	return ir.Unknown
}

func (in *Interpreter) call(ctx context.Context, fn *ir.Function, args []any, r *run) (any, error) {
	if len(args) != len(fn.Params) {
		return nil, errors.InvalidInput(errors.PhaseRuntime, []string{fn.Name},
			fmt.Sprintf("got %d arguments, want %d", len(args), len(fn.Params)))
	}
	if fn.External {
		h, ok := in.hosts[fn.Name]
		if !ok {
			return nil, errors.NotFound(errors.PhaseRuntime, "host function", fn.Name)
		}
		res, err := h(args)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInternal, err, "host function "+fn.Name)
		}
		return res, nil
	}
	blk := fn.Entry()
	if blk == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, []string{fn.Name}, "function has no body")
	}

	n := fn.NumValues()
	f := &frame{fn: fn, types: in.valueTypes(fn), vals: make([]any, n), set: make([]bool, n)}
	for i, a := range args {
		f.put(ir.ValueID(i), a)
	}

	var prev ir.BlockID
	hasPrev := false
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next ir.BlockID
		jumped := false
		for _, instr := range blk.Instrs {
			r.steps--
			if r.steps < 0 {
				return nil, errors.New(errors.PhaseRuntime, errors.KindOverflow).
					Path(fn.Name).Detail("instruction budget exhausted").Build()
			}
			switch instr.Op {
			case ir.OpReturn:
				ret := instr.Imm.(ir.ReturnImm)
				if !ret.HasValue {
					return nil, nil
				}
				return f.get(ret.Value)
			case ir.OpBranch:
				next, jumped = instr.Imm.(ir.BranchImm).Target, true
			case ir.OpCondBranch:
				cb := instr.Imm.(ir.CondBranchImm)
				c, err := f.get(cb.Cond)
				if err != nil {
					return nil, err
				}
				b, ok := c.(bool)
				if !ok {
					return nil, errors.TypeMismatch(errors.PhaseRuntime, []string{fn.Name, blk.Name}, "bool", c)
				}
				next, jumped = cb.Else, true
				if b {
					next = cb.Then
				}
			case ir.OpPhi:
				if err := in.phi(f, instr, prev, hasPrev); err != nil {
					return nil, err
				}
			default:
				v, err := in.exec(ctx, f, instr, r)
				if err != nil {
					return nil, err
				}
				if instr.HasResult() {
					f.put(instr.Result, v)
				}
			}
			if jumped {
				break
			}
		}
		if !jumped {
			return nil, errors.InvalidInput(errors.PhaseRuntime, []string{fn.Name, blk.Name}, "block has no terminator")
		}
		prev, hasPrev = blk.ID, true
		blk = fn.Block(next)
		if blk == nil {
			return nil, errors.NotFound(errors.PhaseRuntime, "block", next.String())
		}
	}
}

func (in *Interpreter) phi(f *frame, instr ir.Instruction, prev ir.BlockID, hasPrev bool) error {
	p := instr.Imm.(ir.PhiImm)
	if hasPrev {
		for _, e := range p.Incoming {
			if e.Block == prev {
				v, err := f.get(e.Value)
				if err != nil {
					return err
				}
				f.put(instr.Result, v)
				return nil
			}
		}
	}
	return errors.Internal(errors.PhaseRuntime, []string{f.fn.Name, instr.Result.String()},
		fmt.Sprintf("phi has no edge from %s", prev), nil)
}

func (in *Interpreter) exec(ctx context.Context, f *frame, instr ir.Instruction, r *run) (any, error) {
	path := []string{f.fn.Name, instr.Op.String()}
	ops := ir.Operands(instr.Imm)
	args := make([]any, len(ops))
	for i, o := range ops {
		v, err := f.get(o)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch x := instr.Imm.(type) {
	case ir.ConstImm:
		return x.Value.Value, nil
	case ir.BinaryImm:
		return evalBinary(path, x.Op, x.Type, args[0], args[1])
	case ir.UnaryImm:
		return unary(path, x.Op, x.Type, args[0])
	case ir.CompareImm:
		return compare(path, x.Op, f.typeOf(x.LHS), args[0], args[1])
	case ir.CastImm:
		return cast(x.To, args[0]), nil
	case ir.CallImm:
		callee := in.m.Function(x.Func)
		if callee == nil {
			return nil, errors.NotFound(errors.PhaseRuntime, "function", x.Func.String())
		}
		return in.call(ctx, callee, args, r)
	case ir.AllocImm:
		return &Cell{Type: x.Type, Value: zeroValue(x.Type)}, nil
	case ir.LoadImm:
		c, ok := args[0].(*Cell)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, path, "pointer", args[0])
		}
		return c.Value, nil
	case ir.StoreImm:
		c, ok := args[0].(*Cell)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, path, "pointer", args[0])
		}
		c.Value = args[1]
		return nil, nil
	case ir.LoadFieldImm:
		s, err := structOf(path, args[0])
		if err != nil {
			return nil, err
		}
		v, ok := s.Fields[x.Field]
		if !ok {
			return nil, errors.NotFound(errors.PhaseRuntime, "field", x.Field)
		}
		return v, nil
	case ir.StoreFieldImm:
		s, err := structOf(path, args[0])
		if err != nil {
			return nil, err
		}
		if _, ok := s.Fields[x.Field]; !ok {
			s.Order = append(s.Order, x.Field)
		}
		s.Fields[x.Field] = args[1]
		return nil, nil
	case ir.ConstructStructImm:
		s := &Struct{Name: x.Name, Fields: make(map[string]any, len(x.Fields)), Order: make([]string, 0, len(x.Fields))}
		for i, fv := range x.Fields {
			s.Fields[fv.Name] = args[i]
			s.Order = append(s.Order, fv.Name)
		}
		return s, nil
	case ir.ConstructEnumImm:
		return &Enum{Name: x.Name, Variant: x.Variant, Tag: x.Tag, Args: args}, nil
	case ir.GetEnumTagImm:
		e, ok := args[0].(*Enum)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, path, "enum", args[0])
		}
		return int64(e.Tag), nil
	case ir.ExtractEnumDataImm:
		e, ok := args[0].(*Enum)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, path, "enum", args[0])
		}
		if int(x.Index) >= len(e.Args) {
			return nil, errors.New(errors.PhaseRuntime, errors.KindOutOfBounds).Path(path...).
				Detail("%s has no payload %d", e, x.Index).Build()
		}
		return e.Args[x.Index], nil
	case ir.AwaitImm:
		return nil, errors.Unsupported(errors.PhaseRuntime, "await in "+f.fn.Name+" must be lowered before it can run")
	case ir.PollFutureImm:
		w, ok := args[1].(Waker)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, path, "waker", args[1])
		}
		v, ready, err := in.poll(ctx, args[0], w, r)
		if err != nil {
			return nil, err
		}
		if !ready {
			r.pending++
		}
		if ready {
			// The resume path always extracts payload 0, even for unit values.
			return &Enum{Name: ir.PollEnum, Variant: ir.PollReadyName, Tag: ir.PollReady, Args: []any{v}}, nil
		}
		return PollPending(), nil
	case ir.CreateAsyncStateImm:
		return NewRecord(x.Size, x.Output, x.PollFn, x.InitialState)
	case ir.StoreAsyncStateImm:
		r, err := recordOf(path, args[0])
		if err != nil {
			return nil, err
		}
		return nil, r.Store(x.Offset, f.typeOf(x.Value), args[1])
	case ir.LoadAsyncStateImm:
		r, err := recordOf(path, args[0])
		if err != nil {
			return nil, err
		}
		return r.Load(x.Offset, x.Type)
	case ir.GetAsyncStateImm:
		r, err := recordOf(path, args[0])
		if err != nil {
			return nil, err
		}
		s, err := r.State()
		return int64(s), err
	case ir.SetAsyncStateImm:
		r, err := recordOf(path, args[0])
		if err != nil {
			return nil, err
		}
		return nil, r.SetState(x.Value)
	}
	return nil, errors.Unsupported(errors.PhaseRuntime, "op "+instr.Op.String())
}

func structOf(path []string, v any) (*Struct, error) {
	if c, ok := v.(*Cell); ok {
		v = c.Value
	}
	s, ok := v.(*Struct)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseRuntime, path, "struct", v)
	}
	return s, nil
}

func recordOf(path []string, v any) (*Record, error) {
	r, ok := v.(*Record)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseRuntime, path, "async state", v)
	}
	return r, nil
}

func divideByZero(path []string) error {
	return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).Path(path...).Detail("division by zero").Build()
}

func evalBinary(path []string, op ir.BinaryOp, t ir.Type, a, b any) (any, error) {
	switch x := a.(type) {
	case int64:
		y, ok := b.(int64)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, path, t.String(), b)
		}
		return intBinary(path, op, t, x, y)
	case float64:
		y, ok := b.(float64)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, path, t.String(), b)
		}
		switch op {
		case ir.Add:
			return x + y, nil
		case ir.Sub:
			return x - y, nil
		case ir.Mul:
			return x * y, nil
		case ir.Div:
			return x / y, nil
		case ir.Rem:
			return math.Mod(x, y), nil
		}
	case bool:
		y, ok := b.(bool)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, path, "bool", b)
		}
		switch op {
		case ir.And:
			return x && y, nil
		case ir.Or:
			return x || y, nil
		case ir.Xor:
			return x != y, nil
		}
	case string:
		y, ok := b.(string)
		if ok && op == ir.Add {
			return x + y, nil
		}
	}
	return nil, errors.Unsupported(errors.PhaseRuntime, fmt.Sprintf("%s on %T", op, a))
}

func intBinary(path []string, op ir.BinaryOp, t ir.Type, x, y int64) (any, error) {
	unsigned := isUnsigned(t)
	var r int64
	switch op {
	case ir.Add:
		r = x + y
	case ir.Sub:
		r = x - y
	case ir.Mul:
		r = x * y
	case ir.Div, ir.Rem:
		if y == 0 {
			return nil, divideByZero(path)
		}
		switch {
		case unsigned && op == ir.Div:
			r = int64(uint64(x) / uint64(y))
		case unsigned:
			r = int64(uint64(x) % uint64(y))
		case op == ir.Div:
			r = x / y
		default:
			r = x % y
		}
	case ir.And:
		r = x & y
	case ir.Or:
		r = x | y
	case ir.Xor:
		r = x ^ y
	case ir.Shl:
		r = x << (uint64(y) & 63)
	case ir.Shr:
		if unsigned {
			r = int64(uint64(x) >> (uint64(y) & 63))
		} else {
			r = x >> (uint64(y) & 63)
		}
	default:
		return nil, errors.Unsupported(errors.PhaseRuntime, "binary op "+op.String())
	}
	return normalizeInt(t, r), nil
}

func unary(path []string, op ir.UnaryOp, t ir.Type, a any) (any, error) {
	switch x := a.(type) {
	case int64:
		if op == ir.Neg {
			return normalizeInt(t, -x), nil
		}
		return normalizeInt(t, ^x), nil
	case float64:
		if op == ir.Neg {
			return -x, nil
		}
	case bool:
		if op == ir.Not {
			return !x, nil
		}
	}
	return nil, errors.TypeMismatch(errors.PhaseRuntime, path, t.String(), a)
}

func compare(path []string, op ir.CompareOp, t ir.Type, a, b any) (any, error) {
	var c int
	switch x := a.(type) {
	case int64:
		y, ok := b.(int64)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, path, t.String(), b)
		}
		if isUnsigned(t) {
			c = cmp3(uint64(x), uint64(y))
		} else {
			c = cmp3(x, y)
		}
	case float64:
		y, ok := b.(float64)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, path, t.String(), b)
		}
		if math.IsNaN(x) || math.IsNaN(y) {
			return op == ir.Ne, nil
		}
		c = cmp3(x, y)
	case string:
		y, ok := b.(string)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseRuntime, path, "string", b)
		}
		c = strings.Compare(x, y)
	default:
		switch op {
		case ir.Eq:
			return a == b, nil
		case ir.Ne:
			return a != b, nil
		}
		return nil, errors.Unsupported(errors.PhaseRuntime, fmt.Sprintf("%s on %T", op, a))
	}
	switch op {
	case ir.Eq:
		return c == 0, nil
	case ir.Ne:
		return c != 0, nil
	case ir.Lt:
		return c < 0, nil
	case ir.Le:
		return c <= 0, nil
	case ir.Gt:
		return c > 0, nil
	}
	return c >= 0, nil
}

func cmp3[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cast(to ir.Type, v any) any {
	switch x := v.(type) {
	case int64:
		switch {
		case isInt(to):
			return normalizeInt(to, x)
		case to.Kind == ir.KindF32 || to.Kind == ir.KindF64:
			return float64(x)
		case to.Kind == ir.KindBool:
			return x != 0
		}
	case float64:
		switch {
		case isInt(to):
			return normalizeInt(to, int64(x))
		case to.Kind == ir.KindF32:
			return float64(float32(x))
		}
	case bool:
		if isInt(to) {
			if x {
				return int64(1)
			}
			return int64(0)
		}
	}
	return v
}
