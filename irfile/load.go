// Package irfile reads and writes IR modules as YAML program files.
package irfile

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
	"gopkg.in/yaml.v3"
)

// Load reads a program file.
func Load(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load([]string{path}, "reading program", err)
	}
	return Parse(data, path)
}

// Parse decodes a program. Unknown keys are rejected. The name is used only
// for error messages.
func Parse(data []byte, name string) (*ir.Module, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.Load([]string{name}, "empty program", nil)
		}
		return nil, errors.Load([]string{name}, "parsing program", err)
	}
	return Build(&f)
}

// Build converts a decoded program into a module.
func Build(f *File) (*ir.Module, error) {
	name := f.Module
	if name == "" {
		name = "main"
	}
	m := ir.NewModule(name)

	for _, ext := range f.Externals {
		if _, err := m.DeclareExternal(ext.Name, params(ext.Params), returnType(ext.Returns)); err != nil {
			return nil, errors.Load([]string{ext.Name}, "declare external", err)
		}
	}
	fns := make([]*ir.Function, len(f.Functions))
	for i, fd := range f.Functions {
		fn, err := m.CreateFunction(fd.Name, params(fd.Params), returnType(fd.Returns), fd.Async)
		if err != nil {
			return nil, errors.Load([]string{fd.Name}, "declare function", err)
		}
		fns[i] = fn
	}
	for i := range f.Functions {
		if err := buildBody(m, fns[i], &f.Functions[i]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func params(ps []Param) []ir.Param {
	out := make([]ir.Param, len(ps))
	for i, p := range ps {
		out[i] = ir.Param{Name: p.Name, Type: ir.ParseType(p.Type)}
	}
	return out
}

func returnType(s string) ir.Type {
	if strings.TrimSpace(s) == "" {
		return ir.Void
	}
	return ir.ParseType(s)
}

// body builds one function. Value ids are assigned up front, in the order
// the builder will hand them out, so operands may refer forward.
type body struct {
	m      *ir.Module
	fn     *ir.Function
	b      *ir.Builder
	values map[string]ir.ValueID
	blocks map[string]ir.BlockID
	path   []string
	count  int
}

func buildBody(m *ir.Module, fn *ir.Function, fd *Function) error {
	if len(fd.Blocks) == 0 {
		return errors.Load([]string{fd.Name}, "function has no blocks", nil)
	}
	bd := &body{
		m:      m,
		fn:     fn,
		b:      ir.NewBuilder(m),
		values: make(map[string]ir.ValueID),
		blocks: make(map[string]ir.BlockID),
	}
	for i, p := range fd.Params {
		if _, dup := bd.values[p.Name]; dup {
			return errors.Load([]string{fd.Name, p.Name}, "duplicate parameter", nil)
		}
		bd.values[p.Name] = fn.ParamValue(i)
	}

	next := ir.ValueID(len(fd.Params))
	for _, blk := range fd.Blocks {
		for i, in := range blk.Instrs {
			path := []string{fd.Name, blk.Name, strconv.Itoa(i)}
			op, ok := ir.ParseOp(in.Op)
			if !ok {
				return errors.Load(path, fmt.Sprintf("unknown op %q", in.Op), nil)
			}
			if !op.ProducesValue() {
				if in.Let != "" {
					return errors.Load(path, fmt.Sprintf("%s defines no value to bind to %q", op, in.Let), nil)
				}
				continue
			}
			if in.Let != "" {
				if _, dup := bd.values[in.Let]; dup {
					return errors.Load(path, fmt.Sprintf("%q is already defined", in.Let), nil)
				}
				bd.values[in.Let] = next
			}
			next++
		}
	}
	bd.count = int(next)

	if err := bd.b.SetFunction(fn.ID); err != nil {
		return errors.Load([]string{fd.Name}, "select function", err)
	}
	for _, blk := range fd.Blocks {
		if _, dup := bd.blocks[blk.Name]; dup {
			return errors.Load([]string{fd.Name, blk.Name}, "duplicate block", nil)
		}
		id, err := bd.b.CreateBlock(blk.Name)
		if err != nil {
			return errors.Load([]string{fd.Name, blk.Name}, "create block", err)
		}
		bd.blocks[blk.Name] = id
	}

	expect := ir.ValueID(len(fd.Params))
	for _, blk := range fd.Blocks {
		if err := bd.b.SetBlock(bd.blocks[blk.Name]); err != nil {
			return errors.Load([]string{fd.Name, blk.Name}, "select block", err)
		}
		for i, in := range blk.Instrs {
			bd.path = []string{fd.Name, blk.Name, strconv.Itoa(i)}
			v, err := bd.emit(in)
			if err != nil {
				return err
			}
			if v != ir.NoValue {
				if v != expect {
					return errors.Internal(errors.PhaseLoad, bd.path,
						fmt.Sprintf("builder numbered %s, expected %s", v, expect), nil)
				}
				expect++
			}
		}
	}
	return nil
}

func (bd *body) fail(detail string, cause error) error {
	return errors.Load(bd.path, detail, cause)
}

func (bd *body) ref(s string) (ir.ValueID, error) {
	if v, ok := bd.values[s]; ok {
		return v, nil
	}
	if strings.HasPrefix(s, "%") {
		n, err := strconv.ParseUint(s[1:], 10, 32)
		if err == nil && int(n) < bd.count {
			return ir.ValueID(n), nil
		}
	}
	return 0, bd.fail(fmt.Sprintf("undefined value %q", s), nil)
}

func (bd *body) block(s string) (ir.BlockID, error) {
	id, ok := bd.blocks[s]
	if !ok {
		return 0, bd.fail(fmt.Sprintf("undefined block %q", s), nil)
	}
	return id, nil
}

func (bd *body) args(in Instr, n int) ([]ir.ValueID, error) {
	if n >= 0 && len(in.Args) != n {
		return nil, bd.fail(fmt.Sprintf("%s takes %d operands, got %d", in.Op, n, len(in.Args)), nil)
	}
	out := make([]ir.ValueID, len(in.Args))
	for i, a := range in.Args {
		v, err := bd.ref(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (bd *body) function(name string) (*ir.Function, error) {
	fn := bd.m.FunctionByName(name)
	if fn == nil {
		return nil, bd.fail(fmt.Sprintf("undefined function %q", name), nil)
	}
	return fn, nil
}

func orNamed(t, name string) ir.Type {
	if t == "" {
		return ir.Named(name)
	}
	return ir.ParseType(t)
}

// operandCount is the number of args each op takes; -1 means variadic.
var operandCount = map[ir.Op]int{
	ir.OpConst: 0, ir.OpBinary: 2, ir.OpUnary: 1, ir.OpCompare: 2, ir.OpCast: 1,
	ir.OpCall: -1, ir.OpAlloc: 0, ir.OpLoad: 1, ir.OpStore: 2, ir.OpLoadField: 1,
	ir.OpStoreField: 2, ir.OpConstructStruct: 0, ir.OpConstructEnum: -1,
	ir.OpGetEnumTag: 1, ir.OpExtractEnumData: 1, ir.OpPhi: 0, ir.OpReturn: -1,
	ir.OpBranch: 0, ir.OpCondBranch: 1, ir.OpAwait: 1, ir.OpPollFuture: 2,
	ir.OpCreateAsyncState: 0, ir.OpStoreAsyncState: 2, ir.OpLoadAsyncState: 1,
	ir.OpGetAsyncState: 1, ir.OpSetAsyncState: 1,
}

// emit appends one instruction and returns the value it defines, or
// ir.NoValue.
func (bd *body) emit(in Instr) (ir.ValueID, error) {
	op, _ := ir.ParseOp(in.Op)
	a, err := bd.args(in, operandCount[op])
	if err != nil {
		return ir.NoValue, err
	}
	t := ir.ParseType(in.Type)
	b := bd.b

	value := func(v ir.ValueID, err error) (ir.ValueID, error) {
		if err != nil {
			return ir.NoValue, bd.fail("emit "+in.Op, err)
		}
		return v, nil
	}
	effect := func(err error) (ir.ValueID, error) {
		if err != nil {
			return ir.NoValue, bd.fail("emit "+in.Op, err)
		}
		return ir.NoValue, nil
	}

	switch op {
	case ir.OpConst:
		c, err := ir.ParseConstant(t, in.Value)
		if err != nil {
			return ir.NoValue, bd.fail("bad constant", err)
		}
		return value(b.Const(c))
	case ir.OpBinary:
		k, ok := ir.ParseBinaryOp(in.Kind)
		if !ok {
			return ir.NoValue, bd.fail(fmt.Sprintf("unknown binary operator %q", in.Kind), nil)
		}
		return value(b.Binary(k, a[0], a[1], t))
	case ir.OpUnary:
		k, ok := ir.ParseUnaryOp(in.Kind)
		if !ok {
			return ir.NoValue, bd.fail(fmt.Sprintf("unknown unary operator %q", in.Kind), nil)
		}
		return value(b.Unary(k, a[0], t))
	case ir.OpCompare:
		k, ok := ir.ParseCompareOp(in.Kind)
		if !ok {
			return ir.NoValue, bd.fail(fmt.Sprintf("unknown comparison %q", in.Kind), nil)
		}
		return value(b.Compare(k, a[0], a[1]))
	case ir.OpCast:
		return value(b.Cast(a[0], t))
	case ir.OpCall:
		callee, err := bd.function(in.Func)
		if err != nil {
			return ir.NoValue, err
		}
		if in.Type == "" {
			t = callee.Return
		}
		return value(b.Call(callee.ID, a, t))
	case ir.OpAlloc:
		return value(b.Alloc(t))
	case ir.OpLoad:
		return value(b.Load(a[0], t))
	case ir.OpStore:
		return effect(b.Store(a[0], a[1]))
	case ir.OpLoadField:
		return value(b.LoadField(a[0], in.Field, t))
	case ir.OpStoreField:
		return effect(b.StoreField(a[0], in.Field, a[1]))
	case ir.OpConstructStruct:
		fields := make([]ir.FieldValue, len(in.Fields))
		for i, fr := range in.Fields {
			v, err := bd.ref(fr.Value)
			if err != nil {
				return ir.NoValue, err
			}
			fields[i] = ir.FieldValue{Name: fr.Name, Value: v}
		}
		return value(b.ConstructStruct(in.Name, fields, orNamed(in.Type, in.Name)))
	case ir.OpConstructEnum:
		return value(b.ConstructEnum(in.Name, in.Variant, in.Tag, a, orNamed(in.Type, in.Name)))
	case ir.OpGetEnumTag:
		return value(b.GetEnumTag(a[0]))
	case ir.OpExtractEnumData:
		return value(b.ExtractEnumData(a[0], in.Index, t))
	case ir.OpPhi:
		edges := make([]ir.PhiEdge, len(in.Incoming))
		for i, pr := range in.Incoming {
			v, err := bd.ref(pr.Value)
			if err != nil {
				return ir.NoValue, err
			}
			blk, err := bd.block(pr.Block)
			if err != nil {
				return ir.NoValue, err
			}
			edges[i] = ir.PhiEdge{Value: v, Block: blk}
		}
		return value(b.Phi(t, edges))
	case ir.OpReturn:
		switch len(a) {
		case 0:
			return effect(b.ReturnVoid())
		case 1:
			return effect(b.Return(a[0]))
		}
		return ir.NoValue, bd.fail(fmt.Sprintf("return takes at most 1 operand, got %d", len(a)), nil)
	case ir.OpBranch:
		target, err := bd.block(in.Target)
		if err != nil {
			return ir.NoValue, err
		}
		return effect(b.Branch(target))
	case ir.OpCondBranch:
		then, err := bd.block(in.Then)
		if err != nil {
			return ir.NoValue, err
		}
		els, err := bd.block(in.Else)
		if err != nil {
			return ir.NoValue, err
		}
		return effect(b.CondBranch(a[0], then, els))
	case ir.OpAwait:
		return value(b.Await(a[0], t))
	case ir.OpPollFuture:
		return value(b.PollFuture(a[0], a[1], t))
	case ir.OpCreateAsyncState:
		pollFn, err := bd.function(in.Func)
		if err != nil {
			return ir.NoValue, err
		}
		return value(b.CreateAsyncState(in.State, in.Size, t, pollFn.ID))
	case ir.OpStoreAsyncState:
		return effect(b.StoreAsyncState(a[0], in.Offset, a[1]))
	case ir.OpLoadAsyncState:
		return value(b.LoadAsyncState(a[0], in.Offset, t))
	case ir.OpGetAsyncState:
		return value(b.GetAsyncState(a[0]))
	case ir.OpSetAsyncState:
		return effect(b.SetAsyncState(a[0], in.State))
	}
	return ir.NoValue, bd.fail(fmt.Sprintf("op %s cannot be written in a program file", op), nil)
}
