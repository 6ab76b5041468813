package irfile

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
	"gopkg.in/yaml.v3"
)

// Encode writes a module in the program file format. Lowered modules
// round-trip: Parse(Encode(m)) rebuilds the same functions with values
// renumbered in block order.
func Encode(m *ir.Module) ([]byte, error) {
	f, err := FromModule(m)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInternal, err, "encode program")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInternal, err, "encode program")
	}
	return buf.Bytes(), nil
}

// FromModule converts a module into its document form.
func FromModule(m *ir.Module) (*File, error) {
	f := &File{Module: m.Name}
	for _, fn := range m.Functions() {
		if fn.External {
			f.Externals = append(f.Externals, External{
				Name:    fn.Name,
				Params:  fromParams(fn.Params),
				Returns: fn.Return.String(),
			})
			continue
		}
		fd, err := fromFunction(m, fn)
		if err != nil {
			return nil, err
		}
		f.Functions = append(f.Functions, fd)
	}
	return f, nil
}

func fromParams(ps []ir.Param) []Param {
	out := make([]Param, len(ps))
	for i, p := range ps {
		out[i] = Param{Name: p.Name, Type: p.Type.String()}
	}
	return out
}

type namer struct {
	values map[ir.ValueID]string
	blocks map[ir.BlockID]string
}

func (n *namer) v(id ir.ValueID) string {
	if s, ok := n.values[id]; ok {
		return s
	}
	return id.String()
}

func (n *namer) vs(ids []ir.ValueID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = n.v(id)
	}
	return out
}

func fromFunction(m *ir.Module, fn *ir.Function) (Function, error) {
	fd := Function{
		Name:    fn.Name,
		Params:  fromParams(fn.Params),
		Returns: fn.Return.String(),
		Async:   fn.Async,
	}
	n := &namer{values: make(map[ir.ValueID]string), blocks: make(map[ir.BlockID]string)}

	taken := make(map[string]bool)
	for i := range fd.Params {
		name := fd.Params[i].Name
		if name == "" || taken[name] || strings.HasPrefix(name, "%") {
			name = fn.ParamValue(i).String()
			fd.Params[i].Name = name
		}
		taken[name] = true
		n.values[fn.ParamValue(i)] = name
	}

	used := make(map[string]int)
	for _, b := range fn.Blocks {
		name := b.Name
		if name == "" {
			name = b.ID.String()
		}
		if k := used[name]; k > 0 {
			used[name] = k + 1
			name = fmt.Sprintf("%s.%d", name, k)
		} else {
			used[name] = 1
		}
		n.blocks[b.ID] = name
	}

	for _, b := range fn.Blocks {
		blk := Block{Name: n.blocks[b.ID]}
		for i, in := range b.Instrs {
			doc, err := fromInstr(m, n, in)
			if err != nil {
				return Function{}, errors.Load([]string{fn.Name, blk.Name, strconv.Itoa(i)}, "encode instruction", err)
			}
			blk.Instrs = append(blk.Instrs, doc)
		}
		fd.Blocks = append(fd.Blocks, blk)
	}
	return fd, nil
}

func constText(c ir.Constant) string {
	switch v := c.Value.(type) {
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return strconv.Quote(v)
	}
	return ""
}

func fromInstr(m *ir.Module, n *namer, in ir.Instruction) (Instr, error) {
	d := Instr{Op: in.Op.String()}
	if in.HasResult() {
		d.Let = in.Result.String()
	}
	fnName := func(id ir.FunctionID) (string, error) {
		f := m.Function(id)
		if f == nil {
			return "", fmt.Errorf("unknown function %s", id)
		}
		return f.Name, nil
	}

	switch x := in.Imm.(type) {
	case ir.ConstImm:
		d.Type = x.Value.Type.String()
		d.Value = constText(x.Value)
	case ir.BinaryImm:
		d.Kind, d.Type, d.Args = x.Op.String(), x.Type.String(), n.vs([]ir.ValueID{x.LHS, x.RHS})
	case ir.UnaryImm:
		d.Kind, d.Type, d.Args = x.Op.String(), x.Type.String(), n.vs([]ir.ValueID{x.Operand})
	case ir.CompareImm:
		d.Kind, d.Args = x.Op.String(), n.vs([]ir.ValueID{x.LHS, x.RHS})
	case ir.CastImm:
		d.Type, d.Args = x.To.String(), n.vs([]ir.ValueID{x.Value})
	case ir.CallImm:
		name, err := fnName(x.Func)
		if err != nil {
			return d, err
		}
		d.Func, d.Type, d.Args = name, x.Type.String(), n.vs(x.Args)
	case ir.AllocImm:
		d.Type = x.Type.String()
	case ir.LoadImm:
		d.Type, d.Args = x.Type.String(), n.vs([]ir.ValueID{x.Ptr})
	case ir.StoreImm:
		d.Args = n.vs([]ir.ValueID{x.Ptr, x.Value})
	case ir.LoadFieldImm:
		d.Field, d.Type, d.Args = x.Field, x.Type.String(), n.vs([]ir.ValueID{x.Object})
	case ir.StoreFieldImm:
		d.Field, d.Args = x.Field, n.vs([]ir.ValueID{x.Object, x.Value})
	case ir.ConstructStructImm:
		d.Name, d.Type = x.Name, x.Type.String()
		for _, fv := range x.Fields {
			d.Fields = append(d.Fields, FieldRef{Name: fv.Name, Value: n.v(fv.Value)})
		}
	case ir.ConstructEnumImm:
		d.Name, d.Variant, d.Tag, d.Type = x.Name, x.Variant, x.Tag, x.Type.String()
		d.Args = n.vs(x.Args)
	case ir.GetEnumTagImm:
		d.Args = n.vs([]ir.ValueID{x.Value})
	case ir.ExtractEnumDataImm:
		d.Index, d.Type, d.Args = x.Index, x.Type.String(), n.vs([]ir.ValueID{x.Value})
	case ir.PhiImm:
		d.Type = x.Type.String()
		for _, e := range x.Incoming {
			d.Incoming = append(d.Incoming, PhiRef{Value: n.v(e.Value), Block: n.blocks[e.Block]})
		}
	case ir.ReturnImm:
		if x.HasValue {
			d.Args = n.vs([]ir.ValueID{x.Value})
		}
	case ir.BranchImm:
		d.Target = n.blocks[x.Target]
	case ir.CondBranchImm:
		d.Args, d.Then, d.Else = n.vs([]ir.ValueID{x.Cond}), n.blocks[x.Then], n.blocks[x.Else]
	case ir.AwaitImm:
		d.Type, d.Args = x.Type.String(), n.vs([]ir.ValueID{x.Future})
	case ir.PollFutureImm:
		d.Type, d.Args = x.Type.String(), n.vs([]ir.ValueID{x.Future, x.Waker})
	case ir.CreateAsyncStateImm:
		name, err := fnName(x.PollFn)
		if err != nil {
			return d, err
		}
		d.State, d.Size, d.Type, d.Func = x.InitialState, x.Size, x.Output.String(), name
	case ir.StoreAsyncStateImm:
		d.Offset, d.Args = x.Offset, n.vs([]ir.ValueID{x.State, x.Value})
	case ir.LoadAsyncStateImm:
		d.Offset, d.Type, d.Args = x.Offset, x.Type.String(), n.vs([]ir.ValueID{x.State})
	case ir.GetAsyncStateImm:
		d.Args = n.vs([]ir.ValueID{x.State})
	case ir.SetAsyncStateImm:
		d.State, d.Args = x.Value, n.vs([]ir.ValueID{x.State})
	default:
		return d, fmt.Errorf("no file form for %s", in.Op)
	}
	return d, nil
}
