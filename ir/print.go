package ir

import (
	"fmt"
	"strings"
)

func (i Instruction) String() string {
	var b strings.Builder
	if i.HasResult() {
		b.WriteString(i.Result.String())
		b.WriteString(" = ")
	}
	b.WriteString(i.Op.String())
	if s := immString(i.Imm); s != "" {
		b.WriteByte(' ')
		b.WriteString(s)
	}
	return b.String()
}

func immString(imm any) string {
	switch x := imm.(type) {
	case ConstImm:
		return x.Value.String()
	case BinaryImm:
		return fmt.Sprintf("%s %s %s, %s", x.Op, x.Type, x.LHS, x.RHS)
	case UnaryImm:
		return fmt.Sprintf("%s %s %s", x.Op, x.Type, x.Operand)
	case CompareImm:
		return fmt.Sprintf("%s %s, %s", x.Op, x.LHS, x.RHS)
	case CastImm:
		return fmt.Sprintf("%s to %s", x.Value, x.To)
	case CallImm:
		return fmt.Sprintf("%s(%s) -> %s", x.Func, joinValues(x.Args), x.Type)
	case AllocImm:
		return x.Type.String()
	case LoadImm:
		return fmt.Sprintf("%s %s", x.Type, x.Ptr)
	case StoreImm:
		return fmt.Sprintf("%s, %s", x.Ptr, x.Value)
	case LoadFieldImm:
		return fmt.Sprintf("%s %s.%s", x.Type, x.Object, x.Field)
	case StoreFieldImm:
		return fmt.Sprintf("%s.%s, %s", x.Object, x.Field, x.Value)
	case ConstructStructImm:
		parts := make([]string, len(x.Fields))
		for i, f := range x.Fields {
			parts[i] = f.Name + ": " + f.Value.String()
		}
		return fmt.Sprintf("%s { %s }", x.Name, strings.Join(parts, ", "))
	case ConstructEnumImm:
		return fmt.Sprintf("%s::%s#%d(%s) : %s", x.Name, x.Variant, x.Tag, joinValues(x.Args), x.Type)
	case GetEnumTagImm:
		return x.Value.String()
	case ExtractEnumDataImm:
		return fmt.Sprintf("%s %s[%d]", x.Type, x.Value, x.Index)
	case PhiImm:
		parts := make([]string, len(x.Incoming))
		for i, e := range x.Incoming {
			parts[i] = fmt.Sprintf("[%s, %s]", e.Value, e.Block)
		}
		return x.Type.String() + " " + strings.Join(parts, ", ")
	case ReturnImm:
		if x.HasValue {
			return x.Value.String()
		}
		return ""
	case BranchImm:
		return x.Target.String()
	case CondBranchImm:
		return fmt.Sprintf("%s, %s, %s", x.Cond, x.Then, x.Else)
	case AwaitImm:
		return fmt.Sprintf("%s %s", x.Type, x.Future)
	case PollFutureImm:
		return fmt.Sprintf("%s %s, waker %s", x.Type, x.Future, x.Waker)
	case CreateAsyncStateImm:
		return fmt.Sprintf("state %d, size %d, output %s, poll %s", x.InitialState, x.Size, x.Output, x.PollFn)
	case StoreAsyncStateImm:
		return fmt.Sprintf("%s+%d, %s", x.State, x.Offset, x.Value)
	case LoadAsyncStateImm:
		return fmt.Sprintf("%s %s+%d", x.Type, x.State, x.Offset)
	case GetAsyncStateImm:
		return x.State.String()
	case SetAsyncStateImm:
		return fmt.Sprintf("%s, %d", x.State, x.Value)
	}
	return ""
}

func joinValues(vs []ValueID) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func (b *BasicBlock) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s:\n", b.ID, b.Name)
	for _, in := range b.Instrs {
		sb.WriteString("  ")
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (f *Function) String() string {
	var sb strings.Builder
	switch {
	case f.External:
		sb.WriteString("extern ")
	case f.Async:
		sb.WriteString("async ")
	}
	fmt.Fprintf(&sb, "fn %s %s(", f.ID, f.Name)
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s %s: %s", ValueID(i), p.Name, p.Type)
	}
	fmt.Fprintf(&sb, ") -> %s", f.Return)
	if f.External {
		sb.WriteByte('\n')
		return sb.String()
	}
	sb.WriteString(" {\n")
	for _, b := range f.Blocks {
		sb.WriteString(b.String())
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (m *Module) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "module %s\n", m.Name)
	for _, f := range m.funcs {
		sb.WriteByte('\n')
		sb.WriteString(f.String())
	}
	return sb.String()
}
