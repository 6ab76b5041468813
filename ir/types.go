package ir

import "strings"

// TypeKind identifies the shape of a Type.
type TypeKind uint8

const (
	KindUnknown TypeKind = iota
	KindBool
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindF32
	KindI64
	KindU64
	KindF64
	KindString
	KindPtr
	KindArray
	KindFunction
	KindResult
	KindOption
	KindFuture
	KindTuple
	KindStruct
	KindNamed
	KindGeneric
	KindTypeVar
	KindTypeParam
	KindReference
	KindNever
)

var kindNames = [...]string{
	KindUnknown:   "unknown",
	KindBool:      "bool",
	KindI8:        "i8",
	KindU8:        "u8",
	KindI16:       "i16",
	KindU16:       "u16",
	KindI32:       "i32",
	KindU32:       "u32",
	KindF32:       "f32",
	KindI64:       "i64",
	KindU64:       "u64",
	KindF64:       "f64",
	KindString:    "string",
	KindPtr:       "ptr",
	KindArray:     "array",
	KindFunction:  "fn",
	KindResult:    "Result",
	KindOption:    "Option",
	KindFuture:    "Future",
	KindTuple:     "tuple",
	KindStruct:    "struct",
	KindNamed:     "named",
	KindGeneric:   "generic",
	KindTypeVar:   "typevar",
	KindTypeParam: "typeparam",
	KindReference: "ref",
	KindNever:     "never",
}

func (k TypeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Field is a named struct member.
type Field struct {
	Name string
	Type Type
}

// Type is a structural IR type.
//
// Elems holds the element type of arrays, options, futures, pointers and
// references, the members of tuples, the arguments of generics, the ok/err
// pair of results, and the parameters of function types followed by the
// return type.
type Type struct {
	Name   string
	Elems  []Type
	Fields []Field
	Kind   TypeKind
}

// Primitive types.
var (
	Unknown = Type{Kind: KindUnknown}
	Bool    = Type{Kind: KindBool}
	I8      = Type{Kind: KindI8}
	U8      = Type{Kind: KindU8}
	I16     = Type{Kind: KindI16}
	U16     = Type{Kind: KindU16}
	I32     = Type{Kind: KindI32}
	U32     = Type{Kind: KindU32}
	F32     = Type{Kind: KindF32}
	I64     = Type{Kind: KindI64}
	U64     = Type{Kind: KindU64}
	F64     = Type{Kind: KindF64}
	String  = Type{Kind: KindString}
	Never   = Type{Kind: KindNever}
	Void    = Type{Kind: KindTuple}
)

func Ptr(elem Type) Type       { return Type{Kind: KindPtr, Elems: []Type{elem}} }
func Array(elem Type) Type     { return Type{Kind: KindArray, Elems: []Type{elem}} }
func Option(elem Type) Type    { return Type{Kind: KindOption, Elems: []Type{elem}} }
func Future(output Type) Type  { return Type{Kind: KindFuture, Elems: []Type{output}} }
func Reference(elem Type) Type { return Type{Kind: KindReference, Elems: []Type{elem}} }
func Tuple(elems ...Type) Type { return Type{Kind: KindTuple, Elems: elems} }
func Named(name string) Type   { return Type{Kind: KindNamed, Name: name} }
func TypeVar(name string) Type { return Type{Kind: KindTypeVar, Name: name} }
func TypeParam(name string) Type {
	return Type{Kind: KindTypeParam, Name: name}
}

func Result(ok, err Type) Type {
	return Type{Kind: KindResult, Elems: []Type{ok, err}}
}

func Generic(name string, args ...Type) Type {
	return Type{Kind: KindGeneric, Name: name, Elems: args}
}

func Struct(name string, fields ...Field) Type {
	return Type{Kind: KindStruct, Name: name, Fields: fields}
}

func Func(params []Type, ret Type) Type {
	elems := make([]Type, 0, len(params)+1)
	elems = append(elems, params...)
	elems = append(elems, ret)
	return Type{Kind: KindFunction, Elems: elems}
}

// PollType is the return type of a poll function whose async body returns output.
func PollType(output Type) Type { return Generic("Poll", output) }

// IsVoid reports whether t is the empty tuple.
func (t Type) IsVoid() bool { return t.Kind == KindTuple && len(t.Elems) == 0 }

// Equal reports structural equality.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Name != o.Name || len(t.Elems) != len(o.Elems) || len(t.Fields) != len(o.Fields) {
		return false
	}
	for i := range t.Elems {
		if !t.Elems[i].Equal(o.Elems[i]) {
			return false
		}
	}
	for i := range t.Fields {
		if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
			return false
		}
	}
	return true
}

func (t Type) String() string {
	switch t.Kind {
	case KindPtr:
		return "ptr<" + t.Elems[0].String() + ">"
	case KindArray:
		return "[" + t.Elems[0].String() + "]"
	case KindOption, KindFuture:
		return t.Kind.String() + "<" + t.Elems[0].String() + ">"
	case KindReference:
		return "&" + t.Elems[0].String()
	case KindResult:
		return "Result<" + t.Elems[0].String() + ", " + t.Elems[1].String() + ">"
	case KindTuple:
		return "(" + joinTypes(t.Elems) + ")"
	case KindGeneric:
		return t.Name + "<" + joinTypes(t.Elems) + ">"
	case KindFunction:
		n := len(t.Elems) - 1
		return "fn(" + joinTypes(t.Elems[:n]) + ") -> " + t.Elems[n].String()
	case KindStruct:
		var b strings.Builder
		b.WriteString(t.Name)
		b.WriteString(" {")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte(' ')
			b.WriteString(f.Name)
			b.WriteString(": ")
			b.WriteString(f.Type.String())
		}
		b.WriteString(" }")
		return b.String()
	case KindNamed, KindTypeVar, KindTypeParam:
		return t.Name
	}
	return t.Kind.String()
}

func joinTypes(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// ParseType parses the textual form produced by String for the primitive,
// pointer, array, option, future, generic and named forms. Unrecognized names
// become Named types.
func ParseType(s string) Type {
	s = strings.TrimSpace(s)
	switch s {
	case "", "unknown":
		return Unknown
	case "()", "void":
		return Void
	case "never", "!":
		return Never
	}
	for k := KindBool; k <= KindString; k++ {
		if s == kindNames[k] {
			return Type{Kind: k}
		}
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return Array(ParseType(s[1 : len(s)-1]))
	}
	if strings.HasPrefix(s, "&") {
		return Reference(ParseType(s[1:]))
	}
	if open := strings.IndexByte(s, '<'); open > 0 && strings.HasSuffix(s, ">") {
		name := s[:open]
		args := splitTypeArgs(s[open+1 : len(s)-1])
		switch {
		case name == "ptr" && len(args) == 1:
			return Ptr(args[0])
		case name == "Option" && len(args) == 1:
			return Option(args[0])
		case name == "Future" && len(args) == 1:
			return Future(args[0])
		case name == "Result" && len(args) == 2:
			return Result(args[0], args[1])
		}
		return Generic(name, args...)
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		return Tuple(splitTypeArgs(s[1 : len(s)-1])...)
	}
	return Named(s)
}

func splitTypeArgs(s string) []Type {
	var out []Type
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, ParseType(s[start:i]))
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(s[start:]) != "" {
		out = append(out, ParseType(s[start:]))
	}
	return out
}
