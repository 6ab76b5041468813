package layout

import "github.com/moikas-code/script-sub002/ir"

// SizeOf estimates the byte size of a value of type t in the state record.
func SizeOf(t ir.Type) uint32 {
	switch t.Kind {
	case ir.KindBool, ir.KindI8, ir.KindU8:
		return 1
	case ir.KindI16, ir.KindU16:
		return 2
	case ir.KindI32, ir.KindU32, ir.KindF32:
		return 4
	case ir.KindNever:
		return 0
	case ir.KindTuple:
		var n uint32
		for _, e := range t.Elems {
			n = addSize(n, SizeOf(e))
		}
		return n
	case ir.KindStruct:
		var n uint32
		for _, f := range t.Fields {
			n = addSize(n, SizeOf(f.Type))
		}
		return n
	case ir.KindNamed:
		return namedSize(t.Name)
	}
	// i64/u64/f64, strings, pointers, references, arrays, functions,
	// generic aggregates and unresolved types.
	return 8
}

// ParamSize is the width used when the wrapper stores an incoming parameter.
func ParamSize(t ir.Type) uint32 {
	switch t.Kind {
	case ir.KindBool, ir.KindI8, ir.KindU8:
		return 1
	case ir.KindI16, ir.KindU16:
		return 2
	case ir.KindI32, ir.KindU32, ir.KindF32:
		return 4
	}
	return 8
}

func namedSize(name string) uint32 {
	switch name {
	case "bool", "u8", "i8":
		return 1
	case "u16", "i16":
		return 2
	case "i32", "u32", "f32":
		return 4
	}
	return 8
}

// addSize saturates at MaxStateSize+1 so oversized aggregates fail allocation
// instead of wrapping.
func addSize(a, b uint32) uint32 {
	if a > MaxStateSize || b > MaxStateSize-a {
		return MaxStateSize + 1
	}
	return a + b
}

// SpillSize is the width reserved for a value spilled across a suspension.
// Aggregates may be held by reference, so any value with storage gets at
// least a reference-sized slot.
func SpillSize(t ir.Type) uint32 {
	n := SizeOf(t)
	if n == 0 {
		return 0
	}
	return max(n, 8)
}
