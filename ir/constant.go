package ir

import (
	"fmt"
	"strconv"
)

// Constant is a typed literal. Integers of every width are held as int64,
// floats as float64. A void constant has a nil Value.
type Constant struct {
	Value any
	Type  Type
}

func ConstBool(v bool) Constant     { return Constant{Type: Bool, Value: v} }
func ConstI32(v int32) Constant     { return Constant{Type: I32, Value: int64(v)} }
func ConstU32(v uint32) Constant    { return Constant{Type: U32, Value: int64(v)} }
func ConstI64(v int64) Constant     { return Constant{Type: I64, Value: v} }
func ConstF64(v float64) Constant   { return Constant{Type: F64, Value: v} }
func ConstString(v string) Constant { return Constant{Type: String, Value: v} }
func ConstVoid() Constant           { return Constant{Type: Void} }

// ConstInt returns an integer constant of type t.
func ConstInt(t Type, v int64) Constant { return Constant{Type: t, Value: v} }

func (c Constant) String() string {
	switch v := c.Value.(type) {
	case nil:
		return c.Type.String() + " ()"
	case string:
		return c.Type.String() + " " + strconv.Quote(v)
	default:
		return fmt.Sprintf("%s %v", c.Type, v)
	}
}

// ParseConstant parses a literal of type t from its textual form.
func ParseConstant(t Type, s string) (Constant, error) {
	switch t.Kind {
	case KindBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return Constant{}, fmt.Errorf("parse bool %q: %w", s, err)
		}
		return ConstBool(v), nil
	case KindI8, KindU8, KindI16, KindU16, KindI32, KindU32, KindI64, KindU64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return Constant{}, fmt.Errorf("parse %s %q: %w", t, s, err)
		}
		return ConstInt(t, v), nil
	case KindF32, KindF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Constant{}, fmt.Errorf("parse %s %q: %w", t, s, err)
		}
		return Constant{Type: t, Value: v}, nil
	case KindString:
		if u, err := strconv.Unquote(s); err == nil {
			return ConstString(u), nil
		}
		return ConstString(s), nil
	}
	if t.IsVoid() {
		return ConstVoid(), nil
	}
	return Constant{}, fmt.Errorf("no literal form for type %s", t)
}
