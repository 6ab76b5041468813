package executor

import (
	"fmt"
	"strings"

	"github.com/moikas-code/script-sub002/ir"
)

// Runtime values: integers of every width are int64 (unsigned values keep
// their bit pattern), floats are float64, booleans bool, strings string and
// void is nil. Aggregates use the types below.

// Cell is the storage behind an alloc.
type Cell struct {
	Value any
	Type  ir.Type
}

// Struct is a constructed struct value.
type Struct struct {
	Fields map[string]any
	Name   string
	Order  []string
}

func (s *Struct) String() string {
	parts := make([]string, len(s.Order))
	for i, f := range s.Order {
		parts[i] = fmt.Sprintf("%s: %v", f, s.Fields[f])
	}
	return s.Name + " { " + strings.Join(parts, ", ") + " }"
}

// Enum is a constructed enum value.
type Enum struct {
	Name    string
	Variant string
	Args    []any
	Tag     uint32
}

func (e *Enum) String() string {
	if len(e.Args) == 0 {
		return e.Name + "::" + e.Variant
	}
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = fmt.Sprint(a)
	}
	return e.Name + "::" + e.Variant + "(" + strings.Join(args, ", ") + ")"
}

// PollReady builds Poll::Ready(v), or a bare Ready when v is nil.
func PollReady(v any) *Enum {
	e := &Enum{Name: ir.PollEnum, Variant: ir.PollReadyName, Tag: ir.PollReady}
	if v != nil {
		e.Args = []any{v}
	}
	return e
}

// PollPending builds Poll::Pending.
func PollPending() *Enum {
	return &Enum{Name: ir.PollEnum, Variant: ir.PollPendingRef, Tag: ir.PollPending}
}

// IsPoll reports whether v is a Poll enum.
func IsPoll(v any) (*Enum, bool) {
	e, ok := v.(*Enum)
	if !ok || e.Name != ir.PollEnum {
		return nil, false
	}
	return e, true
}

// normalizeInt truncates v to the width of t and sign- or zero-extends it
// back to int64.
func normalizeInt(t ir.Type, v int64) int64 {
	switch t.Kind {
	case ir.KindI8:
		return int64(int8(v))
	case ir.KindU8:
		return int64(uint8(v))
	case ir.KindI16:
		return int64(int16(v))
	case ir.KindU16:
		return int64(uint16(v))
	case ir.KindI32:
		return int64(int32(v))
	case ir.KindU32:
		return int64(uint32(v))
	}
	return v
}

func isUnsigned(t ir.Type) bool {
	switch t.Kind {
	case ir.KindU8, ir.KindU16, ir.KindU32, ir.KindU64:
		return true
	}
	return false
}

func isInt(t ir.Type) bool {
	switch t.Kind {
	case ir.KindI8, ir.KindU8, ir.KindI16, ir.KindU16, ir.KindI32, ir.KindU32, ir.KindI64, ir.KindU64:
		return true
	}
	return false
}

// zeroValue is the initial content of a cell of type t.
func zeroValue(t ir.Type) any {
	switch {
	case t.Kind == ir.KindBool:
		return false
	case isInt(t):
		return int64(0)
	case t.Kind == ir.KindF32 || t.Kind == ir.KindF64:
		return float64(0)
	case t.Kind == ir.KindString:
		return ""
	}
	return nil
}
