package executor

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
)

// selectorOffset is where the u32 state selector lives in every record.
const selectorOffset = ir.StateSelectorOffset

// refWidth is the footprint of a reference held in the side table.
const refWidth = 8

// Record is the packed state record of one lowered async call.
//
// Scalars are stored little-endian in a byte buffer. Everything else
// (strings, pointers, futures, records, enums, wakers) is kept in a side
// table keyed by offset. Every access is bounds-checked against the size
// the wrapper requested.
type Record struct {
	refs   map[uint32]any
	data   []byte
	Output ir.Type
	mu     sync.Mutex
	PollFn ir.FunctionID
}

// NewRecord allocates a zeroed record of size bytes with the selector set to
// initial.
func NewRecord(size uint32, output ir.Type, pollFn ir.FunctionID, initial uint32) (*Record, error) {
	r := &Record{
		refs:   make(map[uint32]any),
		data:   make([]byte, size),
		Output: output,
		PollFn: pollFn,
	}
	if err := r.SetState(initial); err != nil {
		return nil, err
	}
	return r, nil
}

// Size returns the record size in bytes.
func (r *Record) Size() uint32 { return uint32(len(r.data)) }

func (r *Record) check(off, width uint32) error {
	size := uint32(len(r.data))
	if width > size || off > size-width {
		return errors.OutOfBounds(errors.PhaseRuntime, []string{"record"}, off, width, size)
	}
	return nil
}

// State returns the selector.
func (r *Record) State() (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(selectorOffset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.data[selectorOffset:]), nil
}

// SetState writes the selector.
func (r *Record) SetState(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(selectorOffset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(r.data[selectorOffset:], id)
	return nil
}

// Store writes v, a value of type t, at off.
func (r *Record) Store(off uint32, t ir.Type, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	width := scalarWidth(t)
	if width == 0 || !isScalar(v) {
		if err := r.check(off, refWidth); err != nil {
			return err
		}
		r.refs[off] = v
		return nil
	}
	if err := r.check(off, width); err != nil {
		return err
	}
	bits, err := encodeScalar(t, v)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], bits)
	copy(r.data[off:off+width], buf[:width])
	delete(r.refs, off)
	return nil
}

// Load reads a value of type t at off.
func (r *Record) Load(off uint32, t ir.Type) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.refs[off]; ok {
		if err := r.check(off, refWidth); err != nil {
			return nil, err
		}
		return v, nil
	}
	width := scalarWidth(t)
	if width == 0 {
		if err := r.check(off, refWidth); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := r.check(off, width); err != nil {
		return nil, err
	}
	var buf [8]byte
	copy(buf[:width], r.data[off:off+width])
	return decodeScalar(t, binary.LittleEndian.Uint64(buf[:])), nil
}

// Peek returns the reference held at off, or the raw little-endian bits of
// the size bytes there. It is meant for inspection, not typed access.
func (r *Record) Peek(off, size uint32) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.refs[off]; ok {
		return v, nil
	}
	width := min(size, 8)
	if width == 0 {
		width = refWidth
	}
	if err := r.check(off, width); err != nil {
		return nil, err
	}
	var buf [8]byte
	copy(buf[:width], r.data[off:off+width])
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Bytes returns a copy of the scalar buffer.
func (r *Record) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

func (r *Record) String() string {
	state, _ := r.State()
	return fmt.Sprintf("record(%d bytes, state %d, fn %s)", r.Size(), state, r.PollFn)
}

// scalarWidth is the byte width of a scalar type, or 0 for types held by
// reference.
func scalarWidth(t ir.Type) uint32 {
	switch t.Kind {
	case ir.KindBool, ir.KindI8, ir.KindU8:
		return 1
	case ir.KindI16, ir.KindU16:
		return 2
	case ir.KindI32, ir.KindU32, ir.KindF32:
		return 4
	case ir.KindI64, ir.KindU64, ir.KindF64:
		return 8
	}
	return 0
}

func isScalar(v any) bool {
	switch v.(type) {
	case bool, int64, float64:
		return true
	}
	return false
}

func encodeScalar(t ir.Type, v any) (uint64, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case int64:
		return uint64(x), nil
	case float64:
		if t.Kind == ir.KindF32 {
			return uint64(math.Float32bits(float32(x))), nil
		}
		return math.Float64bits(x), nil
	}
	return 0, errors.TypeMismatch(errors.PhaseRuntime, []string{"record"}, t.String(), v)
}

func decodeScalar(t ir.Type, bits uint64) any {
	switch t.Kind {
	case ir.KindBool:
		return bits&0xff != 0
	case ir.KindF32:
		return float64(math.Float32frombits(uint32(bits)))
	case ir.KindF64:
		return math.Float64frombits(bits)
	}
	return normalizeInt(t, int64(bits))
}
