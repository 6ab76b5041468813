// Package layout plans the packed state record of a lowered async function.
package layout

import (
	"fmt"
	"math"

	"github.com/moikas-code/script-sub002/asyncify/internal/analysis"
	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
)

const (
	// HeaderSize is the reserved prefix of every record.
	HeaderSize uint32 = 8
	// Alignment of every slot offset.
	Alignment uint32 = 8
	// MaxStateSize is the ceiling on a single slot and on the record size.
	MaxStateSize uint32 = 1 << 20
	// InvalidOffset is returned by Allocate when the slot does not fit.
	InvalidOffset uint32 = math.MaxUint32
)

// Control slot names, allocated first and in this order.
const (
	StateSlot  = "__state"
	ResultSlot = "__result"
	WakerSlot  = "__waker"
)

// FutureSlot names the slot holding the future awaited at state id.
func FutureSlot(id uint32) string { return fmt.Sprintf("__future_%d", id) }

// FutureResultSlot names the slot holding the ready value of state id.
func FutureResultSlot(id uint32) string { return fmt.Sprintf("__future_result_%d", id) }

// Slot is one allocated field of the record.
type Slot struct {
	Name   string
	Offset uint32
	Size   uint32
}

// Planner is an append-only bump allocator over the record.
type Planner struct {
	offsets map[string]uint32
	slots   []Slot
	offset  uint32
}

// NewPlanner returns a planner positioned just after the header.
func NewPlanner() *Planner {
	return &Planner{offset: HeaderSize, offsets: make(map[string]uint32)}
}

// Offset returns the next free byte offset.
func (p *Planner) Offset() uint32 { return p.offset }

// Allocate reserves size bytes for name at the current offset and advances
// the offset to the next multiple of 8. It returns InvalidOffset, allocating
// nothing, when size or the resulting end exceeds MaxStateSize.
func (p *Planner) Allocate(name string, size uint32) uint32 {
	if size > MaxStateSize || p.offset > MaxStateSize-size {
		return InvalidOffset
	}
	// MaxStateSize is a multiple of Alignment, so rounding up cannot pass it.
	end := p.offset + size
	if rem := end % Alignment; rem != 0 {
		end += Alignment - rem
	}
	off := p.offset
	p.offsets[name] = off
	p.slots = append(p.slots, Slot{Name: name, Offset: off, Size: size})
	p.offset = end
	return off
}

// Lookup returns the offset allocated for name.
func (p *Planner) Lookup(name string) (uint32, bool) {
	off, ok := p.offsets[name]
	return off, ok
}

// Slots returns the allocations in order.
func (p *Planner) Slots() []Slot {
	out := make([]Slot, len(p.slots))
	copy(out, p.slots)
	return out
}

// Plan is the finished layout.
type Plan struct {
	Offsets map[string]uint32
	Slots   []Slot
	Size    uint32
}

// Slot returns the slot with the given name.
func (p *Plan) Slot(name string) (Slot, bool) {
	for _, s := range p.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// Build allocates the record for fn in the fixed order: control slots,
// parameters in declaration order, discovered locals in discovery order, a
// future slot and a future-result slot per suspension in state-id order, then
// the values live across a suspension.
func Build(fn *ir.Function, a *analysis.Result) (*Plan, error) {
	p := NewPlanner()
	alloc := func(name string, size uint32) error {
		if _, dup := p.offsets[name]; dup {
			return errors.InvalidInput(errors.PhaseLayout, []string{fn.Name, name}, "duplicate state slot name")
		}
		if p.Allocate(name, size) == InvalidOffset {
			return errors.New(errors.PhaseLayout, errors.KindOverflow).
				Path(fn.Name, name).
				Value(p.offset).
				Limit(MaxStateSize).
				Detail("async state size overflow: %d bytes at offset %d exceeds %d byte limit", size, p.offset, MaxStateSize).
				Build()
		}
		return nil
	}

	if err := alloc(StateSlot, 4); err != nil {
		return nil, err
	}
	if err := alloc(ResultSlot, 8); err != nil {
		return nil, err
	}
	if err := alloc(WakerSlot, 8); err != nil {
		return nil, err
	}
	for _, param := range fn.Params {
		if err := alloc(param.Name, SizeOf(param.Type)); err != nil {
			return nil, err
		}
	}
	for _, local := range a.Locals {
		if err := alloc(local.Name, SizeOf(local.Type)); err != nil {
			return nil, err
		}
	}
	for _, s := range a.Suspensions {
		if err := alloc(FutureSlot(s.StateID), 8); err != nil {
			return nil, err
		}
		if err := alloc(FutureResultSlot(s.StateID), 8); err != nil {
			return nil, err
		}
	}
	for _, l := range a.Live {
		if err := alloc(l.Name, SpillSize(l.Type)); err != nil {
			return nil, err
		}
	}

	offsets := make(map[string]uint32, len(p.offsets))
	for k, v := range p.offsets {
		offsets[k] = v
	}
	return &Plan{Offsets: offsets, Slots: p.Slots(), Size: p.offset}, nil
}
