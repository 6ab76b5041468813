package engine

import (
	"math/bits"

	"github.com/moikas-code/script-sub002/asyncify/internal/layout"
	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
)

// buildWrapper replaces fn's body with one that allocates the state record,
// stores every sized parameter at its planned offset and returns the record.
// fn stops being async and its return type becomes Future<original>.
func buildWrapper(m *ir.Module, fn *ir.Function, pollFn ir.FunctionID, plan *layout.Plan) error {
	offsets := make([]uint32, len(fn.Params))
	for i, p := range fn.Params {
		offsets[i] = layout.InvalidOffset
		if layout.SizeOf(p.Type) == 0 {
			continue
		}
		off, ok := plan.Offsets[p.Name]
		if !ok {
			return errors.Internal(errors.PhaseWrap, []string{fn.Name, p.Name}, "parameter slot missing from layout", nil)
		}
		end, carry := bits.Add32(off, layout.ParamSize(p.Type), 0)
		if carry != 0 || end > plan.Size {
			return errors.Overflow(errors.PhaseWrap, []string{fn.Name, p.Name}, "async state size overflow")
		}
		offsets[i] = off
	}

	output := fn.Return
	fn.ResetBody()
	fn.Async = false
	fn.Return = ir.Future(output)

	b := ir.NewBuilder(m)
	e := wrapEmitter{fn: fn}
	e.do(b.SetFunction(fn.ID))
	entry, err := b.CreateBlock("async_wrapper_entry")
	e.do(err)
	e.do(b.SetBlock(entry))
	state, err := b.CreateAsyncState(0, plan.Size, output, pollFn)
	e.do(err)
	for i, off := range offsets {
		if off == layout.InvalidOffset {
			continue
		}
		e.do(b.StoreAsyncState(state, off, fn.ParamValue(i)))
	}
	e.do(b.Return(state))
	return e.err
}

type wrapEmitter struct {
	fn  *ir.Function
	err error
}

func (e *wrapEmitter) do(err error) {
	if e.err == nil && err != nil {
		e.err = errors.Internal(errors.PhaseWrap, []string{e.fn.Name}, "emit wrapper", err)
	}
}
