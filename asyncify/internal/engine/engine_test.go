package engine

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/moikas-code/script-sub002/asyncify/internal/handler"
	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
	"github.com/moikas-code/script-sub002/ir/irtest"
)

func lower(t *testing.T, m *ir.Module, fn *ir.Function) *Info {
	t.Helper()
	info, err := New(Config{Verify: true}).Transform(m, fn.ID)
	if err != nil {
		t.Fatalf("Transform(%s): %v", fn.Name, err)
	}
	return info
}

func blockNames(fn *ir.Function) map[string]bool {
	names := make(map[string]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		names[b.Name] = true
	}
	return names
}

func TestTransform_TwoAwaits(t *testing.T) {
	m := ir.NewModule("test")
	fn := irtest.TwoAwaits(t, m)
	info := lower(t, m, fn)

	poll := m.Function(info.PollFn)
	if poll == nil || poll.Name != "fetch_poll" {
		t.Fatalf("poll function = %v", poll)
	}
	if !poll.Return.Equal(ir.PollType(ir.I32)) {
		t.Errorf("poll return = %s", poll.Return)
	}
	if info.OriginalFn != fn.ID {
		t.Errorf("OriginalFn = %s, want %s", info.OriginalFn, fn.ID)
	}
	if info.StateSize != 120 {
		t.Errorf("StateSize = %d, want 120", info.StateSize)
	}

	if len(info.SuspendPoints) != 2 {
		t.Fatalf("got %d suspend points, want 2", len(info.SuspendPoints))
	}
	for i, sp := range info.SuspendPoints {
		want := uint32(i + 1)
		if sp.StateID != want {
			t.Errorf("SuspendPoints[%d].StateID = %d, want %d", i, sp.StateID, want)
		}
		blk := poll.Block(sp.ResumeBlock)
		if blk == nil || blk.Name != fmt.Sprintf("resume_%d", want) {
			t.Errorf("resume block of state %d = %v", want, blk)
		}
	}

	names := blockNames(poll)
	for _, n := range []string{
		"entry", "dispatch", "state_0", "resume_1", "resume_2",
		"check_state_1", "check_state_2", "invalid_state", "completed",
		"continue_1", "continue_2", "still_pending_1", "still_pending_2",
	} {
		if !names[n] {
			t.Errorf("poll function has no block %q", n)
		}
	}
	if poll.Blocks[0].Name != "entry" {
		t.Errorf("first block = %q, want entry", poll.Blocks[0].Name)
	}
}

func TestTransform_Wrapper(t *testing.T) {
	m := ir.NewModule("test")
	fn := irtest.TwoAwaits(t, m)
	info := lower(t, m, fn)

	if fn.Async {
		t.Error("wrapper is still async")
	}
	if !fn.Return.Equal(ir.Future(ir.I32)) {
		t.Errorf("wrapper return = %s, want future<i32>", fn.Return)
	}
	if len(fn.Blocks) != 1 || fn.Blocks[0].Name != "async_wrapper_entry" {
		t.Fatalf("wrapper blocks:\n%s", fn)
	}
	instrs := fn.Blocks[0].Instrs
	if len(instrs) != 4 {
		t.Fatalf("wrapper has %d instructions, want 4:\n%s", len(instrs), fn)
	}
	create, ok := instrs[0].Imm.(ir.CreateAsyncStateImm)
	if !ok {
		t.Fatalf("first instruction is %s", instrs[0].Op)
	}
	if create.Size != info.StateSize || create.PollFn != info.PollFn || create.InitialState != 0 || !create.Output.Equal(ir.I32) {
		t.Errorf("create_async_state = %+v", create)
	}
	for i, off := range []uint32{32, 40} {
		st, ok := instrs[1+i].Imm.(ir.StoreAsyncStateImm)
		if !ok || st.Offset != off || st.Value != fn.ParamValue(i) || st.State != instrs[0].Result {
			t.Errorf("param %d store = %s", i, instrs[1+i])
		}
	}
	ret, ok := instrs[3].Imm.(ir.ReturnImm)
	if !ok || !ret.HasValue || ret.Value != instrs[0].Result {
		t.Errorf("wrapper return = %s", instrs[3])
	}
	if !IsLowered(m, fn) {
		t.Error("IsLowered() = false after Transform")
	}
}

// dispatchTargets follows the dispatch chain and returns the state id each
// comparison tests together with the block it jumps to on a match.
func dispatchTargets(t *testing.T, poll *ir.Function) (map[uint32]string, string) {
	t.Helper()
	out := make(map[uint32]string)
	blk := poll.BlockByName("dispatch")
	for blk != nil && blk.Name != "invalid_state" {
		if len(blk.Instrs) != 3 {
			t.Fatalf("dispatch block %s:\n%s", blk.Name, blk)
		}
		id := blk.Instrs[0].Imm.(ir.ConstImm).Value.Value.(int64)
		br := blk.Instrs[2].Imm.(ir.CondBranchImm)
		out[uint32(id)] = poll.Block(br.Then).Name
		blk = poll.Block(br.Else)
	}
	if blk == nil {
		t.Fatal("dispatch chain does not end in invalid_state")
	}
	return out, blk.Name
}

func TestTransform_DispatchCompleteness(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, m *ir.Module) *ir.Function
	}{
		{"no awaits", func(t *testing.T, m *ir.Module) *ir.Function { return irtest.AwaitChain(t, m, "plain", 0) }},
		{"chain", func(t *testing.T, m *ir.Module) *ir.Function { return irtest.AwaitChain(t, m, "chain", 4) }},
		{"branchy", func(t *testing.T, m *ir.Module) *ir.Function { return irtest.Branchy(t, m) }},
		{"padded", func(t *testing.T, m *ir.Module) *ir.Function { return irtest.Padded(t, m, "pad", 40, 9) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ir.NewModule("test")
			fn := tt.build(t, m)
			info := lower(t, m, fn)
			poll := m.Function(info.PollFn)

			targets, last := dispatchTargets(t, poll)
			if last != "invalid_state" {
				t.Errorf("chain ends in %s", last)
			}
			if targets[0] != "state_0" {
				t.Errorf("state 0 dispatches to %q", targets[0])
			}
			if len(targets) != len(info.SuspendPoints)+1 {
				t.Errorf("dispatch covers %d states, want %d", len(targets), len(info.SuspendPoints)+1)
			}
			for _, sp := range info.SuspendPoints {
				if got := targets[sp.StateID]; got != poll.Block(sp.ResumeBlock).Name {
					t.Errorf("state %d dispatches to %q, want its resume block", sp.StateID, got)
				}
			}
		})
	}
}

func TestTransform_Deterministic(t *testing.T) {
	render := func() string {
		m := ir.NewModule("test")
		irtest.Branchy(t, m)
		irtest.TwoAwaits(t, m)
		for _, fn := range m.Functions() {
			if fn.Async {
				lower(t, m, fn)
			}
		}
		return m.String()
	}
	a, b := render(), render()
	if a != b {
		t.Errorf("lowering is not deterministic:\n%s\n---\n%s", a, b)
	}
}

func TestTransform_BranchyPhi(t *testing.T) {
	m := ir.NewModule("test")
	fn := irtest.Branchy(t, m)
	info := lower(t, m, fn)
	poll := m.Function(info.PollFn)

	join := poll.BlockByName("join")
	if join == nil || len(join.Instrs) == 0 {
		t.Fatalf("no join block:\n%s", poll)
	}
	phi, ok := join.Instrs[0].Imm.(ir.PhiImm)
	if !ok {
		t.Fatalf("join starts with %s", join.Instrs[0].Op)
	}
	if len(phi.Incoming) != 2 {
		t.Fatalf("phi has %d edges", len(phi.Incoming))
	}
	for _, e := range phi.Incoming {
		name := poll.Block(e.Block).Name
		if !strings.HasPrefix(name, "continue_") {
			t.Errorf("phi edge from %q, want a continue block", name)
		}
	}
}

func TestTransform_VoidReturn(t *testing.T) {
	m := ir.NewModule("test")
	fn := irtest.Padded(t, m, "tick", 4, 1)
	info := lower(t, m, fn)
	poll := m.Function(info.PollFn)

	done := poll.BlockByName("completed")
	if len(done.Instrs) != 2 {
		t.Fatalf("completed:\n%s", done)
	}
	ready := done.Instrs[0].Imm.(ir.ConstructEnumImm)
	if ready.Variant != ir.PollReadyName || len(ready.Args) != 0 {
		t.Errorf("completed constructs %+v", ready)
	}
}

func TestTransform_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, m *ir.Module) ir.FunctionID
		cfg   Config
		kind  errors.Kind
	}{
		{
			name:  "unknown function",
			setup: func(t *testing.T, m *ir.Module) ir.FunctionID { return 42 },
			kind:  errors.KindNotFound,
		},
		{
			name: "not async",
			setup: func(t *testing.T, m *ir.Module) ir.FunctionID {
				b := irtest.NewFunction(t, m, "sync", nil, ir.I32, false)
				b.Must(b.Return(b.I32(1)))
				return b.Fn.ID
			},
			kind: errors.KindInvalidInput,
		},
		{
			name: "external",
			setup: func(t *testing.T, m *ir.Module) ir.FunctionID {
				return irtest.Ready(t, m).ID
			},
			kind: errors.KindInvalidInput,
		},
		{
			name: "poll name taken",
			setup: func(t *testing.T, m *ir.Module) ir.FunctionID {
				fn := irtest.AwaitChain(t, m, "job", 1)
				b := irtest.NewFunction(t, m, "job_poll", nil, ir.Void, false)
				b.Must(b.ReturnVoid())
				return fn.ID
			},
			kind: errors.KindInvalidInput,
		},
		{
			name: "unterminated block",
			setup: func(t *testing.T, m *ir.Module) ir.FunctionID {
				b := irtest.NewFunction(t, m, "open", nil, ir.I32, true)
				b.I32(1)
				return b.Fn.ID
			},
			kind: errors.KindInvalidInput,
		},
		{
			name: "too many suspensions",
			setup: func(t *testing.T, m *ir.Module) ir.FunctionID {
				return irtest.Padded(t, m, "busy", 10, 4).ID
			},
			cfg:  Config{MaxSuspendPoints: 3},
			kind: errors.KindSecurityViolation,
		},
		{
			name: "state overflow",
			setup: func(t *testing.T, m *ir.Module) ir.FunctionID {
				b := irtest.NewFunction(t, m, "huge", []ir.Param{
					{Name: "a", Type: ir.Tuple(make4k(256)...)},
					{Name: "b", Type: ir.I32},
				}, ir.Void, true)
				b.Must(b.ReturnVoid())
				return b.Fn.ID
			},
			kind: errors.KindOverflow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ir.NewModule("test")
			id := tt.setup(t, m)
			before := m.String()
			n := m.Len()

			_, err := New(tt.cfg).Transform(m, id)
			if got := errors.KindOf(err); got != tt.kind {
				t.Fatalf("err = %v, kind %q, want %q", err, got, tt.kind)
			}
			if m.Len() != n || m.String() != before {
				t.Error("rejected transform mutated the module")
			}
		})
	}
}

// make4k returns n tuple elements of 4096 bytes each.
func make4k(n int) []ir.Type {
	inner := make([]ir.Type, 512)
	for i := range inner {
		inner[i] = ir.I64
	}
	out := make([]ir.Type, n)
	for i := range out {
		out[i] = ir.Tuple(inner...)
	}
	return out
}

func TestTransform_TwiceIsRejected(t *testing.T) {
	m := ir.NewModule("test")
	fn := irtest.AwaitChain(t, m, "once", 2)
	lower(t, m, fn)
	_, err := New(Config{}).Transform(m, fn.ID)
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("second Transform err = %v", err)
	}
}

func TestTransform_MissingHandler(t *testing.T) {
	reg := handler.NewRegistry()
	handler.RegisterPassthroughHandlers(reg)
	handler.RegisterControlHandlers(reg)

	m := ir.NewModule("test")
	fn := irtest.AwaitChain(t, m, "chain", 1)
	_, err := New(Config{Registry: reg}).Transform(m, fn.ID)
	if errors.KindOf(err) != errors.KindUnsupported {
		t.Fatalf("err = %v, want unsupported", err)
	}
}

func TestBlockOrder(t *testing.T) {
	m := ir.NewModule("test")
	fn := irtest.Branchy(t, m)
	b := ir.NewBuilder(m)
	if err := b.SetFunction(fn.ID); err != nil {
		t.Fatal(err)
	}
	dead, _ := b.CreateBlock("dead")
	if err := b.SetBlock(dead); err != nil {
		t.Fatal(err)
	}
	if err := b.ReturnVoid(); err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, blk := range blockOrder(fn) {
		got = append(got, blk.Name)
	}
	want := []string{"entry", "else", "then", "join", "dead"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("blockOrder = %v, want %v", got, want)
	}
}

func TestTransform_LiveAcrossAwait(t *testing.T) {
	tests := []struct {
		name  string
		build func(testing.TB, *ir.Module) *ir.Function
		slot  string
	}{
		{"cast", irtest.CastAcross, "__live_1"},
		{"load", irtest.LoadAcross, "__live_2"},
		{"phi", irtest.PhiAcross, "__live_4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ir.NewModule("test")
			fn := tt.build(t, m)
			info := lower(t, m, fn)

			off, ok := info.StateOffsets[tt.slot]
			if !ok {
				t.Fatalf("no %s slot in %v", tt.slot, info.StateOffsets)
			}
			// The slot follows the future pair of the only suspension.
			if want := info.StateOffsets["__future_result_1"] + 8; off != want {
				t.Errorf("%s at %d, want %d", tt.slot, off, want)
			}
			if info.StateSize < off+8 {
				t.Errorf("StateSize = %d, slot ends at %d", info.StateSize, off+8)
			}

			poll := m.Function(info.PollFn)
			cont := poll.BlockByName("continue_1")
			if cont == nil {
				t.Fatalf("no continue block:\n%s", poll)
			}
			reloaded := false
			for _, in := range cont.Instrs {
				if ld, ok := in.Imm.(ir.LoadAsyncStateImm); ok && ld.Offset == off {
					reloaded = true
				}
			}
			if !reloaded {
				t.Errorf("continue_1 does not reload %s:\n%s", tt.slot, cont)
			}
		})
	}
}

func TestTransform_RejectsUndominatedUse(t *testing.T) {
	m := ir.NewModule("test")
	b := irtest.NewFunction(t, m, "leak", []ir.Param{{Name: "c", Type: ir.Bool}, {Name: "x", Type: ir.I32}}, ir.I32, true)
	then := b.Block("then")
	els := b.Block("else")
	join := b.Block("join")
	b.Must(b.CondBranch(b.Fn.ParamValue(0), then, els))

	b.Enter(then)
	w := b.V(b.Cast(b.Fn.ParamValue(1), ir.I32))
	b.Must(b.Branch(join))

	b.Enter(els)
	b.Must(b.Branch(join))

	// w is only defined on the then path.
	b.Enter(join)
	b.Must(b.Return(b.AwaitReady(w)))

	before := m.String()
	_, err := New(Config{Verify: true}).Transform(m, b.Fn.ID)
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("err = %v, want invalid input", err)
	}
	var verr ir.VerifyErrors
	if !stderrors.As(err, &verr) || !strings.Contains(verr.Error(), "does not dominate") {
		t.Errorf("cause = %v, want a dominance failure", err)
	}
	if m.String() != before {
		t.Error("rejected function was modified")
	}
}
