package asyncify

import (
	"strings"
	"testing"

	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
	"github.com/moikas-code/script-sub002/ir/irtest"
	"go.uber.org/zap"
)

func TestTransform_NoAwaits(t *testing.T) {
	m := ir.NewModule("test")
	fn := irtest.AwaitChain(t, m, "plain", 0)

	info, err := Transform(m, fn.ID, Config{Verify: true})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if len(info.SuspendPoints) != 0 {
		t.Errorf("got %d suspend points, want 0", len(info.SuspendPoints))
	}
	// Control slots plus the i32 parameter.
	if info.StateSize != 40 {
		t.Errorf("StateSize = %d, want 40", info.StateSize)
	}
	poll := m.FunctionByName("plain" + PollSuffix)
	if poll == nil || poll.ID != info.PollFn {
		t.Fatalf("poll function not registered")
	}
	if poll.BlockByName("check_state_1") != nil {
		t.Error("function without awaits has a check block")
	}
}

func TestTransform_TwoAwaitScenario(t *testing.T) {
	m := ir.NewModule("test")
	fn := irtest.TwoAwaits(t, m)

	info, err := Transform(m, fn.ID, Config{Verify: true})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	if len(info.SuspendPoints) != 2 {
		t.Fatalf("got %d suspend points, want 2", len(info.SuspendPoints))
	}

	// 3 named states: 0, 1, 2.
	poll := m.Function(info.PollFn)
	for _, name := range []string{"state_0", "resume_1", "resume_2"} {
		if poll.BlockByName(name) == nil {
			t.Errorf("missing state block %s", name)
		}
	}

	// Control fields (20 bytes, padded to 24), params a (4->8) and b (8),
	// five locals (one 4->8, four 8), two future/result pairs.
	want := uint32(8 + 24 + 16 + 40 + 2*8*2)
	if info.StateSize != want {
		t.Errorf("StateSize = %d, want %d", info.StateSize, want)
	}

	for _, s := range info.Slots {
		if s.Offset%8 != 0 {
			t.Errorf("slot %s at unaligned offset %d", s.Name, s.Offset)
		}
		if s.Offset+s.Size > info.StateSize {
			t.Errorf("slot %s ends past the record", s.Name)
		}
		if info.StateOffsets[s.Name] != s.Offset {
			t.Errorf("StateOffsets[%s] = %d, want %d", s.Name, info.StateOffsets[s.Name], s.Offset)
		}
	}
}

func TestTransform_SecurityBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		instrs  int
		awaits  int
		wantErr bool
	}{
		{"10000 instructions", 10_000, 1, false},
		{"10001 instructions", 10_001, 1, true},
		{"100 suspension points", 300, 100, false},
		{"101 suspension points", 300, 101, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ir.NewModule("test")
			fn := irtest.Padded(t, m, "f", tt.instrs, tt.awaits)
			before := fn.String()

			_, err := Transform(m, fn.ID, Config{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transform() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			if errors.KindOf(err) != errors.KindSecurityViolation {
				t.Errorf("kind = %q, want security violation", errors.KindOf(err))
			}
			if fn.String() != before || !fn.Async {
				t.Error("rejected function was modified")
			}
			if m.FunctionByName("f"+PollSuffix) != nil {
				t.Error("rejected function got a poll function")
			}
		})
	}
}

func TestTransform_ForbiddenCall(t *testing.T) {
	m := ir.NewModule("test")
	exit, err := m.DeclareExternal("os.exit", []ir.Param{{Name: "code", Type: ir.I32}}, ir.Never)
	if err != nil {
		t.Fatal(err)
	}
	b := irtest.NewFunction(t, m, "quit", []ir.Param{{Name: "code", Type: ir.I32}}, ir.Never, true)
	b.V(b.Call(exit.ID, []ir.ValueID{b.Fn.ParamValue(0)}, ir.Never))
	b.Must(b.ReturnVoid())

	_, err = Transform(m, b.Fn.ID, Config{Forbidden: NewWildcardMatcher([]string{"os.*"})})
	if errors.KindOf(err) != errors.KindSecurityViolation {
		t.Fatalf("err = %v, want security violation", err)
	}
	if !strings.Contains(err.Error(), "os.exit") {
		t.Errorf("error %q does not name the callee", err)
	}

	if _, err := Transform(m, b.Fn.ID, Config{Verify: true}); err != nil {
		t.Fatalf("without matcher: %v", err)
	}
}

func TestTransformAll(t *testing.T) {
	m := ir.NewModule("test")
	irtest.AwaitChain(t, m, "one", 1)
	sync := irtest.NewFunction(t, m, "sync", nil, ir.I32, false)
	sync.Must(sync.Return(sync.I32(3)))
	irtest.AwaitChain(t, m, "two", 2)

	infos, err := TransformAll(m, Config{Verify: true, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("TransformAll: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("lowered %d functions, want 2", len(infos))
	}
	for i, name := range []string{"one", "two"} {
		fn := m.Function(infos[i].OriginalFn)
		if fn.Name != name || !IsLowered(m, fn) {
			t.Errorf("info %d: %s lowered=%v", i, fn.Name, IsLowered(m, fn))
		}
	}
	if IsLowered(m, sync.Fn) {
		t.Error("sync function reported lowered")
	}
	for _, fn := range m.Functions() {
		if fn.Async {
			t.Errorf("%s still async", fn.Name)
		}
	}
}

func TestTransformAll_StopsAtFirstFailure(t *testing.T) {
	m := ir.NewModule("test")
	irtest.AwaitChain(t, m, "ok", 1)
	irtest.Padded(t, m, "busy", 20, 5)
	irtest.AwaitChain(t, m, "after", 1)

	infos, err := TransformAll(m, Config{MaxSuspendPoints: 4})
	if errors.KindOf(err) != errors.KindSecurityViolation {
		t.Fatalf("err = %v, want security violation", err)
	}
	if len(infos) != 1 {
		t.Errorf("lowered %d functions before failing, want 1", len(infos))
	}
	if !m.FunctionByName("after").Async {
		t.Error("function after the failure was lowered")
	}
}
