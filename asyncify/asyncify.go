package asyncify

import (
	"github.com/moikas-code/script-sub002/asyncify/internal/engine"
	"github.com/moikas-code/script-sub002/ir"
	"go.uber.org/zap"
)

// Info describes one lowered function: the poll function, the state record
// layout and the suspend points.
type Info = engine.Info

// SuspendPoint ties a state id to its resume block and awaited future.
type SuspendPoint = engine.SuspendPoint

// Slot is one field of the state record.
type Slot = engine.Slot

// PollSuffix is appended to a function's name to name its poll function.
const PollSuffix = engine.PollSuffix

// Config configures the lowering. The zero value applies the default limits,
// forbids recursive async functions and forbids no callees.
type Config struct {
	// Forbidden callees. A call to a matching function from an async
	// function rejects the function.
	Forbidden FunctionMatcher
	// Logger receives one debug line per lowered function and a warning per
	// rejection. Defaults to the package logger.
	Logger *zap.Logger
	// MaxInstructions per async function. Zero selects 10,000.
	MaxInstructions int
	// MaxSuspendPoints per async function. Zero selects 100.
	MaxSuspendPoints int
	// MaxLocals per async function. Zero selects 1,000.
	MaxLocals      int
	AllowRecursion bool
	// Verify checks the generated functions with ir.Verify.
	Verify bool
}

func (c Config) engine() engine.Config {
	return engine.Config{
		Forbidden:        c.Forbidden,
		Logger:           c.Logger,
		MaxInstructions:  c.MaxInstructions,
		MaxSuspendPoints: c.MaxSuspendPoints,
		MaxLocals:        c.MaxLocals,
		AllowRecursion:   c.AllowRecursion,
		Verify:           c.Verify,
	}
}

// Transform lowers the async function id of m into a poll function and a
// synchronous wrapper.
//
// The lowering:
//   - Validates the function against the security limits
//   - Discovers locals and suspension points
//   - Plans the packed state record
//   - Builds <name>_poll, a state machine over the record
//   - Replaces the original body with a wrapper returning the record
//
// Validation and layout failures leave m untouched. A failure after that
// point is a lowering bug and leaves m half lowered.
func Transform(m *ir.Module, id ir.FunctionID, cfg Config) (*Info, error) {
	return engine.New(cfg.engine()).Transform(m, id)
}

// TransformAll lowers every async function of m in id order and stops at
// the first failure. The returned infos are in the same order.
func TransformAll(m *ir.Module, cfg Config) ([]*Info, error) {
	eng := engine.New(cfg.engine())
	var infos []*Info
	for _, fn := range m.Functions() {
		if !fn.Async || fn.External {
			continue
		}
		info, err := eng.Transform(m, fn.ID)
		if err != nil {
			return infos, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// IsLowered reports whether fn has been replaced by a wrapper.
func IsLowered(m *ir.Module, fn *ir.Function) bool {
	return engine.IsLowered(m, fn)
}

// SetLogger replaces the package logger used when Config.Logger is nil.
func SetLogger(l *zap.Logger) { engine.SetLogger(l) }
