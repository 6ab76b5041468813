package engine

import (
	"github.com/moikas-code/script-sub002/asyncify/internal/analysis"
	"github.com/moikas-code/script-sub002/asyncify/internal/handler"
	"github.com/moikas-code/script-sub002/asyncify/internal/layout"
	"github.com/moikas-code/script-sub002/asyncify/internal/security"
	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
	"go.uber.org/zap"
)

// FunctionMatcher selects functions by name.
type FunctionMatcher = security.FunctionMatcher

// SuspendPoint ties a state id to its resume block and awaited future.
type SuspendPoint = handler.SuspendPoint

// Slot is one field of the state record.
type Slot = layout.Slot

// PollSuffix is appended to a function's name to name its poll function.
const PollSuffix = "_poll"

// Config configures the lowering engine.
type Config struct {
	// Forbidden callees inside async functions.
	Forbidden FunctionMatcher
	// Registry overrides the instruction handlers.
	Registry *handler.Registry
	// Logger overrides the package logger.
	Logger           *zap.Logger
	MaxInstructions  int
	MaxSuspendPoints int
	MaxLocals        int
	AllowRecursion   bool
	// Verify runs ir.Verify on the poll function and the wrapper.
	Verify bool
}

// Info describes one lowered function.
type Info struct {
	// StateOffsets maps every slot name to its byte offset.
	StateOffsets map[string]uint32
	// Slots lists the record fields in allocation order.
	Slots         []Slot
	SuspendPoints []SuspendPoint
	OriginalFn    ir.FunctionID
	PollFn        ir.FunctionID
	StateSize     uint32
}

// Engine lowers async functions.
//
// The engine holds no per-function state between Transform calls and does
// no locking; concurrent calls must not share a Module.
type Engine struct {
	validator *security.Validator
	registry  *handler.Registry
	log       *zap.Logger
	verify    bool
}

// New creates an engine with the given config.
func New(cfg Config) *Engine {
	reg := cfg.Registry
	if reg == nil {
		reg = handler.Default()
	}
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	return &Engine{
		validator: security.NewValidator(security.Limits{
			Forbidden:        cfg.Forbidden,
			MaxInstructions:  cfg.MaxInstructions,
			MaxSuspendPoints: cfg.MaxSuspendPoints,
			MaxLocals:        cfg.MaxLocals,
			AllowRecursion:   cfg.AllowRecursion,
		}),
		registry: reg,
		log:      log,
		verify:   cfg.Verify,
	}
}

// Limits returns the effective security limits.
func (e *Engine) Limits() security.Limits { return e.validator.Limits() }

// Transform lowers the async function id of m.
//
// Every check runs before m is mutated. Once building has started, a failure
// leaves the function half lowered and the module must be discarded.
func (e *Engine) Transform(m *ir.Module, id ir.FunctionID) (*Info, error) {
	fn := m.Function(id)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseLower, "function", id.String())
	}
	if err := e.check(m, fn); err != nil {
		e.log.Warn("async function rejected", zap.String("function", fn.Name), zap.Error(err))
		return nil, err
	}

	a := analysis.Analyze(fn)
	plan, err := layout.Build(fn, a)
	if err != nil {
		e.log.Warn("async state layout failed", zap.String("function", fn.Name), zap.Error(err))
		return nil, err
	}
	debugf("%s: %d locals, %d suspensions, %d byte state", fn.Name, len(a.Locals), len(a.Suspensions), plan.Size)

	poll, err := m.CreateFunction(fn.Name+PollSuffix, []ir.Param{
		{Name: "self", Type: ir.Ptr(ir.Named("AsyncState"))},
		{Name: "waker", Type: ir.Named("Waker")},
	}, ir.PollType(fn.Return), false)
	if err != nil {
		return nil, errors.Internal(errors.PhaseLower, []string{fn.Name}, "create poll function", err)
	}

	ctx, err := e.buildPoll(m, fn, poll, plan, a)
	if err != nil {
		return nil, err
	}
	if err := buildWrapper(m, fn, poll.ID, plan); err != nil {
		return nil, err
	}

	if e.verify {
		if err := ir.Verify(poll); err != nil {
			return nil, errors.Internal(errors.PhaseLower, []string{poll.Name}, "poll function failed verification", err)
		}
		if err := ir.Verify(fn); err != nil {
			return nil, errors.Internal(errors.PhaseWrap, []string{fn.Name}, "wrapper failed verification", err)
		}
	}

	info := &Info{
		StateOffsets:  plan.Offsets,
		Slots:         plan.Slots,
		SuspendPoints: ctx.SortedSuspendPoints(),
		OriginalFn:    fn.ID,
		PollFn:        poll.ID,
		StateSize:     plan.Size,
	}
	e.log.Debug("lowered async function",
		zap.String("function", fn.Name),
		zap.String("poll", poll.Name),
		zap.Uint32("state_size", info.StateSize),
		zap.Int("suspend_points", len(info.SuspendPoints)),
	)
	return info, nil
}

// check runs every read-only precondition.
func (e *Engine) check(m *ir.Module, fn *ir.Function) error {
	path := []string{fn.Name}
	if fn.External {
		return errors.InvalidInput(errors.PhaseValidate, path, "external function cannot be lowered")
	}
	if !fn.Async {
		return errors.InvalidInput(errors.PhaseValidate, path, "function is not async")
	}
	if m.FunctionByName(fn.Name+PollSuffix) != nil {
		return errors.InvalidInput(errors.PhaseValidate, path, "poll function "+fn.Name+PollSuffix+" already exists")
	}
	if err := ir.Verify(fn); err != nil {
		return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Path(path...).
			Detail("malformed function body").
			Cause(err).
			Build()
	}
	return e.validator.Validate(m, fn)
}

// IsLowered reports whether fn has already been replaced by a wrapper.
func IsLowered(m *ir.Module, fn *ir.Function) bool {
	return !fn.Async && m.FunctionByName(fn.Name+PollSuffix) != nil
}
