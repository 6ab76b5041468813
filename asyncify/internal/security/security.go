// Package security rejects async functions that exceed resource limits
// before the lowering pass touches them.
package security

import (
	"fmt"

	"github.com/moikas-code/script-sub002/asyncify/internal/analysis"
	"github.com/moikas-code/script-sub002/errors"
	"github.com/moikas-code/script-sub002/ir"
)

// Default limits.
const (
	DefaultMaxInstructions  = 10_000
	DefaultMaxSuspendPoints = 100
	DefaultMaxLocals        = 1_000
)

// FunctionMatcher selects functions by name.
type FunctionMatcher interface {
	MatchFunction(name string) bool
}

// Limits bounds the work the lowering pass will accept. Zero values select
// the defaults.
type Limits struct {
	// Forbidden callees. A call to a matching function from an async
	// function is rejected.
	Forbidden        FunctionMatcher
	MaxInstructions  int
	MaxSuspendPoints int
	MaxLocals        int
	// AllowRecursion disables the self-reachability check.
	AllowRecursion bool
}

// DefaultLimits returns the default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxInstructions:  DefaultMaxInstructions,
		MaxSuspendPoints: DefaultMaxSuspendPoints,
		MaxLocals:        DefaultMaxLocals,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxInstructions <= 0 {
		l.MaxInstructions = DefaultMaxInstructions
	}
	if l.MaxSuspendPoints <= 0 {
		l.MaxSuspendPoints = DefaultMaxSuspendPoints
	}
	if l.MaxLocals <= 0 {
		l.MaxLocals = DefaultMaxLocals
	}
	return l
}

// Validator checks functions against a set of limits.
type Validator struct {
	limits Limits
}

// NewValidator creates a validator. Zero limits are replaced by defaults.
func NewValidator(l Limits) *Validator {
	return &Validator{limits: l.withDefaults()}
}

// Limits returns the effective limits.
func (v *Validator) Limits() Limits { return v.limits }

// Validate rejects fn when it has too many instructions, suspensions or
// locals, calls a forbidden function, or can reach itself through calls.
// It never mutates m or fn.
func (v *Validator) Validate(m *ir.Module, fn *ir.Function) error {
	path := []string{fn.Name}

	if n := analysis.CountInstructions(fn); n > v.limits.MaxInstructions {
		return errors.SecurityViolation(path, "instructions", n, v.limits.MaxInstructions)
	}
	if n := analysis.CountSuspensions(fn); n > v.limits.MaxSuspendPoints {
		return errors.SecurityViolation(path, "suspension points", n, v.limits.MaxSuspendPoints)
	}
	if n := countLocals(fn); n > v.limits.MaxLocals {
		return errors.SecurityViolation(path, "local variables", n, v.limits.MaxLocals)
	}

	if err := v.checkCalls(m, fn); err != nil {
		return err
	}

	if !v.limits.AllowRecursion && BuildCallGraph(m).Recursive(fn.ID) {
		return errors.Forbidden(path, "async function is recursive")
	}
	return nil
}

func (v *Validator) checkCalls(m *ir.Module, fn *ir.Function) error {
	if v.limits.Forbidden == nil || !fn.Async {
		return nil
	}
	var err error
	fn.Walk(func(b *ir.BasicBlock, _ int, in ir.Instruction) bool {
		call, ok := in.Imm.(ir.CallImm)
		if !ok {
			return true
		}
		callee := m.Function(call.Func)
		if callee == nil {
			return true
		}
		if v.limits.Forbidden.MatchFunction(callee.Name) {
			err = errors.Forbidden([]string{fn.Name, b.Name}, fmt.Sprintf("call to forbidden function %q", callee.Name))
			return false
		}
		return true
	})
	return err
}

func countLocals(fn *ir.Function) int {
	n := 0
	fn.Walk(func(_ *ir.BasicBlock, _ int, in ir.Instruction) bool {
		if analysis.LocalName(in) != "" {
			n++
		}
		return true
	})
	return n
}
