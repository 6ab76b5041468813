// Package errors provides structured error types for the async lowering pipeline.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: a path (function, block, slot), the IR type
// involved, the offending value and the limit it broke, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValidate, errors.KindSecurityViolation).
//		Path("fetch_all").
//		Value(101).
//		Limit(100).
//		Detail("async function has 101 suspension points").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.SecurityViolation(path, "instructions", 10001, 10000)
//	err := errors.Overflow(errors.PhaseLayout, path, "async state size overflow")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
