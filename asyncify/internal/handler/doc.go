// Package handler provides instruction-level handlers for async lowering.
//
// Each handler copies one instruction of the original async function into
// the poll function under construction. Handler categories:
//   - Passthrough: remap operands and blocks, emit, spill owned slots
//   - Suspend: rewrite await into save/return-pending/resume/recheck
//   - Control flow: return to completion, branch edge recording, deferred phis
package handler
