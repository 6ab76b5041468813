// Package asyncify lowers async functions of an ir.Module into explicit,
// resumable state machines.
//
// # Overview
//
// An async function may suspend at await instructions. Lowering rewrites it
// into two synchronous functions that a runtime executor can drive:
//
//   - <name>_poll(self, waker) -> Poll<T>, a state machine that resumes the
//     body at the last suspension and returns Ready, Pending or Invalid
//   - <name>, whose body is replaced by a wrapper that allocates the state
//     record, stores the arguments into it and returns it as Future<T>
//
// # How It Works
//
// The pass runs in fixed order over one function:
//
//  1. Validate: instruction, suspension and local counts against limits,
//     forbidden callees and recursion
//  2. Analyze: discover locals and number suspension points from 1
//  3. Layout: assign every slot an 8-aligned offset in the state record
//  4. Build: emit the poll function
//  5. Wrap: replace the original body
//
// Poll function shape:
//
//	entry -> dispatch -> state_0                      (first poll)
//	                  -> check_state_N -> resume_N    (after suspending at N)
//	                  -> invalid_state                (unknown selector)
//
// At each await the future is saved, the selector is set to the await's
// state id and Pending is returned. resume_N polls the saved future and
// either returns Pending again or continues the original code.
//
// # Data Layout
//
// The state record is a packed byte record:
//
//	offset 0:  header (reserved for the runtime)
//	offset 8:  __state   u32 selector, 0 before the first poll
//	offset 16: __result  ready value once completed
//	offset 24: __waker   waker of the latest poll
//	offset 32+: parameters, locals, then __future_N/__future_result_N pairs
//
// Every slot is 8-byte aligned and the record is capped at 1 MiB.
//
// # Usage
//
//	info, err := asyncify.Transform(m, fn.ID, asyncify.Config{
//	    Forbidden: asyncify.NewWildcardMatcher([]string{"os.*"}),
//	    Verify:    true,
//	})
package asyncify
