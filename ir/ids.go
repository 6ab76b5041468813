package ir

import "strconv"

// ValueID identifies an SSA value within a function.
type ValueID uint32

// BlockID identifies a basic block within a function.
type BlockID uint32

// FunctionID identifies a function within a module.
type FunctionID uint32

func (v ValueID) String() string    { return "%" + strconv.FormatUint(uint64(v), 10) }
func (b BlockID) String() string    { return "bb" + strconv.FormatUint(uint64(b), 10) }
func (f FunctionID) String() string { return "@" + strconv.FormatUint(uint64(f), 10) }

// Poll result tags produced by poll functions and PollFuture.
const (
	PollReady   uint32 = 0
	PollPending uint32 = 1
	// PollInvalid is returned by a poll function whose selector names no state.
	PollInvalid uint32 = 2
)

// Poll variant names.
const (
	PollEnum       = "Poll"
	PollReadyName  = "Ready"
	PollPendingRef = "Pending"
	PollInvalidRef = "Invalid"
)

// StateSelectorOffset is the byte offset of the 32-bit state selector read by
// GetAsyncState and written by SetAsyncState. The first 8 bytes of every state
// record are a reserved header, so the selector is the first allocated field.
const StateSelectorOffset uint32 = 8
