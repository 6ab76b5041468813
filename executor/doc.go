// Package executor runs IR modules, including functions lowered by package
// asyncify.
//
// A lowered async function returns a *Record, the packed state record its
// wrapper created. The executor polls the record by calling its poll
// function with the record and a Waker until the poll function returns
// Poll::Ready. Awaited values may be host futures (anything implementing
// Future), other records, or spawned tasks.
//
// # Usage
//
//	ex := executor.New(m, executor.Options{Logger: log})
//	v, err := ex.BlockOn(ctx, "fetch", 5, int64(7))
//
// External functions are resolved by name from Options.Hosts, falling back
// to the builtins ready, sleep and yield.
//
// # Values
//
// Integers of every width are int64, floats float64. Pointers are *Cell,
// structs *Struct and enums *Enum. The Record keeps scalars little-endian in
// a byte buffer at the offsets chosen by the layout planner and everything
// else in a side table, so reads and writes are bounds-checked against the
// size the wrapper requested.
package executor
