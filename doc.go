// Package script lowers async functions of the script compiler's IR into
// explicit state machines and runs the result.
//
// An async function is rewritten into two functions: a poll function
// <name>_poll that resumes the computation from a state selector stored in a
// packed state record, and a synchronous wrapper that allocates the record,
// stores the parameters into it and returns it as a Future.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct responsibilities:
//
//	script/
//	├── ir/          IR types, instructions, builder, printer, verifier
//	├── errors/      Structured Phase/Kind errors
//	├── asyncify/    Public lowering API: Transform, TransformAll, Config
//	│   └── internal/
//	│       ├── security/  Instruction, suspend point and local limits
//	│       ├── analysis/  Suspend point and local discovery
//	│       ├── layout/    State record planning
//	│       ├── handler/   Per-op rewriting into the poll function
//	│       └── engine/    Pipeline, poll function and wrapper construction
//	├── executor/    State records, futures, IR interpreter, task executor
//	├── irfile/      YAML program files to and from ir.Module
//	├── config/      asyncc.yaml limits and logging
//	├── cmd/asyncc/  CLI: lower, dump, run, interactive stepper
//	└── testbed/     End-to-end programs with Go hosts
//
// # Quick Start
//
// Lower a program and run one of its async functions:
//
//	m, err := irfile.Load("prog.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := asyncify.TransformAll(m, asyncify.Config{Verify: true}); err != nil {
//	    log.Fatal(err)
//	}
//
//	ex := executor.New(m, executor.Options{Logger: zap.NewNop()})
//	v, err := ex.BlockOn(ctx, "sum", 2, 3)
//	fmt.Println(v) // 5
//
// # State Records
//
// Every record starts with an 8-byte header followed by the 4-byte state
// selector at offset 8, the result slot, the waker slot, the parameters, the
// locals and one future/result slot pair per suspend point. Offsets are
// 8-aligned and records are capped at 1 MiB.
//
// # Host Functions
//
// External functions are resolved by name when called:
//
//	ex := executor.New(m, executor.Options{
//	    Hosts: map[string]executor.HostFunc{
//	        "fetch": func(args []any) (any, error) {
//	            return executor.Ready(args[0]), nil
//	        },
//	    },
//	})
//
// # Thread Safety
//
// Lowering does no locking; concurrent transforms must not share a Module.
// An Executor polls its tasks on one goroutine, but futures may wake tasks
// from any goroutine.
package script
