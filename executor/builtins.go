package executor

import (
	"github.com/moikas-code/script-sub002/errors"
)

// Builtin host function names.
const (
	BuiltinReady = "ready"
	BuiltinSleep = "sleep"
	BuiltinYield = "yield"
)

// Builtins returns the host functions every executor provides:
//
//	ready(v)    a future that is ready with v
//	sleep(n, v) a future that is pending for n polls, then ready with v
//	yield()     a future that is pending once
func Builtins() map[string]HostFunc {
	return map[string]HostFunc{
		BuiltinReady: func(args []any) (any, error) {
			if len(args) != 1 {
				return nil, arity(BuiltinReady, len(args), 1)
			}
			return Ready(args[0]), nil
		},
		BuiltinSleep: func(args []any) (any, error) {
			if len(args) != 2 {
				return nil, arity(BuiltinSleep, len(args), 2)
			}
			n, ok := args[0].(int64)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseRuntime, []string{BuiltinSleep, "n"}, "integer", args[0])
			}
			return NewCountdown(int(n), args[1]), nil
		},
		BuiltinYield: func(args []any) (any, error) {
			if len(args) != 0 {
				return nil, arity(BuiltinYield, len(args), 0)
			}
			return NewCountdown(1, nil), nil
		},
	}
}

func arity(name string, got, want int) error {
	return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
		Path(name).
		Detail("got %d arguments, want %d", got, want).
		Build()
}
