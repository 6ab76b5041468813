package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/moikas-code/script-sub002/ir"
)

// parseArgs converts the comma-separated -args list into runtime values
// using the parameter types.
func parseArgs(s string, params []ir.Param) ([]any, error) {
	var parts []string
	if strings.TrimSpace(s) != "" {
		parts = strings.Split(s, ",")
	}
	if len(parts) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(parts))
	}
	args := make([]any, len(parts))
	for i, raw := range parts {
		v, err := convertArg(strings.TrimSpace(raw), params[i].Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", params[i].Name, err)
		}
		args[i] = v
	}
	return args, nil
}

func convertArg(value string, t ir.Type) (any, error) {
	switch t.Kind {
	case ir.KindBool:
		return strconv.ParseBool(value)
	case ir.KindI8, ir.KindI16, ir.KindI32, ir.KindI64:
		return strconv.ParseInt(value, 0, 64)
	case ir.KindU8, ir.KindU16, ir.KindU32, ir.KindU64:
		v, err := strconv.ParseUint(value, 0, 64)
		return int64(v), err
	case ir.KindF32, ir.KindF64:
		return strconv.ParseFloat(value, 64)
	case ir.KindString:
		if u, err := strconv.Unquote(value); err == nil {
			return u, nil
		}
		return value, nil
	}
	return nil, fmt.Errorf("cannot pass a %s from the command line", t)
}
