package ir

import (
	"errors"
	"fmt"
)

// ErrDuplicateFunction is returned when a function name is already taken.
var ErrDuplicateFunction = errors.New("duplicate function name")

// Module owns functions and assigns their ids.
type Module struct {
	byName map[string]FunctionID
	Name   string
	funcs  []*Function
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name, byName: make(map[string]FunctionID)}
}

// CreateFunction registers a new function with no body.
func (m *Module) CreateFunction(name string, params []Param, ret Type, async bool) (*Function, error) {
	if _, ok := m.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFunction, name)
	}
	f := newFunction(FunctionID(len(m.funcs)), name, params, ret)
	f.Async = async
	m.funcs = append(m.funcs, f)
	m.byName[name] = f.ID
	return f, nil
}

// DeclareExternal registers a host function. External functions have no body
// and are resolved by name at run time.
func (m *Module) DeclareExternal(name string, params []Param, ret Type) (*Function, error) {
	f, err := m.CreateFunction(name, params, ret, false)
	if err != nil {
		return nil, err
	}
	f.External = true
	return f, nil
}

// Function returns the function with the given id, or nil.
func (m *Module) Function(id FunctionID) *Function {
	if int(id) >= len(m.funcs) {
		return nil
	}
	return m.funcs[id]
}

// FunctionByName returns the function with the given name, or nil.
func (m *Module) FunctionByName(name string) *Function {
	id, ok := m.byName[name]
	if !ok {
		return nil
	}
	return m.funcs[id]
}

// Functions returns all functions in id order.
func (m *Module) Functions() []*Function {
	out := make([]*Function, len(m.funcs))
	copy(out, m.funcs)
	return out
}

// Len returns the number of functions.
func (m *Module) Len() int { return len(m.funcs) }
