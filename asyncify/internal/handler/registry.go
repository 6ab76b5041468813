package handler

import "github.com/moikas-code/script-sub002/ir"

// Handler transforms a single instruction of the original function.
//
// Handlers are stateless and can be shared across transformations.
// All mutable state lives in Context.
type Handler interface {
	Handle(ctx *Context, instr ir.Instruction) error
}

// Func is an adapter to use ordinary functions as Handlers.
//
// Example:
//
//	r.Register(ir.OpConst, handler.Func(func(ctx *Context, instr ir.Instruction) error {
//	    return ctx.Copy(instr)
//	}), "const")
type Func func(ctx *Context, instr ir.Instruction) error

// Handle implements Handler.
func (f Func) Handle(ctx *Context, instr ir.Instruction) error {
	return f(ctx, instr)
}

// Registry maps ops to their handlers.
type Registry struct {
	handlers [256]Handler
	names    [256]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a handler for a single op, replacing any previous one.
func (r *Registry) Register(op ir.Op, h Handler, name string) {
	r.handlers[op] = h
	r.names[op] = name
}

// RegisterFunc registers a function as a handler for an op.
func (r *Registry) RegisterFunc(op ir.Op, fn func(*Context, ir.Instruction) error, name string) {
	r.Register(op, Func(fn), name)
}

// RegisterBulk registers the same handler for multiple ops.
func (r *Registry) RegisterBulk(ops []ir.Op, h Handler, name string) {
	for _, op := range ops {
		r.handlers[op] = h
		r.names[op] = name
	}
}

// Get returns the handler for an op, or nil if not registered.
func (r *Registry) Get(op ir.Op) Handler {
	return r.handlers[op]
}

// Has returns true if a handler is registered for the op.
func (r *Registry) Has(op ir.Op) bool {
	return r.handlers[op] != nil
}

// Name returns the name of the handler for an op.
func (r *Registry) Name(op ir.Op) string {
	return r.names[op]
}

// MissingHandlers returns the ops that have no registered handler.
func (r *Registry) MissingHandlers(ops []ir.Op) []ir.Op {
	var missing []ir.Op
	for _, op := range ops {
		if r.handlers[op] == nil {
			missing = append(missing, op)
		}
	}
	return missing
}

// Default returns a registry covering every op: passthrough for ordinary
// instructions plus the suspend and control-flow rewrites.
func Default() *Registry {
	r := NewRegistry()
	RegisterPassthroughHandlers(r)
	RegisterSuspendHandlers(r)
	RegisterControlHandlers(r)
	return r
}
