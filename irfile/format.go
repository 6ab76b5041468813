package irfile

// File is the top-level program document.
//
//	module: demo
//	externals:
//	  - name: ready
//	    params: [{name: v, type: i32}]
//	    returns: Future<i32>
//	functions:
//	  - name: fetch
//	    async: true
//	    params: [{name: a, type: i32}]
//	    returns: i32
//	    blocks:
//	      - name: entry
//	        instrs:
//	          - {let: f, op: call, func: ready, args: [a], type: Future<i32>}
//	          - {let: x, op: await, args: [f], type: i32}
//	          - {op: return, args: [x]}
type File struct {
	Module    string     `yaml:"module"`
	Externals []External `yaml:"externals,omitempty"`
	Functions []Function `yaml:"functions"`
}

// Param is a named, typed parameter.
type Param struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// External declares a host function.
type External struct {
	Name    string  `yaml:"name"`
	Returns string  `yaml:"returns,omitempty"`
	Params  []Param `yaml:"params,omitempty"`
}

// Function is a function with a body. The first block is the entry.
type Function struct {
	Name    string  `yaml:"name"`
	Returns string  `yaml:"returns,omitempty"`
	Params  []Param `yaml:"params,omitempty"`
	Blocks  []Block `yaml:"blocks"`
	Async   bool    `yaml:"async,omitempty"`
}

// Block is a named instruction list ending in a terminator.
type Block struct {
	Name   string  `yaml:"name"`
	Instrs []Instr `yaml:"instrs"`
}

// Instr is one instruction. Which fields apply depends on Op:
//
//	const               type, value
//	binary/unary        kind (add, sub, ..., neg, not), type, args
//	compare             kind (eq, ne, lt, le, gt, ge), args
//	cast                type, args
//	call                func, type, args
//	alloc               type
//	load                type, args [ptr]
//	store               args [ptr, value]
//	load_field          field, type, args [object]
//	store_field         field, args [object, value]
//	construct_struct    name, type, fields
//	construct_enum      name, variant, tag, type, args
//	get_enum_tag        args
//	extract_enum_data   index, type, args
//	phi                 type, incoming
//	return              args [] or [value]
//	branch              target
//	cond_branch         args [cond], then, else
//	await               type, args [future]
//	poll_future         type, args [future, waker]
//	create_async_state  state, size, type, func
//	store_async_state   offset, args [state, value]
//	load_async_state    offset, type, args [state]
//	get_async_state     args [state]
//	set_async_state     state, args [state record]
//
// Operands name a parameter, an earlier or later let, or a raw value id
// written %n.
type Instr struct {
	Let      string     `yaml:"let,omitempty"`
	Op       string     `yaml:"op"`
	Type     string     `yaml:"type,omitempty"`
	Value    string     `yaml:"value,omitempty"`
	Kind     string     `yaml:"kind,omitempty"`
	Func     string     `yaml:"func,omitempty"`
	Field    string     `yaml:"field,omitempty"`
	Name     string     `yaml:"name,omitempty"`
	Variant  string     `yaml:"variant,omitempty"`
	Target   string     `yaml:"target,omitempty"`
	Then     string     `yaml:"then,omitempty"`
	Else     string     `yaml:"else,omitempty"`
	Args     []string   `yaml:"args,omitempty"`
	Fields   []FieldRef `yaml:"fields,omitempty"`
	Incoming []PhiRef   `yaml:"incoming,omitempty"`
	Tag      uint32     `yaml:"tag,omitempty"`
	Index    uint32     `yaml:"index,omitempty"`
	Offset   uint32     `yaml:"offset,omitempty"`
	Size     uint32     `yaml:"size,omitempty"`
	State    uint32     `yaml:"state,omitempty"`
}

// FieldRef initializes one struct field.
type FieldRef struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// PhiRef is one incoming edge of a phi.
type PhiRef struct {
	Value string `yaml:"value"`
	Block string `yaml:"block"`
}
