package vm

import (
	"fmt"

	"github.com/pkg/errors"
)

// DefaultStackLimit bounds the combined operand and control stack depth
// before the emitted stack check calls the guard hook.
const DefaultStackLimit = 4096

// Scope is one link of the lexical scope chain. Catch blocks and context
// extensions push scopes; variable access by name walks the chain inwards
// out.
type Scope struct {
	parent *Scope
	vars   map[string]Value
}

func (s *Scope) depth() int {
	n := 0
	for ; s != nil; s = s.parent {
		n++
	}
	return n
}

// Lookup walks the chain for name.
func (s *Scope) Lookup(name string) (Value, bool) {
	for ; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return Undefined(), false
}

type handlerRecord struct {
	kind       HandlerKind
	pc         int // handler entry in the frame's root code object
	stackDepth int // operand stack depth to unwind to
	ctrlDepth  int // control stack depth to unwind to
	scopeDepth int // scope chain depth to unwind to
}

type frame struct {
	acc     Value
	stack   []Value
	control []int
	params  []Value
	locals  []Value
	scope   *Scope
}

// Context is one logical execution context: globals, the exception handler
// chain and the stack guard all live here. A Context must not be shared by
// concurrent executions without external synchronization.
type Context struct {
	Globals map[string]Value

	// StackLimit caps len(operand stack) + len(control stack); the emitted
	// stack check invokes OnStackGuard when exceeded and resumes.
	StackLimit   int
	OnStackGuard func(cx *Context)
	OnDebugBreak func(cx *Context)

	handlers    []handlerRecord
	stackChecks int
	execDepth   int
}

func NewContext() *Context {
	return &Context{
		Globals:    make(map[string]Value),
		StackLimit: DefaultStackLimit,
	}
}

// RegisterFunc installs a host function as a global.
func (cx *Context) RegisterFunc(name string, fn Func) {
	cx.Globals[name] = Function(fn)
}

// StackChecks reports how many times an emitted stack check executed.
func (cx *Context) StackChecks() int { return cx.stackChecks }

// HandlerDepth reports the number of active exception handler records.
func (cx *Context) HandlerDepth() int { return len(cx.handlers) }

// Run executes a compiled function body to completion and returns the value
// of its return statement (undefined when the body falls off the end).
// A *Thrown error reports an exception no handler consumed.
func (cx *Context) Run(co *CodeObject, args ...Value) (Value, error) {
	f := &frame{
		params: make([]Value, co.ParamCount()),
		locals: make([]Value, co.LocalCount()),
	}
	copy(f.params, args)

	baseHandlers := len(cx.handlers)
	err := cx.exec(f, co, true)
	// A completed or failed run never leaves handler records behind.
	cx.handlers = cx.handlers[:baseHandlers]
	if err != nil {
		return Undefined(), err
	}
	return f.acc, nil
}

const maxExecDepth = 64

// exec runs one code object against a frame. Stubs invoked through
// OpCallCode share the frame and recurse here; only the root invocation owns
// exception dispatch.
func (cx *Context) exec(f *frame, co *CodeObject, root bool) error {
	cx.execDepth++
	defer func() { cx.execDepth-- }()
	if cx.execDepth > maxExecDepth {
		return errors.New("vm: code object nesting too deep")
	}

	pc := 0
	for pc < co.InstrCount() {
		in := co.instr(pc)
		pc++
		var raised error

		switch in.Op {
		case OpNop:

		case OpLoadConst:
			f.acc = co.constant(in.A)
		case OpLoadGlobal:
			f.acc = cx.Globals[co.constant(in.A).Str()]
		case OpStoreGlobal:
			cx.Globals[co.constant(in.A).Str()] = f.acc
		case OpLoadLocal:
			f.acc = f.locals[in.A]
		case OpStoreLocal:
			f.locals[in.A] = f.acc
		case OpLoadParam:
			f.acc = f.params[in.A]
		case OpStoreParam:
			f.params[in.A] = f.acc
		case OpLoadContext:
			name := co.constant(in.A).Str()
			v, ok := f.scope.Lookup(name)
			if !ok {
				raised = NewThrown(String(fmt.Sprintf("ReferenceError: %s is not defined", name)))
				break
			}
			f.acc = v
		case OpStoreContext:
			name := co.constant(in.A).Str()
			stored := false
			for s := f.scope; s != nil; s = s.parent {
				if _, ok := s.vars[name]; ok {
					s.vars[name] = f.acc
					stored = true
					break
				}
			}
			if !stored {
				raised = NewThrown(String(fmt.Sprintf("ReferenceError: %s is not defined", name)))
			}

		case OpPush:
			f.stack = append(f.stack, f.acc)
		case OpPop:
			f.acc = f.stack[len(f.stack)-1]
			f.stack = f.stack[:len(f.stack)-1]
		case OpDrop:
			f.stack = f.stack[:len(f.stack)-int(in.A)]

		case OpJump:
			pc = int(in.A)
		case OpJumpIfTrue:
			if f.acc.Truthy() {
				pc = int(in.A)
			}
		case OpJumpIfFalse:
			if !f.acc.Truthy() {
				pc = int(in.A)
			}

		case OpCallSub:
			f.control = append(f.control, pc)
			pc = int(in.A)
		case OpRetSub:
			pc = f.control[len(f.control)-1]
			f.control = f.control[:len(f.control)-1]
		case OpDropSub:
			f.control = f.control[:len(f.control)-1]

		case OpCallCode:
			raised = cx.exec(f, co.desc.Codes[in.A], false)

		case OpCallFunction:
			raised = cx.callFunction(f, int(in.A))

		case OpBinary:
			left := f.stack[len(f.stack)-1]
			f.stack = f.stack[:len(f.stack)-1]
			f.acc = binaryOp(BinOp(in.A), left, f.acc)
		case OpCompare:
			left := f.stack[len(f.stack)-1]
			f.stack = f.stack[:len(f.stack)-1]
			f.acc = compare(Condition(in.A), in.B != 0, left, f.acc)

		case OpCallRuntime:
			raised = cx.callRuntime(f, RuntimeID(in.A))

		case OpPushHandler:
			cx.handlers = append(cx.handlers, handlerRecord{
				kind:       HandlerKind(in.B),
				pc:         int(in.A),
				stackDepth: len(f.stack),
				ctrlDepth:  len(f.control),
				scopeDepth: f.scope.depth(),
			})
		case OpPopHandler:
			if len(cx.handlers) == 0 {
				panic("vm: PopHandler with empty handler chain")
			}
			cx.handlers = cx.handlers[:len(cx.handlers)-1]

		case OpStackCheck:
			cx.stackChecks++
			if cx.StackLimit > 0 && len(f.stack)+len(f.control) > cx.StackLimit {
				if _, err := runtimeTable[RuntimeStackGuard].fn(cx, f, nil); err != nil {
					raised = err
				}
			}

		case OpReturn:
			return nil

		default:
			panic(fmt.Sprintf("vm: unknown opcode %s", in.Op))
		}

		if raised != nil {
			thrown, ok := raised.(*Thrown)
			if !ok || !root || len(cx.handlers) == 0 {
				// Real failures, and exceptions with nobody left to
				// consume them, propagate to the host.
				return raised
			}
			// Transfer to the top handler, removing its record as part
			// of the transfer. The thrown value travels in acc.
			h := cx.handlers[len(cx.handlers)-1]
			cx.handlers = cx.handlers[:len(cx.handlers)-1]
			f.stack = f.stack[:h.stackDepth]
			f.control = f.control[:h.ctrlDepth]
			for f.scope.depth() > h.scopeDepth {
				f.scope = f.scope.parent
			}
			f.acc = thrown.Value
			pc = h.pc
		}
	}
	return nil
}

// callFunction implements OpCallFunction: the callee name sits on top of the
// operand stack above argc arguments pushed left to right.
func (cx *Context) callFunction(f *frame, argc int) error {
	name := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]

	args := make([]Value, argc)
	copy(args, f.stack[len(f.stack)-argc:])
	f.stack = f.stack[:len(f.stack)-argc]

	callee, ok := cx.Globals[name.Str()]
	if !ok || callee.Kind() != KindFunction {
		return NewThrown(String(fmt.Sprintf("TypeError: %s is not a function", name)))
	}
	result, err := callee.fn(cx, args)
	if err != nil {
		return err
	}
	f.acc = result
	return nil
}

func (cx *Context) callRuntime(f *frame, id RuntimeID) error {
	if int(id) >= len(runtimeTable) {
		panic(fmt.Sprintf("vm: unknown runtime operation %d", int(id)))
	}
	def := runtimeTable[id]
	args := make([]Value, def.argc)
	copy(args, f.stack[len(f.stack)-def.argc:])
	f.stack = f.stack[:len(f.stack)-def.argc]

	result, err := def.fn(cx, f, args)
	if err != nil {
		return err
	}
	f.acc = result
	return nil
}
