package vm

import "fmt"

// RuntimeID names one operation of the runtime call gateway. The set is
// fixed; compiled code invokes an operation by id with exactly the argument
// count recorded in the table below.
type RuntimeID int

const (
	RuntimeThrow RuntimeID = iota
	RuntimeReThrow
	RuntimePushContext
	RuntimePushCatchContext
	RuntimePopContext
	RuntimeNewCatchExtension
	RuntimeDeclareGlobal
	RuntimeStackGuard
	RuntimeTypeOf
	RuntimeDebugBreak
)

type runtimeDef struct {
	name string
	argc int
	fn   func(cx *Context, f *frame, args []Value) (Value, error)
}

var runtimeTable = [...]runtimeDef{
	RuntimeThrow:   {"Throw", 1, runtimeThrow},
	RuntimeReThrow: {"ReThrow", 1, runtimeThrow},
	RuntimePushContext: {"PushContext", 1, func(cx *Context, f *frame, args []Value) (Value, error) {
		if args[0].Kind() != KindObject {
			return Undefined(), NewThrown(String("TypeError: context extension is not an object"))
		}
		f.scope = &Scope{parent: f.scope, vars: args[0].obj}
		return args[0], nil
	}},
	RuntimePushCatchContext: {"PushCatchContext", 1, func(cx *Context, f *frame, args []Value) (Value, error) {
		if args[0].Kind() != KindObject {
			return Undefined(), NewThrown(String("TypeError: catch extension is not an object"))
		}
		f.scope = &Scope{parent: f.scope, vars: args[0].obj}
		return args[0], nil
	}},
	RuntimePopContext: {"PopContext", 0, func(cx *Context, f *frame, args []Value) (Value, error) {
		if f.scope == nil {
			panic("vm: PopContext with empty scope chain")
		}
		f.scope = f.scope.parent
		return f.acc, nil // preserves the accumulator
	}},
	RuntimeNewCatchExtension: {"NewCatchExtension", 2, func(cx *Context, f *frame, args []Value) (Value, error) {
		// args: value (the caught exception), key (the binding name). The
		// value comes first so a handler can spill the in-flight exception
		// before loading the name.
		return object(map[string]Value{args[1].String(): args[0]}), nil
	}},
	RuntimeDeclareGlobal: {"DeclareGlobal", 1, func(cx *Context, f *frame, args []Value) (Value, error) {
		name := args[0].String()
		if _, ok := cx.Globals[name]; !ok {
			cx.Globals[name] = Undefined()
		}
		return Undefined(), nil
	}},
	RuntimeStackGuard: {"StackGuard", 0, func(cx *Context, f *frame, args []Value) (Value, error) {
		if cx.OnStackGuard != nil {
			cx.OnStackGuard(cx)
		}
		return f.acc, nil // preserves the accumulator
	}},
	RuntimeTypeOf: {"TypeOf", 1, func(cx *Context, f *frame, args []Value) (Value, error) {
		return String(args[0].Kind().String()), nil
	}},
	RuntimeDebugBreak: {"DebugBreak", 0, func(cx *Context, f *frame, args []Value) (Value, error) {
		if cx.OnDebugBreak != nil {
			cx.OnDebugBreak(cx)
		}
		return f.acc, nil // preserves the accumulator
	}},
}

func runtimeThrow(cx *Context, f *frame, args []Value) (Value, error) {
	return Undefined(), NewThrown(args[0])
}

func (id RuntimeID) String() string {
	if int(id) < len(runtimeTable) {
		return runtimeTable[id].name
	}
	return fmt.Sprintf("runtime%d", int(id))
}

// RuntimeArgc returns the fixed argument count of a gateway operation.
func RuntimeArgc(id RuntimeID) int {
	return runtimeTable[id].argc
}

// Thrown is a raised exception travelling through the machine. When no
// handler record is left to consume it, Run returns it to the host.
type Thrown struct {
	Value Value
}

func (t *Thrown) Error() string {
	return fmt.Sprintf("uncaught exception: %s", t.Value)
}

// NewThrown wraps a value as a raised exception. Host functions use it to
// throw into compiled code.
func NewThrown(v Value) error {
	return &Thrown{Value: v}
}
