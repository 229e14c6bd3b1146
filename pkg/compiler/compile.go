// Package compiler is a non-optimizing single-pass compiler: it translates
// an already-parsed function body directly into code for the pkg/vm
// machine, with no intermediate representation. Function bodies that use
// unsupported syntax are rejected up front so the caller can fall back to
// another strategy.
package compiler

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"basegen/pkg/asm"
	"basegen/pkg/ast"
	"basegen/pkg/vm"
)

// maxVisitDepth bounds AST recursion in the checker and the emission
// driver. Deeper trees abort compilation with ErrStackOverflow instead of
// exhausting the goroutine stack.
const maxVisitDepth = 768

// ErrStackOverflow reports a syntax tree nested too deeply to compile.
var ErrStackOverflow = errors.New("compiler: syntax tree too deep")

// UnsupportedError is the gate's static rejection of a function body. It is
// not a fault: the caller is expected to use a fallback compilation
// strategy. The reason exists for tracing.
type UnsupportedError struct {
	Reason string
	Pos    int
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported syntax: %s", e.Reason)
}

// Context carries the mutable state one compilation pipeline threads
// through: the stub cache and the code object allocator. It must not be
// shared by concurrent compilations without external synchronization.
type Context struct {
	Stubs *StubCache
	Alloc asm.Allocator
}

// NewContext builds a compilation context with an empty stub cache and the
// default allocator.
func NewContext() *Context {
	return &Context{
		Stubs: NewStubCache(nil),
		Alloc: asm.DefaultAllocator,
	}
}

// runtimeIDs maps the gateway operation names the front end may reference
// to their machine ids.
var runtimeIDs = map[string]vm.RuntimeID{
	"Throw":             vm.RuntimeThrow,
	"ReThrow":           vm.RuntimeReThrow,
	"PushContext":       vm.RuntimePushContext,
	"PushCatchContext":  vm.RuntimePushCatchContext,
	"PopContext":        vm.RuntimePopContext,
	"NewCatchExtension": vm.RuntimeNewCatchExtension,
	"DeclareGlobal":     vm.RuntimeDeclareGlobal,
	"StackGuard":        vm.RuntimeStackGuard,
	"TypeOf":            vm.RuntimeTypeOf,
	"DebugBreak":        vm.RuntimeDebugBreak,
}

// MakeCode compiles one function body. It returns the compiled code
// object, or an *UnsupportedError when the gate rejects the body, or
// ErrStackOverflow when the tree is too deep to traverse.
func MakeCode(fn *ast.FunctionLiteral, cc *Context) (*vm.CodeObject, error) {
	if cc == nil {
		cc = NewContext()
	}
	if err := Check(fn); err != nil {
		if u, ok := err.(*UnsupportedError); ok {
			glog.V(1).Infof("%s: %s, using fallback", fn.Name, u.Reason)
		}
		return nil, err
	}

	cg := newCodeGenerator(cc)
	co, err := cg.generate(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling %s", fn.Name)
	}
	return co, nil
}
