package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basegen/pkg/ast"
	"basegen/pkg/vm"
)

// compileSource decodes one YAML program and compiles it.
func compileSource(t *testing.T, src string) (*vm.CodeObject, *Context) {
	t.Helper()
	fn, err := ast.DecodeProgram([]byte(src))
	require.NoError(t, err, "decode failed")
	cc := NewContext()
	co, err := MakeCode(fn, cc)
	require.NoError(t, err, "compile failed")
	return co, cc
}

// runSource compiles src and executes it with the given arguments.
func runSource(t *testing.T, src string, args ...vm.Value) vm.Value {
	t.Helper()
	co, _ := compileSource(t, src)
	got, err := vm.NewContext().Run(co, args...)
	require.NoError(t, err, "run failed\n%s", co.Disassemble())
	return got
}

// recorder installs a "log" host function and returns the values it saw.
func recorder(cx *vm.Context) *[]string {
	log := &[]string{}
	cx.RegisterFunc("log", func(_ *vm.Context, args []vm.Value) (vm.Value, error) {
		for _, a := range args {
			*log = append(*log, a.String())
		}
		return vm.Undefined(), nil
	})
	return log
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		op   string
		a, b float64
		want float64
	}{
		{"+", 2, 3, 5},
		{"-", 10, 4, 6},
		{"*", 6, 7, 42},
		{"/", 9, 2, 4.5},
		{"%", 9, 4, 1},
		{"|", 5, 3, 7},
		{"&", 5, 3, 1},
		{"^", 5, 3, 6},
		{"<<", 1, 4, 16},
		{">>", 32, 2, 8},
	}
	for _, tc := range tests {
		t.Run(tc.op, func(t *testing.T) {
			src := `
name: f
params: [a, b]
body:
  - kind: return
    value:
      kind: binary
      op: "` + tc.op + `"
      left: {kind: var, name: a}
      right: {kind: var, name: b}
`
			got := runSource(t, src, vm.Number(tc.a), vm.Number(tc.b))
			assert.Equal(t, tc.want, got.Num())
		})
	}
}

func TestStringConcat(t *testing.T) {
	src := `
name: f
params: [a, b]
body:
  - kind: return
    value:
      kind: binary
      op: "+"
      left: {kind: var, name: a}
      right: {kind: var, name: b}
`
	got := runSource(t, src, vm.String("foo"), vm.String("bar"))
	assert.Equal(t, "foobar", got.Str())
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		op   string
		a, b vm.Value
		want bool
	}{
		{"<", vm.Number(1), vm.Number(2), true},
		{">", vm.Number(1), vm.Number(2), false},
		{"<=", vm.Number(2), vm.Number(2), true},
		{">=", vm.Number(1), vm.Number(2), false},
		{"==", vm.Number(1), vm.String("1"), true},
		{"===", vm.Number(1), vm.String("1"), false},
		{"!=", vm.Number(1), vm.String("1"), false},
		{"!==", vm.Number(1), vm.String("1"), true},
	}
	for _, tc := range tests {
		t.Run(tc.op, func(t *testing.T) {
			src := `
name: f
params: [a, b]
body:
  - kind: return
    value:
      kind: compare
      op: "` + tc.op + `"
      left: {kind: var, name: a}
      right: {kind: var, name: b}
`
			got := runSource(t, src, tc.a, tc.b)
			require.Equal(t, vm.KindBool, got.Kind())
			assert.Equal(t, tc.want, got.Truthy())
		})
	}
}

func TestLocalAssignment(t *testing.T) {
	src := `
name: f
params: [a]
locals: [x]
body:
  - kind: expr
    expr:
      kind: assign
      op: "="
      target: {kind: var, name: x}
      value:
        kind: binary
        op: "*"
        left: {kind: var, name: a}
        right: {kind: number, num: 2}
  - kind: return
    value: {kind: var, name: x}
`
	got := runSource(t, src, vm.Number(21))
	assert.Equal(t, 42.0, got.Num())
}

func TestCompoundAssignment(t *testing.T) {
	src := `
name: f
locals: [x]
body:
  - kind: expr
    expr:
      kind: assign
      op: "="
      target: {kind: var, name: x}
      value: {kind: number, num: 10}
  - kind: expr
    expr:
      kind: assign
      op: "+="
      target: {kind: var, name: x}
      value: {kind: number, num: 5}
  - kind: expr
    expr:
      kind: assign
      op: "*="
      target: {kind: var, name: x}
      value: {kind: number, num: 2}
  - kind: return
    value: {kind: var, name: x}
`
	got := runSource(t, src)
	assert.Equal(t, 30.0, got.Num())
}

func TestAssignmentValue(t *testing.T) {
	// An assignment's value is the assigned value.
	src := `
name: f
locals: [x, y]
body:
  - kind: expr
    expr:
      kind: assign
      op: "="
      target: {kind: var, name: y}
      value:
        kind: assign
        op: "="
        target: {kind: var, name: x}
        value: {kind: number, num: 7}
  - kind: return
    value:
      kind: binary
      op: "+"
      left: {kind: var, name: x}
      right: {kind: var, name: y}
`
	got := runSource(t, src)
	assert.Equal(t, 14.0, got.Num())
}

func TestGlobalDeclarationAndStore(t *testing.T) {
	src := `
name: f
decls: [g]
body:
  - kind: expr
    expr:
      kind: assign
      op: "="
      target: {kind: var, name: g}
      value: {kind: number, num: 3}
`
	co, _ := compileSource(t, src)
	cx := vm.NewContext()
	_, err := cx.Run(co)
	require.NoError(t, err)
	assert.Equal(t, 3.0, cx.Globals["g"].Num())
}

func TestDeclaredGlobalDefaultsToUndefined(t *testing.T) {
	src := `
name: f
decls: [g]
body:
  - kind: return
    value: {kind: var, name: g}
`
	got := runSource(t, src)
	assert.Equal(t, vm.KindUndefined, got.Kind())
}

func TestCountOperations(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		prefix  bool
		want    float64 // value of the count expression
		wantVar float64 // value of x afterwards
	}{
		{"prefix increment", "++", true, 6, 6},
		{"postfix increment", "++", false, 5, 6},
		{"prefix decrement", "--", true, 4, 4},
		{"postfix decrement", "--", false, 5, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prefix := "false"
			if tc.prefix {
				prefix = "true"
			}
			src := `
name: f
locals: [x, r]
body:
  - kind: expr
    expr:
      kind: assign
      op: "="
      target: {kind: var, name: x}
      value: {kind: number, num: 5}
  - kind: expr
    expr:
      kind: assign
      op: "="
      target: {kind: var, name: r}
      value:
        kind: count
        op: "` + tc.op + `"
        prefix: ` + prefix + `
        target: {kind: var, name: x}
  - kind: return
    value:
      kind: binary
      op: "+"
      left:
        kind: binary
        op: "*"
        left: {kind: var, name: r}
        right: {kind: number, num: 100}
      right: {kind: var, name: x}
`
			got := runSource(t, src)
			assert.Equal(t, tc.want*100+tc.wantVar, got.Num())
		})
	}
}

func TestCountForEffect(t *testing.T) {
	src := `
name: f
params: [x]
body:
  - kind: expr
    expr:
      kind: count
      op: "++"
      prefix: false
      target: {kind: var, name: x}
  - kind: return
    value: {kind: var, name: x}
`
	got := runSource(t, src, vm.Number(1))
	assert.Equal(t, 2.0, got.Num())
}

func TestUnaryNot(t *testing.T) {
	src := `
name: f
params: [x]
body:
  - kind: return
    value:
      kind: unary
      op: "!"
      expr: {kind: var, name: x}
`
	assert.True(t, runSource(t, src, vm.Number(0)).Truthy())
	assert.False(t, runSource(t, src, vm.Number(3)).Truthy())
	assert.True(t, runSource(t, src, vm.String("")).Truthy())
}

func TestUnaryTypeof(t *testing.T) {
	src := `
name: f
params: [x]
body:
  - kind: return
    value:
      kind: unary
      op: "typeof"
      expr: {kind: var, name: x}
`
	assert.Equal(t, "number", runSource(t, src, vm.Number(1)).Str())
	assert.Equal(t, "string", runSource(t, src, vm.String("s")).Str())
	assert.Equal(t, "undefined", runSource(t, src).Str())
}

func TestUnaryVoid(t *testing.T) {
	src := `
name: f
body:
  - kind: return
    value:
      kind: unary
      op: "void"
      expr: {kind: number, num: 3}
`
	assert.Equal(t, vm.KindUndefined, runSource(t, src).Kind())
}

func TestCommaKeepsRight(t *testing.T) {
	src := `
name: f
body:
  - kind: return
    value:
      kind: binary
      op: ","
      left: {kind: number, num: 1}
      right: {kind: number, num: 2}
`
	assert.Equal(t, 2.0, runSource(t, src).Num())
}

func TestConditionalExpression(t *testing.T) {
	src := `
name: f
params: [x]
body:
  - kind: return
    value:
      kind: cond
      cond: {kind: var, name: x}
      then: {kind: string, str: "yes"}
      else: {kind: string, str: "no"}
`
	assert.Equal(t, "yes", runSource(t, src, vm.Number(1)).Str())
	assert.Equal(t, "no", runSource(t, src, vm.Number(0)).Str())
}

func TestHostFunctionCall(t *testing.T) {
	src := `
name: f
params: [a, b]
body:
  - kind: return
    value:
      kind: call
      callee: {kind: var, name: add}
      args:
        - {kind: var, name: a}
        - {kind: var, name: b}
`
	co, _ := compileSource(t, src)
	cx := vm.NewContext()
	cx.RegisterFunc("add", func(_ *vm.Context, args []vm.Value) (vm.Value, error) {
		return vm.Number(args[0].Num() + args[1].Num()), nil
	})
	got, err := cx.Run(co, vm.Number(2), vm.Number(40))
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.Num())
}

func TestCallUndefinedFunctionThrows(t *testing.T) {
	src := `
name: f
body:
  - kind: expr
    expr:
      kind: call
      callee: {kind: var, name: missing}
      args: []
`
	co, _ := compileSource(t, src)
	_, err := vm.NewContext().Run(co)
	var thrown *vm.Thrown
	require.ErrorAs(t, err, &thrown)
	assert.Contains(t, thrown.Value.Str(), "missing")
}

func TestImplicitReturnUndefined(t *testing.T) {
	src := `
name: f
body:
  - kind: expr
    expr: {kind: number, num: 5}
`
	assert.Equal(t, vm.KindUndefined, runSource(t, src).Kind())
}

func TestDebuggerStatement(t *testing.T) {
	src := `
name: f
body:
  - kind: debugger
  - kind: return
    value: {kind: number, num: 1}
`
	co, _ := compileSource(t, src)
	cx := vm.NewContext()
	hits := 0
	cx.OnDebugBreak = func(*vm.Context) { hits++ }
	got, err := cx.Run(co)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1.0, got.Num())
}

func TestRuntimeCallTypeOf(t *testing.T) {
	src := `
name: f
params: [x]
body:
  - kind: return
    value:
      kind: runtime
      name: TypeOf
      args:
        - {kind: var, name: x}
`
	assert.Equal(t, "boolean", runSource(t, src, vm.Bool(true)).Str())
}

func TestCatchExtensionExpression(t *testing.T) {
	// A catch extension object pushed as a scope makes its single
	// property visible by name.
	src := `
name: f
body:
  - kind: expr
    expr:
      kind: runtime
      name: PushCatchContext
      args:
        - kind: catchext
          name: v
          value: {kind: number, num: 9}
  - kind: return
    value: {kind: var, name: v, slot: context}
`
	assert.Equal(t, 9.0, runSource(t, src).Num())
}
