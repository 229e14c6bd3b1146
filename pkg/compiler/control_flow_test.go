package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basegen/pkg/ast"
	"basegen/pkg/vm"
)

func TestIfElse(t *testing.T) {
	src := `
name: f
params: [x]
body:
  - kind: if
    cond:
      kind: compare
      op: ">"
      left: {kind: var, name: x}
      right: {kind: number, num: 10}
    then:
      kind: return
      value: {kind: string, str: "big"}
    else:
      kind: return
      value: {kind: string, str: "small"}
`
	assert.Equal(t, "big", runSource(t, src, vm.Number(11)).Str())
	assert.Equal(t, "small", runSource(t, src, vm.Number(10)).Str())
}

func TestWhileLoop(t *testing.T) {
	// Sum 1..n.
	src := `
name: sum
params: [n]
locals: [acc]
body:
  - kind: while
    cond:
      kind: compare
      op: ">"
      left: {kind: var, name: n}
      right: {kind: number, num: 0}
    body:
      - kind: expr
        expr:
          kind: assign
          op: "+="
          target: {kind: var, name: acc}
          value: {kind: var, name: n}
      - kind: expr
        expr:
          kind: assign
          op: "-="
          target: {kind: var, name: n}
          value: {kind: number, num: 1}
  - kind: return
    value: {kind: var, name: acc}
`
	assert.Equal(t, 55.0, runSource(t, src, vm.Number(10)).Num())
	assert.Equal(t, 0.0, runSource(t, src, vm.Number(0)).Num())
}

func TestWhileStackCheckPerIteration(t *testing.T) {
	src := `
name: f
params: [n]
body:
  - kind: while
    cond:
      kind: compare
      op: ">"
      left: {kind: var, name: n}
      right: {kind: number, num: 0}
    body:
      - kind: expr
        expr:
          kind: assign
          op: "-="
          target: {kind: var, name: n}
          value: {kind: number, num: 1}
`
	co, _ := compileSource(t, src)
	cx := vm.NewContext()
	_, err := cx.Run(co, vm.Number(3))
	require.NoError(t, err)
	// One check at entry, then one before every condition test: the
	// condition runs four times for three iterations.
	assert.Equal(t, 5, cx.StackChecks())
}

func TestDoWhileRunsBodyAtLeastOnce(t *testing.T) {
	src := `
name: f
locals: [count]
body:
  - kind: dowhile
    cond: {kind: number, num: 0}
    body:
      - kind: expr
        expr:
          kind: count
          op: "++"
          prefix: true
          target: {kind: var, name: count}
  - kind: return
    value: {kind: var, name: count}
`
	assert.Equal(t, 1.0, runSource(t, src).Num())
}

func TestForLoop(t *testing.T) {
	src := `
name: f
params: [n]
locals: [i, acc]
body:
  - kind: for
    init:
      kind: expr
      expr:
        kind: assign
        op: "="
        target: {kind: var, name: i}
        value: {kind: number, num: 0}
    cond:
      kind: compare
      op: "<"
      left: {kind: var, name: i}
      right: {kind: var, name: n}
    next:
      kind: expr
      expr:
        kind: count
        op: "++"
        prefix: true
        target: {kind: var, name: i}
    body:
      - kind: expr
        expr:
          kind: assign
          op: "+="
          target: {kind: var, name: acc}
          value: {kind: var, name: i}
  - kind: return
    value: {kind: var, name: acc}
`
	assert.Equal(t, 10.0, runSource(t, src, vm.Number(5)).Num())
}

func TestForLoopWithoutClauses(t *testing.T) {
	src := `
name: f
locals: [i]
body:
  - kind: for
    body:
      - kind: expr
        expr:
          kind: count
          op: "++"
          prefix: true
          target: {kind: var, name: i}
      - kind: if
        cond:
          kind: compare
          op: ">="
          left: {kind: var, name: i}
          right: {kind: number, num: 3}
        then:
          kind: break
  - kind: return
    value: {kind: var, name: i}
`
	assert.Equal(t, 3.0, runSource(t, src).Num())
}

func TestBreakAndContinue(t *testing.T) {
	// Sum odd numbers below 10, stopping at 7.
	src := `
name: f
locals: [i, acc]
body:
  - kind: while
    cond:
      kind: compare
      op: "<"
      left: {kind: var, name: i}
      right: {kind: number, num: 10}
    body:
      - kind: expr
        expr:
          kind: count
          op: "++"
          prefix: true
          target: {kind: var, name: i}
      - kind: if
        cond:
          kind: compare
          op: "=="
          left:
            kind: binary
            op: "%"
            left: {kind: var, name: i}
            right: {kind: number, num: 2}
          right: {kind: number, num: 0}
        then:
          kind: continue
      - kind: if
        cond:
          kind: compare
          op: ">"
          left: {kind: var, name: i}
          right: {kind: number, num: 7}
        then:
          kind: break
      - kind: expr
        expr:
          kind: assign
          op: "+="
          target: {kind: var, name: acc}
          value: {kind: var, name: i}
  - kind: return
    value: {kind: var, name: acc}
`
	// 1 + 3 + 5 + 7 = 16, then 9 > 7 breaks.
	assert.Equal(t, 16.0, runSource(t, src).Num())
}

func TestLabeledBreak(t *testing.T) {
	src := `
name: f
locals: [i, j, acc]
body:
  - kind: while
    label: outer
    cond: {kind: number, num: 1}
    body:
      - kind: expr
        expr:
          kind: assign
          op: "="
          target: {kind: var, name: j}
          value: {kind: number, num: 0}
      - kind: while
        cond: {kind: number, num: 1}
        body:
          - kind: expr
            expr:
              kind: count
              op: "++"
              prefix: true
              target: {kind: var, name: j}
          - kind: expr
            expr:
              kind: count
              op: "++"
              prefix: true
              target: {kind: var, name: acc}
          - kind: if
            cond:
              kind: compare
              op: ">="
              left: {kind: var, name: acc}
              right: {kind: number, num: 5}
            then:
              kind: break
              label: outer
          - kind: if
            cond:
              kind: compare
              op: ">="
              left: {kind: var, name: j}
              right: {kind: number, num: 2}
            then:
              kind: break
      - kind: expr
        expr:
          kind: count
          op: "++"
          prefix: true
          target: {kind: var, name: i}
  - kind: return
    value:
      kind: binary
      op: "+"
      left:
        kind: binary
        op: "*"
        left: {kind: var, name: i}
        right: {kind: number, num: 100}
      right: {kind: var, name: acc}
`
	// Inner loop runs twice per outer pass; the labeled break fires on
	// the third pass with acc == 5 before i is incremented.
	assert.Equal(t, 205.0, runSource(t, src).Num())
}

func TestLabeledContinue(t *testing.T) {
	src := `
name: f
locals: [i, acc]
body:
  - kind: while
    label: outer
    cond:
      kind: compare
      op: "<"
      left: {kind: var, name: i}
      right: {kind: number, num: 3}
    body:
      - kind: expr
        expr:
          kind: count
          op: "++"
          prefix: true
          target: {kind: var, name: i}
      - kind: while
        cond: {kind: number, num: 1}
        body:
          - kind: expr
            expr:
              kind: count
              op: "++"
              prefix: true
              target: {kind: var, name: acc}
          - kind: continue
            label: outer
  - kind: return
    value: {kind: var, name: acc}
`
	// The labeled continue leaves the inner loop after one pass each
	// time.
	assert.Equal(t, 3.0, runSource(t, src).Num())
}

func TestLabeledBlockBreak(t *testing.T) {
	src := `
name: f
locals: [acc]
body:
  - kind: block
    label: done
    body:
      - kind: expr
        expr:
          kind: assign
          op: "="
          target: {kind: var, name: acc}
          value: {kind: number, num: 1}
      - kind: break
        label: done
      - kind: expr
        expr:
          kind: assign
          op: "="
          target: {kind: var, name: acc}
          value: {kind: number, num: 2}
  - kind: return
    value: {kind: var, name: acc}
`
	assert.Equal(t, 1.0, runSource(t, src).Num())
}

func TestUnresolvedBreakIsRejected(t *testing.T) {
	src := `
name: f
body:
  - kind: break
    label: nowhere
`
	fn, err := ast.DecodeProgram([]byte(src))
	require.NoError(t, err)
	_, err = MakeCode(fn, NewContext())
	var unsupported *UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	assert.Contains(t, unsupported.Reason, "nowhere")
}

func TestReturnFromLoop(t *testing.T) {
	src := `
name: f
params: [n]
locals: [i]
body:
  - kind: while
    cond: {kind: number, num: 1}
    body:
      - kind: expr
        expr:
          kind: count
          op: "++"
          prefix: true
          target: {kind: var, name: i}
      - kind: if
        cond:
          kind: compare
          op: ">="
          left: {kind: var, name: i}
          right: {kind: var, name: n}
        then:
          kind: return
          value: {kind: var, name: i}
`
	assert.Equal(t, 4.0, runSource(t, src, vm.Number(4)).Num())
}
