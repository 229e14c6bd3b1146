package compiler

import "fmt"

// exprContext says how an expression's result must be delivered to its
// syntactic consumer. Every expression compiles under exactly one context,
// chosen by its parent before recursion.
type exprContext int

const (
	// ctxEffect discards the result.
	ctxEffect exprContext = iota
	// ctxValue materializes the result in the accumulator or on the
	// operand stack, per the requested location.
	ctxValue
	// ctxTest branches to one of two labels on the result's truthiness
	// without materializing a value.
	ctxTest
	// ctxValueTest materializes and branches; the value is consumed only
	// on the true edge. Needed for short-circuit operators.
	ctxValueTest
	// ctxTestValue materializes and branches; the value is consumed only
	// on the false edge.
	ctxTestValue
)

func (c exprContext) String() string {
	switch c {
	case ctxEffect:
		return "effect"
	case ctxValue:
		return "value"
	case ctxTest:
		return "test"
	case ctxValueTest:
		return "value/test"
	case ctxTestValue:
		return "test/value"
	}
	return fmt.Sprintf("context%d", int(c))
}

type location int

const (
	locAccumulator location = iota
	locStack
)

// apply delivers the value currently in the accumulator according to the
// active expression context. Jumps never fall through in the test contexts.
func (cg *codeGenerator) apply() {
	switch cg.context {
	case ctxEffect:
		// Discarded.
	case ctxValue:
		if cg.location == locStack {
			cg.masm.Push()
		}
	case ctxTest:
		cg.masm.JumpIfTrue(cg.trueLabel)
		cg.masm.Jump(cg.falseLabel)
	case ctxValueTest:
		if cg.location == locStack {
			cg.masm.Push()
		}
		cg.masm.JumpIfTrue(cg.trueLabel)
		if cg.location == locStack {
			cg.masm.Drop(1)
		}
		cg.masm.Jump(cg.falseLabel)
	case ctxTestValue:
		if cg.location == locStack {
			cg.masm.Push()
		}
		cg.masm.JumpIfFalse(cg.falseLabel)
		if cg.location == locStack {
			cg.masm.Drop(1)
		}
		cg.masm.Jump(cg.trueLabel)
	default:
		panic(fmt.Sprintf("compiler: unreachable expression context %d", int(cg.context)))
	}
}
