package compiler

import (
	"basegen/pkg/asm"
	"basegen/pkg/vm"
)

// The lexically nested control structures of the function being compiled
// are tracked as a contiguous stack of tagged records, pushed on entry and
// popped on exit in strict LIFO order. Break, continue and return resolve
// their targets by walking the stack outward from the innermost record,
// emitting each crossed record's exit actions exactly once.

type nestKind int

const (
	// nestBreakable is a labeled block: a break target only.
	nestBreakable nestKind = iota
	// nestIteration is a loop: a break and continue target.
	nestIteration
	// nestTryCatch guards a try body with a catch handler.
	nestTryCatch
	// nestTryFinally guards a try body with a finally handler.
	nestTryFinally
	// nestFinally is an executing finally body, entered by subroutine
	// call with the in-flight accumulator saved on the operand stack.
	nestFinally
	// nestCatchScope is an executing catch body with its extension scope
	// pushed on the scope chain.
	nestCatchScope
)

type nestedStatement struct {
	kind           nestKind
	label          string
	breakTarget    *asm.Label
	continueTarget *asm.Label
	finallyEntry   *asm.Label

	// stackSlots counts operand stack entries owned by this record that a
	// crossing exit must discard.
	stackSlots int
}

func (n *nestedStatement) isBreakTarget(label string) bool {
	switch n.kind {
	case nestIteration:
		return label == "" || label == n.label
	case nestBreakable:
		return label != "" && label == n.label
	}
	return false
}

func (n *nestedStatement) isContinueTarget(label string) bool {
	return n.kind == nestIteration && (label == "" || label == n.label)
}

func (cg *codeGenerator) pushNested(n nestedStatement) {
	cg.nesting = append(cg.nesting, n)
}

func (cg *codeGenerator) popNested() {
	cg.nesting = cg.nesting[:len(cg.nesting)-1]
}

// exitNested emits the actions a non-local transfer performs when crossing
// one record, given the operand stack slots accumulated so far, and returns
// the accumulation for the next record out. Plain breakables and loops only
// accumulate; try records discard eagerly because their handler must be
// popped at the exact depth it was pushed, and a crossed finally body runs
// before the unwind continues.
func (cg *codeGenerator) exitNested(n *nestedStatement, depth int) int {
	switch n.kind {
	case nestBreakable, nestIteration, nestCatchScope:
		if n.kind == nestCatchScope {
			cg.masm.CallRuntime(vm.RuntimePopContext)
		}
		return depth + n.stackSlots
	case nestTryCatch:
		cg.masm.Drop(depth)
		cg.masm.PopHandler()
		return 0
	case nestTryFinally:
		cg.masm.Drop(depth)
		cg.masm.PopHandler()
		cg.masm.CallLabel(n.finallyEntry)
		return 0
	case nestFinally:
		// Abandon the pending resumption: the saved return position is
		// discarded along with the spilled accumulator.
		cg.masm.DropSub()
		return depth + n.stackSlots
	}
	panic("compiler: unreachable nested statement kind")
}
