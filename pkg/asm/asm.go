// Package asm is the assembler primitive the compiler emits through: label
// creation and binding, jumps, calls, accumulator and operand-stack traffic,
// and comment/position recording. It knows nothing about the syntax tree.
package asm

import (
	"fmt"

	"basegen/pkg/vm"
)

// Label marks a code position. Labels may be used before they are bound;
// every forward reference is patched when Bind runs.
type Label struct {
	pos   int
	bound bool
	refs  []int
}

// Bound reports whether the label has been given a position.
func (l *Label) Bound() bool { return l.bound }

// Allocator creates code objects. The default allocator never fails; tests
// and fallible callers may substitute one that does.
type Allocator interface {
	NewCode(d vm.CodeDesc) (*vm.CodeObject, error)
}

type heapAllocator struct{}

func (heapAllocator) NewCode(d vm.CodeDesc) (*vm.CodeObject, error) {
	return vm.NewCodeObject(d), nil
}

// DefaultAllocator is the infallible code object allocator.
var DefaultAllocator Allocator = heapAllocator{}

type constKey struct {
	kind vm.Kind
	num  float64
	str  string
}

// Assembler builds one code object. It is single use: after Code succeeds
// the assembler must not emit again.
type Assembler struct {
	alloc     Allocator
	instrs    []vm.Instr
	consts    []vm.Value
	constIdx  map[constKey]int
	codes     []*vm.CodeObject
	comments  map[int]string
	positions map[int]int
	labels    []*Label

	generatingStub bool
	allowStubCalls bool
	finalized      bool
}

func New(alloc Allocator) *Assembler {
	if alloc == nil {
		alloc = DefaultAllocator
	}
	return &Assembler{
		alloc:     alloc,
		constIdx:  make(map[constKey]int),
		comments:  make(map[int]string),
		positions: make(map[int]int),
	}
}

// SetGeneratingStub marks the assembler as generating a stub body. Calls to
// other code objects are then rejected unless explicitly allowed.
func (a *Assembler) SetGeneratingStub(on bool) { a.generatingStub = on }

// SetAllowStubCalls permits calls to other code objects inside a stub body.
func (a *Assembler) SetAllowStubCalls(on bool) { a.allowStubCalls = on }

func (a *Assembler) emit(op vm.Opcode, operands ...int32) int {
	if a.finalized {
		panic("asm: emit after finalization")
	}
	in := vm.Instr{Op: op}
	if len(operands) > 0 {
		in.A = operands[0]
	}
	if len(operands) > 1 {
		in.B = operands[1]
	}
	a.instrs = append(a.instrs, in)
	return len(a.instrs) - 1
}

func (a *Assembler) constant(v vm.Value) int32 {
	switch v.Kind() {
	case vm.KindUndefined, vm.KindNull, vm.KindBool, vm.KindNumber, vm.KindString:
		key := constKey{kind: v.Kind(), num: v.Num(), str: v.Str()}
		if idx, ok := a.constIdx[key]; ok {
			return int32(idx)
		}
		a.constIdx[key] = len(a.consts)
	}
	a.consts = append(a.consts, v)
	return int32(len(a.consts) - 1)
}

// NewLabel returns an unbound label owned by this assembler.
func (a *Assembler) NewLabel() *Label {
	l := &Label{}
	a.labels = append(a.labels, l)
	return l
}

// Bind fixes a label to the next emitted position and patches every forward
// reference recorded so far.
func (a *Assembler) Bind(l *Label) {
	if l.bound {
		panic("asm: label bound twice")
	}
	l.bound = true
	l.pos = len(a.instrs)
	for _, ref := range l.refs {
		a.instrs[ref].A = int32(l.pos)
	}
	l.refs = nil
}

func (a *Assembler) emitBranch(op vm.Opcode, l *Label, extra ...int32) {
	target := int32(-1)
	if l.bound {
		target = int32(l.pos)
	}
	idx := a.emit(op, append([]int32{target}, extra...)...)
	if !l.bound {
		l.refs = append(l.refs, idx)
	}
}

func (a *Assembler) Jump(l *Label)        { a.emitBranch(vm.OpJump, l) }
func (a *Assembler) JumpIfTrue(l *Label)  { a.emitBranch(vm.OpJumpIfTrue, l) }
func (a *Assembler) JumpIfFalse(l *Label) { a.emitBranch(vm.OpJumpIfFalse, l) }

// CallLabel emits a subroutine call to a label within this code object,
// used to reach finally blocks from every exit path.
func (a *Assembler) CallLabel(l *Label) { a.emitBranch(vm.OpCallSub, l) }

func (a *Assembler) RetSub()  { a.emit(vm.OpRetSub) }
func (a *Assembler) DropSub() { a.emit(vm.OpDropSub) }

func (a *Assembler) LoadConst(v vm.Value) { a.emit(vm.OpLoadConst, a.constant(v)) }

func (a *Assembler) LoadGlobal(name string)  { a.emit(vm.OpLoadGlobal, a.constant(vm.String(name))) }
func (a *Assembler) StoreGlobal(name string) { a.emit(vm.OpStoreGlobal, a.constant(vm.String(name))) }
func (a *Assembler) LoadLocal(idx int)       { a.emit(vm.OpLoadLocal, int32(idx)) }
func (a *Assembler) StoreLocal(idx int)      { a.emit(vm.OpStoreLocal, int32(idx)) }
func (a *Assembler) LoadParam(idx int)       { a.emit(vm.OpLoadParam, int32(idx)) }
func (a *Assembler) StoreParam(idx int)      { a.emit(vm.OpStoreParam, int32(idx)) }
func (a *Assembler) LoadContext(name string) {
	a.emit(vm.OpLoadContext, a.constant(vm.String(name)))
}
func (a *Assembler) StoreContext(name string) {
	a.emit(vm.OpStoreContext, a.constant(vm.String(name)))
}

func (a *Assembler) Push() { a.emit(vm.OpPush) }
func (a *Assembler) Pop()  { a.emit(vm.OpPop) }

// Drop discards n operand stack slots; n == 0 emits nothing.
func (a *Assembler) Drop(n int) {
	if n < 0 {
		panic("asm: negative drop count")
	}
	if n > 0 {
		a.emit(vm.OpDrop, int32(n))
	}
}

func (a *Assembler) Binary(op vm.BinOp) { a.emit(vm.OpBinary, int32(op)) }

func (a *Assembler) Compare(cond vm.Condition, strict bool) {
	s := int32(0)
	if strict {
		s = 1
	}
	a.emit(vm.OpCompare, int32(cond), s)
}

// CallCode emits a call to another code object. Stub bodies may not call
// other code objects unless SetAllowStubCalls was used.
func (a *Assembler) CallCode(co *vm.CodeObject) {
	if a.generatingStub && !a.allowStubCalls {
		panic(fmt.Sprintf("asm: stub calls %q but stub calls are not allowed", co.Name()))
	}
	a.codes = append(a.codes, co)
	a.emit(vm.OpCallCode, int32(len(a.codes)-1))
}

func (a *Assembler) CallFunction(argc int) { a.emit(vm.OpCallFunction, int32(argc)) }

func (a *Assembler) CallRuntime(id vm.RuntimeID) { a.emit(vm.OpCallRuntime, int32(id)) }

func (a *Assembler) PushHandler(kind vm.HandlerKind, entry *Label) {
	a.emitBranch(vm.OpPushHandler, entry, int32(kind))
}

func (a *Assembler) PopHandler() { a.emit(vm.OpPopHandler) }

func (a *Assembler) StackCheck() { a.emit(vm.OpStackCheck) }

func (a *Assembler) Return() { a.emit(vm.OpReturn) }

// RecordComment attaches a comment to the next emitted instruction.
func (a *Assembler) RecordComment(format string, args ...any) {
	pos := len(a.instrs)
	c := fmt.Sprintf(format, args...)
	if prev, ok := a.comments[pos]; ok {
		c = prev + "; " + c
	}
	a.comments[pos] = c
}

// RecordPosition attaches a source position to the next emitted instruction.
func (a *Assembler) RecordPosition(pos int) {
	a.positions[len(a.instrs)] = pos
}

// InstrCount reports the number of instructions emitted so far.
func (a *Assembler) InstrCount() int { return len(a.instrs) }

// Code finalizes the assembler into an immutable code object through the
// allocator. Unbound labels are a compiler defect and panic.
func (a *Assembler) Code(name string, params, locals int) (*vm.CodeObject, error) {
	if a.finalized {
		panic("asm: Code called twice")
	}
	for _, l := range a.labels {
		if !l.bound && len(l.refs) > 0 {
			panic(fmt.Sprintf("asm: unbound label referenced in %q", name))
		}
	}
	co, err := a.alloc.NewCode(vm.CodeDesc{
		Name:       name,
		Instrs:     a.instrs,
		Consts:     a.consts,
		Codes:      a.codes,
		Comments:   a.comments,
		Positions:  a.positions,
		ParamCount: params,
		LocalCount: locals,
	})
	if err != nil {
		return nil, err
	}
	a.finalized = true
	return co, nil
}

// MustCode is the non-fallible finalization path; allocation failure is
// fatal here.
func (a *Assembler) MustCode(name string, params, locals int) *vm.CodeObject {
	co, err := a.Code(name, params, locals)
	if err != nil {
		panic(fmt.Sprintf("asm: code allocation failed for %q: %v", name, err))
	}
	return co
}
