package compiler

import (
	"fmt"

	"basegen/pkg/asm"
	"basegen/pkg/vm"
)

// A Stub is a small, independently generated, cacheable routine
// implementing one polymorphic operation. Its key is a pure function of its
// static parameters, so a cache hit is always a safe substitute for fresh
// generation.
type Stub interface {
	Major() uint8
	MinorKey() uint32
	Name() string
	Generate(m *asm.Assembler)
}

// StubKey identifies one stub variant. Keys are injective per major tag:
// semantically distinguishable stubs never collide.
type StubKey struct {
	Major uint8
	Minor uint32
}

func keyOf(s Stub) StubKey {
	return StubKey{Major: s.Major(), Minor: s.MinorKey()}
}

const (
	majorStackCheck uint8 = iota + 1
	majorGenericBinaryOp
	majorCompare
	majorCallFunction
)

// customCached stubs bypass the shared dictionary and live in a fixed slot
// of the cache. Used by kinds with no distinguishing minor key.
type customCached interface {
	Stub
	customSlot(c *StubCache) **vm.CodeObject
}

// StackCheckStub re-checks the execution stack depth; emitted before every
// loop back-edge re-test and at function entry.
type StackCheckStub struct{}

func (StackCheckStub) Major() uint8     { return majorStackCheck }
func (StackCheckStub) MinorKey() uint32 { return 0 }
func (StackCheckStub) Name() string     { return "StackCheck" }

func (StackCheckStub) Generate(m *asm.Assembler) {
	m.StackCheck()
	m.Return()
}

func (StackCheckStub) customSlot(c *StubCache) **vm.CodeObject {
	return &c.stackCheck
}

// GenericBinaryOpStub combines the pushed left operand with the
// accumulator.
type GenericBinaryOpStub struct {
	Op vm.BinOp
}

func (s GenericBinaryOpStub) Major() uint8     { return majorGenericBinaryOp }
func (s GenericBinaryOpStub) MinorKey() uint32 { return uint32(s.Op) }
func (s GenericBinaryOpStub) Name() string {
	return fmt.Sprintf("GenericBinaryOp_%s", s.Op)
}

func (s GenericBinaryOpStub) Generate(m *asm.Assembler) {
	m.Binary(s.Op)
	m.Return()
}

// CompareStub compares the pushed left operand against the accumulator and
// leaves the boolean result in the accumulator.
type CompareStub struct {
	Cond   vm.Condition
	Strict bool
}

func (s CompareStub) Major() uint8 { return majorCompare }

func (s CompareStub) MinorKey() uint32 {
	k := uint32(s.Cond) << 1
	if s.Strict {
		k |= 1
	}
	return k
}

func (s CompareStub) Name() string {
	if s.Strict {
		return fmt.Sprintf("Compare_%s_strict", s.Cond)
	}
	return fmt.Sprintf("Compare_%s", s.Cond)
}

func (s CompareStub) Generate(m *asm.Assembler) {
	m.Compare(s.Cond, s.Strict)
	m.Return()
}

// CallFunctionStub calls the globally named function whose name sits on top
// of the operand stack above Argc pushed arguments.
type CallFunctionStub struct {
	Argc int
}

func (s CallFunctionStub) Major() uint8     { return majorCallFunction }
func (s CallFunctionStub) MinorKey() uint32 { return uint32(s.Argc) }
func (s CallFunctionStub) Name() string {
	return fmt.Sprintf("CallFunction_%d", s.Argc)
}

func (s CallFunctionStub) Generate(m *asm.Assembler) {
	m.CallFunction(s.Argc)
	m.Return()
}
