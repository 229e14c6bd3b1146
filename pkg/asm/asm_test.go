package asm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basegen/pkg/vm"
)

func run(t *testing.T, a *Assembler, name string) vm.Value {
	t.Helper()
	co := a.MustCode(name, 0, 0)
	got, err := vm.NewContext().Run(co)
	require.NoError(t, err)
	return got
}

func TestForwardLabelPatched(t *testing.T) {
	a := New(nil)
	done := a.NewLabel()
	a.LoadConst(vm.Number(1))
	a.Jump(done)
	a.LoadConst(vm.Number(2))
	a.Bind(done)
	a.Return()

	got := run(t, a, "fwd")
	assert.Equal(t, 1.0, got.Num())
}

func TestBackwardLabel(t *testing.T) {
	// Count down from 3; the loop head is bound before it is referenced.
	a := New(nil)
	loop := a.NewLabel()
	out := a.NewLabel()
	a.LoadConst(vm.Number(3))
	a.Bind(loop)
	a.JumpIfFalse(out)
	a.Push()
	a.LoadConst(vm.Number(1))
	a.Binary(vm.BinSub)
	a.Jump(loop)
	a.Bind(out)
	a.Return()

	got := run(t, a, "loop")
	assert.Equal(t, 0.0, got.Num())
}

func TestDropZeroEmitsNothing(t *testing.T) {
	a := New(nil)
	before := a.InstrCount()
	a.Drop(0)
	assert.Equal(t, before, a.InstrCount())
	a.Drop(2)
	assert.Equal(t, before+1, a.InstrCount())
}

func TestDropNegativePanics(t *testing.T) {
	a := New(nil)
	assert.Panics(t, func() { a.Drop(-1) })
}

func TestScalarConstantsDeduplicated(t *testing.T) {
	a := New(nil)
	a.LoadConst(vm.Number(7))
	a.LoadConst(vm.String("x"))
	a.LoadConst(vm.Number(7))
	a.LoadGlobal("x") // name shares the "x" constant
	a.Return()
	co := a.MustCode("dedup", 0, 0)
	assert.Equal(t, 2, co.ConstCount())
}

func TestStubCallGate(t *testing.T) {
	inner := New(nil)
	inner.LoadConst(vm.Number(1))
	inner.Return()
	co := inner.MustCode("inner", 0, 0)

	a := New(nil)
	a.SetGeneratingStub(true)
	assert.Panics(t, func() { a.CallCode(co) })

	b := New(nil)
	b.SetGeneratingStub(true)
	b.SetAllowStubCalls(true)
	assert.NotPanics(t, func() { b.CallCode(co) })
}

func TestUnboundReferencedLabelPanics(t *testing.T) {
	a := New(nil)
	l := a.NewLabel()
	a.Jump(l)
	assert.Panics(t, func() { a.MustCode("bad", 0, 0) })
}

func TestUnboundUnreferencedLabelOK(t *testing.T) {
	a := New(nil)
	a.NewLabel()
	a.LoadConst(vm.Undefined())
	a.Return()
	assert.NotPanics(t, func() { a.MustCode("ok", 0, 0) })
}

type failingAlloc struct{}

func (failingAlloc) NewCode(vm.CodeDesc) (*vm.CodeObject, error) {
	return nil, errors.New("allocation refused")
}

func TestAllocatorFailurePropagates(t *testing.T) {
	a := New(failingAlloc{})
	a.LoadConst(vm.Undefined())
	a.Return()
	co, err := a.Code("fail", 0, 0)
	assert.Nil(t, co)
	assert.Error(t, err)
}

func TestCallLabelSubroutine(t *testing.T) {
	// Main calls the subroutine twice; each call adds 10 to the accumulator.
	a := New(nil)
	sub := a.NewLabel()
	done := a.NewLabel()
	a.LoadConst(vm.Number(1))
	a.CallLabel(sub)
	a.CallLabel(sub)
	a.Jump(done)
	a.Bind(sub)
	a.Push()
	a.LoadConst(vm.Number(10))
	a.Binary(vm.BinAdd)
	a.RetSub()
	a.Bind(done)
	a.Return()

	got := run(t, a, "sub")
	assert.Equal(t, 21.0, got.Num())
}

func TestCommentsInDisassembly(t *testing.T) {
	a := New(nil)
	a.RecordComment("entry")
	a.LoadConst(vm.Number(5))
	a.Return()
	co := a.MustCode("commented", 0, 0)
	assert.Contains(t, co.Disassemble(), "entry")
}
