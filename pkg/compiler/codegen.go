package compiler

import (
	"fmt"

	"basegen/pkg/asm"
	"basegen/pkg/ast"
	"basegen/pkg/vm"
)

// codeGenerator is the single-pass emission driver. It walks the body
// top-down once, consulting the active expression context and the nesting
// stack at each node, and emits through the assembler primitive. No
// intermediate representation is built.
type codeGenerator struct {
	cc      *Context
	masm    *asm.Assembler
	fn      *ast.FunctionLiteral
	nesting []nestedStatement

	// Active expression context, set by the visit helpers before
	// recursing into an expression.
	context    exprContext
	location   location
	trueLabel  *asm.Label
	falseLabel *asm.Label

	depth int
	err   error
}

func newCodeGenerator(cc *Context) *codeGenerator {
	return &codeGenerator{
		cc:   cc,
		masm: asm.New(cc.Alloc),
	}
}

func (cg *codeGenerator) generate(fn *ast.FunctionLiteral) (*vm.CodeObject, error) {
	cg.fn = fn

	cg.masm.RecordComment("declarations")
	for _, d := range fn.Decls {
		if d.Proxy.Var.Slot.Kind != ast.SlotGlobal {
			continue // locals are zeroed by the frame
		}
		cg.masm.LoadConst(vm.String(d.Proxy.Name))
		cg.masm.Push()
		cg.masm.CallRuntime(vm.RuntimeDeclareGlobal)
	}

	cg.masm.RecordComment("stack check")
	cg.masm.CallCode(cg.stub(StackCheckStub{}))

	cg.visitStmts(fn.Body)
	if cg.err != nil {
		return nil, cg.err
	}
	if len(cg.nesting) != 0 {
		panic("compiler: nesting stack not empty after body")
	}

	// Falling off the end returns undefined.
	cg.masm.RecordComment("implicit return")
	cg.masm.LoadConst(vm.Undefined())
	cg.masm.Return()

	name := fn.Name
	if name == "" {
		name = "<anonymous>"
	}
	return cg.masm.Code(name, len(fn.Params), fn.LocalCount)
}

func (cg *codeGenerator) stub(s Stub) *vm.CodeObject {
	return cg.cc.Stubs.GetCode(s)
}

// Visit helpers. Each sets the expression context for one subexpression
// and restores the enclosing context afterwards.

func (cg *codeGenerator) visitInContext(e ast.Expr, ctx exprContext, loc location, t, f *asm.Label) {
	savedCtx, savedLoc := cg.context, cg.location
	savedT, savedF := cg.trueLabel, cg.falseLabel
	cg.context, cg.location, cg.trueLabel, cg.falseLabel = ctx, loc, t, f
	cg.visitExpr(e)
	cg.context, cg.location = savedCtx, savedLoc
	cg.trueLabel, cg.falseLabel = savedT, savedF
}

func (cg *codeGenerator) visitForEffect(e ast.Expr) {
	cg.visitInContext(e, ctxEffect, locAccumulator, nil, nil)
}

func (cg *codeGenerator) visitForValue(e ast.Expr, loc location) {
	cg.visitInContext(e, ctxValue, loc, nil, nil)
}

func (cg *codeGenerator) visitForControl(e ast.Expr, t, f *asm.Label) {
	cg.visitInContext(e, ctxTest, locAccumulator, t, f)
}

func (cg *codeGenerator) visitForValueControl(e ast.Expr, loc location, t, f *asm.Label) {
	cg.visitInContext(e, ctxValueTest, loc, t, f)
}

func (cg *codeGenerator) visitForControlValue(e ast.Expr, loc location, t, f *asm.Label) {
	cg.visitInContext(e, ctxTestValue, loc, t, f)
}

// Statements.

func (cg *codeGenerator) visitStmts(stmts []ast.Stmt) {
	for _, s := range stmts {
		if cg.err != nil {
			return
		}
		cg.visitStmt(s)
	}
}

func (cg *codeGenerator) visitStmt(s ast.Stmt) {
	if cg.err != nil {
		return
	}
	cg.depth++
	defer func() { cg.depth-- }()
	if cg.depth > maxVisitDepth {
		cg.err = ErrStackOverflow
		return
	}
	cg.masm.RecordPosition(s.Pos())

	switch s := s.(type) {
	case *ast.Block:
		cg.visitBlock(s)
	case *ast.ExpressionStatement:
		cg.visitForEffect(s.Expr)
	case *ast.EmptyStatement:
	case *ast.IfStatement:
		cg.visitIf(s)
	case *ast.ContinueStatement:
		cg.visitContinue(s)
	case *ast.BreakStatement:
		cg.visitBreak(s)
	case *ast.ReturnStatement:
		cg.visitReturn(s)
	case *ast.WhileStatement:
		cg.visitWhile(s)
	case *ast.DoWhileStatement:
		cg.visitDoWhile(s)
	case *ast.ForStatement:
		cg.visitFor(s)
	case *ast.TryCatchStatement:
		cg.visitTryCatch(s)
	case *ast.TryFinallyStatement:
		cg.visitTryFinally(s)
	case *ast.DebuggerStatement:
		cg.masm.CallRuntime(vm.RuntimeDebugBreak)
	default:
		panic(fmt.Sprintf("compiler: statement %T survived the gate", s))
	}
}

func (cg *codeGenerator) visitBlock(s *ast.Block) {
	if s.Label == "" {
		cg.visitStmts(s.Statements)
		return
	}
	exit := cg.masm.NewLabel()
	cg.pushNested(nestedStatement{kind: nestBreakable, label: s.Label, breakTarget: exit})
	cg.visitStmts(s.Statements)
	cg.popNested()
	cg.masm.Bind(exit)
}

func (cg *codeGenerator) visitIf(s *ast.IfStatement) {
	cg.masm.RecordComment("if")
	then := cg.masm.NewLabel()
	done := cg.masm.NewLabel()
	if s.Else == nil {
		cg.visitForControl(s.Cond, then, done)
		cg.masm.Bind(then)
		cg.visitStmt(s.Then)
		cg.masm.Bind(done)
		return
	}
	els := cg.masm.NewLabel()
	cg.visitForControl(s.Cond, then, els)
	cg.masm.Bind(then)
	cg.visitStmt(s.Then)
	cg.masm.Jump(done)
	cg.masm.Bind(els)
	cg.visitStmt(s.Else)
	cg.masm.Bind(done)
}

func (cg *codeGenerator) visitBreak(s *ast.BreakStatement) {
	cg.masm.RecordComment("break")
	depth := 0
	for i := len(cg.nesting) - 1; i >= 0; i-- {
		n := &cg.nesting[i]
		if n.isBreakTarget(s.Label) {
			cg.masm.Drop(depth)
			cg.masm.Jump(n.breakTarget)
			return
		}
		depth = cg.exitNested(n, depth)
	}
	cg.err = &UnsupportedError{Reason: "unresolved break target " + s.Label, Pos: s.Pos()}
}

func (cg *codeGenerator) visitContinue(s *ast.ContinueStatement) {
	cg.masm.RecordComment("continue")
	depth := 0
	for i := len(cg.nesting) - 1; i >= 0; i-- {
		n := &cg.nesting[i]
		if n.isContinueTarget(s.Label) {
			cg.masm.Drop(depth)
			cg.masm.Jump(n.continueTarget)
			return
		}
		depth = cg.exitNested(n, depth)
	}
	cg.err = &UnsupportedError{Reason: "unresolved continue target " + s.Label, Pos: s.Pos()}
}

func (cg *codeGenerator) visitReturn(s *ast.ReturnStatement) {
	cg.masm.RecordComment("return")
	if s.Value != nil {
		cg.visitForValue(s.Value, locAccumulator)
	} else {
		cg.masm.LoadConst(vm.Undefined())
	}
	// Return crosses every record to the function boundary, labels
	// notwithstanding. The value rides in the accumulator, which every
	// exit action preserves.
	depth := 0
	for i := len(cg.nesting) - 1; i >= 0; i-- {
		depth = cg.exitNested(&cg.nesting[i], depth)
	}
	cg.masm.Drop(depth)
	cg.masm.Return()
}

func (cg *codeGenerator) visitWhile(s *ast.WhileStatement) {
	cg.masm.RecordComment("while")
	body := cg.masm.NewLabel()
	test := cg.masm.NewLabel()
	exit := cg.masm.NewLabel()

	cg.pushNested(nestedStatement{
		kind: nestIteration, label: s.Label,
		breakTarget: exit, continueTarget: test,
	})
	cg.masm.Jump(test)
	cg.masm.Bind(body)
	cg.visitStmt(s.Body)
	cg.masm.Bind(test)
	cg.masm.CallCode(cg.stub(StackCheckStub{}))
	cg.visitForControl(s.Cond, body, exit)
	cg.popNested()
	cg.masm.Bind(exit)
}

func (cg *codeGenerator) visitDoWhile(s *ast.DoWhileStatement) {
	cg.masm.RecordComment("do-while")
	body := cg.masm.NewLabel()
	test := cg.masm.NewLabel()
	exit := cg.masm.NewLabel()

	cg.pushNested(nestedStatement{
		kind: nestIteration, label: s.Label,
		breakTarget: exit, continueTarget: test,
	})
	cg.masm.Bind(body)
	cg.visitStmt(s.Body)
	cg.masm.Bind(test)
	cg.masm.CallCode(cg.stub(StackCheckStub{}))
	cg.visitForControl(s.Cond, body, exit)
	cg.popNested()
	cg.masm.Bind(exit)
}

func (cg *codeGenerator) visitFor(s *ast.ForStatement) {
	cg.masm.RecordComment("for")
	if s.Init != nil {
		cg.visitStmt(s.Init)
	}
	body := cg.masm.NewLabel()
	cont := cg.masm.NewLabel()
	test := cg.masm.NewLabel()
	exit := cg.masm.NewLabel()

	cg.pushNested(nestedStatement{
		kind: nestIteration, label: s.Label,
		breakTarget: exit, continueTarget: cont,
	})
	if s.Cond != nil {
		cg.masm.Jump(test)
	}
	cg.masm.Bind(body)
	cg.visitStmt(s.Body)
	cg.masm.Bind(cont)
	if s.Next != nil {
		cg.visitStmt(s.Next)
	}
	cg.masm.Bind(test)
	cg.masm.CallCode(cg.stub(StackCheckStub{}))
	if s.Cond != nil {
		cg.visitForControl(s.Cond, body, exit)
	} else {
		cg.masm.Jump(body)
	}
	cg.popNested()
	cg.masm.Bind(exit)
}

func (cg *codeGenerator) visitTryCatch(s *ast.TryCatchStatement) {
	cg.masm.RecordComment("try/catch")
	handler := cg.masm.NewLabel()
	done := cg.masm.NewLabel()

	cg.masm.PushHandler(vm.HandlerCatch, handler)
	cg.pushNested(nestedStatement{kind: nestTryCatch})
	cg.visitStmt(s.Try)
	cg.popNested()
	cg.masm.PopHandler()
	cg.masm.Jump(done)

	// The machine enters here with the thrown value in the accumulator
	// and this handler's record already removed. The exception is bound
	// through a one-property extension object pushed as a lexical scope.
	cg.masm.Bind(handler)
	cg.masm.RecordComment("catch %s", s.CatchVar.Name)
	cg.masm.Push()
	cg.masm.LoadConst(vm.String(s.CatchVar.Name))
	cg.masm.Push()
	cg.masm.CallRuntime(vm.RuntimeNewCatchExtension)
	cg.masm.Push()
	cg.masm.CallRuntime(vm.RuntimePushCatchContext)
	cg.pushNested(nestedStatement{kind: nestCatchScope})
	cg.visitStmt(s.Catch)
	cg.popNested()
	cg.masm.CallRuntime(vm.RuntimePopContext)

	cg.masm.Bind(done)
}

func (cg *codeGenerator) visitTryFinally(s *ast.TryFinallyStatement) {
	cg.masm.RecordComment("try/finally")
	rethrow := cg.masm.NewLabel()
	finally := cg.masm.NewLabel()
	done := cg.masm.NewLabel()

	cg.masm.PushHandler(vm.HandlerFinally, rethrow)
	cg.pushNested(nestedStatement{kind: nestTryFinally, finallyEntry: finally})
	cg.visitStmt(s.Try)
	cg.popNested()
	cg.masm.PopHandler()
	cg.masm.CallLabel(finally)
	cg.masm.Jump(done)

	// Exception path: the thrown value arrives in the accumulator, runs
	// the finally body, then continues the original transfer.
	cg.masm.Bind(rethrow)
	cg.masm.CallLabel(finally)
	cg.masm.Push()
	cg.masm.CallRuntime(vm.RuntimeReThrow)

	// The finally body is a subroutine reached by explicit call from all
	// three paths: fallthrough, non-local unwind, and exception dispatch.
	// It spills whatever value is in flight and restores it on the way
	// out.
	cg.masm.Bind(finally)
	cg.masm.RecordComment("finally")
	cg.masm.Push()
	cg.pushNested(nestedStatement{kind: nestFinally, stackSlots: 1})
	cg.visitStmt(s.Finally)
	cg.popNested()
	cg.masm.Pop()
	cg.masm.RetSub()

	cg.masm.Bind(done)
}

// Expressions.

func (cg *codeGenerator) visitExpr(e ast.Expr) {
	if cg.err != nil {
		return
	}
	cg.depth++
	defer func() { cg.depth-- }()
	if cg.depth > maxVisitDepth {
		cg.err = ErrStackOverflow
		return
	}

	switch e := e.(type) {
	case *ast.Literal:
		cg.masm.LoadConst(e.Value)
		cg.apply()
	case *ast.VariableProxy:
		cg.loadVariable(e.Var)
		cg.apply()
	case *ast.Assignment:
		cg.visitAssignment(e)
	case *ast.CountOperation:
		cg.visitCount(e)
	case *ast.UnaryOperation:
		cg.visitUnary(e)
	case *ast.BinaryOperation:
		cg.visitBinary(e)
	case *ast.CompareOperation:
		cg.visitCompare(e)
	case *ast.Conditional:
		cg.visitConditional(e)
	case *ast.Call:
		cg.visitCall(e)
	case *ast.CallRuntime:
		cg.visitCallRuntime(e)
	case *ast.Throw:
		cg.visitForValue(e.Exception, locStack)
		cg.masm.CallRuntime(vm.RuntimeThrow)
		// Never returns; no context to apply.
	case *ast.CatchExtension:
		cg.visitForValue(e.Value, locStack)
		cg.masm.LoadConst(vm.String(e.Key))
		cg.masm.Push()
		cg.masm.CallRuntime(vm.RuntimeNewCatchExtension)
		cg.apply()
	default:
		panic(fmt.Sprintf("compiler: expression %T survived the gate", e))
	}
}

func (cg *codeGenerator) loadVariable(v *ast.Variable) {
	switch v.Slot.Kind {
	case ast.SlotGlobal:
		cg.masm.LoadGlobal(v.Name)
	case ast.SlotParameter:
		cg.masm.LoadParam(v.Slot.Index)
	case ast.SlotLocal:
		cg.masm.LoadLocal(v.Slot.Index)
	case ast.SlotContext:
		cg.masm.LoadContext(v.Name)
	default:
		panic("compiler: lookup slot load survived the gate")
	}
}

func (cg *codeGenerator) storeVariable(v *ast.Variable) {
	switch v.Slot.Kind {
	case ast.SlotGlobal:
		cg.masm.StoreGlobal(v.Name)
	case ast.SlotParameter:
		cg.masm.StoreParam(v.Slot.Index)
	case ast.SlotLocal:
		cg.masm.StoreLocal(v.Slot.Index)
	case ast.SlotContext:
		cg.masm.StoreContext(v.Name)
	default:
		panic("compiler: lookup slot store survived the gate")
	}
}

func (cg *codeGenerator) visitAssignment(e *ast.Assignment) {
	target := e.Target.(*ast.VariableProxy)
	if e.Op == ast.TokAssign {
		cg.visitForValue(e.Value, locAccumulator)
	} else {
		// Compound: combine the old value with the right operand
		// through the generic binary stub.
		cg.loadVariable(target.Var)
		cg.masm.Push()
		cg.visitForValue(e.Value, locAccumulator)
		cg.masm.CallCode(cg.stub(GenericBinaryOpStub{Op: binOpFor(e.Op.BinaryFor())}))
	}
	cg.storeVariable(target.Var)
	// The assignment's value is the stored value, still in the
	// accumulator: stores do not clobber it.
	cg.apply()
}

func (cg *codeGenerator) visitCount(e *ast.CountOperation) {
	target := e.Target.(*ast.VariableProxy)
	op := binOpFor(ast.TokAdd)
	if e.Op == ast.TokDec {
		op = binOpFor(ast.TokSub)
	}

	wantOld := !e.Prefix && cg.context != ctxEffect
	cg.loadVariable(target.Var)
	if wantOld {
		cg.masm.Push() // the expression's result is the old value
	}
	cg.masm.Push()
	cg.masm.LoadConst(vm.Number(1))
	cg.masm.CallCode(cg.stub(GenericBinaryOpStub{Op: op}))
	cg.storeVariable(target.Var)
	if wantOld {
		cg.masm.Pop()
	}
	cg.apply()
}

func (cg *codeGenerator) visitUnary(e *ast.UnaryOperation) {
	switch e.Op {
	case ast.TokNot:
		if cg.context == ctxTest {
			// Negation in a test context just swaps the branch targets.
			cg.visitForControl(e.Operand, cg.falseLabel, cg.trueLabel)
			return
		}
		if cg.context == ctxEffect {
			cg.visitForEffect(e.Operand)
			return
		}
		truthy := cg.masm.NewLabel()
		falsy := cg.masm.NewLabel()
		done := cg.masm.NewLabel()
		cg.visitForControl(e.Operand, truthy, falsy)
		cg.masm.Bind(truthy)
		cg.masm.LoadConst(vm.Bool(false))
		cg.masm.Jump(done)
		cg.masm.Bind(falsy)
		cg.masm.LoadConst(vm.Bool(true))
		cg.masm.Bind(done)
		cg.apply()
	case ast.TokTypeof:
		cg.visitForValue(e.Operand, locStack)
		cg.masm.CallRuntime(vm.RuntimeTypeOf)
		cg.apply()
	case ast.TokVoid:
		cg.visitForEffect(e.Operand)
		cg.masm.LoadConst(vm.Undefined())
		cg.apply()
	default:
		panic(fmt.Sprintf("compiler: unary %s survived the gate", e.Op))
	}
}

func (cg *codeGenerator) visitBinary(e *ast.BinaryOperation) {
	switch e.Op {
	case ast.TokComma:
		cg.visitForEffect(e.Left)
		cg.visitExpr(e.Right) // right keeps the enclosing context
	case ast.TokOr, ast.TokAnd:
		cg.emitLogical(e)
	default:
		cg.visitForValue(e.Left, locStack)
		cg.visitForValue(e.Right, locAccumulator)
		cg.masm.CallCode(cg.stub(GenericBinaryOpStub{Op: binOpFor(e.Op)}))
		cg.apply()
	}
}

// emitLogical compiles a short-circuit operator. The left operand is
// evaluated under a context derived from the enclosing one so that its
// value is kept exactly when it is the operator's result; the right operand
// is evaluated under the original context, and only when control logically
// reaches it.
func (cg *codeGenerator) emitLogical(e *ast.BinaryOperation) {
	isOr := e.Op == ast.TokOr
	right := cg.masm.NewLabel()
	done := cg.masm.NewLabel()

	switch cg.context {
	case ctxEffect:
		if isOr {
			cg.visitForControl(e.Left, done, right)
		} else {
			cg.visitForControl(e.Left, right, done)
		}
		cg.masm.Bind(right)
		cg.visitForEffect(e.Right)
		cg.masm.Bind(done)
	case ctxValue:
		if isOr {
			// A truthy left operand is the result.
			cg.visitForValueControl(e.Left, cg.location, done, right)
		} else {
			// A falsy left operand is the result.
			cg.visitForControlValue(e.Left, cg.location, right, done)
		}
		cg.masm.Bind(right)
		cg.visitForValue(e.Right, cg.location)
		cg.masm.Bind(done)
	case ctxTest:
		if isOr {
			cg.visitForControl(e.Left, cg.trueLabel, right)
		} else {
			cg.visitForControl(e.Left, right, cg.falseLabel)
		}
		cg.masm.Bind(right)
		cg.visitForControl(e.Right, cg.trueLabel, cg.falseLabel)
	case ctxValueTest:
		// The consumer wants the value only on the true edge.
		if isOr {
			cg.visitForValueControl(e.Left, cg.location, cg.trueLabel, right)
		} else {
			cg.visitForControl(e.Left, right, cg.falseLabel)
		}
		cg.masm.Bind(right)
		cg.visitForValueControl(e.Right, cg.location, cg.trueLabel, cg.falseLabel)
	case ctxTestValue:
		// The consumer wants the value only on the false edge.
		if isOr {
			cg.visitForControl(e.Left, cg.trueLabel, right)
		} else {
			cg.visitForControlValue(e.Left, cg.location, right, cg.falseLabel)
		}
		cg.masm.Bind(right)
		cg.visitForControlValue(e.Right, cg.location, cg.trueLabel, cg.falseLabel)
	default:
		panic(fmt.Sprintf("compiler: unreachable expression context %d", int(cg.context)))
	}
}

func (cg *codeGenerator) visitCompare(e *ast.CompareOperation) {
	cond, strict := condFor(e.Op)
	cg.visitForValue(e.Left, locStack)
	cg.visitForValue(e.Right, locAccumulator)
	cg.masm.CallCode(cg.stub(CompareStub{Cond: cond, Strict: strict}))
	cg.apply()
}

func (cg *codeGenerator) visitConditional(e *ast.Conditional) {
	then := cg.masm.NewLabel()
	els := cg.masm.NewLabel()
	done := cg.masm.NewLabel()
	cg.visitForControl(e.Cond, then, els)
	// Both arms compile under the enclosing context; in the test contexts
	// the join jump is unreachable but harmless.
	cg.masm.Bind(then)
	cg.visitExpr(e.Then)
	cg.masm.Jump(done)
	cg.masm.Bind(els)
	cg.visitExpr(e.Else)
	cg.masm.Bind(done)
}

func (cg *codeGenerator) visitCall(e *ast.Call) {
	callee := e.Callee.(*ast.VariableProxy)
	for _, arg := range e.Args {
		cg.visitForValue(arg, locStack)
	}
	cg.masm.LoadConst(vm.String(callee.Name))
	cg.masm.Push()
	cg.masm.CallCode(cg.stub(CallFunctionStub{Argc: len(e.Args)}))
	cg.apply()
}

func (cg *codeGenerator) visitCallRuntime(e *ast.CallRuntime) {
	id := runtimeIDs[e.Name]
	for _, arg := range e.Args {
		cg.visitForValue(arg, locStack)
	}
	cg.masm.CallRuntime(id)
	cg.apply()
}

func binOpFor(t ast.Token) vm.BinOp {
	switch t {
	case ast.TokAdd:
		return vm.BinAdd
	case ast.TokSub:
		return vm.BinSub
	case ast.TokMul:
		return vm.BinMul
	case ast.TokDiv:
		return vm.BinDiv
	case ast.TokMod:
		return vm.BinMod
	case ast.TokBitOr:
		return vm.BinBitOr
	case ast.TokBitAnd:
		return vm.BinBitAnd
	case ast.TokBitXor:
		return vm.BinBitXor
	case ast.TokShl:
		return vm.BinShl
	case ast.TokShr:
		return vm.BinShr
	}
	panic("compiler: no binary operation for token " + t.String())
}

func condFor(t ast.Token) (vm.Condition, bool) {
	switch t {
	case ast.TokEq:
		return vm.CondEq, false
	case ast.TokNe:
		return vm.CondNe, false
	case ast.TokEqStrict:
		return vm.CondEq, true
	case ast.TokNeStrict:
		return vm.CondNe, true
	case ast.TokLt:
		return vm.CondLt, false
	case ast.TokGt:
		return vm.CondGt, false
	case ast.TokLte:
		return vm.CondLte, false
	case ast.TokGte:
		return vm.CondGte, false
	}
	panic("compiler: no condition for token " + t.String())
}
