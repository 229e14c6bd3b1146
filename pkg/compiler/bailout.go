package compiler

import (
	"strings"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"

	"basegen/pkg/ast"
	"basegen/pkg/vm"
)

// SyntaxChecker screens a function body for constructs the baseline
// compiler does not handle. The walk is read-only and short-circuits at the
// first rejecting node; rejection propagates outward with no further
// traversal. CheckAll keeps walking and aggregates every reason instead.
type SyntaxChecker struct {
	err     error
	depth   int
	collect bool
	all     *multierror.Error
}

// Check reports nil when fn is compilable, an *UnsupportedError naming the
// first rejected construct, or ErrStackOverflow when the tree is nested too
// deeply to walk.
func (c *SyntaxChecker) Check(fn *ast.FunctionLiteral) error {
	c.checkFunction(fn)
	return c.err
}

// CheckAll walks the whole tree and aggregates every rejection reason, for
// diagnostics. A tree too deep to walk still aborts early.
func (c *SyntaxChecker) CheckAll(fn *ast.FunctionLiteral) error {
	c.collect = true
	c.checkFunction(fn)
	if c.err != nil {
		return c.err
	}
	return c.all.ErrorOrNil()
}

// Check is the one-shot gate used by MakeCode.
func Check(fn *ast.FunctionLiteral) error {
	return (&SyntaxChecker{}).Check(fn)
}

func (c *SyntaxChecker) fail(n ast.Node, reason string) {
	if glog.V(1) {
		glog.Infof("bailout: %s at position %d", reason, n.Pos())
	}
	if c.collect {
		c.all = multierror.Append(c.all, &UnsupportedError{Reason: reason, Pos: n.Pos()})
		return
	}
	if c.err == nil {
		c.err = &UnsupportedError{Reason: reason, Pos: n.Pos()}
	}
}

func (c *SyntaxChecker) checkFunction(fn *ast.FunctionLiteral) {
	for _, p := range fn.Params {
		if c.err != nil {
			return
		}
		if p.Slot.Kind == ast.SlotContext {
			c.fail(fn, "context-allocated parameter "+p.Name)
		}
	}
	for _, d := range fn.Decls {
		if c.err != nil {
			return
		}
		if d.Fun != nil {
			c.fail(d.Fun, "function declaration")
			continue
		}
		c.checkExpr(d.Proxy)
	}
	c.checkStmts(fn.Body)
}

func (c *SyntaxChecker) checkStmts(stmts []ast.Stmt) {
	for _, s := range stmts {
		if c.err != nil {
			return
		}
		c.checkStmt(s)
	}
}

func (c *SyntaxChecker) checkStmt(s ast.Stmt) {
	if c.err != nil {
		return
	}
	c.depth++
	defer func() { c.depth-- }()
	if c.depth > maxVisitDepth {
		c.err = ErrStackOverflow
		return
	}

	switch s := s.(type) {
	case *ast.Block:
		c.checkStmts(s.Statements)
	case *ast.ExpressionStatement:
		c.checkExpr(s.Expr)
	case *ast.EmptyStatement, *ast.DebuggerStatement,
		*ast.BreakStatement, *ast.ContinueStatement:
	case *ast.IfStatement:
		c.checkExpr(s.Cond)
		c.checkStmt(s.Then)
		if s.Else != nil {
			c.checkStmt(s.Else)
		}
	case *ast.ReturnStatement:
		if s.Value != nil {
			c.checkExpr(s.Value)
		}
	case *ast.WhileStatement:
		c.checkExpr(s.Cond)
		c.checkStmt(s.Body)
	case *ast.DoWhileStatement:
		c.checkStmt(s.Body)
		c.checkExpr(s.Cond)
	case *ast.ForStatement:
		if s.Init != nil {
			c.checkStmt(s.Init)
		}
		if s.Cond != nil {
			c.checkExpr(s.Cond)
		}
		if s.Next != nil {
			c.checkStmt(s.Next)
		}
		c.checkStmt(s.Body)
	case *ast.ForInStatement:
		c.fail(s, "for-in statement")
	case *ast.SwitchStatement:
		c.fail(s, "switch statement")
	case *ast.WithStatement:
		c.fail(s, "with statement")
	case *ast.TryCatchStatement:
		c.checkStmt(s.Try)
		c.checkStmt(s.Catch)
	case *ast.TryFinallyStatement:
		c.checkStmt(s.Try)
		c.checkStmt(s.Finally)
	default:
		c.fail(s, "unknown statement")
	}
}

func (c *SyntaxChecker) checkExpr(e ast.Expr) {
	if c.err != nil {
		return
	}
	c.depth++
	defer func() { c.depth-- }()
	if c.depth > maxVisitDepth {
		c.err = ErrStackOverflow
		return
	}

	switch e := e.(type) {
	case *ast.Literal:
	case *ast.VariableProxy:
		if e.Var.Slot.Kind == ast.SlotLookup {
			c.fail(e, "lookup slot access to "+e.Name)
		}
	case *ast.Assignment:
		target, ok := e.Target.(*ast.VariableProxy)
		if !ok {
			c.fail(e, "assignment to non-variable target")
			return
		}
		if target.Var.Mode == ast.VarConst {
			c.fail(e, "assignment to const "+target.Name)
			return
		}
		if compoundBitwise(e.Op) {
			c.fail(e, "compound bitwise assignment")
			return
		}
		c.checkExpr(e.Target)
		c.checkExpr(e.Value)
	case *ast.CountOperation:
		target, ok := e.Target.(*ast.VariableProxy)
		if !ok {
			c.fail(e, "count operation on non-variable target")
			return
		}
		if target.Var.Mode == ast.VarConst {
			c.fail(e, "count operation on const "+target.Name)
			return
		}
		c.checkExpr(e.Target)
	case *ast.UnaryOperation:
		switch e.Op {
		case ast.TokDelete:
			c.fail(e, "delete operator")
		case ast.TokBitNot:
			c.fail(e, "bitwise not operator")
		case ast.TokAdd:
			c.fail(e, "unary plus operator")
		case ast.TokSub:
			c.fail(e, "unary minus operator")
		case ast.TokNot, ast.TokTypeof, ast.TokVoid:
			c.checkExpr(e.Operand)
		default:
			c.fail(e, "unknown unary operator "+e.Op.String())
		}
	case *ast.BinaryOperation:
		c.checkExpr(e.Left)
		c.checkExpr(e.Right)
	case *ast.CompareOperation:
		c.checkExpr(e.Left)
		c.checkExpr(e.Right)
	case *ast.Conditional:
		c.checkExpr(e.Cond)
		c.checkExpr(e.Then)
		c.checkExpr(e.Else)
	case *ast.Call:
		callee, ok := e.Callee.(*ast.VariableProxy)
		if !ok {
			c.fail(e, "call through non-variable target")
			return
		}
		if callee.Name == "eval" {
			c.fail(e, "call through eval")
			return
		}
		if callee.Var.Slot.Kind != ast.SlotGlobal {
			c.fail(e, "call target is not a globally named function")
			return
		}
		c.checkExprs(e.Args)
	case *ast.CallNew:
		c.fail(e, "new expression")
	case *ast.CallRuntime:
		if strings.HasPrefix(e.Name, "_") {
			c.fail(e, "inline runtime call "+e.Name)
			return
		}
		id, ok := runtimeIDs[e.Name]
		if !ok {
			c.fail(e, "unknown runtime function "+e.Name)
			return
		}
		if len(e.Args) != vm.RuntimeArgc(id) {
			c.fail(e, "wrong argument count for runtime function "+e.Name)
			return
		}
		c.checkExprs(e.Args)
	case *ast.Property:
		c.fail(e, "property access")
	case *ast.Throw:
		c.checkExpr(e.Exception)
	case *ast.CatchExtension:
		c.checkExpr(e.Value)
	case *ast.FunctionLiteral, *ast.FunctionBoilerplate:
		c.fail(e, "nested function literal")
	case *ast.ObjectLiteral:
		c.fail(e, "object literal")
	case *ast.ArrayLiteral:
		c.fail(e, "array literal")
	case *ast.RegExpLiteral:
		c.fail(e, "regexp literal")
	default:
		c.fail(e, "unknown expression")
	}
}

func (c *SyntaxChecker) checkExprs(exprs []ast.Expr) {
	for _, e := range exprs {
		if c.err != nil {
			return
		}
		c.checkExpr(e)
	}
}

func compoundBitwise(op ast.Token) bool {
	switch op {
	case ast.TokAssignBitOr, ast.TokAssignBitAnd, ast.TokAssignBitXor,
		ast.TokAssignShl, ast.TokAssignShr:
		return true
	}
	return false
}
