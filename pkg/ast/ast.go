// Package ast defines the syntax tree the compiler consumes. Trees arrive
// from an external front end with variable storage already resolved; this
// package only describes their shape and decodes the front end's YAML dump.
package ast

import (
	"fmt"
	"strings"

	"basegen/pkg/vm"
)

type Node interface {
	Pos() int
	String() string
}

type Stmt interface {
	Node
	stmtNode()
}

type Expr interface {
	Node
	exprNode()
}

type node struct {
	Position int
}

func (n node) Pos() int { return n.Position }

// SlotKind is the storage classification of a variable, resolved before
// code generation.
type SlotKind int

const (
	SlotGlobal SlotKind = iota
	SlotParameter
	SlotLocal
	SlotContext
	SlotLookup
)

func (k SlotKind) String() string {
	switch k {
	case SlotGlobal:
		return "global"
	case SlotParameter:
		return "parameter"
	case SlotLocal:
		return "local"
	case SlotContext:
		return "context"
	case SlotLookup:
		return "lookup"
	}
	return fmt.Sprintf("slot%d", int(k))
}

type Slot struct {
	Kind  SlotKind
	Index int    // parameter and local slots
	Name  string // global, context and lookup slots
}

type VarMode int

const (
	VarNormal VarMode = iota
	VarConst
)

type Variable struct {
	Name string
	Mode VarMode
	Slot *Slot
}

// Declaration is a function-scope var or function declaration, collected by
// the front end ahead of the body statements.
type Declaration struct {
	Proxy *VariableProxy
	Mode  VarMode
	Fun   *FunctionLiteral // non-nil for function declarations
}

// Token names the operator of an assignment, unary, binary, compare or
// count node.
type Token int

const (
	TokAssign Token = iota
	TokAssignAdd
	TokAssignSub
	TokAssignMul
	TokAssignDiv
	TokAssignMod
	TokAssignBitOr
	TokAssignBitAnd
	TokAssignBitXor
	TokAssignShl
	TokAssignShr

	TokComma
	TokOr
	TokAnd
	TokAdd
	TokSub
	TokMul
	TokDiv
	TokMod
	TokBitOr
	TokBitAnd
	TokBitXor
	TokShl
	TokShr

	TokEq
	TokNe
	TokEqStrict
	TokNeStrict
	TokLt
	TokGt
	TokLte
	TokGte

	TokNot
	TokBitNot
	TokTypeof
	TokVoid
	TokDelete

	TokInc
	TokDec
)

var tokenNames = map[Token]string{
	TokAssign: "=", TokAssignAdd: "+=", TokAssignSub: "-=", TokAssignMul: "*=",
	TokAssignDiv: "/=", TokAssignMod: "%=", TokAssignBitOr: "|=",
	TokAssignBitAnd: "&=", TokAssignBitXor: "^=", TokAssignShl: "<<=",
	TokAssignShr: ">>=", TokComma: ",", TokOr: "||", TokAnd: "&&",
	TokAdd: "+", TokSub: "-", TokMul: "*", TokDiv: "/", TokMod: "%",
	TokBitOr: "|", TokBitAnd: "&", TokBitXor: "^", TokShl: "<<", TokShr: ">>",
	TokEq: "==", TokNe: "!=", TokEqStrict: "===", TokNeStrict: "!==",
	TokLt: "<", TokGt: ">", TokLte: "<=", TokGte: ">=", TokNot: "!",
	TokBitNot: "~", TokTypeof: "typeof", TokVoid: "void", TokDelete: "delete",
	TokInc: "++", TokDec: "--",
}

func (t Token) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token%d", int(t))
}

// IsCompoundAssign reports whether t is one of the op-assign tokens.
func (t Token) IsCompoundAssign() bool {
	return t > TokAssign && t <= TokAssignShr
}

// BinaryFor returns the plain binary operator of a compound assignment
// token, e.g. TokAssignAdd yields TokAdd.
func (t Token) BinaryFor() Token {
	if !t.IsCompoundAssign() {
		panic("ast: BinaryFor on non-compound token " + t.String())
	}
	return TokAdd + (t - TokAssignAdd)
}

// Statements.

type Block struct {
	node
	Label      string
	Statements []Stmt
}

type ExpressionStatement struct {
	node
	Expr Expr
}

type EmptyStatement struct {
	node
}

type IfStatement struct {
	node
	Cond Expr
	Then Stmt
	Else Stmt // may be nil
}

type ContinueStatement struct {
	node
	Label string // empty for the nearest enclosing loop
}

type BreakStatement struct {
	node
	Label string // empty for the nearest enclosing loop or switch
}

type ReturnStatement struct {
	node
	Value Expr // nil returns undefined
}

type WhileStatement struct {
	node
	Label string
	Cond  Expr
	Body  Stmt
}

type DoWhileStatement struct {
	node
	Label string
	Body  Stmt
	Cond  Expr
}

type ForStatement struct {
	node
	Label string
	Init  Stmt // may be nil
	Cond  Expr // may be nil
	Next  Stmt // may be nil
	Body  Stmt
}

type ForInStatement struct {
	node
	Label      string
	Each       Expr
	Enumerable Expr
	Body       Stmt
}

type CaseClause struct {
	Cond Expr // nil marks the default clause
	Body []Stmt
}

type SwitchStatement struct {
	node
	Label string
	Tag   Expr
	Cases []*CaseClause
}

type WithStatement struct {
	node
	Obj  Expr
	Body Stmt
}

type TryCatchStatement struct {
	node
	Try      *Block
	CatchVar *VariableProxy
	Catch    *Block
}

type TryFinallyStatement struct {
	node
	Try     *Block
	Finally *Block
}

type DebuggerStatement struct {
	node
}

func (*Block) stmtNode()               {}
func (*ExpressionStatement) stmtNode() {}
func (*EmptyStatement) stmtNode()      {}
func (*IfStatement) stmtNode()         {}
func (*ContinueStatement) stmtNode()   {}
func (*BreakStatement) stmtNode()      {}
func (*ReturnStatement) stmtNode()     {}
func (*WhileStatement) stmtNode()      {}
func (*DoWhileStatement) stmtNode()    {}
func (*ForStatement) stmtNode()        {}
func (*ForInStatement) stmtNode()      {}
func (*SwitchStatement) stmtNode()     {}
func (*WithStatement) stmtNode()       {}
func (*TryCatchStatement) stmtNode()   {}
func (*TryFinallyStatement) stmtNode() {}
func (*DebuggerStatement) stmtNode()   {}

// Expressions.

type Literal struct {
	node
	Value vm.Value
}

type VariableProxy struct {
	node
	Name string
	Var  *Variable
}

type Assignment struct {
	node
	Op     Token // TokAssign or a compound token
	Target Expr
	Value  Expr
}

type CountOperation struct {
	node
	Op     Token // TokInc or TokDec
	Prefix bool
	Target Expr
}

type UnaryOperation struct {
	node
	Op      Token
	Operand Expr
}

type BinaryOperation struct {
	node
	Op    Token
	Left  Expr
	Right Expr
}

type CompareOperation struct {
	node
	Op    Token
	Left  Expr
	Right Expr
}

type Conditional struct {
	node
	Cond Expr
	Then Expr
	Else Expr
}

type Call struct {
	node
	Callee Expr
	Args   []Expr
}

type CallNew struct {
	node
	Callee Expr
	Args   []Expr
}

// CallRuntime invokes a named runtime gateway operation. Names with a
// leading underscore ask for an inlined intrinsic.
type CallRuntime struct {
	node
	Name string
	Args []Expr
}

type Property struct {
	node
	Obj Expr
	Key Expr
}

type Throw struct {
	node
	Exception Expr
}

// CatchExtension allocates the one-property extension object a catch scope
// is built from.
type CatchExtension struct {
	node
	Key   string
	Value Expr
}

type FunctionLiteral struct {
	node
	Name       string
	Params     []*Variable
	Decls      []*Declaration
	Body       []Stmt
	LocalCount int
}

// FunctionBoilerplate stands for a materialized nested function value.
type FunctionBoilerplate struct {
	node
	Fun *FunctionLiteral
}

type ObjectProperty struct {
	Key   Expr
	Value Expr
}

type ObjectLiteral struct {
	node
	Properties []*ObjectProperty
}

type ArrayLiteral struct {
	node
	Values []Expr
}

type RegExpLiteral struct {
	node
	Pattern string
	Flags   string
}

func (*Literal) exprNode()             {}
func (*VariableProxy) exprNode()       {}
func (*Assignment) exprNode()          {}
func (*CountOperation) exprNode()      {}
func (*UnaryOperation) exprNode()      {}
func (*BinaryOperation) exprNode()     {}
func (*CompareOperation) exprNode()    {}
func (*Conditional) exprNode()         {}
func (*Call) exprNode()                {}
func (*CallNew) exprNode()             {}
func (*CallRuntime) exprNode()         {}
func (*Property) exprNode()            {}
func (*Throw) exprNode()               {}
func (*CatchExtension) exprNode()      {}
func (*FunctionLiteral) exprNode()     {}
func (*FunctionBoilerplate) exprNode() {}
func (*ObjectLiteral) exprNode()       {}
func (*ArrayLiteral) exprNode()        {}
func (*RegExpLiteral) exprNode()       {}

func stmtList(stmts []Stmt) string {
	var sb strings.Builder
	for _, s := range stmts {
		sb.WriteString(s.String())
		sb.WriteString(" ")
	}
	return strings.TrimSpace(sb.String())
}

func (b *Block) String() string {
	prefix := ""
	if b.Label != "" {
		prefix = b.Label + ": "
	}
	return prefix + "{ " + stmtList(b.Statements) + " }"
}

func (s *ExpressionStatement) String() string { return s.Expr.String() + ";" }
func (s *EmptyStatement) String() string      { return ";" }

func (s *IfStatement) String() string {
	out := fmt.Sprintf("if (%s) %s", s.Cond, s.Then)
	if s.Else != nil {
		out += " else " + s.Else.String()
	}
	return out
}

func labelRef(label string) string {
	if label == "" {
		return ""
	}
	return " " + label
}

func (s *ContinueStatement) String() string { return "continue" + labelRef(s.Label) + ";" }
func (s *BreakStatement) String() string    { return "break" + labelRef(s.Label) + ";" }

func (s *ReturnStatement) String() string {
	if s.Value == nil {
		return "return;"
	}
	return "return " + s.Value.String() + ";"
}

func loopLabel(label string) string {
	if label == "" {
		return ""
	}
	return label + ": "
}

func (s *WhileStatement) String() string {
	return fmt.Sprintf("%swhile (%s) %s", loopLabel(s.Label), s.Cond, s.Body)
}

func (s *DoWhileStatement) String() string {
	return fmt.Sprintf("%sdo %s while (%s);", loopLabel(s.Label), s.Body, s.Cond)
}

func (s *ForStatement) String() string {
	part := func(n Node) string {
		if n == nil {
			return ""
		}
		return strings.TrimSuffix(n.String(), ";")
	}
	var init, cond, next string
	if s.Init != nil {
		init = part(s.Init)
	}
	if s.Cond != nil {
		cond = s.Cond.String()
	}
	if s.Next != nil {
		next = part(s.Next)
	}
	return fmt.Sprintf("%sfor (%s; %s; %s) %s", loopLabel(s.Label), init, cond, next, s.Body)
}

func (s *ForInStatement) String() string {
	return fmt.Sprintf("%sfor (%s in %s) %s", loopLabel(s.Label), s.Each, s.Enumerable, s.Body)
}

func (s *SwitchStatement) String() string {
	return fmt.Sprintf("%sswitch (%s) { ... }", loopLabel(s.Label), s.Tag)
}

func (s *WithStatement) String() string {
	return fmt.Sprintf("with (%s) %s", s.Obj, s.Body)
}

func (s *TryCatchStatement) String() string {
	return fmt.Sprintf("try %s catch (%s) %s", s.Try, s.CatchVar, s.Catch)
}

func (s *TryFinallyStatement) String() string {
	return fmt.Sprintf("try %s finally %s", s.Try, s.Finally)
}

func (s *DebuggerStatement) String() string { return "debugger;" }

func (e *Literal) String() string {
	if e.Value.Kind() == vm.KindString {
		return fmt.Sprintf("%q", e.Value.Str())
	}
	return e.Value.String()
}

func (e *VariableProxy) String() string { return e.Name }

func (e *Assignment) String() string {
	return fmt.Sprintf("%s %s %s", e.Target, e.Op, e.Value)
}

func (e *CountOperation) String() string {
	if e.Prefix {
		return e.Op.String() + e.Target.String()
	}
	return e.Target.String() + e.Op.String()
}

func (e *UnaryOperation) String() string {
	op := e.Op.String()
	if e.Op == TokTypeof || e.Op == TokVoid || e.Op == TokDelete {
		op += " "
	}
	return op + e.Operand.String()
}

func (e *BinaryOperation) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

func (e *CompareOperation) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

func (e *Conditional) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", e.Cond, e.Then, e.Else)
}

func argList(args []Expr) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func (e *Call) String() string        { return fmt.Sprintf("%s(%s)", e.Callee, argList(e.Args)) }
func (e *CallNew) String() string     { return fmt.Sprintf("new %s(%s)", e.Callee, argList(e.Args)) }
func (e *CallRuntime) String() string { return fmt.Sprintf("%%%s(%s)", e.Name, argList(e.Args)) }
func (e *Property) String() string    { return fmt.Sprintf("%s[%s]", e.Obj, e.Key) }
func (e *Throw) String() string       { return "throw " + e.Exception.String() }

func (e *CatchExtension) String() string {
	return fmt.Sprintf("{%s: %s}", e.Key, e.Value)
}

func (e *FunctionLiteral) String() string {
	params := make([]string, len(e.Params))
	for i, p := range e.Params {
		params[i] = p.Name
	}
	return fmt.Sprintf("function %s(%s) { %s }", e.Name, strings.Join(params, ", "), stmtList(e.Body))
}

func (e *FunctionBoilerplate) String() string { return e.Fun.String() }

func (e *ObjectLiteral) String() string { return "{...}" }

func (e *ArrayLiteral) String() string { return "[" + argList(e.Values) + "]" }

func (e *RegExpLiteral) String() string {
	return "/" + e.Pattern + "/" + e.Flags
}
