package ast

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"basegen/pkg/vm"
)

// The external front end hands programs over as a YAML document: one
// function with its parameter and local lists, declarations, and a body of
// tagged nodes. DecodeProgram rebuilds the syntax tree with variable slots
// resolved from the declared lists.

type yamlProgram struct {
	Name   string      `yaml:"name"`
	Params []string    `yaml:"params"`
	Locals []string    `yaml:"locals"`
	Consts []string    `yaml:"consts"`
	Decls  []string    `yaml:"decls"`
	Body   []*yamlNode `yaml:"body"`
}

type yamlNode struct {
	Kind     string      `yaml:"kind"`
	Pos      int         `yaml:"pos"`
	Label    string      `yaml:"label"`
	Name     string      `yaml:"name"`
	Slot     string      `yaml:"slot"`
	Op       string      `yaml:"op"`
	Prefix   bool        `yaml:"prefix"`
	Num      float64     `yaml:"num"`
	Str      string      `yaml:"str"`
	Bool     bool        `yaml:"bool"`
	Expr     *yamlNode   `yaml:"expr"`
	Target   *yamlNode   `yaml:"target"`
	Value    *yamlNode   `yaml:"value"`
	Cond     *yamlNode   `yaml:"cond"`
	Then     *yamlNode   `yaml:"then"`
	Else     *yamlNode   `yaml:"else"`
	Left     *yamlNode   `yaml:"left"`
	Right    *yamlNode   `yaml:"right"`
	Init     *yamlNode   `yaml:"init"`
	Next     *yamlNode   `yaml:"next"`
	Callee   *yamlNode   `yaml:"callee"`
	Args     []*yamlNode `yaml:"args"`
	Body     []*yamlNode `yaml:"body"`
	Catch    []*yamlNode `yaml:"catch"`
	CatchVar string      `yaml:"catchvar"`
	Finally  []*yamlNode `yaml:"finally"`
	Each     *yamlNode   `yaml:"each"`
	In       *yamlNode   `yaml:"in"`
	Obj      *yamlNode   `yaml:"obj"`
	Key      *yamlNode   `yaml:"key"`
}

var opTokens = map[string]Token{
	"=": TokAssign, "+=": TokAssignAdd, "-=": TokAssignSub, "*=": TokAssignMul,
	"/=": TokAssignDiv, "%=": TokAssignMod, "|=": TokAssignBitOr,
	"&=": TokAssignBitAnd, "^=": TokAssignBitXor, "<<=": TokAssignShl,
	">>=": TokAssignShr, ",": TokComma, "||": TokOr, "&&": TokAnd,
	"+": TokAdd, "-": TokSub, "*": TokMul, "/": TokDiv, "%": TokMod,
	"|": TokBitOr, "&": TokBitAnd, "^": TokBitXor, "<<": TokShl, ">>": TokShr,
	"==": TokEq, "!=": TokNe, "===": TokEqStrict, "!==": TokNeStrict,
	"<": TokLt, ">": TokGt, "<=": TokLte, ">=": TokGte, "!": TokNot,
	"~": TokBitNot, "typeof": TokTypeof, "void": TokVoid, "delete": TokDelete,
	"++": TokInc, "--": TokDec,
}

type decoder struct {
	vars map[string]*Variable
}

// DecodeProgram parses one YAML function document into a syntax tree.
func DecodeProgram(data []byte) (*FunctionLiteral, error) {
	var prog yamlProgram
	if err := yaml.Unmarshal(data, &prog); err != nil {
		return nil, errors.Wrap(err, "decoding program")
	}

	d := &decoder{vars: make(map[string]*Variable)}
	fn := &FunctionLiteral{Name: prog.Name}
	for i, name := range prog.Params {
		v := &Variable{Name: name, Slot: &Slot{Kind: SlotParameter, Index: i, Name: name}}
		d.vars[name] = v
		fn.Params = append(fn.Params, v)
	}
	for i, name := range prog.Locals {
		d.vars[name] = &Variable{Name: name, Slot: &Slot{Kind: SlotLocal, Index: i, Name: name}}
	}
	fn.LocalCount = len(prog.Locals)
	for _, name := range prog.Consts {
		v, ok := d.vars[name]
		if !ok {
			return nil, errors.Errorf("const %q is not a declared local", name)
		}
		v.Mode = VarConst
	}
	for _, name := range prog.Decls {
		proxy, err := d.proxy(&yamlNode{Kind: "var", Name: name})
		if err != nil {
			return nil, err
		}
		fn.Decls = append(fn.Decls, &Declaration{Proxy: proxy})
	}

	body, err := d.stmts(prog.Body)
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (d *decoder) stmts(ns []*yamlNode) ([]Stmt, error) {
	out := make([]Stmt, 0, len(ns))
	for _, n := range ns {
		s, err := d.stmt(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// block wraps a node list into a single statement, the shape loop bodies
// and try clauses take in the tree.
func (d *decoder) block(pos int, label string, ns []*yamlNode) (*Block, error) {
	stmts, err := d.stmts(ns)
	if err != nil {
		return nil, err
	}
	return &Block{node: node{Position: pos}, Label: label, Statements: stmts}, nil
}

func (d *decoder) optStmt(n *yamlNode) (Stmt, error) {
	if n == nil {
		return nil, nil
	}
	return d.stmt(n)
}

func (d *decoder) optExpr(n *yamlNode) (Expr, error) {
	if n == nil {
		return nil, nil
	}
	return d.expr(n)
}

func (d *decoder) stmt(n *yamlNode) (Stmt, error) {
	at := node{Position: n.Pos}
	switch n.Kind {
	case "block":
		return d.block(n.Pos, n.Label, n.Body)
	case "expr":
		e, err := d.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		return &ExpressionStatement{node: at, Expr: e}, nil
	case "empty":
		return &EmptyStatement{node: at}, nil
	case "if":
		cond, err := d.expr(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := d.stmt(n.Then)
		if err != nil {
			return nil, err
		}
		els, err := d.optStmt(n.Else)
		if err != nil {
			return nil, err
		}
		return &IfStatement{node: at, Cond: cond, Then: then, Else: els}, nil
	case "continue":
		return &ContinueStatement{node: at, Label: n.Label}, nil
	case "break":
		return &BreakStatement{node: at, Label: n.Label}, nil
	case "return":
		v, err := d.optExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return &ReturnStatement{node: at, Value: v}, nil
	case "while":
		cond, err := d.expr(n.Cond)
		if err != nil {
			return nil, err
		}
		body, err := d.block(n.Pos, "", n.Body)
		if err != nil {
			return nil, err
		}
		return &WhileStatement{node: at, Label: n.Label, Cond: cond, Body: body}, nil
	case "dowhile":
		cond, err := d.expr(n.Cond)
		if err != nil {
			return nil, err
		}
		body, err := d.block(n.Pos, "", n.Body)
		if err != nil {
			return nil, err
		}
		return &DoWhileStatement{node: at, Label: n.Label, Body: body, Cond: cond}, nil
	case "for":
		init, err := d.optStmt(n.Init)
		if err != nil {
			return nil, err
		}
		cond, err := d.optExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		next, err := d.optStmt(n.Next)
		if err != nil {
			return nil, err
		}
		body, err := d.block(n.Pos, "", n.Body)
		if err != nil {
			return nil, err
		}
		return &ForStatement{node: at, Label: n.Label, Init: init, Cond: cond, Next: next, Body: body}, nil
	case "forin":
		each, err := d.expr(n.Each)
		if err != nil {
			return nil, err
		}
		in, err := d.expr(n.In)
		if err != nil {
			return nil, err
		}
		body, err := d.block(n.Pos, "", n.Body)
		if err != nil {
			return nil, err
		}
		return &ForInStatement{node: at, Label: n.Label, Each: each, Enumerable: in, Body: body}, nil
	case "trycatch":
		if n.CatchVar == "" {
			return nil, errors.New("try/catch without a catch variable")
		}
		try, err := d.block(n.Pos, "", n.Body)
		if err != nil {
			return nil, err
		}
		// The catch binding lives on the scope chain and shadows any outer
		// name for the extent of the catch block.
		cv := &Variable{Name: n.CatchVar, Slot: &Slot{Kind: SlotContext, Name: n.CatchVar}}
		outer, shadowed := d.vars[n.CatchVar]
		d.vars[n.CatchVar] = cv
		catch, err := d.block(n.Pos, "", n.Catch)
		if shadowed {
			d.vars[n.CatchVar] = outer
		} else {
			delete(d.vars, n.CatchVar)
		}
		if err != nil {
			return nil, err
		}
		proxy := &VariableProxy{node: node{Position: n.Pos}, Name: n.CatchVar, Var: cv}
		return &TryCatchStatement{node: at, Try: try, CatchVar: proxy, Catch: catch}, nil
	case "tryfinally":
		try, err := d.block(n.Pos, "", n.Body)
		if err != nil {
			return nil, err
		}
		fin, err := d.block(n.Pos, "", n.Finally)
		if err != nil {
			return nil, err
		}
		return &TryFinallyStatement{node: at, Try: try, Finally: fin}, nil
	case "switch":
		tag, err := d.expr(n.Cond)
		if err != nil {
			return nil, err
		}
		return &SwitchStatement{node: at, Label: n.Label, Tag: tag}, nil
	case "with":
		obj, err := d.expr(n.Obj)
		if err != nil {
			return nil, err
		}
		body, err := d.block(n.Pos, "", n.Body)
		if err != nil {
			return nil, err
		}
		return &WithStatement{node: at, Obj: obj, Body: body}, nil
	case "debugger":
		return &DebuggerStatement{node: at}, nil
	}
	return nil, errors.Errorf("unknown statement kind %q", n.Kind)
}

func (d *decoder) proxy(n *yamlNode) (*VariableProxy, error) {
	if n.Name == "" {
		return nil, errors.New("variable reference without a name")
	}
	v, ok := d.vars[n.Name]
	if !ok {
		v = &Variable{Name: n.Name, Slot: &Slot{Kind: SlotGlobal, Name: n.Name}}
		d.vars[n.Name] = v
	}
	if n.Slot != "" {
		// Explicit storage override from the front end, e.g. a name the
		// resolver could only bind dynamically.
		kind, err := slotKind(n.Slot)
		if err != nil {
			return nil, err
		}
		v = &Variable{Name: n.Name, Mode: v.Mode, Slot: &Slot{Kind: kind, Index: v.Slot.Index, Name: n.Name}}
	}
	return &VariableProxy{node: node{Position: n.Pos}, Name: n.Name, Var: v}, nil
}

func slotKind(s string) (SlotKind, error) {
	switch s {
	case "global":
		return SlotGlobal, nil
	case "parameter":
		return SlotParameter, nil
	case "local":
		return SlotLocal, nil
	case "context":
		return SlotContext, nil
	case "lookup":
		return SlotLookup, nil
	}
	return 0, errors.Errorf("unknown slot kind %q", s)
}

func (d *decoder) exprs(ns []*yamlNode) ([]Expr, error) {
	out := make([]Expr, 0, len(ns))
	for _, n := range ns {
		e, err := d.expr(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *decoder) token(s string) (Token, error) {
	t, ok := opTokens[s]
	if !ok {
		return 0, errors.Errorf("unknown operator %q", s)
	}
	return t, nil
}

func (d *decoder) expr(n *yamlNode) (Expr, error) {
	if n == nil {
		return nil, errors.New("missing expression node")
	}
	at := node{Position: n.Pos}
	switch n.Kind {
	case "number":
		return &Literal{node: at, Value: vm.Number(n.Num)}, nil
	case "string":
		return &Literal{node: at, Value: vm.String(n.Str)}, nil
	case "bool":
		return &Literal{node: at, Value: vm.Bool(n.Bool)}, nil
	case "null":
		return &Literal{node: at, Value: vm.Null()}, nil
	case "undefined":
		return &Literal{node: at, Value: vm.Undefined()}, nil
	case "var":
		return d.proxy(n)
	case "assign":
		op, err := d.token(n.Op)
		if err != nil {
			return nil, err
		}
		target, err := d.expr(n.Target)
		if err != nil {
			return nil, err
		}
		value, err := d.expr(n.Value)
		if err != nil {
			return nil, err
		}
		return &Assignment{node: at, Op: op, Target: target, Value: value}, nil
	case "count":
		op, err := d.token(n.Op)
		if err != nil {
			return nil, err
		}
		target, err := d.expr(n.Target)
		if err != nil {
			return nil, err
		}
		return &CountOperation{node: at, Op: op, Prefix: n.Prefix, Target: target}, nil
	case "unary":
		op, err := d.token(n.Op)
		if err != nil {
			return nil, err
		}
		operand, err := d.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		return &UnaryOperation{node: at, Op: op, Operand: operand}, nil
	case "binary", "compare", "logical":
		op, err := d.token(n.Op)
		if err != nil {
			return nil, err
		}
		left, err := d.expr(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := d.expr(n.Right)
		if err != nil {
			return nil, err
		}
		if op >= TokEq && op <= TokGte {
			return &CompareOperation{node: at, Op: op, Left: left, Right: right}, nil
		}
		return &BinaryOperation{node: at, Op: op, Left: left, Right: right}, nil
	case "cond":
		cond, err := d.expr(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := d.expr(n.Then)
		if err != nil {
			return nil, err
		}
		els, err := d.expr(n.Else)
		if err != nil {
			return nil, err
		}
		return &Conditional{node: at, Cond: cond, Then: then, Else: els}, nil
	case "call":
		callee, err := d.expr(n.Callee)
		if err != nil {
			return nil, err
		}
		args, err := d.exprs(n.Args)
		if err != nil {
			return nil, err
		}
		return &Call{node: at, Callee: callee, Args: args}, nil
	case "new":
		callee, err := d.expr(n.Callee)
		if err != nil {
			return nil, err
		}
		args, err := d.exprs(n.Args)
		if err != nil {
			return nil, err
		}
		return &CallNew{node: at, Callee: callee, Args: args}, nil
	case "runtime":
		args, err := d.exprs(n.Args)
		if err != nil {
			return nil, err
		}
		return &CallRuntime{node: at, Name: n.Name, Args: args}, nil
	case "property":
		obj, err := d.expr(n.Obj)
		if err != nil {
			return nil, err
		}
		key, err := d.expr(n.Key)
		if err != nil {
			return nil, err
		}
		return &Property{node: at, Obj: obj, Key: key}, nil
	case "throw":
		ex, err := d.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		return &Throw{node: at, Exception: ex}, nil
	case "catchext":
		v, err := d.expr(n.Value)
		if err != nil {
			return nil, err
		}
		return &CatchExtension{node: at, Key: n.Name, Value: v}, nil
	case "array":
		vs, err := d.exprs(n.Args)
		if err != nil {
			return nil, err
		}
		return &ArrayLiteral{node: at, Values: vs}, nil
	case "regexp":
		return &RegExpLiteral{node: at, Pattern: n.Str, Flags: n.Label}, nil
	}
	return nil, errors.Errorf("unknown expression kind %q", n.Kind)
}
