package vm

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindFunction
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Func is a host function callable from compiled code. Throwing is done by
// returning an error created with NewThrown.
type Func func(cx *Context, args []Value) (Value, error)

// Value is a runtime value. The zero value is undefined.
type Value struct {
	kind Kind
	num  float64
	str  string
	fn   Func
	obj  map[string]Value
}

func Undefined() Value          { return Value{} }
func Null() Value               { return Value{kind: KindNull} }
func Bool(b bool) Value         { return Value{kind: KindBool, num: boolNum(b)} }
func Number(n float64) Value    { return Value{kind: KindNumber, num: n} }
func String(s string) Value     { return Value{kind: KindString, str: s} }
func Function(f Func) Value     { return Value{kind: KindFunction, fn: f} }
func object(m map[string]Value) Value {
	return Value{kind: KindObject, obj: m}
}

func boolNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) Num() float64 { return v.num }
func (v Value) Str() string  { return v.str }

// Truthy reports whether v converts to true in a branch.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBool:
		return v.num != 0
	case KindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindString:
		return v.str != ""
	}
	return true
}

// toNumber applies the usual numeric coercion.
func (v Value) toNumber() float64 {
	switch v.kind {
	case KindNull:
		return 0
	case KindBool, KindNumber:
		return v.num
	case KindString:
		if v.str == "" {
			return 0
		}
		if n, err := strconv.ParseFloat(v.str, 64); err == nil {
			return n
		}
	}
	return math.NaN()
}

// StrictEquals compares kind and payload without coercion.
func (v Value) StrictEquals(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool, KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindObject:
		return reflect.ValueOf(v.obj).Pointer() == reflect.ValueOf(o.obj).Pointer()
	}
	// Functions compare by code identity.
	return reflect.ValueOf(v.fn).Pointer() == reflect.ValueOf(o.fn).Pointer()
}

// Equals compares with loose coercion rules.
func (v Value) Equals(o Value) bool {
	if v.kind == o.kind {
		return v.StrictEquals(o)
	}
	nullish := func(x Value) bool { return x.kind == KindUndefined || x.kind == KindNull }
	if nullish(v) && nullish(o) {
		return true
	}
	if nullish(v) || nullish(o) {
		return false
	}
	return v.toNumber() == o.toNumber()
}

func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return v.str
	case KindFunction:
		return "function"
	}
	return fmt.Sprintf("object(%d)", len(v.obj))
}

// BinOp identifies a binary arithmetic or bitwise operation.
type BinOp int

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinBitOr
	BinBitAnd
	BinBitXor
	BinShl
	BinShr
)

var binOpNames = [...]string{"add", "sub", "mul", "div", "mod", "or", "and", "xor", "shl", "shr"}

func (op BinOp) String() string {
	if int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return "binop?"
}

func binaryOp(op BinOp, left, right Value) Value {
	if op == BinAdd && (left.kind == KindString || right.kind == KindString) {
		return String(left.String() + right.String())
	}
	l, r := left.toNumber(), right.toNumber()
	switch op {
	case BinAdd:
		return Number(l + r)
	case BinSub:
		return Number(l - r)
	case BinMul:
		return Number(l * r)
	case BinDiv:
		return Number(l / r)
	case BinMod:
		return Number(math.Mod(l, r))
	case BinBitOr:
		return Number(float64(toInt32(l) | toInt32(r)))
	case BinBitAnd:
		return Number(float64(toInt32(l) & toInt32(r)))
	case BinBitXor:
		return Number(float64(toInt32(l) ^ toInt32(r)))
	case BinShl:
		return Number(float64(toInt32(l) << (uint32(toInt32(r)) & 31)))
	case BinShr:
		return Number(float64(toInt32(l) >> (uint32(toInt32(r)) & 31)))
	}
	panic(fmt.Sprintf("vm: unknown binary op %d", op))
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	// Reduce modulo 2^32 before narrowing; a direct integer conversion is
	// implementation-defined once |f| exceeds the int64 range.
	f = math.Mod(math.Trunc(f), 1<<32)
	if f >= 1<<31 {
		f -= 1 << 32
	} else if f < -(1 << 31) {
		f += 1 << 32
	}
	return int32(f)
}

// Condition identifies a comparison.
type Condition int

const (
	CondEq Condition = iota
	CondNe
	CondLt
	CondGt
	CondLte
	CondGte
)

var condNames = [...]string{"eq", "ne", "lt", "gt", "lte", "gte"}

func (c Condition) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return "cond?"
}

func compare(cond Condition, strict bool, left, right Value) Value {
	switch cond {
	case CondEq:
		if strict {
			return Bool(left.StrictEquals(right))
		}
		return Bool(left.Equals(right))
	case CondNe:
		if strict {
			return Bool(!left.StrictEquals(right))
		}
		return Bool(!left.Equals(right))
	}
	// Relational comparison: strings compare lexicographically when both
	// sides are strings, numerically otherwise.
	if left.kind == KindString && right.kind == KindString {
		switch cond {
		case CondLt:
			return Bool(left.str < right.str)
		case CondGt:
			return Bool(left.str > right.str)
		case CondLte:
			return Bool(left.str <= right.str)
		case CondGte:
			return Bool(left.str >= right.str)
		}
	}
	l, r := left.toNumber(), right.toNumber()
	switch cond {
	case CondLt:
		return Bool(l < r)
	case CondGt:
		return Bool(l > r)
	case CondLte:
		return Bool(l <= r)
	case CondGte:
		return Bool(l >= r)
	}
	panic(fmt.Sprintf("vm: unknown condition %d", cond))
}
