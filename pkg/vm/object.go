package vm

import (
	"fmt"
	"strings"
)

type Opcode uint8

const (
	OpNop Opcode = iota
	OpLoadConst    // A: constant index -> acc
	OpLoadGlobal   // A: constant index holding the name
	OpStoreGlobal  // A: constant index holding the name
	OpLoadLocal    // A: local slot index
	OpStoreLocal   // A: local slot index
	OpLoadParam    // A: parameter index
	OpStoreParam   // A: parameter index
	OpLoadContext  // A: constant index holding the name, searched on the scope chain
	OpStoreContext // A: constant index holding the name
	OpPush         // push acc
	OpPop          // pop -> acc
	OpDrop         // A: slots to discard
	OpJump         // A: target pc
	OpJumpIfTrue   // A: target pc; acc is not consumed
	OpJumpIfFalse  // A: target pc; acc is not consumed
	OpCallSub      // A: target pc; pushes the return pc on the control stack
	OpRetSub       // pop control stack -> pc
	OpDropSub      // discard one control stack entry
	OpCallCode     // A: index into the referenced code objects
	OpCallFunction // A: argc; stack: [argc args..., callee name]
	OpBinary       // A: BinOp; pops left, combines with acc
	OpCompare      // A: Condition, B: 1 for strict; pops left, compares with acc
	OpCallRuntime  // A: RuntimeID; pops the operation's fixed argument count
	OpPushHandler  // A: handler entry pc, B: HandlerKind
	OpPopHandler
	OpStackCheck // runtime stack-depth guard
	OpReturn     // finish this code object; result in acc
)

var opcodeNames = [...]string{
	"nop", "ldconst", "ldglobal", "stglobal", "ldlocal", "stlocal",
	"ldparam", "stparam", "ldctx", "stctx", "push", "pop", "drop",
	"jmp", "jtrue", "jfalse", "callsub", "retsub", "dropsub",
	"callcode", "callfn", "binary", "compare", "callrt",
	"pushhandler", "pophandler", "stackcheck", "ret",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op%d", int(op))
}

// Instr is one fixed-width instruction.
type Instr struct {
	Op   Opcode
	A, B int32
}

// HandlerKind distinguishes catch and finally handler records.
type HandlerKind int

const (
	HandlerCatch HandlerKind = iota
	HandlerFinally
)

// CodeDesc carries everything an assembler produced for one routine.
// NewCodeObject copies nothing; callers hand over ownership.
type CodeDesc struct {
	Name       string
	Instrs     []Instr
	Consts     []Value
	Codes      []*CodeObject
	Comments   map[int]string
	Positions  map[int]int
	ParamCount int
	LocalCount int
}

// CodeObject is an immutable compiled routine. Instances are created by the
// assembler's allocator and never mutated afterwards, so cache hits can hand
// out the same object to every caller.
type CodeObject struct {
	desc CodeDesc
}

func NewCodeObject(d CodeDesc) *CodeObject {
	return &CodeObject{desc: d}
}

func (co *CodeObject) Name() string     { return co.desc.Name }
func (co *CodeObject) InstrCount() int  { return len(co.desc.Instrs) }
func (co *CodeObject) ConstCount() int  { return len(co.desc.Consts) }
func (co *CodeObject) ParamCount() int  { return co.desc.ParamCount }
func (co *CodeObject) LocalCount() int  { return co.desc.LocalCount }

func (co *CodeObject) instr(pc int) Instr { return co.desc.Instrs[pc] }

func (co *CodeObject) constant(idx int32) Value { return co.desc.Consts[idx] }

// Disassemble renders the instruction stream with recorded comments and
// source positions, mainly for tracing and the CLI.
func (co *CodeObject) Disassemble() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "code %q (%d params, %d locals)\n", co.desc.Name, co.desc.ParamCount, co.desc.LocalCount)
	for pc, in := range co.desc.Instrs {
		if c, ok := co.desc.Comments[pc]; ok {
			fmt.Fprintf(&sb, "        ; %s\n", c)
		}
		fmt.Fprintf(&sb, "%04d    %-12s", pc, in.Op)
		switch in.Op {
		case OpLoadConst, OpLoadGlobal, OpStoreGlobal, OpLoadContext, OpStoreContext:
			fmt.Fprintf(&sb, "%d (%s)", in.A, co.desc.Consts[in.A])
		case OpCallCode:
			fmt.Fprintf(&sb, "%d (%s)", in.A, co.desc.Codes[in.A].Name())
		case OpCallRuntime:
			fmt.Fprintf(&sb, "%s", RuntimeID(in.A))
		case OpBinary:
			fmt.Fprintf(&sb, "%s", BinOp(in.A))
		case OpCompare:
			fmt.Fprintf(&sb, "%s strict=%d", Condition(in.A), in.B)
		case OpPushHandler:
			kind := "catch"
			if HandlerKind(in.B) == HandlerFinally {
				kind = "finally"
			}
			fmt.Fprintf(&sb, "%d %s", in.A, kind)
		case OpNop, OpPush, OpPop, OpRetSub, OpDropSub, OpPopHandler, OpStackCheck, OpReturn:
		default:
			fmt.Fprintf(&sb, "%d", in.A)
		}
		if p, ok := co.desc.Positions[pc]; ok {
			fmt.Fprintf(&sb, "    @%d", p)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
