// Completion: 100% - instruction operands and symbolic expressions complete
package tinyavr

import "fmt"

// Inst is a selected instruction handed to the encoder: an opcode plus
// fully resolved operands. Loc is a source position carried through to
// any fixups, for diagnostics. The encoder never looks back into the
// graph.
type Inst struct {
	Op       Opcode
	Operands []MCOperand
	Loc      string
}

// MCOperandKind tags an instruction operand.
type MCOperandKind uint8

const (
	MCNone MCOperandKind = iota
	MCReg
	MCImm
	MCExpr
)

// MCOperand is a resolved instruction operand. Operands are immutable
// once constructed.
type MCOperand struct {
	Kind MCOperandKind
	Reg  Reg
	Imm  int64
	Expr *Expr
}

// RegOperand builds a register operand.
func RegOperand(r Reg) MCOperand {
	return MCOperand{Kind: MCReg, Reg: r}
}

// ImmOperand builds an immediate operand.
func ImmOperand(v int64) MCOperand {
	return MCOperand{Kind: MCImm, Imm: v}
}

// ExprOperand builds a symbolic operand.
func ExprOperand(e *Expr) MCOperand {
	return MCOperand{Kind: MCExpr, Expr: e}
}

func (o MCOperand) String() string {
	switch o.Kind {
	case MCReg:
		return o.Reg.Name()
	case MCImm:
		return fmt.Sprintf("%d", o.Imm)
	case MCExpr:
		return o.Expr.String()
	default:
		return "<none>"
	}
}

// ExprKind tags a symbolic operand expression.
type ExprKind uint8

const (
	ExprConst  ExprKind = iota
	ExprSymbol          // symbol plus optional addend
	ExprLo8             // lo8(inner), target-specific wrapper
	ExprHi8             // hi8(inner), target-specific wrapper
)

// Expr is a symbolic operand expression. The lo8/hi8 wrappers fold to a
// constant when the wrapped expression is itself constant; otherwise
// they carry their own fixup kind.
type Expr struct {
	Kind   ExprKind
	Symbol string
	Addend int64
	Inner  *Expr
}

// ConstExpr builds a compile-time constant expression.
func ConstExpr(v int64) *Expr {
	return &Expr{Kind: ExprConst, Addend: v}
}

// SymbolExpr builds a symbol reference with an optional addend.
func SymbolExpr(name string, addend int64) *Expr {
	return &Expr{Kind: ExprSymbol, Symbol: name, Addend: addend}
}

// Lo8Expr wraps an expression in the low-byte modifier.
func Lo8Expr(inner *Expr) *Expr {
	return &Expr{Kind: ExprLo8, Inner: inner}
}

// Hi8Expr wraps an expression in the high-byte modifier.
func Hi8Expr(inner *Expr) *Expr {
	return &Expr{Kind: ExprHi8, Inner: inner}
}

// IsTargetWrapper reports whether the expression is one of the
// target-specific lo8/hi8 forms.
func (e *Expr) IsTargetWrapper() bool {
	return e.Kind == ExprLo8 || e.Kind == ExprHi8
}

// EvalConstant folds the expression to a constant if possible.
func (e *Expr) EvalConstant() (int64, bool) {
	switch e.Kind {
	case ExprConst:
		return e.Addend, true
	case ExprLo8:
		if v, ok := e.Inner.EvalConstant(); ok {
			return v & 0xff, true
		}
	case ExprHi8:
		if v, ok := e.Inner.EvalConstant(); ok {
			return (v >> 8) & 0xff, true
		}
	}
	return 0, false
}

// FixupKind returns the fixup kind a non-constant wrapper expression
// requires.
func (e *Expr) FixupKind() FixupKind {
	switch e.Kind {
	case ExprLo8:
		return FixupLo8
	case ExprHi8:
		return FixupHi8
	default:
		return Fixup8
	}
}

func (e *Expr) String() string {
	switch e.Kind {
	case ExprConst:
		return fmt.Sprintf("%d", e.Addend)
	case ExprSymbol:
		if e.Addend != 0 {
			return fmt.Sprintf("%s+%d", e.Symbol, e.Addend)
		}
		return e.Symbol
	case ExprLo8:
		return fmt.Sprintf("lo8(%s)", e.Inner)
	case ExprHi8:
		return fmt.Sprintf("hi8(%s)", e.Inner)
	default:
		return "?"
	}
}
