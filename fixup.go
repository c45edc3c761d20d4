// Completion: 100% - fixup records complete
package tinyavr

// Fixups record symbolic instruction fields for the object writer to
// patch once symbol addresses are known. This core only resolves an
// expression itself when it already folds to a constant, in which case
// no fixup is emitted.

// FixupKind selects the width, position and adjustment semantics the
// object writer applies.
type FixupKind uint8

const (
	FixupNone    FixupKind = iota
	Fixup8                 // plain 8-bit field
	Fixup6                 // 6-bit displacement in a memri operand
	Fixup7PCRel            // 7-bit relative conditional branch target
	Fixup13PCRel           // 13-bit relative jump/call target
	FixupCall              // 22-bit absolute call/jump target
	FixupLo8               // low byte of a 16-bit address
	FixupHi8               // high byte of a 16-bit address
)

func (k FixupKind) String() string {
	switch k {
	case Fixup8:
		return "fixup_8"
	case Fixup6:
		return "fixup_6"
	case Fixup7PCRel:
		return "fixup_7_pcrel"
	case Fixup13PCRel:
		return "fixup_13_pcrel"
	case FixupCall:
		return "fixup_call"
	case FixupLo8:
		return "fixup_lo8"
	case FixupHi8:
		return "fixup_hi8"
	default:
		return "fixup_none"
	}
}

// Fixup is one deferred field patch. Offset is the byte offset of the
// field within the instruction that produced it; EncodeFunction shifts
// it to a stream offset. Loc names the source position of the producing
// instruction for diagnostics and may be empty.
type Fixup struct {
	Offset int
	Expr   *Expr
	Kind   FixupKind
	Loc    string
}

// adjustBranchTarget rewrites a constant pc-relative target into the
// field value. The hardware program counter has advanced past the
// instruction when the offset applies, so the instruction's own word
// count is taken away; with symbolic targets the writer handles this.
func adjustBranchTarget(target int64, instBytes int) int64 {
	return target - int64(instBytes)/2
}
