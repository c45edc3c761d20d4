// Completion: 100% - declarative instruction encoding complete
package tinyavr

import (
	"fmt"
	"os"
)

// Instructions are fixed at one or two 16-bit words. The encoder builds
// a 32-bit image where bits 15..0 are the first emitted word and bits
// 31..16 the second, then writes each word out low byte first.

// bitChunk moves a contiguous run of operand-field bits into the
// instruction image.
type bitChunk struct {
	src   uint8 // low bit within the field value
	dst   uint8 // low bit within the image
	width uint8
}

// fieldEncoder turns one operand (sometimes an operand pair) into a raw
// field value. Symbolic operands that do not fold to a constant append a
// fixup and yield zero.
type fieldEncoder func(in Inst, idx int, desc *encodingDesc, fixups *[]Fixup) (uint64, error)

// fieldDesc binds an operand slot to its encoder and to the image bits
// the field scatters into.
type fieldDesc struct {
	operand int
	encode  fieldEncoder
	chunks  []bitChunk
}

// encodingDesc is the declarative encoding of a single opcode.
type encodingDesc struct {
	size   int // 2 or 4 bytes
	bits   uint32
	fields []fieldDesc
	post   func(in Inst, image uint32) uint32
}

func scatter(image uint32, val uint64, chunks []bitChunk) uint32 {
	for _, c := range chunks {
		bits := uint32(val>>c.src) & (1<<c.width - 1)
		image |= bits << c.dst
	}
	return image
}

func chunkBits(chunks []bitChunk) int {
	total := 0
	for _, c := range chunks {
		total += int(c.width)
	}
	return total
}

// Encoder turns selected instructions into machine code bytes plus
// fixups for the fields that stay symbolic.
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode encodes one instruction. The returned fixup offsets are
// relative to the start of the instruction.
func (e *Encoder) Encode(in Inst) ([]byte, []Fixup, error) {
	desc, ok := encodings[in.Op]
	if !ok || desc.size == 0 {
		return nil, nil, fmt.Errorf("no machine encoding for %s", in.Op)
	}
	image := desc.bits
	var fixups []Fixup
	for _, f := range desc.fields {
		val, err := f.encode(in, f.operand, &desc, &fixups)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", in.Op, err)
		}
		image = scatter(image, val, f.chunks)
	}
	if desc.post != nil {
		image = desc.post(in, image)
	}
	for i := range fixups {
		fixups[i].Loc = in.Loc
	}
	buf := make([]byte, desc.size)
	buf[0] = byte(image)
	buf[1] = byte(image >> 8)
	if desc.size == 4 {
		buf[2] = byte(image >> 16)
		buf[3] = byte(image >> 24)
	}
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "encoded %s as % x\n", in.Op, buf)
	}
	return buf, fixups, nil
}

// EncodeFunction encodes an instruction sequence into one flat byte
// stream, rebasing every fixup offset from instruction-relative to
// stream-relative.
func (e *Encoder) EncodeFunction(insts []Inst) ([]byte, []Fixup, error) {
	var out []byte
	var fixups []Fixup
	for _, in := range insts {
		b, fx, err := e.Encode(in)
		if err != nil {
			return nil, nil, err
		}
		for _, f := range fx {
			f.Offset += len(out)
			fixups = append(fixups, f)
		}
		out = append(out, b...)
	}
	return out, fixups, nil
}

// regEncoding returns the hardware number of a physical register.
func regEncoding(r Reg) (uint64, error) {
	if r.IsVirtual() {
		return 0, fmt.Errorf("virtual register %s reached the encoder", r.Name())
	}
	reg, ok := GetRegister(r)
	if !ok {
		return 0, fmt.Errorf("unknown register %s", r.Name())
	}
	return uint64(reg.Encoding), nil
}

// encGeneric encodes a register by its hardware number, an immediate by
// its value, and a symbolic expression by folding it or recording a
// fixup of the expression's own kind.
func encGeneric(in Inst, idx int, desc *encodingDesc, fixups *[]Fixup) (uint64, error) {
	op := in.Operands[idx]
	switch op.Kind {
	case MCReg:
		return regEncoding(op.Reg)
	case MCImm:
		return uint64(op.Imm), nil
	case MCExpr:
		if v, ok := op.Expr.EvalConstant(); ok {
			return uint64(v), nil
		}
		kind := Fixup8
		if op.Expr.IsTargetWrapper() {
			kind = op.Expr.FixupKind()
		}
		*fixups = append(*fixups, Fixup{Offset: 0, Expr: op.Expr, Kind: kind})
		return 0, nil
	}
	return 0, fmt.Errorf("operand %d is empty", idx)
}

// encImm8 encodes an 8-bit immediate field, accepting lo8/hi8 wrapper
// expressions.
func encImm8(in Inst, idx int, desc *encodingDesc, fixups *[]Fixup) (uint64, error) {
	op := in.Operands[idx]
	switch op.Kind {
	case MCImm:
		return uint64(op.Imm) & 0xff, nil
	case MCExpr:
		if v, ok := op.Expr.EvalConstant(); ok {
			return uint64(v) & 0xff, nil
		}
		kind := Fixup8
		if op.Expr.IsTargetWrapper() {
			kind = op.Expr.FixupKind()
		}
		*fixups = append(*fixups, Fixup{Offset: 0, Expr: op.Expr, Kind: kind})
		return 0, nil
	}
	return 0, fmt.Errorf("operand %d: immediate expected", idx)
}

// encComplement encodes an immediate in one's complement, the form the
// clear-bits instruction wants its mask in. The field width comes from
// the chunk list so the complement stays inside the field.
func encComplement(in Inst, idx int, desc *encodingDesc, fixups *[]Fixup) (uint64, error) {
	op := in.Operands[idx]
	if op.Kind != MCImm {
		return 0, fmt.Errorf("operand %d: immediate expected", idx)
	}
	width := chunkBits(desc.fields[fieldIndex(desc, idx)].chunks)
	return uint64((-1)-op.Imm) & (1<<width - 1), nil
}

func fieldIndex(desc *encodingDesc, operand int) int {
	for i, f := range desc.fields {
		if f.operand == operand {
			return i
		}
	}
	return 0
}

// Pointer-pair field codes for the two-bit pointer selector.
func encPtrReg(in Inst, idx int, desc *encodingDesc, fixups *[]Fixup) (uint64, error) {
	switch in.Operands[idx].Reg {
	case R27R26:
		return 0b11, nil
	case R29R28:
		return 0b10, nil
	case R31R30:
		return 0b00, nil
	}
	return 0, fmt.Errorf("operand %d: %s is not a pointer register", idx, in.Operands[idx])
}

// encMemri encodes a base-plus-displacement operand pair into one
// 7-bit field: bit 6 selects the pointer register, bits 5..0 hold the
// displacement.
func encMemri(in Inst, idx int, desc *encodingDesc, fixups *[]Fixup) (uint64, error) {
	var regBit uint64
	switch in.Operands[idx].Reg {
	case R29R28:
		regBit = 1
	case R31R30:
		regBit = 0
	default:
		return 0, fmt.Errorf("operand %d: %s cannot take a displacement", idx, in.Operands[idx])
	}
	off := in.Operands[idx+1]
	switch off.Kind {
	case MCImm:
		if off.Imm < 0 || off.Imm > 63 {
			return 0, fmt.Errorf("displacement %d out of range 0..63", off.Imm)
		}
		return regBit<<6 | uint64(off.Imm), nil
	case MCExpr:
		if v, ok := off.Expr.EvalConstant(); ok {
			return regBit<<6 | uint64(v)&0x3f, nil
		}
		*fixups = append(*fixups, Fixup{Offset: 0, Expr: off.Expr, Kind: Fixup6})
		return regBit << 6, nil
	}
	return 0, fmt.Errorf("operand %d: displacement expected", idx+1)
}

// encRelBranch7 encodes a 7-bit pc-relative conditional branch target.
func encRelBranch7(in Inst, idx int, desc *encodingDesc, fixups *[]Fixup) (uint64, error) {
	return encRelBranch(in, idx, desc, fixups, 7, Fixup7PCRel)
}

// encRelBranch13 encodes a 13-bit pc-relative jump or call target.
func encRelBranch13(in Inst, idx int, desc *encodingDesc, fixups *[]Fixup) (uint64, error) {
	return encRelBranch(in, idx, desc, fixups, 13, Fixup13PCRel)
}

func encRelBranch(in Inst, idx int, desc *encodingDesc, fixups *[]Fixup, width int, kind FixupKind) (uint64, error) {
	op := in.Operands[idx]
	switch op.Kind {
	case MCImm:
		// Constant targets already carry a word offset; take the
		// instruction's own word count away, as the hardware program
		// counter has advanced by the time the offset applies.
		return uint64(adjustBranchTarget(op.Imm, desc.size)) & (1<<width - 1), nil
	case MCExpr:
		*fixups = append(*fixups, Fixup{Offset: 0, Expr: op.Expr, Kind: kind})
		return 0, nil
	}
	return 0, fmt.Errorf("operand %d: branch target expected", idx)
}

// encCallTarget encodes the absolute word-address target of the long
// call and jump forms.
func encCallTarget(in Inst, idx int, desc *encodingDesc, fixups *[]Fixup) (uint64, error) {
	op := in.Operands[idx]
	switch op.Kind {
	case MCImm:
		return uint64(op.Imm), nil
	case MCExpr:
		*fixups = append(*fixups, Fixup{Offset: 0, Expr: op.Expr, Kind: FixupCall})
		return 0, nil
	}
	return 0, fmt.Errorf("operand %d: call target expected", idx)
}

// loadStoreMode recovers the auto-index mode a ld/st opcode implies.
func loadStoreMode(op Opcode) IndexMode {
	switch op {
	case OpLDRdPtrPi, OpSTPtrPiRr:
		return ModePostInc
	case OpLDRdPtrPd, OpSTPtrPdRr:
		return ModePreDec
	}
	return ModeNone
}

// loadStorePost sets the opcode bit the ld/st family leaves implied by
// the addressing form: it is on for any X-pointer access and for any
// pre-decrement or post-increment access.
func loadStorePost(in Inst, image uint32) uint32 {
	usesX := false
	for _, o := range in.Operands {
		if o.Kind == MCReg && o.Reg == R27R26 {
			usesX = true
		}
	}
	if usesX || loadStoreMode(in.Op) != ModeNone {
		return image | 1<<12
	}
	return image
}
