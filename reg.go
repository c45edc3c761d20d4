// Completion: 100% - register tables complete
package tinyavr

import "strconv"

// Register definitions for the AVR general purpose file, the pointer
// pairs, and the pseudo classes used by selection.

// Reg identifies a physical or virtual register. Virtual registers
// occupy the upper half of the number space and are allocated
// monotonically per function by the graph.
type Reg uint16

const firstVirtualReg Reg = 0x8000

// IsVirtual reports whether r is a virtual register.
func (r Reg) IsVirtual() bool {
	return r >= firstVirtualReg
}

// Physical registers.
const (
	NoReg Reg = iota
	R0
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	R16
	R17
	R18
	R19
	R20
	R21
	R22
	R23
	R24
	R25
	R26
	R27
	R28
	R29
	R30
	R31
	SP

	// 16-bit pairs. R27R26 is X, R29R28 is Y, R31R30 is Z.
	R25R24
	R27R26
	R29R28
	R31R30
)

// RegClass is a named capability set of interchangeable registers.
type RegClass uint8

const (
	ClassNone     RegClass = iota
	ClassGPR8              // any 8-bit general purpose register
	ClassLD8               // r16-r31, usable with immediate forms
	ClassDREGS             // adjacent 16-bit pairs
	ClassPTRREGS           // X, Y, Z
	ClassPTRDISP           // Y, Z (displacement-capable)
	ClassGPR8Quad          // composite 4-slot pseudo register
)

func (c RegClass) String() string {
	switch c {
	case ClassGPR8:
		return "GPR8"
	case ClassLD8:
		return "LD8"
	case ClassDREGS:
		return "DREGS"
	case ClassPTRREGS:
		return "PTRREGS"
	case ClassPTRDISP:
		return "PTRDISPREGS"
	case ClassGPR8Quad:
		return "GPR8Quad"
	default:
		return "none"
	}
}

// Register describes one physical register.
type Register struct {
	Name     string
	Size     int   // size in bits
	Encoding uint8 // numeric encoding for instruction fields
}

// avrRegisters maps each physical register to its description. Single
// registers encode as their number; pairs encode as low-register/2, the
// value MOVW and friends expect.
var avrRegisters = map[Reg]Register{
	R0:  {Name: "r0", Size: 8, Encoding: 0},
	R1:  {Name: "r1", Size: 8, Encoding: 1},
	R2:  {Name: "r2", Size: 8, Encoding: 2},
	R3:  {Name: "r3", Size: 8, Encoding: 3},
	R4:  {Name: "r4", Size: 8, Encoding: 4},
	R5:  {Name: "r5", Size: 8, Encoding: 5},
	R6:  {Name: "r6", Size: 8, Encoding: 6},
	R7:  {Name: "r7", Size: 8, Encoding: 7},
	R8:  {Name: "r8", Size: 8, Encoding: 8},
	R9:  {Name: "r9", Size: 8, Encoding: 9},
	R10: {Name: "r10", Size: 8, Encoding: 10},
	R11: {Name: "r11", Size: 8, Encoding: 11},
	R12: {Name: "r12", Size: 8, Encoding: 12},
	R13: {Name: "r13", Size: 8, Encoding: 13},
	R14: {Name: "r14", Size: 8, Encoding: 14},
	R15: {Name: "r15", Size: 8, Encoding: 15},
	R16: {Name: "r16", Size: 8, Encoding: 16},
	R17: {Name: "r17", Size: 8, Encoding: 17},
	R18: {Name: "r18", Size: 8, Encoding: 18},
	R19: {Name: "r19", Size: 8, Encoding: 19},
	R20: {Name: "r20", Size: 8, Encoding: 20},
	R21: {Name: "r21", Size: 8, Encoding: 21},
	R22: {Name: "r22", Size: 8, Encoding: 22},
	R23: {Name: "r23", Size: 8, Encoding: 23},
	R24: {Name: "r24", Size: 8, Encoding: 24},
	R25: {Name: "r25", Size: 8, Encoding: 25},
	R26: {Name: "r26", Size: 8, Encoding: 26},
	R27: {Name: "r27", Size: 8, Encoding: 27},
	R28: {Name: "r28", Size: 8, Encoding: 28},
	R29: {Name: "r29", Size: 8, Encoding: 29},
	R30: {Name: "r30", Size: 8, Encoding: 30},
	R31: {Name: "r31", Size: 8, Encoding: 31},

	SP: {Name: "sp", Size: 16, Encoding: 0},

	R25R24: {Name: "r25:r24", Size: 16, Encoding: 12},
	R27R26: {Name: "r27:r26", Size: 16, Encoding: 13},
	R29R28: {Name: "r29:r28", Size: 16, Encoding: 14},
	R31R30: {Name: "r31:r30", Size: 16, Encoding: 15},
}

// GetRegister looks up the description of a physical register.
func GetRegister(r Reg) (Register, bool) {
	reg, ok := avrRegisters[r]
	return reg, ok
}

// Name returns the register name, or "vN" for virtual registers.
func (r Reg) Name() string {
	if r.IsVirtual() {
		return "v" + strconv.Itoa(int(r-firstVirtualReg))
	}
	if reg, ok := avrRegisters[r]; ok {
		return reg.Name
	}
	return "?"
}

// physRegClass returns the primary class of a physical register.
func physRegClass(r Reg) RegClass {
	switch {
	case r >= R16 && r <= R31:
		return ClassLD8
	case r >= R0 && r <= R15:
		return ClassGPR8
	case r == R29R28 || r == R31R30:
		return ClassPTRDISP
	case r == R27R26:
		return ClassPTRREGS
	case r == R25R24:
		return ClassDREGS
	default:
		return ClassNone
	}
}

// InClass reports whether a physical register satisfies a class.
func InClass(r Reg, c RegClass) bool {
	switch c {
	case ClassGPR8:
		return r >= R0 && r <= R31
	case ClassLD8:
		return r >= R16 && r <= R31
	case ClassDREGS:
		return r >= R25R24 && r <= R31R30
	case ClassPTRREGS:
		return r == R27R26 || r == R29R28 || r == R31R30
	case ClassPTRDISP:
		return r == R29R28 || r == R31R30
	default:
		return false
	}
}

// Sub-register indices of the composite quad register.
const (
	QSub0 = iota
	QSub1
	QSub2
	QSub3
)
