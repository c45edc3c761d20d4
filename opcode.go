// Completion: 100% - machine opcode enum complete
package tinyavr

// Opcode identifies a selected machine instruction.
type Opcode uint16

const (
	OpInvalid Opcode = iota

	// Loads and stores, data memory.
	OpLDRdPtr    // ld Rd, P
	OpLDRdPtrPi  // ld Rd, P+
	OpLDRdPtrPd  // ld Rd, -P
	OpSTPtrRr    // st P, Rr
	OpSTPtrPiRr  // st P+, Rr
	OpSTPtrPdRr  // st -P, Rr
	OpLDDRdPtrQ  // ldd Rd, P+q
	OpSTDPtrQRr  // std P+q, Rr

	// Program memory loads.
	OpLPMRdZ   // lpm Rd, Z
	OpLPMRdZPi // lpm Rd, Z+

	// Immediate and register arithmetic.
	OpLDIRdK  // ldi Rd, K
	OpADDRdRr // add Rd, Rr
	OpSUBRdRr // sub Rd, Rr
	OpANDRdRr // and Rd, Rr
	OpCBRRdK  // cbr Rd, K (andi with complemented mask)

	// Control flow.
	OpRJMPk  // rjmp k
	OpRCALLk // rcall k
	OpBREQk  // breq k
	OpBRNEk  // brne k
	OpCALLk  // call k (two words)
	OpJMPk   // jmp k (two words)
	OpICALL  // icall (through Z)
	OpIJMP   // ijmp (through Z)

	// Pseudo instructions, expanded by later passes; reaching the
	// encoder with one of these is a defect.
	OpFRMIDX      // frame index placeholder
	OpSTDSPQRr    // store 8-bit at SP+q
	OpSTDWSPQRr   // store 16-bit at SP+q
	OpLDWRdPtr    // 16-bit load
	OpLDWRdPtrPi  // 16-bit load, post-increment
	OpLDWRdPtrPd  // 16-bit load, pre-decrement
	OpLDDWRdPtrQ  // 16-bit load at P+q
	OpSTWPtrRr    // 16-bit store
	OpSTDWPtrQRr  // 16-bit store at P+q
	OpLPMWRdZ     // 16-bit program memory load
	OpLPMWRdZPi   // 16-bit program memory load, post-increment
	OpLDIWRdK     // 16-bit load immediate

	// Target-independent pseudos used by inline-asm legalization.
	OpRegSequence
	OpExtractSubreg
)

var opcodeNames = map[Opcode]string{
	OpLDRdPtr:       "LDRdPtr",
	OpLDRdPtrPi:     "LDRdPtrPi",
	OpLDRdPtrPd:     "LDRdPtrPd",
	OpSTPtrRr:       "STPtrRr",
	OpSTPtrPiRr:     "STPtrPiRr",
	OpSTPtrPdRr:     "STPtrPdRr",
	OpLDDRdPtrQ:     "LDDRdPtrQ",
	OpSTDPtrQRr:     "STDPtrQRr",
	OpLPMRdZ:        "LPMRdZ",
	OpLPMRdZPi:      "LPMRdZPi",
	OpLDIRdK:        "LDIRdK",
	OpADDRdRr:       "ADDRdRr",
	OpSUBRdRr:       "SUBRdRr",
	OpANDRdRr:       "ANDRdRr",
	OpCBRRdK:        "CBRRdK",
	OpRJMPk:         "RJMPk",
	OpRCALLk:        "RCALLk",
	OpBREQk:         "BREQk",
	OpBRNEk:         "BRNEk",
	OpCALLk:         "CALLk",
	OpJMPk:          "JMPk",
	OpICALL:         "ICALL",
	OpIJMP:          "IJMP",
	OpFRMIDX:        "FRMIDX",
	OpSTDSPQRr:      "STDSPQRr",
	OpSTDWSPQRr:     "STDWSPQRr",
	OpLDWRdPtr:      "LDWRdPtr",
	OpLDWRdPtrPi:    "LDWRdPtrPi",
	OpLDWRdPtrPd:    "LDWRdPtrPd",
	OpLDDWRdPtrQ:    "LDDWRdPtrQ",
	OpSTWPtrRr:      "STWPtrRr",
	OpSTDWPtrQRr:    "STDWPtrQRr",
	OpLPMWRdZ:       "LPMWRdZ",
	OpLPMWRdZPi:     "LPMWRdZPi",
	OpLDIWRdK:       "LDIWRdK",
	OpRegSequence:   "REG_SEQUENCE",
	OpExtractSubreg: "EXTRACT_SUBREG",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "INVALID"
}
