// Completion: 100% - device family and feature flags complete
package tinyavr

import (
	"fmt"
	"strings"
)

// Device families. Each family is a cumulative tier of hardware
// capabilities; individual devices only ever add or remove single
// features on top of their tier.
type Family uint8

const (
	FamilyAVR1 Family = iota
	FamilyAVR2
	FamilyAVR25
	FamilyAVR3
	FamilyAVR31
	FamilyAVR35
	FamilyAVR4
	FamilyAVR5
	FamilyAVR51
	FamilyAVR6
	FamilyAVRTiny
	FamilyXMEGA
	FamilyXMEGAU
)

func (f Family) String() string {
	switch f {
	case FamilyAVR1:
		return "avr1"
	case FamilyAVR2:
		return "avr2"
	case FamilyAVR25:
		return "avr25"
	case FamilyAVR3:
		return "avr3"
	case FamilyAVR31:
		return "avr31"
	case FamilyAVR35:
		return "avr35"
	case FamilyAVR4:
		return "avr4"
	case FamilyAVR5:
		return "avr5"
	case FamilyAVR51:
		return "avr51"
	case FamilyAVR6:
		return "avr6"
	case FamilyAVRTiny:
		return "avrtiny"
	case FamilyXMEGA:
		return "xmega"
	case FamilyXMEGAU:
		return "xmegau"
	default:
		return "?"
	}
}

// Architecture values for the low byte of the ELF header flags word.
const (
	ELFArchAVR1   = 1
	ELFArchAVR2   = 2
	ELFArchAVR25  = 25
	ELFArchAVR3   = 3
	ELFArchAVR31  = 31
	ELFArchAVR35  = 35
	ELFArchAVR4   = 4
	ELFArchAVR5   = 5
	ELFArchAVR51  = 51
	ELFArchAVR6   = 6
	ELFArchTiny   = 100
	ELFArchXMEGA2 = 102
	ELFArchXMEGA7 = 107
)

// Subtarget holds the capability flags selection and encoding consult.
type Subtarget struct {
	Device string
	Family Family

	HasSRAM         bool // data memory beyond the register file
	HasJMPCALL      bool // direct 22-bit jmp/call
	HasIJMPCALL     bool // indirect jump/call through Z
	HasEIJMPCALL    bool // extended indirect jump/call
	HasADDSUBIW     bool // adiw/sbiw word immediates
	HasSmallStack   bool // 8-bit stack pointer
	HasMOVW         bool // word register move
	HasLPM          bool // program memory load
	HasLPMX         bool // lpm with arbitrary destination
	HasELPM         bool // extended program memory load
	HasELPMX        bool // elpm with arbitrary destination
	HasSPM          bool // program memory store
	HasSPMX         bool // spm Z+
	HasDES          bool // DES round instruction
	HasRMW          bool // atomic read-modify-write
	HasMUL          bool // hardware multiplier
	HasBREAK        bool // break instruction
	HasTinyEncoding bool // reduced-core encodings
}

// NewSubtarget builds a subtarget from a family name plus optional
// comma-separated "+feature"/"-feature" overrides, for example
// "avr5,+des" or "avr35,-movw".
func NewSubtarget(desc string) (*Subtarget, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(desc)), ",")
	family, err := ParseFamily(parts[0])
	if err != nil {
		return nil, err
	}
	st := &Subtarget{Device: parts[0], Family: family}
	st.applyFamily(family)
	for _, f := range parts[1:] {
		if len(f) < 2 || (f[0] != '+' && f[0] != '-') {
			return nil, fmt.Errorf("bad feature override %q", f)
		}
		if err := st.setFeature(f[1:], f[0] == '+'); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// ParseFamily recognizes a device family name.
func ParseFamily(name string) (Family, error) {
	switch name {
	case "avr1":
		return FamilyAVR1, nil
	case "avr2":
		return FamilyAVR2, nil
	case "avr25":
		return FamilyAVR25, nil
	case "avr3":
		return FamilyAVR3, nil
	case "avr31":
		return FamilyAVR31, nil
	case "avr35":
		return FamilyAVR35, nil
	case "avr4":
		return FamilyAVR4, nil
	case "avr5":
		return FamilyAVR5, nil
	case "avr51":
		return FamilyAVR51, nil
	case "avr6":
		return FamilyAVR6, nil
	case "avrtiny", "tiny":
		return FamilyAVRTiny, nil
	case "xmega":
		return FamilyXMEGA, nil
	case "xmegau":
		return FamilyXMEGAU, nil
	}
	return 0, fmt.Errorf("unknown device family %q", name)
}

func (st *Subtarget) applyFamily(f Family) {
	switch f {
	case FamilyAVR1:
		st.HasLPM = true
	case FamilyAVR2:
		st.applyFamily(FamilyAVR1)
		st.HasSRAM = true
		st.HasIJMPCALL = true
		st.HasADDSUBIW = true
	case FamilyAVR25:
		st.applyFamily(FamilyAVR2)
		st.HasMOVW = true
		st.HasLPMX = true
		st.HasSPM = true
		st.HasBREAK = true
	case FamilyAVR3:
		st.applyFamily(FamilyAVR2)
		st.HasJMPCALL = true
	case FamilyAVR31:
		st.applyFamily(FamilyAVR3)
		st.HasELPM = true
	case FamilyAVR35:
		st.applyFamily(FamilyAVR3)
		st.HasMOVW = true
		st.HasLPMX = true
		st.HasSPM = true
		st.HasBREAK = true
	case FamilyAVR4:
		st.applyFamily(FamilyAVR25)
		st.HasMUL = true
	case FamilyAVR5:
		st.applyFamily(FamilyAVR4)
		st.HasJMPCALL = true
	case FamilyAVR51:
		st.applyFamily(FamilyAVR5)
		st.HasELPM = true
		st.HasELPMX = true
	case FamilyAVR6:
		st.applyFamily(FamilyAVR51)
		st.HasEIJMPCALL = true
	case FamilyAVRTiny:
		st.HasSRAM = true
		st.HasBREAK = true
		st.HasSmallStack = true
		st.HasTinyEncoding = true
	case FamilyXMEGA:
		st.applyFamily(FamilyAVR51)
		st.HasEIJMPCALL = true
		st.HasDES = true
		st.HasSPMX = true
	case FamilyXMEGAU:
		st.applyFamily(FamilyXMEGA)
		st.HasRMW = true
	}
}

func (st *Subtarget) setFeature(name string, on bool) error {
	var flag *bool
	switch name {
	case "sram":
		flag = &st.HasSRAM
	case "jmpcall":
		flag = &st.HasJMPCALL
	case "ijmpcall":
		flag = &st.HasIJMPCALL
	case "eijmpcall":
		flag = &st.HasEIJMPCALL
	case "addsubiw":
		flag = &st.HasADDSUBIW
	case "smallstack":
		flag = &st.HasSmallStack
	case "movw":
		flag = &st.HasMOVW
	case "lpm":
		flag = &st.HasLPM
	case "lpmx":
		flag = &st.HasLPMX
	case "elpm":
		flag = &st.HasELPM
	case "elpmx":
		flag = &st.HasELPMX
	case "spm":
		flag = &st.HasSPM
	case "spmx":
		flag = &st.HasSPMX
	case "des":
		flag = &st.HasDES
	case "rmw":
		flag = &st.HasRMW
	case "mul":
		flag = &st.HasMUL
	case "break":
		flag = &st.HasBREAK
	case "tinyencoding":
		flag = &st.HasTinyEncoding
	default:
		return fmt.Errorf("unknown feature %q", name)
	}
	*flag = on
	return nil
}

// ELFFlags returns the architecture byte for the ELF header flags word
// of an object built for this subtarget.
func (st *Subtarget) ELFFlags() uint32 {
	switch st.Family {
	case FamilyAVR1:
		return ELFArchAVR1
	case FamilyAVR2:
		return ELFArchAVR2
	case FamilyAVR25:
		return ELFArchAVR25
	case FamilyAVR3:
		return ELFArchAVR3
	case FamilyAVR31:
		return ELFArchAVR31
	case FamilyAVR35:
		return ELFArchAVR35
	case FamilyAVR4:
		return ELFArchAVR4
	case FamilyAVR5:
		return ELFArchAVR5
	case FamilyAVR51:
		return ELFArchAVR51
	case FamilyAVR6:
		return ELFArchAVR6
	case FamilyAVRTiny:
		return ELFArchTiny
	case FamilyXMEGA:
		return ELFArchXMEGA2
	case FamilyXMEGAU:
		return ELFArchXMEGA7
	}
	return ELFArchAVR2
}
